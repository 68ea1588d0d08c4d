package engine

import (
	"errors"
	"testing"

	"github.com/rybkr/akashica/internal/storage/memstore"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	return NewRepository(memstore.New(), Config{})
}

func TestCommitRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	base, err := repo.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	sess, err := repo.CreateWorkspace(base, "alice")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if err := sess.WriteFile("a.txt", []byte("H")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	wsID, err := workspaceIDOf(sess)
	if err != nil {
		t.Fatalf("workspaceIDOf: %v", err)
	}

	commitID, err := repo.Publish(wsID, "main", "m", "alice")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	commit, err := repo.CommitMetadata(commitID)
	if err != nil {
		t.Fatalf("CommitMetadata: %v", err)
	}
	rootData, err := repo.adapter.ReadRootManifest(commitID)
	if err != nil {
		t.Fatalf("ReadRootManifest: %v", err)
	}
	want := HashBytes([]byte("H")).String() + ":1:a.txt"
	if string(rootData) != want {
		t.Fatalf("root manifest = %q, want %q", rootData, want)
	}
	if commit.Parent != base {
		t.Fatalf("expected parent %s, got %s", base, commit.Parent)
	}
}

// workspaceIDOf extracts a session's bound workspace id for tests that need
// to call Repository methods directly (Session itself keeps it private).
func workspaceIDOf(s *Session) (string, error) {
	if s.kind != changesetWorkspace {
		return "", errors.New("not a workspace session")
	}
	return s.workspaceID, nil
}

func TestOverlayDeletion(t *testing.T) {
	repo := newTestRepo(t)
	base, _ := repo.Init()

	sess, _ := repo.CreateWorkspace(base, "alice")
	wsID, _ := workspaceIDOf(sess)
	if err := sess.WriteFile("x.txt", []byte("x")); err != nil {
		t.Fatalf("WriteFile x: %v", err)
	}
	if err := sess.WriteFile("y.txt", []byte("y")); err != nil {
		t.Fatalf("WriteFile y: %v", err)
	}
	commitID, err := repo.Publish(wsID, "main", "seed", "alice")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sess2, err := repo.CreateWorkspace(commitID, "alice")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	wsID2, _ := workspaceIDOf(sess2)
	if err := sess2.DeleteFile("x.txt"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	if _, err := sess2.ReadFile("x.txt"); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected file-not-found reading deleted x.txt, got %v", err)
	}
	data, err := sess2.ReadFile("y.txt")
	if err != nil || string(data) != "y" {
		t.Fatalf("expected y.txt unchanged, got %q err=%v", data, err)
	}

	newCommit, err := repo.Publish(wsID2, "main", "delete x", "alice")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	commitSess, err := repo.OpenCommit(newCommit)
	if err != nil {
		t.Fatalf("OpenCommit: %v", err)
	}
	entries, err := commitSess.ListDirectory("")
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "y.txt" {
		t.Fatalf("expected only y.txt in root manifest, got %+v", entries)
	}
}

func TestDeduplicationUnderRename(t *testing.T) {
	repo := newTestRepo(t)
	base, _ := repo.Init()

	sess, _ := repo.CreateWorkspace(base, "alice")
	wsID, _ := workspaceIDOf(sess)
	if err := sess.WriteFile("old.txt", []byte("k")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := sess.MoveFile("old.txt", "new.txt"); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}

	commitID, err := repo.Publish(wsID, "main", "rename", "alice")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	expected := HashBytes([]byte("k"))

	commitSess, _ := repo.OpenCommit(commitID)
	entries, err := commitSess.ListDirectory("")
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "new.txt" {
		t.Fatalf("expected only new.txt, got %+v", entries)
	}
	if entries[0].Hash != expected {
		t.Fatalf("expected hash %s, got %s", expected, entries[0].Hash)
	}
}

func TestConcurrentPublishConflict(t *testing.T) {
	repo := newTestRepo(t)
	base, _ := repo.Init()

	sess1, _ := repo.CreateWorkspace(base, "alice")
	sess2, _ := repo.CreateWorkspace(base, "bob")
	ws1, _ := workspaceIDOf(sess1)
	ws2, _ := workspaceIDOf(sess2)

	if err := sess1.WriteFile("a.txt", []byte("1")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := sess2.WriteFile("b.txt", []byte("2")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	firstCommit, err := repo.Publish(ws1, "main", "first", "alice")
	if err != nil {
		t.Fatalf("first Publish: %v", err)
	}

	_, err = repo.Publish(ws2, "main", "second", "bob")
	if !errors.Is(err, ErrBranchConflict) {
		t.Fatalf("expected branch-conflict on second publish, got %v", err)
	}

	head, err := repo.CurrentCommit("main")
	if err != nil {
		t.Fatalf("CurrentCommit: %v", err)
	}
	if head != firstCommit {
		t.Fatalf("expected head %s, got %s", firstCommit, head)
	}
}

func TestNonAncestorReset(t *testing.T) {
	repo := newTestRepo(t)
	c1, _ := repo.Init()

	publish := func(base, msg string) string {
		sess, err := repo.CreateWorkspace(base, "alice")
		if err != nil {
			t.Fatalf("CreateWorkspace: %v", err)
		}
		ws, _ := workspaceIDOf(sess)
		if err := sess.WriteFile(msg+".txt", []byte(msg)); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		commit, err := repo.Publish(ws, "main", msg, "alice")
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		return commit
	}

	c2 := publish(c1, "two")
	c3 := publish(c2, "three")

	if err := repo.ResetBranch("main", c2, false); err != nil {
		t.Fatalf("ResetBranch to ancestor: %v", err)
	}
	head, _ := repo.CurrentCommit("main")
	if head != c2 {
		t.Fatalf("expected head %s, got %s", c2, head)
	}

	if err := repo.ResetBranch("main", c3, true); err != nil {
		t.Fatalf("forced ResetBranch forward: %v", err)
	}

	sess, _ := repo.CreateWorkspace(c1, "alice")
	ws, _ := workspaceIDOf(sess)
	if err := sess.WriteFile("unrelated.txt", []byte("u")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	unrelatedCommit, err := repo.Publish(ws, "side", "side branch", "alice")
	if err != nil {
		t.Fatalf("Publish side: %v", err)
	}

	err = repo.ResetBranch("main", unrelatedCommit, false)
	if !errors.Is(err, ErrNonAncestorReset) {
		t.Fatalf("expected non-ancestor-reset, got %v", err)
	}

	if err := repo.ResetBranch("main", unrelatedCommit, true); err != nil {
		t.Fatalf("forced ResetBranch: %v", err)
	}
	head, _ = repo.CurrentCommit("main")
	if head != unrelatedCommit {
		t.Fatalf("expected forced reset head %s, got %s", unrelatedCommit, head)
	}
}

func TestScrubContent(t *testing.T) {
	repo := newTestRepo(t)
	base, _ := repo.Init()
	sess, _ := repo.CreateWorkspace(base, "alice")
	ws, _ := workspaceIDOf(sess)
	if err := sess.WriteFile("secret.txt", []byte("topsecret")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	commitID, err := repo.Publish(ws, "main", "add secret", "alice")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	hash := HashBytes([]byte("topsecret")).String()
	if err := repo.ScrubContent(hash, "leaked credential", "security-team"); err != nil {
		t.Fatalf("ScrubContent: %v", err)
	}

	commitSess, _ := repo.OpenCommit(commitID)
	_, err = commitSess.ReadFile("secret.txt")
	if !errors.Is(err, ErrScrubbedContent) {
		t.Fatalf("expected scrubbed-content, got %v", err)
	}

	tombs, total, err := repo.ListScrubbedContent()
	if err != nil {
		t.Fatalf("ListScrubbedContent: %v", err)
	}
	if len(tombs) != 1 || tombs[0].DeletedHash != hash {
		t.Fatalf("expected one tombstone for %s, got %+v", hash, tombs)
	}
	if total != int64(len("topsecret")) {
		t.Fatalf("expected total %d, got %d", len("topsecret"), total)
	}
}

func TestPublishNoOpPreservesRootHash(t *testing.T) {
	repo := newTestRepo(t)
	base, _ := repo.Init()
	sess, _ := repo.CreateWorkspace(base, "alice")
	ws, _ := workspaceIDOf(sess)
	if err := sess.WriteFile("a.txt", []byte("v1")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	commit1, err := repo.Publish(ws, "main", "seed", "alice")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sess2, err := repo.CreateWorkspace(commit1, "alice")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	ws2, _ := workspaceIDOf(sess2)
	commit2, err := repo.Publish(ws2, "main", "no-op", "alice")
	if err != nil {
		t.Fatalf("Publish no-op: %v", err)
	}

	c1meta, err := repo.CommitMetadata(commit1)
	if err != nil {
		t.Fatalf("CommitMetadata c1: %v", err)
	}
	c2meta, err := repo.CommitMetadata(commit2)
	if err != nil {
		t.Fatalf("CommitMetadata c2: %v", err)
	}
	if c1meta.RootHash != c2meta.RootHash {
		t.Fatalf("expected identical root hash on no-op publish, got %s vs %s", c1meta.RootHash, c2meta.RootHash)
	}
}
