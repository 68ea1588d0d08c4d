package engine

import (
	"errors"
	"testing"

	"github.com/rybkr/akashica/internal/storage/memstore"
)

func TestCommitSessionIsReadOnly(t *testing.T) {
	repo := NewRepository(memstore.New(), Config{})
	base, err := repo.Init()
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	sess, err := repo.OpenCommit(base)
	if err != nil {
		t.Fatalf("OpenCommit: %v", err)
	}
	if sess.IsWorkspace() {
		t.Fatalf("expected commit session to report IsWorkspace() == false")
	}
	if err := sess.WriteFile("a.txt", []byte("x")); !errors.Is(err, ErrSessionReadOnly) {
		t.Fatalf("expected session-read-only on WriteFile, got %v", err)
	}
	if err := sess.DeleteFile("a.txt"); !errors.Is(err, ErrSessionReadOnly) {
		t.Fatalf("expected session-read-only on DeleteFile, got %v", err)
	}
	if err := sess.MoveFile("a.txt", "b.txt"); !errors.Is(err, ErrSessionReadOnly) {
		t.Fatalf("expected session-read-only on MoveFile, got %v", err)
	}
	if _, err := sess.Status(); !errors.Is(err, ErrSessionReadOnly) {
		t.Fatalf("expected session-read-only on Status, got %v", err)
	}
}

func TestWorkspaceStatusReportsChanges(t *testing.T) {
	repo := NewRepository(memstore.New(), Config{})
	base, _ := repo.Init()

	seed, _ := repo.CreateWorkspace(base, "alice")
	if err := seed.WriteFile("keep.txt", []byte("keep")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := seed.WriteFile("remove.txt", []byte("gone")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	seedWs, _ := workspaceIDOf(seed)
	commitID, err := repo.Publish(seedWs, "main", "seed", "alice")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	sess, err := repo.CreateWorkspace(commitID, "alice")
	if err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	if err := sess.WriteFile("keep.txt", []byte("changed")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := sess.DeleteFile("remove.txt"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if err := sess.WriteFile("fresh.txt", []byte("new")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := sess.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	byPath := map[string]string{}
	for _, e := range entries {
		byPath[e.Path] = e.Change
	}
	if byPath["keep.txt"] != "modified" {
		t.Fatalf("expected keep.txt modified, got %+v", byPath)
	}
	if byPath["remove.txt"] != "deleted" {
		t.Fatalf("expected remove.txt deleted, got %+v", byPath)
	}
	if byPath["fresh.txt"] != "added" {
		t.Fatalf("expected fresh.txt added, got %+v", byPath)
	}
}

func TestListDirectorySortedByName(t *testing.T) {
	repo := NewRepository(memstore.New(), Config{})
	base, _ := repo.Init()
	sess, _ := repo.CreateWorkspace(base, "alice")
	for _, name := range []string{"z.txt", "a.txt", "m.txt"} {
		if err := sess.WriteFile(name, []byte(name)); err != nil {
			t.Fatalf("WriteFile %s: %v", name, err)
		}
	}
	entries, err := sess.ListDirectory("")
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	want := []string{"a.txt", "m.txt", "z.txt"}
	for i, e := range entries {
		if e.Name != want[i] {
			t.Fatalf("entries[%d] = %s, want %s", i, e.Name, want[i])
		}
	}
}

func TestFileExists(t *testing.T) {
	repo := NewRepository(memstore.New(), Config{})
	base, _ := repo.Init()
	sess, _ := repo.CreateWorkspace(base, "alice")
	if sess.FileExists("nope.txt") {
		t.Fatalf("expected nope.txt to not exist")
	}
	if err := sess.WriteFile("yes.txt", []byte("y")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if !sess.FileExists("yes.txt") {
		t.Fatalf("expected yes.txt to exist")
	}
}
