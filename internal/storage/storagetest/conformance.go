// Package storagetest holds a conformance suite shared by every
// storage.Adapter implementation, so each adapter's _test.go only needs to
// construct one and hand it to Run.
package storagetest

import (
	"errors"
	"testing"

	"github.com/rybkr/akashica/internal/storage"
)

// Run exercises the full storage.Adapter contract against adapter. Each
// adapter package's test file calls this with a freshly constructed,
// empty adapter.
func Run(t *testing.T, adapter storage.Adapter) {
	t.Helper()

	t.Run("ObjectRoundTrip", func(t *testing.T) { testObjectRoundTrip(t, adapter) })
	t.Run("ManifestRoundTrip", func(t *testing.T) { testManifestRoundTrip(t, adapter) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, adapter) })
	t.Run("CommitMetadata", func(t *testing.T) { testCommitMetadata(t, adapter) })
	t.Run("BranchCAS", func(t *testing.T) { testBranchCAS(t, adapter) })
	t.Run("WorkspaceLifecycle", func(t *testing.T) { testWorkspaceLifecycle(t, adapter) })
	t.Run("Tombstones", func(t *testing.T) { testTombstones(t, adapter) })
}

func testObjectRoundTrip(t *testing.T, a storage.Adapter) {
	t.Helper()
	hash := "deadbeef"
	want := []byte("hello world")

	if err := a.WriteObject(hash, want); err != nil {
		t.Fatalf("WriteObject: %v", err)
	}
	got, err := a.ReadObject(hash)
	if err != nil {
		t.Fatalf("ReadObject: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("ReadObject = %q, want %q", got, want)
	}

	exists, err := a.ObjectExists(hash)
	if err != nil || !exists {
		t.Errorf("ObjectExists = %v, %v; want true, nil", exists, err)
	}

	if err := a.DeleteObject(hash); err != nil {
		t.Fatalf("DeleteObject: %v", err)
	}
	exists, err = a.ObjectExists(hash)
	if err != nil || exists {
		t.Errorf("ObjectExists after delete = %v, %v; want false, nil", exists, err)
	}
}

func testManifestRoundTrip(t *testing.T, a storage.Adapter) {
	t.Helper()
	hash := "manifesthash"
	want := []byte("aaaa:1:a.txt\n")
	if err := a.WriteManifest(hash, want); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := a.ReadManifest(hash)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("ReadManifest = %q, want %q", got, want)
	}
}

func testNotFound(t *testing.T, a storage.Adapter) {
	t.Helper()
	if _, err := a.ReadObject("nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ReadObject(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := a.ReadBranch("nonexistent"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ReadBranch(missing) err = %v, want ErrNotFound", err)
	}
	if _, err := a.ReadWorkspaceFile("ws-missing", "a.txt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ReadWorkspaceFile(missing) err = %v, want ErrNotFound", err)
	}
}

func testCommitMetadata(t *testing.T, a storage.Adapter) {
	t.Helper()
	meta := storage.CommitMetadata{Message: "m", Author: "a"}
	if err := a.WriteCommitMetadata("@1", meta); err != nil {
		t.Fatalf("WriteCommitMetadata: %v", err)
	}
	got, err := a.ReadCommitMetadata("@1")
	if err != nil {
		t.Fatalf("ReadCommitMetadata: %v", err)
	}
	if got.Message != meta.Message || got.Author != meta.Author {
		t.Errorf("ReadCommitMetadata = %+v, want %+v", got, meta)
	}
}

func testBranchCAS(t *testing.T, a storage.Adapter) {
	t.Helper()

	// Creating requires expected == "".
	if err := a.UpdateBranch("main", "", "@1"); err != nil {
		t.Fatalf("UpdateBranch(create): %v", err)
	}
	if err := a.UpdateBranch("main", "", "@2"); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("UpdateBranch(create again) err = %v, want ErrConflict", err)
	}

	// Correct CAS succeeds.
	if err := a.UpdateBranch("main", "@1", "@2"); err != nil {
		t.Fatalf("UpdateBranch(advance): %v", err)
	}
	ptr, err := a.ReadBranch("main")
	if err != nil || ptr.Head != "@2" {
		t.Errorf("ReadBranch after advance = %+v, %v; want head @2", ptr, err)
	}

	// Stale CAS fails and does not mutate the branch.
	if err := a.UpdateBranch("main", "@1", "@3"); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("UpdateBranch(stale) err = %v, want ErrConflict", err)
	}
	ptr, _ = a.ReadBranch("main")
	if ptr.Head != "@2" {
		t.Errorf("branch head mutated by failed CAS: got %q, want @2", ptr.Head)
	}
}

func testWorkspaceLifecycle(t *testing.T, a storage.Adapter) {
	t.Helper()
	wsID := "@1$abcd"

	exists, _ := a.WorkspaceExists(wsID)
	if exists {
		t.Fatalf("workspace unexpectedly exists before creation")
	}

	meta := storage.WorkspaceMetadata{Base: "@1", Creator: "tester"}
	if err := a.WriteWorkspaceMetadata(wsID, meta); err != nil {
		t.Fatalf("WriteWorkspaceMetadata: %v", err)
	}
	if err := a.WriteWorkspaceFile(wsID, "a.txt", []byte("hi")); err != nil {
		t.Fatalf("WriteWorkspaceFile: %v", err)
	}
	if err := a.WriteWorkspaceManifest(wsID, "", []byte("cafe:2:a.txt\n")); err != nil {
		t.Fatalf("WriteWorkspaceManifest: %v", err)
	}
	if err := a.WriteCowRef(wsID, "b.txt", storage.CowRef{BasePath: "a.txt", Hash: "cafe", Size: 2}); err != nil {
		t.Fatalf("WriteCowRef: %v", err)
	}

	exists, err := a.WorkspaceExists(wsID)
	if err != nil || !exists {
		t.Errorf("WorkspaceExists after creation = %v, %v; want true, nil", exists, err)
	}

	if err := a.DeleteWorkspace(wsID); err != nil {
		t.Fatalf("DeleteWorkspace: %v", err)
	}
	exists, _ = a.WorkspaceExists(wsID)
	if exists {
		t.Errorf("workspace still exists after DeleteWorkspace")
	}
	if _, err := a.ReadWorkspaceFile(wsID, "a.txt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ReadWorkspaceFile after delete err = %v, want ErrNotFound", err)
	}
	if _, err := a.ReadCowRef(wsID, "b.txt"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ReadCowRef after delete err = %v, want ErrNotFound", err)
	}
}

func testTombstones(t *testing.T, a storage.Adapter) {
	t.Helper()
	hash := "scrubbedhash"
	tomb := storage.Tombstone{DeletedHash: hash, Reason: "secret leak", DeletedBy: "tester", OriginalSize: 42}
	if err := a.WriteTombstone(hash, tomb); err != nil {
		t.Fatalf("WriteTombstone: %v", err)
	}
	got, err := a.ReadTombstone(hash)
	if err != nil {
		t.Fatalf("ReadTombstone: %v", err)
	}
	if got.Reason != tomb.Reason || got.OriginalSize != tomb.OriginalSize {
		t.Errorf("ReadTombstone = %+v, want %+v", got, tomb)
	}

	list, err := a.ListTombstones()
	if err != nil {
		t.Fatalf("ListTombstones: %v", err)
	}
	found := false
	for _, tb := range list {
		if tb.DeletedHash == hash {
			found = true
		}
	}
	if !found {
		t.Errorf("ListTombstones did not include %s", hash)
	}
}
