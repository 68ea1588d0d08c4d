package engine

import (
	"testing"

	"github.com/rybkr/akashica/internal/storage/memstore"
)

func TestWriteFileInNewSubdirectory(t *testing.T) {
	repo := NewRepository(memstore.New(), Config{})
	base, _ := repo.Init()
	sess, _ := repo.CreateWorkspace(base, "alice")

	if err := sess.WriteFile("dir/sub/leaf.txt", []byte("deep")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := sess.ReadFile("dir/sub/leaf.txt")
	if err != nil || string(data) != "deep" {
		t.Fatalf("ReadFile: %q, %v", data, err)
	}

	ws, _ := workspaceIDOf(sess)
	commitID, err := repo.Publish(ws, "main", "nested", "alice")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	commitSess, err := repo.OpenCommit(commitID)
	if err != nil {
		t.Fatalf("OpenCommit: %v", err)
	}
	data, err = commitSess.ReadFile("dir/sub/leaf.txt")
	if err != nil || string(data) != "deep" {
		t.Fatalf("committed ReadFile: %q, %v", data, err)
	}

	entries, err := commitSess.ListDirectory("dir")
	if err != nil {
		t.Fatalf("ListDirectory dir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "sub" || entries[0].Kind != KindDir {
		t.Fatalf("expected one subdirectory 'sub', got %+v", entries)
	}
}

func TestDeleteNestedFileInExistingDirectory(t *testing.T) {
	repo := NewRepository(memstore.New(), Config{})
	base, _ := repo.Init()

	seed, _ := repo.CreateWorkspace(base, "alice")
	if err := seed.WriteFile("dir/one.txt", []byte("1")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := seed.WriteFile("dir/two.txt", []byte("2")); err != nil {
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
	if err := sess.DeleteFile("dir/one.txt"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	entries, err := sess.ListDirectory("dir")
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "two.txt" {
		t.Fatalf("expected only two.txt remaining, got %+v", entries)
	}
}
