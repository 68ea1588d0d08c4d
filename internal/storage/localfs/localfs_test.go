package localfs

import (
	"testing"
	"time"

	"github.com/rybkr/akashica/internal/storage/storagetest"
)

func TestLocalfsConformance(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	storagetest.Run(t, fs)
}

func TestWatchBranchChange(t *testing.T) {
	fs, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	events, stop, err := fs.Watch()
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer stop()

	if err := fs.UpdateBranch("main", "", "@1"); err != nil {
		t.Fatalf("UpdateBranch: %v", err)
	}

	select {
	case <-events:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a watch event after branch update")
	}
}
