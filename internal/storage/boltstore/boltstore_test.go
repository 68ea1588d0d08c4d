package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/rybkr/akashica/internal/storage/storagetest"
)

func TestBoltstoreConformance(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "akashica.bolt"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	storagetest.Run(t, store)
}
