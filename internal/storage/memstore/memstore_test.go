package memstore

import (
	"testing"

	"github.com/rybkr/akashica/internal/storage/storagetest"
)

func TestMemstoreConformance(t *testing.T) {
	storagetest.Run(t, New())
}
