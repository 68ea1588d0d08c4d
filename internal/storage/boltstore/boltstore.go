// Package boltstore is a storage.Adapter backed by a single embedded
// go.etcd.io/bbolt database file, one bucket per key prefix in the
// external key namespace. Unlike localfs, branch updates use bbolt's
// native serialized transactions, giving UpdateBranch a true
// compare-and-swap rather than an advisory one.
package boltstore

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rybkr/akashica/internal/storage"
)

var (
	bucketObjects       = []byte("objects")
	bucketManifests     = []byte("manifests")
	bucketRootManifests = []byte("root_manifests")
	bucketCommitMeta    = []byte("commit_metadata")
	bucketBranches      = []byte("branches")
	bucketWorkspaceMeta = []byte("workspace_metadata")
	bucketWorkspaceFile = []byte("workspace_files")
	bucketWorkspaceMan  = []byte("workspace_manifests")
	bucketWorkspaceCow  = []byte("workspace_cow")
	bucketTombstones    = []byte("tombstones")

	allBuckets = [][]byte{
		bucketObjects, bucketManifests, bucketRootManifests, bucketCommitMeta,
		bucketBranches, bucketWorkspaceMeta, bucketWorkspaceFile,
		bucketWorkspaceMan, bucketWorkspaceCow, bucketTombstones,
	}
)

// Store is a storage.Adapter backed by a single bbolt file.
type Store struct {
	db *bolt.DB
}

// Open creates or opens a bbolt database at path and ensures every bucket
// the adapter needs exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o640, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltstore: opening %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltstore: creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

func wsKey(workspaceID, path string) []byte { return []byte(workspaceID + "\x00" + path) }

func (s *Store) getBytes(bucket []byte, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucket).Get([]byte(key))
		if v == nil {
			return storage.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

func (s *Store) putBytes(bucket []byte, key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

func (s *Store) deleteKey(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

func (s *Store) ReadObject(hash string) ([]byte, error) { return s.getBytes(bucketObjects, hash) }
func (s *Store) WriteObject(hash string, data []byte) error {
	return s.putBytes(bucketObjects, hash, data)
}

func (s *Store) ObjectExists(hash string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketObjects).Get([]byte(hash)) != nil
		return nil
	})
	return exists, err
}

func (s *Store) DeleteObject(hash string) error { return s.deleteKey(bucketObjects, hash) }

func (s *Store) ReadManifest(hash string) ([]byte, error) { return s.getBytes(bucketManifests, hash) }
func (s *Store) WriteManifest(hash string, data []byte) error {
	return s.putBytes(bucketManifests, hash, data)
}

func (s *Store) ReadRootManifest(commitID string) ([]byte, error) {
	return s.getBytes(bucketRootManifests, commitID)
}

func (s *Store) WriteRootManifest(commitID string, data []byte) error {
	return s.putBytes(bucketRootManifests, commitID, data)
}

func (s *Store) ReadCommitMetadata(commitID string) (storage.CommitMetadata, error) {
	var meta storage.CommitMetadata
	data, err := s.getBytes(bucketCommitMeta, commitID)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("boltstore: decoding commit metadata for %s: %w", commitID, err)
	}
	return meta, nil
}

func (s *Store) WriteCommitMetadata(commitID string, meta storage.CommitMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.putBytes(bucketCommitMeta, commitID, data)
}

func (s *Store) ListBranches() ([]string, error) {
	var names []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBranches).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (s *Store) ReadBranch(name string) (storage.BranchPointer, error) {
	var ptr storage.BranchPointer
	data, err := s.getBytes(bucketBranches, name)
	if err != nil {
		return ptr, err
	}
	if err := json.Unmarshal(data, &ptr); err != nil {
		return ptr, fmt.Errorf("boltstore: decoding branch %s: %w", name, err)
	}
	return ptr, nil
}

// UpdateBranch is a true compare-and-swap: the read and write happen
// inside a single bbolt read-write transaction, which bbolt serializes
// against every other writer.
func (s *Store) UpdateBranch(name string, expectedCurrent, newCommit string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBranches)
		v := bucket.Get([]byte(name))
		exists := v != nil
		var currentHead string
		if exists {
			var ptr storage.BranchPointer
			if err := json.Unmarshal(v, &ptr); err != nil {
				return fmt.Errorf("boltstore: decoding branch %s: %w", name, err)
			}
			currentHead = ptr.Head
		}

		switch {
		case expectedCurrent == "" && exists:
			return fmt.Errorf("%w: branch %q already exists with head %q", storage.ErrConflict, name, currentHead)
		case expectedCurrent != "" && !exists:
			return fmt.Errorf("%w: branch %q does not exist", storage.ErrConflict, name)
		case expectedCurrent != "" && exists && currentHead != expectedCurrent:
			return fmt.Errorf("%w: branch %q has head %q, expected %q", storage.ErrConflict, name, currentHead, expectedCurrent)
		}

		if newCommit == "" {
			return bucket.Delete([]byte(name))
		}
		data, err := json.Marshal(storage.BranchPointer{Head: newCommit})
		if err != nil {
			return err
		}
		return bucket.Put([]byte(name), data)
	})
}

func (s *Store) ReadWorkspaceMetadata(workspaceID string) (storage.WorkspaceMetadata, error) {
	var meta storage.WorkspaceMetadata
	data, err := s.getBytes(bucketWorkspaceMeta, workspaceID)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("boltstore: decoding workspace metadata for %s: %w", workspaceID, err)
	}
	return meta, nil
}

func (s *Store) WriteWorkspaceMetadata(workspaceID string, meta storage.WorkspaceMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.putBytes(bucketWorkspaceMeta, workspaceID, data)
}

func (s *Store) DeleteWorkspaceMetadata(workspaceID string) error {
	return s.deleteKey(bucketWorkspaceMeta, workspaceID)
}

func (s *Store) WorkspaceExists(workspaceID string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketWorkspaceMeta).Get([]byte(workspaceID)) != nil
		return nil
	})
	return exists, err
}

func (s *Store) ReadWorkspaceFile(workspaceID, path string) ([]byte, error) {
	return s.getBytes(bucketWorkspaceFile, string(wsKey(workspaceID, path)))
}

func (s *Store) WriteWorkspaceFile(workspaceID, path string, data []byte) error {
	return s.putBytes(bucketWorkspaceFile, string(wsKey(workspaceID, path)), data)
}

func (s *Store) DeleteWorkspaceFile(workspaceID, path string) error {
	return s.deleteKey(bucketWorkspaceFile, string(wsKey(workspaceID, path)))
}

func (s *Store) ReadWorkspaceManifest(workspaceID, dirPath string) ([]byte, error) {
	return s.getBytes(bucketWorkspaceMan, string(wsKey(workspaceID, dirPath)))
}

func (s *Store) WriteWorkspaceManifest(workspaceID, dirPath string, data []byte) error {
	return s.putBytes(bucketWorkspaceMan, string(wsKey(workspaceID, dirPath)), data)
}

func (s *Store) DeleteWorkspaceManifest(workspaceID, dirPath string) error {
	return s.deleteKey(bucketWorkspaceMan, string(wsKey(workspaceID, dirPath)))
}

func (s *Store) ReadCowRef(workspaceID, path string) (storage.CowRef, error) {
	var ref storage.CowRef
	data, err := s.getBytes(bucketWorkspaceCow, string(wsKey(workspaceID, path)))
	if err != nil {
		return ref, err
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, fmt.Errorf("boltstore: decoding cow ref: %w", err)
	}
	return ref, nil
}

func (s *Store) WriteCowRef(workspaceID, path string, ref storage.CowRef) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return s.putBytes(bucketWorkspaceCow, string(wsKey(workspaceID, path)), data)
}

func (s *Store) DeleteCowRef(workspaceID, path string) error {
	return s.deleteKey(bucketWorkspaceCow, string(wsKey(workspaceID, path)))
}

// DeleteWorkspace removes every key scoped to workspaceID across the four
// workspace-prefixed buckets in a single transaction.
func (s *Store) DeleteWorkspace(workspaceID string) error {
	prefix := []byte(workspaceID + "\x00")
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketWorkspaceMeta).Delete([]byte(workspaceID)); err != nil {
			return err
		}
		for _, b := range []([]byte){bucketWorkspaceFile, bucketWorkspaceMan, bucketWorkspaceCow} {
			c := tx.Bucket(b).Cursor()
			for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = c.Next() {
				if err := tx.Bucket(b).Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

func (s *Store) ReadTombstone(hash string) (storage.Tombstone, error) {
	var tomb storage.Tombstone
	data, err := s.getBytes(bucketTombstones, hash)
	if err != nil {
		return tomb, err
	}
	if err := json.Unmarshal(data, &tomb); err != nil {
		return tomb, fmt.Errorf("boltstore: decoding tombstone for %s: %w", hash, err)
	}
	return tomb, nil
}

func (s *Store) WriteTombstone(hash string, tomb storage.Tombstone) error {
	data, err := json.Marshal(tomb)
	if err != nil {
		return err
	}
	return s.putBytes(bucketTombstones, hash, data)
}

func (s *Store) ListTombstones() ([]storage.Tombstone, error) {
	var tombs []storage.Tombstone
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTombstones).ForEach(func(_, v []byte) error {
			var t storage.Tombstone
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			tombs = append(tombs, t)
			return nil
		})
	})
	return tombs, err
}

var _ storage.Adapter = (*Store)(nil)
