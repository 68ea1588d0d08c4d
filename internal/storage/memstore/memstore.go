// Package memstore is an in-memory storage.Adapter, used by tests and by
// callers that want to embed the engine without touching disk. Its branch
// CAS is a real compare-and-swap under a single mutex, which makes it the
// reference implementation for the concurrency properties in spec §8.
package memstore

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rybkr/akashica/internal/storage"
)

// Store is an in-memory storage.Adapter.
type Store struct {
	mu sync.Mutex

	objects   map[string][]byte
	manifests map[string][]byte

	rootManifests map[string][]byte
	commitMeta    map[string]storage.CommitMetadata

	branches map[string]storage.BranchPointer

	wsMeta      map[string]storage.WorkspaceMetadata
	wsFiles     map[string][]byte
	wsManifests map[string][]byte
	wsCowRefs   map[string]storage.CowRef

	tombstones map[string]storage.Tombstone
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		objects:       make(map[string][]byte),
		manifests:     make(map[string][]byte),
		rootManifests: make(map[string][]byte),
		commitMeta:    make(map[string]storage.CommitMetadata),
		branches:      make(map[string]storage.BranchPointer),
		wsMeta:        make(map[string]storage.WorkspaceMetadata),
		wsFiles:       make(map[string][]byte),
		wsManifests:   make(map[string][]byte),
		wsCowRefs:     make(map[string]storage.CowRef),
		tombstones:    make(map[string]storage.Tombstone),
	}
}

func wsFileKey(workspaceID, path string) string { return workspaceID + "\x00" + path }

func (s *Store) ReadObject(hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *Store) WriteObject(hash string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[hash] = cp
	return nil
}

func (s *Store) ObjectExists(hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[hash]
	return ok, nil
}

func (s *Store) DeleteObject(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, hash)
	return nil
}

func (s *Store) ReadManifest(hash string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.manifests[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *Store) WriteManifest(hash string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.manifests[hash] = cp
	return nil
}

func (s *Store) ReadRootManifest(commitID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.rootManifests[commitID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (s *Store) WriteRootManifest(commitID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rootManifests[commitID] = data
	return nil
}

func (s *Store) ReadCommitMetadata(commitID string) (storage.CommitMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.commitMeta[commitID]
	if !ok {
		return storage.CommitMetadata{}, storage.ErrNotFound
	}
	return meta, nil
}

func (s *Store) WriteCommitMetadata(commitID string, meta storage.CommitMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitMeta[commitID] = meta
	return nil
}

func (s *Store) ListBranches() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.branches))
	for name := range s.branches {
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) ReadBranch(name string) (storage.BranchPointer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ptr, ok := s.branches[name]
	if !ok {
		return storage.BranchPointer{}, storage.ErrNotFound
	}
	return ptr, nil
}

func (s *Store) UpdateBranch(name string, expectedCurrent, newCommit string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.branches[name]
	switch {
	case expectedCurrent == "" && exists:
		return fmt.Errorf("%w: branch %q already exists with head %q", storage.ErrConflict, name, current.Head)
	case expectedCurrent != "" && !exists:
		return fmt.Errorf("%w: branch %q does not exist", storage.ErrConflict, name)
	case expectedCurrent != "" && exists && current.Head != expectedCurrent:
		return fmt.Errorf("%w: branch %q has head %q, expected %q", storage.ErrConflict, name, current.Head, expectedCurrent)
	}

	if newCommit == "" {
		delete(s.branches, name)
		return nil
	}
	s.branches[name] = storage.BranchPointer{Head: newCommit}
	return nil
}

func (s *Store) ReadWorkspaceMetadata(workspaceID string) (storage.WorkspaceMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.wsMeta[workspaceID]
	if !ok {
		return storage.WorkspaceMetadata{}, storage.ErrNotFound
	}
	return meta, nil
}

func (s *Store) WriteWorkspaceMetadata(workspaceID string, meta storage.WorkspaceMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wsMeta[workspaceID] = meta
	return nil
}

func (s *Store) DeleteWorkspaceMetadata(workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wsMeta, workspaceID)
	return nil
}

func (s *Store) WorkspaceExists(workspaceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.wsMeta[workspaceID]
	return ok, nil
}

func (s *Store) ReadWorkspaceFile(workspaceID, path string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.wsFiles[wsFileKey(workspaceID, path)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *Store) WriteWorkspaceFile(workspaceID, path string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.wsFiles[wsFileKey(workspaceID, path)] = cp
	return nil
}

func (s *Store) DeleteWorkspaceFile(workspaceID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wsFiles, wsFileKey(workspaceID, path))
	return nil
}

func (s *Store) ReadWorkspaceManifest(workspaceID, dirPath string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.wsManifests[wsFileKey(workspaceID, dirPath)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *Store) WriteWorkspaceManifest(workspaceID, dirPath string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.wsManifests[wsFileKey(workspaceID, dirPath)] = cp
	return nil
}

func (s *Store) DeleteWorkspaceManifest(workspaceID, dirPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wsManifests, wsFileKey(workspaceID, dirPath))
	return nil
}

func (s *Store) ReadCowRef(workspaceID, path string) (storage.CowRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.wsCowRefs[wsFileKey(workspaceID, path)]
	if !ok {
		return storage.CowRef{}, storage.ErrNotFound
	}
	return ref, nil
}

func (s *Store) WriteCowRef(workspaceID, path string, ref storage.CowRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wsCowRefs[wsFileKey(workspaceID, path)] = ref
	return nil
}

func (s *Store) DeleteCowRef(workspaceID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.wsCowRefs, wsFileKey(workspaceID, path))
	return nil
}

func (s *Store) DeleteWorkspace(workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.wsMeta, workspaceID)
	prefix := workspaceID + "\x00"
	for k := range s.wsFiles {
		if strings.HasPrefix(k, prefix) {
			delete(s.wsFiles, k)
		}
	}
	for k := range s.wsManifests {
		if strings.HasPrefix(k, prefix) {
			delete(s.wsManifests, k)
		}
	}
	for k := range s.wsCowRefs {
		if strings.HasPrefix(k, prefix) {
			delete(s.wsCowRefs, k)
		}
	}
	return nil
}

func (s *Store) ReadTombstone(hash string) (storage.Tombstone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tomb, ok := s.tombstones[hash]
	if !ok {
		return storage.Tombstone{}, storage.ErrNotFound
	}
	return tomb, nil
}

func (s *Store) WriteTombstone(hash string, tomb storage.Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstones[hash] = tomb
	return nil
}

func (s *Store) ListTombstones() ([]storage.Tombstone, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Tombstone, 0, len(s.tombstones))
	for _, t := range s.tombstones {
		out = append(out, t)
	}
	return out, nil
}

var _ storage.Adapter = (*Store)(nil)
