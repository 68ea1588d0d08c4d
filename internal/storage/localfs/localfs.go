// Package localfs is a storage.Adapter backed by a local directory tree,
// laid out exactly as described in akashica's external-interface key
// namespace (objects/<hash>, manifests/<hash>, commits/<id>/..., branches/
// <name>, workspaces/<id>/...). Branch CAS is approximated with a
// process-local mutex plus read-then-write, since a plain filesystem has
// no native if-match primitive; multiple processes sharing one directory
// must tolerate lost updates, exactly as spec §4.1 allows.
package localfs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rybkr/akashica/internal/storage"
)

// FS is a storage.Adapter rooted at a directory on the local filesystem.
type FS struct {
	root string
	mu   sync.Mutex
}

// New returns an FS rooted at root, creating the directory if necessary.
func New(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("localfs: creating root %s: %w", root, err)
	}
	return &FS{root: root}, nil
}

func (f *FS) path(parts ...string) string {
	return filepath.Join(append([]string{f.root}, parts...)...)
}

// readFile returns storage.ErrNotFound for a missing file, wrapping other
// errors as-is.
func readFile(path string) ([]byte, error) {
	//nolint:gosec // G304: path is built from the adapter's own root + caller-controlled key, same trust boundary as gitcore's object reads
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// writeFileAtomic writes data to path via a temp file + rename, so a reader
// never observes a partially written value (the adapter's one atomicity
// guarantee, per §4.1).
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := path + ".tmp-" + fmt.Sprintf("%d", os.Getpid())
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (f *FS) ReadObject(hash string) ([]byte, error) {
	return readFile(f.path("objects", hash))
}

func (f *FS) WriteObject(hash string, data []byte) error {
	return writeFileAtomic(f.path("objects", hash), data)
}

func (f *FS) ObjectExists(hash string) (bool, error) {
	_, err := os.Stat(f.path("objects", hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (f *FS) DeleteObject(hash string) error {
	err := os.Remove(f.path("objects", hash))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FS) ReadManifest(hash string) ([]byte, error) {
	return readFile(f.path("manifests", hash))
}

func (f *FS) WriteManifest(hash string, data []byte) error {
	return writeFileAtomic(f.path("manifests", hash), data)
}

func (f *FS) ReadRootManifest(commitID string) ([]byte, error) {
	return readFile(f.path("commits", commitID, "root-manifest"))
}

func (f *FS) WriteRootManifest(commitID string, data []byte) error {
	return writeFileAtomic(f.path("commits", commitID, "root-manifest"), data)
}

func (f *FS) ReadCommitMetadata(commitID string) (storage.CommitMetadata, error) {
	var meta storage.CommitMetadata
	data, err := readFile(f.path("commits", commitID, "metadata.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("localfs: decoding commit metadata for %s: %w", commitID, err)
	}
	return meta, nil
}

func (f *FS) WriteCommitMetadata(commitID string, meta storage.CommitMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path("commits", commitID, "metadata.json"), data)
}

func (f *FS) ListBranches() ([]string, error) {
	dir := f.path("branches")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *FS) ReadBranch(name string) (storage.BranchPointer, error) {
	var ptr storage.BranchPointer
	data, err := readFile(f.path("branches", name))
	if err != nil {
		return ptr, err
	}
	if err := json.Unmarshal(data, &ptr); err != nil {
		return ptr, fmt.Errorf("localfs: decoding branch %s: %w", name, err)
	}
	return ptr, nil
}

// UpdateBranch is a process-local CAS: a mutex serializes the
// read-check-write sequence. This is advisory, not a true cross-process
// CAS (§4.1's "if lacking a precondition primitive, callers must tolerate
// lost updates" applies to concurrent localfs processes).
func (f *FS) UpdateBranch(name string, expectedCurrent, newCommit string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.ReadBranch(name)
	exists := true
	if err != nil {
		if err == storage.ErrNotFound {
			exists = false
		} else {
			return err
		}
	}

	switch {
	case expectedCurrent == "" && exists:
		return fmt.Errorf("%w: branch %q already exists with head %q", storage.ErrConflict, name, current.Head)
	case expectedCurrent != "" && !exists:
		return fmt.Errorf("%w: branch %q does not exist", storage.ErrConflict, name)
	case expectedCurrent != "" && exists && current.Head != expectedCurrent:
		return fmt.Errorf("%w: branch %q has head %q, expected %q", storage.ErrConflict, name, current.Head, expectedCurrent)
	}

	if newCommit == "" {
		err := os.Remove(f.path("branches", name))
		if err != nil && os.IsNotExist(err) {
			return nil
		}
		return err
	}

	data, err := json.Marshal(storage.BranchPointer{Head: newCommit})
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path("branches", name), data)
}

func (f *FS) ReadWorkspaceMetadata(workspaceID string) (storage.WorkspaceMetadata, error) {
	var meta storage.WorkspaceMetadata
	data, err := readFile(f.path("workspaces", workspaceID, "metadata.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("localfs: decoding workspace metadata for %s: %w", workspaceID, err)
	}
	return meta, nil
}

func (f *FS) WriteWorkspaceMetadata(workspaceID string, meta storage.WorkspaceMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path("workspaces", workspaceID, "metadata.json"), data)
}

func (f *FS) DeleteWorkspaceMetadata(workspaceID string) error {
	err := os.Remove(f.path("workspaces", workspaceID, "metadata.json"))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FS) WorkspaceExists(workspaceID string) (bool, error) {
	_, err := os.Stat(f.path("workspaces", workspaceID, "metadata.json"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// encodePath turns a repository path into a flat filename safe for one
// directory level by escaping "/"; this keeps workspace file storage from
// needing to mirror the full repository directory structure on disk for
// every intermediate component, matching how manifests key off the whole
// path rather than a nested tree.
func encodePath(p string) string {
	if p == "" {
		return "__root__"
	}
	return strings.ReplaceAll(p, "/", "")
}

func (f *FS) ReadWorkspaceFile(workspaceID, path string) ([]byte, error) {
	return readFile(f.path("workspaces", workspaceID, "files", encodePath(path)))
}

func (f *FS) WriteWorkspaceFile(workspaceID, path string, data []byte) error {
	return writeFileAtomic(f.path("workspaces", workspaceID, "files", encodePath(path)), data)
}

func (f *FS) DeleteWorkspaceFile(workspaceID, path string) error {
	err := os.Remove(f.path("workspaces", workspaceID, "files", encodePath(path)))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FS) ReadWorkspaceManifest(workspaceID, dirPath string) ([]byte, error) {
	return readFile(f.path("workspaces", workspaceID, "manifests", encodePath(dirPath)))
}

func (f *FS) WriteWorkspaceManifest(workspaceID, dirPath string, data []byte) error {
	return writeFileAtomic(f.path("workspaces", workspaceID, "manifests", encodePath(dirPath)), data)
}

func (f *FS) DeleteWorkspaceManifest(workspaceID, dirPath string) error {
	err := os.Remove(f.path("workspaces", workspaceID, "manifests", encodePath(dirPath)))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FS) ReadCowRef(workspaceID, path string) (storage.CowRef, error) {
	var ref storage.CowRef
	data, err := readFile(f.path("workspaces", workspaceID, "cow", encodePath(path)))
	if err != nil {
		return ref, err
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, fmt.Errorf("localfs: decoding cow ref: %w", err)
	}
	return ref, nil
}

func (f *FS) WriteCowRef(workspaceID, path string, ref storage.CowRef) error {
	data, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path("workspaces", workspaceID, "cow", encodePath(path)), data)
}

func (f *FS) DeleteCowRef(workspaceID, path string) error {
	err := os.Remove(f.path("workspaces", workspaceID, "cow", encodePath(path)))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FS) DeleteWorkspace(workspaceID string) error {
	err := os.RemoveAll(f.path("workspaces", workspaceID))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FS) ReadTombstone(hash string) (storage.Tombstone, error) {
	var tomb storage.Tombstone
	data, err := readFile(f.path("objects", hash+".tomb"))
	if err != nil {
		return tomb, err
	}
	if err := json.Unmarshal(data, &tomb); err != nil {
		return tomb, fmt.Errorf("localfs: decoding tombstone for %s: %w", hash, err)
	}
	return tomb, nil
}

func (f *FS) WriteTombstone(hash string, tomb storage.Tombstone) error {
	data, err := json.MarshalIndent(tomb, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(f.path("objects", hash+".tomb"), data)
}

func (f *FS) ListTombstones() ([]storage.Tombstone, error) {
	dir := f.path("objects")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var tombs []storage.Tombstone
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tomb") {
			continue
		}
		hash := strings.TrimSuffix(e.Name(), ".tomb")
		tomb, err := f.ReadTombstone(hash)
		if err != nil {
			return nil, fmt.Errorf("localfs: reading tombstone %s: %w", e.Name(), err)
		}
		tombs = append(tombs, tomb)
	}
	return tombs, nil
}

// Watch follows the branches/ directory for changes using fsnotify,
// sending on the returned channel whenever any branch file is created,
// written, or removed. The returned function stops the watch and closes
// the channel. This lets a long-running front end react to a branch
// advancing (e.g. a publish from another process) without polling,
// mirroring gitvista's filesystem watcher but aimed at branch pointers
// instead of .git/HEAD.
func (f *FS) Watch() (<-chan struct{}, func(), error) {
	branchesDir := f.path("branches")
	if err := os.MkdirAll(branchesDir, 0o750); err != nil {
		return nil, nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("localfs: creating watcher: %w", err)
	}
	if err := watcher.Add(branchesDir); err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("localfs: watching %s: %w", branchesDir, err)
	}

	events := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(events)
		for {
			select {
			case <-done:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case events <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	stop := func() {
		close(done)
		_ = watcher.Close()
	}

	return events, stop, nil
}

var _ storage.Adapter = (*FS)(nil)
