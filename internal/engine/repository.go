package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/rybkr/akashica/internal/storage"
)

// Config controls repository-wide behavior that the spec leaves as an
// engine choice rather than prescribing (§9).
type Config struct {
	// CommitIDStrategy mints new commit ids on publish. Defaults to
	// UUIDCommitIDs.
	CommitIDStrategy CommitIDStrategy
	// Logger receives structured progress events; defaults to slog.Default().
	Logger *slog.Logger
}

// Repository coordinates workspace and branch lifecycles over a single
// storage.Adapter (§4.7). It holds no state of its own beyond the adapter
// and the configured commit-id strategy; concurrent callers are
// serialized only by the adapter's own guarantees.
type Repository struct {
	adapter storage.Adapter
	newID   CommitIDStrategy
	log     *slog.Logger
}

// NewRepository wires a Repository to adapter.
func NewRepository(adapter storage.Adapter, cfg Config) *Repository {
	if cfg.CommitIDStrategy == nil {
		cfg.CommitIDStrategy = UUIDCommitIDs()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Repository{adapter: adapter, newID: cfg.CommitIDStrategy, log: cfg.Logger}
}

// Init creates the initial empty commit "@0" if it does not already
// exist, the conventional root of a fresh repository's history.
func (r *Repository) Init() (string, error) {
	const initial = "@0"
	exists, err := commitExists(r.adapter, initial)
	if err != nil {
		return "", err
	}
	if exists {
		return initial, nil
	}
	empty := (&Manifest{}).Serialize()
	if err := r.adapter.WriteRootManifest(initial, empty); err != nil {
		return "", storageError(err)
	}
	meta := storage.CommitMetadata{Message: "initial commit", Timestamp: time.Now().UTC()}
	if err := r.adapter.WriteCommitMetadata(initial, meta); err != nil {
		return "", storageError(err)
	}
	r.log.Info("initialized repository", "commit", initial)
	return initial, nil
}

// CreateWorkspace creates a fresh workspace rooted on fromCommit (§4.7).
func (r *Repository) CreateWorkspace(fromCommit, creator string) (*Session, error) {
	exists, err := commitExists(r.adapter, fromCommit)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, commitNotFound(fromCommit, nil)
	}
	id := newWorkspaceID(fromCommit)
	meta := newWorkspaceMetadata(fromCommit, creator)
	if err := r.adapter.WriteWorkspaceMetadata(id, meta); err != nil {
		return nil, storageError(err)
	}
	r.log.Info("created workspace", "workspace", id, "base", fromCommit)
	return NewWorkspaceSession(r.adapter, id, fromCommit), nil
}

// CreateWorkspaceFromBranch creates a workspace rooted on branch's current
// head.
func (r *Repository) CreateWorkspaceFromBranch(branch, creator string) (*Session, error) {
	ptr, err := r.adapter.ReadBranch(branch)
	if err != nil {
		return nil, wrapStorageErr(err, func() error { return branchNotFound(branch, err) })
	}
	return r.CreateWorkspace(ptr.Head, creator)
}

// OpenWorkspace returns a session bound to an existing workspace.
func (r *Repository) OpenWorkspace(workspaceID string) (*Session, error) {
	meta, err := workspaceMetadata(r.adapter, workspaceID)
	if err != nil {
		return nil, err
	}
	return NewWorkspaceSession(r.adapter, workspaceID, meta.Base), nil
}

// OpenCommit returns a read-only session bound to commitID.
func (r *Repository) OpenCommit(commitID string) (*Session, error) {
	exists, err := commitExists(r.adapter, commitID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, commitNotFound(commitID, nil)
	}
	return NewCommitSession(r.adapter, commitID), nil
}

// materializeDir recursively walks the workspace overlay rooted at
// dirParts, materializing each authoritative entry into the commit's
// object/manifest space, and returns the resulting manifest hash/size
// (§4.7 step 2).
func (r *Repository) materializeDir(workspaceID, baseCommit string, dirParts []string) (Hash, int64, error) {
	overlay, hasOverlay, err := loadOverlayManifest(r.adapter, workspaceID, dirParts)
	if err != nil {
		return "", 0, err
	}

	var authoritative *Manifest
	if hasOverlay {
		authoritative = overlay
	} else {
		authoritative, err = loadBaseManifest(r.adapter, baseCommit, dirParts)
		if err != nil {
			return "", 0, err
		}
	}

	out := NewManifest(nil)
	for _, entry := range authoritative.Entries() {
		childParts := append(append([]string(nil), dirParts...), entry.Name)
		childPath := joinPath(childParts)

		switch entry.Kind {
		case KindDir:
			hash, size, err := r.materializeDir(workspaceID, baseCommit, childParts)
			if err != nil {
				return "", 0, err
			}
			out.Set(Entry{Name: entry.Name, Hash: hash, Size: size, Kind: KindDir})

		case KindFile:
			hash, size, err := r.materializeFile(workspaceID, childPath, entry)
			if err != nil {
				return "", 0, err
			}
			out.Set(Entry{Name: entry.Name, Hash: hash, Size: size, Kind: KindFile})
		}
	}

	hash, size := HashManifest(out)
	if err := r.adapter.WriteManifest(string(hash), out.Serialize()); err != nil {
		return "", 0, storageError(err)
	}
	return hash, size, nil
}

// materializeFile resolves one authoritative file entry to its final
// (hash, size), writing the object when the workspace supplies bytes
// directly (§4.7 step 2, file branch).
func (r *Repository) materializeFile(workspaceID, path string, baseEntry Entry) (Hash, int64, error) {
	if data, err := r.adapter.ReadWorkspaceFile(workspaceID, path); err == nil {
		hash := HashBytes(data)
		if err := r.adapter.WriteObject(string(hash), data); err != nil {
			return "", 0, storageError(err)
		}
		return hash, int64(len(data)), nil
	} else if !isNotFound(err) {
		return "", 0, storageError(err)
	}

	if ref, err := r.adapter.ReadCowRef(workspaceID, path); err == nil {
		// Open Question (a): re-derive the size from the actual object
		// rather than trusting the COW's stored size field.
		data, err := readContentObject(r.adapter, Hash(ref.Hash))
		if err != nil {
			return "", 0, err
		}
		if int64(len(data)) != ref.Size {
			return "", 0, invalidManifest(path, fmt.Errorf("cow reference size %d does not match object size %d", ref.Size, len(data)))
		}
		return Hash(ref.Hash), ref.Size, nil
	} else if !isNotFound(err) {
		return "", 0, storageError(err)
	}

	return baseEntry.Hash, baseEntry.Size, nil
}

// Publish materializes workspaceID into a new commit on branch (§4.7).
func (r *Repository) Publish(workspaceID, branch, message, author string) (string, error) {
	meta, err := workspaceMetadata(r.adapter, workspaceID)
	if err != nil {
		return "", err
	}

	rootHash, _, err := r.materializeDir(workspaceID, meta.Base, nil)
	if err != nil {
		return "", err
	}
	rootData, err := readManifestObject(r.adapter, rootHash)
	if err != nil {
		return "", err
	}

	newID := r.newID()
	if err := r.adapter.WriteRootManifest(newID, rootData); err != nil {
		return "", storageError(err)
	}
	commitMeta := storage.CommitMetadata{
		Message:   message,
		Author:    author,
		Timestamp: time.Now().UTC(),
		Parent:    meta.Base,
	}
	if err := r.adapter.WriteCommitMetadata(newID, commitMeta); err != nil {
		return "", storageError(err)
	}

	// expected is the workspace's base commit (§4.4): the branch head the
	// workspace was forked from. If no one else has advanced the branch
	// since, this is exactly the branch's current stored head. If the
	// branch does not exist yet, this is its first publish (§3: "created
	// at first write"), so expected must be "" to let the CAS create it.
	expected := meta.Base
	if _, err := r.adapter.ReadBranch(branch); err != nil {
		if !isNotFound(err) {
			return "", storageError(err)
		}
		expected = ""
	}

	if casErr := r.adapter.UpdateBranch(branch, expected, newID); casErr != nil {
		return "", wrapStorageErr(casErr, func() error { return branchConflict(branch, casErr) })
	}

	if err := r.adapter.DeleteWorkspace(workspaceID); err != nil {
		r.log.Warn("publish succeeded but workspace cleanup failed", "workspace", workspaceID, "error", err)
	}

	r.log.Info("published workspace", "workspace", workspaceID, "branch", branch, "commit", newID)
	return newID, nil
}

// DeleteWorkspace discards workspaceID without publishing.
func (r *Repository) DeleteWorkspace(workspaceID string) error {
	if err := r.adapter.DeleteWorkspace(workspaceID); err != nil {
		return storageError(err)
	}
	return nil
}

// ListBranches returns every branch name known to the adapter.
func (r *Repository) ListBranches() ([]string, error) {
	names, err := r.adapter.ListBranches()
	if err != nil {
		return nil, storageError(err)
	}
	return names, nil
}

// CurrentCommit returns branch's head commit id.
func (r *Repository) CurrentCommit(branch string) (string, error) {
	ptr, err := r.adapter.ReadBranch(branch)
	if err != nil {
		return "", wrapStorageErr(err, func() error { return branchNotFound(branch, err) })
	}
	return ptr.Head, nil
}

// CommitMetadata returns the full metadata/hash record for commitID.
func (r *Repository) CommitMetadata(commitID string) (Commit, error) {
	return loadCommit(r.adapter, commitID)
}

// History returns up to limit commits, starting at startCommit and
// walking backward through parents. limit <= 0 means unbounded.
func (r *Repository) History(startCommit string, limit int) ([]Commit, error) {
	return history(r.adapter, startCommit, limit)
}

// ResetBranch moves branch to target, enforcing ancestry unless force is
// set (§4.7).
func (r *Repository) ResetBranch(branch, target string, force bool) error {
	ptr, err := r.adapter.ReadBranch(branch)
	if err != nil {
		return wrapStorageErr(err, func() error { return branchNotFound(branch, err) })
	}
	if ptr.Head == target {
		return nil
	}
	exists, err := commitExists(r.adapter, target)
	if err != nil {
		return err
	}
	if !exists {
		return commitNotFound(target, nil)
	}
	if !force {
		ok, err := isAncestor(r.adapter, target, ptr.Head)
		if err != nil {
			return err
		}
		if !ok {
			return nonAncestorReset(target)
		}
	}
	if err := r.adapter.UpdateBranch(branch, ptr.Head, target); err != nil {
		return wrapStorageErr(err, func() error { return branchConflict(branch, err) })
	}
	r.log.Info("reset branch", "branch", branch, "from", ptr.Head, "to", target, "force", force)
	return nil
}

// IsAncestor reports whether candidate lies on target's parent chain
// (or equals it).
func (r *Repository) IsAncestor(candidate, target string) (bool, error) {
	return isAncestor(r.adapter, candidate, target)
}

// CommitsBetween returns commits from (exclusive) to to (inclusive), in
// child-to-ancestor order.
func (r *Repository) CommitsBetween(from, to string) ([]string, error) {
	return commitsBetween(r.adapter, from, to)
}

// ScrubContent destructively replaces hash's object bytes with a
// tombstone (§4.8). The tombstone is written before the object is
// deleted, so a crash between the two leaves the hash still readable.
func (r *Repository) ScrubContent(hash, reason, deletedBy string) error {
	data, err := r.adapter.ReadObject(hash)
	if err != nil {
		return wrapStorageErr(err, func() error { return fileNotFound(hash) })
	}
	tomb := storage.Tombstone{
		DeletedHash:  hash,
		Reason:       reason,
		Timestamp:    time.Now().UTC(),
		DeletedBy:    deletedBy,
		OriginalSize: int64(len(data)),
	}
	if err := r.adapter.WriteTombstone(hash, tomb); err != nil {
		return storageError(err)
	}
	if err := r.adapter.DeleteObject(hash); err != nil {
		return storageError(err)
	}
	r.log.Warn("scrubbed content", "hash", hash, "reason", reason, "by", deletedBy)
	return nil
}

// ListScrubbedContent enumerates every tombstone, with a running total of
// reclaimed bytes.
func (r *Repository) ListScrubbedContent() ([]storage.Tombstone, int64, error) {
	tombs, err := r.adapter.ListTombstones()
	if err != nil {
		return nil, 0, storageError(err)
	}
	var total int64
	for _, t := range tombs {
		total += t.OriginalSize
	}
	return tombs, total, nil
}

// WatchBranches subscribes to branch-pointer changes, if the adapter
// supports it. Adapters without a watch capability return ok=false.
func (r *Repository) WatchBranches() (events <-chan struct{}, stop func(), ok bool) {
	type watcher interface {
		Watch() (<-chan struct{}, func(), error)
	}
	w, supported := r.adapter.(watcher)
	if !supported {
		return nil, func() {}, false
	}
	ch, stopFn, err := w.Watch()
	if err != nil {
		r.log.Warn("branch watch unavailable", "error", err)
		return nil, func() {}, false
	}
	return ch, stopFn, true
}
