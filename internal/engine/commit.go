package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rybkr/akashica/internal/storage"
)

// Commit is the in-memory view of a commit record: its id, root-manifest
// hash, and metadata.
type Commit struct {
	ID        string
	RootHash  Hash
	RootSize  int64
	Message   string
	Author    string
	Timestamp time.Time
	Parent    string
	HasParent bool
}

// CommitIDStrategy generates a fresh, unique commit id. The engine treats
// the result as opaque; it is never parsed back apart from equality.
type CommitIDStrategy func() string

// UUIDCommitIDs returns a strategy that mints ids of the form "@<uuid>",
// the default — grounded on the workspace suffix generator in
// workspace.go, since
// both need the same uniqueness guarantee without a shared counter.
func UUIDCommitIDs() CommitIDStrategy {
	return func() string {
		return "@" + uuid.NewString()
	}
}

// MonotonicCommitIDs returns a strategy that mints ids "@1", "@2", … in
// order. It is only safe for a single-process repository: the counter is
// not coordinated through the storage adapter.
func MonotonicCommitIDs() CommitIDStrategy {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("@%d", n)
	}
}

// loadCommit reads a commit's metadata and root manifest hash/size from the
// adapter, translating "not found" into a commit-not-found engine error.
func loadCommit(adapter storage.Adapter, id string) (Commit, error) {
	meta, err := adapter.ReadCommitMetadata(id)
	if err != nil {
		return Commit{}, wrapStorageErr(err, func() error { return commitNotFound(id, err) })
	}
	root, err := adapter.ReadRootManifest(id)
	if err != nil {
		return Commit{}, wrapStorageErr(err, func() error { return commitNotFound(id, err) })
	}
	c := Commit{
		ID:        id,
		RootHash:  HashBytes(root),
		RootSize:  int64(len(root)),
		Message:   meta.Message,
		Author:    meta.Author,
		Timestamp: meta.Timestamp,
		Parent:    meta.Parent,
		HasParent: meta.Parent != "",
	}
	return c, nil
}

// commitExists reports whether id names a commit, without surfacing a
// commit-not-found error for the common existence-check case.
func commitExists(adapter storage.Adapter, id string) (bool, error) {
	if _, err := adapter.ReadCommitMetadata(id); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, storageError(err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if err == storage.ErrNotFound {
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// isAncestor reports whether candidate equals target or lies on target's
// parent chain (§4.3): a straight-line walk, since this engine's commits
// have a single parent.
func isAncestor(adapter storage.Adapter, candidate, target string) (bool, error) {
	cur := target
	for {
		if cur == candidate {
			return true, nil
		}
		meta, err := adapter.ReadCommitMetadata(cur)
		if err != nil {
			return false, wrapStorageErr(err, func() error { return commitNotFound(cur, err) })
		}
		if meta.Parent == "" {
			return false, nil
		}
		cur = meta.Parent
	}
}

// commitsBetween walks from "to" back to "from" (exclusive of "from",
// inclusive of "to"), returning ids in child-to-ancestor order. It fails if
// "from" is not actually an ancestor of "to".
func commitsBetween(adapter storage.Adapter, from, to string) ([]string, error) {
	var ids []string
	cur := to
	for {
		if cur == from {
			return ids, nil
		}
		ids = append(ids, cur)
		meta, err := adapter.ReadCommitMetadata(cur)
		if err != nil {
			return nil, wrapStorageErr(err, func() error { return commitNotFound(cur, err) })
		}
		if meta.Parent == "" {
			return nil, fmt.Errorf("engine: %q is not an ancestor of %q", from, to)
		}
		cur = meta.Parent
	}
}

// history walks backward from start, following parent links, yielding at
// most limit commits (start included). limit <= 0 means unbounded.
func history(adapter storage.Adapter, start string, limit int) ([]Commit, error) {
	var out []Commit
	cur := start
	for cur != "" {
		if limit > 0 && len(out) >= limit {
			break
		}
		c, err := loadCommit(adapter, cur)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		cur = c.Parent
	}
	return out, nil
}
