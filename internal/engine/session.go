package engine

import (
	"sort"

	"github.com/rybkr/akashica/internal/storage"
)

// changesetKind tags which variant of changeset a Session is bound to
// (§9: "a tagged variant, not inheritance").
type changesetKind int

const (
	changesetCommit changesetKind = iota
	changesetWorkspace
)

// Session is a stateful handle over a changeset (a commit or a workspace)
// and the sole read/write surface callers use (§4.6). Sessions hold no
// buffered state of their own; every call is a fresh round-trip through
// the adapter.
type Session struct {
	adapter storage.Adapter
	kind    changesetKind

	commitID string // set when kind == changesetCommit

	workspaceID string // set when kind == changesetWorkspace
	baseCommit  string
}

// NewCommitSession binds a read-only session to commitID.
func NewCommitSession(adapter storage.Adapter, commitID string) *Session {
	return &Session{adapter: adapter, kind: changesetCommit, commitID: commitID}
}

// NewWorkspaceSession binds a read-write session to workspaceID, whose
// base commit is baseCommit.
func NewWorkspaceSession(adapter storage.Adapter, workspaceID, baseCommit string) *Session {
	return &Session{adapter: adapter, kind: changesetWorkspace, workspaceID: workspaceID, baseCommit: baseCommit}
}

// IsWorkspace reports whether the session is bound to a mutable workspace.
func (s *Session) IsWorkspace() bool { return s.kind == changesetWorkspace }

// WorkspaceID returns the bound workspace id, or "" for a commit session.
func (s *Session) WorkspaceID() string { return s.workspaceID }

// ReadFile returns the bytes at path, resolving through the workspace
// overlay or the commit tree as appropriate.
func (s *Session) ReadFile(path string) ([]byte, error) {
	if s.kind == changesetWorkspace {
		return resolveInWorkspace(s.adapter, s.workspaceID, s.baseCommit, path)
	}
	return s.readFileFromCommit(path)
}

func (s *Session) readFileFromCommit(path string) ([]byte, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fileNotFound(path)
	}
	dirParts, leaf := parts[:len(parts)-1], parts[len(parts)-1]
	dir, err := loadBaseManifest(s.adapter, s.commitID, dirParts)
	if err != nil {
		return nil, err
	}
	entry, ok := dir.Lookup(leaf)
	if !ok || entry.Kind != KindFile {
		return nil, fileNotFound(path)
	}
	return readContentObject(s.adapter, entry.Hash)
}

// ListDirectory returns the sorted entries at dirPath.
func (s *Session) ListDirectory(dirPath string) ([]Entry, error) {
	var entries []Entry
	var err error
	if s.kind == changesetWorkspace {
		entries, err = listInWorkspace(s.adapter, s.workspaceID, s.baseCommit, dirPath)
	} else {
		var dir *Manifest
		dir, err = loadBaseManifest(s.adapter, s.commitID, splitPath(dirPath))
		if err == nil {
			entries = dir.Entries()
		}
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// FileExists reports whether path resolves successfully (§4.6: "defined
// via readFile success").
func (s *Session) FileExists(path string) bool {
	_, err := s.ReadFile(path)
	return err == nil
}

// WriteFile writes data at path. Only valid on a workspace session.
func (s *Session) WriteFile(path string, data []byte) error {
	if s.kind != changesetWorkspace {
		return sessionReadOnly()
	}
	return writeFile(s.adapter, s.workspaceID, s.baseCommit, path, data)
}

// DeleteFile removes path. Only valid on a workspace session.
func (s *Session) DeleteFile(path string) error {
	if s.kind != changesetWorkspace {
		return sessionReadOnly()
	}
	return deleteFile(s.adapter, s.workspaceID, s.baseCommit, path)
}

// MoveFile renames from to to, preserving content identity via a COW
// reference. Only valid on a workspace session.
func (s *Session) MoveFile(from, to string) error {
	if s.kind != changesetWorkspace {
		return sessionReadOnly()
	}
	return moveFile(s.adapter, s.workspaceID, s.baseCommit, from, to)
}

// Status reports added/modified/deleted paths relative to the base
// commit. Only valid on a workspace session.
func (s *Session) Status() ([]StatusEntry, error) {
	if s.kind != changesetWorkspace {
		return nil, sessionReadOnly()
	}
	return workspaceStatus(s.adapter, s.workspaceID, s.baseCommit)
}

// Diff compares the workspace against an arbitrary commit rather than its
// own base. It is a thin wrapper over Status's machinery: a workspace
// created from `against` would produce the same comparison, so diff
// against an alternate commit is realized by treating that commit as the
// comparison base for the same overlay. Only directories that have an
// overlay manifest in this workspace are compared; paths in untouched
// directories are not reported, even where the workspace's base and
// `against` differ there.
func (s *Session) Diff(against string) ([]StatusEntry, error) {
	if s.kind != changesetWorkspace {
		return nil, sessionReadOnly()
	}
	return workspaceStatus(s.adapter, s.workspaceID, against)
}
