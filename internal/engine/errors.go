package engine

import (
	"errors"
	"fmt"

	"github.com/rybkr/akashica/internal/storage"
)

// Kind is the engine's conceptual error-kind enum (§7). It is exposed
// alongside Go's usual errors.Is/As so callers can either match a kind or
// a specific sentinel.
type Kind int

const (
	// KindUnknown is the zero value; EngineErrors always set a real kind.
	KindUnknown Kind = iota
	KindFileNotFound
	KindCommitNotFound
	KindBranchNotFound
	KindWorkspaceNotFound
	KindInvalidManifest
	KindSessionReadOnly
	KindBranchConflict
	KindNonAncestorReset
	KindScrubbedContent
	KindStorageError
)

func (k Kind) String() string {
	switch k {
	case KindFileNotFound:
		return "file-not-found"
	case KindCommitNotFound:
		return "commit-not-found"
	case KindBranchNotFound:
		return "branch-not-found"
	case KindWorkspaceNotFound:
		return "workspace-not-found"
	case KindInvalidManifest:
		return "invalid-manifest"
	case KindSessionReadOnly:
		return "session-read-only"
	case KindBranchConflict:
		return "branch-conflict"
	case KindNonAncestorReset:
		return "non-ancestor-reset"
	case KindScrubbedContent:
		return "scrubbed-content"
	case KindStorageError:
		return "storage-error"
	default:
		return "unknown"
	}
}

// EngineError is the concrete error type surfaced by every engine
// operation that fails. Kind lets callers switch without string matching;
// Unwrap lets them errors.Is/As against the wrapped cause or a sentinel.
type EngineError struct {
	Kind      Kind
	Path      string // repository path involved, if any
	Tombstone *storage.Tombstone
	cause     error
}

func (e *EngineError) Error() string {
	msg := e.Kind.String()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Path)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.cause }

func newErr(kind Kind, path string, cause error) *EngineError {
	return &EngineError{Kind: kind, Path: path, cause: cause}
}

// Sentinel errors for the common lookups, matching the spec's error-kind
// vocabulary (§7) and the teacher's errors.Is-based idiom.
var (
	ErrFileNotFound      = errors.New("engine: file not found")
	ErrCommitNotFound    = errors.New("engine: commit not found")
	ErrBranchNotFound    = errors.New("engine: branch not found")
	ErrWorkspaceNotFound = errors.New("engine: workspace not found")
	ErrInvalidManifest   = errors.New("engine: invalid manifest")
	ErrSessionReadOnly   = errors.New("engine: session is read-only")
	ErrBranchConflict    = errors.New("engine: branch compare-and-swap conflict")
	ErrNonAncestorReset  = errors.New("engine: reset target is not an ancestor of current head")
	ErrScrubbedContent   = errors.New("engine: content has been scrubbed")
)

func sentinelFor(kind Kind) error {
	switch kind {
	case KindFileNotFound:
		return ErrFileNotFound
	case KindCommitNotFound:
		return ErrCommitNotFound
	case KindBranchNotFound:
		return ErrBranchNotFound
	case KindWorkspaceNotFound:
		return ErrWorkspaceNotFound
	case KindInvalidManifest:
		return ErrInvalidManifest
	case KindSessionReadOnly:
		return ErrSessionReadOnly
	case KindBranchConflict:
		return ErrBranchConflict
	case KindNonAncestorReset:
		return ErrNonAncestorReset
	case KindScrubbedContent:
		return ErrScrubbedContent
	default:
		return nil
	}
}

// Is lets errors.Is(err, ErrFileNotFound) succeed against an *EngineError
// of the matching kind, without requiring every call site to unwrap twice.
func (e *EngineError) Is(target error) bool {
	return sentinelFor(e.Kind) == target
}

func fileNotFound(path string) error { return newErr(KindFileNotFound, path, nil) }

func commitNotFound(id string, cause error) error {
	return newErr(KindCommitNotFound, id, cause)
}

func branchNotFound(name string, cause error) error {
	return newErr(KindBranchNotFound, name, cause)
}

func workspaceNotFound(id string, cause error) error {
	return newErr(KindWorkspaceNotFound, id, cause)
}

func invalidManifest(path string, cause error) error {
	return newErr(KindInvalidManifest, path, cause)
}

func sessionReadOnly() error { return newErr(KindSessionReadOnly, "", nil) }

func branchConflict(name string, cause error) error {
	return newErr(KindBranchConflict, name, cause)
}

func nonAncestorReset(target string) error {
	return newErr(KindNonAncestorReset, target, nil)
}

func scrubbedContent(hash string, tomb storage.Tombstone) error {
	e := newErr(KindScrubbedContent, hash, nil)
	e.Tombstone = &tomb
	return e
}

func storageError(cause error) error { return newErr(KindStorageError, "", cause) }

// wrapStorageErr translates a storage.Adapter error into the matching
// engine Kind; a plain storage.ErrNotFound becomes the error built by
// notFound (chosen by the caller, since "not found" means different things
// for an object, a commit, a branch, or a workspace).
func wrapStorageErr(err error, notFound func() error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return notFound()
	}
	return storageError(err)
}
