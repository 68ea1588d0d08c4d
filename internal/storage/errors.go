package storage

import "errors"

// ErrNotFound is returned by any read operation (object, manifest, commit,
// branch, workspace file/manifest/cow-ref, tombstone) whose key is absent.
// Callers distinguish "absent" from other failures with errors.Is.
var ErrNotFound = errors.New("storage: key not found")

// ErrConflict is returned by UpdateBranch when the stored head does not
// equal the caller's expected value (including existence mismatches: the
// branch is missing but a head was expected, or it exists but none was).
var ErrConflict = errors.New("storage: branch compare-and-swap conflict")
