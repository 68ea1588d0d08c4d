package storage

// Adapter is the narrow, blocking-equivalent contract every layer of the
// engine is built on (§4.1). It is the engine's sole polymorphic boundary:
// local filesystems, single-file embedded stores, and (eventually) object
// stores are all interchangeable behind it.
//
// Adapters guarantee durable, atomic per-key writes — a read that follows a
// successful write to the same key observes exactly those bytes — but make
// no multi-key atomicity promise. UpdateBranch is the one operation that
// MUST behave as a true compare-and-swap; implementations backed by a
// store without a native if-match primitive are only advisory and callers
// must tolerate lost updates there.
type Adapter interface {
	// Objects and manifests are logically identical (opaque content
	// addressed by the caller-supplied hash) but are kept in distinct key
	// spaces so implementations may choose different backing stores for
	// each.
	ReadObject(hash string) ([]byte, error)
	WriteObject(hash string, data []byte) error
	ObjectExists(hash string) (bool, error)
	DeleteObject(hash string) error

	ReadManifest(hash string) ([]byte, error)
	WriteManifest(hash string, data []byte) error

	ReadRootManifest(commitID string) ([]byte, error)
	WriteRootManifest(commitID string, data []byte) error
	ReadCommitMetadata(commitID string) (CommitMetadata, error)
	WriteCommitMetadata(commitID string, meta CommitMetadata) error

	ListBranches() ([]string, error)
	ReadBranch(name string) (BranchPointer, error)
	// UpdateBranch performs a compare-and-swap: it fails with ErrConflict
	// if the stored head is not equal to expectedCurrent. expectedCurrent
	// == "" means "the branch must not yet exist"; newCommit == ""
	// deletes the branch (not exercised by the engine today, but kept
	// orthogonal to the CAS contract for adapters that want it).
	UpdateBranch(name string, expectedCurrent, newCommit string) error

	ReadWorkspaceMetadata(workspaceID string) (WorkspaceMetadata, error)
	WriteWorkspaceMetadata(workspaceID string, meta WorkspaceMetadata) error
	DeleteWorkspaceMetadata(workspaceID string) error
	WorkspaceExists(workspaceID string) (bool, error)

	ReadWorkspaceFile(workspaceID, path string) ([]byte, error)
	WriteWorkspaceFile(workspaceID, path string, data []byte) error
	DeleteWorkspaceFile(workspaceID, path string) error

	ReadWorkspaceManifest(workspaceID, dirPath string) ([]byte, error)
	WriteWorkspaceManifest(workspaceID, dirPath string, data []byte) error
	DeleteWorkspaceManifest(workspaceID, dirPath string) error

	ReadCowRef(workspaceID, path string) (CowRef, error)
	WriteCowRef(workspaceID, path string, ref CowRef) error
	DeleteCowRef(workspaceID, path string) error

	// DeleteWorkspace removes every key scoped to workspaceID: metadata,
	// files, overlay manifests, and COW references.
	DeleteWorkspace(workspaceID string) error

	ReadTombstone(hash string) (Tombstone, error)
	WriteTombstone(hash string, tomb Tombstone) error
	ListTombstones() ([]Tombstone, error)
}
