package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/rybkr/akashica/internal/storage"
)

// rootManifestPath is the sentinel overlay-manifest key for the repository
// root (§6: "__root__", to avoid an empty key).
const rootManifestPath = "__root__"

// workspaceManifestKey maps a directory's path components to the storage
// key used for its overlay manifest.
func workspaceManifestKey(dirParts []string) string {
	if len(dirParts) == 0 {
		return rootManifestPath
	}
	return joinPath(dirParts)
}

// newWorkspaceID mints a fresh "@<base>$<suffix>" workspace id.
func newWorkspaceID(base string) string {
	return fmt.Sprintf("%s$%s", base, uuid.NewString())
}

// loadOverlayManifest reads and parses the overlay manifest for dirParts,
// returning (nil, false, nil) if none has been written yet in this
// workspace.
func loadOverlayManifest(adapter storage.Adapter, workspaceID string, dirParts []string) (*Manifest, bool, error) {
	data, err := adapter.ReadWorkspaceManifest(workspaceID, workspaceManifestKey(dirParts))
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, storageError(err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, false, invalidManifest(joinPath(dirParts), err)
	}
	return m, true, nil
}

// loadBaseManifest resolves dirParts within baseCommit's tree and returns
// the directory's manifest, descending from the root manifest hash by hash.
func loadBaseManifest(adapter storage.Adapter, baseCommit string, dirParts []string) (*Manifest, error) {
	root, err := adapter.ReadRootManifest(baseCommit)
	if err != nil {
		return nil, wrapStorageErr(err, func() error { return commitNotFound(baseCommit, err) })
	}
	m, err := ParseManifest(root)
	if err != nil {
		return nil, invalidManifest("", err)
	}
	for i, part := range dirParts {
		entry, ok := m.Lookup(part)
		if !ok || entry.Kind != KindDir {
			return nil, fileNotFound(joinPath(dirParts[:i+1]))
		}
		childData, err := readManifestObject(adapter, entry.Hash)
		if err != nil {
			return nil, err
		}
		m, err = ParseManifest(childData)
		if err != nil {
			return nil, invalidManifest(joinPath(dirParts[:i+1]), err)
		}
	}
	return m, nil
}

func readManifestObject(adapter storage.Adapter, hash Hash) ([]byte, error) {
	data, err := adapter.ReadManifest(string(hash))
	if err != nil {
		return nil, wrapStorageErr(err, func() error { return invalidManifest(string(hash), err) })
	}
	return data, nil
}

func readContentObject(adapter storage.Adapter, hash Hash) ([]byte, error) {
	data, err := adapter.ReadObject(string(hash))
	if err != nil {
		if isNotFound(err) {
			if tomb, tErr := adapter.ReadTombstone(string(hash)); tErr == nil {
				return nil, scrubbedContent(string(hash), tomb)
			}
		}
		return nil, wrapStorageErr(err, func() error { return fileNotFound(string(hash)) })
	}
	return data, nil
}

// resolveInWorkspace implements the §4.5 overlay read precedence for path
// (a slash-separated repository path) rooted at workspaceID/baseCommit. It returns the
// resolved content bytes.
func resolveInWorkspace(adapter storage.Adapter, workspaceID, baseCommit string, path string) ([]byte, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, fileNotFound(path)
	}
	dirParts, leaf := parts[:len(parts)-1], parts[len(parts)-1]

	overlay, hasOverlay, err := loadOverlayManifest(adapter, workspaceID, dirParts)
	if err != nil {
		return nil, err
	}
	if hasOverlay {
		if _, ok := overlay.Lookup(leaf); !ok {
			return nil, fileNotFound(path)
		}
	}

	if data, err := adapter.ReadWorkspaceFile(workspaceID, path); err == nil {
		return data, nil
	} else if !isNotFound(err) {
		return nil, storageError(err)
	}

	if ref, err := adapter.ReadCowRef(workspaceID, path); err == nil {
		return readContentObject(adapter, Hash(ref.Hash))
	} else if !isNotFound(err) {
		return nil, storageError(err)
	}

	baseDir, err := loadBaseManifest(adapter, baseCommit, dirParts)
	if err != nil {
		return nil, err
	}
	entry, ok := baseDir.Lookup(leaf)
	if !ok || entry.Kind != KindFile {
		return nil, fileNotFound(path)
	}
	return readContentObject(adapter, entry.Hash)
}

// listInWorkspace implements §4.6 listDirectory for a workspace: the
// overlay manifest is authoritative when present, else the base listing.
func listInWorkspace(adapter storage.Adapter, workspaceID, baseCommit string, dirPath string) ([]Entry, error) {
	dirParts := splitPath(dirPath)
	overlay, hasOverlay, err := loadOverlayManifest(adapter, workspaceID, dirParts)
	if err != nil {
		return nil, err
	}
	if hasOverlay {
		return overlay.Entries(), nil
	}
	base, err := loadBaseManifest(adapter, baseCommit, dirParts)
	if err != nil {
		return nil, err
	}
	return base.Entries(), nil
}

// seedOverlayManifest loads the current overlay manifest for dirParts, or,
// if absent, seeds one from the base commit's directory at dirParts (§4.5:
// "the engine must seed the overlay manifest from the base directory so
// that subsequent deletions are unambiguous").
func seedOverlayManifest(adapter storage.Adapter, workspaceID, baseCommit string, dirParts []string) (*Manifest, error) {
	overlay, ok, err := loadOverlayManifest(adapter, workspaceID, dirParts)
	if err != nil {
		return nil, err
	}
	if ok {
		return overlay, nil
	}
	base, err := loadBaseManifest(adapter, baseCommit, dirParts)
	if err != nil {
		if engErr, isEng := err.(*EngineError); isEng && engErr.Kind == KindFileNotFound {
			return &Manifest{}, nil
		}
		return nil, err
	}
	return NewManifest(base.Entries()), nil
}

// applyBottomUp walks path's enclosing directories bottom-up, setting (or
// removing, when set is false) the leaf entry and propagating the
// resulting manifest hash/size up to the parent at every level (§4.5 step
// 2). It is the shared machinery behind writeFile, deleteFile's manifest
// half, and the destination side of moveFile.
func applyBottomUp(adapter storage.Adapter, workspaceID, baseCommit, path string, leaf Entry, set bool) error {
	parts := splitPath(path)
	if len(parts) == 0 {
		return fmt.Errorf("engine: empty path")
	}

	name := parts[len(parts)-1]
	childEntry := leaf
	haveChild := set

	for d := len(parts) - 1; d >= 0; d-- {
		dirParts := parts[:d]
		manifest, err := seedOverlayManifest(adapter, workspaceID, baseCommit, dirParts)
		if err != nil {
			return err
		}
		if haveChild {
			manifest.Set(childEntry)
		} else {
			manifest.Remove(name)
		}

		data := manifest.Serialize()
		if err := adapter.WriteWorkspaceManifest(workspaceID, workspaceManifestKey(dirParts), data); err != nil {
			return storageError(err)
		}

		if d == 0 {
			break
		}
		hash, size := HashManifest(manifest)
		name = parts[d-1]
		childEntry = Entry{Name: name, Hash: hash, Size: size, Kind: KindDir}
		haveChild = true
	}
	return nil
}

// writeFile performs the §4.5 write path for content bytes at path: write
// the object, then propagate a file entry bottom-up.
func writeFile(adapter storage.Adapter, workspaceID, baseCommit, path string, data []byte) error {
	hash := HashBytes(data)
	if err := adapter.WriteObject(string(hash), data); err != nil {
		return storageError(err)
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		return fmt.Errorf("engine: empty path")
	}
	if err := adapter.WriteWorkspaceFile(workspaceID, path, data); err != nil {
		return storageError(err)
	}
	_ = adapter.DeleteCowRef(workspaceID, path) // a fresh write supersedes any prior COW ref
	leaf := Entry{Name: parts[len(parts)-1], Hash: hash, Size: int64(len(data)), Kind: KindFile}
	return applyBottomUp(adapter, workspaceID, baseCommit, path, leaf, true)
}

// deleteFile removes path from the workspace: the workspace file (if any,
// tolerating absence since the file may exist only in the base), then the
// bottom-up "remove" manifest update.
func deleteFile(adapter storage.Adapter, workspaceID, baseCommit, path string) error {
	if err := adapter.DeleteWorkspaceFile(workspaceID, path); err != nil && !isNotFound(err) {
		return storageError(err)
	}
	_ = adapter.DeleteCowRef(workspaceID, path)
	return applyBottomUp(adapter, workspaceID, baseCommit, path, Entry{}, false)
}

// moveFile renames from to to. Content identity is preserved via a COW
// reference when possible (reading the source's current hash/size without
// copying bytes); the source is then removed.
func moveFile(adapter storage.Adapter, workspaceID, baseCommit, from, to string) error {
	hash, size, err := statFile(adapter, workspaceID, baseCommit, from)
	if err != nil {
		return err
	}

	toParts := splitPath(to)
	if len(toParts) == 0 {
		return fmt.Errorf("engine: empty destination path")
	}
	ref := storage.CowRef{BasePath: from, Hash: string(hash), Size: size}
	if err := adapter.WriteCowRef(workspaceID, to, ref); err != nil {
		return storageError(err)
	}
	leaf := Entry{Name: toParts[len(toParts)-1], Hash: hash, Size: size, Kind: KindFile}
	if err := applyBottomUp(adapter, workspaceID, baseCommit, to, leaf, true); err != nil {
		return err
	}

	return deleteFile(adapter, workspaceID, baseCommit, from)
}

// statFile resolves path to its current (hash, size) without reading its
// full bytes when a cheaper route exists (workspace file still requires a
// read-back under today's adapter contract, since no adapter exposes a
// bare stat; base and COW entries are metadata-only).
func statFile(adapter storage.Adapter, workspaceID, baseCommit, path string) (Hash, int64, error) {
	parts := splitPath(path)
	if len(parts) == 0 {
		return "", 0, fileNotFound(path)
	}
	dirParts, leafName := parts[:len(parts)-1], parts[len(parts)-1]

	overlay, hasOverlay, err := loadOverlayManifest(adapter, workspaceID, dirParts)
	if err != nil {
		return "", 0, err
	}
	if hasOverlay {
		if _, ok := overlay.Lookup(leafName); !ok {
			return "", 0, fileNotFound(path)
		}
	}

	if data, err := adapter.ReadWorkspaceFile(workspaceID, path); err == nil {
		h := HashBytes(data)
		return h, int64(len(data)), nil
	} else if !isNotFound(err) {
		return "", 0, storageError(err)
	}

	if ref, err := adapter.ReadCowRef(workspaceID, path); err == nil {
		return Hash(ref.Hash), ref.Size, nil
	} else if !isNotFound(err) {
		return "", 0, storageError(err)
	}

	baseDir, err := loadBaseManifest(adapter, baseCommit, dirParts)
	if err != nil {
		return "", 0, err
	}
	entry, ok := baseDir.Lookup(leafName)
	if !ok || entry.Kind != KindFile {
		return "", 0, fileNotFound(path)
	}
	return entry.Hash, entry.Size, nil
}

// StatusEntry describes one path's change relative to the base commit.
type StatusEntry struct {
	Path   string
	Change string // "added", "modified", "deleted"
}

// workspaceStatus recursively compares the overlay (where present) against
// the base tree, per §4.5: a directory whose overlay manifest is absent
// contributes nothing (unchanged).
func workspaceStatus(adapter storage.Adapter, workspaceID, baseCommit string) ([]StatusEntry, error) {
	var out []StatusEntry
	var walk func(dirParts []string) error
	walk = func(dirParts []string) error {
		overlay, hasOverlay, err := loadOverlayManifest(adapter, workspaceID, dirParts)
		if err != nil {
			return err
		}
		if !hasOverlay {
			return nil
		}
		base, err := loadBaseManifest(adapter, baseCommit, dirParts)
		baseMissing := err != nil && isFileNotFound(err)
		if err != nil && !baseMissing {
			return err
		}
		if baseMissing {
			base = &Manifest{}
		}

		overlayNames := map[string]Entry{}
		for _, e := range overlay.Entries() {
			overlayNames[e.Name] = e
		}
		baseNames := map[string]Entry{}
		for _, e := range base.Entries() {
			baseNames[e.Name] = e
		}

		names := make([]string, 0, len(overlayNames)+len(baseNames))
		seen := map[string]bool{}
		for n := range overlayNames {
			names = append(names, n)
			seen[n] = true
		}
		for n := range baseNames {
			if !seen[n] {
				names = append(names, n)
			}
		}
		sort.Strings(names)

		for _, name := range names {
			childParts := append(append([]string(nil), dirParts...), name)
			childPath := joinPath(childParts)
			ov, inOverlay := overlayNames[name]
			bs, inBase := baseNames[name]

			switch {
			case inOverlay && !inBase:
				if ov.Kind == KindDir {
					if err := walkAllAdded(adapter, workspaceID, ov, childParts, &out); err != nil {
						return err
					}
				} else {
					out = append(out, StatusEntry{Path: childPath, Change: "added"})
				}
			case !inOverlay && inBase:
				if bs.Kind == KindDir {
					if err := markAllDeleted(adapter, bs, childParts, &out); err != nil {
						return err
					}
				} else {
					out = append(out, StatusEntry{Path: childPath, Change: "deleted"})
				}
			case inOverlay && inBase:
				if ov.Kind != bs.Kind {
					out = append(out, StatusEntry{Path: childPath, Change: "modified"})
					continue
				}
				if ov.Kind == KindDir {
					if err := walk(childParts); err != nil {
						return err
					}
				} else if ov.Hash != bs.Hash || ov.Size != bs.Size {
					out = append(out, StatusEntry{Path: childPath, Change: "modified"})
				}
			}
		}
		return nil
	}
	if err := walk(nil); err != nil {
		return nil, err
	}
	return out, nil
}

// walkAllAdded records as "added" every file reachable from the manifest
// object stored under dirEntry.Hash, since the whole subtree is new
// relative to the base. The workspace's overlay manifests are not read;
// when no manifest object is stored under that hash, only the directory
// path itself is recorded.
func walkAllAdded(adapter storage.Adapter, workspaceID string, dirEntry Entry, dirParts []string, out *[]StatusEntry) error {
	data, err := readManifestObject(adapter, dirEntry.Hash)
	if err != nil {
		// Newly created directories may only exist as an overlay manifest,
		// never materialized as an object until publish; fall through with
		// no children listed rather than failing status entirely.
		*out = append(*out, StatusEntry{Path: joinPath(dirParts), Change: "added"})
		return nil
	}
	m, err := ParseManifest(data)
	if err != nil {
		return invalidManifest(joinPath(dirParts), err)
	}
	for _, e := range m.Entries() {
		childParts := append(append([]string(nil), dirParts...), e.Name)
		if e.Kind == KindDir {
			if err := walkAllAdded(adapter, workspaceID, e, childParts, out); err != nil {
				return err
			}
		} else {
			*out = append(*out, StatusEntry{Path: joinPath(childParts), Change: "added"})
		}
	}
	return nil
}

// markAllDeleted records path and (for a directory) everything reachable
// from its base manifest as "deleted", mirroring walkAllAdded for the
// opposite side of the diff.
func markAllDeleted(adapter storage.Adapter, dirEntry Entry, dirParts []string, out *[]StatusEntry) error {
	data, err := readManifestObject(adapter, dirEntry.Hash)
	if err != nil {
		*out = append(*out, StatusEntry{Path: joinPath(dirParts), Change: "deleted"})
		return nil
	}
	m, err := ParseManifest(data)
	if err != nil {
		return invalidManifest(joinPath(dirParts), err)
	}
	for _, e := range m.Entries() {
		childParts := append(append([]string(nil), dirParts...), e.Name)
		if e.Kind == KindDir {
			if err := markAllDeleted(adapter, e, childParts, out); err != nil {
				return err
			}
		} else {
			*out = append(*out, StatusEntry{Path: joinPath(childParts), Change: "deleted"})
		}
	}
	return nil
}

func isFileNotFound(err error) bool {
	e, ok := err.(*EngineError)
	return ok && e.Kind == KindFileNotFound
}

// workspaceMetadata is a thin read-through to the adapter's stored record.
func workspaceMetadata(adapter storage.Adapter, workspaceID string) (storage.WorkspaceMetadata, error) {
	meta, err := adapter.ReadWorkspaceMetadata(workspaceID)
	if err != nil {
		return storage.WorkspaceMetadata{}, wrapStorageErr(err, func() error { return workspaceNotFound(workspaceID, err) })
	}
	return meta, nil
}

func newWorkspaceMetadata(baseCommit, creator string) storage.WorkspaceMetadata {
	return storage.WorkspaceMetadata{
		Base:      baseCommit,
		Creator:   creator,
		CreatedAt: time.Now().UTC(),
	}
}
