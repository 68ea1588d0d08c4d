package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EntryKind distinguishes a file entry from a directory entry in a manifest.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDir
)

// Entry is one line of a serialized manifest: a named reference to either a
// content object (file) or a child manifest (directory).
type Entry struct {
	Name string
	Hash Hash
	Size int64
	Kind EntryKind
}

// Manifest is the parsed, in-memory form of a directory listing. Entries
// are kept in canonical order (sorted by serialized line) so that Serialize
// never has to re-sort on its own — Set re-sorts after each change and
// Remove keeps the existing order.
type Manifest struct {
	entries []Entry
}

// NewManifest builds a Manifest from entries in any order, sorting them by
// serialized line as §4.2 requires for a canonical form.
func NewManifest(entries []Entry) *Manifest {
	m := &Manifest{entries: append([]Entry(nil), entries...)}
	m.sort()
	return m
}

func (m *Manifest) sort() {
	sort.Slice(m.entries, func(i, j int) bool {
		return entryLine(m.entries[i]) < entryLine(m.entries[j])
	})
}

// Entries returns the manifest's entries in canonical (sorted-line) order.
func (m *Manifest) Entries() []Entry {
	return append([]Entry(nil), m.entries...)
}

// Lookup returns the entry named name, if present.
func (m *Manifest) Lookup(name string) (Entry, bool) {
	for _, e := range m.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Set inserts or replaces the entry named e.Name.
func (m *Manifest) Set(e Entry) {
	for i, existing := range m.entries {
		if existing.Name == e.Name {
			m.entries[i] = e
			m.sort()
			return
		}
	}
	m.entries = append(m.entries, e)
	m.sort()
}

// Remove deletes the entry named name, if present.
func (m *Manifest) Remove(name string) {
	for i, e := range m.entries {
		if e.Name == name {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			return
		}
	}
}

// entryLine renders one canonical record line: HASH:SIZE:NAME, with a
// trailing "/" on the name iff the entry is a directory.
func entryLine(e Entry) string {
	name := e.Name
	if e.Kind == KindDir {
		name += "/"
	}
	return fmt.Sprintf("%s:%d:%s", e.Hash, e.Size, name)
}

// Serialize renders the manifest to its canonical byte form (§4.2): sorted
// newline-delimited records with no trailing newline. An empty manifest
// serializes to zero bytes.
func (m *Manifest) Serialize() []byte {
	if len(m.entries) == 0 {
		return nil
	}
	lines := make([]string, len(m.entries))
	for i, e := range m.entries {
		lines[i] = entryLine(e)
	}
	return []byte(strings.Join(lines, "\n"))
}

// ParseManifest decodes canonical manifest bytes into a Manifest. Empty
// input parses to an empty manifest (the empty-directory case).
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return &Manifest{}, nil
	}
	lines := strings.Split(string(data), "\n")
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("malformed manifest line: %q", line)
		}
		hash, sizeStr, name := parts[0], parts[1], parts[2]
		size, err := strconv.ParseInt(sizeStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed manifest size in %q: %w", line, err)
		}
		kind := KindFile
		if strings.HasSuffix(name, "/") {
			kind = KindDir
			name = strings.TrimSuffix(name, "/")
		}
		h, err := NewHash(hash)
		if err != nil {
			return nil, fmt.Errorf("malformed manifest hash in %q: %w", line, err)
		}
		entries = append(entries, Entry{Name: name, Hash: h, Size: size, Kind: kind})
	}
	m := &Manifest{entries: entries}
	m.sort()
	return m, nil
}

// HashManifest serializes m and returns its content hash and byte length,
// the pair a parent directory's entry needs after a write (§4.5 step 2).
func HashManifest(m *Manifest) (Hash, int64) {
	data := m.Serialize()
	return HashBytes(data), int64(len(data))
}

// splitPath breaks a repository path into its ordered non-empty components.
// The root path ("") has zero components.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// joinPath is the inverse of splitPath.
func joinPath(parts []string) string {
	return strings.Join(parts, "/")
}
