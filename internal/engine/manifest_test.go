package engine

import "testing"

func TestHashHello(t *testing.T) {
	got := HashBytes([]byte("hello"))
	want := Hash("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	if got != want {
		t.Fatalf("HashBytes(hello) = %s, want %s", got, want)
	}
}

func TestManifestSerializeEmpty(t *testing.T) {
	m := NewManifest(nil)
	if data := m.Serialize(); len(data) != 0 {
		t.Fatalf("expected empty serialization, got %q", data)
	}
}

func TestManifestRoundTrip(t *testing.T) {
	h, _ := NewHash("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	entries := []Entry{
		{Name: "b.txt", Hash: h, Size: 5, Kind: KindFile},
		{Name: "a", Hash: h, Size: 0, Kind: KindDir},
	}
	m := NewManifest(entries)
	data := m.Serialize()

	parsed, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if len(parsed.Entries()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(parsed.Entries()))
	}
	dir, ok := parsed.Lookup("a")
	if !ok || dir.Kind != KindDir {
		t.Fatalf("expected directory entry for 'a', got %+v ok=%v", dir, ok)
	}
	file, ok := parsed.Lookup("b.txt")
	if !ok || file.Kind != KindFile || file.Size != 5 {
		t.Fatalf("expected file entry for 'b.txt', got %+v ok=%v", file, ok)
	}
}

func TestManifestCanonicalOrdering(t *testing.T) {
	h, _ := NewHash("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824")
	m1 := NewManifest([]Entry{
		{Name: "z.txt", Hash: h, Size: 1, Kind: KindFile},
		{Name: "a.txt", Hash: h, Size: 1, Kind: KindFile},
	})
	m2 := NewManifest([]Entry{
		{Name: "a.txt", Hash: h, Size: 1, Kind: KindFile},
		{Name: "z.txt", Hash: h, Size: 1, Kind: KindFile},
	})
	if string(m1.Serialize()) != string(m2.Serialize()) {
		t.Fatalf("expected identical serialization regardless of insertion order")
	}
}

func TestManifestSetRemove(t *testing.T) {
	m := NewManifest(nil)
	h := HashBytes([]byte("k"))
	m.Set(Entry{Name: "new.txt", Hash: h, Size: 1, Kind: KindFile})
	if _, ok := m.Lookup("new.txt"); !ok {
		t.Fatalf("expected entry after Set")
	}
	m.Remove("new.txt")
	if _, ok := m.Lookup("new.txt"); ok {
		t.Fatalf("expected entry removed")
	}
}

func TestParseManifestMalformed(t *testing.T) {
	if _, err := ParseManifest([]byte("not-a-valid-line")); err == nil {
		t.Fatalf("expected error parsing malformed manifest")
	}
}

func TestHashManifestMatchesSerialize(t *testing.T) {
	m := NewManifest(nil)
	hash, size := HashManifest(m)
	if hash != HashBytes(nil) {
		t.Fatalf("expected empty manifest hash to equal hash of empty bytes")
	}
	if size != 0 {
		t.Fatalf("expected size 0, got %d", size)
	}
}
