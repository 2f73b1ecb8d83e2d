package cursorcache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cursors.json")
	if err := Save(path, map[string]uint64{"a:b": 42}); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if m["a:b"] != 42 {
		t.Fatalf("got %+v", m)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestLoadMissingFileIsEmpty(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %+v", m)
	}
}

func TestLoadCorruptJSONIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.json")
	if err := os.WriteFile(path, []byte("not json"), 0600); err != nil {
		t.Fatal(err)
	}
	m, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map, got %+v", m)
	}
}

func TestLoadRejectsSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real.json")
	if err := os.WriteFile(real, []byte(`{"a:b":1}`), 0600); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "cursors.json")
	if err := os.Symlink(real, link); err != nil {
		t.Fatal(err)
	}

	m, err := Load(link)
	if err != nil {
		t.Fatal(err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty map for symlinked path, got %+v", m)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Fatal("expected the symlink to be removed")
	}
}

func TestGetAndSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cursors.json")
	if err := Set(path, Key("/ws", "api"), 7); err != nil {
		t.Fatal(err)
	}
	v, ok, err := Get(path, Key("/ws", "api"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok || v != 7 {
		t.Fatalf("got v=%d ok=%v", v, ok)
	}

	if _, ok, _ := Get(path, Key("/ws", "missing")); ok {
		t.Fatal("expected no entry for missing key")
	}
}
