package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileReturnsEmpty(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "tap.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Services) != 0 {
		t.Fatalf("expected empty manifest, got %+v", m)
	}
}

func TestLoadParsesServices(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
services:
  api:
    command: ["node", "server.js"]
    cwd: ./api
    pty: true
    max_lines: 5000
`)
	m, err := Load(filepath.Join(dir, FileName))
	if err != nil {
		t.Fatal(err)
	}
	svc, ok := m.Lookup("api")
	if !ok {
		t.Fatal("expected api entry")
	}
	if len(svc.Command) != 2 || svc.Command[0] != "node" {
		t.Fatalf("got command %+v", svc.Command)
	}
	if svc.PTY == nil || !*svc.PTY {
		t.Fatal("expected pty true")
	}
	if svc.MaxLines != 5000 {
		t.Fatalf("got max_lines %d", svc.MaxLines)
	}
}

func TestFindNearWalksUpToRoot(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "services:\n  worker:\n    command: [\"./worker\"]\n")
	nested := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(nested, 0700); err != nil {
		t.Fatal(err)
	}

	m, path, err := FindNear(nested)
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("expected manifest to be found")
	}
	if path != filepath.Join(root, FileName) {
		t.Fatalf("got %s", path)
	}
	if _, ok := m.Lookup("worker"); !ok {
		t.Fatal("expected worker entry")
	}
}

func TestFindNearReturnsNilWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	m, path, err := FindNear(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m != nil || path != "" {
		t.Fatalf("expected no manifest, got %+v %s", m, path)
	}
}
