package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// assertPermNoMoreThan checks that path grants nothing beyond want. A umask
// may remove bits but never add them.
func assertPermNoMoreThan(t *testing.T, path string, want os.FileMode) {
	t.Helper()
	if runtime.GOOS == "windows" {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if got := info.Mode().Perm(); got&^want != 0 {
		t.Errorf("perm = %04o, has bits beyond %04o", got, want)
	}
}

func TestMkdirPrivate(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "a", "b")

	if err := MkdirPrivate(dir); err != nil {
		t.Fatalf("MkdirPrivate: %v", err)
	}
	for _, p := range []string{filepath.Join(root, "a"), dir} {
		info, err := os.Stat(p)
		if err != nil || !info.IsDir() {
			t.Fatalf("%s not created: %v", p, err)
		}
		assertPermNoMoreThan(t, p, 0o700)
	}

	// Existing directories are fine.
	if err := MkdirPrivate(dir); err != nil {
		t.Errorf("second MkdirPrivate: %v", err)
	}
}

func TestCreatePrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgscroll.log")

	f, err := CreatePrivate(path, os.O_WRONLY|os.O_APPEND)
	if err != nil {
		t.Fatalf("CreatePrivate: %v", err)
	}
	if _, err := f.WriteString("one\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	f, err = CreatePrivate(path, os.O_WRONLY|os.O_APPEND)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.WriteString("two\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "one\ntwo\n" {
		t.Errorf("content = %q", got)
	}
	assertPermNoMoreThan(t, path, 0o600)
}

func TestCreatePrivateExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := CreatePrivate(path, os.O_WRONLY|os.O_EXCL)
	if !errors.Is(err, os.ErrExist) {
		t.Errorf("err = %v, want os.ErrExist", err)
	}
}

func TestCreatePrivateMissingParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "file")
	if _, err := CreatePrivate(path, os.O_WRONLY); err == nil {
		t.Fatal("expected error for nonexistent parent dir")
	}
}
