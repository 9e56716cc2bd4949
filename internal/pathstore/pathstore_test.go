package pathstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMkdirTreeAndRemoveTree(t *testing.T) {
	root := t.TempDir()
	s := New(root)

	if err := s.MkdirTree("alpha"); err != nil {
		t.Fatalf("MkdirTree: %v", err)
	}

	for _, dir := range []string{s.Dir("alpha"), s.RootfsDir("alpha"), s.NamespacesDir("alpha"), s.CgroupsDir("alpha"), s.NetworkDir("alpha")} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory at %s", dir)
		}
	}

	if !s.Exists("alpha") {
		t.Error("Exists should report true after MkdirTree")
	}

	if err := s.RemoveTree("alpha"); err != nil {
		t.Fatalf("RemoveTree: %v", err)
	}
	if s.Exists("alpha") {
		t.Error("Exists should report false after RemoveTree")
	}

	// Idempotent.
	if err := s.RemoveTree("alpha"); err != nil {
		t.Fatalf("RemoveTree on absent tree should not error: %v", err)
	}
}

func TestListSkipsMissingRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "does-not-exist"))
	names, err := s.List()
	if err != nil {
		t.Fatalf("List on missing root should not error: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected no names, got %v", names)
	}
}

func TestListReturnsDirectoriesOnly(t *testing.T) {
	root := t.TempDir()
	s := New(root)
	if err := s.MkdirTree("alpha"); err != nil {
		t.Fatal(err)
	}
	if err := s.MkdirTree("beta"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "stray-file"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	names, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, n := range names {
		got[n] = true
	}
	if !got["alpha"] || !got["beta"] || got["stray-file"] {
		t.Errorf("List returned %v, expected exactly alpha and beta", names)
	}
}

func TestAtomicWriteFileVisibleOnlyAfterComplete(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	if err := AtomicWriteFile(path, []byte(`{"a":1}`), 0644); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("got %q", data)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.Name() != "config.json" {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestPathHelpersJoinUnderRoot(t *testing.T) {
	s := New("/tmp/containers")
	if got := s.ConfigPath("alpha"); got != "/tmp/containers/alpha/config.json" {
		t.Errorf("ConfigPath = %s", got)
	}
	if got := s.NamespaceConf("alpha", "pid"); got != "/tmp/containers/alpha/namespaces/pid.conf" {
		t.Errorf("NamespaceConf = %s", got)
	}
}

func TestNewDefaultsEmptyRoot(t *testing.T) {
	s := New("")
	if s.Root() != DefaultRoot {
		t.Errorf("expected default root %s, got %s", DefaultRoot, s.Root())
	}
}
