// Package pathstore is the canonical on-disk layout for one state
// root. It knows nothing about cgroups, namespaces, or networking — it
// only hands out paths and performs the one piece of I/O every
// component needs: atomic writes under a container's directory tree.
package pathstore

import (
	"os"
	"path/filepath"
)

// DefaultRoot is the default state root in production; it is
// parameterized here so tests can point it elsewhere.
const DefaultRoot = "/tmp/containers"

// Store resolves paths under a state root.
type Store struct {
	root string
}

// New returns a Store rooted at root. Pass pathstore.DefaultRoot in
// production.
func New(root string) *Store {
	if root == "" {
		root = DefaultRoot
	}
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// Dir returns /<root>/<name>.
func (s *Store) Dir(name string) string { return filepath.Join(s.root, name) }

func (s *Store) ConfigPath(name string) string { return filepath.Join(s.Dir(name), "config.json") }
func (s *Store) PIDPath(name string) string    { return filepath.Join(s.Dir(name), "container.pid") }
func (s *Store) RootfsDir(name string) string  { return filepath.Join(s.Dir(name), "rootfs") }
func (s *Store) NamespacesDir(name string) string {
	return filepath.Join(s.Dir(name), "namespaces")
}
func (s *Store) CgroupsDir(name string) string  { return filepath.Join(s.Dir(name), "cgroups") }
func (s *Store) CgroupsConf(name string) string { return filepath.Join(s.CgroupsDir(name), "paths.conf") }
func (s *Store) NetworkDir(name string) string  { return filepath.Join(s.Dir(name), "network") }
func (s *Store) NetworkIPConf(name string) string {
	return filepath.Join(s.NetworkDir(name), "ip.conf")
}
func (s *Store) NetworkVethConf(name string) string {
	return filepath.Join(s.NetworkDir(name), "veth.conf")
}
func (s *Store) ConsoleSocket(name string) string {
	return filepath.Join(s.Dir(name), "console.sock")
}

func (s *Store) NamespaceConf(name, kind string) string {
	return filepath.Join(s.NamespacesDir(name), kind+".conf")
}

// MkdirTree creates the full directory tree for a new container, all
// directories mode 0755.
func (s *Store) MkdirTree(name string) error {
	dirs := []string{
		s.Dir(name),
		s.RootfsDir(name),
		s.NamespacesDir(name),
		s.CgroupsDir(name),
		s.NetworkDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return err
		}
	}
	return nil
}

// RemoveTree deletes a container's entire directory tree. Idempotent:
// removing an already-absent tree is not an error.
func (s *Store) RemoveTree(name string) error {
	return os.RemoveAll(s.Dir(name))
}

// Exists reports whether a container directory is present at all.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Dir(name))
	return err == nil
}

// List returns the names of every container with a directory under the
// state root, in no particular order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// AtomicWriteFile writes data to path via a temp file in the same
// directory followed by rename, so readers never observe a partial
// write. Used for config.json.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
