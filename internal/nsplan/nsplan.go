// Package nsplan decides which namespace kinds a container gets (all
// of pid/mount/uts/ipc/user) and writes one descriptor file per kind
// under the state directory, so the namespace plan exists on disk
// independently of the running process and the Process Supervisor can
// read it back at spawn time.
package nsplan

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/tonidy/pak-rt/internal/container"
	"github.com/tonidy/pak-rt/internal/pathstore"
	"github.com/tonidy/pak-rt/internal/rterr"
)

// Kinds is the fixed, always-enabled set of namespace descriptor files.
var Kinds = []string{"pid", "mount", "uts", "ipc", "user"}

const domainname = "container.local"

// IPC tunables recorded as documentation only; enforcement is via the
// namespace itself, these values are never written to a kernel
// interface.
const (
	shmMaxBytes = 64 * 1024 * 1024
	semMax      = 32000
	msgMax      = 16
)

// Write creates the five descriptor files for c under store's
// namespaces/ directory.
func Write(store *pathstore.Store, c *container.Container) error {
	if err := os.MkdirAll(store.NamespacesDir(c.Name), 0755); err != nil {
		return rterr.Of(rterr.NamespaceSetupFailed, "mkdir namespaces", err)
	}

	descriptors := map[string]map[string]string{
		"pid": {
			"init_process": "/bin/busybox",
			"init_args":    "sh",
		},
		"mount": {
			"rootfs": store.RootfsDir(c.Name),
		},
		"uts": {
			"hostname":   c.Hostname,
			"domainname": domainname,
		},
		"ipc": {
			"shmmax": strconv.Itoa(shmMaxBytes),
			"semmax": strconv.Itoa(semMax),
			"msgmax": strconv.Itoa(msgMax),
		},
		"user": {
			"host_uid": strconv.Itoa(c.HostUID),
			"host_gid": strconv.Itoa(c.HostGID),
			"uid_map":  fmt.Sprintf("0 %d 1", c.HostUID),
			"gid_map":  fmt.Sprintf("0 %d 1", c.HostGID),
		},
	}

	for _, kind := range Kinds {
		if err := writeDescriptor(store.NamespaceConf(c.Name, kind), descriptors[kind]); err != nil {
			return rterr.Of(rterr.NamespaceSetupFailed, "write "+kind+" descriptor", err)
		}
	}
	return nil
}

func writeDescriptor(path string, kv map[string]string) error {
	var b strings.Builder
	for k, v := range kv {
		fmt.Fprintf(&b, "%s=%s\n", k, v)
	}
	return pathstore.AtomicWriteFile(path, []byte(b.String()), 0644)
}

// Descriptor is a parsed key=value namespace descriptor file.
type Descriptor map[string]string

// Read parses the descriptor file written by Write for the given kind.
func Read(store *pathstore.Store, name, kind string) (Descriptor, error) {
	f, err := os.Open(store.NamespaceConf(name, kind))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := Descriptor{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		d[k] = v
	}
	return d, scanner.Err()
}

// Exists reports whether every namespace descriptor file is present;
// used by orphan detection.
func Exists(store *pathstore.Store, name string) bool {
	for _, kind := range Kinds {
		if _, err := os.Stat(store.NamespaceConf(name, kind)); err != nil {
			return false
		}
	}
	return true
}

// Remove deletes the namespaces directory contents. Teardown for this
// component is just removing descriptor files; the kernel namespaces
// themselves disappear when the init process exits.
func Remove(store *pathstore.Store, name string) error {
	return os.RemoveAll(store.NamespacesDir(name))
}
