// Package rootfs populates a container's private root directory from a
// statically linked multi-call utility binary, seeding the essential
// directory tree and applet symlinks before the init process pivots
// into it.
package rootfs

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/tonidy/pak-rt/internal/rterr"
	"github.com/tonidy/pak-rt/internal/rtlog"
)

var log = rtlog.For("rootfs")

// essentialDirs are created before the busybox binary is copied in.
var essentialDirs = []string{
	"bin", "sbin", "usr/bin", "usr/sbin",
	"proc", "sys", "dev", "dev/pts",
	"tmp", "var/tmp", "etc", "root", "home",
}

// Applets is the fixed set of symlinks created in bin/, every one
// pointing at ./busybox.
var Applets = []string{
	"sh", "ls", "cat", "echo", "ps", "grep", "sed", "awk", "mount", "umount",
	"mkdir", "rm", "cp", "mv", "chmod", "chown", "ln", "find", "which", "id",
	"whoami", "hostname", "ip", "ping", "wc", "head", "tail", "sort", "uniq",
	"cut", "tr", "tee", "sleep", "kill", "true", "false", "test", "expr",
	"basename", "dirname", "readlink", "stat", "du", "df", "free", "uname",
	"date", "env", "printenv",
}

// BusyboxProvider yields the path to an executable multi-call utility
// binary. Acquiring the binary (download, extract, whatever) is out of
// scope here; the builder only needs a path.
type BusyboxProvider interface {
	BusyboxPath() (string, error)
}

// Build populates rootfsDir from the binary provider's busybox and
// seeds /etc, then verifies the binary actually runs.
func Build(rootfsDir string, provider BusyboxProvider, hostname, ip string) error {
	log.WithField("rootfs", rootfsDir).Debug("building rootfs")

	for _, d := range essentialDirs {
		if err := os.MkdirAll(filepath.Join(rootfsDir, d), 0755); err != nil {
			return rterr.Of(rterr.RootfsSetupFailed, "mkdir "+d, err)
		}
	}

	busyboxSrc, err := provider.BusyboxPath()
	if err != nil {
		return rterr.Of(rterr.RootfsSetupFailed, "busybox provider", err)
	}

	busyboxDst := filepath.Join(rootfsDir, "bin", "busybox")
	if err := copyFile(busyboxSrc, busyboxDst, 0755); err != nil {
		return rterr.Of(rterr.RootfsSetupFailed, "copy busybox", err)
	}

	for _, applet := range Applets {
		link := filepath.Join(rootfsDir, "bin", applet)
		os.Remove(link) // tolerate re-create
		if err := os.Symlink("busybox", link); err != nil {
			return rterr.Of(rterr.RootfsSetupFailed, "symlink "+applet, err)
		}
	}

	if err := seedEtc(rootfsDir, hostname, ip); err != nil {
		return rterr.Of(rterr.RootfsSetupFailed, "seed /etc", err)
	}

	if err := verify(busyboxDst); err != nil {
		return rterr.Of(rterr.RootfsSetupFailed, "verify busybox", err)
	}

	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Chmod(perm)
}

func seedEtc(rootfsDir, hostname, ip string) error {
	etc := filepath.Join(rootfsDir, "etc")

	files := map[string]string{
		"passwd": "root:x:0:0:root:/root:/bin/sh\n" +
			"daemon:x:1:1:daemon:/usr/sbin:/bin/sh\n" +
			"nobody:x:65534:65534:nobody:/nonexistent:/bin/sh\n",
		"group": "root:x:0:\n" +
			"daemon:x:1:\n" +
			"nobody:x:65534:\n",
		"resolv.conf": "nameserver 8.8.8.8\n",
		"hostname":    hostname + "\n",
	}

	for name, content := range files {
		if err := os.WriteFile(filepath.Join(etc, name), []byte(content), 0644); err != nil {
			return err
		}
	}
	return UpdateHosts(rootfsDir, hostname, ip)
}

// UpdateHosts (re)writes /etc/hosts. Build seeds it with a placeholder
// address before the Network Manager has allocated a real one; callers
// rewrite it once the container's IP is known.
func UpdateHosts(rootfsDir, hostname, ip string) error {
	content := fmt.Sprintf("127.0.0.1 localhost\n%s %s\n", ip, hostname)
	return os.WriteFile(filepath.Join(rootfsDir, "etc", "hosts"), []byte(content), 0644)
}

// verify executes "<rootfs>/bin/busybox --help" on the host (read-only
// check) and requires exit 0.
func verify(busyboxPath string) error {
	cmd := exec.Command(busyboxPath, "--help")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("busybox --help: %w: %s", err, out)
	}
	return nil
}
