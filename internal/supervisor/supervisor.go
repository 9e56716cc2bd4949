// Package supervisor spawns and reaps a container's init process via a
// re-exec of the runtime's own binary into a hidden child-setup path.
// It builds its namespace/mount set from the descriptors nsplan writes
// and joins a pre-existing named netns via setns(2) rather than
// cloning a fresh one, since networking must be wired before the init
// process exists.
package supervisor

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tonidy/pak-rt/internal/container"
	"github.com/tonidy/pak-rt/internal/nsplan"
	"github.com/tonidy/pak-rt/internal/pathstore"
	"github.com/tonidy/pak-rt/internal/rterr"
	"github.com/tonidy/pak-rt/internal/rtlog"
)

var log = rtlog.For("supervisor")

// MarkerArg is the hidden first argument that tells a re-exec'd copy
// of the runtime binary to run child-setup instead of the normal CLI.
const MarkerArg = "__pakrt_init__"

// IsChildEntry reports whether os.Args identifies this process as a
// re-exec'd container init rather than a normal CLI invocation.
func IsChildEntry(args []string) bool {
	return len(args) > 1 && args[1] == MarkerArg
}

// Supervisor tracks one spawned init process and reaps it in the
// background.
type Supervisor struct {
	cmd  *exec.Cmd
	name string

	mu    sync.Mutex
	dead  bool
	exitC chan struct{}
}

// Spawn starts the container's init process inside the requested
// namespace set and returns immediately with its PID; the process is
// reaped on a background goroutine. The network namespace is joined
// via setns inside the child rather than cloned fresh, since the
// Network Manager has already wired container-<name> before this
// runs.
func Spawn(store *pathstore.Store, c *container.Container) (*Supervisor, int, error) {
	cmd := exec.Command(reexecPath(), MarkerArg, c.Name, store.Root())
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Cloneflags: syscall.CLONE_NEWPID | syscall.CLONE_NEWNS | syscall.CLONE_NEWUTS |
			syscall.CLONE_NEWIPC | syscall.CLONE_NEWUSER,
		UidMappings: []syscall.SysProcIDMap{{ContainerID: 0, HostID: c.HostUID, Size: 1}},
		GidMappings: []syscall.SysProcIDMap{{ContainerID: 0, HostID: c.HostGID, Size: 1}},
	}

	if err := cmd.Start(); err != nil {
		return nil, 0, rterr.Of(rterr.SpawnFailed, "start init process", err)
	}

	pid := cmd.Process.Pid
	sv := &Supervisor{cmd: cmd, name: c.Name, exitC: make(chan struct{})}

	go sv.reap()

	if err := pathstore.AtomicWriteFile(store.PIDPath(c.Name), []byte(fmt.Sprintf("%d\n", pid)), 0644); err != nil {
		log.WithField("container", c.Name).WithError(err).Warn("failed to persist container.pid")
	}

	return sv, pid, nil
}

func reexecPath() string {
	if p, err := os.Executable(); err == nil {
		return p
	}
	return os.Args[0]
}

func (sv *Supervisor) reap() {
	err := sv.cmd.Wait()
	sv.mu.Lock()
	sv.dead = true
	sv.mu.Unlock()
	close(sv.exitC)
	if err != nil {
		log.WithField("container", sv.name).WithError(err).Debug("init process exited")
	}
}

// Dead reports whether the init process has already been reaped.
func (sv *Supervisor) Dead() bool {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.dead
}

// Signal delivers sig to the init process; returns nil if it is
// already dead.
func (sv *Supervisor) Signal(sig syscall.Signal) error {
	if sv.Dead() {
		return nil
	}
	return sv.cmd.Process.Signal(sig)
}

// WaitDead blocks until the init process has exited or timeout
// elapses, used by the delete state machine's grace period.
func (sv *Supervisor) WaitDead(timeout time.Duration) bool {
	select {
	case <-sv.exitC:
		return true
	case <-time.After(timeout):
		return sv.Dead()
	}
}

// ChildEntry is invoked from main when IsChildEntry(os.Args) is true.
// It performs ordered child-side setup and then replaces itself with
// /bin/busybox sh. It never returns on success.
func ChildEntry(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("child entry: expected <marker> <name> <state-root>, got %v", args)
	}
	name, stateRoot := args[2], args[3]
	store := pathstore.New(stateRoot)

	mountDesc, err := nsplan.Read(store, name, "mount")
	if err != nil {
		return rterr.Of(rterr.NamespaceSetupFailed, "read mount descriptor", err)
	}
	utsDesc, err := nsplan.Read(store, name, "uts")
	if err != nil {
		return rterr.Of(rterr.NamespaceSetupFailed, "read uts descriptor", err)
	}
	rootfs := mountDesc["rootfs"]

	// 2. sethostname / setdomainname
	if err := unix.Sethostname([]byte(utsDesc["hostname"])); err != nil {
		return rterr.Of(rterr.NamespaceSetupFailed, "sethostname", err)
	}
	if dn := utsDesc["domainname"]; dn != "" {
		unix.Setdomainname([]byte(dn))
	}

	// 3. mount proc, sysfs, tmpfs, devpts inside the new rootfs.
	if err := mountDefaults(rootfs); err != nil {
		return rterr.Of(rterr.RootfsSetupFailed, "mount defaults", err)
	}

	// 4. join the pre-wired network namespace.
	if err := joinNetns(name); err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "join netns", err)
	}

	// 5. pivot_root into rootfs, chdir /.
	if err := pivotRoot(rootfs); err != nil {
		return rterr.Of(rterr.RootfsSetupFailed, "pivot_root", err)
	}

	// 6. stdio: connect to the console socket if present, otherwise
	// inherit whatever fds the re-exec carried.
	connectConsole(stateRoot, name)

	// 7. exec /bin/busybox sh, replacing this process image.
	if err := unix.Exec("/bin/busybox", []string{"busybox", "sh"}, os.Environ()); err != nil {
		return rterr.Of(rterr.SpawnFailed, "exec busybox sh", err)
	}
	return nil // unreachable
}

func mountDefaults(rootfs string) error {
	type mnt struct {
		source, target, fstype string
		flags                  uintptr
		data                   string
	}
	mounts := []mnt{
		{"proc", rootfs + "/proc", "proc", 0, ""},
		{"sysfs", rootfs + "/sys", "sysfs", 0, ""},
		{"tmpfs", rootfs + "/tmp", "tmpfs", 0, ""},
	}
	for _, m := range mounts {
		if err := os.MkdirAll(m.target, 0755); err != nil {
			return err
		}
		if err := unix.Mount(m.source, m.target, m.fstype, m.flags, m.data); err != nil {
			return fmt.Errorf("mount %s at %s: %w", m.fstype, m.target, err)
		}
	}

	devpts := rootfs + "/dev/pts"
	if err := os.MkdirAll(devpts, 0755); err == nil {
		unix.Mount("devpts", devpts, "devpts", 0, "mode=0620")
	}
	return nil
}

func joinNetns(name string) error {
	fd, err := unix.Open("/var/run/netns/container-"+name, unix.O_RDONLY, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)
	return unix.Setns(fd, unix.CLONE_NEWNET)
}

// pivotRoot implements the pivot_root(2) dance: bind rootfs onto
// itself, move into it, swap the root mount, then lazily detach and
// remove the old one.
func pivotRoot(rootfs string) error {
	if err := unix.Mount(rootfs, rootfs, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("self-bind rootfs: %w", err)
	}

	oldroot := rootfs + "/.oldroot"
	if err := os.MkdirAll(oldroot, 0700); err != nil {
		return err
	}

	if err := unix.PivotRoot(rootfs, oldroot); err != nil {
		return fmt.Errorf("pivot_root: %w", err)
	}

	if err := unix.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}

	if err := unix.Unmount("/.oldroot", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach old root: %w", err)
	}
	os.RemoveAll("/.oldroot")

	return nil
}

func connectConsole(stateRoot, name string) {
	sockPath := pathstore.New(stateRoot).ConsoleSocket(name)
	if _, err := os.Stat(sockPath); err != nil {
		return
	}
	conn, err := net.DialTimeout("unix", sockPath, 2*time.Second)
	if err != nil {
		log.WithField("container", name).WithError(err).Debug("no console socket, using inherited stdio")
		return
	}
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		conn.Close()
		return
	}
	f, err := uc.File()
	uc.Close()
	if err != nil {
		return
	}
	defer f.Close()
	fd := int(f.Fd())
	unix.Dup2(fd, 0)
	unix.Dup2(fd, 1)
	unix.Dup2(fd, 2)
}
