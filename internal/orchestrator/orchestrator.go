// Package orchestrator composes the Validator, PathStore, Rootfs
// Builder, Namespace Planner, Cgroup Manager, Network Manager, Process
// Supervisor, and State Store into the five public verbs (create,
// list, delete, cleanup-all, recover-state), with per-name locking and
// ordered rollback on failure.
package orchestrator

import (
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/tonidy/pak-rt/internal/cgroup"
	"github.com/tonidy/pak-rt/internal/container"
	"github.com/tonidy/pak-rt/internal/netmgr"
	"github.com/tonidy/pak-rt/internal/nsplan"
	"github.com/tonidy/pak-rt/internal/pathstore"
	"github.com/tonidy/pak-rt/internal/rootfs"
	"github.com/tonidy/pak-rt/internal/rterr"
	"github.com/tonidy/pak-rt/internal/rtlog"
	"github.com/tonidy/pak-rt/internal/statestore"
	"github.com/tonidy/pak-rt/internal/supervisor"
	"github.com/tonidy/pak-rt/internal/validate"
)

var log = rtlog.For("orchestrator")

// GraceSeconds is the fixed delete grace period between SIGTERM and
// SIGKILL.
const GraceSeconds = 10

// CreateTimeout bounds the whole create pipeline.
const CreateTimeout = 90 * time.Second

// hostBusybox locates a static busybox binary on the host. Acquiring
// or building that binary is out of scope here; this is the one
// default BusyboxProvider the CLI wires in.
type hostBusybox struct{ path string }

func (h hostBusybox) BusyboxPath() (string, error) {
	if h.path != "" {
		return h.path, nil
	}
	p, err := exec.LookPath("busybox")
	if err != nil {
		return "", fmt.Errorf("no busybox binary found on PATH and none configured: %w", err)
	}
	return p, nil
}

// Orchestrator owns all mutation of Container records. Subcomponents
// are stateless or per-call; this type holds only the locks and the
// path/state layout.
type Orchestrator struct {
	paths    *pathstore.Store
	state    *statestore.Store
	busybox  rootfs.BusyboxProvider

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	ipMu sync.Mutex

	supervisorsMu sync.Mutex
	supervisors   map[string]*supervisor.Supervisor
}

func New(stateRoot, busyboxPath string) *Orchestrator {
	paths := pathstore.New(stateRoot)
	return &Orchestrator{
		paths:       paths,
		state:       statestore.New(paths),
		busybox:     hostBusybox{path: busyboxPath},
		locks:       make(map[string]*sync.Mutex),
		supervisors: make(map[string]*supervisor.Supervisor),
	}
}

func (o *Orchestrator) lockFor(name string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	m, ok := o.locks[name]
	if !ok {
		m = &sync.Mutex{}
		o.locks[name] = m
	}
	return m
}

// CreateRequest is the input to Create; zero-value optional fields
// get their documented defaults.
type CreateRequest struct {
	Name       string
	MemoryMB   int
	CPUPercent int
	Hostname   string
	HostUID    int
	HostGID    int
}

// Create runs the nine-step setup pipeline, rolling back everything
// completed so far on any failure past step 3.
func (o *Orchestrator) Create(req CreateRequest) (*container.Container, error) {
	opID := statestore.NewCorrelationID()
	elog := rtlog.WithCorrelation("orchestrator", opID).WithField("container", req.Name)

	lock := o.lockFor(req.Name)
	lock.Lock()
	defer lock.Unlock()

	if o.paths.Exists(req.Name) {
		return nil, rterr.New(rterr.AlreadyExists, "container already exists: "+req.Name)
	}

	if err := validate.Name(req.Name); err != nil {
		return nil, err
	}
	if err := validate.MemoryMB(req.MemoryMB); err != nil {
		return nil, err
	}
	if err := validate.CPUPercent(req.CPUPercent); err != nil {
		return nil, err
	}
	hostname := req.Hostname
	if hostname == "" {
		hostname = req.Name
	}
	if err := validate.Hostname(hostname); err != nil {
		return nil, err
	}

	c := &container.Container{
		Name:       req.Name,
		MemoryMB:   req.MemoryMB,
		CPUPercent: req.CPUPercent,
		Hostname:   hostname,
		HostUID:    req.HostUID,
		HostGID:    req.HostGID,
		State:      container.StateCreating,
		CreatedAt:  time.Now(),
	}

	var rollbacks []func()
	rollback := func() {
		for i := len(rollbacks) - 1; i >= 0; i-- {
			rollbacks[i]()
		}
	}

	// Step 1: PathStore mkdir tree.
	if err := o.paths.MkdirTree(c.Name); err != nil {
		return nil, rterr.Of(rterr.SpawnFailed, "mkdir tree", err)
	}
	rollbacks = append(rollbacks, func() {
		if err := o.paths.RemoveTree(c.Name); err != nil {
			elog.WithError(err).Warn("rollback: remove tree failed")
		}
	})

	// Step 2: Rootfs Builder. The container's IP isn't allocated yet
	// (that happens in step 5), so /etc/hosts gets a placeholder here
	// and is rewritten once the real address is known.
	if err := rootfs.Build(o.paths.RootfsDir(c.Name), o.busybox, hostname, "0.0.0.0"); err != nil {
		rollback()
		return nil, err
	}

	// Step 3: Namespace Planner.
	if err := nsplan.Write(o.paths, c); err != nil {
		rollback()
		return nil, err
	}
	rollbacks = append(rollbacks, func() {
		if err := nsplan.Remove(o.paths, c.Name); err != nil {
			elog.WithError(err).Warn("rollback: remove namespace descriptors failed")
		}
	})

	// Step 4: Cgroup Manager create + set limits.
	cg := cgroup.New(c.Name)
	if err := cg.Create(); err != nil {
		rollback()
		return nil, err
	}
	rollbacks = append(rollbacks, func() {
		if err := cg.Teardown(); err != nil {
			elog.WithError(err).Warn("rollback: cgroup teardown failed")
		}
	})
	if err := cg.SetMemoryLimit(c.MemoryMB); err != nil {
		rollback()
		return nil, err
	}
	if err := cg.SetCPULimit(c.CPUPercent); err != nil {
		rollback()
		return nil, err
	}

	// Step 5: Network Manager — allocate IP under the global lock,
	// then wire netns/veth/addresses/routes and verify connectivity.
	o.ipMu.Lock()
	live, err := o.state.Live()
	if err != nil {
		o.ipMu.Unlock()
		rollback()
		return nil, err
	}
	ip, err := netmgr.AllocateIP(live)
	if err != nil {
		o.ipMu.Unlock()
		rollback()
		return nil, err
	}
	c.IPAddress = ip
	o.ipMu.Unlock()

	if err := rootfs.UpdateHosts(o.paths.RootfsDir(c.Name), hostname, c.IPAddress); err != nil {
		rollback()
		return nil, rterr.Of(rterr.RootfsSetupFailed, "update /etc/hosts", err)
	}

	net := netmgr.New(c.Name)
	if err := net.Wire(o.paths, c); err != nil {
		rollback()
		return nil, err
	}
	rollbacks = append(rollbacks, func() {
		if err := net.Teardown(o.paths); err != nil {
			elog.WithError(err).Warn("rollback: network teardown failed")
		}
	})

	// Step 6: Process Supervisor spawn + record PID.
	sv, pid, err := supervisor.Spawn(o.paths, c)
	if err != nil {
		rollback()
		return nil, err
	}
	c.InitPID = &pid
	rollbacks = append(rollbacks, func() {
		sv.Signal(syscall.SIGKILL)
	})

	// Step 7: Cgroup Manager attach PID.
	if err := cg.Assign(pid); err != nil {
		rollback()
		return nil, err
	}

	c.State = container.StateRunning

	o.supervisorsMu.Lock()
	o.supervisors[c.Name] = sv
	o.supervisorsMu.Unlock()

	// Step 8: State Store persist.
	if err := o.state.Save(c); err != nil {
		rollback()
		return nil, err
	}

	elog.Info("container created")
	return c.Copy(), nil
}

// List returns every live container record.
func (o *Orchestrator) List() ([]*container.Container, error) {
	all, err := o.state.List()
	if err != nil {
		return nil, err
	}
	out := make([]*container.Container, 0, len(all))
	for _, c := range all {
		out = append(out, c.Copy())
	}
	return out, nil
}

// Delete runs the graceful-then-forced shutdown state machine, then
// releases every resource in reverse order. Deleting an unknown name
// succeeds (idempotent).
func (o *Orchestrator) Delete(name string) error {
	lock := o.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	c, err := o.state.Load(name)
	if err != nil {
		if rterr.KindOf(err) == rterr.NotFound {
			return nil
		}
		return err
	}

	return o.teardown(c, true)
}

// teardown drives one container through terminating->dead and
// releases every backing resource; graceful selects SIGTERM+grace
// before SIGKILL, used by Delete but skipped by orphan sweeps where
// there is often no live process to signal at all.
func (o *Orchestrator) teardown(c *container.Container, graceful bool) error {
	elog := log.WithField("container", c.Name)
	c.State = container.StateTerminating
	o.state.Save(c)

	o.supervisorsMu.Lock()
	sv := o.supervisors[c.Name]
	delete(o.supervisors, c.Name)
	o.supervisorsMu.Unlock()

	if sv != nil {
		if graceful {
			if err := sv.Signal(syscall.SIGTERM); err != nil {
				elog.WithError(err).Debug("SIGTERM delivery failed")
			}
			if !sv.WaitDead(GraceSeconds * time.Second) {
				if err := sv.Signal(syscall.SIGKILL); err != nil {
					elog.WithError(err).Debug("SIGKILL delivery failed")
				}
				sv.WaitDead(5 * time.Second)
			}
		} else if c.InitPID != nil {
			syscall.Kill(*c.InitPID, syscall.SIGKILL)
		}
	} else if c.InitPID != nil && validate.ProcessExists(*c.InitPID) {
		syscall.Kill(*c.InitPID, syscall.SIGKILL)
	}

	cg := cgroup.New(c.Name)
	if err := cg.Teardown(); err != nil {
		elog.WithError(err).Warn("cgroup teardown failed")
	}

	net := netmgr.New(c.Name)
	if err := net.Teardown(o.paths); err != nil {
		elog.WithError(err).Warn("network teardown failed")
	}

	if err := nsplan.Remove(o.paths, c.Name); err != nil {
		elog.WithError(err).Warn("namespace descriptor removal failed")
	}

	c.State = container.StateDead
	if err := o.state.Remove(c.Name); err != nil {
		return rterr.Of(rterr.SpawnFailed, "remove container record", err)
	}

	elog.Info("container deleted")
	return nil
}

// CleanupAll deletes every known container, graceful where possible,
// forced for anything already orphaned.
func (o *Orchestrator) CleanupAll() error {
	all, err := o.state.List()
	if err != nil {
		return err
	}
	var firstErr error
	for _, c := range all {
		lock := o.lockFor(c.Name)
		lock.Lock()
		state := o.state.Classify(c)
		err := o.teardown(c, state != container.StateOrphaned)
		lock.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RecoverState reclassifies every record and tears down only the
// orphans, leaving healthy containers running.
func (o *Orchestrator) RecoverState() error {
	all, err := o.state.List()
	if err != nil {
		return err
	}
	var firstErr error
	for _, c := range all {
		lock := o.lockFor(c.Name)
		lock.Lock()
		classified := o.state.Classify(c)
		if classified != container.StateOrphaned {
			lock.Unlock()
			continue
		}
		c.State = container.StateOrphaned
		err := o.teardown(c, false)
		lock.Unlock()
		if err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "recover-state: "+c.Name)
		}
	}
	return firstErr
}
