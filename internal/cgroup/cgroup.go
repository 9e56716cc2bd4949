// Package cgroup manages cgroups v1 memory and cpu controllers for a
// container: plain cgroupfs reads/writes, no mediating library, so
// callers can assert exact file contents (see DESIGN.md).
package cgroup

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tonidy/pak-rt/internal/rterr"
	"github.com/tonidy/pak-rt/internal/rtlog"
)

var log = rtlog.For("cgroup")

const (
	MemoryRoot = "/sys/fs/cgroup/memory"
	CPURoot    = "/sys/fs/cgroup/cpu"

	defaultPeriodUs = 100000
	bytesPerMB      = 1024 * 1024
)

// Usage is a point-in-time resource report for one container.
type Usage struct {
	MemoryBytes     int64
	MemoryPeakBytes int64
	CPUNs           int64
}

// Manager creates and tears down the memory+cpu cgroup pair for one
// container.
type Manager struct {
	name string

	// memoryPathOverride/cpuPathOverride let tests point at a fake
	// cgroupfs tree instead of the real /sys/fs/cgroup mounts.
	memoryPathOverride string
	cpuPathOverride    string
}

func New(name string) *Manager {
	return &Manager{name: name}
}

// MemoryPath returns the directory backing the memory controller.
func (m *Manager) MemoryPath() string {
	return m.memoryPath()
}

// CPUPath returns the directory backing the cpu controller.
func (m *Manager) CPUPath() string {
	return m.cpuPath()
}

func (m *Manager) memoryPath() string {
	if m.memoryPathOverride != "" {
		return m.memoryPathOverride
	}
	return filepath.Join(MemoryRoot, "container-"+m.name)
}

func (m *Manager) cpuPath() string {
	if m.cpuPathOverride != "" {
		return m.cpuPathOverride
	}
	return filepath.Join(CPURoot, "container-"+m.name)
}

// Available reports whether both v1 hierarchies are mounted.
func Available() error {
	for _, root := range []string{MemoryRoot, CPURoot} {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			return rterr.New(rterr.KernelFacilityUnavailable, "cgroup hierarchy not mounted: "+root)
		}
	}
	return nil
}

// Create makes the container-<name> directory in both hierarchies.
func (m *Manager) Create() error {
	if err := Available(); err != nil {
		return err
	}
	for _, p := range []string{m.memoryPath(), m.cpuPath()} {
		if err := os.MkdirAll(p, 0755); err != nil {
			return rterr.Of(rterr.CgroupSetupFailed, "mkdir "+p, err)
		}
	}
	return nil
}

// SetMemoryLimit writes memoryMB*1MiB to memory.limit_in_bytes.
func (m *Manager) SetMemoryLimit(memoryMB int) error {
	limit := int64(memoryMB) * bytesPerMB
	path := filepath.Join(m.memoryPath(), "memory.limit_in_bytes")
	if err := os.WriteFile(path, []byte(strconv.FormatInt(limit, 10)), 0644); err != nil {
		return rterr.Of(rterr.CgroupSetupFailed, "memory.limit_in_bytes", err)
	}
	return nil
}

// SetCPULimit reads cpu.cfs_period_us (defaulting to 100000 if the
// read fails) and writes period*cpuPercent/100 to cpu.cfs_quota_us.
// The division truncates; exact percentages aren't guaranteed.
func (m *Manager) SetCPULimit(cpuPercent int) error {
	periodPath := filepath.Join(m.cpuPath(), "cpu.cfs_period_us")
	period := int64(defaultPeriodUs)
	if b, err := os.ReadFile(periodPath); err == nil {
		if p, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64); err == nil && p > 0 {
			period = p
		}
	}

	quota := period * int64(cpuPercent) / 100
	quotaPath := filepath.Join(m.cpuPath(), "cpu.cfs_quota_us")
	if err := os.WriteFile(quotaPath, []byte(strconv.FormatInt(quota, 10)), 0644); err != nil {
		return rterr.Of(rterr.CgroupSetupFailed, "cpu.cfs_quota_us", err)
	}
	return nil
}

// Assign writes pid to cgroup.procs of both controllers. Re-enrolling
// an already-assigned PID is idempotent and must not error.
func (m *Manager) Assign(pid int) error {
	if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err != nil {
		return rterr.Of(rterr.CgroupSetupFailed, "assign", fmt.Errorf("pid %d does not exist", pid))
	}
	for _, dir := range []string{m.memoryPath(), m.cpuPath()} {
		procs := filepath.Join(dir, "cgroup.procs")
		if err := os.WriteFile(procs, []byte(strconv.Itoa(pid)), 0644); err != nil {
			return rterr.Of(rterr.CgroupSetupFailed, "cgroup.procs", err)
		}
	}
	return nil
}

// Report reads live usage. cpuacct.usage is best-effort: its absence
// (e.g. cpuacct not co-mounted with cpu) is not an error, it just
// leaves CPUNs at zero.
func (m *Manager) Report() (Usage, error) {
	var u Usage
	var err error

	if u.MemoryBytes, err = readInt(filepath.Join(m.memoryPath(), "memory.usage_in_bytes")); err != nil {
		return u, rterr.Of(rterr.CgroupSetupFailed, "memory.usage_in_bytes", err)
	}
	if u.MemoryPeakBytes, err = readInt(filepath.Join(m.memoryPath(), "memory.max_usage_in_bytes")); err != nil {
		return u, rterr.Of(rterr.CgroupSetupFailed, "memory.max_usage_in_bytes", err)
	}
	if ns, err := readInt(filepath.Join(m.cpuPath(), "cpuacct.usage")); err == nil {
		u.CPUNs = ns
	}
	return u, nil
}

func readInt(path string) (int64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
}

// Teardown moves every task in cgroup.procs to the root cgroup (the
// kernel requires an empty cgroup before rmdir) and removes both
// container directories. Already-dead PIDs are tolerated.
func (m *Manager) Teardown() error {
	var firstErr error
	for root, dir := range map[string]string{MemoryRoot: m.memoryPath(), CPURoot: m.cpuPath()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}
		if err := evacuate(root, dir); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := os.Remove(dir); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = rterr.Of(rterr.CgroupSetupFailed, "rmdir "+dir, err)
		}
	}
	return firstErr
}

func evacuate(root, dir string) error {
	procsPath := filepath.Join(dir, "cgroup.procs")
	b, err := os.ReadFile(procsPath)
	if err != nil {
		return nil // already gone or never populated
	}
	rootProcs := filepath.Join(root, "cgroup.procs")
	for _, pidStr := range strings.Fields(string(b)) {
		if err := os.WriteFile(rootProcs, []byte(pidStr), 0644); err != nil {
			log.WithField("pid", pidStr).WithError(err).Debug("could not evacuate pid to root cgroup")
		}
	}
	return nil
}
