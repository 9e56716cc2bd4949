// Package validate holds pure predicate functions: name/number/path
// sanity checks that never touch the filesystem or the network (PID
// and ProcessExists are the one exception, since "does this PID
// exist" can't be answered otherwise). Every failure is an
// InvalidArgument carrying the offending field.
package validate

import (
	"fmt"
	"net"
	"os"
	"regexp"

	"github.com/tonidy/pak-rt/internal/rterr"
)

var nameRE = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

const (
	MinMemoryMB = 64
	MaxMemoryMB = 2048
	MinCPUPct   = 1
	MaxCPUPct   = 100
	MaxNameLen  = 64
	MaxHostLen  = 63
)

// privateSubnet is the /24 container addresses are allocated from.
var privateSubnet = func() *net.IPNet {
	_, n, _ := net.ParseCIDR("10.0.0.0/24")
	return n
}()

// Name validates a container name: 1-64 chars matching [A-Za-z0-9_-]+.
func Name(name string) error {
	if len(name) < 1 || len(name) > MaxNameLen {
		return rterr.Invalid("name", fmt.Sprintf("length must be 1-%d, got %d", MaxNameLen, len(name)))
	}
	if !nameRE.MatchString(name) {
		return rterr.Invalid("name", fmt.Sprintf("must match [A-Za-z0-9_-]+, got %q", name))
	}
	return nil
}

// Hostname validates a hostname: 1-63 chars. The runtime doesn't
// further restrict the character set beyond what the name regex covers
// when the hostname defaults to the container name; explicit hostnames
// must still be non-empty and fit in the historical Linux HOST_NAME_MAX.
func Hostname(hostname string) error {
	if len(hostname) < 1 || len(hostname) > MaxHostLen {
		return rterr.Invalid("hostname", fmt.Sprintf("length must be 1-%d, got %d", MaxHostLen, len(hostname)))
	}
	return nil
}

// MemoryMB validates the memory request in [64, 2048].
func MemoryMB(mb int) error {
	if mb < MinMemoryMB || mb > MaxMemoryMB {
		return rterr.Invalid("memory_mb", fmt.Sprintf("must be in [%d, %d], got %d", MinMemoryMB, MaxMemoryMB, mb))
	}
	return nil
}

// CPUPercent validates the CPU share request in [1, 100].
func CPUPercent(pct int) error {
	if pct < MinCPUPct || pct > MaxCPUPct {
		return rterr.Invalid("cpu_percent", fmt.Sprintf("must be in [%d, %d], got %d", MinCPUPct, MaxCPUPct, pct))
	}
	return nil
}

// PID validates that pid is positive and resolvable via /proc/<pid>.
func PID(pid int) error {
	if pid <= 0 {
		return rterr.Invalid("pid", fmt.Sprintf("must be positive, got %d", pid))
	}
	info, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	if err != nil || !info.IsDir() {
		return rterr.Invalid("pid", fmt.Sprintf("no such process: %d", pid))
	}
	return nil
}

// ProcessExists is a non-erroring variant of PID used by orphan
// detection, which needs a bool rather than an error.
func ProcessExists(pid int) bool {
	info, err := os.Stat(fmt.Sprintf("/proc/%d", pid))
	return err == nil && info.IsDir()
}

// IPv4InSubnet parses s as a strict dotted-quad IPv4 literal and checks
// it falls inside 10.0.0.0/24.
func IPv4InSubnet(s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return nil, rterr.Invalid("ip_address", fmt.Sprintf("not a dotted-quad IPv4 literal: %q", s))
	}
	ip4 := ip.To4()
	if !privateSubnet.Contains(ip4) {
		return nil, rterr.Invalid("ip_address", fmt.Sprintf("%s is outside %s", s, privateSubnet))
	}
	return ip4, nil
}

// Subnet returns the 10.0.0.0/24 address plan's network.
func Subnet() *net.IPNet {
	return privateSubnet
}
