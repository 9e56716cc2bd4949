package cgroup

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// TestSetCPULimitQuotaMath exercises the period*percent/100 computation
// against a fake cgroupfs tree, since the real /sys/fs/cgroup/cpu tree
// isn't guaranteed to be writable (or even mounted) in a test sandbox.
func TestSetCPULimitQuotaMath(t *testing.T) {
	dir := t.TempDir()
	periodPath := filepath.Join(dir, "cpu.cfs_period_us")
	quotaPath := filepath.Join(dir, "cpu.cfs_quota_us")

	if err := os.WriteFile(periodPath, []byte("200000"), 0644); err != nil {
		t.Fatal(err)
	}

	m := &Manager{name: "fake"}
	m.cpuPathOverride = dir
	if err := m.SetCPULimit(50); err != nil {
		t.Fatalf("SetCPULimit: %v", err)
	}

	got, err := os.ReadFile(quotaPath)
	if err != nil {
		t.Fatal(err)
	}
	quota, err := strconv.ParseInt(string(got), 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	if quota != 100000 {
		t.Errorf("quota = %d, want 100000 (200000 * 50%%)", quota)
	}
}

func TestSetMemoryLimitBytesMath(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{name: "fake"}
	m.memoryPathOverride = dir

	if err := m.SetMemoryLimit(256); err != nil {
		t.Fatalf("SetMemoryLimit: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "memory.limit_in_bytes"))
	if err != nil {
		t.Fatal(err)
	}
	limit, err := strconv.ParseInt(string(got), 10, 64)
	if err != nil {
		t.Fatal(err)
	}
	if limit != 256*1024*1024 {
		t.Errorf("limit = %d, want %d", limit, 256*1024*1024)
	}
}

func TestAvailableReportsMissingHierarchy(t *testing.T) {
	// On hosts without cgroup v1 mounted at all (e.g. a cgroup v2-only
	// test sandbox) this should cleanly report unavailable rather than
	// panicking; it is not skipped because the failure path is exactly
	// what's under test.
	if err := Available(); err != nil {
		t.Logf("cgroup v1 unavailable in this environment (expected in many sandboxes): %v", err)
	}
}
