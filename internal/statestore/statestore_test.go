package statestore

import (
	"testing"

	"github.com/tonidy/pak-rt/internal/container"
	"github.com/tonidy/pak-rt/internal/pathstore"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	paths := pathstore.New(t.TempDir())
	if err := paths.MkdirTree("alpha"); err != nil {
		t.Fatal(err)
	}
	s := New(paths)

	c := &container.Container{
		Name:       "alpha",
		MemoryMB:   256,
		CPUPercent: 50,
		Hostname:   "alpha",
		IPAddress:  "10.0.0.10",
		State:      container.StateRunning,
	}
	if err := s.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load("alpha")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.IPAddress != c.IPAddress || got.State != c.State {
		t.Errorf("Load returned %+v, want %+v", got, c)
	}
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	paths := pathstore.New(t.TempDir())
	s := New(paths)

	_, err := s.Load("ghost")
	if err == nil {
		t.Fatal("expected error for missing container")
	}
}

func TestListSkipsUnreadableRecords(t *testing.T) {
	paths := pathstore.New(t.TempDir())
	s := New(paths)

	if err := paths.MkdirTree("good"); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(&container.Container{Name: "good", State: container.StateRunning}); err != nil {
		t.Fatal(err)
	}
	// "bad" has a directory but no config.json at all.
	if err := paths.MkdirTree("bad"); err != nil {
		t.Fatal(err)
	}

	all, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || all[0].Name != "good" {
		t.Errorf("List returned %v, want only [good]", all)
	}
}

func TestLiveFiltersByState(t *testing.T) {
	paths := pathstore.New(t.TempDir())
	s := New(paths)

	for _, c := range []*container.Container{
		{Name: "running", State: container.StateRunning},
		{Name: "dead", State: container.StateDead},
		{Name: "creating", State: container.StateCreating},
	} {
		if err := paths.MkdirTree(c.Name); err != nil {
			t.Fatal(err)
		}
		if err := s.Save(c); err != nil {
			t.Fatal(err)
		}
	}

	live, err := s.Live()
	if err != nil {
		t.Fatal(err)
	}
	names := map[string]bool{}
	for _, c := range live {
		names[c.Name] = true
	}
	if !names["running"] || !names["creating"] || names["dead"] {
		t.Errorf("Live returned %v, want running+creating only", live)
	}
}

func TestClassifyOrphansMissingProcess(t *testing.T) {
	paths := pathstore.New(t.TempDir())
	s := New(paths)

	fakePID := 999999999 // astronomically unlikely to be a live PID
	c := &container.Container{Name: "alpha", State: container.StateRunning, InitPID: &fakePID}

	if got := s.Classify(c); got != container.StateOrphaned {
		t.Errorf("Classify = %v, want orphaned", got)
	}
}

func TestClassifyLeavesDeadAlone(t *testing.T) {
	paths := pathstore.New(t.TempDir())
	s := New(paths)

	c := &container.Container{Name: "alpha", State: container.StateDead}
	if got := s.Classify(c); got != container.StateDead {
		t.Errorf("Classify = %v, want dead unchanged", got)
	}
}
