package container

import "testing"

func TestNetnsNaming(t *testing.T) {
	c := &Container{Name: "alpha"}
	if got := c.Netns(); got != "container-alpha" {
		t.Errorf("Netns() = %q, want container-alpha", got)
	}
}

func TestLiveStates(t *testing.T) {
	cases := []struct {
		state State
		live  bool
	}{
		{StateCreating, true},
		{StateRunning, true},
		{StateTerminating, false},
		{StateDead, false},
		{StateOrphaned, false},
	}
	for _, c := range cases {
		cont := &Container{State: c.state}
		if got := cont.Live(); got != c.live {
			t.Errorf("Live() for state %s = %v, want %v", c.state, got, c.live)
		}
	}
}

func TestCopyIsDeep(t *testing.T) {
	pid := 42
	orig := &Container{Name: "alpha", InitPID: &pid}
	cp := orig.Copy()

	if cp.InitPID == orig.InitPID {
		t.Fatal("Copy should not share the InitPID pointer")
	}
	if *cp.InitPID != 42 {
		t.Errorf("*cp.InitPID = %d, want 42", *cp.InitPID)
	}

	*cp.InitPID = 99
	if *orig.InitPID != 42 {
		t.Error("mutating the copy's InitPID should not affect the original")
	}
}

func TestCopyNilPID(t *testing.T) {
	orig := &Container{Name: "alpha"}
	cp := orig.Copy()
	if cp.InitPID != nil {
		t.Error("Copy of a nil InitPID should stay nil")
	}
}
