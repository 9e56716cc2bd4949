package validate

import "testing"

func TestNameBoundary(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"a", false},
		{"container-1", false},
		{"a_b-C9", false},
		{"", true},
		{"a@b", true},
		{"has space", true},
		{makeString(MaxNameLen), false},
		{makeString(MaxNameLen + 1), true},
	}
	for _, c := range cases {
		err := Name(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("Name(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestMemoryMBBoundary(t *testing.T) {
	cases := []struct {
		mb      int
		wantErr bool
	}{
		{63, true},
		{64, false},
		{2048, false},
		{2049, true},
	}
	for _, c := range cases {
		if err := MemoryMB(c.mb); (err != nil) != c.wantErr {
			t.Errorf("MemoryMB(%d) error = %v, wantErr %v", c.mb, err, c.wantErr)
		}
	}
}

func TestCPUPercentBoundary(t *testing.T) {
	cases := []struct {
		pct     int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{100, false},
		{101, true},
	}
	for _, c := range cases {
		if err := CPUPercent(c.pct); (err != nil) != c.wantErr {
			t.Errorf("CPUPercent(%d) error = %v, wantErr %v", c.pct, err, c.wantErr)
		}
	}
}

func TestIPv4InSubnet(t *testing.T) {
	if _, err := IPv4InSubnet("10.0.0.10"); err != nil {
		t.Fatalf("expected 10.0.0.10 to be valid: %v", err)
	}
	if _, err := IPv4InSubnet("10.0.1.10"); err == nil {
		t.Fatal("expected address outside 10.0.0.0/24 to be rejected")
	}
	if _, err := IPv4InSubnet("not-an-ip"); err == nil {
		t.Fatal("expected malformed literal to be rejected")
	}
	if _, err := IPv4InSubnet("::1"); err == nil {
		t.Fatal("expected IPv6 literal to be rejected")
	}
}

func TestPIDRejectsNonPositive(t *testing.T) {
	if err := PID(0); err == nil {
		t.Fatal("expected pid 0 to be rejected")
	}
	if err := PID(-1); err == nil {
		t.Fatal("expected negative pid to be rejected")
	}
}

func TestProcessExistsForSelf(t *testing.T) {
	if !ProcessExists(1) {
		t.Fatal("expected pid 1 (init) to exist on any running Linux host")
	}
}

func makeString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
