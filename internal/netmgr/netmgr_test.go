package netmgr

import (
	"fmt"
	"testing"

	"github.com/tonidy/pak-rt/internal/container"
	"github.com/tonidy/pak-rt/internal/rterr"
)

func TestAllocateIPStartsAtTen(t *testing.T) {
	ip, err := AllocateIP(nil)
	if err != nil {
		t.Fatalf("AllocateIP: %v", err)
	}
	if ip != "10.0.0.10" {
		t.Errorf("AllocateIP = %s, want 10.0.0.10 for an empty set", ip)
	}
}

func TestAllocateIPSkipsUsed(t *testing.T) {
	live := []*container.Container{
		{IPAddress: "10.0.0.10"},
		{IPAddress: "10.0.0.11"},
	}
	ip, err := AllocateIP(live)
	if err != nil {
		t.Fatalf("AllocateIP: %v", err)
	}
	if ip != "10.0.0.12" {
		t.Errorf("AllocateIP = %s, want 10.0.0.12", ip)
	}
}

func TestAllocateIPExhaustion(t *testing.T) {
	var live []*container.Container
	for host := firstHost; host <= lastHost; host++ {
		live = append(live, &container.Container{IPAddress: fmt.Sprintf("10.0.0.%d", host)})
	}

	_, err := AllocateIP(live)
	if err == nil {
		t.Fatal("expected ResourceExhausted once the /24 is saturated")
	}
	if rterr.KindOf(err) != rterr.ResourceExhausted {
		t.Errorf("KindOf(err) = %v, want ResourceExhausted", rterr.KindOf(err))
	}
}
