// Package netmgr wires per-container networking: a named netns, a
// veth pair straddling it, addresses and routes on both ends, and a
// connectivity probe done in-process via golang.org/x/net/icmp rather
// than shelling out to ping.
package netmgr

import (
	"fmt"
	"net"
	"runtime"
	"time"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/tonidy/pak-rt/internal/container"
	"github.com/tonidy/pak-rt/internal/pathstore"
	"github.com/tonidy/pak-rt/internal/rterr"
	"github.com/tonidy/pak-rt/internal/rtlog"
)

var log = rtlog.For("netmgr")

const (
	GatewayIP  = "10.0.0.1"
	subnetBits = 24
	firstHost  = 10 // addresses are handed out from .10 upward
	lastHost   = 254
)

// Manager wires one container's networking. Construct fresh per call;
// it holds no state of its own beyond the container name.
type Manager struct {
	name string
}

func New(name string) *Manager {
	return &Manager{name: name}
}

func vethNames(name string) (host, peer string) {
	return "veth-" + name, "veth-" + name + "-peer"
}

// AllocateIP scans the given live container records and returns the
// lowest unused address in 10.0.0.0/24 starting at .10. Callers must
// hold the orchestrator's IP-allocation lock.
func AllocateIP(live []*container.Container) (string, error) {
	used := make(map[string]bool, len(live))
	for _, c := range live {
		used[c.IPAddress] = true
	}
	for host := firstHost; host <= lastHost; host++ {
		candidate := fmt.Sprintf("10.0.0.%d", host)
		if !used[candidate] {
			return candidate, nil
		}
	}
	return "", rterr.New(rterr.ResourceExhausted, "no free address in 10.0.0.0/24")
}

// Wire performs the full per-container setup: netns, veth pair,
// addressing on both ends, and a connectivity probe from inside the
// namespace.
func (m *Manager) Wire(store *pathstore.Store, c *container.Container) error {
	vethHost, vethPeer := vethNames(m.name)
	c.VethHost = vethHost
	c.VethPeer = vethPeer

	// NewNamed performs unshare(CLONE_NEWNET) on the calling OS thread
	// and switches that thread into the new namespace as a side
	// effect. Lock the thread for the duration and capture the host
	// namespace before the switch happens, so it can be restored
	// before any host-side netlink call runs.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origNs, err := netns.Get()
	if err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "get host netns", err)
	}
	defer origNs.Close()

	contNs, err := netns.NewNamed(netnsName(m.name))
	if err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "create netns", err)
	}
	defer contNs.Close()

	if err := netns.Set(origNs); err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "return to host netns", err)
	}

	linkAttrs := netlink.NewLinkAttrs()
	linkAttrs.Name = vethHost
	veth := &netlink.Veth{
		LinkAttrs: linkAttrs,
		PeerName:  vethPeer,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "create veth pair", err)
	}

	peerLink, err := netlink.LinkByName(vethPeer)
	if err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "lookup veth peer", err)
	}
	if err := netlink.LinkSetNsFd(peerLink, int(contNs)); err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "move peer into netns", err)
	}

	if err := m.configureHostSide(vethHost); err != nil {
		return err
	}

	if err := m.configureContainerSide(contNs, vethPeer, c.IPAddress); err != nil {
		return err
	}

	if err := m.verifyConnectivity(contNs); err != nil {
		return err
	}

	return pathstore.AtomicWriteFile(store.NetworkIPConf(m.name),
		[]byte(fmt.Sprintf("ip=%s\ngateway=%s\n", c.IPAddress, GatewayIP)), 0644)
}

func netnsName(name string) string { return "container-" + name }

func (m *Manager) configureHostSide(vethHost string) error {
	link, err := netlink.LinkByName(vethHost)
	if err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "lookup host veth", err)
	}
	addr, err := netlink.ParseAddr(GatewayIP + "/" + fmt.Sprint(subnetBits))
	if err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "parse gateway addr", err)
	}
	if err := netlink.AddrAdd(link, addr); err != nil && !isExistsErr(err) {
		return rterr.Of(rterr.NetworkSetupFailed, "assign host addr", err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return rterr.Of(rterr.NetworkSetupFailed, "bring up host veth", err)
	}
	return nil
}

func (m *Manager) configureContainerSide(ns netns.NsHandle, peerName, ip string) error {
	return withNetns(ns, func() error {
		peerLink, err := netlink.LinkByName(peerName)
		if err != nil {
			return rterr.Of(rterr.NetworkSetupFailed, "lookup peer in netns", err)
		}
		if err := netlink.LinkSetName(peerLink, "eth0"); err != nil {
			return rterr.Of(rterr.NetworkSetupFailed, "rename peer to eth0", err)
		}
		eth0, err := netlink.LinkByName("eth0")
		if err != nil {
			return rterr.Of(rterr.NetworkSetupFailed, "lookup eth0", err)
		}
		addr, err := netlink.ParseAddr(ip + "/" + fmt.Sprint(subnetBits))
		if err != nil {
			return rterr.Of(rterr.NetworkSetupFailed, "parse container addr", err)
		}
		if err := netlink.AddrAdd(eth0, addr); err != nil {
			return rterr.Of(rterr.NetworkSetupFailed, "assign container addr", err)
		}
		if err := netlink.LinkSetUp(eth0); err != nil {
			return rterr.Of(rterr.NetworkSetupFailed, "bring up eth0", err)
		}
		lo, err := netlink.LinkByName("lo")
		if err == nil {
			netlink.LinkSetUp(lo)
		}
		gw := net.ParseIP(GatewayIP)
		route := &netlink.Route{LinkIndex: eth0.Attrs().Index, Gw: gw}
		if err := netlink.RouteAdd(route); err != nil && !isExistsErr(err) {
			return rterr.Of(rterr.NetworkSetupFailed, "install default route", err)
		}
		return nil
	})
}

// verifyConnectivity sends a single in-process ICMP echo to the
// gateway from inside the container's namespace.
func (m *Manager) verifyConnectivity(ns netns.NsHandle) error {
	err := withNetns(ns, func() error {
		conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
		if err != nil {
			return err
		}
		defer conn.Close()

		msg := icmp.Message{
			Type: ipv4.ICMPTypeEcho, Code: 0,
			Body: &icmp.Echo{ID: 1, Seq: 1, Data: []byte("pak-rt")},
		}
		wb, err := msg.Marshal(nil)
		if err != nil {
			return err
		}
		dst := &net.IPAddr{IP: net.ParseIP(GatewayIP)}
		if _, err := conn.WriteTo(wb, dst); err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		rb := make([]byte, 1500)
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return err
		}
		reply, err := icmp.ParseMessage(1, rb[:n])
		if err != nil {
			return err
		}
		if reply.Type != ipv4.ICMPTypeEchoReply {
			return fmt.Errorf("unexpected ICMP reply type %v", reply.Type)
		}
		return nil
	})
	if err != nil {
		return rterr.Of(rterr.NetworkUnreachable, "ping gateway", err)
	}
	return nil
}

// withNetns runs fn with the calling OS thread switched into ns,
// restoring the original namespace afterward. Switching namespaces
// only affects the current OS thread, and Go can reschedule a
// goroutine onto a different thread between any two instructions, so
// callers must lock the calling goroutine to its OS thread for the
// duration (Wire does this once, up front, around the whole
// sequence of calls that use withNetns).
func withNetns(ns netns.NsHandle, fn func() error) error {
	orig, err := netns.Get()
	if err != nil {
		return err
	}
	defer orig.Close()

	if err := netns.Set(ns); err != nil {
		return err
	}
	defer netns.Set(orig)

	return fn()
}

func isExistsErr(err error) bool {
	return err != nil && (err.Error() == "file exists" || containsExists(err))
}

func containsExists(err error) bool {
	s := err.Error()
	for i := 0; i+6 <= len(s); i++ {
		if s[i:i+6] == "EEXIST" {
			return true
		}
	}
	return false
}

// Teardown removes the veth pair and netns in reverse order, each
// step logged and independently best-effort.
func (m *Manager) Teardown(store *pathstore.Store) error {
	vethHost, _ := vethNames(m.name)

	if link, err := netlink.LinkByName(vethHost); err == nil {
		if err := netlink.LinkDel(link); err != nil {
			log.WithField("link", vethHost).WithError(err).Warn("failed to remove veth")
		}
	}

	if err := netns.DeleteNamed(netnsName(m.name)); err != nil {
		log.WithField("netns", netnsName(m.name)).WithError(err).Warn("failed to remove netns")
	}

	return nil
}
