package rib_test

import (
	"net/netip"
	"testing"

	"github.com/holo-suite/holod/internal/rib"
)

func mustPrefix(t *testing.T, s string) netip.Prefix {
	t.Helper()
	p, err := netip.ParsePrefix(s)
	if err != nil {
		t.Fatalf("ParsePrefix(%s): %v", s, err)
	}
	return p
}

// TestInvariant8RIBIdempotence applies the same RouteAdd twice and checks
// only one netlink install call is issued.
func TestInvariant8RIBIdempotence(t *testing.T) {
	t.Parallel()

	prog := rib.NewLoggingProgrammer()
	r := rib.New(prog, nil)

	prefix := mustPrefix(t, "10.1.1.0/24")
	route := rib.Route{
		Prefix:   prefix,
		Protocol: "ospf",
		Distance: 110,
		Metric:   10,
		Nexthops: []rib.Nexthop{{Addr: netip.MustParseAddr("10.0.0.1"), IfIndex: 1}},
	}

	if err := r.AddRoute(route); err != nil {
		t.Fatalf("first AddRoute: %v", err)
	}
	if err := r.AddRoute(route); err != nil {
		t.Fatalf("second AddRoute: %v", err)
	}

	installs := 0
	for _, c := range prog.Calls {
		if len(c) >= 7 && c[:7] == "install" {
			installs++
		}
	}
	if installs != 1 {
		t.Fatalf("install calls = %d, want 1; calls=%v", installs, prog.Calls)
	}

	got, ok := r.Lookup(prefix)
	if !ok || !got.Installed {
		t.Fatalf("route not marked installed: %+v", got)
	}
}

func TestConnectedRoutesNeverInstalled(t *testing.T) {
	t.Parallel()

	prog := rib.NewLoggingProgrammer()
	r := rib.New(prog, nil)

	prefix := mustPrefix(t, "192.0.2.0/24")
	if err := r.AddConnectedRoute(rib.Route{Prefix: prefix, Distance: 0}); err != nil {
		t.Fatalf("AddConnectedRoute: %v", err)
	}

	if len(prog.Calls) != 0 {
		t.Fatalf("kernel programmer called for a connected route: %v", prog.Calls)
	}
	got, ok := r.Lookup(prefix)
	if !ok || got.Installed {
		t.Fatalf("connected route marked installed: %+v", got)
	}
}

func TestPreferenceReplacesOnLowerDistance(t *testing.T) {
	t.Parallel()

	prog := rib.NewLoggingProgrammer()
	r := rib.New(prog, nil)
	prefix := mustPrefix(t, "10.2.2.0/24")

	nh := []rib.Nexthop{{Addr: netip.MustParseAddr("10.0.0.2"), IfIndex: 1}}

	if err := r.AddRoute(rib.Route{Prefix: prefix, Protocol: "rip", Distance: 120, Metric: 2, Nexthops: nh}); err != nil {
		t.Fatalf("AddRoute rip: %v", err)
	}
	if err := r.AddRoute(rib.Route{Prefix: prefix, Protocol: "ospf", Distance: 110, Metric: 10, Nexthops: nh}); err != nil {
		t.Fatalf("AddRoute ospf: %v", err)
	}

	got, _ := r.Lookup(prefix)
	if got.Protocol != "ospf" {
		t.Fatalf("stored route protocol = %s, want ospf (lower distance)", got.Protocol)
	}

	// A higher-distance candidate must not replace the preferred route.
	if err := r.AddRoute(rib.Route{Prefix: prefix, Protocol: "static", Distance: 200, Nexthops: nh}); err != nil {
		t.Fatalf("AddRoute static: %v", err)
	}
	got, _ = r.Lookup(prefix)
	if got.Protocol != "ospf" {
		t.Fatalf("higher-distance route replaced preferred entry: %+v", got)
	}
}

type recordingPublisher struct {
	updates map[netip.Addr]*uint32
}

func (p *recordingPublisher) PublishNexthopUpdate(addr netip.Addr, metric *uint32) {
	if p.updates == nil {
		p.updates = make(map[netip.Addr]*uint32)
	}
	p.updates[addr] = metric
}

func TestNexthopTrackingPublishesResolution(t *testing.T) {
	t.Parallel()

	pub := &recordingPublisher{}
	r := rib.New(rib.NewLoggingProgrammer(), pub)

	nhAddr := netip.MustParseAddr("10.0.0.2")
	r.TrackNexthop(nhAddr)

	if m, ok := pub.updates[nhAddr]; !ok || m != nil {
		t.Fatalf("expected unresolved (nil) before any covering route, got %v", m)
	}

	prefix := mustPrefix(t, "10.0.0.0/24")
	if err := r.AddRoute(rib.Route{
		Prefix: prefix, Protocol: "ospf", Distance: 110, Metric: 42,
		Nexthops: []rib.Nexthop{{Addr: netip.MustParseAddr("10.0.0.1"), IfIndex: 1}},
	}); err != nil {
		t.Fatalf("AddRoute: %v", err)
	}

	m, ok := pub.updates[nhAddr]
	if !ok || m == nil || *m != 42 {
		t.Fatalf("resolution after route add = %v, want metric 42", m)
	}
}
