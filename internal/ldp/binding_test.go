package ldp_test

import (
	"net/netip"
	"testing"

	"github.com/holo-suite/holod/internal/label"
	"github.com/holo-suite/holod/internal/ldp"
)

type recordingSender struct {
	sent []string
}

func (s *recordingSender) SendLabelMapping(peer netip.Addr, fec netip.Prefix, localLabel uint32) {
	s.sent = append(s.sent, peer.String())
}

type recordingInstaller struct {
	installs []struct {
		local, out uint32
		nexthop    netip.Addr
	}
}

func (i *recordingInstaller) InstallLabelSwap(localLabel, outLabel uint32, nexthop netip.Addr) {
	i.installs = append(i.installs, struct {
		local, out uint32
		nexthop    netip.Addr
	}{localLabel, outLabel, nexthop})
}

// TestScenarioS6 drives the exact sequence spec.md §8 S6 describes: a RIB
// RouteAdd for a new FEC allocates a local label and emits a Label
// Mapping; a previously stored remote mapping for the same FEC then
// triggers an MPLS LIB install combining the two labels.
func TestScenarioS6(t *testing.T) {
	t.Parallel()

	mgr := label.NewManager()
	sender := &recordingSender{}
	installer := &recordingInstaller{}
	b := ldp.NewBindings(mgr, sender, installer)

	peer := netip.MustParseAddr("10.0.0.5")
	fec := netip.MustParsePrefix("10.1.1.0/24")

	b.MappingReceived(fec, peer, 777)
	if len(installer.installs) != 0 {
		t.Fatalf("install fired before a local label existed")
	}

	localLabel, err := b.RouteAdded(fec, peer)
	if err != nil {
		t.Fatalf("RouteAdded: %v", err)
	}
	if localLabel != 17 {
		t.Fatalf("localLabel = %d, want 17 (first dynamic label)", localLabel)
	}

	if len(sender.sent) != 1 || sender.sent[0] != peer.String() {
		t.Fatalf("SendLabelMapping not called with expected peer: %v", sender.sent)
	}

	if len(installer.installs) != 1 {
		t.Fatalf("expected exactly one swap install, got %d", len(installer.installs))
	}
	got := installer.installs[0]
	if got.local != localLabel || got.out != 777 || got.nexthop != peer {
		t.Fatalf("install = %+v, want local=%d out=777 nexthop=%s", got, localLabel, peer)
	}
}

func TestRouteWithdrawnClearsLocalLabel(t *testing.T) {
	t.Parallel()

	mgr := label.NewManager()
	b := ldp.NewBindings(mgr, nil, nil)
	fec := netip.MustParsePrefix("192.0.2.0/24")

	if _, err := b.RouteAdded(fec, netip.MustParseAddr("10.0.0.5")); err != nil {
		t.Fatalf("RouteAdded: %v", err)
	}
	b.RouteWithdrawn(fec)

	if _, ok := b.LocalLabel(fec); ok {
		t.Fatalf("local label still present after withdrawal")
	}
}
