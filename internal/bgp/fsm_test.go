package bgp_test

import (
	"testing"

	"github.com/holo-suite/holod/internal/bgp"
)

// TestScenarioS5 drives a peer through Connect -> OpenSent, then posts a
// locally-detected AS mismatch: ValidateOpen produces a NOTIFICATION and
// the FSM returns to Idle, exactly as a real peer rejection would.
func TestScenarioS5(t *testing.T) {
	t.Parallel()

	state := bgp.StateIdle

	res, err := bgp.ApplyEvent(state, bgp.EventManualStart)
	if err != nil {
		t.Fatalf("ManualStart: %v", err)
	}
	state = res.NewState
	if state != bgp.StateConnect {
		t.Fatalf("state = %v, want Connect", state)
	}

	res, err = bgp.ApplyEvent(state, bgp.EventTCPConnectionConfirmed)
	if err != nil {
		t.Fatalf("TCPConnectionConfirmed: %v", err)
	}
	state = res.NewState
	if state != bgp.StateOpenSent {
		t.Fatalf("state = %v, want OpenSent", state)
	}

	peerOpen := bgp.Open{Version: 4, MyAS: 65099, HoldTime: 90, BGPIdentifier: 0x02020202}
	notif := bgp.ValidateOpen(peerOpen, 65001, 4)
	if notif == nil {
		t.Fatalf("expected a NOTIFICATION for AS mismatch")
	}
	if notif.ErrorCode != bgp.ErrCodeOpenMessage || notif.ErrorSubcode != bgp.SubcodeBadPeerAS {
		t.Fatalf("notification = %+v, want OpenMessageError/BadPeerAS", notif)
	}

	res, err = bgp.ApplyEvent(state, bgp.EventNotificationReceived)
	if err != nil {
		t.Fatalf("NotificationReceived: %v", err)
	}
	if res.NewState != bgp.StateIdle {
		t.Fatalf("final state = %v, want Idle", res.NewState)
	}
}

func TestValidateOpenAcceptsMatchingAS(t *testing.T) {
	t.Parallel()

	open := bgp.Open{Version: 4, MyAS: 65001, HoldTime: 90}
	if notif := bgp.ValidateOpen(open, 65001, 4); notif != nil {
		t.Fatalf("unexpected notification for matching peer: %+v", notif)
	}
}

func TestAdminStopAlwaysDropsToIdle(t *testing.T) {
	t.Parallel()

	for _, s := range []bgp.State{bgp.StateConnect, bgp.StateOpenSent, bgp.StateEstablished} {
		res, err := bgp.ApplyEvent(s, bgp.EventAdminStop)
		if err != nil {
			t.Fatalf("ApplyEvent(%v, AdminStop): %v", s, err)
		}
		if res.NewState != bgp.StateIdle {
			t.Fatalf("from %v: NewState = %v, want Idle", s, res.NewState)
		}
	}
}

func TestUndefinedTransitionSurfacesProgrammingFault(t *testing.T) {
	t.Parallel()

	_, err := bgp.ApplyEvent(bgp.StateIdle, bgp.EventUpdateReceived)
	if err != bgp.ErrProgrammingFault {
		t.Fatalf("err = %v, want ErrProgrammingFault", err)
	}
}
