package spf_test

import (
	"testing"

	"github.com/holo-suite/holod/internal/spf"
)

// TestScenarioS3 replays the literal SPF-delay FSM event sequence from the
// testable-properties set and checks the state after each stimulus.
func TestScenarioS3(t *testing.T) {
	t.Parallel()

	cfg := spf.Config{
		InitialDelay: 50_000_000,  // 50ms
		ShortDelay:   200_000_000, // 200ms
		LongDelay:    5_000_000_000,
		TimeToLearn:  500_000_000,
		HoldDown:     10_000_000_000,
	}

	state := spf.StateQuiet
	delayArmed := false

	apply := func(event spf.Event) spf.Result {
		result, err := spf.ApplyEvent(state, event, delayArmed, cfg)
		if err != nil {
			t.Fatalf("ApplyEvent(%s, %s): %v", state, event, err)
		}
		state = result.NewState
		for _, a := range result.Actions {
			switch a.Kind {
			case spf.ActionStartDelayTimer:
				delayArmed = true
			case spf.ActionCancelDelayTimer:
				delayArmed = false
			}
		}
		return result
	}

	// t=0: Igp -> ShortWait, delay/learn/holddown armed.
	apply(spf.EventIgp)
	if state != spf.StateShortWait {
		t.Fatalf("t=0: state = %s, want ShortWait", state)
	}
	if !delayArmed {
		t.Fatalf("t=0: delay timer not armed")
	}

	// t=10ms: Igp -> ShortWait, holddown reset, delay unchanged (already armed).
	apply(spf.EventIgp)
	if state != spf.StateShortWait {
		t.Fatalf("t=10ms: state = %s, want ShortWait", state)
	}
	if !delayArmed {
		t.Fatalf("t=10ms: delay timer should remain armed")
	}

	// t=60ms: DelayTimer fires -> SPF runs, delay cleared, state unchanged.
	apply(spf.EventDelayTimer)
	if state != spf.StateShortWait {
		t.Fatalf("t=60ms: state = %s, want ShortWait", state)
	}
	if delayArmed {
		t.Fatalf("t=60ms: delay timer should be cleared")
	}

	// t=520ms: LearnTimer fires -> LongWait.
	apply(spf.EventLearnTimer)
	if state != spf.StateLongWait {
		t.Fatalf("t=520ms: state = %s, want LongWait", state)
	}

	// t=550ms: Igp -> LongWait, holddown reset, delay=long_delay armed.
	apply(spf.EventIgp)
	if state != spf.StateLongWait {
		t.Fatalf("t=550ms: state = %s, want LongWait", state)
	}
	if !delayArmed {
		t.Fatalf("t=550ms: delay timer should be (re)armed with long_delay")
	}
}

func TestProgrammingFaultSurfaces(t *testing.T) {
	t.Parallel()

	cfg := spf.Config{}
	if _, err := spf.ApplyEvent(spf.StateQuiet, spf.EventHoldDownTimer, false, cfg); err == nil {
		t.Fatalf("ApplyEvent(Quiet, HoldDownTimer) succeeded, want ErrProgrammingFault")
	}
}
