// Package spf implements the SPF-delay state machine (C5): an event-driven
// rate limiter that batches topology-change events into a bounded number of
// SPF runs per unit time. The transition table is modeled as a pure
// function in the style of bfd.ApplyEvent, with the one addition that some
// transitions conditionally arm a timer only if it is not already running
// (the table is parameterized by that one bit of external state rather than
// re-deriving it, same as the BFD FSM's poll-sequence bit lives outside its
// table).
package spf

import (
	"errors"
	"fmt"
)

// State is a level's position in the delay/hold-down state machine.
type State uint8

const (
	// StateQuiet is the initial state: no recent topology changes.
	StateQuiet State = iota
	// StateShortWait follows the first Igp event; SPF runs are still
	// batched on a short timer.
	StateShortWait
	// StateLongWait follows sustained churn (the learn timer fired);
	// SPF runs are batched on a longer timer to avoid excessive churn.
	StateLongWait
)

// String returns the human-readable state name.
func (s State) String() string {
	switch s {
	case StateQuiet:
		return "Quiet"
	case StateShortWait:
		return "ShortWait"
	case StateLongWait:
		return "LongWait"
	default:
		return "Unknown"
	}
}

// Event is an input to the SPF-delay FSM.
type Event uint8

const (
	// EventIgp is any topology-change event (LSA/LSP install, withdraw).
	EventIgp Event = iota
	// EventDelayTimer fires when the delay timer expires.
	EventDelayTimer
	// EventHoldDownTimer fires when the hold-down timer expires.
	EventHoldDownTimer
	// EventLearnTimer fires when the learn timer expires.
	EventLearnTimer
	// EventConfigChange is an operator-triggered immediate recomputation.
	EventConfigChange
)

// String returns the human-readable event name.
func (e Event) String() string {
	switch e {
	case EventIgp:
		return "Igp"
	case EventDelayTimer:
		return "DelayTimer"
	case EventHoldDownTimer:
		return "HoldDownTimer"
	case EventLearnTimer:
		return "LearnTimer"
	case EventConfigChange:
		return "ConfigChange"
	default:
		return "Unknown"
	}
}

// ActionKind is a side effect the caller must execute after a transition.
type ActionKind uint8

const (
	// ActionStartDelayTimer(Re)arms the delay timer for Duration.
	ActionStartDelayTimer ActionKind = iota + 1
	// ActionCancelDelayTimer cancels the delay timer if running.
	ActionCancelDelayTimer
	// ActionStartHoldDownTimer (re)arms the hold-down timer for Duration.
	ActionStartHoldDownTimer
	// ActionStartLearnTimer arms the learn timer for Duration.
	ActionStartLearnTimer
	// ActionCancelLearnTimer cancels the learn timer if running.
	ActionCancelLearnTimer
	// ActionRunSPF runs the SPF computation synchronously.
	ActionRunSPF
)

// Action pairs an ActionKind with the duration it needs, when applicable.
type Action struct {
	Kind     ActionKind
	Duration Duration
}

// Duration is a thin alias kept distinct from time.Duration so this package
// has no import-time dependency on wall-clock timers; the driver in
// machine.go converts to time.Duration when arming real timers.
type Duration = int64 // nanoseconds

// Config holds the constants spec.md §4.5 names.
type Config struct {
	InitialDelay Duration
	ShortDelay   Duration
	LongDelay    Duration
	TimeToLearn  Duration
	HoldDown     Duration
}

// ErrProgrammingFault is returned by ApplyEvent for an (state, event)
// combination spec.md §4.5 does not define. Per spec.md, any other
// combination is a programming error to be surfaced as a logged fault, not
// silently ignored (unlike the BFD FSM, where unlisted pairs are legitimate
// no-ops).
var ErrProgrammingFault = errors.New("spf: undefined state/event combination")

// Result holds the outcome of applying an event.
type Result struct {
	OldState State
	NewState State
	Actions  []Action
}

// ApplyEvent advances the FSM. delayArmed reports whether the delay timer
// is currently running, which the ShortWait/LongWait + Igp transitions need
// to decide whether to (re)start it. It is the driver's responsibility to
// track that bit (see Machine in machine.go).
func ApplyEvent(state State, event Event, delayArmed bool, cfg Config) (Result, error) {
	// The DelayTimer and ConfigChange events are defined identically for
	// every state ("*" rows in spec.md §4.5), so handle them first.
	switch event {
	case EventDelayTimer:
		return Result{
			OldState: state,
			NewState: state,
			Actions:  []Action{{Kind: ActionRunSPF}, {Kind: ActionCancelDelayTimer}},
		}, nil
	case EventConfigChange:
		return Result{
			OldState: state,
			NewState: state,
			Actions:  []Action{{Kind: ActionCancelDelayTimer}, {Kind: ActionRunSPF}},
		}, nil
	}

	switch state {
	case StateQuiet:
		if event == EventIgp {
			return Result{
				OldState: state,
				NewState: StateShortWait,
				Actions: []Action{
					{Kind: ActionStartDelayTimer, Duration: cfg.InitialDelay},
					{Kind: ActionStartLearnTimer, Duration: cfg.TimeToLearn},
					{Kind: ActionStartHoldDownTimer, Duration: cfg.HoldDown},
				},
			}, nil
		}

	case StateShortWait:
		switch event {
		case EventIgp:
			actions := []Action{{Kind: ActionStartHoldDownTimer, Duration: cfg.HoldDown}}
			if !delayArmed {
				actions = append(actions, Action{Kind: ActionStartDelayTimer, Duration: cfg.ShortDelay})
			}
			return Result{OldState: state, NewState: StateShortWait, Actions: actions}, nil
		case EventLearnTimer:
			return Result{OldState: state, NewState: StateLongWait}, nil
		case EventHoldDownTimer:
			return Result{
				OldState: state,
				NewState: StateQuiet,
				Actions:  []Action{{Kind: ActionCancelLearnTimer}},
			}, nil
		}

	case StateLongWait:
		switch event {
		case EventIgp:
			actions := []Action{{Kind: ActionStartHoldDownTimer, Duration: cfg.HoldDown}}
			if !delayArmed {
				actions = append(actions, Action{Kind: ActionStartDelayTimer, Duration: cfg.LongDelay})
			}
			return Result{OldState: state, NewState: StateLongWait, Actions: actions}, nil
		case EventHoldDownTimer:
			return Result{OldState: state, NewState: StateQuiet}, nil
		}
	}

	return Result{}, fmt.Errorf("state=%s event=%s: %w", state, event, ErrProgrammingFault)
}
