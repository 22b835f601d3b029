package spf

import (
	"context"
	"log/slog"
	"time"
)

// Runner is invoked synchronously whenever the FSM decides to run SPF.
type Runner func()

// Machine drives the pure ApplyEvent table with real timers and a supplied
// Runner, the same way bfd.Session drives bfd.ApplyEvent with its transmit
// and detection timers: all timer manipulation happens from a single
// goroutine (Run), so no locking is needed around the state itself.
type Machine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger

	state State

	delayTimer    *time.Timer
	delayArmed    bool
	holdDownTimer *time.Timer
	learnTimer    *time.Timer

	events chan Event
}

// NewMachine creates a Machine in StateQuiet.
func NewMachine(cfg Config, runner Runner, logger *slog.Logger) *Machine {
	return &Machine{
		cfg:    cfg,
		runner: runner,
		logger: logger.With(slog.String("component", "spf.machine")),
		state:  StateQuiet,
		events: make(chan Event, 16),
	}
}

// Notify posts an event to the machine's main loop. Safe to call from any
// goroutine; never blocks longer than it takes the loop to drain one slot
// (the channel is generously buffered since SPF-triggering events are rare
// relative to packet processing).
func (m *Machine) Notify(event Event) {
	m.events <- event
}

// State returns the current FSM state. Only meaningful when called from
// the same goroutine driving Run, or for diagnostics.
func (m *Machine) State() State {
	return m.state
}

// Run drives the machine until ctx is cancelled. Every timer fire is
// translated into the matching FSM event and fed through the same path as
// an externally posted Notify, so there is exactly one place
// (the select below) where state is mutated.
func (m *Machine) Run(ctx context.Context) {
	defer m.stopTimers()

	for {
		var delayC, holdDownC, learnC <-chan time.Time
		if m.delayTimer != nil {
			delayC = m.delayTimer.C
		}
		if m.holdDownTimer != nil {
			holdDownC = m.holdDownTimer.C
		}
		if m.learnTimer != nil {
			learnC = m.learnTimer.C
		}

		select {
		case <-ctx.Done():
			return
		case event := <-m.events:
			m.apply(event)
		case <-delayC:
			m.delayTimer = nil
			m.apply(EventDelayTimer)
		case <-holdDownC:
			m.holdDownTimer = nil
			m.apply(EventHoldDownTimer)
		case <-learnC:
			m.learnTimer = nil
			m.apply(EventLearnTimer)
		}
	}
}

func (m *Machine) apply(event Event) {
	result, err := ApplyEvent(m.state, event, m.delayArmed, m.cfg)
	if err != nil {
		m.logger.Error("spf fsm programming fault",
			slog.String("state", m.state.String()),
			slog.String("event", event.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	changed := result.OldState != result.NewState
	m.state = result.NewState

	for _, action := range result.Actions {
		m.execute(action)
	}

	if changed {
		m.logger.Debug("spf state transition",
			slog.String("from", result.OldState.String()),
			slog.String("to", result.NewState.String()),
			slog.String("event", event.String()),
		)
	}
}

func (m *Machine) execute(action Action) {
	switch action.Kind {
	case ActionStartDelayTimer:
		m.delayTimer = time.NewTimer(time.Duration(action.Duration))
		m.delayArmed = true
	case ActionCancelDelayTimer:
		if m.delayTimer != nil {
			m.delayTimer.Stop()
			m.delayTimer = nil
		}
		m.delayArmed = false
	case ActionStartHoldDownTimer:
		if m.holdDownTimer != nil {
			m.holdDownTimer.Stop()
		}
		m.holdDownTimer = time.NewTimer(time.Duration(action.Duration))
	case ActionStartLearnTimer:
		m.learnTimer = time.NewTimer(time.Duration(action.Duration))
	case ActionCancelLearnTimer:
		if m.learnTimer != nil {
			m.learnTimer.Stop()
			m.learnTimer = nil
		}
	case ActionRunSPF:
		if m.runner != nil {
			m.runner()
		}
	}
}

func (m *Machine) stopTimers() {
	if m.delayTimer != nil {
		m.delayTimer.Stop()
	}
	if m.holdDownTimer != nil {
		m.holdDownTimer.Stop()
	}
	if m.learnTimer != nil {
		m.learnTimer.Stop()
	}
}
