package ldp

import "errors"

// State is an LDP session state (RFC 5036 §2.5.5).
type State uint8

const (
	StateNonExistent State = iota
	StateInitialized
	StateOpenRec
	StateOpenSent
	StateOperational
)

func (s State) String() string {
	switch s {
	case StateNonExistent:
		return "NonExistent"
	case StateInitialized:
		return "Initialized"
	case StateOpenRec:
		return "OpenRec"
	case StateOpenSent:
		return "OpenSent"
	case StateOperational:
		return "Operational"
	default:
		return "Unknown"
	}
}

// Event is an LDP session FSM event.
type Event uint8

const (
	EventTCPConnected Event = iota
	EventInitReceived
	EventInitSent
	EventKeepaliveReceived
	EventKeepaliveTimerExpires
	EventNotificationReceived
	EventFatalError
	EventSessionClose
)

// Action is a side-effect the caller must execute after a transition.
type Action uint8

const (
	ActionSendInit Action = iota + 1
	ActionSendKeepalive
	ActionStartKeepaliveTimer
	ActionNotifyOperational
	ActionNotifyDown
	ActionSendNotification
	ActionCloseSession
)

type stateEvent struct {
	state State
	event Event
}

type transition struct {
	next    State
	actions []Action
}

// ErrProgrammingFault mirrors ospf.ErrProgrammingFault and bgp.ErrProgrammingFault.
var ErrProgrammingFault = errors.New("ldp: undefined session fsm transition")

//nolint:gochecknoglobals
var fsmTable = map[stateEvent]transition{
	{StateNonExistent, EventTCPConnected}: {StateInitialized, nil},

	{StateInitialized, EventInitSent}:     {StateOpenSent, nil},
	{StateInitialized, EventInitReceived}: {StateOpenRec, []Action{ActionSendInit, ActionSendKeepalive}},

	{StateOpenSent, EventInitReceived}:     {StateOpenRec, []Action{ActionSendKeepalive}},
	{StateOpenSent, EventNotificationReceived}: {StateNonExistent, []Action{ActionCloseSession}},

	{StateOpenRec, EventKeepaliveReceived}: {StateOperational, []Action{ActionNotifyOperational, ActionStartKeepaliveTimer}},
	{StateOpenRec, EventNotificationReceived}: {StateNonExistent, []Action{ActionCloseSession}},

	{StateOperational, EventKeepaliveReceived}:       {StateOperational, []Action{ActionStartKeepaliveTimer}},
	{StateOperational, EventKeepaliveTimerExpires}:   {StateNonExistent, []Action{ActionCloseSession, ActionNotifyDown}},
	{StateOperational, EventNotificationReceived}:    {StateNonExistent, []Action{ActionCloseSession, ActionNotifyDown}},
}

// Result is the outcome of applying an event to the session FSM.
type Result struct {
	OldState State
	NewState State
	Actions  []Action
	Changed  bool
}

// ApplyEvent is the pure LDP session FSM function. EventFatalError and
// EventSessionClose are handled uniformly: a fatal NOTIFICATION sent or
// received always closes the session and removes the neighbor, per
// spec.md §4.3's explicit rule for LDP.
func ApplyEvent(state State, event Event) (Result, error) {
	if event == EventFatalError || event == EventSessionClose {
		return Result{
			OldState: state,
			NewState: StateNonExistent,
			Actions:  []Action{ActionSendNotification, ActionCloseSession, ActionNotifyDown},
			Changed:  state != StateNonExistent,
		}, nil
	}

	t, ok := fsmTable[stateEvent{state, event}]
	if !ok {
		return Result{}, ErrProgrammingFault
	}
	return Result{
		OldState: state,
		NewState: t.next,
		Actions:  t.actions,
		Changed:  t.next != state,
	}, nil
}
