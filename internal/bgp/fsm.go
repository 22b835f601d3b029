package bgp

import "errors"

// State is a BGP peer session state (RFC 4271 §8, the 6-state FSM).
type State uint8

const (
	StateIdle State = iota
	StateConnect
	StateActive
	StateOpenSent
	StateOpenConfirm
	StateEstablished
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnect:
		return "Connect"
	case StateActive:
		return "Active"
	case StateOpenSent:
		return "OpenSent"
	case StateOpenConfirm:
		return "OpenConfirm"
	case StateEstablished:
		return "Established"
	default:
		return "Unknown"
	}
}

// Event is a BGP FSM event, restricted to the subset of RFC 4271 §8.1's
// numbered events this implementation drives explicitly (transport and
// timer events are folded into the same names other protocol packages in
// this module use, rather than the RFC's Event 1..28 numbering).
type Event uint8

const (
	EventManualStart Event = iota
	EventTCPConnectionConfirmed
	EventTCPConnectionFails
	EventOpenReceived
	EventOpenCollisionDump
	EventKeepaliveReceived
	EventUpdateReceived
	EventHoldTimerExpires
	EventKeepaliveTimerExpires
	EventNotificationReceived
	EventAdminStop
)

// Action is a side effect the caller must execute after a transition.
type Action uint8

const (
	ActionInitiateConnection Action = iota + 1
	ActionSendOpen
	ActionSendKeepalive
	ActionSendNotification
	ActionStartHoldTimer
	ActionStartKeepaliveTimer
	ActionNotifyEstablished
	ActionNotifyDown
	ActionCloseConnection
)

type stateEvent struct {
	state State
	event Event
}

type transition struct {
	next    State
	actions []Action
}

// ErrProgrammingFault mirrors ospf.ErrProgrammingFault: an (state,event)
// pair this FSM does not define is a programming error, not a silent
// ignore, per spec.md §4.5's rule applied across every table-driven FSM in
// this module except BFD itself (which is explicitly the one exception
// that silently discards unlisted pairs).
var ErrProgrammingFault = errors.New("bgp: undefined session fsm transition")

//nolint:gochecknoglobals
var fsmTable = map[stateEvent]transition{
	{StateIdle, EventManualStart}: {StateConnect, []Action{ActionInitiateConnection}},

	{StateConnect, EventTCPConnectionConfirmed}: {StateOpenSent, []Action{ActionSendOpen, ActionStartHoldTimer}},
	{StateConnect, EventTCPConnectionFails}:     {StateActive, nil},

	{StateActive, EventTCPConnectionConfirmed}: {StateOpenSent, []Action{ActionSendOpen, ActionStartHoldTimer}},

	{StateOpenSent, EventOpenReceived}: {StateOpenConfirm, []Action{ActionSendKeepalive, ActionStartKeepaliveTimer}},
	{StateOpenSent, EventTCPConnectionFails}:    {StateActive, nil},
	{StateOpenSent, EventNotificationReceived}:  {StateIdle, []Action{ActionCloseConnection}},

	{StateOpenConfirm, EventKeepaliveReceived}: {StateEstablished, []Action{ActionNotifyEstablished}},
	{StateOpenConfirm, EventNotificationReceived}: {StateIdle, []Action{ActionCloseConnection}},
	{StateOpenConfirm, EventHoldTimerExpires}:   {StateIdle, []Action{ActionSendNotification, ActionCloseConnection}},

	{StateEstablished, EventKeepaliveReceived}:    {StateEstablished, []Action{ActionStartHoldTimer}},
	{StateEstablished, EventUpdateReceived}:       {StateEstablished, []Action{ActionStartHoldTimer}},
	{StateEstablished, EventNotificationReceived}: {StateIdle, []Action{ActionCloseConnection, ActionNotifyDown}},
	{StateEstablished, EventHoldTimerExpires}:     {StateIdle, []Action{ActionSendNotification, ActionCloseConnection, ActionNotifyDown}},
}

// Result is the outcome of applying an event to the session FSM.
type Result struct {
	OldState State
	NewState State
	Actions  []Action
	Changed  bool
}

// ApplyEvent is the pure BGP session FSM function. EventAdminStop and
// EventOpenCollisionDump are handled uniformly (always drop to Idle),
// matching RFC 4271's treatment of administrative stop in every state.
func ApplyEvent(state State, event Event) (Result, error) {
	if event == EventAdminStop || event == EventOpenCollisionDump {
		return Result{
			OldState: state,
			NewState: StateIdle,
			Actions:  []Action{ActionSendNotification, ActionCloseConnection},
			Changed:  state != StateIdle,
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

// ValidateOpen checks an inbound OPEN against the local configuration and
// returns the NOTIFICATION to send on mismatch, or nil if it is acceptable.
// Drives scenario S5: a peer AS mismatch produces OPEN Message Error /
// Bad Peer AS and the session returns to Idle.
func ValidateOpen(open Open, expectedPeerAS uint16, expectedVersion uint8) *Notification {
	if open.Version != expectedVersion {
		return &Notification{ErrorCode: ErrCodeOpenMessage, ErrorSubcode: SubcodeUnsupportedVersion}
	}
	if open.MyAS != expectedPeerAS {
		return &Notification{ErrorCode: ErrCodeOpenMessage, ErrorSubcode: SubcodeBadPeerAS}
	}
	if open.HoldTime != 0 && open.HoldTime < 3 {
		return &Notification{ErrorCode: ErrCodeOpenMessage, ErrorSubcode: SubcodeUnacceptableHold}
	}
	return nil
}
