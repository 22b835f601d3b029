package ospf

// GracefulRestartHelper tracks this router's helper-mode state for one
// neighbor, per spec.md §4.3's explicit decision: a received Grace-LSA with
// age below the advertised grace period, while the neighbor is Full and the
// LSDB has no topology-affecting LSA in that neighbor's retransmission
// list, starts a helper timer; while active the neighbor is held Full and
// advertised to SPF as up regardless of its underlying adjacency FSM state.
type GracefulRestartHelper struct {
	active     bool
	gracePeriodSecs uint32
	elapsedSecs     uint32
}

// ExitReason names why helper mode ended, for logging and for the DR/BDR
// re-election and Router/Network LSA re-origination spec.md §4.3 requires
// on exit.
type ExitReason uint8

const (
	ExitGracePeriodCompleted ExitReason = iota
	ExitTimerExpired
	ExitTopologyChange
)

func (r ExitReason) String() string {
	switch r {
	case ExitGracePeriodCompleted:
		return "grace period completed"
	case ExitTimerExpired:
		return "helper timer expired"
	case ExitTopologyChange:
		return "topology-affecting LSA received"
	default:
		return "unknown"
	}
}

// Start begins helper mode for a Grace-LSA advertising gracePeriodSecs,
// provided the preconditions spec.md §4.3 names hold: the neighbor is Full
// and no topology-affecting LSA is currently in its retransmission list.
// hasTopologyChangeInRxmt is supplied by the caller, which owns the
// neighbor's retransmission-list state.
func (h *GracefulRestartHelper) Start(neighborFull bool, hasTopologyChangeInRxmt bool, gracePeriodSecs uint32) bool {
	if !neighborFull || hasTopologyChangeInRxmt {
		return false
	}
	h.active = true
	h.gracePeriodSecs = gracePeriodSecs
	h.elapsedSecs = 0
	return true
}

// Active reports whether helper mode is currently in effect.
func (h *GracefulRestartHelper) Active() bool {
	return h.active
}

// Tick advances the helper's elapsed time by one second and reports an
// exit reason if the grace period has elapsed.
func (h *GracefulRestartHelper) Tick() (ExitReason, bool) {
	if !h.active {
		return 0, false
	}
	h.elapsedSecs++
	if h.elapsedSecs >= h.gracePeriodSecs {
		h.active = false
		return ExitGracePeriodCompleted, true
	}
	return 0, false
}

// TopologyChanged ends helper mode immediately because a topology-affecting
// LSA reached this router, per spec.md §4.3's third exit reason.
func (h *GracefulRestartHelper) TopologyChanged() (ExitReason, bool) {
	if !h.active {
		return 0, false
	}
	h.active = false
	return ExitTopologyChange, true
}

// Expire ends helper mode because the helper timer itself expired (a local
// safety bound distinct from grace-period completion, e.g. an operator
// configured maximum).
func (h *GracefulRestartHelper) Expire() (ExitReason, bool) {
	if !h.active {
		return 0, false
	}
	h.active = false
	return ExitTimerExpired, true
}
