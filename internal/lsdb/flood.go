package lsdb

// NeighborFloodState is the minimal view of a neighbor the flooding
// decision needs, kept protocol-agnostic: OSPF and IS-IS both supply it
// from their own neighbor/adjacency arenas.
type NeighborFloodState struct {
	// ID identifies the neighbor within its owning interface/instance.
	ID string
	// Interface is the name of the interface this neighbor is reachable on.
	Interface string
	// Full reports whether the neighbor has reached the Full/synchronized
	// adjacency state.
	Full bool
	// AtLeastExchanging reports whether the neighbor's state is >= Exchange
	// (ExStart counts, since LS requests can already be outstanding).
	AtLeastExchanging bool
	// Requested reports whether this LSA/LSP key is on the neighbor's
	// outstanding LS-request list, and if so how the received copy compares:
	// -1 older than requested, 0 equal, 1 newer. Only meaningful if
	// AtLeastExchanging && !Full.
	Requested    bool
	RequestedCmp int
}

// FloodInput bundles a received LSA/LSP event with the interface/neighbor
// context the decision needs.
type FloodInput struct {
	// ReceivedFrom is the neighbor ID the copy arrived from (skip
	// re-flooding to it, per spec.md §4.4 step 1's "If M == N, skip").
	ReceivedFrom string
	// ReceivingInterface is the interface the copy arrived on.
	ReceivingInterface string
	// ReceivingInterfaceIsDROrBDR reports whether this router is DR or BDR
	// on the receiving interface (spec.md §4.4 step 3).
	ReceivingInterfaceIsDROrBDR bool
	// ReceivingInterfaceIsBackup reports whether this router is in Backup
	// state on the receiving interface (spec.md §4.4 step 3).
	ReceivingInterfaceIsBackup bool
	// EligibleInterfaces lists every interface the LSA's scope admits
	// (link: only the receiving interface; area: all area interfaces; AS:
	// all admitting areas) together with their neighbors.
	EligibleInterfaces []EligibleInterface
}

// EligibleInterface is one interface in scope for this LSA, with its
// current neighbors.
type EligibleInterface struct {
	Name      string
	Neighbors []NeighborFloodState
}

// Decision is the per-interface outcome of the flooding algorithm.
type Decision struct {
	// Interface the LSA should be enqueued for LS_UPDATE transmission on.
	Interface string
	// AddedToRxmt lists the neighbors whose retransmission list now
	// contains this key.
	AddedToRxmt []string
	// RemovedFromRequest lists neighbors whose LS-request list had this key
	// removed because the received copy satisfied or superseded it.
	RemovedFromRequest []string
}

// Decide runs the spec.md §4.4 flooding decision and returns, per eligible
// interface, the set of neighbors to add to the retransmission list and
// whether the LSA should be (re)enqueued for transmission out that
// interface. The receiving interface is suppressed from the result (not
// re-flooded back out) exactly when step 2 or step 3 says so.
func Decide(in FloodInput) []Decision {
	decisions := make([]Decision, 0, len(in.EligibleInterfaces))

	for _, iface := range in.EligibleInterfaces {
		d := Decision{Interface: iface.Name}

		for _, nbr := range iface.Neighbors {
			if !nbr.AtLeastExchanging {
				continue // step 1: M.state < Exchange, skip
			}
			if nbr.ID == in.ReceivedFrom {
				continue // step 1: M == N (source), skip
			}

			if !nbr.Full && nbr.Requested {
				switch {
				case nbr.RequestedCmp < 0:
					// Neighbor has a newer copy outstanding; skip entirely.
					continue
				case nbr.RequestedCmp == 0:
					// Equal: satisfies the request, drop it, but do not add
					// to the retransmission list (neighbor already has it).
					d.RemovedFromRequest = append(d.RemovedFromRequest, nbr.ID)
					continue
				default:
					// Greater: drop from request list and continue flooding.
					d.RemovedFromRequest = append(d.RemovedFromRequest, nbr.ID)
				}
			}

			d.AddedToRxmt = append(d.AddedToRxmt, nbr.ID)
		}

		decisions = append(decisions, d)
	}

	return suppressReceivingInterface(decisions, in)
}

// suppressReceivingInterface applies spec.md §4.4 steps 2-3: if nothing was
// added to any neighbor's rxmt list on the receiving interface it is not
// flooded back out; nor is it flooded back out if this router is DR/BDR
// there, or if it is in Backup state there.
func suppressReceivingInterface(decisions []Decision, in FloodInput) []Decision {
	out := make([]Decision, 0, len(decisions))

	for _, d := range decisions {
		if d.Interface == in.ReceivingInterface {
			if len(d.AddedToRxmt) == 0 {
				continue
			}
			if in.ReceivingInterfaceIsDROrBDR || in.ReceivingInterfaceIsBackup {
				continue
			}
		}
		out = append(out, d)
	}

	return out
}
