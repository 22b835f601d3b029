package ldp

import (
	"fmt"
	"net/netip"
	"sync"

	"github.com/holo-suite/holod/internal/label"
)

// MappingSender emits an encoded Label Mapping message to a peer. A real
// instance wires this to the session's write loop (C2); tests supply a
// recording stand-in.
type MappingSender interface {
	SendLabelMapping(peer netip.Addr, fec netip.Prefix, localLabel uint32)
}

// LabelInstaller programs an MPLS LIB entry once both the local label and a
// received remote mapping for the same FEC are known, mirroring rib.KernelProgrammer's
// role for IP routes.
type LabelInstaller interface {
	InstallLabelSwap(localLabel, outLabel uint32, nexthop netip.Addr)
}

// rcvdMapping is a previously received remote label binding for one FEC.
type rcvdMapping struct {
	peer  netip.Addr
	label uint32
}

// Bindings tracks this instance's FEC table: local labels allocated for
// FECs this router advertises, and remote mappings received from peers,
// implementing the cross-reference spec.md §8 S6 describes ("if a stored
// rcvd-mapping from [peer] exists for the same FEC, an MPLS LIB entry is
// installed").
type Bindings struct {
	mu       sync.Mutex
	manager  *label.Manager
	sender   MappingSender
	installer LabelInstaller

	localLabels map[netip.Prefix]uint32
	rcvd        map[netip.Prefix]rcvdMapping
}

// NewBindings creates an empty FEC table backed by manager for local label
// allocation.
func NewBindings(manager *label.Manager, sender MappingSender, installer LabelInstaller) *Bindings {
	return &Bindings{
		manager:     manager,
		sender:      sender,
		installer:   installer,
		localLabels: make(map[netip.Prefix]uint32),
		rcvd:        make(map[netip.Prefix]rcvdMapping),
	}
}

// RouteAdded handles a RIB RouteAdd notification for fec with the given
// nexthop: it allocates (or reuses) a local label for the FEC, advertises
// it to peer, and installs a swap entry if a remote mapping for the same
// FEC is already on file. This is the concrete driver for spec.md §8 S6.
func (b *Bindings) RouteAdded(fec netip.Prefix, peer netip.Addr) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	localLabel, exists := b.localLabels[fec]
	if !exists {
		l, err := b.manager.Request()
		if err != nil {
			return 0, fmt.Errorf("allocate label for %s: %w", fec, err)
		}
		localLabel = l
		b.localLabels[fec] = localLabel
	}

	if b.sender != nil {
		b.sender.SendLabelMapping(peer, fec, localLabel)
	}

	if rm, ok := b.rcvd[fec]; ok && b.installer != nil {
		b.installer.InstallLabelSwap(localLabel, rm.label, rm.peer)
	}

	return localLabel, nil
}

// MappingReceived records a Label Mapping message received from peer for
// fec, installing a swap entry immediately if a local label has already
// been advertised for it.
func (b *Bindings) MappingReceived(fec netip.Prefix, peer netip.Addr, remoteLabel uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rcvd[fec] = rcvdMapping{peer: peer, label: remoteLabel}

	if localLabel, ok := b.localLabels[fec]; ok && b.installer != nil {
		b.installer.InstallLabelSwap(localLabel, remoteLabel, peer)
	}
}

// RouteWithdrawn removes fec's local label binding. Per spec.md's
// label-manager scope, the label itself is not reclaimed (label.Manager.Release
// is a documented no-op); this only drops the FEC-table entry.
func (b *Bindings) RouteWithdrawn(fec netip.Prefix) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if l, ok := b.localLabels[fec]; ok {
		b.manager.Release(l)
		delete(b.localLabels, fec)
	}
}

// LocalLabel returns the currently advertised local label for fec, if any.
func (b *Bindings) LocalLabel(fec netip.Prefix) (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := b.localLabels[fec]
	return l, ok
}
