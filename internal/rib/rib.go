// Package rib implements the RIB/LIB service (C9): per-address-family route
// tables, preference-based replace, nexthop tracking, and the kernel
// programming boundary.
package rib

import (
	"fmt"
	"net/netip"
	"slices"
	"sync"
)

// Route is a single RIB entry, matching the entity defined in spec.md §3.2.
type Route struct {
	Prefix      netip.Prefix
	Protocol    string
	Distance    uint8
	Metric      uint32
	Tag         uint32
	Attrs       map[string]string
	Nexthops    []Nexthop
	Installed   bool
	isConnected bool
}

// Nexthop is a single forwarding nexthop, optionally MPLS-labeled.
type Nexthop struct {
	Addr       netip.Addr
	IfIndex    int
	LabelStack []uint32
}

// KernelProgrammer is the out-of-scope netlink collaborator: the RIB calls
// it to install/uninstall IP routes and MPLS label FEC entries. The real
// implementation (not provided here, per spec.md §1/§6) would wrap
// golang.org/x/sys/unix or github.com/vishvananda/netlink; LoggingProgrammer
// below is the test/demo stand-in.
type KernelProgrammer interface {
	InstallRoute(route Route) error
	UninstallRoute(prefix netip.Prefix) error
	InstallLabel(localLabel uint32, nexthops []Nexthop) error
	UninstallLabel(localLabel uint32) error
}

// LoggingProgrammer records every call it receives instead of touching the
// kernel, standing in for the netlink consumer in tests and demos.
type LoggingProgrammer struct {
	mu     sync.Mutex
	Calls  []string
	Routes map[netip.Prefix]Route
	Labels map[uint32][]Nexthop
}

// NewLoggingProgrammer creates an empty LoggingProgrammer.
func NewLoggingProgrammer() *LoggingProgrammer {
	return &LoggingProgrammer{
		Routes: make(map[netip.Prefix]Route),
		Labels: make(map[uint32][]Nexthop),
	}
}

func (p *LoggingProgrammer) InstallRoute(route Route) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, fmt.Sprintf("install %s via %d nexthops", route.Prefix, len(route.Nexthops)))
	p.Routes[route.Prefix] = route
	return nil
}

func (p *LoggingProgrammer) UninstallRoute(prefix netip.Prefix) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, fmt.Sprintf("uninstall %s", prefix))
	delete(p.Routes, prefix)
	return nil
}

func (p *LoggingProgrammer) InstallLabel(localLabel uint32, nexthops []Nexthop) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, fmt.Sprintf("install label %d", localLabel))
	p.Labels[localLabel] = nexthops
	return nil
}

func (p *LoggingProgrammer) UninstallLabel(localLabel uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Calls = append(p.Calls, fmt.Sprintf("uninstall label %d", localLabel))
	delete(p.Labels, localLabel)
	return nil
}

// NexthopPublisher is notified when a tracked nexthop's resolved metric
// changes. ibus.Bus does not implement it directly; it is kept as a narrow
// interface here so rib does not depend on ibus.
type NexthopPublisher interface {
	PublishNexthopUpdate(addr netip.Addr, metric *uint32)
}

// RIB is a single address family's route table.
type RIB struct {
	mu         sync.RWMutex
	routes     map[netip.Prefix]Route
	tracked    map[netip.Addr]struct{}
	programmer KernelProgrammer
	publisher  NexthopPublisher
}

// New creates an empty RIB backed by programmer for kernel installs.
// publisher may be nil if nexthop-tracking notifications are not needed.
func New(programmer KernelProgrammer, publisher NexthopPublisher) *RIB {
	return &RIB{
		routes:     make(map[netip.Prefix]Route),
		tracked:    make(map[netip.Addr]struct{}),
		programmer: programmer,
		publisher:  publisher,
	}
}

// preferred reports whether candidate should replace incumbent: lower
// administrative distance wins; on a tie, lower metric wins; ties beyond
// that keep the incumbent (first writer wins), matching "compare
// preference (distance, metric, tag, nexthop set)" from spec.md §4.8.
func preferred(candidate, incumbent Route) bool {
	if candidate.Distance != incumbent.Distance {
		return candidate.Distance < incumbent.Distance
	}
	return candidate.Metric < incumbent.Metric
}

func sameForwarding(a, b Route) bool {
	if a.Metric != b.Metric || a.Tag != b.Tag {
		return false
	}
	return slices.EqualFunc(a.Nexthops, b.Nexthops, func(x, y Nexthop) bool {
		return x.Addr == y.Addr && x.IfIndex == y.IfIndex && slices.Equal(x.LabelStack, y.LabelStack)
	})
}

// AddRoute installs or replaces a route per spec.md §4.8: CONNECTED routes
// and routes with an empty nexthop set are never sent to the kernel
// programmer; an update that is forwarding-identical to the stored entry is
// marked installed without a redundant kernel call (invariant 8,
// idempotence).
func (r *RIB) AddRoute(route Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	incumbent, exists := r.routes[route.Prefix]
	if exists && !preferred(route, incumbent) {
		return nil
	}

	if exists && sameForwarding(route, incumbent) {
		route.Installed = incumbent.Installed
		r.routes[route.Prefix] = route
		r.notifyTrackers(route.Prefix)
		return nil
	}

	skipKernel := route.isConnected || len(route.Nexthops) == 0
	route.Installed = !skipKernel

	r.routes[route.Prefix] = route

	if !skipKernel && r.programmer != nil {
		if err := r.programmer.InstallRoute(route); err != nil {
			return fmt.Errorf("install route %s: %w", route.Prefix, err)
		}
	}

	r.notifyTrackers(route.Prefix)
	return nil
}

// AddConnectedRoute installs a directly connected route, which is never
// forwarded to the kernel programmer per spec.md §3.3 ("CONNECTED routes
// are never installed").
func (r *RIB) AddConnectedRoute(route Route) error {
	route.Protocol = "connected"
	route.isConnected = true
	return r.AddRoute(route)
}

// DeleteRoute removes prefix and uninstalls it from the kernel if it was
// installed.
func (r *RIB) DeleteRoute(prefix netip.Prefix) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	route, ok := r.routes[prefix]
	if !ok {
		return nil
	}
	delete(r.routes, prefix)

	if route.Installed && r.programmer != nil {
		if err := r.programmer.UninstallRoute(prefix); err != nil {
			return fmt.Errorf("uninstall route %s: %w", prefix, err)
		}
	}

	r.notifyTrackers(prefix)
	return nil
}

// Lookup returns the currently stored route for prefix, if any.
func (r *RIB) Lookup(prefix netip.Prefix) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routes[prefix]
	return route, ok
}

// TrackNexthop registers addr for resolution notifications. The initial
// resolution state is published immediately.
func (r *RIB) TrackNexthop(addr netip.Addr) {
	r.mu.Lock()
	r.tracked[addr] = struct{}{}
	r.mu.Unlock()

	r.publishResolution(addr)
}

// UntrackNexthop cancels a TrackNexthop registration.
func (r *RIB) UntrackNexthop(addr netip.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tracked, addr)
}

// notifyTrackers re-evaluates every tracked nexthop whose resolution could
// be affected by a change to changedPrefix. Caller must hold r.mu.
func (r *RIB) notifyTrackers(changedPrefix netip.Prefix) {
	if r.publisher == nil {
		return
	}
	for addr := range r.tracked {
		if changedPrefix.Contains(addr) {
			r.publishResolutionLocked(addr)
		}
	}
}

func (r *RIB) publishResolution(addr netip.Addr) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.publishResolutionLocked(addr)
}

// publishResolutionLocked finds the longest-prefix-match route covering
// addr and publishes its metric, or nil if unreachable. Caller must hold
// r.mu (read or write).
func (r *RIB) publishResolutionLocked(addr netip.Addr) {
	if r.publisher == nil {
		return
	}

	var best *Route
	for prefix, route := range r.routes {
		if !prefix.Contains(addr) {
			continue
		}
		if best == nil || prefix.Bits() > bestPrefixBits(*best) {
			rr := route
			best = &rr
		}
	}

	if best == nil {
		r.publisher.PublishNexthopUpdate(addr, nil)
		return
	}
	metric := best.Metric
	r.publisher.PublishNexthopUpdate(addr, &metric)
}

func bestPrefixBits(r Route) int {
	return r.Prefix.Bits()
}
