package ibus

import "net/netip"

// InterfaceUpdate reports an interface's current attributes. Republished in
// full (not as a diff) so a resynchronizing subscriber can treat it as an
// idempotent state replica, per spec.md §4.6.
type InterfaceUpdate struct {
	Name    string
	IfIndex int
	MTU     int
	Flags   InterfaceFlags
	MAC     [6]byte
	MSD     int // Maximum SID Depth, for SR-capable interfaces
}

// InterfaceFlags mirrors the boolean interface attributes from spec.md §3.2.
type InterfaceFlags struct {
	Loopback  bool
	Operative bool
	Broadcast bool
}

// InterfaceDelete announces an interface no longer exists.
type InterfaceDelete struct {
	Name string
}

// AddressUpdate reports a prefix added to or removed from an interface.
type AddressUpdate struct {
	IfName string
	Addr   netip.Prefix
	Flags  AddressFlags
}

// AddressFlags carries address-scope metadata (secondary, deprecated, etc.).
type AddressFlags struct {
	Secondary bool
}

// RouteMsg is a route addition published by a RIB or by redistribution.
type RouteMsg struct {
	Prefix   netip.Prefix
	Protocol string
	Distance uint8
	Metric   uint32
	Tag      uint32
	Nexthops []Nexthop
}

// RouteKeyMsg identifies a route for deletion.
type RouteKeyMsg struct {
	Prefix   netip.Prefix
	Protocol string
}

// Nexthop is a single forwarding nexthop, optionally carrying a label
// stack for MPLS-forwarded routes.
type Nexthop struct {
	Addr       netip.Addr
	IfIndex    int
	LabelStack []uint32
}

// NexthopTrack requests resolution updates for addr.
type NexthopTrack struct {
	Addr netip.Addr
}

// NexthopUntrack cancels a NexthopTrack registration.
type NexthopUntrack struct {
	Addr netip.Addr
}

// NexthopUpdate reports the resolved metric for a tracked nexthop, or a nil
// Metric if the address became unreachable.
type NexthopUpdate struct {
	Addr   netip.Addr
	Metric *uint32
}

// KeychainUpdate carries a new or changed authentication keychain.
type KeychainUpdate struct {
	Name string
	Keys []KeychainKey
}

// KeychainKey is a single keyed-authentication entry.
type KeychainKey struct {
	ID        uint32
	Algorithm string
	Secret    []byte
}

// KeychainDelete removes a keychain by name.
type KeychainDelete struct {
	Name string
}

// BfdSessionReg registers interest in a BFD session's state on behalf of a
// client protocol instance (typically BGP or a static route tracker).
type BfdSessionReg struct {
	Key      BfdSessionKey
	ClientID string
}

// BfdSessionUnreg cancels a BfdSessionReg.
type BfdSessionUnreg struct {
	Key      BfdSessionKey
	ClientID string
}

// BfdSessionStateUpd reports a BFD session's new local state.
type BfdSessionStateUpd struct {
	Key   BfdSessionKey
	State string // mirrors bfd.State.String(); kept as string to avoid an ibus->bfd import
}

// BfdSessionKey mirrors bfd's SessionKey shape without importing the bfd
// package, keeping ibus a leaf dependency the way spec.md's component graph
// requires (ibus is consumed by bfd, not the other way around).
type BfdSessionKey struct {
	PeerAddr  netip.Addr
	LocalAddr netip.Addr
	IfName    string
	MultiHop  bool
}

// LabelInstall requests an MPLS FEC entry be programmed.
type LabelInstall struct {
	LocalLabel uint32
	LspType    string
	Nexthops   []Nexthop
}

// LabelUninstall removes a previously installed MPLS FEC entry.
type LabelUninstall struct {
	LocalLabel uint32
}
