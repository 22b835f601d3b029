package netio

import (
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
)

// MulticastConfig configures a protocol multicast listener/sender shared by
// OSPF (IP protocol 89, AllSPFRouters/AllDRouters) and LDP discovery (UDP
// port 646, the All-Routers-on-this-Subnet group 224.0.0.2). Unlike the BFD
// PacketConn family in rawsock_linux.go, this transport has no GTSM
// requirement: the kernel, not a TTL check, is the only line of defense,
// matching how both RFCs define their discovery/flooding channels.
type MulticastConfig struct {
	// Network is the net.ListenPacket network: "ip4:89" for OSPF raw IP,
	// "udp4" for LDP's UDP-646 discovery Hello.
	Network string
	// Addr is the local bind address. The zero value binds to all addresses,
	// which is what raw IP protocol listeners require on Linux.
	Addr netip.Addr
	// Port is the UDP port to bind (LDP 646). Zero for raw IP (OSPF), where
	// there is no port to bind.
	Port uint16
	// IfName is the interface multicast group membership and the outbound
	// multicast interface are bound to.
	IfName string
	// Groups are the multicast groups joined on IfName.
	Groups []netip.Addr
	// TTL is the outbound multicast TTL/hop count. OSPF and LDP both use 1
	// (RFC 2328 Section 8.1.2; RFC 5036 Section 2.4.1) since discovery and
	// flooding are never sent beyond the local subnet.
	TTL int
}

// MulticastConn implements PacketConn over golang.org/x/net/ipv4, the way
// the pack's other protocol daemons build IGMP-joined multicast transports
// rather than hand-rolling socket option plumbing a second time the way
// rawsock_linux.go does for BFD's GTSM-specific unicast sockets.
type MulticastConn struct {
	raw    net.PacketConn
	pconn  *ipv4.PacketConn
	ifName string
	port   uint16
	local  netip.AddrPort
}

// NewMulticastConn opens a multicast-capable PacketConn per cfg, joining
// every group in cfg.Groups on cfg.IfName.
func NewMulticastConn(cfg MulticastConfig) (*MulticastConn, error) {
	laddr := ""
	if cfg.Addr.IsValid() {
		laddr = cfg.Addr.String()
	}
	if cfg.Port != 0 {
		laddr = net.JoinHostPort(laddr, fmt.Sprint(cfg.Port))
	}

	raw, err := net.ListenPacket(cfg.Network, laddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", cfg.Network, laddr, err)
	}

	ifi, err := net.InterfaceByName(cfg.IfName)
	if err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("lookup interface %s: %w", cfg.IfName, err)
	}

	pconn := ipv4.NewPacketConn(raw)
	if err := pconn.SetControlMessage(ipv4.FlagTTL|ipv4.FlagInterface|ipv4.FlagDst, true); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("set control message flags: %w", err)
	}

	for _, group := range cfg.Groups {
		if err := pconn.JoinGroup(ifi, &net.UDPAddr{IP: group.AsSlice()}); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("join multicast group %s on %s: %w", group, cfg.IfName, err)
		}
	}

	if cfg.TTL > 0 {
		if err := pconn.SetMulticastTTL(cfg.TTL); err != nil {
			_ = raw.Close()
			return nil, fmt.Errorf("set multicast ttl: %w", err)
		}
	}
	if err := pconn.SetMulticastInterface(ifi); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("set multicast interface %s: %w", cfg.IfName, err)
	}
	if err := pconn.SetMulticastLoopback(false); err != nil {
		_ = raw.Close()
		return nil, fmt.Errorf("disable multicast loopback: %w", err)
	}

	return &MulticastConn{
		raw:    raw,
		pconn:  pconn,
		ifName: cfg.IfName,
		port:   cfg.Port,
		local:  netip.AddrPortFrom(cfg.Addr, cfg.Port),
	}, nil
}

// ReadPacket implements PacketConn.
func (c *MulticastConn) ReadPacket(buf []byte) (int, PacketMeta, error) {
	n, cm, src, err := c.pconn.ReadFrom(buf)
	if err != nil {
		return 0, PacketMeta{}, fmt.Errorf("read multicast packet: %w", err)
	}

	meta := PacketMeta{IfName: c.ifName}
	if cm != nil {
		meta.TTL = uint8(cm.TTL) //nolint:gosec // G115: TTL is always in [0,255].
		meta.IfIndex = cm.IfIndex
		if dst, ok := netip.AddrFromSlice(cm.Dst); ok {
			meta.DstAddr = dst.Unmap()
		}
	}
	if addr, ok := srcAddr(src); ok {
		meta.SrcAddr = addr.Unmap()
	}

	return n, meta, nil
}

// WritePacket implements PacketConn. dst may be a multicast group address
// (AllSPFRouters, AllDRouters, the LDP discovery group) or a unicast peer.
func (c *MulticastConn) WritePacket(buf []byte, dst netip.Addr) error {
	var target net.Addr
	if c.port != 0 {
		target = &net.UDPAddr{IP: dst.AsSlice(), Port: int(c.port)}
	} else {
		target = &net.IPAddr{IP: dst.AsSlice()}
	}

	if _, err := c.pconn.WriteTo(buf, nil, target); err != nil {
		return fmt.Errorf("write multicast packet to %s: %w", dst, err)
	}
	return nil
}

// Close implements PacketConn.
func (c *MulticastConn) Close() error {
	if err := c.raw.Close(); err != nil {
		return fmt.Errorf("close multicast conn: %w", err)
	}
	return nil
}

// LocalAddr implements PacketConn.
func (c *MulticastConn) LocalAddr() netip.AddrPort {
	return c.local
}

func srcAddr(a net.Addr) (netip.Addr, bool) {
	switch v := a.(type) {
	case *net.UDPAddr:
		return netip.AddrFromSlice(v.IP)
	case *net.IPAddr:
		return netip.AddrFromSlice(v.IP)
	default:
		return netip.Addr{}, false
	}
}
