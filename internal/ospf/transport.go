package ospf

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/holo-suite/holod/internal/netio"
)

// AllSPFRouters and AllDRouters are the RFC 2328 Appendix A.1 well-known
// multicast destinations: every OSPF router joins the former on every
// active interface, and the DR/BDR additionally join the latter.
var (
	AllSPFRouters = netip.MustParseAddr("224.0.0.5")
	AllDRouters   = netip.MustParseAddr("224.0.0.6")
)

// ipProtoOSPF is the IP protocol number OSPF packets carry (RFC 2328
// Appendix A.1).
const ipProtoOSPF = 89

// Transport owns one interface's OSPF multicast socket: a raw IP protocol
// 89 listener joined to AllSPFRouters (and AllDRouters when this router is
// DR/BDR on the link), plus the send side for both Hello and flooded LSAs.
type Transport struct {
	ifName string
	ln     *netio.ProtoListener
	logger *slog.Logger
}

// NewTransport opens an OSPF transport on ifName, bound to addr. asDR
// additionally joins AllDRouters, per RFC 2328 Section 9.5.1's requirement
// that only the DR and BDR receive packets addressed to that group.
func NewTransport(addr netip.Addr, ifName string, asDR bool, logger *slog.Logger) (*Transport, error) {
	groups := []netip.Addr{AllSPFRouters}
	if asDR {
		groups = append(groups, AllDRouters)
	}

	conn, err := netio.NewMulticastConn(netio.MulticastConfig{
		Network: fmt.Sprintf("ip4:%d", ipProtoOSPF),
		Addr:    addr,
		IfName:  ifName,
		Groups:  groups,
		TTL:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("ospf transport on %s: %w", ifName, err)
	}

	return &Transport{
		ifName: ifName,
		ln:     netio.NewProtoListener(conn),
		logger: logger.With(slog.String("component", "ospf.transport"), slog.String("interface", ifName)),
	}, nil
}

// Send multicasts or unicasts buf to dst.
func (t *Transport) Send(buf []byte, dst netip.Addr) error {
	if err := t.ln.Send(buf, dst); err != nil {
		return fmt.Errorf("ospf send on %s: %w", t.ifName, err)
	}
	return nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.ln.Close()
}

// Run reads packets from the transport until ctx is cancelled, decoding
// each one and handing it to post. Malformed packets are logged and
// dropped; only context cancellation ends the loop, matching
// netio.Receiver's recvLoop shape for BFD.
func (t *Transport) Run(ctx context.Context, post func(Input)) {
	for {
		if ctx.Err() != nil {
			return
		}

		raw, meta, err := t.ln.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.logger.Warn("recv error", slog.String("error", err.Error()))
			continue
		}

		hdr, err := DecodeHeader(raw)
		if err != nil {
			t.logger.Debug("invalid ospf packet", slog.String("src", meta.SrcAddr.String()), slog.String("error", err.Error()))
			continue
		}

		post(Input{IfName: t.ifName, SrcAddr: meta.SrcAddr, Header: hdr, Body: raw[HeaderSize:hdr.Length]})
	}
}
