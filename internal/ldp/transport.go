package ldp

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/holo-suite/holod/internal/netio"
)

// AllRoutersGroup is the RFC 5036 Section 2.4.1 "all routers on this
// subnet" multicast group LDP Link Hellos are sent to.
var AllRoutersGroup = netip.MustParseAddr("224.0.0.2")

// discoveryPort is the well-known UDP port for LDP discovery (RFC 5036
// Section 2.4.1).
const discoveryPort uint16 = 646

// Transport owns one interface's LDP discovery socket: a UDP/646 listener
// joined to 224.0.0.2, used for Link Hello exchange (RFC 5036 Section
// 2.4.1). The LDP session itself is carried over a separate TCP connection
// not opened by this transport.
type Transport struct {
	ifName string
	ln     *netio.ProtoListener
	logger *slog.Logger
}

// NewTransport opens an LDP discovery transport on ifName, bound to addr.
func NewTransport(addr netip.Addr, ifName string, logger *slog.Logger) (*Transport, error) {
	conn, err := netio.NewMulticastConn(netio.MulticastConfig{
		Network: "udp4",
		Addr:    addr,
		Port:    discoveryPort,
		IfName:  ifName,
		Groups:  []netip.Addr{AllRoutersGroup},
		TTL:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("ldp transport on %s: %w", ifName, err)
	}

	return &Transport{
		ifName: ifName,
		ln:     netio.NewProtoListener(conn),
		logger: logger.With(slog.String("component", "ldp.transport"), slog.String("interface", ifName)),
	}, nil
}

// Send multicasts or unicasts buf to dst.
func (t *Transport) Send(buf []byte, dst netip.Addr) error {
	if err := t.ln.Send(buf, dst); err != nil {
		return fmt.Errorf("ldp send on %s: %w", t.ifName, err)
	}
	return nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error {
	return t.ln.Close()
}

// Run reads Hello PDUs from the transport until ctx is cancelled, decoding
// each one and handing it to post.
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

		hdr, err := DecodePDUHeader(raw)
		if err != nil {
			t.logger.Debug("invalid ldp pdu", slog.String("src", meta.SrcAddr.String()), slog.String("error", err.Error()))
			continue
		}

		body := raw[PDUHeaderSize:]
		if int(hdr.PDULength) > PDUHeaderSize-4 && int(hdr.PDULength)-(PDUHeaderSize-4) <= len(body) {
			body = body[:hdr.PDULength-(PDUHeaderSize-4)]
		}

		msgHdr, msgBody, err := DecodeMessageHeader(body)
		if err != nil {
			t.logger.Debug("invalid ldp message", slog.String("src", meta.SrcAddr.String()), slog.String("error", err.Error()))
			continue
		}

		post(Input{IfName: t.ifName, SrcAddr: meta.SrcAddr, PDUHeader: hdr, MessageHeader: msgHdr, Body: msgBody})
	}
}
