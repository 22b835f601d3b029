package netio

import (
	"context"
	"fmt"
	"net/netip"
)

// protoBufSize is sized for the largest expected OSPF LSU or LDP PDU on a
// non-jumbo link; both protocols fragment at IP level if a single packet
// would exceed the link MTU, so this is a generous ceiling rather than a
// protocol-defined maximum.
const protoBufSize = 2048

// ProtoListener is Listener's counterpart for protocols that don't share
// BFD's GTSM TTL requirement or its bfd.PacketPool buffer reuse: OSPF
// (RFC 2328, no GTSM) and LDP discovery (RFC 5036, no GTSM). It reads
// whole packets from any PacketConn, including the multicast transports in
// mcast.go.
type ProtoListener struct {
	conn PacketConn
}

// NewProtoListener wraps conn for protocol (non-BFD) packet reception.
func NewProtoListener(conn PacketConn) *ProtoListener {
	return &ProtoListener{conn: conn}
}

// Recv blocks until a packet is received or ctx is cancelled.
func (l *ProtoListener) Recv(ctx context.Context) ([]byte, PacketMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, PacketMeta{}, fmt.Errorf("proto listener recv: %w", err)
	}

	buf := make([]byte, protoBufSize)
	n, meta, err := l.conn.ReadPacket(buf)
	if err != nil {
		return nil, PacketMeta{}, fmt.Errorf("proto listener read: %w", err)
	}
	return buf[:n], meta, nil
}

// Send writes buf to dst, which may name a multicast group.
func (l *ProtoListener) Send(buf []byte, dst netip.Addr) error {
	return l.conn.WritePacket(buf, dst)
}

// Close releases the underlying PacketConn.
func (l *ProtoListener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close proto listener: %w", err)
	}
	return nil
}
