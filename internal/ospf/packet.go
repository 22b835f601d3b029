// Package ospf implements the OSPFv2 neighbor/adjacency state machine and
// LSDB record types (C3/C4), grounded on the teacher's bfd package: a pure
// packet codec plus a table-driven FSM, generalized from a single reference
// protocol to OSPF's Hello/DD/LSA exchange per spec.md §4.3/§4.4.
package ospf

import (
	"encoding/binary"
	"errors"
)

// Version is the OSPF version this codec speaks (RFC 2328).
const Version uint8 = 2

// HeaderSize is the fixed OSPF packet header size (RFC 2328 Appendix A.3.1).
const HeaderSize = 24

// PacketType identifies the OSPF packet body that follows the header.
type PacketType uint8

const (
	TypeHello PacketType = 1
	TypeDD    PacketType = 2
	TypeLSR   PacketType = 3
	TypeLSU   PacketType = 4
	TypeLSAck PacketType = 5
)

// String returns the human-readable packet type name.
func (t PacketType) String() string {
	switch t {
	case TypeHello:
		return "Hello"
	case TypeDD:
		return "DatabaseDescription"
	case TypeLSR:
		return "LinkStateRequest"
	case TypeLSU:
		return "LinkStateUpdate"
	case TypeLSAck:
		return "LinkStateAck"
	default:
		return "Unknown"
	}
}

// Header is the fixed 24-byte OSPFv2 packet header (RFC 2328 A.3.1).
type Header struct {
	Version  uint8
	Type     PacketType
	Length   uint16
	RouterID uint32
	AreaID   uint32
	Checksum uint16
	AuType   uint16
	AuthData uint64
}

// Hello is the body of an OSPF Hello packet (RFC 2328 A.3.2).
type Hello struct {
	NetworkMask     uint32
	HelloInterval   uint16
	Options         uint8
	RtrPriority     uint8
	RouterDeadInt   uint32
	DesignatedR     uint32
	BackupDR        uint32
	Neighbors       []uint32
}

// DDFlags carries the three low-order Database Description flag bits
// (RFC 2328 A.3.3): I (Init), M (More), MS (Master/Slave).
type DDFlags uint8

const (
	DDFlagMS DDFlags = 1 << iota
	DDFlagM
	DDFlagI
)

// DatabaseDescription is the body of an OSPF Database Description packet.
type DatabaseDescription struct {
	InterfaceMTU uint16
	Options      uint8
	Flags        DDFlags
	DDSeqNumber  uint32
	LSAHeaders   []LSAHeader
}

// LSAHeader is the common 20-byte LSA header (RFC 2328 A.4.1), sufficient
// to key an entry in the LSDB without carrying the full LSA body.
type LSAHeader struct {
	Age         uint16
	Options     uint8
	Type        uint8
	LinkStateID uint32
	AdvRouter   uint32
	SeqNumber   uint32
	Checksum    uint16
	Length      uint16
}

// Errors returned by DecodeHeader/DecodeHello/DecodeDD. Named and sentinel
// per spec.md §4.1 ("decoders are total functions returning a tagged error
// describing the first violation"); this codec uses Go's conventional
// errors.Is-comparable sentinels for that role, matching bfd's packet.go.
var (
	ErrPacketTooShort  = errors.New("ospf: packet too short")
	ErrInvalidVersion  = errors.New("ospf: invalid version")
	ErrInvalidLength   = errors.New("ospf: length field exceeds payload")
	ErrInvalidChecksum = errors.New("ospf: checksum mismatch")
	ErrUnexpectedType  = errors.New("ospf: unexpected packet type")
	ErrTruncatedBody   = errors.New("ospf: body truncated")
)

// checksum computes the standard internet checksum (RFC 1071) over buf,
// skipping the 16-bit checksum field itself at byte offset skipAt.
func checksum(buf []byte, skipAt int) uint16 {
	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		if i == skipAt {
			continue
		}
		sum += uint32(binary.BigEndian.Uint16(buf[i : i+2]))
	}
	if len(buf)%2 == 1 {
		sum += uint32(buf[len(buf)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// DecodeHeader parses and validates the fixed OSPF header. Checksum
// verification precedes any interpretation past the version byte, per
// spec.md §4.1's common codec rule.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrPacketTooShort
	}
	if buf[0] != Version {
		return Header{}, ErrInvalidVersion
	}

	length := binary.BigEndian.Uint16(buf[2:4])
	if int(length) < HeaderSize || int(length) > len(buf) {
		return Header{}, ErrInvalidLength
	}

	got := checksum(buf[:length], 12)
	want := binary.BigEndian.Uint16(buf[12:14])
	// AuType 1 (simple password) and 2 (cryptographic) exclude the trailing
	// auth data from the checksum computation; only AuType 0 is checked here
	// since authenticated validation needs the decode-context key material
	// spec.md §4.1 assigns to a separate authenticated-decode path.
	auType := binary.BigEndian.Uint16(buf[14:16])
	if auType == 0 && got != want {
		return Header{}, ErrInvalidChecksum
	}

	return Header{
		Version:  buf[0],
		Type:     PacketType(buf[1]),
		Length:   length,
		RouterID: binary.BigEndian.Uint32(buf[4:8]),
		AreaID:   binary.BigEndian.Uint32(buf[8:12]),
		Checksum: want,
		AuType:   auType,
		AuthData: binary.BigEndian.Uint64(buf[16:24]),
	}, nil
}

// EncodeHeader writes h into buf (which must be at least HeaderSize long).
// For AuType 0 it also computes the checksum over buf[:length], including
// the body the caller has already placed at buf[HeaderSize:length], and
// stores it in the header's checksum field.
func EncodeHeader(h Header, buf []byte, length uint16) {
	buf[0] = h.Version
	buf[1] = byte(h.Type)
	binary.BigEndian.PutUint16(buf[2:4], length)
	binary.BigEndian.PutUint32(buf[4:8], h.RouterID)
	binary.BigEndian.PutUint32(buf[8:12], h.AreaID)
	binary.BigEndian.PutUint16(buf[12:14], 0)
	binary.BigEndian.PutUint16(buf[14:16], h.AuType)
	binary.BigEndian.PutUint64(buf[16:24], h.AuthData)

	if h.AuType == 0 {
		sum := checksum(buf[:length], 12)
		binary.BigEndian.PutUint16(buf[12:14], sum)
	}
}

// DecodeHello parses an OSPF Hello body following a validated header. body
// is buf[HeaderSize:header.Length].
func DecodeHello(body []byte) (Hello, error) {
	const fixedSize = 20
	if len(body) < fixedSize {
		return Hello{}, ErrTruncatedBody
	}
	if (len(body)-fixedSize)%4 != 0 {
		return Hello{}, ErrTruncatedBody
	}

	h := Hello{
		NetworkMask:   binary.BigEndian.Uint32(body[0:4]),
		HelloInterval: binary.BigEndian.Uint16(body[4:6]),
		Options:       body[6],
		RtrPriority:   body[7],
		RouterDeadInt: binary.BigEndian.Uint32(body[8:12]),
		DesignatedR:   binary.BigEndian.Uint32(body[12:16]),
		BackupDR:      binary.BigEndian.Uint32(body[16:20]),
	}

	for off := fixedSize; off+4 <= len(body); off += 4 {
		h.Neighbors = append(h.Neighbors, binary.BigEndian.Uint32(body[off:off+4]))
	}
	return h, nil
}

// EncodeHello appends the wire form of h to dst and returns the result.
func EncodeHello(h Hello, dst []byte) []byte {
	buf := make([]byte, 20)
	binary.BigEndian.PutUint32(buf[0:4], h.NetworkMask)
	binary.BigEndian.PutUint16(buf[4:6], h.HelloInterval)
	buf[6] = h.Options
	buf[7] = h.RtrPriority
	binary.BigEndian.PutUint32(buf[8:12], h.RouterDeadInt)
	binary.BigEndian.PutUint32(buf[12:16], h.DesignatedR)
	binary.BigEndian.PutUint32(buf[16:20], h.BackupDR)
	dst = append(dst, buf...)

	for _, n := range h.Neighbors {
		var nb [4]byte
		binary.BigEndian.PutUint32(nb[:], n)
		dst = append(dst, nb[:]...)
	}
	return dst
}

const lsaHeaderSize = 20

// DecodeDD parses an OSPF Database Description body.
func DecodeDD(body []byte) (DatabaseDescription, error) {
	const fixedSize = 8
	if len(body) < fixedSize {
		return DatabaseDescription{}, ErrTruncatedBody
	}
	if (len(body)-fixedSize)%lsaHeaderSize != 0 {
		return DatabaseDescription{}, ErrTruncatedBody
	}

	dd := DatabaseDescription{
		InterfaceMTU: binary.BigEndian.Uint16(body[0:2]),
		Options:      body[2],
		Flags:        DDFlags(body[3] & 0x07),
		DDSeqNumber:  binary.BigEndian.Uint32(body[4:8]),
	}

	for off := fixedSize; off+lsaHeaderSize <= len(body); off += lsaHeaderSize {
		dd.LSAHeaders = append(dd.LSAHeaders, decodeLSAHeader(body[off:off+lsaHeaderSize]))
	}
	return dd, nil
}

// EncodeDD appends the wire form of dd to dst and returns the result.
func EncodeDD(dd DatabaseDescription, dst []byte) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint16(buf[0:2], dd.InterfaceMTU)
	buf[2] = dd.Options
	buf[3] = byte(dd.Flags) & 0x07
	binary.BigEndian.PutUint32(buf[4:8], dd.DDSeqNumber)
	dst = append(dst, buf[:]...)

	for _, lh := range dd.LSAHeaders {
		dst = encodeLSAHeader(lh, dst)
	}
	return dst
}

func decodeLSAHeader(b []byte) LSAHeader {
	return LSAHeader{
		Age:         binary.BigEndian.Uint16(b[0:2]),
		Options:     b[2],
		Type:        b[3],
		LinkStateID: binary.BigEndian.Uint32(b[4:8]),
		AdvRouter:   binary.BigEndian.Uint32(b[8:12]),
		SeqNumber:   binary.BigEndian.Uint32(b[12:16]),
		Checksum:    binary.BigEndian.Uint16(b[16:18]),
		Length:      binary.BigEndian.Uint16(b[18:20]),
	}
}

func encodeLSAHeader(h LSAHeader, dst []byte) []byte {
	var buf [lsaHeaderSize]byte
	binary.BigEndian.PutUint16(buf[0:2], h.Age)
	buf[2] = h.Options
	buf[3] = h.Type
	binary.BigEndian.PutUint32(buf[4:8], h.LinkStateID)
	binary.BigEndian.PutUint32(buf[8:12], h.AdvRouter)
	binary.BigEndian.PutUint32(buf[12:16], h.SeqNumber)
	binary.BigEndian.PutUint16(buf[16:18], h.Checksum)
	binary.BigEndian.PutUint16(buf[18:20], h.Length)
	return append(dst, buf[:]...)
}
