// Package ldp implements the LDP session FSM (C3) and PDU/TLV codec (C1),
// plus the FEC label-binding flow (C9 integration) driving local label
// allocation from the shared internal/label manager per spec.md §4.9/§8 S6.
package ldp

import (
	"encoding/binary"
	"errors"
)

// PDUHeaderSize is the fixed LDP PDU header: a 2-byte version, 2-byte PDU
// length, and 6-byte LDP identifier (RFC 5036 §3.5.1).
const PDUHeaderSize = 10

// Version is the LDP protocol version.
const Version uint16 = 1

// MessageType identifies an LDP message (RFC 5036 §3.5.2).
type MessageType uint16

const (
	MsgNotification   MessageType = 0x0001
	MsgAddress        MessageType = 0x0300
	MsgAddressWithdraw MessageType = 0x0301
	MsgLabelMapping   MessageType = 0x0400
	MsgLabelWithdraw  MessageType = 0x0402
	MsgLabelRelease   MessageType = 0x0403
	MsgInitialization MessageType = 0x0200
	MsgKeepalive      MessageType = 0x0201
)

// TLVType identifies an LDP TLV (RFC 5036 §3.4).
type TLVType uint16

const (
	TLVFEC             TLVType = 0x0100
	TLVGenericLabel    TLVType = 0x0200
	TLVAddressList     TLVType = 0x0101
	TLVStatus          TLVType = 0x0300
	TLVCommonHello     TLVType = 0x0400
	TLVCommonSession   TLVType = 0x0500
)

// PDUHeader is the fixed LDP PDU header.
type PDUHeader struct {
	Version   uint16
	PDULength uint16
	LSR       uint32
	LabelSpace uint16
}

// MessageHeader is the common LDP message header (type, length, id),
// preceding every message's TLV-encoded body.
type MessageHeader struct {
	Type   MessageType
	Length uint16
	ID     uint32
}

// TLV is an undecoded (type, value) LDP TLV, preserved raw for unknown
// types per spec.md §4.1's common TLV-container rule. U and F bits from
// the type's top two bits are kept separately since spec.md requires
// unknown TLVs to be re-emittable unmodified.
type TLV struct {
	Type    TLVType
	Unknown bool // U bit: ignore and skip silently if unknown
	Forward bool // F bit: forward if unknown and U is set
	Value   []byte
}

// FEC is a single FEC element: an IPv4 prefix (RFC 5036 §3.4.1, Prefix FEC
// element, the only element type this codec emits/decodes).
type FEC struct {
	PrefixBits uint8
	Prefix     uint32
}

var (
	ErrPacketTooShort = errors.New("ldp: pdu shorter than header")
	ErrInvalidVersion = errors.New("ldp: unsupported version")
	ErrTruncatedBody  = errors.New("ldp: message or tlv truncated")
)

// DecodePDUHeader parses and validates the fixed LDP PDU header.
func DecodePDUHeader(buf []byte) (PDUHeader, error) {
	if len(buf) < PDUHeaderSize {
		return PDUHeader{}, ErrPacketTooShort
	}
	version := binary.BigEndian.Uint16(buf[0:2])
	if version != Version {
		return PDUHeader{}, ErrInvalidVersion
	}
	return PDUHeader{
		Version:    version,
		PDULength:  binary.BigEndian.Uint16(buf[2:4]),
		LSR:        binary.BigEndian.Uint32(buf[4:8]),
		LabelSpace: binary.BigEndian.Uint16(buf[8:10]),
	}, nil
}

// EncodePDUHeader writes h into buf[:PDUHeaderSize].
func EncodePDUHeader(h PDUHeader, buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	binary.BigEndian.PutUint16(buf[2:4], h.PDULength)
	binary.BigEndian.PutUint32(buf[4:8], h.LSR)
	binary.BigEndian.PutUint16(buf[8:10], h.LabelSpace)
}

// DecodeMessageHeader parses the common message header preceding a
// message's TLVs.
func DecodeMessageHeader(buf []byte) (MessageHeader, []byte, error) {
	const fixedSize = 8
	if len(buf) < fixedSize {
		return MessageHeader{}, nil, ErrTruncatedBody
	}
	typ := MessageType(binary.BigEndian.Uint16(buf[0:2]) &^ 0x8000)
	length := binary.BigEndian.Uint16(buf[2:4])
	id := binary.BigEndian.Uint32(buf[4:8])

	if int(length) < 4 || fixedSize-4+int(length) > len(buf) {
		return MessageHeader{}, nil, ErrTruncatedBody
	}
	body := buf[fixedSize : fixedSize-4+int(length)]

	return MessageHeader{Type: typ, Length: length, ID: id}, body, nil
}

// EncodeMessageHeader appends h and then body (the TLV-encoded message
// content) to dst, filling in Length from len(body)+4.
func EncodeMessageHeader(h MessageHeader, body []byte, dst []byte) []byte {
	var fixed [8]byte
	binary.BigEndian.PutUint16(fixed[0:2], uint16(h.Type))
	binary.BigEndian.PutUint16(fixed[2:4], uint16(len(body)+4))
	binary.BigEndian.PutUint32(fixed[4:8], h.ID)
	dst = append(dst, fixed[:]...)
	return append(dst, body...)
}

// DecodeTLVs parses a flat sequence of TLVs from buf.
func DecodeTLVs(buf []byte) ([]TLV, error) {
	var tlvs []TLV
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, ErrTruncatedBody
		}
		rawType := binary.BigEndian.Uint16(buf[0:2])
		length := binary.BigEndian.Uint16(buf[2:4])
		if int(length) > len(buf)-4 {
			return nil, ErrTruncatedBody
		}
		value := make([]byte, length)
		copy(value, buf[4:4+length])

		tlvs = append(tlvs, TLV{
			Type:    TLVType(rawType &^ 0xC000),
			Unknown: rawType&0x8000 != 0,
			Forward: rawType&0x4000 != 0,
			Value:   value,
		})
		buf = buf[4+length:]
	}
	return tlvs, nil
}

// EncodeTLV appends t's wire form to dst.
func EncodeTLV(t TLV, dst []byte) []byte {
	rawType := uint16(t.Type)
	if t.Unknown {
		rawType |= 0x8000
	}
	if t.Forward {
		rawType |= 0x4000
	}
	var head [4]byte
	binary.BigEndian.PutUint16(head[0:2], rawType)
	binary.BigEndian.PutUint16(head[2:4], uint16(len(t.Value)))
	dst = append(dst, head[:]...)
	return append(dst, t.Value...)
}

// EncodeFECTLV builds a Prefix-FEC TLV (RFC 5036 §3.4.1) for a single IPv4
// prefix.
func EncodeFECTLV(fec FEC) TLV {
	value := []byte{0x01, 0x00, 0x01, fec.PrefixBits}
	var addr [4]byte
	binary.BigEndian.PutUint32(addr[:], fec.Prefix)
	nbytes := (int(fec.PrefixBits) + 7) / 8
	value = append(value, addr[:nbytes]...)
	return TLV{Type: TLVFEC, Value: value}
}

// DecodeFECTLV parses a single Prefix-FEC element from a FEC TLV's value.
func DecodeFECTLV(value []byte) (FEC, error) {
	if len(value) < 4 {
		return FEC{}, ErrTruncatedBody
	}
	if value[0] != 0x01 {
		return FEC{}, errors.New("ldp: only prefix FEC elements are supported")
	}
	bits := value[3]
	nbytes := (int(bits) + 7) / 8
	if len(value) < 4+nbytes {
		return FEC{}, ErrTruncatedBody
	}
	var addr [4]byte
	copy(addr[:nbytes], value[4:4+nbytes])
	return FEC{PrefixBits: bits, Prefix: binary.BigEndian.Uint32(addr[:])}, nil
}

// EncodeGenericLabelTLV builds a Generic Label TLV (RFC 5036 §3.4.4) for a
// 20-bit MPLS label.
func EncodeGenericLabelTLV(label uint32) TLV {
	var value [4]byte
	binary.BigEndian.PutUint32(value[:], label&0xfffff)
	return TLV{Type: TLVGenericLabel, Value: value[:]}
}

// DecodeGenericLabelTLV extracts the label from a Generic Label TLV value.
func DecodeGenericLabelTLV(value []byte) (uint32, error) {
	if len(value) < 4 {
		return 0, ErrTruncatedBody
	}
	return binary.BigEndian.Uint32(value) & 0xfffff, nil
}
