// Package bgp implements the BGP neighbor session FSM (C3), its OPEN
// message codec, and the BFD flap-dampening integration (RFC 5882 §3.2)
// carried over from the teacher's GoBGP-bridge package, now driving an
// in-process BGP instance instead of an external speaker.
package bgp

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed BGP message header size (RFC 4271 §4.1): a
// 16-byte marker, a 2-byte length, and a 1-byte type.
const HeaderSize = 19

// MessageType identifies a BGP message (RFC 4271 §4.1).
type MessageType uint8

const (
	MsgOpen         MessageType = 1
	MsgUpdate       MessageType = 2
	MsgNotification MessageType = 3
	MsgKeepalive    MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case MsgOpen:
		return "OPEN"
	case MsgUpdate:
		return "UPDATE"
	case MsgNotification:
		return "NOTIFICATION"
	case MsgKeepalive:
		return "KEEPALIVE"
	default:
		return "Unknown"
	}
}

// Header is the common BGP message header.
type Header struct {
	Length uint16
	Type   MessageType
}

// Open is the body of a BGP OPEN message (RFC 4271 §4.2).
type Open struct {
	Version       uint8
	MyAS          uint16
	HoldTime      uint16
	BGPIdentifier uint32
	// OptParams carries undecoded (type, value) optional parameters,
	// including capability advertisements (RFC 5492), preserved raw per
	// spec.md §4.1's "unknown TLVs are preserved" rule generalized to
	// OPEN's optional-parameter TLVs.
	OptParams []OptParam
}

// OptParam is one undecoded OPEN optional parameter.
type OptParam struct {
	Type  uint8
	Value []byte
}

// NotificationErrorCode is the BGP NOTIFICATION Error Code (RFC 4271 §4.5).
type NotificationErrorCode uint8

const (
	ErrCodeMessageHeader    NotificationErrorCode = 1
	ErrCodeOpenMessage      NotificationErrorCode = 2
	ErrCodeUpdateMessage    NotificationErrorCode = 3
	ErrCodeHoldTimerExpired NotificationErrorCode = 4
	ErrCodeFSM              NotificationErrorCode = 5
	ErrCodeCease            NotificationErrorCode = 6
)

// OpenMessageSubcode values (RFC 4271 §4.5.2).
const (
	SubcodeUnsupportedVersion  uint8 = 1
	SubcodeBadPeerAS           uint8 = 2
	SubcodeBadBGPIdentifier    uint8 = 3
	SubcodeUnsupportedOptParam uint8 = 4
	SubcodeUnacceptableHold    uint8 = 6
)

// Notification is the body of a BGP NOTIFICATION message (RFC 4271 §4.5).
type Notification struct {
	ErrorCode    NotificationErrorCode
	ErrorSubcode uint8
	Data         []byte
}

var (
	ErrPacketTooShort  = errors.New("bgp: message shorter than header")
	ErrInvalidMarker   = errors.New("bgp: marker is not all-ones")
	ErrInvalidLength   = errors.New("bgp: length field out of range")
	ErrTruncatedBody   = errors.New("bgp: body truncated")
	ErrUnexpectedType  = errors.New("bgp: unexpected message type")
)

// DecodeHeader parses and validates the fixed BGP header (RFC 4271 §4.1):
// the marker must be all-ones (authentication is not in scope, so this is
// the only marker form accepted) and length must be within [19,4096].
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrPacketTooShort
	}
	for _, b := range buf[:16] {
		if b != 0xff {
			return Header{}, ErrInvalidMarker
		}
	}

	length := binary.BigEndian.Uint16(buf[16:18])
	if length < HeaderSize || length > 4096 || int(length) > len(buf) {
		return Header{}, ErrInvalidLength
	}

	return Header{Length: length, Type: MessageType(buf[18])}, nil
}

// EncodeHeader writes the marker, length, and type into buf[:HeaderSize].
func EncodeHeader(h Header, buf []byte) {
	for i := 0; i < 16; i++ {
		buf[i] = 0xff
	}
	binary.BigEndian.PutUint16(buf[16:18], h.Length)
	buf[18] = byte(h.Type)
}

// DecodeOpen parses an OPEN body (RFC 4271 §4.2) following a validated
// header; body is buf[HeaderSize:header.Length].
func DecodeOpen(body []byte) (Open, error) {
	const fixedSize = 10
	if len(body) < fixedSize {
		return Open{}, ErrTruncatedBody
	}

	o := Open{
		Version:       body[0],
		MyAS:          binary.BigEndian.Uint16(body[1:3]),
		HoldTime:      binary.BigEndian.Uint16(body[3:5]),
		BGPIdentifier: binary.BigEndian.Uint32(body[5:9]),
	}

	optParamsLen := int(body[9])
	rest := body[fixedSize:]
	if len(rest) < optParamsLen {
		return Open{}, ErrTruncatedBody
	}
	rest = rest[:optParamsLen]

	for len(rest) > 0 {
		if len(rest) < 2 {
			return Open{}, ErrTruncatedBody
		}
		paramType := rest[0]
		paramLen := int(rest[1])
		if len(rest) < 2+paramLen {
			return Open{}, ErrTruncatedBody
		}
		value := make([]byte, paramLen)
		copy(value, rest[2:2+paramLen])
		o.OptParams = append(o.OptParams, OptParam{Type: paramType, Value: value})
		rest = rest[2+paramLen:]
	}

	return o, nil
}

// EncodeOpen appends the wire form of o to dst.
func EncodeOpen(o Open, dst []byte) []byte {
	var optBuf []byte
	for _, p := range o.OptParams {
		optBuf = append(optBuf, p.Type, byte(len(p.Value)))
		optBuf = append(optBuf, p.Value...)
	}

	var fixed [10]byte
	fixed[0] = o.Version
	binary.BigEndian.PutUint16(fixed[1:3], o.MyAS)
	binary.BigEndian.PutUint16(fixed[3:5], o.HoldTime)
	binary.BigEndian.PutUint32(fixed[5:9], o.BGPIdentifier)
	fixed[9] = byte(len(optBuf))

	dst = append(dst, fixed[:]...)
	dst = append(dst, optBuf...)
	return dst
}

// DecodeNotification parses a NOTIFICATION body (RFC 4271 §4.5).
func DecodeNotification(body []byte) (Notification, error) {
	if len(body) < 2 {
		return Notification{}, ErrTruncatedBody
	}
	n := Notification{
		ErrorCode:    NotificationErrorCode(body[0]),
		ErrorSubcode: body[1],
	}
	if len(body) > 2 {
		n.Data = append([]byte(nil), body[2:]...)
	}
	return n, nil
}

// EncodeNotification appends the wire form of n to dst.
func EncodeNotification(n Notification, dst []byte) []byte {
	dst = append(dst, byte(n.ErrorCode), n.ErrorSubcode)
	return append(dst, n.Data...)
}
