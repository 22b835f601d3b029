package ospf

import (
	"encoding/binary"

	"github.com/holo-suite/holod/internal/lsdb"
)

// RouterLSALink is one link entry in a Router-LSA (RFC 2328 A.4.2).
type RouterLSALink struct {
	LinkID   uint32
	LinkData uint32
	Type     uint8
	Metric   uint16
}

// RouterLSA is a Type-1 LSA body: the originating router's link set.
type RouterLSA struct {
	Header RouterLSAFlags
	Links  []RouterLSALink
}

// RouterLSAFlags carries the V/E/B bits from RFC 2328 A.4.2 byte 1.
type RouterLSAFlags struct {
	Virtual bool
	ASBR    bool
	ABR     bool
}

// fletcher16 computes the ISO 8473 Fletcher checksum used by OSPF LSAs
// (RFC 2328 Appendix E / RFC 905 Annex B) and returns the two checksum
// bytes to be stored at checksumOffset and checksumOffset+1 of data; those
// two bytes must be zero when it is called. data starts at the field
// following the LS Age (the Age field is excluded from the checksum per
// RFC 2328's "the LS age field is not included").
func fletcher16(data []byte, checksumOffset int) uint16 {
	var c0, c1 int
	for _, b := range data {
		c0 = (c0 + int(b)) % 255
		c1 = (c1 + c0) % 255
	}

	n := len(data)
	x := (n-checksumOffset-1)*c0 - c1
	x %= 255
	if x <= 0 {
		x += 255
	}
	y := 510 - c0 - x
	if y > 255 {
		y -= 255
	}

	return uint16(x)<<8 | uint16(y)
}

// DecodeRouterLSA parses a Router-LSA body following lsaHeaderSize bytes of
// common LSA header already consumed by the caller.
func DecodeRouterLSA(body []byte) (RouterLSA, error) {
	if len(body) < 4 {
		return RouterLSA{}, ErrTruncatedBody
	}
	flagsByte := body[1]
	numLinks := binary.BigEndian.Uint16(body[2:4])

	lsa := RouterLSA{
		Header: RouterLSAFlags{
			Virtual: flagsByte&0x04 != 0,
			ASBR:    flagsByte&0x02 != 0,
			ABR:     flagsByte&0x01 != 0,
		},
	}

	off := 4
	for i := uint16(0); i < numLinks; i++ {
		if off+12 > len(body) {
			return RouterLSA{}, ErrTruncatedBody
		}
		link := RouterLSALink{
			LinkID:   binary.BigEndian.Uint32(body[off : off+4]),
			LinkData: binary.BigEndian.Uint32(body[off+4 : off+8]),
			Type:     body[off+8],
			Metric:   binary.BigEndian.Uint16(body[off+10 : off+12]),
		}
		lsa.Links = append(lsa.Links, link)
		off += 12
	}
	return lsa, nil
}

// EncodeRouterLSA appends the wire form of lsa to dst.
func EncodeRouterLSA(lsa RouterLSA, dst []byte) []byte {
	var flagsByte uint8
	if lsa.Header.Virtual {
		flagsByte |= 0x04
	}
	if lsa.Header.ASBR {
		flagsByte |= 0x02
	}
	if lsa.Header.ABR {
		flagsByte |= 0x01
	}

	var head [4]byte
	head[1] = flagsByte
	binary.BigEndian.PutUint16(head[2:4], uint16(len(lsa.Links)))
	dst = append(dst, head[:]...)

	for _, link := range lsa.Links {
		var b [12]byte
		binary.BigEndian.PutUint32(b[0:4], link.LinkID)
		binary.BigEndian.PutUint32(b[4:8], link.LinkData)
		b[8] = link.Type
		binary.BigEndian.PutUint16(b[10:12], link.Metric)
		dst = append(dst, b[:]...)
	}
	return dst
}

// LSAKey identifies an LSA instance within an area's LSDB: (type,
// link-state-id, advertising-router), matching spec.md §3.1's per-protocol
// key scheme.
type LSAKey struct {
	Type        uint8
	LinkStateID uint32
	AdvRouter   uint32
}

// maxAge is the RFC 2328 MaxAge constant, 3600 seconds.
const maxAge = 3600

// maxAgeDiffSeconds is RFC 2328's MaxAgeDiff constant (900s). The
// same-sequence same-checksum age tie-break itself is made by lsdb.Compare,
// which uses its own copy of this value; nothing in this package reads it.
const maxAgeDiffSeconds = 900

// Record is one stored LSA: its key, header metadata, and (for Router-LSAs)
// decoded body, implementing lsdb.Record[LSAKey] so the shared LSDB engine
// in internal/lsdb can store and compare OSPF LSAs.
type Record struct {
	Header  LSAHeader
	Router  *RouterLSA
	AgeSecs uint16
}

// Key implements lsdb.Record.
func (r Record) Key() LSAKey {
	return LSAKey{Type: r.Header.Type, LinkStateID: r.Header.LinkStateID, AdvRouter: r.Header.AdvRouter}
}

// Precedence implements lsdb.Record using the header's sequence/checksum
// and the tracked age, per spec.md §4.4 step 2's precedence rule.
func (r Record) Precedence() lsdb.Precedence {
	return lsdb.Precedence{Sequence: r.Header.SeqNumber, Checksum: r.Header.Checksum, Age: r.AgeSecs}
}

// IsMaxAge implements lsdb.Record.
func (r Record) IsMaxAge() bool {
	return r.AgeSecs >= maxAge
}
