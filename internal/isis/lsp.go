// Package isis implements the minimal IS-IS LSP header and CSNP/PSNP
// summary types (ISO/IEC 10589) needed to drive the shared LSDB engine in
// internal/lsdb for IS-IS alongside OSPF, per spec.md §4.4's "shared by
// OSPF and IS-IS" framing.
package isis

import (
	"encoding/binary"
	"errors"

	"github.com/holo-suite/holod/internal/lsdb"
)

// SystemID is the 6-byte IS-IS system identifier (ISO 10589 §7.1.3).
type SystemID [6]byte

// LSPID identifies one LSP: system-id, pseudonode id, and LSP number
// (ISO 10589 §9.3). It doubles as the lsdb.Database key for IS-IS.
type LSPID struct {
	System     SystemID
	PseudoNode uint8
	Number     uint8
}

// LSPHeaderSize is the fixed portion of an LSP following the common 8-byte
// IS-IS PDU header (ISO 10589 §9.5): remaining lifetime, LSP id, sequence
// number, checksum, and the P/ATT/OL/IS-type flags byte.
const LSPHeaderSize = 19

// LSPHeader is the fixed LSP fields, analogous to ospf.LSAHeader.
type LSPHeader struct {
	RemainingLifetime uint16
	ID                LSPID
	SeqNumber         uint32
	Checksum          uint16
	Flags             uint8
}

var (
	ErrTruncatedBody = errors.New("isis: lsp header truncated")
)

// DecodeLSPHeader parses the fixed LSP header fields from buf.
func DecodeLSPHeader(buf []byte) (LSPHeader, error) {
	if len(buf) < LSPHeaderSize {
		return LSPHeader{}, ErrTruncatedBody
	}

	var id LSPID
	copy(id.System[:], buf[2:8])
	id.PseudoNode = buf[8]
	id.Number = buf[9]

	return LSPHeader{
		RemainingLifetime: binary.BigEndian.Uint16(buf[0:2]),
		ID:                id,
		SeqNumber:         binary.BigEndian.Uint32(buf[10:14]),
		Checksum:          binary.BigEndian.Uint16(buf[14:16]),
		Flags:             buf[16],
	}, nil
}

// EncodeLSPHeader writes h into buf[:LSPHeaderSize].
func EncodeLSPHeader(h LSPHeader, buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.RemainingLifetime)
	copy(buf[2:8], h.ID.System[:])
	buf[8] = h.ID.PseudoNode
	buf[9] = h.ID.Number
	binary.BigEndian.PutUint32(buf[10:14], h.SeqNumber)
	binary.BigEndian.PutUint16(buf[14:16], h.Checksum)
	buf[16] = h.Flags
}

// fletcher16 mirrors ospf.fletcher16 (ISO 10589 Annex C / RFC 905 Annex B);
// duplicated rather than shared since the two protocols checksum different
// byte ranges relative to their own headers and a shared helper would need
// to leak that offset back out anyway.
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

// Checksum computes the ISO 10589 Fletcher checksum over an LSP body
// (everything from the LSP ID onward; Remaining Lifetime is excluded, same
// exclusion rule as OSPF's LS Age).
func Checksum(lspFromID []byte) uint16 {
	return fletcher16(lspFromID, 12) // checksum field sits at offset 12 within this slice
}

// SNPEntry is one summary entry in a CSNP or PSNP (ISO 10589 §9.10): enough
// to compare against a stored LSP without carrying its full body.
type SNPEntry struct {
	ID                LSPID
	SeqNumber         uint32
	Checksum          uint16
	RemainingLifetime uint16
}

// Record implements lsdb.Record[LSPID] for a stored LSP, the IS-IS
// counterpart to ospf.Record.
type Record struct {
	Header  LSPHeader
	Body    []byte
	AgeSecs uint16
}

func (r Record) Key() LSPID { return r.Header.ID }

func (r Record) Precedence() lsdb.Precedence {
	return lsdb.Precedence{Sequence: r.Header.SeqNumber, Checksum: r.Header.Checksum, Age: r.AgeSecs}
}

func (r Record) IsMaxAge() bool {
	return r.Header.RemainingLifetime == 0
}

// CompareSNPEntry reports whether the local stored copy is newer (-1),
// equal (0), or older (1) than the SNP entry's advertised copy, using the
// same sequence/checksum precedence rule as lsdb.Compare, so CSNP/PSNP
// processing can decide whether to request or send an LSP without
// decoding its full body.
func CompareSNPEntry(local Record, entry SNPEntry) int {
	switch {
	case local.Header.SeqNumber > entry.SeqNumber:
		return -1
	case local.Header.SeqNumber < entry.SeqNumber:
		return 1
	case local.Header.Checksum != entry.Checksum:
		if local.Header.Checksum > entry.Checksum {
			return -1
		}
		return 1
	default:
		return 0
	}
}
