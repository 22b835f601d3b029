package isis_test

import (
	"testing"

	"github.com/holo-suite/holod/internal/isis"
	"github.com/holo-suite/holod/internal/lsdb"
)

func TestLSPHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := isis.LSPHeader{
		RemainingLifetime: 1200,
		ID:                isis.LSPID{System: isis.SystemID{1, 2, 3, 4, 5, 6}, PseudoNode: 0, Number: 1},
		SeqNumber:         5,
		Checksum:          0xbeef,
		Flags:             0x03,
	}

	buf := make([]byte, isis.LSPHeaderSize)
	isis.EncodeLSPHeader(h, buf)

	decoded, err := isis.DecodeLSPHeader(buf)
	if err != nil {
		t.Fatalf("DecodeLSPHeader: %v", err)
	}
	if decoded != h {
		t.Fatalf("decoded = %+v, want %+v", decoded, h)
	}
}

func TestRecordSatisfiesLsdbRecord(t *testing.T) {
	t.Parallel()

	db := lsdb.New[isis.LSPID, isis.Record]()
	id := isis.LSPID{System: isis.SystemID{1, 1, 1, 1, 1, 1}, Number: 1}

	r1 := isis.Record{Header: isis.LSPHeader{ID: id, SeqNumber: 1, RemainingLifetime: 1200}}
	if !db.Insert(r1, nil).Accepted {
		t.Fatalf("first insert not accepted")
	}

	r2 := isis.Record{Header: isis.LSPHeader{ID: id, SeqNumber: 2, RemainingLifetime: 1200}}
	if !db.Insert(r2, nil).Accepted {
		t.Fatalf("higher sequence not accepted")
	}

	stored, ok := db.Get(id)
	if !ok || stored.Header.SeqNumber != 2 {
		t.Fatalf("stored = %+v, want sequence 2", stored)
	}
}

func TestCompareSNPEntry(t *testing.T) {
	t.Parallel()

	local := isis.Record{Header: isis.LSPHeader{SeqNumber: 5, Checksum: 100}}

	if got := isis.CompareSNPEntry(local, isis.SNPEntry{SeqNumber: 3, Checksum: 50}); got != -1 {
		t.Fatalf("CompareSNPEntry (local newer) = %d, want -1", got)
	}
	if got := isis.CompareSNPEntry(local, isis.SNPEntry{SeqNumber: 7, Checksum: 50}); got != 1 {
		t.Fatalf("CompareSNPEntry (local older) = %d, want 1", got)
	}
	if got := isis.CompareSNPEntry(local, isis.SNPEntry{SeqNumber: 5, Checksum: 100}); got != 0 {
		t.Fatalf("CompareSNPEntry (equal) = %d, want 0", got)
	}
}
