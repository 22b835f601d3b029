package ospf_test

import (
	"testing"

	"github.com/holo-suite/holod/internal/lsdb"
	"github.com/holo-suite/holod/internal/ospf"
)

// TestRouterLSAInDatabase checks that ospf.Record satisfies lsdb.Record and
// that a higher-sequence Router-LSA replaces a stored copy, exercising
// invariant 4 (LSDB monotonicity) against the concrete OSPF record type
// rather than the lsdb package's synthetic test record.
func TestRouterLSAInDatabase(t *testing.T) {
	t.Parallel()

	db := lsdb.New[ospf.LSAKey, ospf.Record]()

	key := ospf.LSAKey{Type: 1, LinkStateID: 0x01010101, AdvRouter: 0x01010101}
	first := ospf.Record{Header: ospf.LSAHeader{Type: 1, LinkStateID: key.LinkStateID, AdvRouter: key.AdvRouter, SeqNumber: 0x80000001, Checksum: 100}}
	res := db.Insert(first, nil)
	if !res.Accepted {
		t.Fatalf("first insert not accepted")
	}

	older := ospf.Record{Header: ospf.LSAHeader{Type: 1, LinkStateID: key.LinkStateID, AdvRouter: key.AdvRouter, SeqNumber: 0x80000000, Checksum: 200}}
	if db.Insert(older, nil).Accepted {
		t.Fatalf("older sequence was accepted over newer stored copy")
	}

	newer := ospf.Record{Header: ospf.LSAHeader{Type: 1, LinkStateID: key.LinkStateID, AdvRouter: key.AdvRouter, SeqNumber: 0x80000002, Checksum: 50}}
	if !db.Insert(newer, nil).Accepted {
		t.Fatalf("newer sequence was rejected")
	}

	stored, ok := db.Get(key)
	if !ok || stored.Header.SeqNumber != newer.Header.SeqNumber {
		t.Fatalf("stored record = %+v, want sequence 0x80000002", stored)
	}
}
