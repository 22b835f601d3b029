package lsdb_test

import (
	"testing"

	"github.com/holo-suite/holod/internal/lsdb"
)

type testKey struct {
	Type uint8
	ID   uint32
}

type testRecord struct {
	key        testKey
	precedence lsdb.Precedence
	maxAge     bool
}

func (r testRecord) Key() testKey               { return r.key }
func (r testRecord) Precedence() lsdb.Precedence { return r.precedence }
func (r testRecord) IsMaxAge() bool              { return r.maxAge }

func TestInsertHigherSequenceWins(t *testing.T) {
	t.Parallel()

	db := lsdb.New[testKey, testRecord]()
	key := testKey{Type: 1, ID: 1}

	res := db.Insert(testRecord{key: key, precedence: lsdb.Precedence{Sequence: 5}}, nil)
	if !res.Accepted {
		t.Fatalf("first insert not accepted")
	}

	res = db.Insert(testRecord{key: key, precedence: lsdb.Precedence{Sequence: 4}}, nil)
	if res.Accepted {
		t.Fatalf("lower sequence accepted")
	}

	res = db.Insert(testRecord{key: key, precedence: lsdb.Precedence{Sequence: 6}}, nil)
	if !res.Accepted {
		t.Fatalf("higher sequence rejected")
	}

	got, ok := db.Get(key)
	if !ok || got.precedence.Sequence != 6 {
		t.Fatalf("stored entry = %+v, want sequence 6", got)
	}
}

// TestInvariant4LSDBMonotonicity checks that repeated inserts only ever
// move a key's precedence forward, mirroring invariant 4 from the
// testable-properties set.
func TestInvariant4LSDBMonotonicity(t *testing.T) {
	t.Parallel()

	db := lsdb.New[testKey, testRecord]()
	key := testKey{Type: 1, ID: 1}

	sequences := []uint32{1, 1, 2, 2, 5, 3, 7}
	var lastAccepted uint32

	for _, seq := range sequences {
		res := db.Insert(testRecord{key: key, precedence: lsdb.Precedence{Sequence: seq}}, nil)
		if res.Accepted {
			if seq < lastAccepted {
				t.Fatalf("accepted a lower sequence %d after %d", seq, lastAccepted)
			}
			lastAccepted = seq
		}
	}

	got, _ := db.Get(key)
	if got.precedence.Sequence != 7 {
		t.Fatalf("final stored sequence = %d, want 7", got.precedence.Sequence)
	}
}

func TestInsertMaxAgePurgedWhenUnreferenced(t *testing.T) {
	t.Parallel()

	db := lsdb.New[testKey, testRecord]()
	key := testKey{Type: 1, ID: 2}

	db.Insert(testRecord{key: key, precedence: lsdb.Precedence{Sequence: 1}}, nil)

	res := db.Insert(testRecord{key: key, precedence: lsdb.Precedence{Sequence: 2}, maxAge: true},
		func(testKey) bool { return false })
	if !res.Accepted || !res.Purged {
		t.Fatalf("res = %+v, want accepted+purged", res)
	}

	if _, ok := db.Get(key); ok {
		t.Fatalf("purged entry still present")
	}
}

func TestInsertMaxAgeKeptWhenReferenced(t *testing.T) {
	t.Parallel()

	db := lsdb.New[testKey, testRecord]()
	key := testKey{Type: 1, ID: 3}

	db.Insert(testRecord{key: key, precedence: lsdb.Precedence{Sequence: 1}}, nil)
	res := db.Insert(testRecord{key: key, precedence: lsdb.Precedence{Sequence: 2}, maxAge: true},
		func(testKey) bool { return true })

	if !res.Accepted || res.Purged {
		t.Fatalf("res = %+v, want accepted, not purged", res)
	}
	if _, ok := db.Get(key); !ok {
		t.Fatalf("referenced MaxAge entry was purged")
	}
}
