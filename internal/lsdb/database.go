// Package lsdb implements the link-state database and flooding engine (C4)
// shared by OSPF and IS-IS: a content-addressed store keyed by a protocol's
// LSA/LSP key, an age tick, MaxAge purge, and the flooding decision that
// drives retransmission-list maintenance.
//
// No teacher file implements an LSDB (BFD has no flooded database), so the
// "manager owns a map behind a mutex plus a dispatch goroutine" shape is
// borrowed from bfd.Manager, and the flooding decision mirrors
// original_source/holo-ospf's flood.rs step order.
package lsdb

import (
	"sync"
)

// Precedence is the tuple spec.md §4.4 compares entries by: sequence number,
// checksum, and age. Record implementations derive it from their wire
// fields.
type Precedence struct {
	Sequence uint32
	Checksum uint16
	Age      uint16
}

// Record is anything storable in a Database: OSPF LSAs and IS-IS LSPs both
// implement it, letting both protocols share one lsdb.Database[K].
type Record[K comparable] interface {
	Key() K
	Precedence() Precedence
	IsMaxAge() bool
}

// maxAgeDiff is the RFC 2328 Section 13.1 tie-break window: two copies with
// equal sequence and checksum are treated as identical if their age
// difference is within this bound.
const maxAgeDiff = 900 // seconds, per RFC 2328

// Compare reports whether candidate supersedes stored per spec.md §4.4 step
// 2: higher sequence wins; on equal sequence, higher checksum wins; on
// equal checksum, MaxAge beats non-MaxAge, otherwise the copy is treated as
// identical (does not supersede) when the age difference is within
// maxAgeDiff.
func Compare[K comparable](candidate, stored Record[K]) bool {
	cp, sp := candidate.Precedence(), stored.Precedence()

	if cp.Sequence != sp.Sequence {
		return seqNewer(cp.Sequence, sp.Sequence)
	}
	if cp.Checksum != sp.Checksum {
		return cp.Checksum > sp.Checksum
	}
	if candidate.IsMaxAge() != stored.IsMaxAge() {
		return candidate.IsMaxAge()
	}

	ageDiff := int(cp.Age) - int(sp.Age)
	if ageDiff < 0 {
		ageDiff = -ageDiff
	}
	return ageDiff > maxAgeDiff && cp.Age < sp.Age
}

// seqNewer compares OSPF/IS-IS sequence numbers with RFC 2328 Section
// 12.1.6 wraparound semantics: the space is a signed 32-bit window, so a
// simple unsigned comparison is correct as long as wraparound (the
// 0x80000000 reserved transition) is not crossed, which the protocol layer
// is responsible for avoiding by never issuing it.
func seqNewer(a, b uint32) bool {
	return int32(a-b) > 0
}

// Database is a mutex-protected, content-addressed store of Record values
// keyed by K. It is the shared primary index; protocol packages layer their
// own secondary indexes (by advertising router, by LAN-id) on top by
// Range-ing and building their own map, since the shape of a useful
// secondary index differs per protocol.
type Database[K comparable, R Record[K]] struct {
	mu      sync.RWMutex
	entries map[K]R
}

// New creates an empty Database.
func New[K comparable, R Record[K]]() *Database[K, R] {
	return &Database[K, R]{entries: make(map[K]R)}
}

// Get returns the stored record for key, if any.
func (d *Database[K, R]) Get(key K) (R, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	r, ok := d.entries[key]
	return r, ok
}

// InsertResult reports what Insert did, so the caller can drive flooding
// and retransmission-list maintenance.
type InsertResult struct {
	// Accepted is true if candidate replaced (or newly created) the entry.
	Accepted bool
	// Purged is true if, after acceptance, the entry was immediately purged
	// because it is MaxAge and ShouldPurge returned true.
	Purged bool
}

// Insert runs the spec.md §4.4 step-2/step-4 insert/replace protocol:
// candidate replaces the stored copy only if Compare reports it supersedes
// it (or there is no stored copy). referenced reports, for a MaxAge
// candidate, whether any neighbor still references the key in a
// retransmission list; when false and the candidate is MaxAge, the entry is
// purged immediately after acceptance.
func (d *Database[K, R]) Insert(candidate R, referenced func(K) bool) InsertResult {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := candidate.Key()
	stored, exists := d.entries[key]

	if exists && !Compare[K](candidate, stored) {
		return InsertResult{Accepted: false}
	}

	d.entries[key] = candidate

	if candidate.IsMaxAge() && referenced != nil && !referenced(key) {
		delete(d.entries, key)
		return InsertResult{Accepted: true, Purged: true}
	}

	return InsertResult{Accepted: true}
}

// Delete unconditionally removes key, used for administrative flush.
func (d *Database[K, R]) Delete(key K) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.entries, key)
}

// Range calls fn for every entry. fn must not call back into the Database.
func (d *Database[K, R]) Range(fn func(K, R) bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for k, v := range d.entries {
		if !fn(k, v) {
			return
		}
	}
}

// Len returns the number of stored entries.
func (d *Database[K, R]) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return len(d.entries)
}

// Tick applies age to every entry via fn, which returns the aged copy and
// whether it should be purged (MaxAge and unreferenced). Mirrors the
// single-per-second age timer spec.md §3.2/§4.4 describes; the caller
// supplies the per-protocol aging rule (age+1, MaxAge clamp) since Database
// itself is protocol-agnostic.
func (d *Database[K, R]) Tick(fn func(R) (R, bool)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k, v := range d.entries {
		aged, purge := fn(v)
		if purge {
			delete(d.entries, k)
			continue
		}
		d.entries[k] = aged
	}
}
