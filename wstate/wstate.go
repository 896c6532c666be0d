// Package wstate is the write-side staging arena (§4.B): it accepts
// application records, assigns them dense ordinals, deduplicates by
// content hash or primary key, and tracks the added/removed/ghost sets a
// cycle needs to compute a delta.
//
// Grounded on kvo/mutable.go's MutableRecord copy-on-write-overlay shape,
// generalised here from a single record to a whole per-type arena, and on
// edb/schemastate.go's ordinal-minting/freelist/ghost bookkeeping (the
// msgpack-persisted tableState there becomes this package's in-memory
// arena state, since write-state durability across restarts is an
// explicit spec Non-goal).
package wstate

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/dshollow/hollow/schema"
)

// Ordinal and NullOrdinal mirror the root package's aliases so this
// package has no import cycle back to it.
type Ordinal = int32

const NullOrdinal Ordinal = -1

// Record is the value a caller hands to Add: field values in schema
// field/element order. Its shape depends on the target schema's Kind:
//
//	object: one value per Fields entry (bool/int32/int64/float32/float64/
//	        string/[]byte for scalars, Ordinal for a Reference field, or
//	        NullOrdinal/nil for an absent reference)
//	list:   a []Ordinal of element ordinals, in order
//	set:    a []Ordinal of element ordinals (order not significant)
//	map:    a []MapEntry of key/value ordinal pairs
type Record struct {
	Fields   []any
	Elements []Ordinal
	Entries  []MapEntry
}

// MapEntry is one key/value ordinal pair of a map record.
type MapEntry struct {
	Key   Ordinal
	Value Ordinal
}

// PopulateError reports a failure raised while adding or removing a
// record during population (§7 PopulateFailure).
type PopulateError struct {
	TypeName string
	Reason   string
}

func (e *PopulateError) Error() string {
	return fmt.Sprintf("wstate: populate %s: %s", e.TypeName, e.Reason)
}

// typeArena holds one type's staged records for the current cycle.
type typeArena struct {
	schema schema.Schema

	records map[Ordinal]Record // all records ever assigned an ordinal, live or ghost
	byHash  map[uint64][]Ordinal
	byKey   map[string]Ordinal // only populated for object types with a primary key

	populatedThisCycle map[Ordinal]bool // re-added (or newly added) since last ResetForNextCycle
	populatedPrevCycle map[Ordinal]bool // populated as of the previous ResetForNextCycle
	modified           map[Ordinal]bool // same key, different content, this cycle
	freelist           []Ordinal
	nextOrdinal        Ordinal
}

func newTypeArena(sc schema.Schema) *typeArena {
	return &typeArena{
		schema:             sc,
		records:            make(map[Ordinal]Record),
		byHash:             make(map[uint64][]Ordinal),
		byKey:              make(map[string]Ordinal),
		populatedThisCycle: make(map[Ordinal]bool),
		populatedPrevCycle: make(map[Ordinal]bool),
		modified:           make(map[Ordinal]bool),
	}
}

// WriteState is the staging area for one producer's current and
// in-flight cycle. It is not safe for concurrent use (§5): the
// user-supplied population task owns its own serialisation.
type WriteState struct {
	schemas *schema.Set
	types   map[string]*typeArena
	closed  bool // true once populateComplete fires; Add/Remove then fail
}

// New creates an empty write state over the given immutable schema set.
func New(schemas *schema.Set) *WriteState {
	return &WriteState{
		schemas: schemas,
		types:   make(map[string]*typeArena),
	}
}

func (ws *WriteState) arena(typeName string) (*typeArena, error) {
	if a, ok := ws.types[typeName]; ok {
		return a, nil
	}
	sc, ok := ws.schemas.Get(typeName)
	if !ok {
		return nil, &PopulateError{TypeName: typeName, Reason: "unknown type"}
	}
	a := newTypeArena(sc)
	ws.types[typeName] = a
	return a, nil
}

// CloseForCycle marks the write state closed to further Add/Remove calls;
// the orchestrator calls this once PopulateComplete fires.
func (ws *WriteState) CloseForCycle() { ws.closed = true }

// SetAtOrdinal places rec directly at ordinal o, bypassing content-hash
// and primary-key deduplication. It exists for restoring a write state
// deterministically from already-ordinal-addressed data — a blob's
// snapshot/delta records, or another read state's records — where the
// ordinal is part of the data being restored rather than something to
// mint fresh (the delta package's DecodeSnapshot/ApplyForward/
// ApplyReverse are its only callers).
func (ws *WriteState) SetAtOrdinal(typeName string, o Ordinal, rec Record) error {
	if ws.closed {
		return &PopulateError{TypeName: typeName, Reason: "set after populate complete"}
	}
	a, err := ws.arena(typeName)
	if err != nil {
		return err
	}
	a.records[o] = rec
	a.populatedThisCycle[o] = true
	if o >= a.nextOrdinal {
		a.nextOrdinal = o + 1
	}
	return nil
}

// Add stages rec under typeName, returning its assigned ordinal. A
// second Add with identical content (no primary key) or the same
// primary key reuses the ordinal; a same-key, different-content Add
// replaces the content in place and marks the ordinal modified.
func (ws *WriteState) Add(typeName string, rec Record) (Ordinal, error) {
	if ws.closed {
		return NullOrdinal, &PopulateError{TypeName: typeName, Reason: "add after populate complete"}
	}
	a, err := ws.arena(typeName)
	if err != nil {
		return NullOrdinal, err
	}

	// Only object schemas carry write-state identity (a primary key). A
	// set/map schema's hash key governs how its *elements* are placed
	// into a hashed slot at read time (§4.C/§4.H); it plays no part in
	// deduplicating the set/map record itself, which is content-addressed
	// like any unkeyed object.
	if obj, ok := a.schema.(*schema.ObjectSchema); ok && len(obj.PrimaryKey) > 0 {
		return ws.addKeyed(a, obj, rec)
	}
	return ws.addContentAddressed(a, rec)
}

func (ws *WriteState) addContentAddressed(a *typeArena, rec Record) (Ordinal, error) {
	h := hashRecord(rec)
	// hashRecord and recordsEqual ignore element order; a list record
	// must also match element for element, in order.
	_, isList := a.schema.(*schema.ListSchema)
	sameListOrder := func(elems []Ordinal) bool {
		if !isList {
			return true
		}
		for i := range elems {
			if elems[i] != rec.Elements[i] {
				return false
			}
		}
		return true
	}
	for _, cand := range a.byHash[h] {
		if recordsEqual(a.records[cand], rec) && sameListOrder(a.records[cand].Elements) {
			a.populatedThisCycle[cand] = true
			return cand, nil
		}
	}
	o := ws.mint(a)
	a.records[o] = rec
	a.byHash[h] = append(a.byHash[h], o)
	a.populatedThisCycle[o] = true
	return o, nil
}

// addKeyed handles primary-keyed objects: the key identifies the
// ordinal; re-adding with the same key but different content replaces
// the content in place and marks the ordinal modified, matching §4.B.
func (ws *WriteState) addKeyed(a *typeArena, obj *schema.ObjectSchema, rec Record) (Ordinal, error) {
	keyStr, err := keyStringOf(obj, rec)
	if err != nil {
		return NullOrdinal, err
	}
	if o, ok := a.byKey[keyStr]; ok {
		old := a.records[o]
		if !recordsEqual(old, rec) {
			a.records[o] = rec
			a.modified[o] = true
		}
		a.populatedThisCycle[o] = true
		return o, nil
	}
	o := ws.mint(a)
	a.records[o] = rec
	a.byKey[keyStr] = o
	a.populatedThisCycle[o] = true
	return o, nil
}

// mint assigns the next ordinal for a, reusing the freelist when
// possible (edb/schemastate.go's freelist pattern).
func (ws *WriteState) mint(a *typeArena) Ordinal {
	if n := len(a.freelist); n > 0 {
		o := a.freelist[n-1]
		a.freelist = a.freelist[:n-1]
		return o
	}
	o := a.nextOrdinal
	a.nextOrdinal++
	return o
}

// RemoveOrdinal marks ordinal o of typeName as not populated this cycle;
// if it was populated last cycle it becomes a ghost and is freed at the
// next ResetForNextCycle unless re-added before then. Removal is by
// ordinal only, for every type; there is no removal by primary key or by
// record content.
func (ws *WriteState) RemoveOrdinal(typeName string, o Ordinal) error {
	a, ok := ws.types[typeName]
	if !ok {
		return &PopulateError{TypeName: typeName, Reason: "unknown type"}
	}
	if ws.closed {
		return &PopulateError{TypeName: typeName, Reason: "remove after populate complete"}
	}
	delete(a.populatedThisCycle, o)
	return nil
}

// ResetForNextCycle freezes the current cycle's additions as the new
// "previous" baseline, moves any ordinal that was populated last cycle
// but not re-touched this cycle onto the freelist (it becomes a ghost —
// its content stays readable via Record until the ordinal is reused), and reopens the arena for
// a new cycle's Add/Remove calls.
func (ws *WriteState) ResetForNextCycle() {
	for _, a := range ws.types {
		for o := range a.populatedPrevCycle {
			if !a.populatedThisCycle[o] {
				a.freelist = append(a.freelist, o)
			}
		}
		a.populatedPrevCycle = a.populatedThisCycle
		a.populatedThisCycle = make(map[Ordinal]bool, len(a.populatedPrevCycle))
		a.modified = make(map[Ordinal]bool)
	}
	ws.closed = false
}

// Populated returns the ordinals live in typeName as of the current
// (not-yet-reset) cycle.
func (ws *WriteState) Populated(typeName string) map[Ordinal]bool {
	a, ok := ws.types[typeName]
	if !ok {
		return nil
	}
	return a.populatedThisCycle
}

// PrevPopulated returns the ordinals that were live as of the previous
// cycle's ResetForNextCycle — i.e. what the current read state reflects.
func (ws *WriteState) PrevPopulated(typeName string) map[Ordinal]bool {
	a, ok := ws.types[typeName]
	if !ok {
		return nil
	}
	return a.populatedPrevCycle
}

// Modified returns the ordinals whose content changed in place this
// cycle (same key, new content).
func (ws *WriteState) Modified(typeName string) map[Ordinal]bool {
	a, ok := ws.types[typeName]
	if !ok {
		return nil
	}
	return a.modified
}

// Record returns the staged record at ordinal o in typeName.
func (ws *WriteState) Record(typeName string, o Ordinal) (Record, bool) {
	a, ok := ws.types[typeName]
	if !ok {
		return Record{}, false
	}
	r, ok := a.records[o]
	return r, ok
}

// TypeNames returns every type the write state has seen a record for.
func (ws *WriteState) TypeNames() []string {
	out := make([]string, 0, len(ws.types))
	for name := range ws.types {
		out = append(out, name)
	}
	return out
}

// HasChanges reports whether any type has an added, removed, or modified
// ordinal relative to the previous cycle — the §4.F no-delta test.
func (ws *WriteState) HasChanges() bool {
	for _, a := range ws.types {
		if len(a.modified) > 0 {
			return true
		}
		for o := range a.populatedThisCycle {
			if !a.populatedPrevCycle[o] {
				return true
			}
		}
		for o := range a.populatedPrevCycle {
			if !a.populatedThisCycle[o] {
				return true
			}
		}
	}
	return false
}

func hashRecord(rec Record) uint64 {
	d := xxhash.New()
	encodeRecordForHash(d, rec)
	return d.Sum64()
}

// recordsEqual matches hashRecord's order-insensitivity for Elements and
// Entries (sets/maps aren't order-addressed) while staying order-sensitive
// for Fields (object field order). It ignores list element order too;
// addContentAddressed adds the in-order element check for list records.
func recordsEqual(a, b Record) bool {
	if len(a.Fields) != len(b.Fields) || len(a.Elements) != len(b.Elements) || len(a.Entries) != len(b.Entries) {
		return false
	}
	for i := range a.Fields {
		if !fieldEqual(a.Fields[i], b.Fields[i]) {
			return false
		}
	}
	ae := append([]Ordinal(nil), a.Elements...)
	be := append([]Ordinal(nil), b.Elements...)
	sortOrdinals(ae)
	sortOrdinals(be)
	for i := range ae {
		if ae[i] != be[i] {
			return false
		}
	}
	aen := append([]MapEntry(nil), a.Entries...)
	ben := append([]MapEntry(nil), b.Entries...)
	sortEntries(aen)
	sortEntries(ben)
	for i := range aen {
		if aen[i] != ben[i] {
			return false
		}
	}
	return true
}

func fieldEqual(a, b any) bool {
	if bs1, ok := a.([]byte); ok {
		bs2, ok2 := b.([]byte)
		if !ok2 || len(bs1) != len(bs2) {
			return false
		}
		for i := range bs1 {
			if bs1[i] != bs2[i] {
				return false
			}
		}
		return true
	}
	return a == b
}
