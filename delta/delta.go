// Package delta computes and applies the snapshot / forward-delta /
// reverse-delta payloads between a previous read state and the current
// write state (§4.D). Grounded on kvo/mutable.go's Pack() — the same
// tombstone/added/removed reconciliation algorithm, generalised here from
// one record's field set to the §4.D three-bitset (added/removed/ghost)
// scheme across every type in a schema set.
package delta

import (
	"fmt"
	"sort"

	"github.com/dshollow/hollow/blob"
	"github.com/dshollow/hollow/rstate"
	"github.com/dshollow/hollow/schema"
	"github.com/dshollow/hollow/wstate"
)

// Result holds the three blob payload sets produced by one cycle's
// Compute, keyed by schema share (§4.D): full snapshot sections, and the
// forward/reverse delta sections between R_prev and the new state.
type Result struct {
	Snapshot     []blob.Section
	Forward      []blob.Section
	ReverseDelta []blob.Section
}

// Compute computes the full Result for moving from rPrev (nil for an
// empty initial state) to ws's currently-populated records.
func Compute(schemas *schema.Set, rPrev *rstate.ReadState, ws *wstate.WriteState) (*Result, error) {
	res := &Result{}
	for _, sc := range schemas.All() {
		typeName := sc.SchemaName()
		newPop := ws.Populated(typeName)

		var prevOrdinals []int32
		if rPrev != nil {
			if bs, err := rPrev.PopulatedOrdinals(typeName); err == nil {
				prevOrdinals = bs.Ordinals()
			}
		}
		prevSet := make(map[int32]bool, len(prevOrdinals))
		for _, o := range prevOrdinals {
			prevSet[o] = true
		}

		var added, removed, allNew []int32
		for o := range newPop {
			allNew = append(allNew, o)
			if !prevSet[o] {
				added = append(added, o)
			}
		}
		for _, o := range prevOrdinals {
			if !newPop[o] {
				removed = append(removed, o)
			}
		}
		// A modified ordinal (same primary key, new content — §4.B) is in
		// neither added nor removed: it stays at the same ordinal in both
		// states. It still needs its new payload written into the forward
		// delta and its old payload (read back from rPrev) written into the
		// reverse delta, or ApplyForward/ApplyReverse just re-baseline the
		// stale content at that ordinal and the integrity check's
		// field-by-field comparison fails (§8 invariants 2 and 3).
		var modified []int32
		for o := range ws.Modified(typeName) {
			if newPop[o] {
				modified = append(modified, o)
			}
		}
		sort.Slice(allNew, func(i, j int) bool { return allNew[i] < allNew[j] })
		sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
		sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })
		sort.Slice(modified, func(i, j int) bool { return modified[i] < modified[j] })

		fwdPayloadOrdinals := mergeSorted(added, modified)
		revRestoreOrdinals := mergeSorted(removed, modified)

		snapPayload, err := encodeSnapshotSection(sc, ws, allNew)
		if err != nil {
			return nil, err
		}
		res.Snapshot = append(res.Snapshot, blob.Section{TypeName: typeName, Kind: blob.Snapshot, Payload: snapPayload})

		fwdPayload, err := encodeDeltaSection(sc, ws, fwdPayloadOrdinals, removed)
		if err != nil {
			return nil, err
		}
		res.Forward = append(res.Forward, blob.Section{TypeName: typeName, Kind: blob.Delta, Payload: fwdPayload})

		revPayload, err := encodeReverseSection(sc, rPrev, typeName, added, revRestoreOrdinals)
		if err != nil {
			return nil, err
		}
		res.ReverseDelta = append(res.ReverseDelta, blob.Section{TypeName: typeName, Kind: blob.ReverseDelta, Payload: revPayload})
	}
	return res, nil
}

// mergeSorted merges two already-sorted, disjoint ordinal slices into one
// sorted slice — used to fold modified ordinals into the forward delta's
// payload-overwrite list and the reverse delta's payload-restore list
// alongside added/removed respectively.
func mergeSorted(a, b []int32) []int32 {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return b
	}
	out := make([]int32, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func encodeSnapshotSection(sc schema.Schema, ws *wstate.WriteState, ordinals []int32) ([]byte, error) {
	w := &writer{}
	w.uvarint(uint64(len(ordinals)))
	for _, o := range ordinals {
		rec, ok := ws.Record(sc.SchemaName(), o)
		if !ok {
			return nil, fmt.Errorf("delta: missing record for %s ordinal %d", sc.SchemaName(), o)
		}
		w.uvarint(uint64(uint32(o)))
		encodeRecord(w, sc, rec)
	}
	return w.buf, nil
}

// encodeDeltaSection encodes the forward delta: the removed-ordinal
// bitset (as a sorted list) followed by full records for every added or
// in-place modified ordinal, in ascending order (§4.D ordering rule).
func encodeDeltaSection(sc schema.Schema, ws *wstate.WriteState, added, removed []int32) ([]byte, error) {
	w := &writer{}
	w.uvarint(uint64(len(removed)))
	for _, o := range removed {
		w.uvarint(uint64(uint32(o)))
	}
	w.uvarint(uint64(len(added)))
	for _, o := range added {
		rec, ok := ws.Record(sc.SchemaName(), o)
		if !ok {
			return nil, fmt.Errorf("delta: missing record for %s ordinal %d", sc.SchemaName(), o)
		}
		w.uvarint(uint64(uint32(o)))
		encodeRecord(w, sc, rec)
	}
	return w.buf, nil
}

// encodeReverseSection is the symmetric counterpart: "removed" ordinals
// (relative to the new state, i.e. the ones forward added) need no
// payload to undo — just their ordinal, to be dropped; ordinals forward
// removed or modified in place need their old payload restored, read back
// from rPrev.
func encodeReverseSection(sc schema.Schema, rPrev *rstate.ReadState, typeName string, added, removed []int32) ([]byte, error) {
	w := &writer{}
	w.uvarint(uint64(len(added)))
	for _, o := range added {
		w.uvarint(uint64(uint32(o)))
	}
	w.uvarint(uint64(len(removed)))
	for _, o := range removed {
		rec, err := recordFromReadState(sc, rPrev, typeName, o)
		if err != nil {
			return nil, err
		}
		w.uvarint(uint64(uint32(o)))
		encodeRecord(w, sc, rec)
	}
	return w.buf, nil
}

// recordFromReadState reconstructs a wstate.Record for ordinal o of
// typeName by reading it back out of an already-built ReadState — used
// both to encode reverse deltas and (in Apply*) to re-baseline ordinals a
// delta doesn't touch.
func recordFromReadState(sc schema.Schema, rs *rstate.ReadState, typeName string, o int32) (wstate.Record, error) {
	switch t := sc.(type) {
	case *schema.ObjectSchema:
		fields := make([]any, len(t.Fields))
		for i, f := range t.Fields {
			v, err := rs.ReadField(typeName, o, f.Name)
			if err != nil {
				return wstate.Record{}, err
			}
			fields[i] = v
		}
		return wstate.Record{Fields: fields}, nil
	case *schema.ListSchema:
		elems, err := rs.IterateList(typeName, o)
		return wstate.Record{Elements: elems}, err
	case *schema.SetSchema:
		elems, err := rs.IterateSet(typeName, o)
		return wstate.Record{Elements: elems}, err
	case *schema.MapSchema:
		entries, err := rs.IterateMap(typeName, o)
		if err != nil {
			return wstate.Record{}, err
		}
		out := make([]wstate.MapEntry, len(entries))
		for i, e := range entries {
			out[i] = wstate.MapEntry{Key: e.Key, Value: e.Value}
		}
		return wstate.Record{Entries: out}, nil
	default:
		return wstate.Record{}, fmt.Errorf("delta: unknown schema variant %T", sc)
	}
}

// Equal compares two read states field-by-field across every schema type,
// not just populated-ordinal counts (§4.F integrity check, §8 invariant
// 2's "equal, field-by-field" wording). A nil ReadState is treated as
// having nothing populated, so Equal also covers the first-cycle case
// where rPrev is nil. Returns a descriptive error naming the first
// mismatch found.
func Equal(schemas *schema.Set, a, b *rstate.ReadState) error {
	for _, sc := range schemas.All() {
		typeName := sc.SchemaName()
		aPop, err := populatedOf(a, typeName)
		if err != nil {
			return err
		}
		bPop, err := populatedOf(b, typeName)
		if err != nil {
			return err
		}
		if aPop.Count() != bPop.Count() {
			return fmt.Errorf("delta: integrity mismatch: type %q populated count differs: %d vs %d", typeName, aPop.Count(), bPop.Count())
		}
		for _, o := range aPop.Ordinals() {
			if !bPop.Test(o) {
				return fmt.Errorf("delta: integrity mismatch: type %q ordinal %d populated on one side only", typeName, o)
			}
			if err := recordsEqual(sc, typeName, o, a, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func populatedOf(rs *rstate.ReadState, typeName string) (*rstate.Bitset, error) {
	if rs == nil {
		return rstate.NewBitset(), nil
	}
	return rs.PopulatedOrdinals(typeName)
}

func recordsEqual(sc schema.Schema, typeName string, o int32, a, b *rstate.ReadState) error {
	switch t := sc.(type) {
	case *schema.ObjectSchema:
		for _, f := range t.Fields {
			av, err := a.ReadField(typeName, o, f.Name)
			if err != nil {
				return err
			}
			bv, err := b.ReadField(typeName, o, f.Name)
			if err != nil {
				return err
			}
			if !fieldEqual(av, bv) {
				return fmt.Errorf("delta: integrity mismatch: type %q ordinal %d field %q: %v vs %v", typeName, o, f.Name, av, bv)
			}
		}
	case *schema.ListSchema:
		ae, err := a.IterateList(typeName, o)
		if err != nil {
			return err
		}
		be, err := b.IterateList(typeName, o)
		if err != nil {
			return err
		}
		if !ordinalsEqual(ae, be) {
			return fmt.Errorf("delta: integrity mismatch: list %q ordinal %d elements: %v vs %v", typeName, o, ae, be)
		}
	case *schema.SetSchema:
		ae, err := a.IterateSet(typeName, o)
		if err != nil {
			return err
		}
		be, err := b.IterateSet(typeName, o)
		if err != nil {
			return err
		}
		if !ordinalsEqual(ae, be) {
			return fmt.Errorf("delta: integrity mismatch: set %q ordinal %d elements: %v vs %v", typeName, o, ae, be)
		}
	case *schema.MapSchema:
		ae, err := a.IterateMap(typeName, o)
		if err != nil {
			return err
		}
		be, err := b.IterateMap(typeName, o)
		if err != nil {
			return err
		}
		if len(ae) != len(be) {
			return fmt.Errorf("delta: integrity mismatch: map %q ordinal %d entry count: %d vs %d", typeName, o, len(ae), len(be))
		}
		for i := range ae {
			if ae[i] != be[i] {
				return fmt.Errorf("delta: integrity mismatch: map %q ordinal %d entry %d: %v vs %v", typeName, o, i, ae[i], be[i])
			}
		}
	default:
		return fmt.Errorf("delta: unknown schema variant %T", sc)
	}
	return nil
}

func fieldEqual(a, b any) bool {
	if ab, ok := a.([]byte); ok {
		bb, ok := b.([]byte)
		return ok && string(ab) == string(bb)
	}
	return a == b
}

func ordinalsEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DecodeSnapshot rebuilds a ReadState directly from a set of snapshot
// sections (as produced by Compute or parsed off a blob.Blob), by
// reconstructing a synthetic write state and reusing
// rstate.BuildSnapshot — the same "freeze a write state into a read
// state" logic a producer uses for its own just-populated data, here fed
// decoded records instead of live ones (SPEC_FULL §0, rstate grounding).
func DecodeSnapshot(schemas *schema.Set, sections []blob.Section) (*rstate.ReadState, error) {
	synth := wstate.New(schemas)
	for _, sec := range sections {
		sc, ok := schemas.Get(sec.TypeName)
		if !ok {
			return nil, fmt.Errorf("delta: snapshot section for unknown type %q", sec.TypeName)
		}
		r := &reader{buf: sec.Payload}
		count := r.uvarint()
		for i := uint64(0); i < count && r.err == nil; i++ {
			o := int32(uint32(r.uvarint()))
			rec := decodeRecord(r, sc)
			if err := addAtOrdinal(synth, sec.TypeName, o, rec); err != nil {
				return nil, err
			}
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	synth.CloseForCycle()
	return rstate.BuildSnapshot(schemas, synth)
}

// ApplyForward reconstructs the new read state by combining rPrev's
// untouched ordinals with forward's removed/added lists.
func ApplyForward(schemas *schema.Set, rPrev *rstate.ReadState, forward []blob.Section) (*rstate.ReadState, error) {
	return applyDelta(schemas, rPrev, forward, false)
}

// ApplyReverse reconstructs the prior read state by combining rNew's
// untouched ordinals with a reverse delta's own removed/added lists
// (symmetric to ApplyForward).
func ApplyReverse(schemas *schema.Set, rNew *rstate.ReadState, reverse []blob.Section) (*rstate.ReadState, error) {
	return applyDelta(schemas, rNew, reverse, true)
}

func applyDelta(schemas *schema.Set, base *rstate.ReadState, sections []blob.Section, reverse bool) (*rstate.ReadState, error) {
	synth := wstate.New(schemas)
	for _, sc := range schemas.All() {
		typeName := sc.SchemaName()
		var basePop []int32
		if base != nil {
			if bs, err := base.PopulatedOrdinals(typeName); err == nil {
				basePop = bs.Ordinals()
			}
		}
		// Re-baseline every ordinal from base; the per-type section below
		// then removes and adds on top of that baseline.
		for _, o := range basePop {
			rec, err := recordFromReadState(sc, base, typeName, o)
			if err != nil {
				return nil, err
			}
			if err := addAtOrdinal(synth, typeName, o, rec); err != nil {
				return nil, err
			}
		}
	}
	for _, sec := range sections {
		sc, ok := schemas.Get(sec.TypeName)
		if !ok {
			return nil, fmt.Errorf("delta: section for unknown type %q", sec.TypeName)
		}
		r := &reader{buf: sec.Payload}
		removedCount := r.uvarint()
		removed := make([]int32, removedCount)
		for i := range removed {
			removed[i] = int32(uint32(r.uvarint()))
		}
		addedCount := r.uvarint()
		for i := uint64(0); i < addedCount && r.err == nil; i++ {
			o := int32(uint32(r.uvarint()))
			rec := decodeRecord(r, sc)
			if err := addAtOrdinal(synth, sec.TypeName, o, rec); err != nil {
				return nil, err
			}
		}
		if r.err != nil {
			return nil, r.err
		}
		for _, o := range removed {
			_ = synth.RemoveOrdinal(sec.TypeName, o)
		}
	}
	synth.CloseForCycle()
	return rstate.BuildSnapshot(schemas, synth)
}

// addAtOrdinal stages rec so it lands at exactly ordinal o, using
// WriteState.SetAtOrdinal — decoded/re-baselined records must preserve
// their original ordinal rather than go through mint()'s fresh assignment.
func addAtOrdinal(ws *wstate.WriteState, typeName string, o int32, rec wstate.Record) error {
	return ws.SetAtOrdinal(typeName, o, rec)
}
