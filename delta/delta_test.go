package delta

import (
	"testing"

	"github.com/dshollow/hollow/rstate"
	"github.com/dshollow/hollow/schema"
	"github.com/dshollow/hollow/wstate"
)

func movieSchemas() *schema.Set {
	set := schema.NewSet()
	schema.DefineObject(set, "Movie", func(b *schema.ObjectSchemaBuilder) {
		b.Field("id", schema.Int)
		b.Field("title", schema.String)
		b.PrimaryKey("id")
	})
	return set
}

func readTitle(t *testing.T, rs *rstate.ReadState, o int32) string {
	t.Helper()
	v, err := rs.ReadField("Movie", o, "title")
	if err != nil {
		t.Fatal(err)
	}
	if v == nil {
		return "<nil>"
	}
	return v.(string)
}

// TestDeltaClosure exercises spec.md §8 invariant 2: applying the forward
// delta to R_prev reproduces the new snapshot state, and applying the
// reverse delta to that reproduces R_prev.
func TestDeltaClosure(t *testing.T) {
	schemas := movieSchemas()

	ws := wstate.New(schemas)
	o1, _ := ws.Add("Movie", wstate.Record{Fields: []any{int32(1), "A"}})
	_, _ = ws.Add("Movie", wstate.Record{Fields: []any{int32(2), "B"}})
	ws.CloseForCycle()
	rPrev, err := rstate.BuildSnapshot(schemas, ws)
	if err != nil {
		t.Fatal(err)
	}
	ws.ResetForNextCycle()

	// Cycle 2: drop id=1, keep id=2, add id=3.
	o2Again, _ := ws.Add("Movie", wstate.Record{Fields: []any{int32(2), "B"}})
	o3, _ := ws.Add("Movie", wstate.Record{Fields: []any{int32(3), "C"}})
	ws.CloseForCycle()

	result, err := Compute(schemas, rPrev, ws)
	if err != nil {
		t.Fatal(err)
	}

	rNewViaSnapshot, err := DecodeSnapshot(schemas, result.Snapshot)
	if err != nil {
		t.Fatal(err)
	}
	rNewViaForward, err := ApplyForward(schemas, rPrev, result.Forward)
	if err != nil {
		t.Fatal(err)
	}

	for _, o := range []int32{o2Again, o3} {
		if readTitle(t, rNewViaSnapshot, o) != readTitle(t, rNewViaForward, o) {
			t.Fatalf("ordinal %d: snapshot/forward mismatch", o)
		}
	}
	popSnap, _ := rNewViaSnapshot.PopulatedOrdinals("Movie")
	popFwd, _ := rNewViaForward.PopulatedOrdinals("Movie")
	if popSnap.Count() != popFwd.Count() {
		t.Fatalf("populated count mismatch: snapshot=%d forward=%d", popSnap.Count(), popFwd.Count())
	}

	rBack, err := ApplyReverse(schemas, rNewViaForward, result.ReverseDelta)
	if err != nil {
		t.Fatal(err)
	}
	popBack, _ := rBack.PopulatedOrdinals("Movie")
	if popBack.Count() != 2 {
		t.Fatalf("reverse delta restored %d records, want 2", popBack.Count())
	}
	if !popBack.Test(o1) {
		t.Fatal("reverse delta should have restored ordinal for id=1")
	}
	if readTitle(t, rBack, o1) != "A" {
		t.Fatalf("restored id=1 title = %q, want A", readTitle(t, rBack, o1))
	}
	if popBack.Test(o3) {
		t.Fatal("reverse delta should have removed id=3 (added this cycle)")
	}
}

// TestDeltaClosureWithInPlaceModification exercises §4.B: re-Add-ing a
// primary-keyed record with the same key but new content replaces it at
// the same ordinal rather than adding/removing. That ordinal is neither
// forward-added nor forward-removed, so Compute must still carry its new
// content in the forward delta and its old content in the reverse delta,
// or the forward/reverse round trip reconstructs stale data at that
// ordinal despite matching populated-ordinal counts.
func TestDeltaClosureWithInPlaceModification(t *testing.T) {
	schemas := movieSchemas()

	ws := wstate.New(schemas)
	o1, _ := ws.Add("Movie", wstate.Record{Fields: []any{int32(1), "Old Title"}})
	ws.CloseForCycle()
	rPrev, err := rstate.BuildSnapshot(schemas, ws)
	if err != nil {
		t.Fatal(err)
	}
	ws.ResetForNextCycle()

	// Same primary key (id=1), new title: an in-place modification, not
	// an add or a remove.
	o1Again, err := ws.Add("Movie", wstate.Record{Fields: []any{int32(1), "New Title"}})
	if err != nil {
		t.Fatal(err)
	}
	if o1Again != o1 {
		t.Fatalf("expected modification to stay at ordinal %d, got %d", o1, o1Again)
	}
	ws.CloseForCycle()
	if len(ws.Modified("Movie")) != 1 {
		t.Fatalf("expected one modified ordinal, got %v", ws.Modified("Movie"))
	}

	result, err := Compute(schemas, rPrev, ws)
	if err != nil {
		t.Fatal(err)
	}

	rNewViaSnapshot, err := DecodeSnapshot(schemas, result.Snapshot)
	if err != nil {
		t.Fatal(err)
	}
	rNewViaForward, err := ApplyForward(schemas, rPrev, result.Forward)
	if err != nil {
		t.Fatal(err)
	}
	if err := Equal(schemas, rNewViaSnapshot, rNewViaForward); err != nil {
		t.Fatalf("forward delta didn't carry the in-place modification: %v", err)
	}
	if readTitle(t, rNewViaForward, o1) != "New Title" {
		t.Fatalf("forward-applied title = %q, want %q", readTitle(t, rNewViaForward, o1), "New Title")
	}

	rBack, err := ApplyReverse(schemas, rNewViaForward, result.ReverseDelta)
	if err != nil {
		t.Fatal(err)
	}
	if err := Equal(schemas, rBack, rPrev); err != nil {
		t.Fatalf("reverse delta didn't restore the pre-modification content: %v", err)
	}
	if readTitle(t, rBack, o1) != "Old Title" {
		t.Fatalf("reverse-applied title = %q, want %q", readTitle(t, rBack, o1), "Old Title")
	}
}

// TestEqualCatchesFieldCorruptionDespiteMatchingCounts exercises the
// producer's integrity check at the delta.Equal level: two states with
// identical populated-ordinal counts but a corrupted field must not
// compare equal.
func TestEqualCatchesFieldCorruptionDespiteMatchingCounts(t *testing.T) {
	schemas := movieSchemas()

	ws := wstate.New(schemas)
	ws.Add("Movie", wstate.Record{Fields: []any{int32(1), "A"}})
	ws.CloseForCycle()
	good, err := rstate.BuildSnapshot(schemas, ws)
	if err != nil {
		t.Fatal(err)
	}

	wsCorrupt := wstate.New(schemas)
	wsCorrupt.Add("Movie", wstate.Record{Fields: []any{int32(1), "CORRUPTED"}})
	wsCorrupt.CloseForCycle()
	corrupt, err := rstate.BuildSnapshot(schemas, wsCorrupt)
	if err != nil {
		t.Fatal(err)
	}

	popGood, _ := good.PopulatedOrdinals("Movie")
	popCorrupt, _ := corrupt.PopulatedOrdinals("Movie")
	if popGood.Count() != popCorrupt.Count() {
		t.Fatalf("test setup invalid: populated counts differ (%d vs %d)", popGood.Count(), popCorrupt.Count())
	}

	if err := Equal(schemas, good, corrupt); err == nil {
		t.Fatal("expected Equal to catch the field-level corruption despite matching ordinal counts")
	}
}

func TestEqualRoundTripsForwardAndReverse(t *testing.T) {
	schemas := movieSchemas()

	ws := wstate.New(schemas)
	ws.Add("Movie", wstate.Record{Fields: []any{int32(1), "A"}})
	ws.Add("Movie", wstate.Record{Fields: []any{int32(2), "B"}})
	ws.CloseForCycle()
	rPrev, err := rstate.BuildSnapshot(schemas, ws)
	if err != nil {
		t.Fatal(err)
	}
	ws.ResetForNextCycle()
	ws.Add("Movie", wstate.Record{Fields: []any{int32(2), "B"}})
	ws.Add("Movie", wstate.Record{Fields: []any{int32(3), "C"}})
	ws.CloseForCycle()

	result, err := Compute(schemas, rPrev, ws)
	if err != nil {
		t.Fatal(err)
	}
	rNewViaSnapshot, err := DecodeSnapshot(schemas, result.Snapshot)
	if err != nil {
		t.Fatal(err)
	}
	rNewViaForward, err := ApplyForward(schemas, rPrev, result.Forward)
	if err != nil {
		t.Fatal(err)
	}
	if err := Equal(schemas, rNewViaSnapshot, rNewViaForward); err != nil {
		t.Fatalf("forward round trip: %v", err)
	}

	rBack, err := ApplyReverse(schemas, rNewViaSnapshot, result.ReverseDelta)
	if err != nil {
		t.Fatal(err)
	}
	if err := Equal(schemas, rBack, rPrev); err != nil {
		t.Fatalf("reverse round trip: %v", err)
	}
}

func TestNoDeltaWhenUnchanged(t *testing.T) {
	schemas := movieSchemas()
	ws := wstate.New(schemas)
	ws.Add("Movie", wstate.Record{Fields: []any{int32(1), "A"}})
	ws.CloseForCycle()
	rPrev, err := rstate.BuildSnapshot(schemas, ws)
	if err != nil {
		t.Fatal(err)
	}
	ws.ResetForNextCycle()
	ws.Add("Movie", wstate.Record{Fields: []any{int32(1), "A"}})
	ws.CloseForCycle()

	if ws.HasChanges() {
		t.Fatal("expected no changes")
	}
	result, err := Compute(schemas, rPrev, ws)
	if err != nil {
		t.Fatal(err)
	}
	for _, sec := range result.Forward {
		r := &reader{buf: sec.Payload}
		removed := r.uvarint()
		added := r.uvarint()
		if removed != 0 || added != 0 {
			t.Fatalf("expected empty forward delta, got removed=%d added=%d", removed, added)
		}
	}
}
