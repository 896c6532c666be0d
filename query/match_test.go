package query

import (
	"testing"

	"github.com/dshollow/hollow/rstate"
	"github.com/dshollow/hollow/schema"
	"github.com/dshollow/hollow/wstate"
)

func buildMovieReadState(t *testing.T) *rstate.ReadState {
	t.Helper()
	schemas := schema.NewSet()
	schema.DefineObject(schemas, "Movie", func(b *schema.ObjectSchemaBuilder) {
		b.Field("id", schema.Int)
		b.Field("title", schema.String)
		b.PrimaryKey("id")
	})
	ws := wstate.New(schemas)
	ws.Add("Movie", wstate.Record{Fields: []any{int32(1), "Alien"}})
	ws.Add("Movie", wstate.Record{Fields: []any{int32(2), "Brazil"}})
	ws.Add("Movie", wstate.Record{Fields: []any{int32(3), "Alien"}})
	ws.CloseForCycle()
	rs, err := rstate.BuildSnapshot(schemas, ws)
	if err != nil {
		t.Fatal(err)
	}
	return rs
}

func TestFindMatchingRecordsScalar(t *testing.T) {
	rs := buildMovieReadState(t)
	result, err := FindMatchingRecords(rs, "title", "Alien")
	if err != nil {
		t.Fatal(err)
	}
	bs, ok := result["Movie"]
	if !ok {
		t.Fatal("expected Movie to be present in result")
	}
	if bs.Count() != 2 {
		t.Fatalf("expected 2 matches, got %d", bs.Count())
	}
}

func TestFindMatchingRecordsNoMatch(t *testing.T) {
	rs := buildMovieReadState(t)
	result, err := FindMatchingRecords(rs, "title", "Nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result["Movie"]; ok {
		t.Fatal("expected no Movie entry when nothing matches")
	}
}

// buildReferenceChaseState mirrors spec.md's single-field reference chase
// scenario: object B{string name}, object A{ref B b}.
func buildReferenceChaseState(t *testing.T) (*rstate.ReadState, int32) {
	t.Helper()
	schemas := schema.NewSet()
	schema.DefineObject(schemas, "B", func(b *schema.ObjectSchemaBuilder) {
		b.Field("name", schema.String)
	})
	schema.DefineObject(schemas, "A", func(b *schema.ObjectSchemaBuilder) {
		b.Ref("b", "B")
	})
	ws := wstate.New(schemas)
	bx, _ := ws.Add("B", wstate.Record{Fields: []any{"x"}})
	ws.Add("B", wstate.Record{Fields: []any{"y"}})
	a1, _ := ws.Add("A", wstate.Record{Fields: []any{bx}})
	by, _ := ws.Add("B", wstate.Record{Fields: []any{"y"}})
	ws.Add("A", wstate.Record{Fields: []any{by}})
	ws.CloseForCycle()
	rs, err := rstate.BuildSnapshot(schemas, ws)
	if err != nil {
		t.Fatal(err)
	}
	return rs, a1
}

func TestFindMatchingRecordsReferenceChase(t *testing.T) {
	rs, wantOrdinal := buildReferenceChaseState(t)
	result, err := FindMatchingRecords(rs, "name", "x")
	if err != nil {
		t.Fatal(err)
	}
	aMatches, ok := result["A"]
	if !ok {
		t.Fatal("expected A to match via single-field reference chase")
	}
	if aMatches.Count() != 1 || !aMatches.Test(wantOrdinal) {
		t.Fatalf("expected {A: {%d}}, got count=%d", wantOrdinal, aMatches.Count())
	}
}

func TestParallelFindMatchingRecordsAgreesWithSequential(t *testing.T) {
	schemas := schema.NewSet()
	schema.DefineObject(schemas, "Movie", func(b *schema.ObjectSchemaBuilder) {
		b.Field("id", schema.Int)
		b.Field("title", schema.String)
		b.PrimaryKey("id")
	})
	ws := wstate.New(schemas)
	for i := 0; i < 1000; i++ {
		title := "Brazil"
		if i%3 == 0 {
			title = "Alien"
		}
		ws.Add("Movie", wstate.Record{Fields: []any{int32(i), title}})
	}
	ws.CloseForCycle()
	rs, err := rstate.BuildSnapshot(schemas, ws)
	if err != nil {
		t.Fatal(err)
	}

	seq, err := FindMatchingRecords(rs, "title", "Alien")
	if err != nil {
		t.Fatal(err)
	}
	par, err := ParallelFindMatchingRecords(rs, "title", "Alien", 4)
	if err != nil {
		t.Fatal(err)
	}
	if seq["Movie"].Count() != par["Movie"].Count() {
		t.Fatalf("sequential/parallel mismatch: %d vs %d", seq["Movie"].Count(), par["Movie"].Count())
	}
	for _, o := range seq["Movie"].Ordinals() {
		if !par["Movie"].Test(o) {
			t.Fatalf("parallel result missing ordinal %d present in sequential result", o)
		}
	}
}
