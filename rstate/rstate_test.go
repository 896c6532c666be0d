package rstate

import (
	"testing"

	"github.com/dshollow/hollow/schema"
	"github.com/dshollow/hollow/wstate"
)

func buildMovieState(t *testing.T) (*schema.Set, *wstate.WriteState) {
	t.Helper()
	set := schema.NewSet()
	schema.DefineObject(set, "Movie", func(b *schema.ObjectSchemaBuilder) {
		b.Field("id", schema.Int)
		b.Field("title", schema.String)
		b.PrimaryKey("id")
	})
	ws := wstate.New(set)
	if _, err := ws.Add("Movie", wstate.Record{Fields: []any{int32(1), "A"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := ws.Add("Movie", wstate.Record{Fields: []any{int32(2), "B"}}); err != nil {
		t.Fatal(err)
	}
	ws.CloseForCycle()
	return set, ws
}

func TestBuildSnapshotReadField(t *testing.T) {
	set, ws := buildMovieState(t)
	rs, err := BuildSnapshot(set, ws)
	if err != nil {
		t.Fatal(err)
	}
	pop, err := rs.PopulatedOrdinals("Movie")
	if err != nil {
		t.Fatal(err)
	}
	if pop.Count() != 2 {
		t.Fatalf("populated count = %d, want 2", pop.Count())
	}
	v, err := rs.ReadField("Movie", 0, "title")
	if err != nil {
		t.Fatal(err)
	}
	if v != "A" {
		t.Fatalf("title = %v, want A", v)
	}
	v, err = rs.ReadField("Movie", 1, "id")
	if err != nil {
		t.Fatal(err)
	}
	if v != int32(2) {
		t.Fatalf("id = %v, want 2", v)
	}
}

func TestNullableScalarColumn(t *testing.T) {
	set := schema.NewSet()
	schema.DefineObject(set, "Thing", func(b *schema.ObjectSchemaBuilder) {
		b.Field("n", schema.Int)
	})
	ws := wstate.New(set)
	ws.Add("Thing", wstate.Record{Fields: []any{int32(5)}})
	ws.Add("Thing", wstate.Record{Fields: []any{nil}})
	ws.CloseForCycle()

	rs, err := BuildSnapshot(set, ws)
	if err != nil {
		t.Fatal(err)
	}
	v, err := rs.ReadField("Thing", 0, "n")
	if err != nil || v != int32(5) {
		t.Fatalf("ReadField(0) = %v, %v", v, err)
	}
	v, err = rs.ReadField("Thing", 1, "n")
	if err != nil || v != nil {
		t.Fatalf("ReadField(1) = %v, %v, want nil", v, err)
	}
}

func TestListAndReferenceIteration(t *testing.T) {
	set := schema.NewSet()
	schema.DefineObject(set, "Actor", func(b *schema.ObjectSchemaBuilder) {
		b.Field("name", schema.String)
	})
	schema.DefineList(set, "Cast", "Actor")
	schema.DefineObject(set, "Movie", func(b *schema.ObjectSchemaBuilder) {
		b.Ref("cast", "Cast")
	})

	ws := wstate.New(set)
	a1, _ := ws.Add("Actor", wstate.Record{Fields: []any{"x"}})
	a2, _ := ws.Add("Actor", wstate.Record{Fields: []any{"y"}})
	cast, _ := ws.Add("Cast", wstate.Record{Elements: []wstate.Ordinal{a1, a2}})
	ws.Add("Movie", wstate.Record{Fields: []any{cast}})
	ws.CloseForCycle()

	rs, err := BuildSnapshot(set, ws)
	if err != nil {
		t.Fatal(err)
	}
	elems, err := rs.IterateList("Cast", cast)
	if err != nil {
		t.Fatal(err)
	}
	if len(elems) != 2 || elems[0] != a1 || elems[1] != a2 {
		t.Fatalf("IterateList = %v", elems)
	}
	ref, err := rs.ReferenceOrdinal("Movie", 0, "cast")
	if err != nil || ref != cast {
		t.Fatalf("ReferenceOrdinal = %v, %v, want %d", ref, err, cast)
	}
}

func TestBitsetOps(t *testing.T) {
	a := NewBitset()
	a.Set(1)
	a.Set(65)
	a.Set(200)
	if a.Count() != 3 {
		t.Fatalf("Count = %d, want 3", a.Count())
	}
	b := NewBitset()
	b.Set(65)
	b.Set(5)
	inter := And(a, b)
	if inter.Count() != 1 || !inter.Test(65) {
		t.Fatalf("And = %v", inter.Ordinals())
	}
	diff := AndNot(a, b)
	if diff.Count() != 2 || diff.Test(65) {
		t.Fatalf("AndNot = %v", diff.Ordinals())
	}
}
