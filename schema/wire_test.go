package schema

import "testing"

func buildSampleSet() *Set {
	set := NewSet()
	DefineObject(set, "Actor", func(b *ObjectSchemaBuilder) {
		b.Field("name", String)
	})
	DefineObject(set, "Movie", func(b *ObjectSchemaBuilder) {
		b.Field("id", Int)
		b.Field("title", String)
		b.Ref("lead", "Actor")
		b.PrimaryKey("id")
	})
	DefineList(set, "ActorList", "Actor")
	DefineSet(set, "ActorSet", "Actor", func(b *SetSchemaBuilder) {
		b.HashKey("name")
	})
	DefineSet(set, "OrdinalSet", "Actor", func(b *SetSchemaBuilder) {
		b.HashOnOrdinal()
	})
	DefineMap(set, "ActorByName", "Actor", "Actor", func(b *MapSchemaBuilder) {
		b.HashKey("name")
	})
	return set
}

func TestWireRoundTrip(t *testing.T) {
	set := buildSampleSet()
	if err := set.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	buf := WriteTo(nil, set)
	loaded, n, err := LoadFrom(buf)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("consumed %d bytes, want %d", n, len(buf))
	}

	for _, want := range set.All() {
		got, ok := loaded.Get(want.SchemaName())
		if !ok {
			t.Fatalf("schema %q missing after round trip", want.SchemaName())
		}
		if got.Kind() != want.Kind() {
			t.Fatalf("schema %q: kind = %v, want %v", want.SchemaName(), got.Kind(), want.Kind())
		}
	}

	movie := loaded.MustGet("Movie").(*ObjectSchema)
	if len(movie.PrimaryKey) != 1 || movie.PrimaryKey[0] != "id" {
		t.Fatalf("Movie.PrimaryKey = %v, want [id]", movie.PrimaryKey)
	}
	if idx := movie.FieldIndex("lead"); idx != 2 {
		t.Fatalf("FieldIndex(lead) = %d, want 2", idx)
	}
	if movie.Fields[2].Type != Reference || movie.Fields[2].RefType != "Actor" {
		t.Fatalf("Movie.lead field = %+v", movie.Fields[2])
	}

	ordSet := loaded.MustGet("OrdinalSet").(*SetSchema)
	if !ordSet.OrdinalHashKey || len(ordSet.HashKey) != 0 {
		t.Fatalf("OrdinalSet sentinel lost: %+v", ordSet)
	}

	plainSet := loaded.MustGet("ActorSet").(*SetSchema)
	if plainSet.OrdinalHashKey || len(plainSet.HashKey) != 1 {
		t.Fatalf("ActorSet hash key lost: %+v", plainSet)
	}
}

func TestLoadFromTruncated(t *testing.T) {
	set := buildSampleSet()
	buf := WriteTo(nil, set)
	for cut := 0; cut < len(buf); cut++ {
		if _, _, err := LoadFrom(buf[:cut]); err == nil {
			t.Fatalf("LoadFrom(buf[:%d]) succeeded, want MalformedError", cut)
		}
	}
}

func TestValidateUnresolvedReference(t *testing.T) {
	set := NewSet()
	DefineObject(set, "Movie", func(b *ObjectSchemaBuilder) {
		b.Ref("lead", "Actor") // Actor never registered
	})
	if err := set.Validate(); err == nil {
		t.Fatal("Validate succeeded with dangling reference")
	}
}

func TestWithoutHashKey(t *testing.T) {
	ms := &MapSchema{Name: "M", KeyType: "K", ValueType: "V", HashKey: []string{"x"}}
	stripped := ms.WithoutHashKey()
	if stripped.HasKey() {
		t.Fatal("WithoutHashKey left a key behind")
	}
	if stripped.Name != ms.Name || stripped.KeyType != ms.KeyType {
		t.Fatalf("WithoutHashKey changed identity: %+v", stripped)
	}
}
