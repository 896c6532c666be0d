package schema

// ObjectSchemaBuilder assembles an ObjectSchema field by field, mirroring
// the fluent builder shape of edb's TableBuilder/DefineTable
// (schemabuilder.go) generalised from a single generic row type to a
// schema-only field list.
type ObjectSchemaBuilder struct {
	sc *ObjectSchema
}

// DefineObject starts building an object schema named name and registers
// it into set once f returns. Field order is the order Field calls are
// made in.
func DefineObject(set *Set, name string, f func(b *ObjectSchemaBuilder)) *ObjectSchema {
	sc := &ObjectSchema{Name: name}
	b := &ObjectSchemaBuilder{sc: sc}
	f(b)
	set.Add(sc)
	return sc
}

// Field appends a scalar field.
func (b *ObjectSchemaBuilder) Field(name string, t FieldType) *ObjectSchemaBuilder {
	if t == Reference {
		panic("schema: use Ref for REFERENCE fields")
	}
	b.sc.Fields = append(b.sc.Fields, Field{Name: name, Type: t})
	return b
}

// Ref appends a reference field targeting the schema named target.
func (b *ObjectSchemaBuilder) Ref(name, target string) *ObjectSchemaBuilder {
	b.sc.Fields = append(b.sc.Fields, Field{Name: name, Type: Reference, RefType: target})
	return b
}

// PrimaryKey sets the dotted field paths identifying a record, enabling
// identity-based deduplication in the write state (§4.B).
func (b *ObjectSchemaBuilder) PrimaryKey(fieldPaths ...string) *ObjectSchemaBuilder {
	b.sc.PrimaryKey = fieldPaths
	return b
}

// DefineList registers a list schema named name whose elements reference
// elementType.
func DefineList(set *Set, name, elementType string) *ListSchema {
	sc := &ListSchema{Name: name, ElementType: elementType}
	set.Add(sc)
	return sc
}

// SetSchemaBuilder assembles a SetSchema.
type SetSchemaBuilder struct{ sc *SetSchema }

// DefineSet registers a set schema named name whose elements reference
// elementType.
func DefineSet(set *Set, name, elementType string, f func(b *SetSchemaBuilder)) *SetSchema {
	sc := &SetSchema{Name: name, ElementType: elementType}
	if f != nil {
		f(&SetSchemaBuilder{sc: sc})
	}
	set.Add(sc)
	return sc
}

// HashKey sets the dotted field paths used to place elements in a stable
// hashed slot.
func (b *SetSchemaBuilder) HashKey(fieldPaths ...string) *SetSchemaBuilder {
	b.sc.HashKey = fieldPaths
	return b
}

// HashOnOrdinal selects the "ordinal hash key" sentinel: elements are
// hashed on their own ordinal rather than a projected field.
func (b *SetSchemaBuilder) HashOnOrdinal() *SetSchemaBuilder {
	b.sc.OrdinalHashKey = true
	return b
}

// MapSchemaBuilder assembles a MapSchema.
type MapSchemaBuilder struct{ sc *MapSchema }

// DefineMap registers a map schema named name with the given key and
// value reference types.
func DefineMap(set *Set, name, keyType, valueType string, f func(b *MapSchemaBuilder)) *MapSchema {
	sc := &MapSchema{Name: name, KeyType: keyType, ValueType: valueType}
	if f != nil {
		f(&MapSchemaBuilder{sc: sc})
	}
	set.Add(sc)
	return sc
}

// HashKey sets the dotted field paths, into the key type, used to place
// entries in a stable hashed slot.
func (b *MapSchemaBuilder) HashKey(fieldPaths ...string) *MapSchemaBuilder {
	b.sc.HashKey = fieldPaths
	return b
}

// HashOnOrdinal selects the "ordinal hash key" sentinel.
func (b *MapSchemaBuilder) HashOnOrdinal() *MapSchemaBuilder {
	b.sc.OrdinalHashKey = true
	return b
}
