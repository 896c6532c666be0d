// Package schema describes the four record shapes a hollow dataset can
// hold — object, list, set, and map — and their binary schema-header
// encoding. A Schema is immutable once built; the write state, read
// state, and blob packages all resolve types by name against a Set.
package schema

import "fmt"

// FieldType is the scalar or reference type of an object field.
type FieldType uint8

const (
	Bool FieldType = iota
	Int
	Long
	Float
	Double
	String
	Bytes
	Reference
)

func (t FieldType) String() string {
	switch t {
	case Bool:
		return "BOOL"
	case Int:
		return "INT"
	case Long:
		return "LONG"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case String:
		return "STRING"
	case Bytes:
		return "BYTES"
	case Reference:
		return "REFERENCE"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// IsScalar reports whether the field holds a value directly rather than
// an ordinal into another type's state.
func (t FieldType) IsScalar() bool { return t != Reference }

// Kind distinguishes the four schema variants.
type Kind uint8

const (
	KindObject Kind = iota
	KindList
	KindSet
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindObject:
		return "OBJECT"
	case KindList:
		return "LIST"
	case KindSet:
		return "SET"
	case KindMap:
		return "MAP"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Schema is the common interface satisfied by all four variants.
type Schema interface {
	// SchemaName is the unique name of this type within its Set.
	SchemaName() string
	// Kind reports which of the four variants this is.
	Kind() Kind
}

// Field is one named, typed slot of an ObjectSchema.
type Field struct {
	Name string
	Type FieldType
	// RefType names the target schema when Type == Reference; empty
	// otherwise.
	RefType string
}

// ObjectSchema describes a record made of named, ordered fields, with an
// optional primary key used for identity-based deduplication in the
// write state (§4.B).
type ObjectSchema struct {
	Name       string
	Fields     []Field
	PrimaryKey []string // dotted field paths; nil if this type has no key
}

func (s *ObjectSchema) SchemaName() string { return s.Name }
func (s *ObjectSchema) Kind() Kind         { return KindObject }

// FieldIndex returns the index of the named field, or -1.
func (s *ObjectSchema) FieldIndex(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// ListSchema describes an ordered sequence of references to ElementType.
type ListSchema struct {
	Name        string
	ElementType string
}

func (s *ListSchema) SchemaName() string { return s.Name }
func (s *ListSchema) Kind() Kind         { return KindList }

// SetSchema describes an unordered collection of references to
// ElementType, placed into a hashed table by HashKey (dotted field paths
// into ElementType) or, when OrdinalHashKey is set, by the element's own
// ordinal — the "ordinal hash key" sentinel from HollowMapSchema/
// HollowSetSchema, serialised as a zero field count (SPEC_FULL §3.6).
type SetSchema struct {
	Name           string
	ElementType    string
	HashKey        []string
	OrdinalHashKey bool
}

func (s *SetSchema) SchemaName() string { return s.Name }
func (s *SetSchema) Kind() Kind         { return KindSet }

// HasKey reports whether this set carries any hash-key tag at all
// (explicit field paths or the ordinal sentinel).
func (s *SetSchema) HasKey() bool { return s.OrdinalHashKey || len(s.HashKey) > 0 }

// WithoutHashKey returns a copy of s with its hash key stripped, used
// when comparing schema compatibility across type migrations
// (SPEC_FULL §3.7, grounded on the original's withoutKeys()).
func (s *SetSchema) WithoutHashKey() *SetSchema {
	return &SetSchema{Name: s.Name, ElementType: s.ElementType}
}

// MapSchema describes key/value reference pairs placed into a hashed
// table by HashKey into KeyType, or by the key's own ordinal when
// OrdinalHashKey is set.
type MapSchema struct {
	Name           string
	KeyType        string
	ValueType      string
	HashKey        []string
	OrdinalHashKey bool
}

func (s *MapSchema) SchemaName() string { return s.Name }
func (s *MapSchema) Kind() Kind         { return KindMap }

func (s *MapSchema) HasKey() bool { return s.OrdinalHashKey || len(s.HashKey) > 0 }

// WithoutHashKey returns a copy of s with its hash key stripped.
func (s *MapSchema) WithoutHashKey() *MapSchema {
	return &MapSchema{Name: s.Name, KeyType: s.KeyType, ValueType: s.ValueType}
}

// Set is a named collection of schemas, as loaded from or about to be
// written to a blob's schema header. Names are unique and every
// Reference/element/key/value type name must resolve within the same Set
// (checked by Validate).
type Set struct {
	byName map[string]Schema
	order  []string // insertion order, preserved for deterministic wire output
}

// NewSet returns an empty schema set.
func NewSet() *Set {
	return &Set{byName: make(map[string]Schema)}
}

// Add registers s, panicking if the name is already taken — schema sets
// are built once at data-model initialisation and are not meant to race.
func (s *Set) Add(sc Schema) {
	name := sc.SchemaName()
	if _, exists := s.byName[name]; exists {
		panic(fmt.Sprintf("schema: duplicate schema name %q", name))
	}
	s.byName[name] = sc
	s.order = append(s.order, name)
}

// Get resolves a schema by name.
func (s *Set) Get(name string) (Schema, bool) {
	sc, ok := s.byName[name]
	return sc, ok
}

// MustGet resolves a schema by name or panics; for use once a Set has
// already been validated.
func (s *Set) MustGet(name string) Schema {
	sc, ok := s.byName[name]
	if !ok {
		panic(fmt.Sprintf("schema: unknown type %q", name))
	}
	return sc
}

// All returns every schema in insertion order.
func (s *Set) All() []Schema {
	out := make([]Schema, len(s.order))
	for i, name := range s.order {
		out[i] = s.byName[name]
	}
	return out
}

// Validate checks the dataset-wide invariants from spec.md §3: every
// REFERENCE/element/key/value type name resolves within the set. Hash-key
// and primary-key field paths are not checked. It does not re-check
// uniqueness; Add already enforces that.
func (s *Set) Validate() error {
	resolve := func(name string) error {
		if name == "" {
			return nil
		}
		if _, ok := s.byName[name]; !ok {
			return &MalformedError{Reason: fmt.Sprintf("reference to unknown type %q", name)}
		}
		return nil
	}
	for _, sc := range s.All() {
		switch t := sc.(type) {
		case *ObjectSchema:
			for _, f := range t.Fields {
				if f.Type == Reference {
					if err := resolve(f.RefType); err != nil {
						return err
					}
				}
			}
		case *ListSchema:
			if err := resolve(t.ElementType); err != nil {
				return err
			}
		case *SetSchema:
			if err := resolve(t.ElementType); err != nil {
				return err
			}
		case *MapSchema:
			if err := resolve(t.KeyType); err != nil {
				return err
			}
			if err := resolve(t.ValueType); err != nil {
				return err
			}
		}
	}
	return nil
}

// MalformedError reports a schema that failed to parse or validate,
// matching §4.A's MalformedSchema failure and §7's MalformedBlob kind.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string { return "schema: malformed: " + e.Reason }
