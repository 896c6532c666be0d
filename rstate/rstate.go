package rstate

import (
	"fmt"
	"math"

	"github.com/dshollow/hollow/schema"
	"github.com/dshollow/hollow/wstate"
)

// column is one object field's packed storage. Fixed-width scalar and
// reference fields use width/sentinel/data (bit-packed per kvo/immutable.go);
// String/Bytes fields instead use a plain (unpacked) end-offset array plus
// a null bitset, since a packed sentinel offset can't be distinguished
// from a legitimate cumulative offset once an earlier record is null.
type column struct {
	ft       schema.FieldType
	width    uint
	sentinel uint64 // only meaningful when hasNull
	hasNull  bool
	data     []uint64 // bit-packed scalar/reference patterns

	rawEnds []uint64 // String/Bytes: cumulative end offset into heap, per ordinal
	null    *Bitset  // String/Bytes: which ordinals are null
	heap    []byte   // shared byte storage for String/Bytes
}

func (c *column) patternAt(i int) (uint64, bool) {
	p := getBits(c.data, c.width, i)
	if c.hasNull && p == c.sentinel {
		return 0, true
	}
	return p, false
}

// Value decodes record i's value for this column back to a Go value
// (bool/int32/int64/float32/float64/string/[]byte/hollow.Ordinal), or nil
// if the field is null.
func (c *column) Value(i int) any {
	if c.ft == schema.String || c.ft == schema.Bytes {
		return c.varLenValue(i)
	}
	pattern, isNull := c.patternAt(i)
	if isNull {
		return nil
	}
	switch c.ft {
	case schema.Bool:
		return pattern != 0
	case schema.Int, schema.Reference:
		return int32(uint32(pattern))
	case schema.Long:
		return int64(pattern)
	case schema.Float:
		return math.Float32frombits(uint32(pattern))
	case schema.Double:
		return math.Float64frombits(pattern)
	default:
		panic(fmt.Sprintf("rstate: unexpected scalar field type %v", c.ft))
	}
}

func (c *column) varLenValue(i int) any {
	if c.null.Test(int32(i)) {
		return nil
	}
	end := c.rawEnds[i]
	start := uint64(0)
	if i > 0 {
		start = c.rawEnds[i-1]
	}
	b := c.heap[start:end]
	if c.ft == schema.String {
		return string(b)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// typeReadState is one type's immutable columnar state.
type typeReadState struct {
	schema    schema.Schema
	populated *Bitset
	count     int // dense ordinal space size (highest ordinal + 1), for iteration bounds

	// Object: one column per field.
	columns []*column

	// List: per-ordinal element sequence, CSR-style (ends + flat data).
	listEnds []uint64
	listData []int32

	// Set: per-ordinal element multiset, same CSR shape as List (the
	// hashed-slot placement from §3/§4.H is a query-time concern layered
	// over this flat membership list, not a distinct storage shape).
	setEnds []uint64
	setData []int32

	// Map: per-ordinal key/value entry sequence.
	mapEnds []uint64
	mapKeys []int32
	mapVals []int32
}

// ReadState is the full immutable snapshot of every type as of one
// version.
type ReadState struct {
	schemas *schema.Set
	types   map[string]*typeReadState
}

func (rs *ReadState) typeState(name string) (*typeReadState, error) {
	t, ok := rs.types[name]
	if !ok {
		return nil, fmt.Errorf("rstate: unknown type %q", name)
	}
	return t, nil
}

// PopulatedOrdinals returns the bitset of ordinals live for typeName.
func (rs *ReadState) PopulatedOrdinals(typeName string) (*Bitset, error) {
	t, err := rs.typeState(typeName)
	if err != nil {
		return nil, err
	}
	return t.populated, nil
}

// MaxOrdinal returns the dense ordinal-space bound for typeName (every
// live ordinal is < this value).
func (rs *ReadState) MaxOrdinal(typeName string) (int, error) {
	t, err := rs.typeState(typeName)
	if err != nil {
		return 0, err
	}
	return t.count, nil
}

// Schemas returns the schema set this read state was built against.
func (rs *ReadState) Schemas() *schema.Set { return rs.schemas }

// ReadField reads ordinal o's value for the named field of an object
// type. It returns (nil, nil) for a null field and an error if typeName
// isn't an object schema, fieldName doesn't exist, or o isn't populated.
func (rs *ReadState) ReadField(typeName string, o int32, fieldName string) (any, error) {
	t, err := rs.typeState(typeName)
	if err != nil {
		return nil, err
	}
	obj, ok := t.schema.(*schema.ObjectSchema)
	if !ok {
		return nil, fmt.Errorf("rstate: %q is not an object schema", typeName)
	}
	idx := obj.FieldIndex(fieldName)
	if idx < 0 {
		return nil, fmt.Errorf("rstate: %q has no field %q", typeName, fieldName)
	}
	if !t.populated.Test(o) {
		return nil, fmt.Errorf("rstate: ordinal %d not populated in %q", o, typeName)
	}
	return t.columns[idx].Value(int(o)), nil
}

// IterateList returns the element ordinals of a list record.
func (rs *ReadState) IterateList(typeName string, o int32) ([]int32, error) {
	t, err := rs.typeState(typeName)
	if err != nil {
		return nil, err
	}
	if _, ok := t.schema.(*schema.ListSchema); !ok {
		return nil, fmt.Errorf("rstate: %q is not a list schema", typeName)
	}
	start, end := csrBounds(t.listEnds, int(o))
	return t.listData[start:end], nil
}

// IterateSet returns the element ordinals of a set record.
func (rs *ReadState) IterateSet(typeName string, o int32) ([]int32, error) {
	t, err := rs.typeState(typeName)
	if err != nil {
		return nil, err
	}
	if _, ok := t.schema.(*schema.SetSchema); !ok {
		return nil, fmt.Errorf("rstate: %q is not a set schema", typeName)
	}
	start, end := csrBounds(t.setEnds, int(o))
	return t.setData[start:end], nil
}

// MapEntry is one key/value ordinal pair of a map record, as read back.
type MapEntry struct{ Key, Value int32 }

// IterateMap returns the key/value entries of a map record.
func (rs *ReadState) IterateMap(typeName string, o int32) ([]MapEntry, error) {
	t, err := rs.typeState(typeName)
	if err != nil {
		return nil, err
	}
	if _, ok := t.schema.(*schema.MapSchema); !ok {
		return nil, fmt.Errorf("rstate: %q is not a map schema", typeName)
	}
	start, end := csrBounds(t.mapEnds, int(o))
	out := make([]MapEntry, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, MapEntry{Key: t.mapKeys[i], Value: t.mapVals[i]})
	}
	return out, nil
}

func csrBounds(ends []uint64, o int) (start, end int) {
	if o >= len(ends) {
		return 0, 0
	}
	end = int(ends[o])
	if o > 0 {
		start = int(ends[o-1])
	}
	return start, end
}

// ReferenceOrdinal is a convenience over ReadField for a single
// Reference-typed field, returning hollow.NullOrdinal when the
// reference is null — used heavily by the query package's reference
// chase (§4.H).
func (rs *ReadState) ReferenceOrdinal(typeName string, o int32, fieldName string) (int32, error) {
	v, err := rs.ReadField(typeName, o, fieldName)
	if err != nil {
		return -1, err
	}
	if v == nil {
		return -1, nil
	}
	return v.(int32), nil
}

// BuildSnapshot packs ws's currently-populated records (per
// WriteState.Populated) into a brand new, immutable ReadState — this is
// the "canonical_read_state(W)" of spec.md §8's round-trip and delta
// closure invariants, and the function the integrity-check stage
// compares a decoded blob against.
func BuildSnapshot(schemas *schema.Set, ws *wstate.WriteState) (*ReadState, error) {
	rs := &ReadState{schemas: schemas, types: make(map[string]*typeReadState)}
	for _, sc := range schemas.All() {
		populated := ws.Populated(sc.SchemaName())
		t, err := buildType(sc, ws, populated)
		if err != nil {
			return nil, err
		}
		rs.types[sc.SchemaName()] = t
	}
	return rs, nil
}

func maxOrdinal(populated map[int32]bool) int {
	max := -1
	for o := range populated {
		if int(o) > max {
			max = int(o)
		}
	}
	return max + 1
}

func buildType(sc schema.Schema, ws *wstate.WriteState, populated map[int32]bool) (*typeReadState, error) {
	count := maxOrdinal(populated)
	bs := NewBitset()
	for o := range populated {
		bs.Set(o)
	}
	t := &typeReadState{schema: sc, populated: bs, count: count}

	switch s := sc.(type) {
	case *schema.ObjectSchema:
		cols := make([]*column, len(s.Fields))
		for fi, f := range s.Fields {
			col, err := buildColumn(sc.SchemaName(), f, ws, populated, count, fi)
			if err != nil {
				return nil, err
			}
			cols[fi] = col
		}
		t.columns = cols
	case *schema.ListSchema:
		ends, data := buildCSRElements(ws, sc.SchemaName(), populated, count)
		t.listEnds, t.listData = ends, data
	case *schema.SetSchema:
		ends, data := buildCSRElements(ws, sc.SchemaName(), populated, count)
		t.setEnds, t.setData = ends, data
	case *schema.MapSchema:
		ends, keys, vals := buildCSREntries(ws, sc.SchemaName(), populated, count)
		t.mapEnds, t.mapKeys, t.mapVals = ends, keys, vals
	}
	return t, nil
}

func buildColumn(typeName string, f schema.Field, ws *wstate.WriteState, populated map[int32]bool, count, fieldIdx int) (*column, error) {
	if f.Type == schema.String || f.Type == schema.Bytes {
		return buildVarLenColumn(typeName, f, ws, populated, count, fieldIdx)
	}
	patterns := make([]uint64, count)
	isNull := make([]bool, count)
	hasNull := false
	var maxPattern uint64
	for o := range populated {
		rec, ok := ws.Record(typeName, o)
		if !ok || fieldIdx >= len(rec.Fields) {
			return nil, fmt.Errorf("rstate: missing field %d for %s ordinal %d", fieldIdx, typeName, o)
		}
		v := rec.Fields[fieldIdx]
		if v == nil {
			isNull[o] = true
			hasNull = true
			continue
		}
		p := scalarPattern(f.Type, v)
		patterns[o] = p
		if p > maxPattern {
			maxPattern = p
		}
	}
	width, sentinel := widthFor(maxPattern, hasNull)
	data := make([]uint64, wordsNeeded(count, width))
	for i := 0; i < count; i++ {
		if isNull[i] {
			setBits(data, width, i, sentinel)
		} else {
			setBits(data, width, i, patterns[i])
		}
	}
	return &column{ft: f.Type, width: width, sentinel: sentinel, hasNull: hasNull, data: data}, nil
}

func scalarPattern(ft schema.FieldType, v any) uint64 {
	switch ft {
	case schema.Bool:
		if v.(bool) {
			return 1
		}
		return 0
	case schema.Int:
		return uint64(uint32(v.(int32)))
	case schema.Long:
		return uint64(v.(int64))
	case schema.Float:
		return uint64(math.Float32bits(v.(float32)))
	case schema.Double:
		return math.Float64bits(v.(float64))
	case schema.Reference:
		return uint64(uint32(v.(int32)))
	default:
		panic(fmt.Sprintf("rstate: unexpected scalar field type %v", ft))
	}
}

func buildVarLenColumn(typeName string, f schema.Field, ws *wstate.WriteState, populated map[int32]bool, count, fieldIdx int) (*column, error) {
	ends := make([]uint64, count)
	null := NewBitset()
	var heap []byte
	var offset uint64
	for o := 0; o < count; o++ {
		if !populated[int32(o)] {
			null.Set(int32(o))
			ends[o] = offset
			continue
		}
		rec, ok := ws.Record(typeName, int32(o))
		if !ok || fieldIdx >= len(rec.Fields) {
			return nil, fmt.Errorf("rstate: missing field %d for %s ordinal %d", fieldIdx, typeName, o)
		}
		v := rec.Fields[fieldIdx]
		if v == nil {
			null.Set(int32(o))
			ends[o] = offset
			continue
		}
		var b []byte
		switch t := v.(type) {
		case string:
			b = []byte(t)
		case []byte:
			b = t
		default:
			return nil, fmt.Errorf("rstate: field %q expects string/[]byte, got %T", f.Name, v)
		}
		heap = append(heap, b...)
		offset += uint64(len(b))
		ends[o] = offset
	}
	return &column{ft: f.Type, rawEnds: ends, null: null, heap: heap}, nil
}

func buildCSRElements(ws *wstate.WriteState, typeName string, populated map[int32]bool, count int) ([]uint64, []int32) {
	ends := make([]uint64, count)
	var data []int32
	for o := 0; o < count; o++ {
		if populated[int32(o)] {
			if rec, ok := ws.Record(typeName, int32(o)); ok {
				data = append(data, rec.Elements...)
			}
		}
		ends[o] = uint64(len(data))
	}
	return ends, data
}

func buildCSREntries(ws *wstate.WriteState, typeName string, populated map[int32]bool, count int) ([]uint64, []int32, []int32) {
	ends := make([]uint64, count)
	var keys, vals []int32
	for o := 0; o < count; o++ {
		if populated[int32(o)] {
			if rec, ok := ws.Record(typeName, int32(o)); ok {
				for _, e := range rec.Entries {
					keys = append(keys, e.Key)
					vals = append(vals, e.Value)
				}
			}
		}
		ends[o] = uint64(len(keys))
	}
	return ends, keys, vals
}
