package schema

import (
	"encoding/binary"
	"fmt"
)

// Wire tag layout (SPEC_FULL §3.6, grounded on HollowMapSchema.java):
// low two bits select the variant, the high bit (0x80) marks a
// key-carrying variant (object primary key; set/map hash key, including
// the ordinal-hash-key sentinel).
const (
	tagObject = 0x00
	tagList   = 0x01
	tagSet    = 0x02
	tagMap    = 0x03
	tagMask   = 0x03
	tagHasKey = 0x80
)

const (
	ftBool uint8 = iota
	ftInt
	ftLong
	ftFloat
	ftDouble
	ftString
	ftBytes
	ftReference
)

func fieldTypeToWire(t FieldType) uint8 {
	switch t {
	case Bool:
		return ftBool
	case Int:
		return ftInt
	case Long:
		return ftLong
	case Float:
		return ftFloat
	case Double:
		return ftDouble
	case String:
		return ftString
	case Bytes:
		return ftBytes
	case Reference:
		return ftReference
	default:
		panic(fmt.Sprintf("schema: unknown field type %v", t))
	}
}

func wireToFieldType(b uint8) (FieldType, error) {
	switch b {
	case ftBool:
		return Bool, nil
	case ftInt:
		return Int, nil
	case ftLong:
		return Long, nil
	case ftFloat:
		return Float, nil
	case ftDouble:
		return Double, nil
	case ftString:
		return String, nil
	case ftBytes:
		return Bytes, nil
	case ftReference:
		return Reference, nil
	default:
		return 0, &MalformedError{Reason: fmt.Sprintf("unknown field type tag 0x%x", b)}
	}
}

// writer is a small growable-buffer encoder, in the style of edb's
// bytesBuilder: append-only, grows geometrically, uvarint-framed strings.
type writer struct {
	buf []byte
}

func (w *writer) byte(b byte) { w.buf = append(w.buf, b) }

func (w *writer) uvarint(v uint64) {
	w.buf = binary.AppendUvarint(w.buf, v)
}

func (w *writer) str(s string) {
	w.uvarint(uint64(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *writer) strs(ss []string) {
	w.uvarint(uint64(len(ss)))
	for _, s := range ss {
		w.str(s)
	}
}

// reader mirrors edb's byteDecoder: sequential reads off a []byte with a
// sticky error, so callers can chain reads and check err once at the end.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) fail(reason string) {
	if r.err == nil {
		r.err = &MalformedError{Reason: reason}
	}
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.buf) {
		r.fail("unexpected end of schema header")
		return 0
	}
	b := r.buf[r.pos]
	r.pos++
	return b
}

func (r *reader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf[r.pos:])
	if n <= 0 {
		r.fail("malformed varint")
		return 0
	}
	r.pos += n
	return v
}

func (r *reader) str() string {
	if r.err != nil {
		return ""
	}
	n := r.uvarint()
	if r.err != nil {
		return ""
	}
	if uint64(r.pos)+n > uint64(len(r.buf)) {
		r.fail("string runs past end of schema header")
		return ""
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s
}

func (r *reader) strs() []string {
	n := r.uvarint()
	if r.err != nil || n == 0 {
		return nil
	}
	out := make([]string, n)
	for i := range out {
		out[i] = r.str()
	}
	return out
}

// WriteTo appends the binary schema header for every schema in s, in the
// Set's insertion order, to dst, returning the extended slice.
func WriteTo(dst []byte, s *Set) []byte {
	w := &writer{buf: dst}
	all := s.All()
	w.uvarint(uint64(len(all)))
	for _, sc := range all {
		writeOne(w, sc)
	}
	return w.buf
}

func writeOne(w *writer, sc Schema) {
	switch t := sc.(type) {
	case *ObjectSchema:
		tag := uint8(tagObject)
		if len(t.PrimaryKey) > 0 {
			tag |= tagHasKey
		}
		w.byte(tag)
		w.str(t.Name)
		w.uvarint(uint64(len(t.Fields)))
		for _, f := range t.Fields {
			w.str(f.Name)
			w.byte(fieldTypeToWire(f.Type))
			if f.Type == Reference {
				w.str(f.RefType)
			}
		}
		if len(t.PrimaryKey) > 0 {
			w.strs(t.PrimaryKey)
		}
	case *ListSchema:
		w.byte(tagList)
		w.str(t.Name)
		w.str(t.ElementType)
	case *SetSchema:
		tag := uint8(tagSet)
		if t.HasKey() {
			tag |= tagHasKey
		}
		w.byte(tag)
		w.str(t.Name)
		w.str(t.ElementType)
		if t.HasKey() {
			writeKeyFields(w, t.HashKey, t.OrdinalHashKey)
		}
	case *MapSchema:
		tag := uint8(tagMap)
		if t.HasKey() {
			tag |= tagHasKey
		}
		w.byte(tag)
		w.str(t.Name)
		w.str(t.KeyType)
		w.str(t.ValueType)
		if t.HasKey() {
			writeKeyFields(w, t.HashKey, t.OrdinalHashKey)
		}
	default:
		panic(fmt.Sprintf("schema: unknown schema variant %T", sc))
	}
}

// writeKeyFields encodes a hash/primary key: a field count followed by
// that many UTF field paths. A count of zero is the ordinal-hash-key
// sentinel (SPEC_FULL §3.6).
func writeKeyFields(w *writer, fields []string, ordinalSentinel bool) {
	if ordinalSentinel {
		w.uvarint(0)
		return
	}
	w.strs(fields)
}

// LoadFrom parses a binary schema header from buf, returning the
// resulting Set and the number of bytes consumed. It returns a
// *MalformedError for an unknown tag, unresolved name, or truncated
// varint, per §4.A.
func LoadFrom(buf []byte) (*Set, int, error) {
	r := &reader{buf: buf}
	count := r.uvarint()
	set := NewSet()
	for i := uint64(0); i < count && r.err == nil; i++ {
		sc := readOne(r)
		if r.err != nil {
			break
		}
		set.Add(sc)
	}
	if r.err != nil {
		return nil, r.pos, r.err
	}
	if err := set.Validate(); err != nil {
		return nil, r.pos, err
	}
	return set, r.pos, nil
}

func readOne(r *reader) Schema {
	tag := r.byte()
	hasKey := tag&tagHasKey != 0
	variant := tag &^ tagHasKey
	name := r.str()
	switch variant {
	case tagObject:
		fieldCount := r.uvarint()
		fields := make([]Field, 0, fieldCount)
		for i := uint64(0); i < fieldCount && r.err == nil; i++ {
			fname := r.str()
			ftb := r.byte()
			ft, err := wireToFieldType(ftb)
			if err != nil {
				r.err = err
				return nil
			}
			var ref string
			if ft == Reference {
				ref = r.str()
			}
			fields = append(fields, Field{Name: fname, Type: ft, RefType: ref})
		}
		var pk []string
		if hasKey {
			pk = r.strs()
		}
		return &ObjectSchema{Name: name, Fields: fields, PrimaryKey: pk}
	case tagList:
		elem := r.str()
		return &ListSchema{Name: name, ElementType: elem}
	case tagSet:
		elem := r.str()
		ss := &SetSchema{Name: name, ElementType: elem}
		if hasKey {
			readKeyFields(r, &ss.HashKey, &ss.OrdinalHashKey)
		}
		return ss
	case tagMap:
		key := r.str()
		val := r.str()
		ms := &MapSchema{Name: name, KeyType: key, ValueType: val}
		if hasKey {
			readKeyFields(r, &ms.HashKey, &ms.OrdinalHashKey)
		}
		return ms
	default:
		r.fail(fmt.Sprintf("unknown schema tag 0x%x", tag))
		return nil
	}
}

func readKeyFields(r *reader, fields *[]string, ordinalSentinel *bool) {
	n := r.uvarint()
	if r.err != nil {
		return
	}
	if n == 0 {
		*ordinalSentinel = true
		return
	}
	out := make([]string, n)
	for i := range out {
		out[i] = r.str()
	}
	*fields = out
}
