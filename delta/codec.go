package delta

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dshollow/hollow/schema"
	"github.com/dshollow/hollow/wstate"
)

// writer/reader mirror schema/wire.go's small growable-buffer codec;
// duplicated rather than exported from package schema because the value
// shapes here (whole records, ordinals) are a different concern than a
// schema header.
type writer struct{ buf []byte }

func (w *writer) byte(b byte)      { w.buf = append(w.buf, b) }
func (w *writer) uvarint(v uint64) { w.buf = binary.AppendUvarint(w.buf, v) }
func (w *writer) bytes(b []byte) {
	w.uvarint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) fail(reason string) {
	if r.err == nil {
		r.err = fmt.Errorf("delta: %s", reason)
	}
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.buf) {
		r.fail("unexpected end of payload")
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

func (r *reader) bytesN() []byte {
	n := r.uvarint()
	if r.err != nil {
		return nil
	}
	if uint64(r.pos)+n > uint64(len(r.buf)) {
		r.fail("bytes run past end of payload")
		return nil
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b
}

// encodeRecord appends rec's wire form for the given schema to w. Object
// records encode one tagged value per field; list/set records encode an
// element count plus ordinals; map records encode an entry count plus
// key/value ordinal pairs.
func encodeRecord(w *writer, sc schema.Schema, rec wstate.Record) {
	switch t := sc.(type) {
	case *schema.ObjectSchema:
		for i, f := range t.Fields {
			encodeValue(w, f.Type, rec.Fields[i])
		}
	case *schema.ListSchema, *schema.SetSchema:
		w.uvarint(uint64(len(rec.Elements)))
		for _, o := range rec.Elements {
			w.uvarint(uint64(uint32(o)))
		}
	case *schema.MapSchema:
		w.uvarint(uint64(len(rec.Entries)))
		for _, e := range rec.Entries {
			w.uvarint(uint64(uint32(e.Key)))
			w.uvarint(uint64(uint32(e.Value)))
		}
	default:
		panic(fmt.Sprintf("delta: unknown schema variant %T", sc))
	}
}

func decodeRecord(r *reader, sc schema.Schema) wstate.Record {
	switch t := sc.(type) {
	case *schema.ObjectSchema:
		fields := make([]any, len(t.Fields))
		for i, f := range t.Fields {
			fields[i] = decodeValue(r, f.Type)
		}
		return wstate.Record{Fields: fields}
	case *schema.ListSchema, *schema.SetSchema:
		n := r.uvarint()
		elems := make([]wstate.Ordinal, n)
		for i := range elems {
			elems[i] = wstate.Ordinal(int32(uint32(r.uvarint())))
		}
		return wstate.Record{Elements: elems}
	case *schema.MapSchema:
		n := r.uvarint()
		entries := make([]wstate.MapEntry, n)
		for i := range entries {
			k := wstate.Ordinal(int32(uint32(r.uvarint())))
			v := wstate.Ordinal(int32(uint32(r.uvarint())))
			entries[i] = wstate.MapEntry{Key: k, Value: v}
		}
		return wstate.Record{Entries: entries}
	default:
		panic(fmt.Sprintf("delta: unknown schema variant %T", sc))
	}
}

const (
	vtNull uint8 = iota
	vtBool
	vtInt
	vtLong
	vtFloat
	vtDouble
	vtString
	vtBytes
)

func encodeValue(w *writer, ft schema.FieldType, v any) {
	if v == nil {
		w.byte(vtNull)
		return
	}
	switch ft {
	case schema.Bool:
		w.byte(vtBool)
		if v.(bool) {
			w.byte(1)
		} else {
			w.byte(0)
		}
	case schema.Int, schema.Reference:
		w.byte(vtInt)
		w.uvarint(uint64(uint32(v.(int32))))
	case schema.Long:
		w.byte(vtLong)
		w.uvarint(uint64(v.(int64)))
	case schema.Float:
		w.byte(vtFloat)
		w.uvarint(uint64(math.Float32bits(v.(float32))))
	case schema.Double:
		w.byte(vtDouble)
		w.uvarint(math.Float64bits(v.(float64)))
	case schema.String:
		w.byte(vtString)
		w.bytes([]byte(v.(string)))
	case schema.Bytes:
		w.byte(vtBytes)
		switch b := v.(type) {
		case []byte:
			w.bytes(b)
		case string:
			w.bytes([]byte(b))
		default:
			panic(fmt.Sprintf("delta: BYTES field holds %T", v))
		}
	default:
		panic(fmt.Sprintf("delta: unknown field type %v", ft))
	}
}

func decodeValue(r *reader, ft schema.FieldType) any {
	tag := r.byte()
	if tag == vtNull {
		return nil
	}
	switch tag {
	case vtBool:
		return r.byte() != 0
	case vtInt:
		return int32(uint32(r.uvarint()))
	case vtLong:
		return int64(r.uvarint())
	case vtFloat:
		return math.Float32frombits(uint32(r.uvarint()))
	case vtDouble:
		return math.Float64frombits(r.uvarint())
	case vtString:
		return string(r.bytesN())
	case vtBytes:
		b := r.bytesN()
		out := make([]byte, len(b))
		copy(out, b)
		return out
	default:
		r.fail(fmt.Sprintf("unknown value tag 0x%x", tag))
		return nil
	}
}
