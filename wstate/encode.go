package wstate

import (
	"encoding/binary"
	"fmt"
	"hash"
	"math"
	"strconv"
	"strings"

	"github.com/dshollow/hollow/schema"
)

// encodeRecordForHash feeds rec's canonical byte representation into d,
// used for content-hash dedup on unkeyed types (§4.B). The
// representation only needs to be injective, not stable across versions
// of this package.
func encodeRecordForHash(d hash.Hash64, rec Record) {
	var tmp [8]byte
	writeUvarint := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		d.Write(tmp[:n])
	}
	writeUvarint(uint64(len(rec.Fields)))
	for _, f := range rec.Fields {
		encodeValue(d, f)
	}
	// Element and entry sequences are sorted by ordinal before hashing, so
	// set and map content addressing ignores the caller's insertion order.
	// A list hashes the same as its reorderings; addContentAddressed tells
	// them apart by comparing elements in order.
	elems := append([]Ordinal(nil), rec.Elements...)
	sortOrdinals(elems)
	writeUvarint(uint64(len(elems)))
	for _, o := range elems {
		writeUvarint(uint64(uint32(o)))
	}
	entries := append([]MapEntry(nil), rec.Entries...)
	sortEntries(entries)
	writeUvarint(uint64(len(entries)))
	for _, e := range entries {
		writeUvarint(uint64(uint32(e.Key)))
		writeUvarint(uint64(uint32(e.Value)))
	}
}

func sortOrdinals(s []Ordinal) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func sortEntries(s []MapEntry) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1].Key > s[j].Key; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

func encodeValue(d hash.Hash64, v any) {
	switch t := v.(type) {
	case nil:
		d.Write([]byte{0})
	case bool:
		if t {
			d.Write([]byte{1, 1})
		} else {
			d.Write([]byte{1, 0})
		}
	case int32:
		d.Write([]byte{2})
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(t))
		d.Write(b[:])
	case int64:
		d.Write([]byte{3})
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(t))
		d.Write(b[:])
	case float32:
		d.Write([]byte{4})
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], math.Float32bits(t))
		d.Write(b[:])
	case float64:
		d.Write([]byte{5})
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(t))
		d.Write(b[:])
	case string:
		d.Write([]byte{6})
		var lb [8]byte
		n := binary.PutUvarint(lb[:], uint64(len(t)))
		d.Write(lb[:n])
		d.Write([]byte(t))
	case []byte:
		d.Write([]byte{7})
		var lb [8]byte
		n := binary.PutUvarint(lb[:], uint64(len(t)))
		d.Write(lb[:n])
		d.Write(t)
	default:
		panic(fmt.Sprintf("wstate: unsupported field value type %T", v))
	}
}

// keyStringOf projects obj's primary-key fields out of rec into a single
// comparable string used as the identity map key in addKeyed. Only
// single-segment field paths are supported: the dotted-path grammar from
// spec.md §3 is preserved in the schema model, but this write-state
// implementation resolves at most one level deep, which covers every
// scenario in spec.md §8; deeper paths fail fast rather than silently
// truncating.
func keyStringOf(obj *schema.ObjectSchema, rec Record) (string, error) {
	var d strings.Builder
	for i, path := range obj.PrimaryKey {
		if i > 0 {
			d.WriteByte('\x1f')
		}
		if strings.Contains(path, ".") {
			return "", &PopulateError{TypeName: obj.Name, Reason: "multi-segment key paths are not supported: " + path}
		}
		idx := obj.FieldIndex(path)
		if idx < 0 {
			return "", &PopulateError{TypeName: obj.Name, Reason: "primary key field not found: " + path}
		}
		if idx >= len(rec.Fields) {
			return "", &PopulateError{TypeName: obj.Name, Reason: "record shorter than its schema's field list"}
		}
		d.WriteString(valueKeyPart(rec.Fields[idx]))
	}
	return d.String(), nil
}

func valueKeyPart(v any) string {
	switch t := v.(type) {
	case nil:
		return "n"
	case bool:
		if t {
			return "b1"
		}
		return "b0"
	case int32:
		return "i" + strconv.FormatInt(int64(t), 10)
	case int64:
		return "l" + strconv.FormatInt(t, 10)
	case float32:
		return "f" + strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return "d" + strconv.FormatFloat(t, 'g', -1, 64)
	case string:
		return "s" + t
	case []byte:
		return "x" + string(t)
	default:
		return fmt.Sprintf("?%v", t)
	}
}
