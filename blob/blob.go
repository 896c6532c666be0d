// Package blob implements the on-disk/on-wire blob format (§4.E, §6): a
// magic-tagged, versioned frame carrying a schema header followed by one
// typed section per type. Framing is grounded on edb/journal/journal.go's
// segment format — magic + format version + xxhash checksum + uvarint
// record framing — adapted here from an append-only log segment to a
// single complete blob with one checksummed section per type.
package blob

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
	"github.com/dshollow/hollow/schema"
)

// Magic identifies a hollow blob; FormatVersion is the wire format
// version this package reads and writes.
var Magic = [4]byte{'H', 'O', 'L', 'W'}

const FormatVersion = 1

// Kind distinguishes the three blob payload shapes (§1, §4.D).
type Kind uint8

const (
	Snapshot Kind = iota
	Delta
	ReverseDelta
)

const (
	sectionTagSnapshot     = 0x10
	sectionTagDelta        = 0x11
	sectionTagReverseDelta = 0x12
)

func (k Kind) wireTag() byte {
	switch k {
	case Snapshot:
		return sectionTagSnapshot
	case Delta:
		return sectionTagDelta
	case ReverseDelta:
		return sectionTagReverseDelta
	default:
		panic(fmt.Sprintf("blob: unknown kind %d", k))
	}
}

func kindFromWireTag(b byte) (Kind, error) {
	switch b {
	case sectionTagSnapshot:
		return Snapshot, nil
	case sectionTagDelta:
		return Delta, nil
	case sectionTagReverseDelta:
		return ReverseDelta, nil
	default:
		return 0, &SchemaMismatchError{Reason: fmt.Sprintf("unknown section tag 0x%x", b)}
	}
}

// Section is one type's framed payload within a blob. Payload is an
// opaque byte string whose interpretation belongs to the delta/rstate
// packages (blob only frames and checksums it).
type Section struct {
	TypeName string
	Kind     Kind
	Payload  []byte
}

// TruncatedError reports a blob that ended before framing said it would.
type TruncatedError struct{ Reason string }

func (e *TruncatedError) Error() string { return "blob: truncated: " + e.Reason }

// UnknownFormatVersionError reports a blob whose format version this
// package doesn't understand.
type UnknownFormatVersionError struct{ Got uint64 }

func (e *UnknownFormatVersionError) Error() string {
	return fmt.Sprintf("blob: unknown format version %d", e.Got)
}

// SchemaMismatchError reports a blob whose schema header doesn't parse,
// or a checksum/section tag mismatch.
type SchemaMismatchError struct{ Reason string }

func (e *SchemaMismatchError) Error() string { return "blob: schema mismatch: " + e.Reason }

// Write frames schemas and sections into w: magic, format version, the
// schema header, then each section as
// <tag:1><typeNameLen:uvarint><typeName><payloadLen:uvarint><payload><checksum:8>,
// the checksum covering everything from the tag through the payload.
func Write(w io.Writer, schemas *schema.Set, sections []Section) error {
	var hdr []byte
	hdr = append(hdr, Magic[:]...)
	hdr = binary.AppendUvarint(hdr, FormatVersion)
	hdr = schema.WriteTo(hdr, schemas)
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	var lenBuf []byte
	lenBuf = binary.AppendUvarint(lenBuf[:0], uint64(len(sections)))
	if _, err := w.Write(lenBuf); err != nil {
		return err
	}
	for _, s := range sections {
		buf := []byte{s.Kind.wireTag()}
		buf = binary.AppendUvarint(buf, uint64(len(s.TypeName)))
		buf = append(buf, s.TypeName...)
		buf = binary.AppendUvarint(buf, uint64(len(s.Payload)))
		buf = append(buf, s.Payload...)
		sum := xxhash.Sum64(buf)
		var sumBuf [8]byte
		binary.LittleEndian.PutUint64(sumBuf[:], sum)
		if _, err := w.Write(buf); err != nil {
			return err
		}
		if _, err := w.Write(sumBuf[:]); err != nil {
			return err
		}
	}
	return nil
}

// Encode is a convenience wrapper returning Write's output as a []byte.
func Encode(schemas *schema.Set, sections []Section) []byte {
	var buf countingBuffer
	if err := Write(&buf, schemas, sections); err != nil {
		panic(err) // countingBuffer never errors
	}
	return buf.b
}

type countingBuffer struct{ b []byte }

func (c *countingBuffer) Write(p []byte) (int, error) {
	c.b = append(c.b, p...)
	return len(p), nil
}

// Blob is a fully parsed blob: its schema header and every section.
type Blob struct {
	Schemas  *schema.Set
	Sections []Section
}

// Read parses buf as a complete blob, verifying the magic, format
// version, and every section checksum.
func Read(buf []byte) (*Blob, error) {
	if len(buf) < 4 {
		return nil, &TruncatedError{Reason: "shorter than magic"}
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return nil, &SchemaMismatchError{Reason: "bad magic"}
	}
	pos := 4
	ver, n := binary.Uvarint(buf[pos:])
	if n <= 0 {
		return nil, &TruncatedError{Reason: "format version"}
	}
	pos += n
	if ver != FormatVersion {
		return nil, &UnknownFormatVersionError{Got: ver}
	}
	schemas, consumed, err := schema.LoadFrom(buf[pos:])
	if err != nil {
		return nil, err
	}
	pos += consumed

	sectionCount, n := binary.Uvarint(buf[pos:])
	if n <= 0 {
		return nil, &TruncatedError{Reason: "section count"}
	}
	pos += n

	sections := make([]Section, 0, sectionCount)
	for i := uint64(0); i < sectionCount; i++ {
		sectionStart := pos
		if pos >= len(buf) {
			return nil, &TruncatedError{Reason: "section tag"}
		}
		kind, err := kindFromWireTag(buf[pos])
		if err != nil {
			return nil, err
		}
		pos++

		nameLen, n := binary.Uvarint(buf[pos:])
		if n <= 0 {
			return nil, &TruncatedError{Reason: "type name length"}
		}
		pos += n
		if pos+int(nameLen) > len(buf) {
			return nil, &TruncatedError{Reason: "type name"}
		}
		typeName := string(buf[pos : pos+int(nameLen)])
		pos += int(nameLen)

		payloadLen, n := binary.Uvarint(buf[pos:])
		if n <= 0 {
			return nil, &TruncatedError{Reason: "payload length"}
		}
		pos += n
		if pos+int(payloadLen) > len(buf) {
			return nil, &TruncatedError{Reason: "payload"}
		}
		payload := buf[pos : pos+int(payloadLen)]
		pos += int(payloadLen)

		if pos+8 > len(buf) {
			return nil, &TruncatedError{Reason: "checksum"}
		}
		wantSum := binary.LittleEndian.Uint64(buf[pos : pos+8])
		gotSum := xxhash.Sum64(buf[sectionStart:pos])
		if wantSum != gotSum {
			return nil, &SchemaMismatchError{Reason: fmt.Sprintf("checksum mismatch in section %q", typeName)}
		}
		pos += 8

		sections = append(sections, Section{TypeName: typeName, Kind: kind, Payload: payload})
	}
	return &Blob{Schemas: schemas, Sections: sections}, nil
}
