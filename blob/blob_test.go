package blob

import (
	"bytes"
	"testing"

	"github.com/dshollow/hollow/schema"
)

func sampleSchemas() *schema.Set {
	set := schema.NewSet()
	schema.DefineObject(set, "Movie", func(b *schema.ObjectSchemaBuilder) {
		b.Field("id", schema.Int)
		b.PrimaryKey("id")
	})
	return set
}

func TestWriteReadRoundTrip(t *testing.T) {
	schemas := sampleSchemas()
	sections := []Section{
		{TypeName: "Movie", Kind: Snapshot, Payload: []byte("payload-bytes")},
	}
	var buf bytes.Buffer
	if err := Write(&buf, schemas, sections); err != nil {
		t.Fatal(err)
	}

	got, err := Read(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := got.Schemas.Get("Movie"); !ok {
		t.Fatal("schema lost in round trip")
	}
	if len(got.Sections) != 1 || string(got.Sections[0].Payload) != "payload-bytes" {
		t.Fatalf("sections = %+v", got.Sections)
	}
	if got.Sections[0].Kind != Snapshot {
		t.Fatalf("kind = %v, want Snapshot", got.Sections[0].Kind)
	}
}

func TestReadBadMagic(t *testing.T) {
	buf := Encode(sampleSchemas(), nil)
	buf[0] = 'X'
	if _, err := Read(buf); err == nil {
		t.Fatal("expected error for bad magic")
	}
}

func TestReadCorruptedChecksum(t *testing.T) {
	buf := Encode(sampleSchemas(), []Section{{TypeName: "Movie", Kind: Delta, Payload: []byte("abc")}})
	buf[len(buf)-1] ^= 0xFF
	if _, err := Read(buf); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestReadTruncated(t *testing.T) {
	buf := Encode(sampleSchemas(), []Section{{TypeName: "Movie", Kind: ReverseDelta, Payload: []byte("abcdef")}})
	for cut := 0; cut < len(buf); cut++ {
		if _, err := Read(buf[:cut]); err == nil {
			t.Fatalf("Read(buf[:%d]) succeeded, want TruncatedError", cut)
		}
	}
}

func TestUnknownFormatVersion(t *testing.T) {
	buf := Encode(sampleSchemas(), nil)
	// format version is the single uvarint byte right after the 4-byte magic
	buf[4] = 99
	if _, err := Read(buf); err == nil {
		t.Fatal("expected UnknownFormatVersionError")
	}
}
