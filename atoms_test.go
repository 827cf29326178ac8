package dbus

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mtsonder/dbuswire/fragments"
)

func TestMarshalUnmarshalUint16(t *testing.T) {
	buf, err := Marshal(Uint16(0x0001))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if want := []byte{0x01, 0x00}; !cmp.Equal(want, buf) {
		t.Errorf("Marshal(Uint16(1)) = % x, want % x", buf, want)
	}

	got, err := Unmarshal[Uint16](buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != 1 {
		t.Errorf("Unmarshal = %d, want 1", got)
	}
}

func TestMarshalArrayOfUint64(t *testing.T) {
	a := Array[Uint64]{2}
	buf, err := Marshal(a)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := []byte{
		0x08, 0x00, 0x00, 0x00, // length = 8 (one element, no padding counted)
		0x00, 0x00, 0x00, 0x00, // padding to 8-byte element alignment
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // element
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("wrong bytes (-want +got):\n%s", diff)
	}

	got, err := UnmarshalArray[Uint64](fragments.NewReader(buf))
	if err != nil {
		t.Fatalf("UnmarshalArray: %v", err)
	}
	if diff := cmp.Diff([]Uint64{2}, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

// TestArrayOfDictEntryMatchesArrayOfStruct checks that an array of
// dict entries and an array of equivalent two-member structs are
// byte-for-byte identical, differing only in their signature string.
func TestArrayOfDictEntryMatchesArrayOfStruct(t *testing.T) {
	entries := Array[DictEntry[Int32, Byte]]{
		{Key: 2, Value: 23},
		{Key: 3, Value: 24},
	}
	entryBuf, err := Marshal(entries)
	if err != nil {
		t.Fatalf("Marshal(entries): %v", err)
	}

	want := []byte{
		0x0D, 0x00, 0x00, 0x00, // length = 13
		0x00, 0x00, 0x00, 0x00, // padding to 8-byte entry alignment
		0x02, 0x00, 0x00, 0x00, // key 2
		0x17, 0x00, 0x00, 0x00, // value 23, then padding realigning the next entry to 8
		0x03, 0x00, 0x00, 0x00, // key 3
		0x18, // value 24 (array ends here)
	}
	if diff := cmp.Diff(want, entryBuf); diff != "" {
		t.Errorf("wrong dict-entry-array bytes (-want +got):\n%s", diff)
	}
	if entries.Signature() != "a{iy}" {
		t.Errorf("entries.Signature() = %q, want %q", entries.Signature(), "a{iy}")
	}

	structs := Array[Struct[Append[Int32, Append[Byte, Empty]]]]{
		{Fields: Append[Int32, Append[Byte, Empty]]{Head: 2, Tail: Append[Byte, Empty]{Head: 23}}},
		{Fields: Append[Int32, Append[Byte, Empty]]{Head: 3, Tail: Append[Byte, Empty]{Head: 24}}},
	}
	structBuf, err := Marshal(structs)
	if err != nil {
		t.Fatalf("Marshal(structs): %v", err)
	}
	if structs.Signature() != "a(iy)" {
		t.Errorf("structs.Signature() = %q, want %q", structs.Signature(), "a(iy)")
	}

	if diff := cmp.Diff(entryBuf, structBuf); diff != "" {
		t.Errorf("dict-entry array and struct array encodings differ (-entry +struct):\n%s", diff)
	}
}

func TestVariantRoundTrip(t *testing.T) {
	v := NewVariant(Uint16(0x1234))
	buf, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := []byte{
		0x01, 'q', 0x00, // signature "q"
		0x00, // pad to uint16 alignment
		0x34, 0x12,
	}
	if diff := cmp.Diff(want, buf); diff != "" {
		t.Errorf("wrong bytes (-want +got):\n%s", diff)
	}

	var rv RawVariant
	if err := (&rv).Unmarshal(fragments.NewReader(buf)); err != nil {
		t.Fatalf("RawVariant.Unmarshal: %v", err)
	}
	if string(rv.Sig) != "q" {
		t.Fatalf("Sig = %q, want %q", rv.Sig, "q")
	}
	got, err := Unmarshal[Uint16](rv.Body)
	if err != nil {
		t.Fatalf("Unmarshal[Uint16](rv.Body): %v", err)
	}
	if got != 0x1234 {
		t.Errorf("decoded variant content = %#x, want 0x1234", got)
	}
}
