package fragments_test

import (
	"testing"

	"github.com/mtsonder/dbuswire/fragments"
)

func TestReaderPrimitives(t *testing.T) {
	r := fragments.NewReader([]byte{
		1,                      // byte
		0, 0, 0,                // padding to 4
		2, 0, 0, 0, // uint32 = 2
	})
	b, err := r.ReadByte()
	if err != nil || b != 1 {
		t.Fatalf("ReadByte() = %v, %v, want 1, nil", b, err)
	}
	v, err := r.ReadUint32()
	if err != nil || v != 2 {
		t.Fatalf("ReadUint32() = %v, %v, want 2, nil", v, err)
	}
}

func TestReaderStringLike(t *testing.T) {
	r := fragments.NewReader([]byte{3, 0, 0, 0, 'f', 'o', 'o', 0})
	s, err := r.ReadStringLike()
	if err != nil {
		t.Fatal(err)
	}
	if s != "foo" {
		t.Fatalf("ReadStringLike() = %q, want %q", s, "foo")
	}
}

func TestReaderSignatureLike(t *testing.T) {
	r := fragments.NewReader([]byte{2, 'a', 'i', 0})
	s, err := r.ReadSignatureLike()
	if err != nil {
		t.Fatal(err)
	}
	if s != "ai" {
		t.Fatalf("ReadSignatureLike() = %q, want %q", s, "ai")
	}
}

func TestReaderArray(t *testing.T) {
	data := []byte{
		0x08, 0x00, 0x00, 0x00, // length = 8
		0x00, 0x00, 0x00, 0x00, // padding to 8
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // element
		0xff, // trailing byte not part of the array
	}
	r := fragments.NewReader(data)
	sub, err := r.ReadArray(8)
	if err != nil {
		t.Fatal(err)
	}
	if sub.Len() != 8 {
		t.Fatalf("sub-reader length = %d, want 8", sub.Len())
	}
	v, err := sub.ReadUint64()
	if err != nil || v != 2 {
		t.Fatalf("ReadUint64() = %v, %v, want 2, nil", v, err)
	}
	if r.Position() != len(data)-1 {
		t.Fatalf("outer reader position = %d, want %d", r.Position(), len(data)-1)
	}
}

func TestReaderNotEnoughData(t *testing.T) {
	r := fragments.NewReader([]byte{1, 2})
	if _, err := r.ReadUint32(); err != fragments.ErrNotEnoughData {
		t.Fatalf("ReadUint32() error = %v, want ErrNotEnoughData", err)
	}
}
