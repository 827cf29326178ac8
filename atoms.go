package dbus

import (
	"math"

	"github.com/mtsonder/dbuswire/fragments"
)

// Value is satisfied by every wire type: the nine fixed-size atoms,
// the three string kinds, and every composite built from them. It
// exposes just enough for a generic caller to size and align a value
// without knowing its concrete type.
type Value interface {
	// Signature returns this value's DBus signature string, e.g. "i"
	// or "a(ss)".
	Signature() string
	// Alignment returns the byte alignment this value's encoding
	// starts on.
	Alignment() int
}

// Marshaler is a [Value] that knows how to lay itself out on the
// wire. Composite Marshal methods are expected to align the writer
// themselves before writing (matching [fragments.Writer.Align]'s
// idempotence), exactly as the primitive types below do.
type Marshaler interface {
	Value
	Marshal(w fragments.Writer) error
}

// Unmarshaler is a [Value] that knows how to read itself back from
// the wire. It is implemented on pointer receivers so Unmarshal can
// fill in the referent.
type Unmarshaler interface {
	Value
	Unmarshal(r *fragments.Reader) error
}

// The nine fixed-size atom kinds. Each is a distinct Go type so two
// atoms of different DBus type never unify by accident, matching the
// wire format's own type discipline.
type (
	Byte    uint8
	Bool    bool
	Int16   int16
	Uint16  uint16
	Int32   int32
	Uint32  uint32
	Int64   int64
	Uint64  uint64
	Float64 float64
)

func (Byte) Signature() string    { return "y" }
func (Bool) Signature() string    { return "b" }
func (Int16) Signature() string   { return "n" }
func (Uint16) Signature() string  { return "q" }
func (Int32) Signature() string   { return "i" }
func (Uint32) Signature() string  { return "u" }
func (Int64) Signature() string   { return "x" }
func (Uint64) Signature() string  { return "t" }
func (Float64) Signature() string { return "d" }

func (Byte) Alignment() int    { return 1 }
func (Bool) Alignment() int    { return 4 }
func (Int16) Alignment() int   { return 2 }
func (Uint16) Alignment() int  { return 2 }
func (Int32) Alignment() int   { return 4 }
func (Uint32) Alignment() int  { return 4 }
func (Int64) Alignment() int   { return 8 }
func (Uint64) Alignment() int  { return 8 }
func (Float64) Alignment() int { return 8 }

func (v Byte) Marshal(w fragments.Writer) error { w.WriteByte(byte(v)); return nil }
func (v Bool) Marshal(w fragments.Writer) error {
	var n uint32
	if v {
		n = 1
	}
	fragments.WriteUint32(w, n)
	return nil
}
func (v Int16) Marshal(w fragments.Writer) error   { fragments.WriteUint16(w, uint16(v)); return nil }
func (v Uint16) Marshal(w fragments.Writer) error  { fragments.WriteUint16(w, uint16(v)); return nil }
func (v Int32) Marshal(w fragments.Writer) error   { fragments.WriteUint32(w, uint32(v)); return nil }
func (v Uint32) Marshal(w fragments.Writer) error  { fragments.WriteUint32(w, uint32(v)); return nil }
func (v Int64) Marshal(w fragments.Writer) error   { fragments.WriteUint64(w, uint64(v)); return nil }
func (v Uint64) Marshal(w fragments.Writer) error  { fragments.WriteUint64(w, uint64(v)); return nil }
func (v Float64) Marshal(w fragments.Writer) error {
	fragments.WriteUint64(w, math.Float64bits(float64(v)))
	return nil
}

func (v *Byte) Unmarshal(r *fragments.Reader) error {
	b, err := r.ReadByte()
	*v = Byte(b)
	return err
}
func (v *Bool) Unmarshal(r *fragments.Reader) error {
	n, err := r.ReadUint32()
	*v = Bool(n != 0)
	return err
}
func (v *Int16) Unmarshal(r *fragments.Reader) error {
	n, err := r.ReadUint16()
	*v = Int16(n)
	return err
}
func (v *Uint16) Unmarshal(r *fragments.Reader) error {
	n, err := r.ReadUint16()
	*v = Uint16(n)
	return err
}
func (v *Int32) Unmarshal(r *fragments.Reader) error {
	n, err := r.ReadUint32()
	*v = Int32(n)
	return err
}
func (v *Uint32) Unmarshal(r *fragments.Reader) error {
	n, err := r.ReadUint32()
	*v = Uint32(n)
	return err
}
func (v *Int64) Unmarshal(r *fragments.Reader) error {
	n, err := r.ReadUint64()
	*v = Int64(n)
	return err
}
func (v *Uint64) Unmarshal(r *fragments.Reader) error {
	n, err := r.ReadUint64()
	*v = Uint64(n)
	return err
}
func (v *Float64) Unmarshal(r *fragments.Reader) error {
	n, err := r.ReadUint64()
	*v = Float64(math.Float64frombits(n))
	return err
}

// Marshal encodes v into a freshly-sized byte slice: it is run once
// against a [fragments.CountingWriter] to compute the exact buffer
// size, then once more against a [fragments.SpanWriter] over that
// buffer. This is the codec's only allocation: callers never need to
// guess a capacity or grow a buffer mid-encode.
func Marshal[T Marshaler](v T) ([]byte, error) {
	var cw fragments.CountingWriter
	if err := v.Marshal(&cw); err != nil {
		return nil, err
	}
	sw := fragments.NewSpanWriter(cw.Position())
	if err := v.Marshal(sw); err != nil {
		return nil, err
	}
	return sw.Buf, nil
}

// Unmarshal decodes a T from data in full. PT lets the compiler prove
// *T implements Unmarshaler without the caller spelling out a pointer
// type at the call site: Unmarshal[Header](data) infers PT = *Header.
func Unmarshal[T any, PT interface {
	*T
	Unmarshaler
}](data []byte) (T, error) {
	var v T
	r := fragments.NewReader(data)
	if err := PT(&v).Unmarshal(r); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
