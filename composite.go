package dbus

import (
	"iter"

	"github.com/mtsonder/dbuswire/fragments"
)

// fields is the signature algebra's cons-list interface: [Empty] is
// the base case, [Append] conses one more typed member onto an
// existing fields value. Together they let a struct's signature and
// layout be built up at compile time from its member types, the way
// the original Rust crate uses const generics — Go has no const
// generics, so this is approximated with ordinary generic structs
// monomorphized once per distinct member-type chain.
type fields interface {
	fieldsSignature() string
	fieldsMarshal(w fragments.Writer) error
}

// fieldsUnmarshaler is the decode-side counterpart of [fields],
// implemented on *Empty and *Append[X, Xs] with pointer receivers
// since unmarshaling mutates Head and Tail in place. It is kept
// separate from fields itself rather than added to it: fields is
// satisfied by Empty and Append as plain values everywhere a chain
// type is used as a type argument (e.g. Append[Byte, Empty]), and a
// pointer-receiver method would drop out of their value method sets,
// so [Struct.Unmarshal] and Append's own recursion instead reach this
// interface through a type assertion on the address of a fields
// value, the same way [Append.fieldsUnmarshal] already reaches a
// member's own Unmarshal.
type fieldsUnmarshaler interface {
	fieldsUnmarshal(r *fragments.Reader) error
}

// Empty is the empty member list: the base case for [Append] chains
// and for a struct with no fields.
type Empty struct{}

func (Empty) fieldsSignature() string                  { return "" }
func (Empty) fieldsMarshal(fragments.Writer) error      { return nil }
func (*Empty) fieldsUnmarshal(*fragments.Reader) error  { return nil }

// Append conses Head onto the front of an existing member list Tail.
// A three-member struct's fields type is
// Append[A, Append[B, Append[C, Empty]]].
type Append[X Marshaler, Xs fields] struct {
	Head X
	Tail Xs
}

func (a Append[X, Xs]) fieldsSignature() string {
	return a.Head.Signature() + a.Tail.fieldsSignature()
}

func (a Append[X, Xs]) fieldsMarshal(w fragments.Writer) error {
	if err := a.Head.Marshal(w); err != nil {
		return err
	}
	return a.Tail.fieldsMarshal(w)
}

// fieldsUnmarshal decodes Head, then recurses into Tail. X has no
// static Unmarshal method of its own (only *X does, by this
// codebase's Unmarshaler convention), and Xs is only statically known
// to satisfy [fields], not [fieldsUnmarshaler]; both are reached
// through a runtime type assertion on their address instead.
func (a *Append[X, Xs]) fieldsUnmarshal(r *fragments.Reader) error {
	if err := any(&a.Head).(Unmarshaler).Unmarshal(r); err != nil {
		return err
	}
	return any(&a.Tail).(fieldsUnmarshaler).fieldsUnmarshal(r)
}

// Struct wraps a [fields] chain as a single DBus struct value: its
// signature is "(" + the chain's signature + ")", and it is always
// 8-byte aligned regardless of its first member's own alignment.
type Struct[T fields] struct {
	Fields T
}

func (s Struct[T]) Signature() string { return "(" + s.Fields.fieldsSignature() + ")" }
func (s Struct[T]) Alignment() int    { return 8 }

func (s Struct[T]) Marshal(w fragments.Writer) error {
	return fragments.WriteStruct(w, func() error { return s.Fields.fieldsMarshal(w) })
}

// Unmarshal decodes a struct's members in order, after aligning to 8
// bytes, mirroring [DictEntry]'s unmarshal.
func (s *Struct[T]) Unmarshal(r *fragments.Reader) error {
	if err := r.Align(8); err != nil {
		return err
	}
	return any(&s.Fields).(fieldsUnmarshaler).fieldsUnmarshal(r)
}

// Array is a homogeneous DBus array. Its signature is "a" followed by
// the element type's signature.
type Array[T Marshaler] []T

func (a Array[T]) Signature() string {
	var zero T
	return "a" + zero.Signature()
}

func (a Array[T]) Alignment() int { return 4 }

func (a Array[T]) Marshal(w fragments.Writer) error {
	var zero T
	return fragments.WriteArray(w, zero.Alignment(), func() error {
		for _, v := range a {
			if err := v.Marshal(w); err != nil {
				return err
			}
		}
		return nil
	})
}

// UnmarshalArray decodes a DBus array of T from r, materializing every
// element. Use [IterArray] instead when the array may be large and
// elements can be processed one at a time.
func UnmarshalArray[T any, PT interface {
	*T
	Unmarshaler
}](r *fragments.Reader) ([]T, error) {
	var zero T
	sub, err := r.ReadArray(PT(&zero).Alignment())
	if err != nil {
		return nil, err
	}
	var out []T
	for sub.Position() < sub.Len() {
		var v T
		if err := PT(&v).Unmarshal(sub); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// IterArray returns a streaming decoder over a DBus array of T: each
// iteration decodes one more element without materializing the rest,
// so a caller processing a huge array need not hold it all in memory
// at once. Iteration stops at the first error, which is yielded once
// and then iteration ends.
func IterArray[T any, PT interface {
	*T
	Unmarshaler
}](r *fragments.Reader) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		sub, err := r.ReadArray(PT(&zero).Alignment())
		if err != nil {
			var z T
			yield(z, err)
			return
		}
		for sub.Position() < sub.Len() {
			var v T
			if err := PT(&v).Unmarshal(sub); err != nil {
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// DictEntry is a DBus dict entry: exactly two children, written
// 8-byte aligned, with signature "{" + K + V + "}". An [Array] of
// DictEntry is how DBus encodes a dictionary/map on the wire.
type DictEntry[K Marshaler, V Marshaler] struct {
	Key   K
	Value V
}

func (e DictEntry[K, V]) Signature() string {
	return "{" + e.Key.Signature() + e.Value.Signature() + "}"
}

func (e DictEntry[K, V]) Alignment() int { return 8 }

func (e DictEntry[K, V]) Marshal(w fragments.Writer) error {
	w.Align(8)
	if err := e.Key.Marshal(w); err != nil {
		return err
	}
	return e.Value.Marshal(w)
}

func unmarshalDictEntry[K Marshaler, PK interface {
	*K
	Unmarshaler
}, V Marshaler, PV interface {
	*V
	Unmarshaler
}](r *fragments.Reader) (DictEntry[K, V], error) {
	var e DictEntry[K, V]
	if err := r.Align(8); err != nil {
		return e, err
	}
	if err := PK(&e.Key).Unmarshal(r); err != nil {
		return e, err
	}
	if err := PV(&e.Value).Unmarshal(r); err != nil {
		return e, err
	}
	return e, nil
}

// UnmarshalDictEntry decodes a single DBus dict entry of type
// DictEntry[K, V] from r.
func UnmarshalDictEntry[K, V Marshaler, PK interface {
	*K
	Unmarshaler
}, PV interface {
	*V
	Unmarshaler
}](r *fragments.Reader) (DictEntry[K, V], error) {
	return unmarshalDictEntry[K, PK, V, PV](r)
}

// Variant carries a dynamically-typed wire value: Sig is its embedded
// signature and Value produces its content. Construct one with
// [NewVariant]; decode one with a [RawVariant] and then a [TokenIter]
// (or [Unmarshal], if the embedded signature is known to match a
// specific type).
type Variant struct {
	Sig   Signature
	Value Marshaler
}

// NewVariant wraps v as a Variant, computing its embedded signature
// from v's own Signature method.
func NewVariant(v Marshaler) Variant {
	return Variant{Sig: Signature(v.Signature()), Value: v}
}

func (Variant) Signature() string { return "v" }
func (Variant) Alignment() int    { return 1 }

func (v Variant) Marshal(w fragments.Writer) error {
	if err := fragments.WriteSignature(w, string(v.Sig)); err != nil {
		return err
	}
	return v.Value.Marshal(w)
}

// RawVariant decodes a variant without committing to a target Go
// type: Sig is the embedded signature, and Body is the undecoded
// bytes of the content, exactly as many as that signature describes.
// Use [NewTokenIter] on Sig and Body to walk the content, or compare
// Sig against an expected signature and call [Unmarshal] on Body.
type RawVariant struct {
	Sig  Signature
	Body []byte
}

func (v *RawVariant) Unmarshal(r *fragments.Reader) error {
	var sig Signature
	if err := (&sig).Unmarshal(r); err != nil {
		return err
	}
	n, err := skipValue(string(sig), r)
	if err != nil {
		return err
	}
	v.Sig = sig
	v.Body = n
	return nil
}

// skipValue consumes exactly the bytes the single value described by
// signature occupies, starting at r's current position, and returns
// them.
func skipValue(signature string, r *fragments.Reader) ([]byte, error) {
	if len(signature) > 0 {
		if n, ok := kindAlignment[TokenKind(signature[0])]; ok {
			if err := r.Align(n); err != nil {
				return nil, err
			}
		}
	}
	before := r.Remaining()
	it := NewTokenIter(signature, before)
	for {
		_, err, ok := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	consumed := it.Reader().Position()
	if err := r.Seek(consumed); err != nil {
		return nil, err
	}
	return before[:consumed], nil
}
