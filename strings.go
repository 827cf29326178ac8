package dbus

import (
	"fmt"

	"github.com/mtsonder/dbuswire/fragments"
)

// String, ObjectPath and Signature are distinct wire string kinds.
// They share an on-wire shape (String and ObjectPath: u32 length +
// bytes + NUL; Signature: u8 length + bytes + NUL) but are different
// Go types so a function expecting one can't accidentally be handed
// another — the same separation the wire format's type system makes
// between 's', 'o' and 'g'.
type String string

// ObjectPath is a slash-separated bus object path, e.g.
// "/org/freedesktop/DBus". This package does not validate path syntax;
// callers that need strict validation should check it themselves.
type ObjectPath string

// Signature is a signature blob: a sequence of bytes from the
// signature alphabet, at most 255 bytes long. Construct one with
// [ParseSignature] to validate its contents, or use a zero value to
// mean "empty signature".
type Signature string

// Signature returns the wire signature character for a value of this
// type ("s", "o" or "g").
func (String) Signature() string     { return "s" }
func (ObjectPath) Signature() string { return "o" }
func (Signature) Signature() string  { return "g" }

// Alignment returns the wire alignment of a value of this type.
func (String) Alignment() int     { return 4 }
func (ObjectPath) Alignment() int { return 4 }
func (Signature) Alignment() int  { return 1 }

func (s String) Marshal(w fragments.Writer) error {
	fragments.WriteString(w, string(s))
	return nil
}

func (s ObjectPath) Marshal(w fragments.Writer) error {
	fragments.WriteString(w, string(s))
	return nil
}

func (s Signature) Marshal(w fragments.Writer) error {
	return fragments.WriteSignature(w, string(s))
}

func (s *String) Unmarshal(r *fragments.Reader) error {
	v, err := r.ReadStringLike()
	if err != nil {
		return err
	}
	*s = String(v)
	return nil
}

func (s *ObjectPath) Unmarshal(r *fragments.Reader) error {
	v, err := r.ReadStringLike()
	if err != nil {
		return err
	}
	*s = ObjectPath(v)
	return nil
}

func (s *Signature) Unmarshal(r *fragments.Reader) error {
	v, err := r.ReadSignatureLike()
	if err != nil {
		return err
	}
	*s = Signature(v)
	return nil
}

// ParseSignature validates that s consists only of bytes from the
// signature alphabet with balanced, depth-bounded nesting, and returns
// it as a [Signature].
func ParseSignature(s string) (Signature, error) {
	if len(s) > 255 {
		return "", fmt.Errorf("signature %q exceeds maximum length of 255 bytes", s)
	}
	if err := validateSignatureSyntax([]byte(s)); err != nil {
		return "", err
	}
	return Signature(s), nil
}
