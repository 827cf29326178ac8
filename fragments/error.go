package fragments

// Error is a codec failure code, as described in the wire format's
// error taxonomy. Every failure the codec can produce, other than a
// caller bug, is one of these values (optionally wrapped with
// [fmt.Errorf] for context).
type Error int

const (
	// ErrNotEnoughData means a Reader ran out of bytes mid-value.
	ErrNotEnoughData Error = iota + 1
	// ErrInvalidHeader means a message's fixed prefix was malformed:
	// bad endian marker, bad message type, unsupported protocol
	// version, or zero serial. A truncated header-fields entry fails
	// with ErrNotEnoughData instead.
	ErrInvalidHeader
	// ErrUnsupportedEndian means a message's endian marker does not
	// match the host's native endianness. The codec never translates
	// between endiannesses.
	ErrUnsupportedEndian
	// ErrUnexpectedType means a Variant's embedded signature disagreed
	// with the statically expected type, or a parse signature
	// disagreed with an expected type.
	ErrUnexpectedType
	// ErrSignatureInvalidChar means a byte outside the signature
	// alphabet ybnqiuxtdsogvar(){} was encountered.
	ErrSignatureInvalidChar
	// ErrInvalidEntrySize means a dict entry did not contain exactly
	// two children.
	ErrInvalidEntrySize
	// ErrNestingMismatched means unbalanced ( ) { } in a signature.
	ErrNestingMismatched
	// ErrNestingDepthExceeded means a signature nested composites more
	// than [MaxNestingDepth] levels deep.
	ErrNestingDepthExceeded
	// ErrRedundantData means a message stream iterator found trailing
	// bytes that do not form a complete message.
	ErrRedundantData
)

var errorText = map[Error]string{
	ErrNotEnoughData:        "not enough data",
	ErrInvalidHeader:        "invalid message header",
	ErrUnsupportedEndian:    "unsupported endianness",
	ErrUnexpectedType:       "unexpected type",
	ErrSignatureInvalidChar: "invalid signature character",
	ErrInvalidEntrySize:     "dict entry must have exactly two children",
	ErrNestingMismatched:    "mismatched nesting in signature",
	ErrNestingDepthExceeded: "nesting depth exceeded",
	ErrRedundantData:        "redundant trailing data",
}

func (e Error) Error() string {
	if s, ok := errorText[e]; ok {
		return s
	}
	return "unknown dbus codec error"
}
