// Package dbus implements the wire codec for the desktop-service-bus
// message protocol: signatures, marshaling and unmarshaling of typed
// values, the token-iterator for signature-driven dynamic decoding,
// and the message envelope (header, body, and message-stream framing)
// that ties them together.
//
// The package does not open a transport or speak the bus's
// authentication handshake itself (see the auth subpackage for that);
// it operates entirely on in-memory byte slices and whatever
// io.Reader/io.Writer a caller already has open.
package dbus

import (
	"errors"
	"fmt"

	"github.com/mtsonder/dbuswire/fragments"
)

// MessageType is the type of a message, the second byte of its fixed
// header.
type MessageType byte

const (
	MethodCall   MessageType = 1
	MethodReturn MessageType = 2
	MessageError MessageType = 3
	Signal       MessageType = 4
)

// Flags is the message flags byte, the third byte of a message's
// fixed header.
type Flags byte

const (
	FlagNoReplyExpected              Flags = 1 << 0
	FlagNoAutoStart                  Flags = 1 << 1
	FlagAllowInteractiveAuthorization Flags = 1 << 2
)

func (f Flags) NoReplyExpected() bool              { return f&FlagNoReplyExpected != 0 }
func (f Flags) NoAutoStart() bool                  { return f&FlagNoAutoStart != 0 }
func (f Flags) AllowInteractiveAuthorization() bool { return f&FlagAllowInteractiveAuthorization != 0 }

func (f Flags) WithNoReplyExpected() Flags              { return f | FlagNoReplyExpected }
func (f Flags) WithNoAutoStart() Flags                  { return f | FlagNoAutoStart }
func (f Flags) WithAllowInteractiveAuthorization() Flags { return f | FlagAllowInteractiveAuthorization }

// protocolVersion is the only DBus wire protocol version this codec
// understands.
const protocolVersion = 1

// Header field codes, the first byte of each entry in a message's
// header-fields array.
const (
	fieldPath         = 1
	fieldInterface    = 2
	fieldMember       = 3
	fieldErrorName    = 4
	fieldReplySerial  = 5
	fieldDestination  = 6
	fieldSender       = 7
	fieldSignature    = 8
	fieldUnixFDs      = 9
)

// Fields holds a message's optional header fields. Every field is
// absent when it holds its zero value, matching the wire format's own
// "field present iff its code appears in the array" rule: there is no
// separate way to represent "present but empty" for a string-valued
// field.
type Fields struct {
	Path        ObjectPath
	Interface   String
	Member      String
	ErrorName   String
	ReplySerial uint32
	Destination String
	Sender      String
	Signature   Signature
	UnixFDs     uint32
}

func (f Fields) marshal(w fragments.Writer) error {
	write := func(code byte, v Marshaler) error {
		w.Align(8)
		w.WriteByte(code)
		return NewVariant(v).Marshal(w)
	}
	if f.Path != "" {
		if err := write(fieldPath, f.Path); err != nil {
			return err
		}
	}
	if f.Interface != "" {
		if err := write(fieldInterface, f.Interface); err != nil {
			return err
		}
	}
	if f.Member != "" {
		if err := write(fieldMember, f.Member); err != nil {
			return err
		}
	}
	if f.ErrorName != "" {
		if err := write(fieldErrorName, f.ErrorName); err != nil {
			return err
		}
	}
	if f.ReplySerial != 0 {
		if err := write(fieldReplySerial, Uint32(f.ReplySerial)); err != nil {
			return err
		}
	}
	if f.Destination != "" {
		if err := write(fieldDestination, f.Destination); err != nil {
			return err
		}
	}
	if f.Sender != "" {
		if err := write(fieldSender, f.Sender); err != nil {
			return err
		}
	}
	if f.Signature != "" {
		if err := write(fieldSignature, f.Signature); err != nil {
			return err
		}
	}
	if f.UnixFDs != 0 {
		if err := write(fieldUnixFDs, Uint32(f.UnixFDs)); err != nil {
			return err
		}
	}
	return nil
}

// fieldSignatures gives the expected embedded variant signature for
// each recognized header field code, per the header fields table: a
// field's variant must carry exactly this type, or decoding fails
// with [fragments.ErrUnexpectedType] rather than silently misreading
// (or failing with an unrelated error on) a lying peer's bytes.
var fieldSignatures = map[byte]string{
	fieldPath:        "o",
	fieldInterface:   "s",
	fieldMember:      "s",
	fieldErrorName:   "s",
	fieldReplySerial: "u",
	fieldDestination: "s",
	fieldSender:      "s",
	fieldSignature:   "g",
	fieldUnixFDs:     "u",
}

func (f *Fields) unmarshal(r *fragments.Reader) error {
	for r.Position() < r.Len() {
		if err := r.Align(8); err != nil {
			return err
		}
		if r.Position() >= r.Len() {
			break
		}
		code, err := r.ReadByte()
		if err != nil {
			return err
		}
		var v RawVariant
		if err := v.Unmarshal(r); err != nil {
			return err
		}
		want, known := fieldSignatures[code]
		if known && string(v.Sig) != want {
			return fmt.Errorf("dbus: header field %d carries variant of type %q, want %q: %w", code, v.Sig, want, fragments.ErrUnexpectedType)
		}
		switch code {
		case fieldPath:
			s, err := Unmarshal[ObjectPath](v.Body)
			if err != nil {
				return err
			}
			f.Path = s
		case fieldInterface:
			s, err := Unmarshal[String](v.Body)
			if err != nil {
				return err
			}
			f.Interface = s
		case fieldMember:
			s, err := Unmarshal[String](v.Body)
			if err != nil {
				return err
			}
			f.Member = s
		case fieldErrorName:
			s, err := Unmarshal[String](v.Body)
			if err != nil {
				return err
			}
			f.ErrorName = s
		case fieldReplySerial:
			n, err := Unmarshal[Uint32](v.Body)
			if err != nil {
				return err
			}
			f.ReplySerial = uint32(n)
		case fieldDestination:
			s, err := Unmarshal[String](v.Body)
			if err != nil {
				return err
			}
			f.Destination = s
		case fieldSender:
			s, err := Unmarshal[String](v.Body)
			if err != nil {
				return err
			}
			f.Sender = s
		case fieldSignature:
			s, err := Unmarshal[Signature](v.Body)
			if err != nil {
				return err
			}
			f.Signature = s
		case fieldUnixFDs:
			n, err := Unmarshal[Uint32](v.Body)
			if err != nil {
				return err
			}
			f.UnixFDs = uint32(n)
		default:
			// Unrecognized header fields are ignored, per the wire
			// format's forward-compatibility rule.
		}
	}
	return nil
}

// Header is a message's fixed prefix plus its header-fields
// dictionary: everything about a message except its body.
type Header struct {
	Type   MessageType
	Flags  Flags
	Serial uint32
	Fields Fields
}

// Valid reports whether h carries the header fields its message type
// requires.
func (h Header) Valid() error {
	if h.Serial == 0 {
		return fmt.Errorf("dbus: message serial must be non-zero")
	}
	switch h.Type {
	case MethodCall:
		if h.Fields.Path == "" || h.Fields.Member == "" {
			return fmt.Errorf("dbus: method call missing required Path or Member header field")
		}
	case MethodReturn, MessageError:
		if h.Fields.ReplySerial == 0 {
			return fmt.Errorf("dbus: reply missing required ReplySerial header field")
		}
		if h.Type == MessageError && h.Fields.ErrorName == "" {
			return fmt.Errorf("dbus: error message missing required ErrorName header field")
		}
	case Signal:
		if h.Fields.Path == "" || h.Fields.Interface == "" || h.Fields.Member == "" {
			return fmt.Errorf("dbus: signal missing required Path, Interface or Member header field")
		}
	default:
		return fmt.Errorf("dbus: unknown message type %d", h.Type)
	}
	return nil
}

// Message is a complete DBus message: a header plus a raw, still
// length-delimited body. Decode the body with a [TokenIter] over
// Header.Fields.Signature and Body, or with [Unmarshal] if its shape
// is known statically.
type Message struct {
	Header Header
	Body   []byte
}

func (m Message) Signature() string { return "" }
func (m Message) Alignment() int    { return 1 }

// Marshal writes the message's fixed prefix, header-fields array, the
// 8-byte alignment pad required before the body, and the body itself,
// back-patching both length fields once they are known.
func (m Message) Marshal(w fragments.Writer) error {
	w.WriteByte(fragments.HostEndianFlag())
	w.WriteByte(byte(m.Header.Type))
	w.WriteByte(byte(m.Header.Flags))
	w.WriteByte(protocolVersion)

	bodyLenPos := w.SkipAligned(4)
	fragments.WriteUint32(w, m.Header.Serial)

	fieldsLenPos := w.SkipAligned(4)
	w.Align(8)
	fieldsStart := w.Position()
	if err := m.Header.Fields.marshal(w); err != nil {
		return err
	}
	fieldsLen := w.Position() - fieldsStart
	_, fill := w.(*fragments.SpanWriter)
	if fill {
		fragments.InsertUint32(w, fieldsLenPos, uint32(fieldsLen))
	}

	w.Align(8)
	bodyStart := w.Position()
	w.WriteBytes(m.Body)
	bodyLen := w.Position() - bodyStart
	if fill {
		fragments.InsertUint32(w, bodyLenPos, uint32(bodyLen))
	}
	return nil
}

// Unmarshal reads a single message's fixed prefix, header-fields
// array and body from r. It consumes exactly one message: trailing
// bytes are left unread for the caller (see [MessageStream]).
func (m *Message) Unmarshal(r *fragments.Reader) error {
	endianFlag, err := r.ReadByte()
	if err != nil {
		return err
	}
	if endianFlag != 'l' && endianFlag != 'B' {
		return fragments.ErrInvalidHeader
	}
	if !fragments.EndianFlagMatchesHost(endianFlag) {
		return fragments.ErrUnsupportedEndian
	}
	msgType, err := r.ReadByte()
	if err != nil {
		return err
	}
	if msgType < byte(MethodCall) || msgType > byte(Signal) {
		return fragments.ErrInvalidHeader
	}
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	version, err := r.ReadByte()
	if err != nil {
		return err
	}
	if version != protocolVersion {
		return fragments.ErrInvalidHeader
	}
	bodyLen, err := r.ReadUint32()
	if err != nil {
		return err
	}
	serial, err := r.ReadUint32()
	if err != nil {
		return err
	}
	if serial == 0 {
		return fragments.ErrInvalidHeader
	}

	fieldsLen, err := r.ReadUint32()
	if err != nil {
		return err
	}
	if err := r.Align(8); err != nil {
		return err
	}
	fieldsBytes, err := r.ReadBytes(int(fieldsLen))
	if err != nil {
		return err
	}
	var fields Fields
	if err := (&fields).unmarshal(fragments.NewReader(fieldsBytes)); err != nil {
		return err
	}

	if err := r.Align(8); err != nil {
		return err
	}
	body, err := r.ReadBytes(int(bodyLen))
	if err != nil {
		return err
	}

	m.Header = Header{
		Type:   MessageType(msgType),
		Flags:  Flags(flags),
		Serial: serial,
		Fields: fields,
	}
	m.Body = body
	return nil
}

// MaxMessageSize is the largest message [MessageStream] will decode;
// [Message.Unmarshal] itself applies no cap. Nothing in the wire
// format itself bounds message size; this cap matches the convention
// real DBus implementations enforce.
const MaxMessageSize = 128 * 1024 * 1024

// MessageStream reads consecutive messages from a byte slice, e.g. the
// contents read off a transport connection. It does not allocate
// beyond the []byte each [Message.Body] borrows from the underlying
// data.
//
// Every message's internal alignment is relative to its own first
// byte, not to the stream's start — two consecutive messages are not
// required to individually total a multiple of 8 bytes. So each
// message is decoded through its own fresh [fragments.Reader]
// positioned at 0, and MessageStream tracks only how many bytes of
// the original slice that reader consumed; it never aligns across a
// message boundary.
type MessageStream struct {
	data []byte
	pos  int
}

// NewMessageStream returns a MessageStream over data.
func NewMessageStream(data []byte) *MessageStream {
	return &MessageStream{data: data}
}

// Next decodes the next message, or returns (Message{}, false, nil)
// once every byte has been consumed. A non-empty remainder that runs
// out of bytes before forming a complete message within its first
// [MaxMessageSize] bytes yields [fragments.ErrRedundantData], wrapped
// together with the underlying [fragments.ErrNotEnoughData]; any other
// decoding failure is returned as is.
func (s *MessageStream) Next() (Message, bool, error) {
	remaining := s.data[s.pos:]
	if len(remaining) == 0 {
		return Message{}, false, nil
	}
	if len(remaining) > MaxMessageSize {
		remaining = remaining[:MaxMessageSize]
	}
	r := fragments.NewReader(remaining)
	var m Message
	if err := (&m).Unmarshal(r); err != nil {
		if errors.Is(err, fragments.ErrNotEnoughData) {
			return Message{}, false, fmt.Errorf("dbus: %d trailing bytes do not form a complete message within %d bytes: %w: %w", len(remaining), MaxMessageSize, fragments.ErrRedundantData, err)
		}
		return Message{}, false, err
	}
	s.pos += r.Position()
	return m, true, nil
}
