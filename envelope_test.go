package dbus

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mtsonder/dbuswire/fragments"
)

// TestMessageRoundTripSignal builds the NameAcquired signal a session
// bus sends to a client right after it claims a unique name, encodes
// it, decodes the result, and checks that every header field survives
// bit for bit and that re-encoding the decoded message reproduces the
// exact original bytes.
func TestMessageRoundTripSignal(t *testing.T) {
	body, err := Marshal(String(":1.1758"))
	if err != nil {
		t.Fatalf("Marshal(body): %v", err)
	}

	msg := Message{
		Header: Header{
			Type:   Signal,
			Flags:  FlagNoReplyExpected,
			Serial: 0xFFFFFFFF,
			Fields: Fields{
				Path:        "/org/freedesktop/DBus",
				Interface:   "org.freedesktop.DBus",
				Member:      "NameAcquired",
				Destination: ":1.1758",
				Sender:      "org.freedesktop.DBus",
				Signature:   "s",
			},
		},
		Body: body,
	}
	if err := msg.Header.Valid(); err != nil {
		t.Fatalf("Header.Valid(): %v", err)
	}

	buf, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal(msg): %v", err)
	}

	got, err := Unmarshal[Message](buf)
	if err != nil {
		t.Fatalf("Unmarshal[Message]: %v", err)
	}
	if diff := cmp.Diff(msg.Header, got.Header); diff != "" {
		t.Errorf("decoded header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(msg.Body, got.Body); diff != "" {
		t.Errorf("decoded body mismatch (-want +got):\n%s", diff)
	}

	reencoded, err := Marshal(got)
	if err != nil {
		t.Fatalf("re-Marshal(decoded): %v", err)
	}
	if diff := cmp.Diff(buf, reencoded); diff != "" {
		t.Errorf("re-encoding the decoded message changed the bytes (-original +reencoded):\n%s", diff)
	}
}

func TestMessageRoundTripMethodCall(t *testing.T) {
	var s Serial
	body, err := Marshal(String("hello"))
	if err != nil {
		t.Fatalf("Marshal(body): %v", err)
	}
	msg := s.NewMethodCall(0, "org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus", "RequestName", "s", body)
	if err := msg.Header.Valid(); err != nil {
		t.Fatalf("Header.Valid(): %v", err)
	}

	buf, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal[Message](buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	reply := s.NewMethodReturn(got.Header, "", nil)
	if err := reply.Header.Valid(); err != nil {
		t.Fatalf("reply Header.Valid(): %v", err)
	}
	if reply.Header.Fields.ReplySerial != msg.Header.Serial {
		t.Errorf("reply ReplySerial = %d, want %d", reply.Header.Fields.ReplySerial, msg.Header.Serial)
	}
	if reply.Header.Fields.Destination != msg.Header.Fields.Sender {
		t.Errorf("reply Destination = %q, want sender %q", reply.Header.Fields.Destination, msg.Header.Fields.Sender)
	}
}

func TestMessageRoundTripError(t *testing.T) {
	var s Serial
	call := s.NewMethodCall(0, "org.freedesktop.DBus", "/org/freedesktop/DBus", "org.freedesktop.DBus", "RequestName", "", nil)
	detail, err := Marshal(String("unknown method"))
	if err != nil {
		t.Fatalf("Marshal(detail): %v", err)
	}
	errMsg := s.NewError("org.freedesktop.DBus.Error.UnknownMethod", call.Header, "s", detail)
	if err := errMsg.Header.Valid(); err != nil {
		t.Fatalf("Header.Valid(): %v", err)
	}

	buf, err := Marshal(errMsg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal[Message](buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	ce := AsCallError(got.Header, string(got.Header.Fields.Signature), got.Body)
	if ce.Name != "org.freedesktop.DBus.Error.UnknownMethod" {
		t.Errorf("CallError.Name = %q", ce.Name)
	}
	if ce.Detail != "unknown method" {
		t.Errorf("CallError.Detail = %q, want %q", ce.Detail, "unknown method")
	}
}

func TestHeaderValidRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name string
		h    Header
	}{
		{"zero serial", Header{Type: Signal, Serial: 0}},
		{"call missing member", Header{Type: MethodCall, Serial: 1, Fields: Fields{Path: "/a"}}},
		{"reply missing reply serial", Header{Type: MethodReturn, Serial: 1}},
		{"error missing name", Header{Type: MessageError, Serial: 1, Fields: Fields{ReplySerial: 1}}},
		{"signal missing interface", Header{Type: Signal, Serial: 1, Fields: Fields{Path: "/a", Member: "M"}}},
		{"unknown type", Header{Type: 99, Serial: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.h.Valid(); err == nil {
				t.Errorf("Valid() = nil, want error")
			}
		})
	}
}

func TestMessageStream(t *testing.T) {
	var s Serial
	// m1's body is deliberately a length that leaves the message's
	// total size short of a multiple of 8, so decoding m2 only comes
	// out right if alignment inside Message.Unmarshal is computed
	// relative to each message's own start rather than the stream's.
	body1, err := Marshal(String("hi"))
	if err != nil {
		t.Fatalf("Marshal(body1): %v", err)
	}
	m1 := s.NewSignal("/a", "com.example.Iface", "Tick", "s", body1)
	m2 := s.NewSignal("/a", "com.example.Iface", "Tock", "", nil)

	b1, err := Marshal(m1)
	if err != nil {
		t.Fatalf("Marshal(m1): %v", err)
	}
	b2, err := Marshal(m2)
	if err != nil {
		t.Fatalf("Marshal(m2): %v", err)
	}

	stream := NewMessageStream(append(append([]byte{}, b1...), b2...))

	got1, ok, err := stream.Next()
	if err != nil || !ok {
		t.Fatalf("Next() #1 = %v, %v, %v", got1, ok, err)
	}
	if got1.Header.Fields.Member != "Tick" {
		t.Errorf("message 1 Member = %q, want Tick", got1.Header.Fields.Member)
	}

	got2, ok, err := stream.Next()
	if err != nil || !ok {
		t.Fatalf("Next() #2 = %v, %v, %v", got2, ok, err)
	}
	if got2.Header.Fields.Member != "Tock" {
		t.Errorf("message 2 Member = %q, want Tock", got2.Header.Fields.Member)
	}

	_, ok, err = stream.Next()
	if err != nil || ok {
		t.Fatalf("Next() #3 = %v, %v, want clean end of stream", ok, err)
	}
}

func TestMessageStreamRejectsTruncatedTrailer(t *testing.T) {
	var s Serial
	m := s.NewSignal("/a", "com.example.Iface", "Tick", "", nil)
	buf, err := Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// Append a short, incomplete trailing fragment that never grows
	// into a full message, but stays within MaxMessageSize.
	buf = append(buf, 1, 2, 3)

	stream := NewMessageStream(buf)
	if _, ok, err := stream.Next(); err != nil || !ok {
		t.Fatalf("Next() #1 = %v, %v", ok, err)
	}
	if _, _, err := stream.Next(); err == nil {
		t.Fatalf("Next() #2 = nil error, want a truncated-header error")
	}
}

func TestFieldsUnmarshalIgnoresUnknownCode(t *testing.T) {
	var cw fragments.CountingWriter
	build := func(w fragments.Writer) error {
		w.Align(8)
		w.WriteByte(200) // unrecognized field code
		return NewVariant(Byte(1)).Marshal(w)
	}
	if err := build(&cw); err != nil {
		t.Fatalf("sizing: %v", err)
	}
	sw := fragments.NewSpanWriter(cw.Position())
	if err := build(sw); err != nil {
		t.Fatalf("writing: %v", err)
	}

	var f Fields
	if err := (&f).unmarshal(fragments.NewReader(sw.Buf)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if diff := cmp.Diff(Fields{}, f); diff != "" {
		t.Errorf("unknown field code should leave Fields untouched (-want +got):\n%s", diff)
	}
}

// TestFieldsUnmarshalRejectsWrongVariantType builds a header fields
// blob that claims field code fieldPath (which must carry a "o"
// variant) but actually embeds a "u" variant, the way a lying or
// corrupt peer might, and checks that decoding it surfaces
// ErrUnexpectedType rather than silently misreading the bytes.
func TestFieldsUnmarshalRejectsWrongVariantType(t *testing.T) {
	var cw fragments.CountingWriter
	build := func(w fragments.Writer) error {
		w.Align(8)
		w.WriteByte(fieldPath)
		return NewVariant(Uint32(7)).Marshal(w)
	}
	if err := build(&cw); err != nil {
		t.Fatalf("sizing: %v", err)
	}
	sw := fragments.NewSpanWriter(cw.Position())
	if err := build(sw); err != nil {
		t.Fatalf("writing: %v", err)
	}

	var f Fields
	err := (&f).unmarshal(fragments.NewReader(sw.Buf))
	if !errors.Is(err, ErrUnexpectedType) {
		t.Fatalf("unmarshal error = %v, want wrapping ErrUnexpectedType", err)
	}
}
