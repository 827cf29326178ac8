package dbus

import "github.com/mtsonder/dbuswire/fragments"

// The codec's error taxonomy lives in [fragments.Error]; these are
// re-exported here so callers of the root package never need to
// import fragments directly just to compare against errors.Is.
var (
	ErrNotEnoughData        = fragments.ErrNotEnoughData
	ErrInvalidHeader        = fragments.ErrInvalidHeader
	ErrUnsupportedEndian    = fragments.ErrUnsupportedEndian
	ErrUnexpectedType       = fragments.ErrUnexpectedType
	ErrSignatureInvalidChar = fragments.ErrSignatureInvalidChar
	ErrInvalidEntrySize     = fragments.ErrInvalidEntrySize
	ErrNestingMismatched    = fragments.ErrNestingMismatched
	ErrNestingDepthExceeded = fragments.ErrNestingDepthExceeded
	ErrRedundantData        = fragments.ErrRedundantData
)

// CallError is the error carried by a decoded message of type
// [MessageError]: Name is the wire error name (e.g.
// "org.freedesktop.DBus.Error.UnknownMethod") and Detail is whatever
// human-readable string the sender attached, usually the first string
// in the message body.
type CallError struct {
	Name   string
	Detail string
}

func (e CallError) Error() string {
	if e.Detail == "" {
		return "dbus call error " + e.Name
	}
	return "dbus call error " + e.Name + ": " + e.Detail
}

// AsCallError builds a CallError from a decoded error message's
// header and a best-effort detail string extracted from its body (the
// body's first value, if the body signature starts with a string; ""
// otherwise).
func AsCallError(h Header, bodySignature string, body []byte) CallError {
	detail := ""
	if len(bodySignature) > 0 && bodySignature[0] == 's' {
		if s, err := Unmarshal[String](body); err == nil {
			detail = string(s)
		}
	}
	return CallError{Name: string(h.Fields.ErrorName), Detail: detail}
}
