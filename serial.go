package dbus

// Serial is a monotonically increasing message serial generator. The
// wire format requires every message's serial to be non-zero, so the
// counter starts at 0 and increments before handing out a value — the
// zero serial is never issued.
type Serial struct {
	n uint32
}

// Next returns the next serial value, starting at 1.
func (s *Serial) Next() uint32 {
	s.n++
	if s.n == 0 {
		s.n = 1
	}
	return s.n
}

// NewMethodCall builds a method call message addressed at destination
// and path/interface/member, with body already encoded (use [Marshal]
// to produce it) and its signature.
func (s *Serial) NewMethodCall(flags Flags, destination, path, iface, member string, bodySignature string, body []byte) Message {
	return Message{
		Header: Header{
			Type:   MethodCall,
			Flags:  flags,
			Serial: s.Next(),
			Fields: Fields{
				Path:        ObjectPath(path),
				Interface:   String(iface),
				Member:      String(member),
				Destination: String(destination),
				Signature:   Signature(bodySignature),
			},
		},
		Body: body,
	}
}

// NewMethodReturn builds a reply to methodCall carrying body.
func (s *Serial) NewMethodReturn(methodCall Header, bodySignature string, body []byte) Message {
	return Message{
		Header: Header{
			Type:   MethodReturn,
			Serial: s.Next(),
			Fields: Fields{
				ReplySerial: methodCall.Serial,
				Destination: methodCall.Fields.Sender,
				Signature:   Signature(bodySignature),
			},
		},
		Body: body,
	}
}

// NewError builds an error reply to methodCall.
func (s *Serial) NewError(name string, methodCall Header, bodySignature string, body []byte) Message {
	return Message{
		Header: Header{
			Type:   MessageError,
			Serial: s.Next(),
			Fields: Fields{
				ErrorName:   String(name),
				ReplySerial: methodCall.Serial,
				Destination: methodCall.Fields.Sender,
				Signature:   Signature(bodySignature),
			},
		},
		Body: body,
	}
}

// NewSignal builds a signal message emitted from path/interface/member.
func (s *Serial) NewSignal(path, iface, member string, bodySignature string, body []byte) Message {
	return Message{
		Header: Header{
			Type:   Signal,
			Serial: s.Next(),
			Fields: Fields{
				Path:      ObjectPath(path),
				Interface: String(iface),
				Member:    String(member),
				Signature: Signature(bodySignature),
			},
		},
		Body: body,
	}
}
