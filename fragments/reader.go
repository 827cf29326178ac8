package fragments

// A Reader is a bounds-checked cursor over a byte slice, advancing
// with the wire format's alignment rules. Every method that returns
// bytes returns a sub-slice of the original input, borrowed for as
// long as the caller keeps it; ReadStringLike and ReadSignatureLike
// return a Go string, which is a copy.
//
// The zero Reader is not usable; construct one with [NewReader].
type Reader struct {
	data  []byte
	count int
}

// NewReader returns a Reader over data, positioned at the start.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position reports the reader's current offset from the start of the
// byte slice it was constructed with.
func (r *Reader) Position() int { return r.count }

// Len reports the total length of the byte slice the reader was
// constructed with.
func (r *Reader) Len() int { return len(r.data) }

// Seek advances the cursor by n bytes without interpreting them,
// failing with [ErrNotEnoughData] if that would run past the end.
func (r *Reader) Seek(n int) error {
	if r.count+n > len(r.data) {
		return ErrNotEnoughData
	}
	r.count += n
	return nil
}

// Align advances the cursor to the next multiple of n bytes, failing
// with [ErrNotEnoughData] if the aligned offset runs past the end.
func (r *Reader) Align(n int) error {
	next := align(r.count, n)
	if next > len(r.data) {
		return ErrNotEnoughData
	}
	r.count = next
	return nil
}

// Remaining returns the as-yet-unread suffix of the reader's backing
// slice.
func (r *Reader) Remaining() []byte {
	return r.data[r.count:]
}

// ReadByte reads a single unaligned byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBytes reads n bytes verbatim, with no alignment or framing.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if r.count+n > len(r.data) {
		return nil, ErrNotEnoughData
	}
	ret := r.data[r.count : r.count+n]
	r.count += n
	return ret, nil
}

// ReadUint16 aligns to 2 bytes and reads a uint16 in the host's
// native byte order.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.Align(2); err != nil {
		return 0, err
	}
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return nativeEndian.Uint16(b), nil
}

// ReadUint32 aligns to 4 bytes and reads a uint32 in the host's
// native byte order.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.Align(4); err != nil {
		return 0, err
	}
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return nativeEndian.Uint32(b), nil
}

// ReadUint64 aligns to 8 bytes and reads a uint64 in the host's
// native byte order.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.Align(8); err != nil {
		return 0, err
	}
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return nativeEndian.Uint64(b), nil
}

// ReadStringLike reads a u32 byte length, that many bytes, and
// discards the trailing NUL sentinel. Used for the "string" and
// "object path" atoms, which share this layout but not their type
// identity.
func (r *Reader) ReadStringLike() (string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n) + 1)
	if err != nil {
		return "", ErrNotEnoughData
	}
	return string(b[:len(b)-1]), nil
}

// ReadSignatureLike reads a u8 byte length, that many bytes, and
// discards the trailing NUL sentinel. Used for the "signature" atom.
func (r *Reader) ReadSignatureLike() (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b, err := r.ReadBytes(int(n) + 1)
	if err != nil {
		return "", ErrNotEnoughData
	}
	return string(b[:len(b)-1]), nil
}

// ReadArray reads the u32 payload-byte-length, aligns to elemAlign
// (not counted in the length), and carves out exactly that many bytes
// as the array's payload, returning a sub-reader over it.
//
// elemAlign is the array element type's alignment, per the same rule
// [WriteArray] applies on encode.
func (r *Reader) ReadArray(elemAlign int) (*Reader, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if err := r.Align(elemAlign); err != nil {
		return nil, err
	}
	payload, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	return NewReader(payload), nil
}
