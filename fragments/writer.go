package fragments

import "fmt"

// MaxNestingDepth is the maximum number of nested arrays, structs,
// dict entries and variants the token iterator and signature
// validation accept. Writers and [Reader] do not check nesting depth.
const MaxNestingDepth = 32

func align(pos, n int) int {
	extra := pos % n
	if extra == 0 {
		return pos
	}
	return pos + (n - extra)
}

// A Writer lays out a DBus value in a buffer (or merely counts the
// bytes it would occupy), honoring the wire format's alignment rules.
//
// There are two implementations: [CountingWriter], which only tracks
// position and is used to pre-compute the exact buffer size a value
// will need, and [SpanWriter], which writes into a caller-provided
// buffer. Callers typically run a value through a CountingWriter
// first, allocate a buffer of the resulting size, then run the same
// value through a SpanWriter over that buffer — this is the codec's
// only allocation contract: the caller sizes the buffer, the Writer
// never grows it.
type Writer interface {
	// Position reports the writer's current offset from the start of
	// the message.
	Position() int
	// Align advances the cursor to the next multiple of n bytes,
	// zero-filling the gap in [SpanWriter]. No-op if already aligned.
	Align(n int)
	// Skip advances the cursor by n bytes without writing anything.
	// In [SpanWriter], the skipped bytes are left as-is; callers that
	// skip and later [InsertUint32] into the gap must zero it
	// themselves if zero bytes are required.
	Skip(n int)
	// SkipAligned aligns to n, then skips n bytes, returning the
	// position immediately after alignment (i.e. the position the
	// skipped region begins at). Used to reserve space for a
	// length prefix that gets back-patched once the length is known.
	SkipAligned(n int) int
	// WriteBytes appends bytes verbatim, with no padding or framing.
	WriteBytes(b []byte)
	// WriteByte appends a single byte.
	WriteByte(b byte)
}

// InsertUint32 overwrites the 4 bytes at pos (previously reserved via
// SkipAligned(4)) with v, without disturbing the writer's cursor.
//
// This is a free function rather than a Writer method because
// [CountingWriter] has nothing to insert into; only [SpanWriter]
// implements the insertion. Calling it on a CountingWriter is a
// programmer error and panics.
func InsertUint32(w Writer, pos int, v uint32) {
	sw, ok := w.(*SpanWriter)
	if !ok {
		panic(fmt.Sprintf("InsertUint32 called on %T, which has no buffer to insert into", w))
	}
	sw.insertUint32(pos, v)
}

// A CountingWriter tracks only the position a value would occupy; it
// never allocates or touches memory. Running a value's Marshal method
// against a CountingWriter yields the exact buffer size a [SpanWriter]
// will need.
type CountingWriter struct {
	pos int
}

func (w *CountingWriter) Position() int { return w.pos }

func (w *CountingWriter) Align(n int) { w.pos = align(w.pos, n) }

func (w *CountingWriter) Skip(n int) { w.pos += n }

func (w *CountingWriter) SkipAligned(n int) int {
	w.Align(n)
	ret := w.pos
	w.pos += n
	return ret
}

func (w *CountingWriter) WriteBytes(b []byte) { w.pos += len(b) }

func (w *CountingWriter) WriteByte(byte) { w.pos++ }

// A SpanWriter writes a value's wire encoding into a pre-allocated
// buffer. The buffer must be exactly the size a [CountingWriter]
// computed for the same value; writing past the end of Buf panics,
// the same way writing past the end of any Go slice does.
type SpanWriter struct {
	// Buf is the output buffer. NewSpanWriter pre-sizes it; growing it
	// after construction defeats the point of pre-sizing.
	Buf []byte
	pos int
}

// NewSpanWriter returns a SpanWriter that writes into a freshly
// allocated buffer of exactly size bytes.
func NewSpanWriter(size int) *SpanWriter {
	return &SpanWriter{Buf: make([]byte, size)}
}

func (w *SpanWriter) Position() int { return w.pos }

func (w *SpanWriter) Align(n int) {
	next := align(w.pos, n)
	for i := w.pos; i < next; i++ {
		w.Buf[i] = 0
	}
	w.pos = next
}

func (w *SpanWriter) Skip(n int) { w.pos += n }

func (w *SpanWriter) SkipAligned(n int) int {
	w.Align(n)
	ret := w.pos
	w.pos += n
	return ret
}

func (w *SpanWriter) WriteBytes(b []byte) {
	copy(w.Buf[w.pos:w.pos+len(b)], b)
	w.pos += len(b)
}

func (w *SpanWriter) WriteByte(b byte) {
	w.Buf[w.pos] = b
	w.pos++
}

func (w *SpanWriter) insertUint32(pos int, v uint32) {
	nativeEndian.PutUint32(w.Buf[pos:], v)
}

// WriteUint16 aligns to 2 bytes and writes v in the host's native
// byte order.
func WriteUint16(w Writer, v uint16) {
	w.Align(2)
	var buf [2]byte
	nativeEndian.PutUint16(buf[:], v)
	w.WriteBytes(buf[:])
}

// WriteUint32 aligns to 4 bytes and writes v in the host's native
// byte order.
func WriteUint32(w Writer, v uint32) {
	w.Align(4)
	var buf [4]byte
	nativeEndian.PutUint32(buf[:], v)
	w.WriteBytes(buf[:])
}

// WriteUint64 aligns to 8 bytes and writes v in the host's native
// byte order.
func WriteUint64(w Writer, v uint64) {
	w.Align(8)
	var buf [8]byte
	nativeEndian.PutUint64(buf[:], v)
	w.WriteBytes(buf[:])
}

// WriteString writes a length-prefixed, NUL-terminated string (used
// for the DBus "string" and "object path" atoms).
func WriteString(w Writer, s string) {
	WriteUint32(w, uint32(len(s)))
	w.WriteBytes([]byte(s))
	w.WriteByte(0)
}

// WriteSignature writes a length-prefixed, NUL-terminated signature
// blob (u8 length rather than u32).
func WriteSignature(w Writer, s string) error {
	if len(s) > 255 {
		return fmt.Errorf("signature %q exceeds maximum length of 255 bytes", s)
	}
	w.WriteByte(byte(len(s)))
	w.WriteBytes([]byte(s))
	w.WriteByte(0)
	return nil
}

// WriteArray reserves a 4-byte length prefix, aligns to elemAlign
// (padding not counted in the length), runs body to emit the
// elements, then back-patches the length prefix with the number of
// bytes body wrote.
//
// elemAlign is the array element type's alignment (e.g. 8 for an
// array of structs or of 64-bit values), per the wire format's rule
// that array padding precedes but is excluded from the byte length.
func WriteArray(w Writer, elemAlign int, body func() error) error {
	lenPos := w.SkipAligned(4)
	w.Align(elemAlign)
	start := w.Position()
	if err := body(); err != nil {
		return err
	}
	length := w.Position() - start
	if sw, ok := w.(*SpanWriter); ok {
		sw.insertUint32(lenPos, uint32(length))
	}
	return nil
}

// WriteStruct aligns to the struct alignment (8) and runs body to
// emit the struct's members. Struct alignment padding precedes the
// body even for an empty struct.
func WriteStruct(w Writer, body func() error) error {
	w.Align(8)
	return body()
}
