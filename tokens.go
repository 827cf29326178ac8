package dbus

import (
	"errors"
	"fmt"
	"math"

	"github.com/creachadair/mds/mapset"

	"github.com/mtsonder/dbuswire/fragments"
)

// TokenKind identifies the shape of a [Token] produced by a
// [TokenIter]: either one of the thirteen atom kinds, or one of the
// six structural markers (array, variant open/close, struct
// open/close, dict-entry open/close).
type TokenKind byte

// The token kinds. Atom kinds reuse the signature character they
// decode; structural kinds use a character that never appears as a
// lone signature atom.
const (
	KindByte       TokenKind = 'y'
	KindBool       TokenKind = 'b'
	KindInt16      TokenKind = 'n'
	KindUint16     TokenKind = 'q'
	KindInt32      TokenKind = 'i'
	KindUint32     TokenKind = 'u'
	KindInt64      TokenKind = 'x'
	KindUint64     TokenKind = 't'
	KindFloat64    TokenKind = 'd'
	KindString     TokenKind = 's'
	KindObjectPath TokenKind = 'o'
	KindSignature  TokenKind = 'g'
	KindArray       TokenKind = 'a'
	KindVariant     TokenKind = 'v'
	KindStructOpen  TokenKind = '('
	KindStructClose TokenKind = ')'
	KindEntryOpen   TokenKind = '{'
	KindEntryClose  TokenKind = '}'

	// KindVariantClose has no signature-alphabet counterpart: it is
	// synthesized when a variant's embedded signature is exhausted,
	// marking the end of its content.
	KindVariantClose TokenKind = 0
)

// atomKinds and structuralKinds partition the signature alphabet the
// same way strToType/kindToStr partition DBus types by reflect.Kind:
// small fixed lookup tables built once at init time rather than
// re-derived per call.
var (
	atomKinds = mapset.New(
		KindByte, KindBool, KindInt16, KindUint16, KindInt32, KindUint32,
		KindInt64, KindUint64, KindFloat64, KindString, KindObjectPath, KindSignature, KindVariant,
	)
	structuralKinds = mapset.New(
		KindArray, KindStructOpen, KindStructClose, KindEntryOpen, KindEntryClose,
	)
	signatureAlphabet = mapset.New(
		KindByte, KindBool, KindInt16, KindUint16, KindInt32, KindUint32,
		KindInt64, KindUint64, KindFloat64, KindString, KindObjectPath, KindSignature, KindVariant,
		KindArray, KindStructOpen, KindStructClose, KindEntryOpen, KindEntryClose,
	)

	kindAlignment = map[TokenKind]int{
		KindByte: 1, KindSignature: 1, KindVariant: 1,
		KindInt16: 2, KindUint16: 2,
		KindInt32: 4, KindUint32: 4, KindBool: 4, KindString: 4, KindObjectPath: 4, KindArray: 4,
		KindInt64: 8, KindUint64: 8, KindFloat64: 8, KindStructOpen: 8, KindEntryOpen: 8,
	}
)

func (k TokenKind) isAtom() bool { return atomKinds.Has(k) }

func (k TokenKind) alignment() int {
	if n, ok := kindAlignment[k]; ok {
		return n
	}
	panic(fmt.Sprintf("no alignment for token kind %q", byte(k)))
}

// validSignatureByte reports whether b is one of the recognized
// signature alphabet characters.
func validSignatureByte(b byte) bool {
	return signatureAlphabet.Has(TokenKind(b))
}

// Token is one step of a signature-driven parse of a value's wire
// encoding, produced by [TokenIter.Next]. Exactly one of the typed
// fields is meaningful for a given Kind; see the Kind* constants for
// which.
type Token struct {
	Kind TokenKind

	Byte       byte
	Bool       bool
	Int16      int16
	Uint16     uint16
	Int32      int32
	Uint32     uint32
	Int64      int64
	Uint64     uint64
	Float64    float64
	String     string
	ObjectPath string
	Signature  string

	// ArraySignature is the element signature for a KindArray token
	// (e.g. "i" for an array of int32, "{sv}" for a vardict entry).
	ArraySignature []byte
	// ArrayData is the array's element payload: elemAlign padding has
	// already been skipped and is not included, matching the byte
	// count the length prefix on the wire declares.
	ArrayData []byte
}

// sentinel used internally between sigIter.next and TokenIter.Next;
// never returned to a TokenIter caller.
var errEndOfIteration = errors.New("dbus: end of token iteration")

type sigIter struct {
	data []byte
	pos  int
}

func newSigIter(sig []byte) sigIter { return sigIter{data: sig} }

type signatureToken struct {
	kind    TokenKind
	payload []byte
}

type nestingKind int

const (
	nestArray nestingKind = iota
	nestStruct
	nestEntry
	nestVariant
)

type nestingFrame struct {
	kind       nestingKind
	arrayMark  int    // nestArray: index of the 'a' byte in the signature
	entryCount int    // nestEntry: number of children seen so far
	savedSig   sigIter // nestVariant: the outer sigIter to resume after
}

type nestingStack struct {
	frames []nestingFrame
}

func (s *nestingStack) push(f nestingFrame) error {
	if len(s.frames) >= fragments.MaxNestingDepth {
		return fragments.ErrNestingDepthExceeded
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *nestingStack) pop() (nestingFrame, bool) {
	if len(s.frames) == 0 {
		return nestingFrame{}, false
	}
	f := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return f, true
}

func (s *nestingStack) last() (*nestingFrame, bool) {
	if len(s.frames) == 0 {
		return nil, false
	}
	return &s.frames[len(s.frames)-1], true
}

func (it *sigIter) nextByte(stack *nestingStack) (byte, error) {
	if it.pos == len(it.data) {
		if top, ok := stack.last(); !ok || top.kind == nestVariant {
			return 0, errEndOfIteration
		}
		return 0, fragments.ErrNestingMismatched
	}
	b := it.data[it.pos]
	it.pos++
	return b, nil
}

// closeArray unwinds every array frame stacked atop the current
// position (nested "aa..." prefixes collapse into a single Array
// token spanning all of them) and, once unwound, either emits the
// Array token or keeps scanning if that array is itself inside
// another array's suppressed signature scan.
func (it *sigIter) closeArray(markPos int, stack *nestingStack, arrayDepth *int) (signatureToken, error) {
	if top, ok := stack.last(); ok {
		switch top.kind {
		case nestArray:
			mark := top.arrayMark
			stack.pop()
			*arrayDepth--
			return it.closeArray(mark, stack, arrayDepth)
		case nestStruct:
			if *arrayDepth != 0 {
				return it.next(stack, arrayDepth)
			}
		case nestEntry:
			if top.entryCount == 2 {
				return signatureToken{}, fragments.ErrInvalidEntrySize
			}
			top.entryCount++
			if *arrayDepth != 0 {
				return it.next(stack, arrayDepth)
			}
		}
	}
	return signatureToken{kind: KindArray, payload: it.data[markPos+1 : it.pos]}, nil
}

// atValue handles a just-scanned primitive byte or close-bracket: it
// may close an enclosing array (via closeArray), account for a dict
// entry's child count, and decides whether to emit a token now or
// keep scanning because we are still inside a suppressed array scan.
func (it *sigIter) atValue(b byte, stack *nestingStack, arrayDepth *int) (signatureToken, error) {
	if top, ok := stack.last(); ok {
		switch top.kind {
		case nestArray:
			mark := top.arrayMark
			stack.pop()
			*arrayDepth--
			return it.closeArray(mark, stack, arrayDepth)
		case nestEntry:
			if top.entryCount == 2 {
				return signatureToken{}, fragments.ErrInvalidEntrySize
			}
			top.entryCount++
		}
	}
	if *arrayDepth == 0 {
		return signatureToken{kind: TokenKind(b)}, nil
	}
	return it.next(stack, arrayDepth)
}

func (it *sigIter) next(stack *nestingStack, arrayDepth *int) (signatureToken, error) {
	b, err := it.nextByte(stack)
	if err != nil {
		return signatureToken{}, err
	}
	switch b {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'v':
		return it.atValue(b, stack, arrayDepth)
	case 'a':
		mark := it.pos - 1
		*arrayDepth++
		if err := stack.push(nestingFrame{kind: nestArray, arrayMark: mark}); err != nil {
			return signatureToken{}, err
		}
		return it.next(stack, arrayDepth)
	case '{':
		if err := stack.push(nestingFrame{kind: nestEntry}); err != nil {
			return signatureToken{}, err
		}
		if *arrayDepth != 0 {
			return it.next(stack, arrayDepth)
		}
		return signatureToken{kind: KindEntryOpen}, nil
	case '(':
		if err := stack.push(nestingFrame{kind: nestStruct}); err != nil {
			return signatureToken{}, err
		}
		if *arrayDepth != 0 {
			return it.next(stack, arrayDepth)
		}
		return signatureToken{kind: KindStructOpen}, nil
	case '}':
		f, ok := stack.pop()
		if !ok || f.kind != nestEntry {
			return signatureToken{}, fragments.ErrNestingMismatched
		}
		if f.entryCount != 2 {
			return signatureToken{}, fragments.ErrInvalidEntrySize
		}
		return it.atValue(b, stack, arrayDepth)
	case ')':
		f, ok := stack.pop()
		if !ok || f.kind != nestStruct {
			return signatureToken{}, fragments.ErrNestingMismatched
		}
		return it.atValue(b, stack, arrayDepth)
	default:
		return signatureToken{}, fragments.ErrSignatureInvalidChar
	}
}

// TokenIter walks a value's wire encoding one token at a time, driven
// by its signature. It is the only way to consume a value (most
// importantly, a [Variant]'s contents) without knowing its Go type in
// advance.
type TokenIter struct {
	reader     *fragments.Reader
	sig        sigIter
	stack      nestingStack
	arrayDepth int
}

// NewTokenIter returns a TokenIter that parses data according to
// signature.
func NewTokenIter(signature string, data []byte) *TokenIter {
	return &TokenIter{
		reader: fragments.NewReader(data),
		sig:    newSigIter([]byte(signature)),
	}
}

// Reader exposes the iterator's underlying byte cursor, so a caller
// that has consumed a value in full can find out exactly how many
// bytes it occupied.
func (it *TokenIter) Reader() *fragments.Reader { return it.reader }

// Next returns the next token. ok is false once the value described
// by the iterator's top-level signature has been fully consumed; at
// that point err is nil and Token is the zero value. A [Token] with
// Kind == [KindVariantClose] marks the end of a variant's content,
// the same way [KindStructClose]/[KindEntryClose] mark the end of a
// struct or dict entry — callers recursing through a value's shape
// should treat it as a closing delimiter, not as EOF.
func (it *TokenIter) Next() (tok Token, err error, ok bool) {
	st, sigErr := it.sig.next(&it.stack, &it.arrayDepth)
	if sigErr != nil {
		if sigErr != errEndOfIteration {
			return Token{}, sigErr, false
		}
		f, hasFrame := it.stack.pop()
		if !hasFrame || f.kind != nestVariant {
			return Token{}, nil, false
		}
		it.sig = f.savedSig
		return Token{Kind: KindVariantClose}, nil, true
	}

	switch st.kind {
	case KindByte:
		v, err := it.reader.ReadByte()
		return Token{Kind: KindByte, Byte: v}, err, err == nil
	case KindBool:
		v, err := it.reader.ReadUint32()
		return Token{Kind: KindBool, Bool: v != 0}, err, err == nil
	case KindInt16:
		v, err := it.reader.ReadUint16()
		return Token{Kind: KindInt16, Int16: int16(v)}, err, err == nil
	case KindUint16:
		v, err := it.reader.ReadUint16()
		return Token{Kind: KindUint16, Uint16: v}, err, err == nil
	case KindInt32:
		v, err := it.reader.ReadUint32()
		return Token{Kind: KindInt32, Int32: int32(v)}, err, err == nil
	case KindUint32:
		v, err := it.reader.ReadUint32()
		return Token{Kind: KindUint32, Uint32: v}, err, err == nil
	case KindInt64:
		v, err := it.reader.ReadUint64()
		return Token{Kind: KindInt64, Int64: int64(v)}, err, err == nil
	case KindUint64:
		v, err := it.reader.ReadUint64()
		return Token{Kind: KindUint64, Uint64: v}, err, err == nil
	case KindFloat64:
		v, err := it.reader.ReadUint64()
		return Token{Kind: KindFloat64, Float64: math.Float64frombits(v)}, err, err == nil
	case KindString:
		v, err := it.reader.ReadStringLike()
		return Token{Kind: KindString, String: v}, err, err == nil
	case KindObjectPath:
		v, err := it.reader.ReadStringLike()
		return Token{Kind: KindObjectPath, ObjectPath: v}, err, err == nil
	case KindSignature:
		v, err := it.reader.ReadSignatureLike()
		return Token{Kind: KindSignature, Signature: v}, err, err == nil
	case KindArray:
		n, err := it.reader.ReadUint32()
		if err != nil {
			return Token{}, err, false
		}
		elemAlign := 1
		if len(st.payload) > 0 {
			elemAlign = TokenKind(st.payload[0]).alignment()
		}
		if err := it.reader.Align(elemAlign); err != nil {
			return Token{}, err, false
		}
		data, err := it.reader.ReadBytes(int(n))
		if err != nil {
			return Token{}, err, false
		}
		return Token{Kind: KindArray, ArraySignature: st.payload, ArrayData: data}, nil, true
	case KindStructOpen:
		if err := it.reader.Align(8); err != nil {
			return Token{}, err, false
		}
		return Token{Kind: KindStructOpen}, nil, true
	case KindStructClose:
		return Token{Kind: KindStructClose}, nil, true
	case KindEntryOpen:
		if err := it.reader.Align(8); err != nil {
			return Token{}, err, false
		}
		return Token{Kind: KindEntryOpen}, nil, true
	case KindEntryClose:
		return Token{Kind: KindEntryClose}, nil, true
	case KindVariant:
		sig, err := it.reader.ReadSignatureLike()
		if err != nil {
			return Token{}, err, false
		}
		saved := it.sig
		it.sig = newSigIter([]byte(sig))
		if err := it.stack.push(nestingFrame{kind: nestVariant, savedSig: saved}); err != nil {
			return Token{}, err, false
		}
		return Token{Kind: KindVariant}, nil, true
	}
	panic("unreachable token kind")
}

// validateSignatureSyntax checks that sig is syntactically well
// formed: every byte is in the signature alphabet, composite brackets
// balance, and nesting never exceeds [fragments.MaxNestingDepth].
func validateSignatureSyntax(sig []byte) error {
	for _, b := range sig {
		if !validSignatureByte(b) {
			return fragments.ErrSignatureInvalidChar
		}
	}
	it := newSigIter(sig)
	var stack nestingStack
	depth := 0
	for {
		_, err := it.next(&stack, &depth)
		if err == errEndOfIteration {
			break
		}
		if err != nil {
			return err
		}
	}
	if len(stack.frames) != 0 {
		return fragments.ErrNestingMismatched
	}
	return nil
}
