package fragments_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mtsonder/dbuswire/fragments"
)

func runWriter(t *testing.T, build func(fragments.Writer)) []byte {
	t.Helper()
	var cw fragments.CountingWriter
	build(&cw)

	sw := fragments.NewSpanWriter(cw.Position())
	build(sw)
	return sw.Buf
}

func TestWriterPrimitives(t *testing.T) {
	tests := []struct {
		name  string
		build func(fragments.Writer)
		want  []byte
	}{
		{
			"raw bytes",
			func(w fragments.Writer) { w.WriteBytes([]byte{1, 2, 3}) },
			[]byte{1, 2, 3},
		},
		{
			"uint16",
			func(w fragments.Writer) { fragments.WriteUint16(w, 0x0001) },
			[]byte{0x01, 0x00},
		},
		{
			"uint32 alignment",
			func(w fragments.Writer) {
				w.WriteByte(1)
				fragments.WriteUint32(w, 2)
			},
			[]byte{1, 0, 0, 0, 2, 0, 0, 0},
		},
		{
			"uint64 alignment",
			func(w fragments.Writer) {
				w.WriteByte(1)
				fragments.WriteUint64(w, 2)
			},
			[]byte{1, 0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0},
		},
		{
			"string",
			func(w fragments.Writer) { fragments.WriteString(w, "foo") },
			[]byte{3, 0, 0, 0, 'f', 'o', 'o', 0},
		},
		{
			"signature",
			func(w fragments.Writer) {
				if err := fragments.WriteSignature(w, "ai"); err != nil {
					t.Fatal(err)
				}
			},
			[]byte{2, 'a', 'i', 0},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := runWriter(t, tc.build)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("wrong bytes (-want +got):\n%s", diff)
			}
		})
	}
}

func TestWriterArray(t *testing.T) {
	// array of uint64: length(4) + 4 bytes padding to 8 + 1 element.
	build := func(w fragments.Writer) {
		fragments.WriteArray(w, 8, func() error {
			fragments.WriteUint64(w, 2)
			return nil
		})
	}
	got := runWriter(t, build)
	want := []byte{
		0x08, 0x00, 0x00, 0x00, // length = 8
		0x00, 0x00, 0x00, 0x00, // padding to 8
		0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // element
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("wrong bytes (-want +got):\n%s", diff)
	}
}

func TestInsertUint32(t *testing.T) {
	sw := fragments.NewSpanWriter(8)
	pos := sw.SkipAligned(4)
	sw.WriteBytes([]byte{1, 2, 3, 4})
	fragments.InsertUint32(sw, pos, 0xdeadbeef)

	want := []byte{0xef, 0xbe, 0xad, 0xde, 1, 2, 3, 4}
	if fragments.HostEndianFlag() != 'l' {
		// Big-endian host: the inserted value's byte pattern differs.
		want = []byte{0xde, 0xad, 0xbe, 0xef, 1, 2, 3, 4}
	}
	if diff := cmp.Diff(want, sw.Buf); diff != "" {
		t.Errorf("wrong bytes (-want +got):\n%s", diff)
	}
}

func TestInsertUint32PanicsOnCountingWriter(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic calling InsertUint32 on a CountingWriter")
		}
	}()
	var cw fragments.CountingWriter
	fragments.InsertUint32(&cw, 0, 1)
}
