package raster

import (
	"bytes"
	"io"
	"net"
	"testing"
)

func TestViewBytesCopies(t *testing.T) {
	src := []byte{1, 2, 3}
	v := ViewBytes(src)
	src[0] = 9

	got := make([]byte, 3)
	if _, err := v.ReadAt(got, 0); err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if got[0] != 1 {
		t.Errorf("view aliased caller buffer: got %v", got)
	}
}

func TestViewBuffersJoinsChunks(t *testing.T) {
	v := ViewBuffers(net.Buffers{{1, 2}, {}, {3}, {4, 5}})
	if v.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", v.Len())
	}
	got, _ := io.ReadAll(v.Reader())
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("joined = %v", got)
	}
}

func TestViewReadAt(t *testing.T) {
	v := ViewBytes([]byte("abcdef"))

	tests := []struct {
		name    string
		off     int64
		size    int
		want    string
		wantEOF bool
	}{
		{name: "middle", off: 2, size: 2, want: "cd"},
		{name: "tail short read", off: 4, size: 4, want: "ef", wantEOF: true},
		{name: "past end", off: 6, size: 1, want: "", wantEOF: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := make([]byte, tt.size)
			n, err := v.ReadAt(p, tt.off)
			if string(p[:n]) != tt.want {
				t.Errorf("read %q, want %q", p[:n], tt.want)
			}
			if (err == io.EOF) != tt.wantEOF {
				t.Errorf("err = %v, wantEOF %v", err, tt.wantEOF)
			}
		})
	}

	if _, err := v.ReadAt(make([]byte, 1), -1); err == nil {
		t.Error("expected error for negative offset")
	}
}
