package raster

import (
	"bytes"
	"fmt"
	"io"
	"net"
)

// View is a read-only, contiguous view over the bytes of a raster container.
// Every input representation is collapsed into a View once, at the boundary,
// so the decoder never branches on where the bytes came from.
type View struct {
	data []byte
}

// ViewBytes copies b into a new View. The caller keeps ownership of b.
func ViewBytes(b []byte) View {
	data := make([]byte, len(b))
	copy(data, b)
	return View{data: data}
}

// ViewReader drains r into a View.
func ViewReader(r io.Reader) (View, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return View{}, fmt.Errorf("failed to read raster source: %w", err)
	}
	return View{data: buf.Bytes()}, nil
}

// ViewBuffers joins non-contiguous chunks into a single View.
func ViewBuffers(chunks net.Buffers) View {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	data := make([]byte, 0, size)
	for _, c := range chunks {
		data = append(data, c...)
	}
	return View{data: data}
}

func (v View) Len() int {
	return len(v.data)
}

// ReadAt implements io.ReaderAt over the view.
func (v View) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= int64(len(v.data)) {
		return 0, io.EOF
	}
	n := copy(p, v.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Reader returns a fresh reader positioned at the start of the view.
func (v View) Reader() io.Reader {
	return bytes.NewReader(v.data)
}
