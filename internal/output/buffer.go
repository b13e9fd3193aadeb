package output

import (
	"fmt"
	"io"
)

// Buffer is an in-memory io.WriteSeeker. The WAV encoder seeks back to patch
// chunk sizes on Close, which bytes.Buffer cannot do.
type Buffer struct {
	buf    []byte
	offset int
}

func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity)}
}

func (b *Buffer) Write(p []byte) (int, error) {
	end := b.offset + len(p)
	if end > cap(b.buf) {
		grown := make([]byte, len(b.buf), 2*cap(b.buf)+len(p))
		copy(grown, b.buf)
		b.buf = grown
	}
	if end > len(b.buf) {
		b.buf = b.buf[:end]
	}
	copy(b.buf[b.offset:], p)
	b.offset = end
	return len(p), nil
}

func (b *Buffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.offset) + offset
	case io.SeekEnd:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 || abs > int64(len(b.buf)) {
		return 0, fmt.Errorf("seek to %d out of range [0,%d]", abs, len(b.buf))
	}
	b.offset = int(abs)
	return abs, nil
}

// Bytes returns everything written so far. The slice aliases the buffer.
func (b *Buffer) Bytes() []byte { return b.buf }

func (b *Buffer) Len() int { return len(b.buf) }
