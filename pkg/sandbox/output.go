package sandbox

import "sync"

// capBuffer captures a stream up to a byte cap. Writes past the cap are
// discarded but still reported as consumed so the producing pipe never
// blocks. An optional tee receives exactly the retained bytes, so streamed
// frames match the stored output.
type capBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int64
	tee func([]byte)
}

func newCapBuffer(max int64, tee func([]byte)) *capBuffer {
	return &capBuffer{max: max, tee: tee}
}

func (b *capBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	remain := b.max - int64(len(b.buf))
	var kept []byte
	if remain > 0 {
		n := int64(len(p))
		if n > remain {
			n = remain
		}
		kept = p[:n]
		b.buf = append(b.buf, kept...)
	}
	b.mu.Unlock()

	if b.tee != nil && len(kept) > 0 {
		b.tee(kept)
	}
	return len(p), nil
}

func (b *capBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}
