package hostfuncs

import (
	"bytes"
)

// DefaultMaxResponseBody limits HTTP response bodies delivered to guests
// (10MB). Keeps a hostile or chatty upstream from ballooning guest memory.
const DefaultMaxResponseBody = 10 * 1024 * 1024

// DefaultMaxRequestSize limits the size of incoming requests from guest
// memory (1MB). Prevents a component from triggering OOM by claiming huge
// request sizes.
const DefaultMaxRequestSize = 1 * 1024 * 1024

// BoundedBuffer is a bytes.Buffer wrapper that caps the amount of data
// retained. It implements io.Writer; writes past the limit are discarded
// and the Truncated flag is set.
type BoundedBuffer struct {
	buffer    bytes.Buffer
	limit     int
	Truncated bool
}

// NewBoundedBuffer creates a BoundedBuffer with the specified limit.
func NewBoundedBuffer(limit int) *BoundedBuffer {
	return &BoundedBuffer{limit: limit}
}

// Write implements io.Writer. It reports the full length written so
// callers like io.Copy do not fail with a short write.
func (b *BoundedBuffer) Write(p []byte) (n int, err error) {
	if b.buffer.Len() >= b.limit {
		b.Truncated = true
		return len(p), nil
	}

	remaining := b.limit - b.buffer.Len()
	if len(p) > remaining {
		b.Truncated = true
		n, err = b.buffer.Write(p[:remaining])
		if err != nil {
			return n, err
		}
		return len(p), nil
	}

	return b.buffer.Write(p)
}

// Bytes returns the retained data.
func (b *BoundedBuffer) Bytes() []byte {
	return b.buffer.Bytes()
}

// Len returns the amount of retained data.
func (b *BoundedBuffer) Len() int {
	return b.buffer.Len()
}
