package api

import (
	"bytes"
	"sync"
)

// bufferPool reuses request body buffers across concurrent fetch workers
var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// getBuffer retrieves a reset buffer from the pool.
// Caller must call putBuffer() when done to return it to the pool.
func getBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// putBuffer returns a buffer to the pool for reuse.
// Oversized buffers are discarded instead of being held in memory.
func putBuffer(buf *bytes.Buffer) {
	const maxBufferSize = 16 * 1024 // 16KB
	if buf.Cap() <= maxBufferSize {
		bufferPool.Put(buf)
	}
}
