package transport

import (
	"sync"
)

// bufferSize is the largest datagram the transport will read, which is the
// maximum mDNS packet size including IP and UDP headers.
const bufferSize = 9000

var buffers = sync.Pool{
	New: func() interface{} {
		return make([]byte, bufferSize)
	},
}

// getBuffer fetches a buffer from the buffer pool.
func getBuffer() []byte {
	return buffers.Get().([]byte)
}

// putBuffer returns a buffer to the buffer pool.
func putBuffer(buf []byte) {
	if cap(buf) >= bufferSize {
		buffers.Put(buf[:bufferSize])
	}
}
