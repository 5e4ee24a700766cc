package pool

import "sync"

// BufferSize is the capacity of the scratch buffers handed out by GetBuffer.
// It holds one HDLC frame or a few encoded scan lines.
const BufferSize = 1024

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, BufferSize)
		return &b
	},
}

// GetBuffer returns an empty scratch buffer from the pool.
//
// Return back the buffer to the pool with PutBuffer.
func GetBuffer() *[]byte {
	b, _ := bufferPool.Get().(*[]byte)
	*b = (*b)[:0]

	return b
}

// PutBuffer returns buffer to the pool. Buffers that grew far beyond
// BufferSize are dropped.
//
// b cannot be accessed after returning to the pool.
func PutBuffer(b *[]byte) {
	if b == nil || cap(*b) > 16*BufferSize {
		return
	}
	bufferPool.Put(b)
}
