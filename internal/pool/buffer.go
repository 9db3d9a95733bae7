package pool

import "sync"

// Buffers up to this size are kept by the pool; larger ones are left to the GC.
const maxPooledBuffer = 64 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 4096)
		return &b
	},
}

// GetBuffer returns a byte slice of length size.
func GetBuffer(size int) []byte {
	bp, _ := bufferPool.Get().(*[]byte)
	if bp == nil || cap(*bp) < size {
		return make([]byte, size)
	}

	return (*bp)[:size]
}

// PutBuffer returns b to the pool. b must not be used afterwards.
func PutBuffer(b []byte) {
	if cap(b) == 0 || cap(b) > maxPooledBuffer {
		return
	}

	b = b[:0]
	bufferPool.Put(&b)
}
