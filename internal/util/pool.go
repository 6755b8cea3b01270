package util

import (
	"sync"
)

// BufferPool provides reusable byte buffers to reduce GC pressure
// during large file operations. Buffers are securely zeroed before
// being returned to the pool.
type BufferPool struct {
	pool sync.Pool
	size int
}

// NewBufferPool creates a new buffer pool with the specified buffer size.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				b := make([]byte, size)
				return &b
			},
		},
	}
}

// Get retrieves a buffer from the pool.
// The buffer contents are undefined and should be overwritten.
func (p *BufferPool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put returns a buffer to the pool after securely zeroing it.
// The buffer should not be used after calling Put.
func (p *BufferPool) Put(b []byte) {
	if len(b) != p.size {
		// Don't return mismatched buffers to avoid corruption
		return
	}
	// Secure zero before returning to pool
	secureZeroBytes(b)
	p.pool.Put(&b)
}

// secureZeroBytes zeros a byte slice in a way that won't be optimized away.
func secureZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// StagePool is the shared pool of DefaultBufferSize buffers used by the
// codec's pipe-bridged stages, so their memory stays O(stages x buffer)
// regardless of how many bytes flow through a run.
var StagePool = NewBufferPool(DefaultBufferSize)

// GetStageBuffer gets a DefaultBufferSize buffer from the shared pool.
func GetStageBuffer() []byte {
	return StagePool.Get()
}

// PutStageBuffer returns a DefaultBufferSize buffer to the shared pool.
func PutStageBuffer(b []byte) {
	StagePool.Put(b)
}
