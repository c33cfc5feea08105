package util

import (
	"errors"
	"sync"
)

// MaxRequestSize is the scratch-buffer capacity attached to every
// client connection (16 KiB).
const MaxRequestSize = 16 * 1024

// ErrPoolExhausted is returned by [BufPool.Get] when the pool already
// has its maximum number of buffers checked out.
var ErrPoolExhausted = errors.New("buffer pool exhausted")

// BufPool hands out fixed-size byte buffers, reusing returned ones via
// a sync.Pool.  When Max is positive at most Max buffers may be checked
// out at the same time.
type BufPool struct {
	size int
	max  int

	mu    sync.Mutex
	inUse int
	pool  sync.Pool
}

// NewBufPool returns a pool of size-byte buffers.  max <= 0 means the
// number of outstanding buffers is unbounded.
func NewBufPool(size, max int) *BufPool {
	p := &BufPool{size: size, max: max}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Get checks out a zeroed buffer.  Callers must return it with [Put].
func (p *BufPool) Get() (*[]byte, error) {
	p.mu.Lock()
	if p.max > 0 && p.inUse >= p.max {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.inUse++
	p.mu.Unlock()

	buf := p.pool.Get().(*[]byte)
	clear(*buf)
	return buf, nil
}

// Put returns a buffer to the pool.  Passing nil is a no-op.
func (p *BufPool) Put(buf *[]byte) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	p.inUse--
	p.mu.Unlock()
	p.pool.Put(buf)
}

// InUse reports how many buffers are currently checked out.
func (p *BufPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Size returns the capacity of each buffer.
func (p *BufPool) Size() int { return p.size }
