// Package bufpool implements the fixed-count, fixed-size buffer slab shared
// by a single worker's connections. No allocation happens on the hot path:
// the pool is sized once at startup and exhaustion is reported, never queued.
package bufpool

import "errors"

// ErrExhausted is returned when the free list has no indices left.
var ErrExhausted = errors.New("bufpool: exhausted")

// Index identifies one buffer slot within a Pool.
type Index int32

const noIndex Index = -1

// Pool is a slab of N fixed-size buffers plus a LIFO free list. It is not
// safe for concurrent use across goroutines; each worker owns exactly one.
type Pool struct {
	bufs []byte
	size int
	free []Index
}

// New allocates count buffers of size bytes each, all initially free.
func New(count, size int) *Pool {
	p := &Pool{
		bufs: make([]byte, count*size),
		size: size,
		free: make([]Index, count),
	}
	for i := range p.free {
		// reverse order so Alloc() hands out index 0 first, matching a
		// plain stack-of-slots mental model.
		p.free[i] = Index(count - 1 - i)
	}
	return p
}

// BufSize returns the fixed size of every buffer in the pool.
func (p *Pool) BufSize() int { return p.size }

// Alloc pops one free index, or reports exhaustion.
func (p *Pool) Alloc() (Index, error) {
	if len(p.free) == 0 {
		return noIndex, ErrExhausted
	}
	n := len(p.free) - 1
	idx := p.free[n]
	p.free = p.free[:n]
	return idx, nil
}

// AllocMany allocates n buffers all-or-nothing: either all n indices are
// returned, or none are (and the free list is left untouched).
func (p *Pool) AllocMany(n int) ([]Index, error) {
	if len(p.free) < n {
		return nil, ErrExhausted
	}
	out := make([]Index, n)
	start := len(p.free) - n
	copy(out, p.free[start:])
	p.free = p.free[:start]
	return out, nil
}

// Free returns idx to the pool. Returning an index still referenced by a
// connection or chain is undefined behavior; callers must ensure ownership
// has been fully released first (see Chain.Release and Chain.TakeBuffers).
func (p *Pool) Free(idx Index) {
	p.free = append(p.free, idx)
}

// Get returns the buffer slice for idx.
func (p *Pool) Get(idx Index) []byte {
	off := int(idx) * p.size
	return p.bufs[off : off+p.size]
}

// Available reports how many buffers are currently free, for backpressure
// decisions (e.g. rejecting a new connection when the write pool is dry).
func (p *Pool) Available() int { return len(p.free) }
