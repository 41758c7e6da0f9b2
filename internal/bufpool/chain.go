package bufpool

// Chain is an ordered list of pool buffers representing one logical byte
// sequence that may be larger than a single buffer. The last buffer may be
// partially filled; every earlier buffer is always full.
type Chain struct {
	bufs []Index
	// length is the logical length of the chain, <= len(bufs)*pool.BufSize().
	length int
}

// NewChain returns an empty chain; call Append to grow it.
func NewChain() *Chain { return &Chain{} }

// Len reports the chain's logical length.
func (c *Chain) Len() int { return c.length }

// NumBuffers reports how many pool buffers back the chain.
func (c *Chain) NumBuffers() int { return len(c.bufs) }

// Clear resets the logical length without releasing buffers, so the same
// backing buffers can be reused for the next value on this connection.
func (c *Chain) Clear() { c.length = 0 }

// Append writes data into the chain's tail buffer, allocating new buffers
// from pool as the tail fills. It fails with ErrExhausted if the pool runs
// dry partway through; buffers already appended to the chain remain owned
// by the chain (the caller must still Release on error).
func (c *Chain) Append(data []byte, pool *Pool) error {
	size := pool.BufSize()
	for len(data) > 0 {
		bufIdx := c.length / size
		if bufIdx >= len(c.bufs) {
			idx, err := pool.Alloc()
			if err != nil {
				return err
			}
			c.bufs = append(c.bufs, idx)
		}
		tail := pool.Get(c.bufs[bufIdx])
		off := c.length % size
		n := copy(tail[off:], data)
		data = data[n:]
		c.length += n
	}
	return nil
}

// AsContiguous returns a borrowed slice for single-buffer chains (zero-copy)
// or a freshly assembled copy otherwise.
func (c *Chain) AsContiguous(pool *Pool) []byte {
	if len(c.bufs) == 0 {
		return nil
	}
	if len(c.bufs) == 1 {
		return pool.Get(c.bufs[0])[:c.length]
	}
	out := make([]byte, c.length)
	off := 0
	size := pool.BufSize()
	for i, idx := range c.bufs {
		buf := pool.Get(idx)
		n := size
		if i == len(c.bufs)-1 {
			n = c.length - off
		}
		copy(out[off:], buf[:n])
		off += n
	}
	return out
}

// Chunks returns the chain's buffers as a slice of byte slices, each sized
// to its logical contribution (the last may be short), for scatter-gather
// writes via writev.
func (c *Chain) Chunks(pool *Pool) [][]byte {
	if len(c.bufs) == 0 {
		return nil
	}
	size := pool.BufSize()
	out := make([][]byte, len(c.bufs))
	off := 0
	for i, idx := range c.bufs {
		buf := pool.Get(idx)
		n := size
		if i == len(c.bufs)-1 {
			n = c.length - off
		}
		out[i] = buf[:n]
		off += n
	}
	return out
}

// IOSlices is like Chunks but resumable: startOffset bytes (already written
// by a prior partial write) are skipped across the chunk boundaries.
func (c *Chain) IOSlices(pool *Pool, startOffset int) [][]byte {
	chunks := c.Chunks(pool)
	skip := startOffset
	out := chunks[:0:0]
	for _, ch := range chunks {
		if skip >= len(ch) {
			skip -= len(ch)
			continue
		}
		out = append(out, ch[skip:])
		skip = 0
	}
	return out
}

// Release returns every buffer the chain holds back to pool and empties the
// chain. Safe to call on an already-empty chain.
func (c *Chain) Release(pool *Pool) {
	for _, idx := range c.bufs {
		pool.Free(idx)
	}
	c.bufs = nil
	c.length = 0
}

// TakeBuffers transfers ownership of the chain's buffer indices to the
// caller and empties the chain without freeing them — used when a chain's
// buffers are being handed to another owner (e.g. a write chain built from
// a read chain) rather than released to the pool.
func (c *Chain) TakeBuffers() []Index {
	bufs := c.bufs
	c.bufs = nil
	c.length = 0
	return bufs
}
