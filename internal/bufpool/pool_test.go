package bufpool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAllocFree(t *testing.T) {
	p := New(2, 8)
	a, err := p.Alloc()
	require.NoError(t, err)
	b, err := p.Alloc()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = p.Alloc()
	assert.ErrorIs(t, err, ErrExhausted)

	p.Free(a)
	c, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, a, c)
}

func TestPoolAllocManyAllOrNothing(t *testing.T) {
	p := New(3, 4)
	_, err := p.AllocMany(4)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, p.Available())

	idxs, err := p.AllocMany(2)
	require.NoError(t, err)
	assert.Len(t, idxs, 2)
	assert.Equal(t, 1, p.Available())
}

func TestChainAppendSpansBuffers(t *testing.T) {
	p := New(4, 4)
	c := NewChain()
	require.NoError(t, c.Append([]byte("hello world!"), p))
	assert.Equal(t, 12, c.Len())
	assert.Equal(t, 3, c.NumBuffers())
	assert.Equal(t, []byte("hello world!"), c.AsContiguous(p))
}

func TestChainAppendExhausted(t *testing.T) {
	p := New(1, 4)
	c := NewChain()
	err := c.Append([]byte("too much data"), p)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestChainSingleBufferZeroCopy(t *testing.T) {
	p := New(2, 16)
	c := NewChain()
	require.NoError(t, c.Append([]byte("short"), p))
	got := c.AsContiguous(p)
	raw := p.Get(c.bufs[0])
	assert.Same(t, &got[0], &raw[0])
}

func TestChainReleaseReturnsBuffers(t *testing.T) {
	p := New(2, 4)
	c := NewChain()
	require.NoError(t, c.Append([]byte("abcdefg"), p))
	assert.Equal(t, 0, p.Available())
	c.Release(p)
	assert.Equal(t, 2, p.Available())
	assert.Equal(t, 0, c.Len())
}

func TestChainIOSlicesResume(t *testing.T) {
	p := New(3, 4)
	c := NewChain()
	require.NoError(t, c.Append([]byte("abcdefgh"), p))
	all := c.Chunks(p)
	assert.Equal(t, [][]byte{[]byte("abcd"), []byte("efgh")}, all)

	resumed := c.IOSlices(p, 5)
	assert.Equal(t, [][]byte{[]byte("fgh")}, resumed)
}

func TestChainClearReusesBuffers(t *testing.T) {
	p := New(2, 4)
	c := NewChain()
	require.NoError(t, c.Append([]byte("abcd"), p))
	assert.Equal(t, 1, p.Available())
	c.Clear()
	assert.Equal(t, 0, c.Len())
	require.NoError(t, c.Append([]byte("wxyz"), p))
	assert.Equal(t, 1, p.Available(), "Clear should let Append reuse the already-owned buffer")
}

func Test_assertSameBackingArray(t *testing.T) {
	// sanity check on the assert.Same helper's semantics used above
	b := []byte("x")
	assert.Same(t, &b[0], &b[0])
}
