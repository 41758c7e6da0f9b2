package netio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInsertGetRemove(t *testing.T) {
	r := NewRegistry(2)

	id, err := r.Insert(&Conn{FD: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 10, r.Get(id).FD)

	r.Remove(id)
	assert.Equal(t, 0, r.Count())
	assert.Nil(t, r.Get(id))
}

func TestRegistryHardCap(t *testing.T) {
	r := NewRegistry(1)
	_, err := r.Insert(&Conn{FD: 1})
	require.NoError(t, err)

	_, err = r.Insert(&Conn{FD: 2})
	assert.ErrorIs(t, err, ErrRegistryFull)
}

func TestRegistryReusesFreedSlots(t *testing.T) {
	r := NewRegistry(1)
	id, err := r.Insert(&Conn{FD: 1})
	require.NoError(t, err)
	r.Remove(id)

	id2, err := r.Insert(&Conn{FD: 2})
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, 2, r.Get(id2).FD)
}

func TestTokenTableAllocResolveRelease(t *testing.T) {
	tt := NewTokenTable(4)
	tag := tt.Alloc(Token{Kind: OpRead, Conn: 3, BufIdx: 7})

	got, ok := tt.Resolve(tag)
	require.True(t, ok)
	assert.Equal(t, OpRead, got.Kind)
	assert.EqualValues(t, 3, got.Conn)
	assert.EqualValues(t, 7, got.BufIdx)

	tt.Release(tag)
	_, ok = tt.Resolve(tag)
	assert.False(t, ok)
}

func TestTokenTableReusesReleasedTags(t *testing.T) {
	tt := NewTokenTable(4)
	tag1 := tt.Alloc(Token{Kind: OpAccept})
	tt.Release(tag1)

	tag2 := tt.Alloc(Token{Kind: OpWrite})
	assert.Equal(t, tag1, tag2)
	got, ok := tt.Resolve(tag2)
	require.True(t, ok)
	assert.Equal(t, OpWrite, got.Kind)
}
