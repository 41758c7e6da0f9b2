package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armandparser/gofast-cache/internal/protocol"
	"github.com/armandparser/gofast-cache/internal/store"
)

func newDispatcher() *Dispatcher {
	return New(store.New(store.Config{}, nil), 1<<20, 4096, "1.0.0-test")
}

func mustResponse(t *testing.T, r protocol.Result, out []byte) string {
	t.Helper()
	require.Equal(t, protocol.KindResponse, r.Kind)
	return string(out[:r.ResponseLen])
}

func TestMemcachedSetGetEndToEnd(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 4096)
	in := make([]byte, 64)
	copy(in, "set foo 0 0 5\r\nhello\r\n")
	in = in[:len("set foo 0 0 5\r\nhello\r\n")]

	r := d.Process(Memcached, in, out)
	assert.Equal(t, "STORED\r\n", mustResponse(t, r, out))

	in2 := []byte("get foo\r\n")
	r2 := d.Process(Memcached, in2, out)
	assert.Equal(t, "VALUE foo 0 5\r\nhello\r\nEND\r\n", mustResponse(t, r2, out))
}

func TestMemcachedAddAfterSetIsNotStored(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 4096)
	d.Process(Memcached, []byte("set foo 0 0 5\r\nhello\r\n"), out)

	r := d.Process(Memcached, []byte("add foo 0 0 3\r\nbye\r\n"), out)
	assert.Equal(t, "NOT_STORED\r\n", mustResponse(t, r, out))

	r2 := d.Process(Memcached, []byte("get foo\r\n"), out)
	assert.Equal(t, "VALUE foo 0 5\r\nhello\r\nEND\r\n", mustResponse(t, r2, out))
}

func TestMemcachedCasFlow(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 4096)
	d.Process(Memcached, []byte("set foo 0 0 5\r\nhello\r\n"), out)

	it, ok := d.Store.Get("foo")
	require.True(t, ok)
	tok := it.CAS

	bad := []byte("cas foo 0 0 5 999999\r\nworld\r\n")
	r := d.Process(Memcached, bad, out)
	assert.Equal(t, "EXISTS\r\n", mustResponse(t, r, out))

	good := []byte("cas foo 0 0 5 " + itoa(int(tok)) + "\r\nworld\r\n")
	r2 := d.Process(Memcached, good, out)
	assert.Equal(t, "STORED\r\n", mustResponse(t, r2, out))
}

func TestMemcachedOversizedValueIsClientError(t *testing.T) {
	// Whole command already buffered: the check fires on the Complete path.
	d := New(store.New(store.Config{}, nil), 4, 64, "test")
	out := make([]byte, 256)
	in := []byte("set foo 0 0 5\r\nhello\r\n")
	r := d.Process(Memcached, in, out)
	assert.Equal(t, protocol.KindResponse, r.Kind)
	assert.Contains(t, string(out[:r.ResponseLen]), "CLIENT_ERROR")
}

func TestMemcachedOversizedValuePartialBufferSkipsPayload(t *testing.T) {
	// Only the header has arrived yet: the check fires on the NeedData
	// path and tells the runtime how many payload bytes to discard.
	d := New(store.New(store.Config{}, nil), 4, 64, "test")
	out := make([]byte, 256)
	header := []byte("set foo 0 0 5\r\n")
	r := d.Process(Memcached, header, out)
	assert.Equal(t, protocol.KindResponse, r.Kind)
	assert.Contains(t, string(out[:r.ResponseLen]), "CLIENT_ERROR")
	assert.Equal(t, len("hello")+2, r.SkipBytes)
}

func TestMemcachedKeyTooLong(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 256)
	longKey := make([]byte, 251)
	for i := range longKey {
		longKey[i] = 'a'
	}
	in := []byte("get " + string(longKey) + "\r\n")
	r := d.Process(Memcached, in, out)
	assert.Contains(t, string(out[:r.ResponseLen]), "CLIENT_ERROR")
}

func TestRESPSetGetDel(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 4096)

	r := d.Process(RESP, []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"), out)
	assert.Equal(t, "+OK\r\n", mustResponse(t, r, out))

	r2 := d.Process(RESP, []byte("*2\r\n$3\r\nGET\r\n$1\r\nk\r\n"), out)
	assert.Equal(t, "$1\r\nv\r\n", mustResponse(t, r2, out))

	r3 := d.Process(RESP, []byte("*2\r\n$3\r\nDEL\r\n$1\r\nk\r\n"), out)
	assert.Equal(t, ":1\r\n", mustResponse(t, r3, out))
}

func TestRESPSetNXXX(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 4096)

	r := d.Process(RESP, []byte("*5\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n$2\r\nNX\r\n$2\r\nXX\r\n"), out)
	assert.Contains(t, mustResponse(t, r, out), "ERR")

	// k already exists -> SET k v NX must no-op and return a null bulk.
	d.Process(RESP, []byte("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"), out)
	r2 := d.Process(RESP, []byte("*4\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n$2\r\nNX\r\n"), out)
	assert.Equal(t, "$-1\r\n", mustResponse(t, r2, out))

	// m doesn't exist -> SET m v XX must no-op and return a null bulk.
	r3 := d.Process(RESP, []byte("*4\r\n$3\r\nSET\r\n$1\r\nm\r\n$1\r\nv\r\n$2\r\nXX\r\n"), out)
	assert.Equal(t, "$-1\r\n", mustResponse(t, r3, out))
}

func TestRESPUnknownCommand(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 256)
	r := d.Process(RESP, []byte("*1\r\n$4\r\nNOPE\r\n"), out)
	assert.Equal(t, "-ERR unknown command 'NOPE'\r\n", mustResponse(t, r, out))
}

func TestPingProtocol(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 256)
	r := d.Process(Ping, []byte("PING hi\r\n"), out)
	assert.Equal(t, "PONG hi\r\n", mustResponse(t, r, out))
}

func TestEchoProtocol(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 256)
	r := d.Process(Echo, []byte("5\r\nhello"), out)
	assert.Equal(t, "5\r\nhello", mustResponse(t, r, out))
}

func TestEchoBadLength(t *testing.T) {
	d := newDispatcher()
	out := make([]byte, 256)
	r := d.Process(Echo, []byte("nope\r\n"), out)
	assert.Contains(t, mustResponse(t, r, out), "ERROR")
}
