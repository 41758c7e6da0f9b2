package readiness

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/armandparser/gofast-cache/internal/bufpool"
	"github.com/armandparser/gofast-cache/internal/dispatch"
	"github.com/armandparser/gofast-cache/internal/store"
)

func TestWorkerServesPingOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	tl := ln.(*net.TCPListener)

	pool := bufpool.New(8, 4096)
	writePool := bufpool.New(8, 4096)
	d := dispatch.New(store.New(store.Config{}, nil), 1<<20, 4096, "test")
	w, err := NewWorker(0, tl, dispatch.Ping, d, pool, writePool, 8, zap.NewNop())
	require.NoError(t, err)
	go w.Run()
	defer w.Stop()

	conn, err := net.Dial("tcp", tl.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("PING hi\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "PONG hi\r\n", string(buf[:n]))
}
