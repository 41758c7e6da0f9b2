// Package readiness implements the readiness-polling runtime backend: a
// single-threaded epoll loop per worker, generalizing the teacher's
// goroutine-per-connection server.go into a goroutine-per-worker design
// that multiplexes many connections through one fd.
package readiness

import (
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/armandparser/gofast-cache/internal/bufpool"
	"github.com/armandparser/gofast-cache/internal/dispatch"
	"github.com/armandparser/gofast-cache/internal/netio"
	"github.com/armandparser/gofast-cache/internal/protocol"
)

const maxEvents = 256

// Worker owns one epoll instance and drives readiness events for every
// connection assigned to it. Multiple Workers run concurrently, each with
// its own listener fd bound via SO_REUSEPORT, so the kernel load-balances
// accepts across them without any cross-worker coordination.
type Worker struct {
	id        int
	epfd      int
	listener  *net.TCPListener
	proto     dispatch.Protocol
	pool      *bufpool.Pool // read-side buffers
	writePool *bufpool.Pool // write-side buffers; see DESIGN.md
	registry  *netio.Registry
	dispatch  *dispatch.Dispatcher
	log       *zap.Logger

	mu        sync.Mutex
	byFD      map[int]netio.ConnID
	stopCh    chan struct{}
	closeOnce sync.Once
}

// NewWorker creates a readiness worker bound to listener, serving proto.
// pool backs reads; writePool backs formatted responses so that neither
// direction ever allocates on the hot path.
func NewWorker(id int, listener *net.TCPListener, proto dispatch.Protocol, d *dispatch.Dispatcher, pool, writePool *bufpool.Pool, maxConns int, log *zap.Logger) (*Worker, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}

	lfd, err := listenerFD(listener)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, lfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(lfd)}); err != nil {
		unix.Close(epfd)
		return nil, err
	}

	return &Worker{
		id:        id,
		epfd:      epfd,
		listener:  listener,
		proto:     proto,
		pool:      pool,
		writePool: writePool,
		registry:  netio.NewRegistry(maxConns),
		dispatch:  d,
		log:       log,
		byFD:      make(map[int]netio.ConnID),
		stopCh:    make(chan struct{}),
	}, nil
}

// Run drives the epoll loop until Stop is called. It is meant to be the
// body of one goroutine per worker.
func (w *Worker) Run() error {
	lfd, err := listenerFD(w.listener)
	if err != nil {
		return err
	}

	events := make([]unix.EpollEvent, maxEvents)
	for {
		select {
		case <-w.stopCh:
			return nil
		default:
		}

		n, err := unix.EpollWait(w.epfd, events, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			ev := events[i].Events

			if fd == lfd {
				w.acceptAll(lfd)
				continue
			}
			if ev&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
				w.closeConn(fd)
				continue
			}
			// A connection can be simultaneously readable and ready for
			// more output (e.g. it just drained a stalled write and sent a
			// new pipelined command); service both rather than picking one
			// via a switch.
			if ev&unix.EPOLLOUT != 0 {
				if c, _ := w.lookupByFD(fd); c != nil {
					w.flushWrites(fd, c)
				}
			}
			if ev&unix.EPOLLIN != 0 {
				w.readReady(fd)
			}
		}
	}
}

// Stop signals Run to return and releases the epoll fd.
func (w *Worker) Stop() {
	w.closeOnce.Do(func() {
		close(w.stopCh)
		unix.Close(w.epfd)
	})
}

func (w *Worker) acceptAll(lfd int) {
	for {
		fd, _, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			w.log.Warn("accept failed", zap.Error(err))
			return
		}

		idx, err := w.pool.Alloc()
		if err != nil {
			w.log.Warn("buffer pool exhausted, dropping new connection", zap.Int("fd", fd))
			unix.Close(fd)
			continue
		}
		c := &netio.Conn{FD: fd, Protocol: int(w.proto), BufIdx: int32(idx)}
		connID, err := w.registry.Insert(c)
		if err != nil {
			w.log.Warn("connection registry full, dropping new connection", zap.Int("fd", fd))
			w.pool.Free(idx)
			unix.Close(fd)
			continue
		}

		ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
		if err := unix.EpollCtl(w.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			w.log.Warn("epoll_ctl add failed", zap.Error(err))
			w.registry.Remove(connID)
			w.pool.Free(idx)
			unix.Close(fd)
			continue
		}

		w.mu.Lock()
		w.byFD[fd] = connID
		w.mu.Unlock()
	}
}

func (w *Worker) readReady(fd int) {
	c, connID := w.lookupByFD(fd)
	if c == nil {
		return
	}

	if c.Chain != nil {
		w.readChain(fd, c, connID)
		return
	}

	buf := w.pool.Get(bufpool.Index(c.BufIdx))
	n, err := unix.Read(fd, buf[c.InLen:])
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		w.closeConnID(fd, connID)
		return
	}
	if n == 0 {
		w.closeConnID(fd, connID)
		return
	}
	c.InLen += n

	w.processInput(fd, c, connID, buf)
}

// readChain continues a chained read that spans more than one pool buffer:
// each new read lands in the connection's BufIdx buffer as scratch space
// and is immediately appended into the chain, so the only buffers ever
// touched still come from the pool.
func (w *Worker) readChain(fd int, c *netio.Conn, connID netio.ConnID) {
	scratch := w.pool.Get(bufpool.Index(c.BufIdx))
	n, err := unix.Read(fd, scratch)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		w.closeConnID(fd, connID)
		return
	}
	if n == 0 {
		w.closeConnID(fd, connID)
		return
	}
	if err := c.Chain.Append(scratch[:n], w.pool); err != nil {
		w.log.Warn("chain buffer pool exhausted, dropping connection", zap.Int("fd", fd))
		w.closeConnID(fd, connID)
		return
	}
	if c.Chain.Len() < c.ChainNeed {
		return
	}

	contiguous := c.Chain.AsContiguous(w.pool)
	wIdx, werr := w.writePool.Alloc()
	if werr != nil {
		w.closeConnID(fd, connID)
		return
	}
	wbuf := w.writePool.Get(wIdx)
	res := w.dispatch.Process(w.proto, contiguous, wbuf)

	leftoverStart := 0
	quit := false
	switch res.Kind {
	case protocol.KindQuit:
		w.writePool.Free(wIdx)
		quit = true
	case protocol.KindResponse:
		leftoverStart = res.Consumed + res.SkipBytes
		if res.ResponseLen > 0 {
			c.OutQueue = append(c.OutQueue, netio.OutItem{Data: wbuf[:res.ResponseLen], BufIdx: int32(wIdx)})
		} else {
			w.writePool.Free(wIdx)
		}
	case protocol.KindLargeResponse:
		w.writePool.Free(wIdx)
		leftoverStart = res.Consumed + res.SkipBytes
		c.OutQueue = append(c.OutQueue, netio.OutItem{Data: res.ResponseData, BufIdx: netio.NoBufIdx})
	default:
		w.writePool.Free(wIdx)
		w.closeConnID(fd, connID)
		return
	}

	leftover := contiguous[leftoverStart:]
	readBuf := w.pool.Get(bufpool.Index(c.BufIdx))
	c.InLen = copy(readBuf, leftover)
	c.Chain.Release(w.pool)
	c.Chain = nil
	c.ChainNeed = 0

	if quit {
		w.flushWrites(fd, c)
		w.closeConnID(fd, connID)
		return
	}

	if c.InLen > 0 {
		w.processInput(fd, c, connID, readBuf)
		return
	}
	w.flushWrites(fd, c)
}

// processInput parses and executes as many complete commands as are
// available in buf[:c.InLen], queuing their responses for write and
// compacting any unconsumed trailing bytes to the front of buf.
func (w *Worker) processInput(fd int, c *netio.Conn, connID netio.ConnID, buf []byte) {
	consumedTotal := 0
	for consumedTotal < c.InLen {
		input := buf[consumedTotal:c.InLen]
		wIdx, werr := w.writePool.Alloc()
		if werr != nil {
			w.closeConnID(fd, connID)
			return
		}
		wbuf := w.writePool.Get(wIdx)
		res := w.dispatch.Process(w.proto, input, wbuf)

		switch res.Kind {
		case protocol.KindNeedData:
			w.writePool.Free(wIdx)
			if consumedTotal == 0 && c.InLen == len(buf) {
				// The buffer is full and still not enough to parse even the
				// header: the command line itself exceeds one pool buffer.
				w.closeConnID(fd, connID)
				return
			}
			copy(buf, buf[consumedTotal:c.InLen])
			c.InLen -= consumedTotal
			w.flushWrites(fd, c)
			return

		case protocol.KindNeedChain:
			w.writePool.Free(wIdx)
			c.Chain = bufpool.NewChain()
			if err := c.Chain.Append(input, w.pool); err != nil {
				c.Chain = nil
				w.closeConnID(fd, connID)
				return
			}
			c.ChainNeed = res.CommandLen + res.ValueLen
			c.InLen = 0
			w.flushWrites(fd, c)
			return

		case protocol.KindQuit:
			w.writePool.Free(wIdx)
			w.flushWrites(fd, c)
			w.closeConnID(fd, connID)
			return

		case protocol.KindResponse:
			consumedTotal += res.Consumed + res.SkipBytes
			if res.ResponseLen > 0 {
				c.OutQueue = append(c.OutQueue, netio.OutItem{Data: wbuf[:res.ResponseLen], BufIdx: int32(wIdx)})
			} else {
				w.writePool.Free(wIdx)
			}

		case protocol.KindLargeResponse:
			w.writePool.Free(wIdx)
			consumedTotal += res.Consumed + res.SkipBytes
			c.OutQueue = append(c.OutQueue, netio.OutItem{Data: res.ResponseData, BufIdx: netio.NoBufIdx})

		default:
			w.writePool.Free(wIdx)
			w.closeConnID(fd, connID)
			return
		}
	}

	copy(buf, buf[consumedTotal:c.InLen])
	c.InLen -= consumedTotal
	w.flushWrites(fd, c)
}

// flushWrites drains c's output queue front-to-back. On a short write or
// EAGAIN it re-arms epoll for EPOLLOUT and returns instead of spinning the
// worker goroutine — the queue resumes exactly where it left off the next
// time this fd is writable (spec §5: "a worker never blocks except at the
// event-source wait").
func (w *Worker) flushWrites(fd int, c *netio.Conn) {
	for len(c.OutQueue) > 0 {
		item := &c.OutQueue[0]
		n, err := unix.Write(fd, item.Data[item.Sent:])
		if err != nil {
			if err == unix.EAGAIN {
				w.armWritable(fd, c)
				return
			}
			w.closeConn(fd)
			return
		}
		item.Sent += n
		if item.Sent < len(item.Data) {
			w.armWritable(fd, c)
			return
		}
		if item.BufIdx != netio.NoBufIdx {
			w.writePool.Free(bufpool.Index(item.BufIdx))
		}
		c.OutQueue = c.OutQueue[1:]
	}
	if c.Writing {
		w.disarmWritable(fd, c)
	}
}

func (w *Worker) armWritable(fd int, c *netio.Conn) {
	if c.Writing {
		return
	}
	c.Writing = true
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}
	if err := unix.EpollCtl(w.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		w.log.Warn("epoll_ctl mod (arm writable) failed", zap.Error(err))
	}
}

func (w *Worker) disarmWritable(fd int, c *netio.Conn) {
	c.Writing = false
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(w.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		w.log.Warn("epoll_ctl mod (disarm writable) failed", zap.Error(err))
	}
}

func (w *Worker) lookupByFD(fd int) (*netio.Conn, netio.ConnID) {
	w.mu.Lock()
	id, ok := w.byFD[fd]
	w.mu.Unlock()
	if !ok {
		return nil, -1
	}
	return w.registry.Get(id), id
}

func (w *Worker) closeConn(fd int) {
	_, id := w.lookupByFD(fd)
	w.closeConnID(fd, id)
}

func (w *Worker) closeConnID(fd int, id netio.ConnID) {
	unix.EpollCtl(w.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	unix.Close(fd)
	if id >= 0 {
		if c := w.registry.Get(id); c != nil {
			w.pool.Free(bufpool.Index(c.BufIdx))
			if c.Chain != nil {
				c.Chain.Release(w.pool)
			}
			for _, item := range c.OutQueue {
				if item.BufIdx != netio.NoBufIdx {
					w.writePool.Free(bufpool.Index(item.BufIdx))
				}
			}
		}
		w.registry.Remove(id)
	}
	w.mu.Lock()
	delete(w.byFD, fd)
	w.mu.Unlock()
}

func listenerFD(l *net.TCPListener) (int, error) {
	sc, err := l.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	var ctlErr error
	err = sc.Control(func(rawFD uintptr) {
		fd = int(rawFD)
		ctlErr = unix.SetNonblock(fd, true)
	})
	if err != nil {
		return 0, err
	}
	if ctlErr != nil {
		return 0, ctlErr
	}
	return fd, nil
}
