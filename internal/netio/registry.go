// Package netio holds the pieces shared by both runtime backends: the
// slab-indexed connection registry and the operation token table that
// correlates completion-ring tags back to in-flight operations.
package netio

import (
	"errors"
	"sync"

	"github.com/armandparser/gofast-cache/internal/bufpool"
)

// ErrRegistryFull is returned when the registry is already holding its
// configured maximum number of connections.
var ErrRegistryFull = errors.New("netio: connection registry full")

// ConnID is a slab index identifying a registered connection. It is stable
// for the lifetime of the connection and is reused once the connection is
// removed.
type ConnID int32

// NoBufIdx marks an OutItem whose Data is heap-owned rather than backed by a
// write-pool buffer (e.g. a KindLargeResponse formatted straight from the
// store, such as a stats dump) — nothing to release once it's been sent.
const NoBufIdx int32 = -1

// OutItem is one response frame queued for write but not yet (fully) sent.
// Sent tracks how many of Data's bytes have already reached the socket, so a
// short write or EAGAIN can resume exactly where it left off instead of
// rebuilding or re-sending the frame.
type OutItem struct {
	Data   []byte
	BufIdx int32
	Sent   int
}

// Conn is the per-connection bookkeeping the event loops need: the raw fd,
// the protocol it speaks, and its partially-assembled input/output state.
//
// The read side normally accumulates directly in the fixed pool buffer at
// BufIdx (InLen tracks how many of its bytes are valid) so that waiting for
// more of a command never grows the heap. When a value is too large to fit
// in one buffer, Chain takes over: reads keep landing in the BufIdx buffer
// as scratch space but are appended into Chain, which draws additional
// buffers from the same pool as needed (spec §4.1/§4.4, "Buffer Chain").
//
// The write side is an ordered queue of not-yet-flushed response frames:
// OutQueue preserves the order responses were produced in, which is what
// lets a readiness worker resume a stalled write without reordering frames
// behind it, and what lets a completion worker keep exactly one send in
// flight per connection instead of racing independent CQEs.
type Conn struct {
	FD       int
	Protocol int
	// BufIdx is the pool buffer backing this connection's read side.
	BufIdx int32
	// InLen is how many bytes at the front of the BufIdx buffer are valid,
	// unconsumed input (non-chain mode only).
	InLen int
	// Chain is non-nil while assembling a value that spans more than one
	// pool buffer; see KindNeedChain in package protocol.
	Chain *bufpool.Chain
	// ChainNeed is the total byte count (header + payload) Chain must reach
	// before the command it's assembling can be parsed again.
	ChainNeed int
	// OutQueue holds response frames produced but not yet fully written.
	OutQueue []OutItem
	// Writing marks a connection with output pending: on the readiness
	// backend it means epoll is currently armed for EPOLLOUT; on the
	// completion backend it means an OpWrite is in flight.
	Writing bool
	// Closing marks a connection that should be torn down once its
	// in-flight operations complete.
	Closing bool
}

// Registry is a slab-indexed map of active connections: O(1) insert, get,
// and remove, with a hard cap on the number of live entries. It mirrors the
// teacher's goroutine-per-connection bookkeeping in server.go, generalized
// so a single-threaded event loop can look connections up by index instead
// of closing over a *net.Conn per goroutine.
type Registry struct {
	mu      sync.Mutex
	conns   []*Conn
	free    []ConnID
	maxSize int
	count   int
}

// NewRegistry creates a registry that holds at most maxSize connections.
func NewRegistry(maxSize int) *Registry {
	return &Registry{
		conns:   make([]*Conn, 0, maxSize),
		maxSize: maxSize,
	}
}

// Insert registers c and returns its slab index, or ErrRegistryFull if the
// registry is already at capacity.
func (r *Registry) Insert(c *Conn) (ConnID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.free) > 0 {
		idx := r.free[len(r.free)-1]
		r.free = r.free[:len(r.free)-1]
		r.conns[idx] = c
		r.count++
		return idx, nil
	}

	if r.count >= r.maxSize {
		return -1, ErrRegistryFull
	}

	r.conns = append(r.conns, c)
	r.count++
	return ConnID(len(r.conns) - 1), nil
}

// Get returns the connection at id, or nil if the slot is empty.
func (r *Registry) Get(id ConnID) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) < 0 || int(id) >= len(r.conns) {
		return nil
	}
	return r.conns[id]
}

// Remove frees id's slot for reuse.
func (r *Registry) Remove(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(id) < 0 || int(id) >= len(r.conns) || r.conns[id] == nil {
		return
	}
	r.conns[id] = nil
	r.free = append(r.free, id)
	r.count--
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
