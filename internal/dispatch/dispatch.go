// Package dispatch implements the synchronous "process one buffer" request
// dispatcher that spec §4.3 puts between the event loop and the protocol
// codecs: it never blocks, never performs I/O, and hides protocol choice
// from the event loop behind one Process entry point.
package dispatch

import (
	"github.com/armandparser/gofast-cache/internal/protocol"
	"github.com/armandparser/gofast-cache/internal/store"
)

// Protocol tags which codec a connection speaks.
type Protocol int

const (
	Memcached Protocol = iota
	RESP
	Ping
	Echo
)

// Dispatcher routes one worker's connections to the right codec and
// executes store operations on their behalf. It holds no per-connection
// state; all of that lives in the event loop's connection record.
type Dispatcher struct {
	Store        *store.Store
	MaxValueSize int
	Version      string
	// BufferSize is the configured size of one read-pool buffer. It is the
	// threshold KindNeedChain detection compares against — not cap(input),
	// which is only reliable as a buffer-size proxy for as long as the
	// runtime never grows input past a single pool buffer (see
	// internal/netio's chain-mode read path).
	BufferSize int
}

// New returns a Dispatcher bound to st.
func New(st *store.Store, maxValueSize, bufferSize int, version string) *Dispatcher {
	return &Dispatcher{Store: st, MaxValueSize: maxValueSize, BufferSize: bufferSize, Version: version}
}

// Process parses and executes exactly one command from the front of input,
// writing its response into output when it fits, per spec §4.3.
//
// input is expected to be backed by exactly one pool buffer while a command
// is still being assembled (KindNeedData); Process compares the bytes a
// command needs against d.BufferSize, not cap(input), to decide when the
// runtime must switch to a chained read (KindNeedChain) across several pool
// buffers instead of waiting for more data in this one.
func (d *Dispatcher) Process(proto Protocol, input, output []byte) protocol.Result {
	switch proto {
	case Memcached:
		return d.processMemcached(input, output)
	case RESP:
		return d.processRESP(input, output)
	case Ping:
		return d.processPing(input, output)
	case Echo:
		return d.processEcho(input, output)
	default:
		return protocol.Result{Kind: protocol.KindError}
	}
}

// writeOrChain places resp into output if it fits, else reports a
// KindLargeResponse carrying resp itself, which the runtime writes from the
// heap rather than from a pool buffer or chain.
func writeOrChain(consumed int, resp []byte, output []byte) protocol.Result {
	if len(resp) <= len(output) {
		n := copy(output, resp)
		return protocol.Result{Kind: protocol.KindResponse, Consumed: consumed, ResponseLen: n}
	}
	return protocol.Result{Kind: protocol.KindLargeResponse, Consumed: consumed, ResponseData: resp}
}
