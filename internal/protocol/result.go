// Package protocol defines the types shared by every wire-protocol codec
// (memcached text, RESP2, ping, echo) and by the unified dispatcher that
// drives them: the codec-level ParseOutcome sum type (§4.3) and the
// dispatcher-level ProcessResult sum type (§4.3 "Unified dispatcher").
package protocol

// ParseOutcome is the tag of a per-codec parse attempt over one buffer.
type ParseOutcome int

const (
	// Complete means a full command was parsed; Consumed bytes may be
	// dropped from the front of the input buffer.
	Complete ParseOutcome = iota
	// Incomplete means more bytes are needed but the codec can't yet say
	// how many (e.g. the header line itself isn't terminated).
	Incomplete
	// NeedData means the header parsed cleanly and the codec now knows
	// exactly how many more bytes it needs (a storage command's payload).
	NeedData
	// ParseError means the buffer contains bytes that don't form a valid
	// command; the caller should recover by scanning to the next line
	// terminator and resuming (spec §7).
	ParseError
)

// ProcessKind is the tag of the unified dispatcher's return value.
type ProcessKind int

const (
	// KindNeedData: the codec wants more bytes before it can do anything.
	KindNeedData ProcessKind = iota
	// KindNeedChain: the value exceeds a single buffer; the runtime must
	// switch to a chained read of CommandLen+ValueLen total bytes.
	KindNeedChain
	// KindResponse: a response was formatted into the caller-supplied
	// output buffer; ResponseLen bytes are valid starting at offset 0.
	KindResponse
	// KindLargeResponse: the response doesn't fit in the output buffer; the
	// runtime queues and writes ResponseData straight from this heap slice
	// (no pool buffers or chain are used for it).
	KindLargeResponse
	// KindQuit: the connection should close after any response is sent.
	KindQuit
	// KindError: an internal dispatch error (never a protocol client
	// error — those are KindResponse with an error frame already
	// formatted).
	KindError
)

// Result is what Process returns after consuming some prefix of input.
type Result struct {
	Kind ProcessKind

	// Consumed is how many bytes of the input buffer the codec consumed.
	// Valid for Kind in {KindResponse, KindLargeResponse, KindQuit}.
	Consumed int

	// ResponseLen is the number of valid bytes written to the output
	// buffer, for KindResponse.
	ResponseLen int

	// ResponseData holds the full response when it doesn't fit in one
	// buffer, for KindLargeResponse.
	ResponseData []byte

	// CommandLen/ValueLen describe the chained read needed, for
	// KindNeedChain: the runtime must accumulate CommandLen+ValueLen bytes
	// (the already-read header plus the oversized payload) before calling
	// Process again.
	CommandLen int
	ValueLen   int

	// Err carries the cause for KindError.
	Err error

	// SkipBytes, when > 0 on a KindResponse result, tells the runtime to
	// read and discard this many additional bytes from the socket after
	// Consumed before resuming parsing — used when an oversized value is
	// rejected with a client error without ever landing in a pool buffer
	// (spec §7, "the malformed request is discarded along with its
	// would-be payload").
	SkipBytes int
}
