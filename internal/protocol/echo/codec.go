// Package echo implements the length-prefixed echo benchmarking protocol
// from spec §4.3: `<decimal-length>\r\n<length bytes>` is echoed back
// prefixed identically; `QUIT\r\n` closes the connection; an out-of-range
// or non-numeric length is an error.
package echo

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/armandparser/gofast-cache/internal/protocol"
)

type Kind int

const (
	KindEcho Kind = iota
	KindQuit
	KindError
)

type Command struct {
	Kind Kind
	Data []byte
	Msg  string // error message, for KindError
}

// MaxLen bounds the accepted decimal length to guard against a hostile or
// malformed client claiming an enormous frame.
const MaxLen = 64 * 1024 * 1024

// Parse attempts to parse one frame from the front of buf.
func Parse(buf []byte) (protocol.ParseOutcome, Command, int) {
	nl := bytes.Index(buf, []byte("\r\n"))
	if nl < 0 {
		return protocol.Incomplete, Command{}, 0
	}
	line := strings.TrimSpace(string(buf[:nl]))
	headerLen := nl + 2

	if strings.EqualFold(line, "QUIT") {
		return protocol.Complete, Command{Kind: KindQuit}, headerLen
	}

	n, err := strconv.Atoi(line)
	if err != nil || n < 0 || n > MaxLen {
		return protocol.Complete, Command{Kind: KindError, Msg: "invalid length"}, headerLen
	}

	need := headerLen + n
	if len(buf) < need {
		return protocol.NeedData, Command{}, headerLen
	}
	data := append([]byte(nil), buf[headerLen:need]...)
	return protocol.Complete, Command{Kind: KindEcho, Data: data}, need
}

// Format renders the same framing the client sent: length line + payload.
func Format(data []byte) []byte {
	out := make([]byte, 0, len(data)+16)
	out = append(out, strconv.Itoa(len(data))...)
	out = append(out, '\r', '\n')
	out = append(out, data...)
	return out
}

func FormatError(msg string) []byte {
	return []byte("ERROR " + msg + "\r\n")
}
