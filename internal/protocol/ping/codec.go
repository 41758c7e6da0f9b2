// Package ping implements the line-based ping/echo benchmarking protocol
// from spec §4.3: `PING\r\n` -> `PONG\r\n`, `PING <msg>\r\n` -> `PONG
// <msg>\r\n`, `QUIT\r\n` closes the connection, anything else is an error.
package ping

import (
	"bytes"
	"strings"

	"github.com/armandparser/gofast-cache/internal/protocol"
)

type Kind int

const (
	KindPing Kind = iota
	KindQuit
	KindUnknown
)

type Command struct {
	Kind Kind
	Msg  string
}

// Parse attempts to parse one line from the front of buf.
func Parse(buf []byte) (protocol.ParseOutcome, Command, int) {
	nl := bytes.Index(buf, []byte("\r\n"))
	if nl < 0 {
		return protocol.Incomplete, Command{}, 0
	}
	line := string(buf[:nl])
	consumed := nl + 2

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return protocol.Complete, Command{Kind: KindUnknown}, consumed
	}
	switch strings.ToUpper(fields[0]) {
	case "PING":
		msg := ""
		if len(fields) > 1 {
			msg = strings.Join(fields[1:], " ")
		}
		return protocol.Complete, Command{Kind: KindPing, Msg: msg}, consumed
	case "QUIT":
		return protocol.Complete, Command{Kind: KindQuit}, consumed
	default:
		return protocol.Complete, Command{Kind: KindUnknown}, consumed
	}
}

func FormatPong(msg string) []byte {
	if msg == "" {
		return []byte("PONG\r\n")
	}
	return []byte("PONG " + msg + "\r\n")
}

func FormatError() []byte { return []byte("ERROR unknown command\r\n") }
