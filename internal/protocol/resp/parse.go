package resp

import (
	"bytes"
	"strconv"

	"github.com/armandparser/gofast-cache/internal/protocol"
)

// Parse attempts to parse one RESP2 frame from the front of buf.
func Parse(buf []byte) (protocol.ParseOutcome, Frame, int, string) {
	return parseFrame(buf)
}

func parseFrame(buf []byte) (protocol.ParseOutcome, Frame, int, string) {
	if len(buf) == 0 {
		return protocol.Incomplete, Frame{}, 0, ""
	}
	switch buf[0] {
	case '+':
		return parseLineFrame(buf, SimpleString)
	case '-':
		return parseLineFrame(buf, Error)
	case ':':
		return parseIntFrame(buf)
	case '$':
		return parseBulkFrame(buf)
	case '*':
		return parseArrayFrame(buf)
	default:
		nl := findCRLF(buf)
		if nl < 0 {
			return protocol.Incomplete, Frame{}, 0, ""
		}
		return protocol.ParseError, Frame{}, nl + 2, "invalid frame type byte"
	}
}

func findCRLF(buf []byte) int { return bytes.Index(buf, []byte("\r\n")) }

func parseLineFrame(buf []byte, typ FrameType) (protocol.ParseOutcome, Frame, int, string) {
	nl := findCRLF(buf)
	if nl < 0 {
		return protocol.Incomplete, Frame{}, 0, ""
	}
	return protocol.Complete, Frame{Type: typ, Str: string(buf[1:nl])}, nl + 2, ""
}

func parseIntFrame(buf []byte) (protocol.ParseOutcome, Frame, int, string) {
	nl := findCRLF(buf)
	if nl < 0 {
		return protocol.Incomplete, Frame{}, 0, ""
	}
	n, err := strconv.ParseInt(string(buf[1:nl]), 10, 64)
	if err != nil {
		return protocol.ParseError, Frame{}, nl + 2, "invalid integer"
	}
	return protocol.Complete, Frame{Type: Integer, Int: n}, nl + 2, ""
}

func parseBulkFrame(buf []byte) (protocol.ParseOutcome, Frame, int, string) {
	nl := findCRLF(buf)
	if nl < 0 {
		return protocol.Incomplete, Frame{}, 0, ""
	}
	n, err := strconv.ParseInt(string(buf[1:nl]), 10, 64)
	if err != nil {
		return protocol.ParseError, Frame{}, nl + 2, "invalid bulk length"
	}
	if n < 0 {
		return protocol.Complete, Frame{Type: BulkString, Null: true}, nl + 2, ""
	}
	headerLen := nl + 2
	need := headerLen + int(n) + 2
	if len(buf) < need {
		return protocol.NeedData, Frame{}, headerLen, ""
	}
	if string(buf[headerLen+int(n):need]) != "\r\n" {
		return protocol.ParseError, Frame{}, need, "invalid bulk string trailer"
	}
	data := append([]byte(nil), buf[headerLen:headerLen+int(n)]...)
	return protocol.Complete, Frame{Type: BulkString, Bulk: data}, need, ""
}

func parseArrayFrame(buf []byte) (protocol.ParseOutcome, Frame, int, string) {
	nl := findCRLF(buf)
	if nl < 0 {
		return protocol.Incomplete, Frame{}, 0, ""
	}
	n, err := strconv.ParseInt(string(buf[1:nl]), 10, 64)
	if err != nil {
		return protocol.ParseError, Frame{}, nl + 2, "invalid array length"
	}
	consumed := nl + 2
	if n < 0 {
		return protocol.Complete, Frame{Type: Array, Null: true}, consumed, ""
	}
	items := make([]Frame, 0, n)
	for i := int64(0); i < n; i++ {
		outcome, item, used, errMsg := parseFrame(buf[consumed:])
		switch outcome {
		case protocol.Complete:
			items = append(items, item)
			consumed += used
		case protocol.Incomplete, protocol.NeedData:
			// arrays are only ever used for commands in this protocol
			// subset, which are never larger than a buffer; report
			// Incomplete so the runtime reads more and retries from the
			// start of the whole array.
			return protocol.Incomplete, Frame{}, 0, ""
		default:
			return protocol.ParseError, Frame{}, consumed + used, errMsg
		}
	}
	return protocol.Complete, Frame{Type: Array, Items: items}, consumed, ""
}
