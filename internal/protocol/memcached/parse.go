package memcached

import (
	"bytes"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/unicode/rangetable"

	"github.com/armandparser/gofast-cache/internal/protocol"
)

// printableKey reports whether a rune is allowed in a memcached key: the
// wire protocol requires keys to be printable and contain no whitespace or
// control characters (spec §6). strings.Fields already keeps whitespace out
// by construction (it's what splits the command line into fields), so this
// is what catches the rest — embedded control bytes like \x01 that Fields
// alone would let through.
var printableKey = runes.In(rangetable.Merge(unicode.L, unicode.M, unicode.N, unicode.P, unicode.S))

// keyError returns the parse error for k if it breaks a memcached key rule,
// or "" if k is acceptable.
func keyError(k string) string {
	if len(k) > MaxKeyLen {
		return "key too long"
	}
	for _, r := range k {
		if !printableKey.Contains(r) {
			return "bad key"
		}
	}
	return ""
}

var storageKinds = map[string]Kind{
	"set":     KindSet,
	"add":     KindAdd,
	"replace": KindReplace,
	"append":  KindAppend,
	"prepend": KindPrepend,
	"cas":     KindCas,
}

// Parse attempts to parse one command from the front of buf. It never
// blocks and never performs I/O. See protocol.ParseOutcome for the meaning
// of each returned outcome.
func Parse(buf []byte) (protocol.ParseOutcome, Command, int, string) {
	nl := bytes.Index(buf, []byte("\r\n"))
	if nl < 0 {
		if len(buf) > maxLineLen {
			return protocol.ParseError, Command{}, 0, "line too long"
		}
		return protocol.Incomplete, Command{}, 0, ""
	}
	line := string(buf[:nl])
	headerLen := nl + 2
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return protocol.ParseError, Command{}, headerLen, "empty command"
	}

	verb := fields[0]
	switch verb {
	case "get", "gets":
		if len(fields) < 2 {
			return protocol.ParseError, Command{}, headerLen, "wrong number of arguments for get"
		}
		cmd := Command{Kind: KindGet, Keys: fields[1:]}
		if verb == "gets" {
			cmd.Kind = KindGets
		}
		for _, k := range cmd.Keys {
			if msg := keyError(k); msg != "" {
				return protocol.ParseError, Command{}, headerLen, msg
			}
		}
		return protocol.Complete, cmd, headerLen, ""

	case "set", "add", "replace", "append", "prepend", "cas":
		return parseStorage(buf, line, fields, verb, headerLen)

	case "delete":
		if len(fields) < 2 {
			return protocol.ParseError, Command{}, headerLen, "wrong number of arguments for delete"
		}
		cmd := Command{Kind: KindDelete, Key: fields[1]}
		cmd.NoReply = len(fields) >= 3 && fields[len(fields)-1] == "noreply"
		if msg := keyError(cmd.Key); msg != "" {
			return protocol.ParseError, Command{}, headerLen, msg
		}
		return protocol.Complete, cmd, headerLen, ""

	case "incr", "decr":
		if len(fields) < 3 {
			return protocol.ParseError, Command{}, headerLen, "wrong number of arguments"
		}
		delta, err := strconv.ParseUint(fields[2], 10, 64)
		if err != nil {
			return protocol.ParseError, Command{}, headerLen, "invalid numeric delta argument"
		}
		cmd := Command{Kind: KindIncr, Key: fields[1], Delta: delta}
		if verb == "decr" {
			cmd.Kind = KindDecr
		}
		cmd.NoReply = len(fields) >= 4 && fields[len(fields)-1] == "noreply"
		return protocol.Complete, cmd, headerLen, ""

	case "flush_all":
		cmd := Command{Kind: KindFlushAll}
		cmd.NoReply = len(fields) >= 2 && fields[len(fields)-1] == "noreply"
		return protocol.Complete, cmd, headerLen, ""

	case "stats":
		return protocol.Complete, Command{Kind: KindStats}, headerLen, ""

	case "version":
		return protocol.Complete, Command{Kind: KindVersion}, headerLen, ""

	case "quit":
		return protocol.Complete, Command{Kind: KindQuit}, headerLen, ""

	default:
		return protocol.ParseError, Command{}, headerLen, "unknown command \"" + verb + "\""
	}
}

const maxLineLen = 8192

func parseStorage(buf []byte, line string, fields []string, verb string, headerLen int) (protocol.ParseOutcome, Command, int, string) {
	kind := storageKinds[verb]
	minArgs := 5
	if verb == "cas" {
		minArgs = 6
	}
	if len(fields) < minArgs {
		return protocol.ParseError, Command{}, headerLen, "wrong number of arguments for " + verb
	}

	key := fields[1]
	if msg := keyError(key); msg != "" {
		return protocol.ParseError, Command{}, headerLen, msg
	}
	flags, err1 := strconv.ParseUint(fields[2], 10, 32)
	ttl, err2 := strconv.ParseUint(fields[3], 10, 32)
	nbytes, err3 := strconv.ParseUint(fields[4], 10, 32)
	if err1 != nil || err2 != nil || err3 != nil {
		return protocol.ParseError, Command{}, headerLen, "bad command line format"
	}

	cmd := Command{Kind: kind, Key: key, Flags: uint32(flags), TTL: uint32(ttl), Bytes: uint32(nbytes)}
	nextArg := 5
	if verb == "cas" {
		tok, err := strconv.ParseUint(fields[5], 10, 64)
		if err != nil {
			return protocol.ParseError, Command{}, headerLen, "bad command line format"
		}
		cmd.CasToken = tok
		nextArg = 6
	}
	cmd.NoReply = len(fields) > nextArg && fields[len(fields)-1] == "noreply"

	// Two-phase: need exactly Bytes of payload plus trailing CRLF.
	need := headerLen + int(cmd.Bytes) + 2
	if len(buf) < need {
		return protocol.NeedData, cmd, headerLen, ""
	}
	payload := buf[headerLen : headerLen+int(cmd.Bytes)]
	trailer := buf[headerLen+int(cmd.Bytes) : need]
	if string(trailer) != "\r\n" {
		return protocol.ParseError, Command{}, need, "bad data chunk"
	}
	cmd.Value = append([]byte(nil), payload...)
	return protocol.Complete, cmd, need, ""
}

// HeaderAndDataLen reports, for a NeedData outcome, how many bytes the
// header line consumed and how many more payload+trailer bytes are needed —
// the runtime uses this to size a chained read when the payload exceeds one
// buffer (ProcessResult.KindNeedChain).
func HeaderAndDataLen(buf []byte, cmd Command) (commandBytes, dataBytes int) {
	nl := bytes.Index(buf, []byte("\r\n"))
	commandBytes = nl + 2
	dataBytes = int(cmd.Bytes) + 2
	return
}
