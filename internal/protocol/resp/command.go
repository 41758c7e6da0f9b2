package resp

import (
	"errors"
	"strings"
)

// Kind identifies which Redis command an Array frame decodes to.
type Kind int

const (
	KindPing Kind = iota
	KindGet
	KindSet
	KindDel
	KindExists
	KindFlushAll
	KindDBSize
	KindHello
	KindCommand
	KindQuit
	KindUnknown
)

// Command is the decoded form of a client request array.
type Command struct {
	Kind Kind
	Name string   // original verb, for KindUnknown's error message
	Args [][]byte // arguments following the verb, in order
}

var kindByVerb = map[string]Kind{
	"PING":     KindPing,
	"GET":      KindGet,
	"SET":      KindSet,
	"DEL":      KindDel,
	"EXISTS":   KindExists,
	"FLUSHALL": KindFlushAll,
	"FLUSHDB":  KindFlushAll,
	"DBSIZE":   KindDBSize,
	"HELLO":    KindHello,
	"COMMAND":  KindCommand,
	"QUIT":     KindQuit,
}

// ErrNotACommand is returned when a frame isn't a well-formed command
// array (not an array, empty, or containing a non-bulk-string element).
var ErrNotACommand = errors.New("resp: not a command array")

// DecodeCommand extracts a Command from a parsed request Frame.
func DecodeCommand(f Frame) (Command, error) {
	if f.Type != Array || f.Null || len(f.Items) == 0 {
		return Command{}, ErrNotACommand
	}
	args := make([][]byte, 0, len(f.Items))
	for _, it := range f.Items {
		if it.Type != BulkString || it.Null {
			return Command{}, ErrNotACommand
		}
		args = append(args, it.Bulk)
	}
	verb := strings.ToUpper(string(args[0]))
	kind, ok := kindByVerb[verb]
	if !ok {
		kind = KindUnknown
	}
	return Command{Kind: kind, Name: string(args[0]), Args: args[1:]}, nil
}
