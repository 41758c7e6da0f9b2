package dispatch

import (
	"strconv"
	"strings"
	"time"

	"github.com/armandparser/gofast-cache/internal/protocol"
	"github.com/armandparser/gofast-cache/internal/protocol/resp"
	"github.com/armandparser/gofast-cache/internal/store"
)

func (d *Dispatcher) processRESP(input, output []byte) protocol.Result {
	outcome, frame, consumed, errMsg := resp.Parse(input)
	switch outcome {
	case protocol.Incomplete, protocol.NeedData:
		return protocol.Result{Kind: protocol.KindNeedData}

	case protocol.ParseError:
		return writeOrChain(consumed, resp.EncodeError("ERR "+errMsg), output)

	case protocol.Complete:
		cmd, err := resp.DecodeCommand(frame)
		if err != nil {
			// A well-formed frame that isn't a command array (e.g. a bare
			// simple string or integer) isn't supported by this subset;
			// treat as a protocol error rather than crash. Inline commands
			// such as a bare "PING\r\n" fail earlier, in resp.Parse.
			return writeOrChain(consumed, resp.EncodeError("ERR invalid request"), output)
		}
		if cmd.Kind == resp.KindQuit {
			respBytes := resp.EncodeSimpleString("OK")
			r := writeOrChain(consumed, respBytes, output)
			r.Kind = protocol.KindQuit
			return r
		}
		respBytes := d.execRESP(cmd)
		return writeOrChain(consumed, respBytes, output)

	default:
		return protocol.Result{Kind: protocol.KindError}
	}
}

func (d *Dispatcher) execRESP(cmd resp.Command) []byte {
	switch cmd.Kind {
	case resp.KindPing:
		if len(cmd.Args) == 0 {
			return resp.EncodeSimpleString("PONG")
		}
		return resp.EncodeBulkString(cmd.Args[0])

	case resp.KindGet:
		if len(cmd.Args) != 1 {
			return resp.EncodeError("ERR wrong number of arguments for 'get' command")
		}
		it, ok := d.Store.Get(string(cmd.Args[0]))
		if !ok {
			return resp.EncodeNullBulkString()
		}
		return resp.EncodeBulkString(it.Value)

	case resp.KindSet:
		return d.execRESPSet(cmd.Args)

	case resp.KindDel:
		count := int64(0)
		for _, k := range cmd.Args {
			if d.Store.Delete(string(k)) == store.Deleted {
				count++
			}
		}
		return resp.EncodeInteger(count)

	case resp.KindExists:
		count := int64(0)
		for _, k := range cmd.Args {
			if _, ok := d.Store.Get(string(k)); ok {
				count++
			}
		}
		return resp.EncodeInteger(count)

	case resp.KindFlushAll:
		d.Store.FlushAll()
		return resp.EncodeSimpleString("OK")

	case resp.KindDBSize:
		return resp.EncodeInteger(int64(d.Store.StatsSnapshot().ItemCount))

	case resp.KindHello:
		return d.execRESPHello(cmd.Args)

	case resp.KindCommand:
		return resp.EncodeArray(nil)

	default:
		return resp.EncodeError("ERR unknown command '" + cmd.Name + "'")
	}
}

func (d *Dispatcher) execRESPSet(args [][]byte) []byte {
	if len(args) < 2 {
		return resp.EncodeError("ERR wrong number of arguments for 'set' command")
	}
	key, value := string(args[0]), args[1]
	var ttl time.Duration
	var nx, xx bool

	for i := 2; i < len(args); i++ {
		opt := strings.ToUpper(string(args[i]))
		switch opt {
		case "EX":
			i++
			if i >= len(args) {
				return resp.EncodeError("ERR syntax error")
			}
			secs, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil {
				return resp.EncodeError("ERR value is not an integer or out of range")
			}
			ttl = time.Duration(secs) * time.Second
		case "PX":
			i++
			if i >= len(args) {
				return resp.EncodeError("ERR syntax error")
			}
			ms, err := strconv.ParseInt(string(args[i]), 10, 64)
			if err != nil {
				return resp.EncodeError("ERR value is not an integer or out of range")
			}
			// PX rounds up to whole seconds, per spec §4.3.
			secs := (ms + 999) / 1000
			ttl = time.Duration(secs) * time.Second
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			return resp.EncodeError("ERR syntax error")
		}
	}
	if nx && xx {
		return resp.EncodeError("ERR syntax error")
	}

	_, exists := d.Store.Get(key)
	if nx && exists {
		return resp.EncodeNullBulkString()
	}
	if xx && !exists {
		return resp.EncodeNullBulkString()
	}
	d.Store.Set(key, value, 0, ttl)
	return resp.EncodeSimpleString("OK")
}

func (d *Dispatcher) execRESPHello(args [][]byte) []byte {
	ver := int64(2)
	if len(args) >= 1 {
		if v, err := strconv.ParseInt(string(args[0]), 10, 64); err == nil {
			ver = v
		}
	}
	if ver < 2 {
		ver = 2
	}
	if ver > 3 {
		ver = 3
	}
	items := [][]byte{
		resp.EncodeBulkString([]byte("server")),
		resp.EncodeBulkString([]byte("gofast-cache")),
		resp.EncodeBulkString([]byte("version")),
		resp.EncodeBulkString([]byte(d.Version)),
		resp.EncodeBulkString([]byte("proto")),
		resp.EncodeInteger(ver),
	}
	return resp.EncodeArray(items)
}
