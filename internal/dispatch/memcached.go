package dispatch

import (
	"time"

	"github.com/armandparser/gofast-cache/internal/protocol"
	"github.com/armandparser/gofast-cache/internal/protocol/memcached"
	"github.com/armandparser/gofast-cache/internal/store"
)

func (d *Dispatcher) processMemcached(input, output []byte) protocol.Result {
	outcome, cmd, consumed, errMsg := memcached.Parse(input)
	switch outcome {
	case protocol.Incomplete:
		return protocol.Result{Kind: protocol.KindNeedData}

	case protocol.NeedData:
		commandLen, dataLen := memcached.HeaderAndDataLen(input, cmd)
		if int(cmd.Bytes) > d.MaxValueSize {
			resp := memcached.FormatClientError("object too large for cache")
			return protocol.Result{
				Kind:        protocol.KindResponse,
				Consumed:    commandLen,
				ResponseLen: copy(output, resp),
				SkipBytes:   dataLen,
			}
		}
		if commandLen+dataLen > d.BufferSize {
			return protocol.Result{Kind: protocol.KindNeedChain, CommandLen: commandLen, ValueLen: dataLen}
		}
		return protocol.Result{Kind: protocol.KindNeedData}

	case protocol.ParseError:
		resp := memcached.FormatClientError(errMsg)
		return writeOrChain(consumed, resp, output)

	case protocol.Complete:
		if cmd.Kind == memcached.KindQuit {
			return protocol.Result{Kind: protocol.KindQuit, Consumed: consumed}
		}
		if isStorageCommand(cmd.Kind) && len(cmd.Value) > d.MaxValueSize {
			resp := memcached.FormatClientError("object too large for cache")
			return protocol.Result{Kind: protocol.KindResponse, Consumed: consumed, ResponseLen: copy(output, resp)}
		}
		resp := d.execMemcached(cmd)
		if cmd.NoReply {
			return protocol.Result{Kind: protocol.KindResponse, Consumed: consumed, ResponseLen: 0}
		}
		return writeOrChain(consumed, resp, output)

	default:
		return protocol.Result{Kind: protocol.KindError}
	}
}

func (d *Dispatcher) execMemcached(cmd memcached.Command) []byte {
	switch cmd.Kind {
	case memcached.KindGet, memcached.KindGets:
		withCAS := cmd.Kind == memcached.KindGets
		entries := make([]memcached.ValueEntry, 0, len(cmd.Keys))
		for _, k := range cmd.Keys {
			if it, ok := d.Store.Get(k); ok {
				entries = append(entries, memcached.ValueEntry{Key: k, Flags: it.Flags, Value: it.Value, CAS: it.CAS})
			}
		}
		return memcached.FormatValues(entries, withCAS)

	case memcached.KindSet:
		d.Store.Set(cmd.Key, cmd.Value, cmd.Flags, time.Duration(cmd.TTL)*time.Second)
		return memcached.FormatStored()

	case memcached.KindAdd:
		res, _ := d.Store.Add(cmd.Key, cmd.Value, cmd.Flags, time.Duration(cmd.TTL)*time.Second)
		return resultLine(res)

	case memcached.KindReplace:
		res, _ := d.Store.Replace(cmd.Key, cmd.Value, cmd.Flags, time.Duration(cmd.TTL)*time.Second)
		return resultLine(res)

	case memcached.KindAppend:
		res, _ := d.Store.Append(cmd.Key, cmd.Value)
		return resultLine(res)

	case memcached.KindPrepend:
		res, _ := d.Store.Prepend(cmd.Key, cmd.Value)
		return resultLine(res)

	case memcached.KindCas:
		res, _ := d.Store.Cas(cmd.Key, cmd.Value, cmd.Flags, time.Duration(cmd.TTL)*time.Second, cmd.CasToken)
		return resultLine(res)

	case memcached.KindDelete:
		return resultLine(d.Store.Delete(cmd.Key))

	case memcached.KindIncr, memcached.KindDecr:
		res, val, parsed := d.Store.IncrDecr(cmd.Key, cmd.Delta, cmd.Kind == memcached.KindDecr)
		if !parsed {
			return memcached.FormatClientError("cannot increment or decrement non-numeric value")
		}
		if res == store.NotFound {
			return memcached.FormatNotFound()
		}
		return memcached.FormatNumeric(val)

	case memcached.KindFlushAll:
		d.Store.FlushAll()
		return memcached.FormatOK()

	case memcached.KindStats:
		return d.formatStats()

	case memcached.KindVersion:
		return memcached.FormatVersion(d.Version)

	default:
		return memcached.FormatError()
	}
}

func isStorageCommand(k memcached.Kind) bool {
	switch k {
	case memcached.KindSet, memcached.KindAdd, memcached.KindReplace,
		memcached.KindAppend, memcached.KindPrepend, memcached.KindCas:
		return true
	default:
		return false
	}
}

func resultLine(res store.Result) []byte {
	switch res {
	case store.Stored:
		return memcached.FormatStored()
	case store.NotStored:
		return memcached.FormatNotStored()
	case store.Exists:
		return memcached.FormatExists()
	case store.NotFound:
		return memcached.FormatNotFound()
	case store.CasMismatch:
		return memcached.FormatExists() // memcached's cas mismatch reply is EXISTS
	case store.Deleted:
		return memcached.FormatDeleted()
	default:
		return memcached.FormatError()
	}
}

func (d *Dispatcher) formatStats() []byte {
	s := d.Store.StatsSnapshot()
	out := memcached.FormatStat("curr_items", itoa(s.ItemCount))
	out = append(out, memcached.FormatStat("bytes", itoa64(s.MemoryUsed))...)
	out = append(out, memcached.FormatStat("limit_maxbytes", itoa64(s.MaxMemory))...)
	out = append(out, memcached.FormatStat("cas_counter", itoa64(int64(s.CAS)))...)
	out = append(out, []byte("END\r\n")...)
	return out
}
