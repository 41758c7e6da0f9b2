package dispatch

import (
	"github.com/armandparser/gofast-cache/internal/protocol"
	"github.com/armandparser/gofast-cache/internal/protocol/ping"
)

func (d *Dispatcher) processPing(input, output []byte) protocol.Result {
	outcome, cmd, consumed := ping.Parse(input)
	switch outcome {
	case protocol.Incomplete:
		return protocol.Result{Kind: protocol.KindNeedData}
	case protocol.Complete:
		switch cmd.Kind {
		case ping.KindQuit:
			return protocol.Result{Kind: protocol.KindQuit, Consumed: consumed}
		case ping.KindPing:
			return writeOrChain(consumed, ping.FormatPong(cmd.Msg), output)
		default:
			return writeOrChain(consumed, ping.FormatError(), output)
		}
	default:
		return protocol.Result{Kind: protocol.KindError}
	}
}
