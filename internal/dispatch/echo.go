package dispatch

import (
	"github.com/armandparser/gofast-cache/internal/protocol"
	"github.com/armandparser/gofast-cache/internal/protocol/echo"
)

func (d *Dispatcher) processEcho(input, output []byte) protocol.Result {
	outcome, cmd, consumed := echo.Parse(input)
	switch outcome {
	case protocol.Incomplete:
		return protocol.Result{Kind: protocol.KindNeedData}
	case protocol.NeedData:
		return protocol.Result{Kind: protocol.KindNeedData}
	case protocol.Complete:
		switch cmd.Kind {
		case echo.KindQuit:
			return protocol.Result{Kind: protocol.KindQuit, Consumed: consumed}
		case echo.KindEcho:
			return writeOrChain(consumed, echo.Format(cmd.Data), output)
		default:
			return writeOrChain(consumed, echo.FormatError(cmd.Msg), output)
		}
	default:
		return protocol.Result{Kind: protocol.KindError}
	}
}
