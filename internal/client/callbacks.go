package client

import "github.com/payterm/zvtsim/internal/zvt/response"

// Callbacks are the engine's event hooks. Every field is optional; a nil
// hook is skipped. Hooks run on the engine's I/O goroutine and must not
// call back into the engine's command methods.
type Callbacks struct {
	OnConnectionState    func(state ConnectionState)
	OnIntermediateStatus func(status response.IntermediateStatus)
	OnPrintLine          func(line response.PrintLine)
	OnDebug              func(format string, v ...interface{})
	OnError              func(err error)
}

func (c Callbacks) connectionState(state ConnectionState) {
	if c.OnConnectionState != nil {
		c.OnConnectionState(state)
	}
}

func (c Callbacks) intermediateStatus(status response.IntermediateStatus) {
	if c.OnIntermediateStatus != nil {
		c.OnIntermediateStatus(status)
	}
}

func (c Callbacks) printLine(line response.PrintLine) {
	if c.OnPrintLine != nil {
		c.OnPrintLine(line)
	}
}

func (c Callbacks) debug(format string, v ...interface{}) {
	if c.OnDebug != nil {
		c.OnDebug(format, v...)
	}
}

func (c Callbacks) error(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}
