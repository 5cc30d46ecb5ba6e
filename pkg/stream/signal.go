package stream

import (
	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/sse"
	"github.com/rhuss/modelbridge/pkg/toolcall"
)

// SignalKind tags a Signal.
type SignalKind int

const (
	// SignalStart carries the response id, model and any initial usage.
	SignalStart SignalKind = iota
	// SignalTextDelta carries a text fragment.
	SignalTextDelta
	// SignalTextStop ends the current text run.
	SignalTextStop
	// SignalToolDelta carries a tool-call fragment.
	SignalToolDelta
	// SignalToolStop closes the tool call at Index.
	SignalToolStop
	// SignalUsage carries token counts, merged into what is already known.
	SignalUsage
	// SignalFinish carries the finish reason.
	SignalFinish
	// SignalDone marks the grammar's own end of stream.
	SignalDone
	// SignalError carries an upstream error reported inside the stream.
	SignalError
)

var signalNames = map[SignalKind]string{
	SignalStart:     "start",
	SignalTextDelta: "text_delta",
	SignalTextStop:  "text_stop",
	SignalToolDelta: "tool_delta",
	SignalToolStop:  "tool_stop",
	SignalUsage:     "usage",
	SignalFinish:    "finish",
	SignalDone:      "done",
	SignalError:     "error",
}

func (k SignalKind) String() string {
	if s, ok := signalNames[k]; ok {
		return s
	}
	return "unknown"
}

// Signal is a grammar-independent instruction for the normalizer. Which
// fields are set depends on Kind.
type Signal struct {
	Kind SignalKind

	ID    string
	Model string
	Text  string
	Tool  toolcall.Delta
	Index int

	Reason api.FinishReason
	Usage  *api.Usage
	Err    *api.APIError
}

// Interpreter converts the frames of one upstream grammar into signals.
// A new Interpreter is created for every call. An error return marks the
// frame as malformed; the stream continues.
type Interpreter interface {
	Interpret(f sse.Frame) ([]Signal, error)
}

// InterpreterFunc adapts a function to the Interpreter interface.
type InterpreterFunc func(f sse.Frame) ([]Signal, error)

// Interpret calls fn(f).
func (fn InterpreterFunc) Interpret(f sse.Frame) ([]Signal, error) {
	return fn(f)
}
