package anthropic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rhuss/modelbridge/pkg/classify"
	"github.com/rhuss/modelbridge/pkg/debug"
	"github.com/rhuss/modelbridge/pkg/sse"
	"github.com/rhuss/modelbridge/pkg/stream"
	"github.com/rhuss/modelbridge/pkg/toolcall"
)

// Interpreter turns Messages API stream events into signals.
//
// Event sequence expected:
//
//	event: message_start        {"message":{"id","model","usage":{"input_tokens"}}}
//	event: content_block_start  {"index":0,"content_block":{"type":"text"|"tool_use",...}}
//	event: content_block_delta  {"index":0,"delta":{"type":"text_delta"|"input_json_delta",...}}
//	event: content_block_stop   {"index":0}
//	event: message_delta        {"delta":{"stop_reason"},"usage":{"output_tokens"}}
//	event: message_stop
//
// ping events are ignored; an error event ends the stream.
type Interpreter struct {
	blocks map[int]*blockState
}

type blockState struct {
	kind       string
	startInput string
	gotArgs    bool
}

// NewInterpreter returns an Interpreter for one stream.
func NewInterpreter() *Interpreter {
	return &Interpreter{blocks: make(map[int]*blockState)}
}

// Interpret implements stream.Interpreter.
func (in *Interpreter) Interpret(f sse.Frame) ([]stream.Signal, error) {
	typ := gjson.GetBytes(f.Data, "type").String()
	if typ == "" {
		typ = f.Event
	}

	switch typ {
	case "ping":
		return nil, nil
	case "error":
		return []stream.Signal{{Kind: stream.SignalError, Err: classify.FromStreamPayload(f.Data)}}, nil
	case "message_stop":
		return []stream.Signal{{Kind: stream.SignalDone}}, nil
	case "message_start", "content_block_start", "content_block_delta", "content_block_stop", "message_delta":
	default:
		debug.Log(debug.Streaming, "ignoring unknown stream event", "type", typ)
		return nil, nil
	}

	var ev StreamEvent
	if err := json.Unmarshal(f.Data, &ev); err != nil {
		return nil, fmt.Errorf("decoding %s event: %w", typ, err)
	}

	switch typ {
	case "message_start":
		if ev.Message == nil {
			return nil, errors.New("message_start without message")
		}
		sig := stream.Signal{Kind: stream.SignalStart, ID: ev.Message.ID, Model: ev.Message.Model}
		if ev.Message.Usage != nil {
			u := ev.Message.Usage.toUsage()
			sig.Usage = &u
		}
		return []stream.Signal{sig}, nil

	case "content_block_start":
		return in.blockStart(ev)

	case "content_block_delta":
		return in.blockDelta(ev)

	case "content_block_stop":
		return in.blockStop(ev.Index), nil

	case "message_delta":
		var signals []stream.Signal
		// Usage goes first so the finish carries the final counts.
		if ev.Usage != nil {
			u := ev.Usage.toUsage()
			signals = append(signals, stream.Signal{Kind: stream.SignalUsage, Usage: &u})
		}
		if ev.Delta != nil && ev.Delta.StopReason != "" {
			signals = append(signals, stream.Signal{Kind: stream.SignalFinish, Reason: MapStopReason(ev.Delta.StopReason)})
		}
		return signals, nil
	}
	return nil, nil
}

func (in *Interpreter) blockStart(ev StreamEvent) ([]stream.Signal, error) {
	if ev.ContentBlock == nil {
		return nil, errors.New("content_block_start without content_block")
	}
	b := ev.ContentBlock
	st := &blockState{kind: b.Type}
	in.blocks[ev.Index] = st

	switch b.Type {
	case "text":
		if b.Text != "" {
			return []stream.Signal{{Kind: stream.SignalTextDelta, Text: b.Text}}, nil
		}
	case "tool_use":
		// The start block usually carries an empty input object; the real
		// arguments follow as input_json_delta fragments.
		if len(b.Input) > 0 {
			st.startInput = string(b.Input)
		}
		return []stream.Signal{{
			Kind: stream.SignalToolDelta,
			Tool: toolcall.Delta{Index: ev.Index, ID: b.ID, Name: b.Name},
		}}, nil
	}
	return nil, nil
}

func (in *Interpreter) blockDelta(ev StreamEvent) ([]stream.Signal, error) {
	if ev.Delta == nil {
		return nil, errors.New("content_block_delta without delta")
	}
	switch ev.Delta.Type {
	case "text_delta":
		return []stream.Signal{{Kind: stream.SignalTextDelta, Text: ev.Delta.Text}}, nil
	case "input_json_delta":
		st, ok := in.blocks[ev.Index]
		if !ok {
			st = &blockState{kind: "tool_use"}
			in.blocks[ev.Index] = st
		}
		// Tools without parameters stream a single empty fragment.
		if strings.TrimSpace(ev.Delta.PartialJSON) != "" {
			st.gotArgs = true
		}
		return []stream.Signal{{
			Kind: stream.SignalToolDelta,
			Tool: toolcall.Delta{Index: ev.Index, Arguments: ev.Delta.PartialJSON},
		}}, nil
	}
	// thinking_delta, signature_delta and future delta types carry nothing
	// the caller sees.
	return nil, nil
}

func (in *Interpreter) blockStop(index int) []stream.Signal {
	st, ok := in.blocks[index]
	if !ok {
		return nil
	}
	delete(in.blocks, index)

	switch st.kind {
	case "text":
		return []stream.Signal{{Kind: stream.SignalTextStop}}
	case "tool_use":
		var signals []stream.Signal
		if !st.gotArgs {
			args := st.startInput
			if args == "" || args == "null" {
				args = "{}"
			}
			signals = append(signals, stream.Signal{
				Kind: stream.SignalToolDelta,
				Tool: toolcall.Delta{Index: index, Arguments: args},
			})
		}
		return append(signals, stream.Signal{Kind: stream.SignalToolStop, Index: index})
	}
	return nil
}
