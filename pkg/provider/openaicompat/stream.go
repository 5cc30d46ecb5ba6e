package openaicompat

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/rhuss/modelbridge/pkg/classify"
	"github.com/rhuss/modelbridge/pkg/sse"
	"github.com/rhuss/modelbridge/pkg/stream"
	"github.com/rhuss/modelbridge/pkg/toolcall"
)

// Interpreter turns Chat Completions chunks into stream signals.
//
// Chunk format expected:
//
//	data: {"id":"...","model":"...","choices":[{"index":0,"delta":{...},"finish_reason":null}]}
//	data: {"id":"...","choices":[],"usage":{...}}
//	data: [DONE]
//
// Usage arrives in its own chunk after the finish reason when
// stream_options.include_usage is set. Tool calls are never closed
// individually; the normalizer flushes them at finish.
type Interpreter struct {
	started bool
}

// NewInterpreter returns an Interpreter for one stream.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Interpret implements stream.Interpreter.
func (in *Interpreter) Interpret(f sse.Frame) ([]stream.Signal, error) {
	// Some backends report failures mid-stream as {"error":{...}}.
	if gjson.GetBytes(f.Data, "error").Exists() {
		return []stream.Signal{{Kind: stream.SignalError, Err: classify.FromStreamPayload(f.Data)}}, nil
	}

	var chunk ChatCompletionChunk
	if err := json.Unmarshal(f.Data, &chunk); err != nil {
		return nil, fmt.Errorf("decoding chat completion chunk: %w", err)
	}

	var signals []stream.Signal
	if !in.started {
		in.started = true
		signals = append(signals, stream.Signal{Kind: stream.SignalStart, ID: chunk.ID, Model: chunk.Model})
	}

	var finish *string
	for _, choice := range chunk.Choices {
		// Only the first choice is surfaced; requests always ask for n=1.
		if choice.Index != 0 {
			continue
		}
		delta := choice.Delta
		if delta.Content != nil && *delta.Content != "" {
			signals = append(signals, stream.Signal{Kind: stream.SignalTextDelta, Text: *delta.Content})
		}
		for _, tc := range delta.ToolCalls {
			signals = append(signals, stream.Signal{
				Kind: stream.SignalToolDelta,
				Tool: toolcall.Delta{
					Index:     tc.Index,
					ID:        tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		if choice.FinishReason != nil && *choice.FinishReason != "" {
			finish = choice.FinishReason
		}
	}

	// Usage goes first so a chunk carrying both finishes in one step.
	if chunk.Usage != nil {
		u := chunk.Usage.toUsage()
		signals = append(signals, stream.Signal{Kind: stream.SignalUsage, Usage: &u})
	}
	if finish != nil {
		signals = append(signals, stream.Signal{Kind: stream.SignalFinish, Reason: MapFinishReason(*finish)})
	}
	return signals, nil
}
