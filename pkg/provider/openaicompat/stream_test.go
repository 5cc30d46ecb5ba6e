package openaicompat

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/sse"
	"github.com/rhuss/modelbridge/pkg/stream"
)

// collectEvents runs the normalizer with a chat interpreter over sseData.
func collectEvents(t *testing.T, sseData string) []api.StreamEvent {
	t.Helper()
	ch := stream.Start(context.Background(), io.NopCloser(strings.NewReader(sseData)), stream.Config{
		Interpreter: NewInterpreter(),
		Provider:    "test",
	})
	var events []api.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func eventTypes(events []api.StreamEvent) string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = string(ev.Type)
	}
	return strings.Join(types, ",")
}

func TestInterpreter_TextWithTrailingUsage(t *testing.T) {
	sseData := `data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[{"index":0,"delta":{"role":"assistant"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[{"index":0,"delta":{"content":"Hello"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[{"index":0,"delta":{"content":" world"},"finish_reason":null}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}

data: {"id":"chatcmpl-1","object":"chat.completion.chunk","model":"gpt-4","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}

data: [DONE]
`
	events := collectEvents(t, sseData)

	want := "stream-start,text-start,text-delta,text-delta,text-end,finish"
	if got := eventTypes(events); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
	if events[0].ID != "chatcmpl-1" || events[0].Model != "gpt-4" {
		t.Errorf("stream-start = %+v", events[0])
	}
	if events[2].Delta != "Hello" || events[3].Delta != " world" {
		t.Errorf("deltas = %q %q", events[2].Delta, events[3].Delta)
	}
	if events[1].ID != events[2].ID || events[2].ID != events[4].ID {
		t.Error("text segment ids differ")
	}
	finish := events[5]
	if finish.FinishReason != api.FinishReasonStop {
		t.Errorf("finish reason = %q", finish.FinishReason)
	}
	if *finish.Usage != (api.Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7}) {
		t.Errorf("usage = %+v", finish.Usage)
	}
}

func TestInterpreter_ToolCallFragments(t *testing.T) {
	sseData := `data: {"id":"c","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_abc","type":"function","function":{"name":"get_weather","arguments":""}}]},"finish_reason":null}]}

data: {"id":"c","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"ci"}}]},"finish_reason":null}]}

data: {"id":"c","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_def","function":{"name":"get_time","arguments":"{}"}}]},"finish_reason":null}]}

data: {"id":"c","model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ty\":\"Berlin\"}"}}]},"finish_reason":null}]}

data: {"id":"c","model":"m","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}

data: [DONE]
`
	events := collectEvents(t, sseData)

	want := "stream-start,tool-call,tool-call,finish"
	if got := eventTypes(events); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
	first := events[1].ToolCall
	if first.ID != "call_abc" || first.Name != "get_weather" || first.Arguments != `{"city":"Berlin"}` {
		t.Errorf("first call = %+v", first)
	}
	second := events[2].ToolCall
	if second.ID != "call_def" || second.Name != "get_time" {
		t.Errorf("second call = %+v", second)
	}
	if events[3].FinishReason != api.FinishReasonToolCalls {
		t.Errorf("finish reason = %q", events[3].FinishReason)
	}
}

func TestInterpreter_MalformedChunkIsNotFatal(t *testing.T) {
	sseData := `data: {"id":"c","model":"m","choices":[{"index":0,"delta":{"content":"a"}}]}

data: {"choices": "not-an-array"}

data: {"id":"c","model":"m","choices":[{"index":0,"delta":{"content":"b"},"finish_reason":"stop"}]}

data: [DONE]
`
	events := collectEvents(t, sseData)

	want := "stream-start,text-start,text-delta,parse-error,text-delta,text-end,finish"
	if got := eventTypes(events); got != want {
		t.Fatalf("events = %s, want %s", got, want)
	}
	if events[3].Err.Kind != api.ErrorKindMalformedResponse {
		t.Errorf("parse error kind = %q", events[3].Err.Kind)
	}
	if events[6].Usage == nil || *events[6].Usage != (api.Usage{}) {
		t.Errorf("expected zero usage at end of stream, got %+v", events[6].Usage)
	}
}

func TestInterpreter_ErrorChunk(t *testing.T) {
	sseData := `data: {"id":"c","model":"m","choices":[{"index":0,"delta":{"content":"a"}}]}

data: {"error":{"message":"Rate limit reached","type":"rate_limit_error","code":"rate_limit_exceeded"}}

data: {"id":"c","model":"m","choices":[{"index":0,"delta":{"content":"never"}}]}
`
	events := collectEvents(t, sseData)

	last := events[len(events)-1]
	if last.Type != api.EventError {
		t.Fatalf("expected terminal error, got %s", eventTypes(events))
	}
	if last.Err.Kind != api.ErrorKindRateLimited {
		t.Errorf("error kind = %q", last.Err.Kind)
	}
	for _, ev := range events {
		if ev.Delta == "never" {
			t.Error("frame after error was processed")
		}
	}
}

func TestInterpreter_SignalsPerChunk(t *testing.T) {
	in := NewInterpreter()

	sig, err := in.Interpret(sse.Frame{Data: []byte(`{"id":"c","model":"m","choices":[{"index":0,"delta":{"content":"x"}}]}`)})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(sig) != 2 || sig[0].Kind != stream.SignalStart || sig[1].Kind != stream.SignalTextDelta {
		t.Errorf("first chunk signals = %+v", sig)
	}

	sig, err = in.Interpret(sse.Frame{Data: []byte(`{"choices":[{"index":0,"delta":{},"finish_reason":"length"}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`)})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(sig) != 2 || sig[0].Kind != stream.SignalUsage || sig[1].Kind != stream.SignalFinish {
		t.Fatalf("finish chunk signals = %+v", sig)
	}
	if sig[1].Reason != api.FinishReasonLength || sig[0].Usage.TotalTokens != 2 {
		t.Errorf("finish chunk = %+v %+v", sig[0], sig[1])
	}

	sig, _ = in.Interpret(sse.Frame{Data: []byte(`{"choices":[{"index":1,"delta":{"content":"other choice"}}]}`)})
	if len(sig) != 0 {
		t.Errorf("non-zero choice index produced signals: %+v", sig)
	}
}
