package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/executor"
	"github.com/rhuss/modelbridge/pkg/provider"
	"github.com/rhuss/modelbridge/pkg/provider/anthropic"
	"github.com/rhuss/modelbridge/pkg/provider/openaicompat"
)

func noSleep(context.Context, time.Duration) error { return nil }

func newTestExecutor(headers map[string]string) *executor.Executor {
	cfg := executor.DefaultConfig()
	cfg.Headers = headers
	return executor.New(cfg, executor.WithProvider("mock"), executor.WithSleep(noSleep))
}

// providers returns one client per grammar, each pointed at its own mock
// server so fault scripts are not shared.
func providers(t *testing.T, headers map[string]string) map[string]provider.Provider {
	t.Helper()
	newServer := func() string {
		srv := httptest.NewServer(newMux(newFaults()))
		t.Cleanup(srv.Close)
		return srv.URL
	}

	return map[string]provider.Provider{
		"chat":     openaicompat.New(newServer(), "sk-mock", openaicompat.WithExecutor(newTestExecutor(headers))),
		"messages": anthropic.New(newServer(), "sk-mock", anthropic.WithExecutor(newTestExecutor(headers))),
	}
}

func call(prompt string) *api.CallOptions {
	return &api.CallOptions{
		Model:    "mock-model",
		Messages: []api.Message{api.TextMessage(api.RoleUser, prompt)},
	}
}

func collect(t *testing.T, ch <-chan api.StreamEvent) []api.StreamEvent {
	t.Helper()
	var events []api.StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func streamedText(events []api.StreamEvent) string {
	var b strings.Builder
	for _, ev := range events {
		if ev.Type == api.EventTextDelta {
			b.WriteString(ev.Delta)
		}
	}
	return b.String()
}

func TestGenerateText(t *testing.T) {
	for name, p := range providers(t, nil) {
		t.Run(name, func(t *testing.T) {
			res, err := p.Generate(context.Background(), call("Please count from 1 to 5"))
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if res.Text != "1, 2, 3, 4, 5" || res.FinishReason != api.FinishReasonStop {
				t.Errorf("result = %+v", res)
			}
		})
	}
}

func TestGenerateStructuredOutput(t *testing.T) {
	opts := call("Where is the Eiffel tower?")
	opts.ResponseFormat = &api.ResponseFormat{
		Name:   "location",
		Schema: json.RawMessage(`{"type":"object","properties":{"city":{"type":"string"},"unit":{"enum":["celsius","fahrenheit"]}}}`),
	}

	for name, p := range providers(t, nil) {
		t.Run(name, func(t *testing.T) {
			res, err := p.Generate(context.Background(), opts)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if res.Text != `{"city":"mock","unit":"celsius"}` {
				t.Errorf("text = %q", res.Text)
			}
		})
	}
}

func TestGenerateRetriesInjectedFailures(t *testing.T) {
	headers := map[string]string{"X-Mock-Fail": "503,429"}
	for name, p := range providers(t, headers) {
		t.Run(name, func(t *testing.T) {
			res, err := p.Generate(context.Background(), call("hi"))
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if res.Text != "Hello, nice day!" {
				t.Errorf("text = %q", res.Text)
			}
		})
	}
}

func TestGenerateExhaustsAttempts(t *testing.T) {
	headers := map[string]string{"X-Mock-Fail": "500,500,500"}
	for name, p := range providers(t, headers) {
		t.Run(name, func(t *testing.T) {
			_, err := p.Generate(context.Background(), call("hi"))
			if err == nil {
				t.Fatal("expected error after three failed attempts")
			}
		})
	}
}

func TestStreamText(t *testing.T) {
	for name, p := range providers(t, nil) {
		t.Run(name, func(t *testing.T) {
			ch, err := p.Stream(context.Background(), call("hi"))
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			events := collect(t, ch)
			if got := streamedText(events); got != "Hello, nice day!" {
				t.Errorf("text = %q", got)
			}
			last := events[len(events)-1]
			if last.Type != api.EventFinish || last.FinishReason != api.FinishReasonStop {
				t.Errorf("last event = %+v", last)
			}
			if last.Usage == nil || last.Usage.InputTokens != 10 {
				t.Errorf("usage = %+v", last.Usage)
			}
		})
	}
}

func TestStreamToolCallFragments(t *testing.T) {
	opts := call("weather?")
	opts.Tools = []api.ToolDefinition{{
		Name:       "get_weather",
		Parameters: json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"},"days":{"type":"integer"}}}`),
	}}

	for name, p := range providers(t, nil) {
		t.Run(name, func(t *testing.T) {
			ch, err := p.Stream(context.Background(), opts)
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			var calls []api.ToolInvocation
			var finish api.FinishReason
			for _, ev := range collect(t, ch) {
				switch ev.Type {
				case api.EventToolCall:
					calls = append(calls, *ev.ToolCall)
				case api.EventFinish:
					finish = ev.FinishReason
				}
			}
			if len(calls) != 1 || calls[0].Name != "get_weather" || calls[0].Arguments != `{"days":1,"location":"mock"}` {
				t.Errorf("tool calls = %+v", calls)
			}
			if finish != api.FinishReasonToolCalls {
				t.Errorf("finish = %q", finish)
			}
		})
	}
}

func TestStreamMalformedFrame(t *testing.T) {
	for name, p := range providers(t, map[string]string{"X-Mock-Malformed": "1"}) {
		t.Run(name, func(t *testing.T) {
			ch, err := p.Stream(context.Background(), call("hi"))
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			events := collect(t, ch)
			var parseErrors int
			for _, ev := range events {
				if ev.Type == api.EventParseError {
					parseErrors++
				}
			}
			if parseErrors != 1 {
				t.Errorf("parse errors = %d", parseErrors)
			}
			if got := streamedText(events); got != "Hello, nice day!" {
				t.Errorf("text = %q", got)
			}
			if events[len(events)-1].Type != api.EventFinish {
				t.Errorf("stream did not finish: %+v", events[len(events)-1])
			}
		})
	}
}

func TestStreamTruncated(t *testing.T) {
	for name, p := range providers(t, map[string]string{"X-Mock-Truncate": "1"}) {
		t.Run(name, func(t *testing.T) {
			ch, err := p.Stream(context.Background(), call("hi"))
			if err != nil {
				t.Fatalf("Stream: %v", err)
			}
			events := collect(t, ch)
			last := events[len(events)-1]
			if last.Type != api.EventFinish || last.FinishReason != api.FinishReasonOther {
				t.Errorf("last event = %+v", last)
			}
		})
	}
}

func TestFaultScript(t *testing.T) {
	f := newFaults()
	for i, want := range []int{503, 429, 0} {
		got, ok := f.next("s", "503, 429")
		if want == 0 {
			if ok {
				t.Errorf("attempt %d: unexpected status %d", i, got)
			}
			continue
		}
		if !ok || got != want {
			t.Errorf("attempt %d: status = %d, want %d", i, got, want)
		}
	}
}

func TestMessagesRequiresAPIKey(t *testing.T) {
	srv := httptest.NewServer(newMux(newFaults()))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/messages", "application/json", strings.NewReader(`{"model":"m","messages":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
