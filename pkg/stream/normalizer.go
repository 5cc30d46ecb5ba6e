// Package stream turns a decoded SSE response into the grammar-agnostic
// caller event sequence:
//
//	stream-start
//	(text-start text-delta* text-end | tool-call)*
//	finish
//
// with non-terminal parse-error events for malformed frames and a single
// terminal error event when the upstream fails or the call is cancelled.
//
// A per-grammar Interpreter turns frames into Signals; the state machine in
// this package is shared by every grammar.
package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/debug"
	"github.com/rhuss/modelbridge/pkg/observability"
	"github.com/rhuss/modelbridge/pkg/sse"
	"github.com/rhuss/modelbridge/pkg/structured"
)

// Config selects the grammar and options of one stream.
type Config struct {
	Interpreter Interpreter
	// Plan is the active structured-output plan, or nil.
	Plan *structured.Plan
	// Provider labels logs and metrics.
	Provider string
}

// eventBuffer is the number of ordinary events buffered ahead of a slow
// consumer.
const eventBuffer = 16

// drainPoll is how often a producer blocked on a full buffer rechecks it.
const drainPoll = 5 * time.Millisecond

// Start runs the normalizer in a new goroutine and returns its event
// channel. The channel is closed after the terminal event. The body is
// closed on every exit path.
func Start(ctx context.Context, body io.ReadCloser, cfg Config) <-chan api.StreamEvent {
	ch := make(chan api.StreamEvent, eventBuffer+1)
	go func() {
		defer close(ch)
		Run(ctx, body, cfg, ch)
	}()
	return ch
}

// Run reads body until a terminal event has been sent on out, then closes
// body. It does not close out. When out has room for more than one event,
// its last slot is kept free for the terminal event, so a cancellation
// is delivered even to a consumer that stopped reading.
func Run(ctx context.Context, body io.ReadCloser, cfg Config, out chan<- api.StreamEvent) {
	defer body.Close()

	observability.StreamsActive.Inc()
	defer observability.StreamsActive.Dec()

	// Unblock a pending read when the caller goes away.
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	n := &normalizer{
		ctx:      ctx,
		cfg:      cfg,
		state:    NewState(cfg.Plan),
		out:      out,
		provider: cfg.Provider,
	}
	n.run(sse.NewDecoder(body))
}

type normalizer struct {
	ctx      context.Context
	cfg      Config
	state    *State
	out      chan<- api.StreamEvent
	provider string

	terminalSent bool
}

func (n *normalizer) run(dec *sse.Decoder) {
	for {
		if n.ctx.Err() != nil {
			n.cancelled()
			return
		}

		frame, err := dec.Next()
		if errors.Is(err, io.EOF) {
			n.endOfStream()
			return
		}
		if err != nil {
			if n.ctx.Err() != nil {
				n.cancelled()
				return
			}
			n.fail(asAPIError(err))
			return
		}

		if frame.Err != nil {
			if !n.parseError(frame.Err) {
				return
			}
			continue
		}

		signals, err := n.cfg.Interpreter.Interpret(frame)
		if err != nil {
			if !n.parseError(asParseError(err, frame)) {
				return
			}
			continue
		}

		for _, sig := range signals {
			if done := n.apply(sig); done {
				return
			}
		}
	}
}

// apply handles one signal and reports whether the stream is over.
func (n *normalizer) apply(sig Signal) bool {
	s := n.state
	debug.Trace(debug.Streaming, "signal", "provider", n.provider, "kind", sig.Kind.String(), "phase", s.Phase.String())

	switch sig.Kind {
	case SignalStart:
		if sig.ID != "" && s.ResponseID == "" {
			s.ResponseID = sig.ID
		}
		if sig.Model != "" && s.Model == "" {
			s.Model = sig.Model
		}
		s.mergeUsage(sig.Usage)
		return !n.ensureStarted()

	case SignalTextDelta:
		if sig.Text == "" {
			return false
		}
		if !n.ensureStarted() || !n.openText() {
			return true
		}
		if s.plan != nil {
			s.text.WriteString(sig.Text)
		}
		return !n.emit(api.StreamEvent{Type: api.EventTextDelta, ID: s.textID, Delta: sig.Text})

	case SignalTextStop:
		return !n.closeText()

	case SignalToolDelta:
		if !n.ensureStarted() || !n.closeText() {
			return true
		}
		s.Phase = PhaseStreaming
		s.tools.Apply(sig.Tool)
		return false

	case SignalToolStop:
		inv, ok := s.tools.Close(sig.Index)
		if !ok {
			return false
		}
		return !n.toolCall(inv)

	case SignalUsage:
		s.mergeUsage(sig.Usage)
		if s.finishReady() {
			return n.finish()
		}
		return false

	case SignalFinish:
		s.reason = sig.Reason
		s.hasReason = true
		s.Phase = PhaseFinishing
		if s.finishReady() {
			return n.finish()
		}
		return false

	case SignalDone:
		n.endOfStream()
		return true

	case SignalError:
		err := sig.Err
		if err == nil {
			err = api.NewStreamError("")
		}
		n.fail(err)
		return true
	}
	return false
}

// ensureStarted emits stream-start once.
func (n *normalizer) ensureStarted() bool {
	s := n.state
	if s.Phase != PhaseIdle {
		return true
	}
	s.Phase = PhaseStarted
	debug.Log(debug.Streaming, "stream started", "provider", n.provider, "id", s.ResponseID, "model", s.Model)
	return n.emit(api.StreamEvent{Type: api.EventStreamStart, ID: s.ResponseID, Model: s.Model})
}

func (n *normalizer) openText() bool {
	s := n.state
	s.Phase = PhaseStreaming
	if s.textOpen {
		return true
	}
	s.textID = api.NewTextID()
	s.textOpen = true
	return n.emit(api.StreamEvent{Type: api.EventTextStart, ID: s.textID})
}

func (n *normalizer) closeText() bool {
	s := n.state
	if !s.textOpen {
		return true
	}
	s.textOpen = false
	return n.emit(api.StreamEvent{Type: api.EventTextEnd, ID: s.textID})
}

// toolCall emits a completed invocation, or holds it until finish while a
// plan is active.
func (n *normalizer) toolCall(inv api.ToolInvocation) bool {
	if n.state.plan != nil {
		n.state.held = append(n.state.held, inv)
		return true
	}
	return n.emit(api.StreamEvent{Type: api.EventToolCall, ToolCall: &inv})
}

// finish closes open text, flushes pending tool calls, emits the unwrapped
// structured output, then the single finish event. It always reports true.
func (n *normalizer) finish() bool {
	s := n.state
	if s.Phase == PhaseClosed {
		return true
	}
	if !n.ensureStarted() || !n.closeText() {
		return true
	}

	for _, inv := range s.tools.Flush() {
		if !n.toolCall(inv) {
			return true
		}
	}

	if s.plan != nil && len(s.held) > 0 {
		streamed := s.text.String()
		if unwrapped := s.plan.Unwrap(streamed, s.held); unwrapped != "" && unwrapped != streamed {
			if !n.openText() ||
				!n.emit(api.StreamEvent{Type: api.EventTextDelta, ID: s.textID, Delta: unwrapped}) ||
				!n.closeText() {
				return true
			}
		}
		for i := range s.held {
			inv := s.held[i]
			if !n.emit(api.StreamEvent{Type: api.EventToolCall, ToolCall: &inv}) {
				return true
			}
		}
		s.held = nil
	}

	reason := s.reason
	if !s.hasReason {
		reason = api.FinishReasonOther
	}
	usage := api.Usage{}
	if s.usage != nil {
		usage = *s.usage
	}
	s.Phase = PhaseClosed

	observability.RecordUsage(n.provider, s.Model, usage)
	debug.Log(debug.Streaming, "stream finished", "provider", n.provider, "reason", reason,
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	n.emit(api.StreamEvent{Type: api.EventFinish, FinishReason: reason, Usage: &usage})
	return true
}

// endOfStream finishes a stream that ended without both finish reason and
// usage. A stream that never produced anything is reported as incomplete.
func (n *normalizer) endOfStream() {
	if n.state.Phase == PhaseIdle && !n.state.hasReason {
		n.fail(api.NewError(api.ErrorKindIncompleteResponse, "stream ended before any content"))
		return
	}
	n.finish()
}

func (n *normalizer) parseError(err *api.APIError) bool {
	observability.MalformedFramesTotal.WithLabelValues(n.provider).Inc()
	return n.emit(api.StreamEvent{Type: api.EventParseError, Err: err})
}

func (n *normalizer) fail(err *api.APIError) {
	n.state.Phase = PhaseClosed
	debug.Log(debug.Streaming, "stream failed", "provider", n.provider, "kind", err.Kind, "error", err.Message)
	n.emit(api.StreamEvent{Type: api.EventError, Err: err})
}

// cancelled sends the terminal cancellation event without blocking: the
// consumer may already have stopped reading. The reserved slot leaves room
// for it.
func (n *normalizer) cancelled() {
	n.state.Phase = PhaseClosed
	if n.terminalSent {
		return
	}
	ev := api.StreamEvent{Type: api.EventError, Err: api.NewCancelledError(n.ctx.Err())}
	select {
	case n.out <- ev:
		n.terminalSent = true
		observability.StreamEventsTotal.WithLabelValues(n.provider, string(ev.Type)).Inc()
	default:
	}
}

// emit sends ev unless the context is done. It reports whether ev was sent.
// Non-terminal events wait while only the reserved slot is left.
func (n *normalizer) emit(ev api.StreamEvent) bool {
	for !ev.IsTerminal() && n.onlyReserveLeft() {
		select {
		case <-n.ctx.Done():
			n.cancelled()
			return false
		case <-time.After(drainPoll):
		}
	}
	if n.ctx.Err() != nil {
		n.cancelled()
		return false
	}
	select {
	case n.out <- ev:
		n.terminalSent = ev.IsTerminal()
		observability.StreamEventsTotal.WithLabelValues(n.provider, string(ev.Type)).Inc()
		return true
	case <-n.ctx.Done():
		n.cancelled()
		return false
	}
}

// onlyReserveLeft reports whether out is full apart from the terminal slot.
// The normalizer is the only sender, so the slot cannot be taken between
// this check and the send.
func (n *normalizer) onlyReserveLeft() bool {
	c := cap(n.out)
	return c > 1 && len(n.out) >= c-1
}

func asAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return api.NewStreamError(err.Error()).WithCause(err)
}

func asParseError(err error, f sse.Frame) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return api.NewError(api.ErrorKindMalformedResponse, err.Error()).WithBody(f.Raw).WithCause(err)
}
