package api

// StreamEventType classifies a caller-facing streaming event.
type StreamEventType string

const (
	EventStreamStart StreamEventType = "stream-start"
	EventTextStart   StreamEventType = "text-start"
	EventTextDelta   StreamEventType = "text-delta"
	EventTextEnd     StreamEventType = "text-end"
	EventToolCall    StreamEventType = "tool-call"
	EventFinish      StreamEventType = "finish"

	// EventParseError marks a frame that could not be decoded. The stream
	// continues after it.
	EventParseError StreamEventType = "parse-error"

	// EventError is terminal: no further events follow it.
	EventError StreamEventType = "error"
)

// StreamEvent is one element of the grammar-agnostic event sequence.
// Which fields are set depends on Type.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// ID is the response id for stream-start and the text segment id for
	// text-start, text-delta and text-end.
	ID    string `json:"id,omitempty"`
	Model string `json:"model,omitempty"`
	Delta string `json:"delta,omitempty"`

	// ToolCall is set for tool-call events.
	ToolCall *ToolInvocation `json:"tool_call,omitempty"`

	// FinishReason and Usage are set for finish events.
	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`

	// Err is set for parse-error and error events.
	Err *APIError `json:"error,omitempty"`
}

// IsTerminal reports whether no event can follow e.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventFinish || e.Type == EventError
}
