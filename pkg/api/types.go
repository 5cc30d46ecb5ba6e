package api

import "encoding/json"

// Role tags a message in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentPartType identifies the kind of a content part.
type ContentPartType string

const (
	ContentPartText       ContentPartType = "text"
	ContentPartImage      ContentPartType = "image"
	ContentPartToolResult ContentPartType = "tool_result"
)

// ContentPart is one element of a multi-part message.
type ContentPart struct {
	Type ContentPartType `json:"type"`

	// Text is set for text parts.
	Text string `json:"text,omitempty"`

	// ImageURL is an http(s) or data: URL for image parts. Data holds
	// base64 image bytes when no URL is available.
	ImageURL  string `json:"image_url,omitempty"`
	Data      string `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`

	// ToolCallID, ToolName and Result are set for tool result parts.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	Result     string `json:"result,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one role-tagged turn of the conversation. Either Text or Parts
// carries the content; assistant turns may also carry ToolCalls.
type Message struct {
	Role      Role             `json:"role"`
	Text      string           `json:"text,omitempty"`
	Parts     []ContentPart    `json:"parts,omitempty"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
}

// TextMessage builds a plain text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Text: text}
}

// ToolResultMessage builds the message answering a tool invocation.
func ToolResultMessage(callID, name, result string) Message {
	return Message{
		Role: RoleTool,
		Parts: []ContentPart{{
			Type:       ContentPartToolResult,
			ToolCallID: callID,
			ToolName:   name,
			Result:     result,
		}},
	}
}

// ToolDefinition declares a function the model may call.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolChoiceMode is the tool-choice policy.
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceTool     ToolChoiceMode = "tool"
)

// ToolChoice selects how the model may use the declared tools. Name is set
// only for ToolChoiceTool.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// ResponseFormat requests a schema-conformant final answer.
type ResponseFormat struct {
	// Schema is the JSON schema the answer must follow.
	Schema json.RawMessage `json:"schema"`
	// Name is a hint used to derive the tool name.
	Name string `json:"name,omitempty"`
	// Description is restated to the model.
	Description string `json:"description,omitempty"`
}

// CallOptions carries everything a single model invocation needs besides
// the endpoint and credential held by the provider.
type CallOptions struct {
	Model          string            `json:"model"`
	System         string            `json:"system,omitempty"`
	Messages       []Message         `json:"messages"`
	Temperature    *float64          `json:"temperature,omitempty"`
	TopP           *float64          `json:"top_p,omitempty"`
	MaxTokens      *int              `json:"max_tokens,omitempty"`
	Stop           []string          `json:"stop,omitempty"`
	Tools          []ToolDefinition  `json:"tools,omitempty"`
	ToolChoice     *ToolChoice       `json:"tool_choice,omitempty"`
	ResponseFormat *ResponseFormat   `json:"response_format,omitempty"`
	Headers        map[string]string `json:"-"`
}

// Clone returns a copy of o whose slices can be modified without affecting o.
func (o *CallOptions) Clone() *CallOptions {
	c := *o
	c.Messages = append([]Message(nil), o.Messages...)
	c.Tools = append([]ToolDefinition(nil), o.Tools...)
	c.Stop = append([]string(nil), o.Stop...)
	if o.ToolChoice != nil {
		tc := *o.ToolChoice
		c.ToolChoice = &tc
	}
	return &c
}

// ToolInvocation is a completed tool call. Arguments is kept as the JSON text
// received from the backend.
type ToolInvocation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage holds token counts for one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Merge overlays the non-zero counts of u2 onto u and recomputes the total
// when the backend did not report one.
func (u Usage) Merge(u2 Usage) Usage {
	if u2.InputTokens != 0 {
		u.InputTokens = u2.InputTokens
	}
	if u2.OutputTokens != 0 {
		u.OutputTokens = u2.OutputTokens
	}
	if u2.TotalTokens != 0 {
		u.TotalTokens = u2.TotalTokens
	}
	if u.TotalTokens < u.InputTokens+u.OutputTokens {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

// FinishReason explains why generation stopped.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool-calls"
	FinishReasonContentFilter FinishReason = "content-filter"
	FinishReasonError         FinishReason = "error"
	FinishReasonOther         FinishReason = "other"
)

// Result is the outcome of a non-streaming call.
type Result struct {
	ID           string           `json:"id,omitempty"`
	Model        string           `json:"model,omitempty"`
	Text         string           `json:"text"`
	ToolCalls    []ToolInvocation `json:"tool_calls,omitempty"`
	FinishReason FinishReason     `json:"finish_reason"`
	Usage        Usage            `json:"usage"`
}
