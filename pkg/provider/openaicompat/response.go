package openaicompat

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/toolcall"
)

// TranslateResponse converts a ChatCompletionResponse into a Result. It uses
// only choices[0] and maps content, tool calls, finish reason, and usage.
func TranslateResponse(resp *ChatCompletionResponse) (*api.Result, error) {
	res := &api.Result{
		ID:    resp.ID,
		Model: resp.Model,
	}
	if resp.Usage != nil {
		res.Usage = resp.Usage.toUsage()
	}

	// Need at least one choice. Empty choices means the backend produced no output.
	if len(resp.Choices) == 0 {
		return nil, api.NewError(api.ErrorKindIncompleteResponse, "backend returned no choices").
			WithBody(resp)
	}
	choice := resp.Choices[0]

	res.Text = ExtractContent(choice.Message.Content)
	res.FinishReason = MapFinishReason(choice.FinishReason)

	// Complete calls go through the assembler too, so a call without a name
	// is dropped and a missing id is synthesized the same way as in streams.
	asm := toolcall.New()
	for i, tc := range choice.Message.ToolCalls {
		asm.Apply(toolcall.Delta{
			Index:     i,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	res.ToolCalls = asm.Flush()

	return res, nil
}

func (u *ChatUsage) toUsage() api.Usage {
	return api.Usage{}.Merge(api.Usage{
		InputTokens:  u.PromptTokens,
		OutputTokens: u.CompletionTokens,
		TotalTokens:  u.TotalTokens,
	})
}

// MapFinishReason converts a Chat Completions finish_reason string to a
// FinishReason.
func MapFinishReason(reason string) api.FinishReason {
	switch reason {
	case "stop":
		return api.FinishReasonStop
	case "length":
		return api.FinishReasonLength
	case "tool_calls", "function_call":
		return api.FinishReasonToolCalls
	case "content_filter":
		return api.FinishReasonContentFilter
	case "":
		return api.FinishReasonOther
	default:
		slog.Warn("unknown finish_reason, treating as other", "finish_reason", reason)
		return api.FinishReasonOther
	}
}

// ExtractContent returns the text of a message content that is either a
// string, an array of parts, or null.
func ExtractContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []ChatContentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}
