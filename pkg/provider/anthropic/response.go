package anthropic

import (
	"log/slog"
	"strings"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/toolcall"
)

// TranslateResponse converts a MessagesResponse into a Result. Text blocks
// are concatenated; tool_use blocks become invocations.
func TranslateResponse(resp *MessagesResponse) (*api.Result, error) {
	if resp.Type == "error" {
		return nil, api.NewError(api.ErrorKindMalformedResponse, "backend returned an error object with a success status")
	}

	res := &api.Result{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: MapStopReason(resp.StopReason),
	}
	if resp.Usage != nil {
		res.Usage = resp.Usage.toUsage()
	}

	var text strings.Builder
	asm := toolcall.New()
	for i, b := range resp.Content {
		switch b.Type {
		case "text":
			text.WriteString(b.Text)
		case "tool_use":
			args := string(b.Input)
			if args == "" || args == "null" {
				args = "{}"
			}
			asm.Apply(toolcall.Delta{Index: i, ID: b.ID, Name: b.Name, Arguments: args})
		}
	}
	res.Text = text.String()
	res.ToolCalls = asm.Flush()
	return res, nil
}

func (u *Usage) toUsage() api.Usage {
	return api.Usage{}.Merge(api.Usage{
		InputTokens:  u.InputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens,
		OutputTokens: u.OutputTokens,
	})
}

// MapStopReason converts a Messages API stop_reason to a FinishReason.
func MapStopReason(reason string) api.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence", "pause_turn":
		return api.FinishReasonStop
	case "max_tokens", "model_context_window_exceeded":
		return api.FinishReasonLength
	case "tool_use":
		return api.FinishReasonToolCalls
	case "refusal":
		return api.FinishReasonContentFilter
	case "":
		return api.FinishReasonOther
	default:
		slog.Warn("unknown stop_reason, treating as other", "stop_reason", reason)
		return api.FinishReasonOther
	}
}
