package anthropic

import (
	"encoding/json"
	"strings"

	"github.com/rhuss/modelbridge/pkg/api"
)

// DefaultMaxTokens is sent when neither the call nor the client sets a limit;
// the Messages API requires one.
const DefaultMaxTokens = 4096

// TranslateRequest converts prepared call options into a MessagesRequest.
func TranslateRequest(opts *api.CallOptions, maxTokens int, stream bool) MessagesRequest {
	if opts.MaxTokens != nil && *opts.MaxTokens > 0 {
		maxTokens = *opts.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	mr := MessagesRequest{
		Model:         opts.Model,
		MaxTokens:     maxTokens,
		Temperature:   opts.Temperature,
		TopP:          opts.TopP,
		StopSequences: opts.Stop,
		Stream:        stream,
	}

	system := []string{}
	if opts.System != "" {
		system = append(system, opts.System)
	}

	for _, m := range opts.Messages {
		if m.Role == api.RoleSystem {
			if m.Text != "" {
				system = append(system, m.Text)
			}
			continue
		}
		blocks := translateContent(m)
		if len(blocks) == 0 {
			continue
		}
		role := "user"
		if m.Role == api.RoleAssistant {
			role = "assistant"
		}
		// Consecutive turns of the same role are merged; the API requires
		// strict alternation.
		if n := len(mr.Messages); n > 0 && mr.Messages[n-1].Role == role {
			mr.Messages[n-1].Content = append(mr.Messages[n-1].Content, blocks...)
			continue
		}
		mr.Messages = append(mr.Messages, Message{Role: role, Content: blocks})
	}
	mr.System = strings.Join(system, "\n\n")

	for _, t := range opts.Tools {
		mr.Tools = append(mr.Tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}
	mr.ToolChoice = translateToolChoice(opts.ToolChoice)

	return mr
}

func translateContent(m api.Message) []ContentBlock {
	var blocks []ContentBlock
	if m.Text != "" {
		blocks = append(blocks, ContentBlock{Type: "text", Text: m.Text})
	}

	for _, p := range m.Parts {
		switch p.Type {
		case api.ContentPartText:
			if p.Text != "" {
				blocks = append(blocks, ContentBlock{Type: "text", Text: p.Text})
			}
		case api.ContentPartImage:
			if src := imageSource(p); src != nil {
				blocks = append(blocks, ContentBlock{Type: "image", Source: src})
			}
		case api.ContentPartToolResult:
			blocks = append(blocks, ContentBlock{
				Type:      "tool_result",
				ToolUseID: p.ToolCallID,
				Content:   p.Result,
				IsError:   p.IsError,
			})
		}
	}

	for _, tc := range m.ToolCalls {
		blocks = append(blocks, ContentBlock{
			Type:  "tool_use",
			ID:    tc.ID,
			Name:  tc.Name,
			Input: toolInput(tc.Arguments),
		})
	}
	return blocks
}

// toolInput returns the arguments as a JSON object; tool_use input must be
// one.
func toolInput(args string) json.RawMessage {
	trimmed := strings.TrimSpace(args)
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	return json.RawMessage(`{}`)
}

func imageSource(p api.ContentPart) *ImageSource {
	switch {
	case p.Data != "":
		mediaType := p.MediaType
		if mediaType == "" {
			mediaType = "image/png"
		}
		return &ImageSource{Type: "base64", MediaType: mediaType, Data: p.Data}
	case strings.HasPrefix(p.ImageURL, "data:"):
		// data:<media type>;base64,<payload>
		meta, data, ok := strings.Cut(strings.TrimPrefix(p.ImageURL, "data:"), ",")
		if !ok {
			return nil
		}
		return &ImageSource{Type: "base64", MediaType: strings.TrimSuffix(meta, ";base64"), Data: data}
	case p.ImageURL != "":
		return &ImageSource{Type: "url", URL: p.ImageURL}
	}
	return nil
}

func translateToolChoice(tc *api.ToolChoice) *ToolChoice {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case api.ToolChoiceAuto:
		return &ToolChoice{Type: "auto"}
	case api.ToolChoiceRequired:
		return &ToolChoice{Type: "any"}
	case api.ToolChoiceNone:
		return &ToolChoice{Type: "none"}
	case api.ToolChoiceTool:
		return &ToolChoice{Type: "tool", Name: tc.Name}
	}
	return nil
}
