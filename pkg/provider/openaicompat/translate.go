package openaicompat

import (
	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/structured"
)

// TranslateRequest converts prepared call options into a ChatCompletionRequest
// for the /v1/chat/completions endpoint.
func TranslateRequest(opts *api.CallOptions, stream bool) ChatCompletionRequest {
	cr := ChatCompletionRequest{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.Stop,
		N:           1,
		Stream:      stream,
	}

	// When streaming, enable usage reporting in the stream.
	if stream {
		cr.StreamOptions = &ChatStreamOptions{IncludeUsage: true}
	}

	if opts.System != "" {
		cr.Messages = append(cr.Messages, ChatMessage{Role: string(api.RoleSystem), Content: opts.System})
	}
	for _, m := range opts.Messages {
		cr.Messages = append(cr.Messages, translateMessage(m)...)
	}

	for _, t := range opts.Tools {
		cr.Tools = append(cr.Tools, ChatTool{
			Type: "function",
			Function: ChatFunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	cr.ToolChoice = translateToolChoice(opts.ToolChoice)

	if rf := opts.ResponseFormat; rf != nil {
		cr.ResponseFormat = &ChatResponseFormat{
			Type: "json_schema",
			JSONSchema: &ChatJSONSchema{
				Name:        structured.SanitizeToolName(rf.Name),
				Description: rf.Description,
				Schema:      structured.SanitizeSchema(rf.Schema),
				Strict:      true,
			},
		}
	}

	return cr
}

// translateMessage maps one message. Tool results become separate "tool"
// messages, so a single message can expand into several.
func translateMessage(m api.Message) []ChatMessage {
	var out []ChatMessage
	var parts []ChatContentPart

	for _, p := range m.Parts {
		switch p.Type {
		case api.ContentPartText:
			parts = append(parts, ChatContentPart{Type: "text", Text: p.Text})
		case api.ContentPartImage:
			if u := imageURL(p); u != "" {
				parts = append(parts, ChatContentPart{Type: "image_url", ImageURL: &ChatImageURL{URL: u}})
			}
		case api.ContentPartToolResult:
			out = append(out, ChatMessage{
				Role:       string(api.RoleTool),
				Content:    p.Result,
				ToolCallID: p.ToolCallID,
			})
		}
	}

	if len(out) > 0 && m.Text == "" && len(parts) == 0 && len(m.ToolCalls) == 0 {
		return out
	}

	cm := ChatMessage{Role: string(m.Role)}
	if m.Role == api.RoleTool {
		cm.Role = string(api.RoleUser)
	}
	switch {
	case len(parts) > 0:
		if m.Text != "" {
			parts = append([]ChatContentPart{{Type: "text", Text: m.Text}}, parts...)
		}
		cm.Content = parts
	case m.Text != "":
		cm.Content = m.Text
	case len(m.ToolCalls) == 0:
		cm.Content = ""
	}

	for _, tc := range m.ToolCalls {
		cm.ToolCalls = append(cm.ToolCalls, ChatToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: ChatFunctionCall{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}

	if cm.Content == nil && len(cm.ToolCalls) == 0 {
		return out
	}
	return append([]ChatMessage{cm}, out...)
}

func imageURL(p api.ContentPart) string {
	if p.ImageURL != "" {
		return p.ImageURL
	}
	if p.Data == "" {
		return ""
	}
	mediaType := p.MediaType
	if mediaType == "" {
		mediaType = "image/png"
	}
	return "data:" + mediaType + ";base64," + p.Data
}

// translateToolChoice maps the tool choice. The request uses `any` so both
// the string modes and the structured named form fit.
func translateToolChoice(tc *api.ToolChoice) any {
	if tc == nil {
		return nil
	}
	switch tc.Mode {
	case api.ToolChoiceAuto, api.ToolChoiceNone, api.ToolChoiceRequired:
		return string(tc.Mode)
	case api.ToolChoiceTool:
		named := ChatNamedToolChoice{Type: "function"}
		named.Function.Name = tc.Name
		return named
	}
	return nil
}
