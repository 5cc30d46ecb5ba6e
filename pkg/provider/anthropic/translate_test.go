package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/rhuss/modelbridge/pkg/api"
)

func TestTranslateRequest_SystemAndMaxTokens(t *testing.T) {
	opts := &api.CallOptions{
		Model:  "claude-test",
		System: "Be brief.",
		Messages: []api.Message{
			api.TextMessage(api.RoleSystem, "Answer in German."),
			api.TextMessage(api.RoleUser, "Hello"),
		},
		Stop: []string{"END"},
	}

	mr := TranslateRequest(opts, 0, false)
	if mr.MaxTokens != DefaultMaxTokens {
		t.Errorf("max_tokens = %d, want %d", mr.MaxTokens, DefaultMaxTokens)
	}
	if mr.System != "Be brief.\n\nAnswer in German." {
		t.Errorf("system = %q", mr.System)
	}
	if len(mr.Messages) != 1 || mr.Messages[0].Role != "user" || mr.Messages[0].Content[0].Text != "Hello" {
		t.Errorf("messages = %+v", mr.Messages)
	}
	if mr.StopSequences[0] != "END" || mr.Stream {
		t.Errorf("unexpected request: %+v", mr)
	}

	n := 99
	opts.MaxTokens = &n
	if got := TranslateRequest(opts, 2048, true); got.MaxTokens != 99 || !got.Stream {
		t.Errorf("call max_tokens not preferred: %+v", got)
	}
	opts.MaxTokens = nil
	if got := TranslateRequest(opts, 2048, false); got.MaxTokens != 2048 {
		t.Errorf("client max_tokens not used: %d", got.MaxTokens)
	}
}

func TestTranslateRequest_ToolRoundTrip(t *testing.T) {
	opts := &api.CallOptions{
		Model: "m",
		Messages: []api.Message{
			api.TextMessage(api.RoleUser, "Weather?"),
			{
				Role: api.RoleAssistant,
				Text: "Let me check.",
				ToolCalls: []api.ToolInvocation{
					{ID: "toolu_1", Name: "get_weather", Arguments: `{"city":"Berlin"}`},
					{ID: "toolu_2", Name: "get_time", Arguments: ``},
				},
			},
			api.ToolResultMessage("toolu_1", "get_weather", "sunny"),
			api.ToolResultMessage("toolu_2", "get_time", "noon"),
		},
	}

	mr := TranslateRequest(opts, 0, false)
	if len(mr.Messages) != 3 {
		t.Fatalf("expected 3 messages (tool results merged), got %d: %+v", len(mr.Messages), mr.Messages)
	}

	assistant := mr.Messages[1]
	if assistant.Role != "assistant" || len(assistant.Content) != 3 {
		t.Fatalf("assistant = %+v", assistant)
	}
	if assistant.Content[1].Type != "tool_use" || string(assistant.Content[1].Input) != `{"city":"Berlin"}` {
		t.Errorf("first tool_use = %+v", assistant.Content[1])
	}
	if string(assistant.Content[2].Input) != `{}` {
		t.Errorf("empty arguments not defaulted: %s", assistant.Content[2].Input)
	}

	results := mr.Messages[2]
	if results.Role != "user" || len(results.Content) != 2 {
		t.Fatalf("results = %+v", results)
	}
	if results.Content[0].Type != "tool_result" || results.Content[0].ToolUseID != "toolu_1" || results.Content[0].Content != "sunny" {
		t.Errorf("tool_result = %+v", results.Content[0])
	}
}

func TestTranslateRequest_Images(t *testing.T) {
	opts := &api.CallOptions{
		Model: "m",
		Messages: []api.Message{{
			Role: api.RoleUser,
			Parts: []api.ContentPart{
				{Type: api.ContentPartText, Text: "What is this?"},
				{Type: api.ContentPartImage, ImageURL: "https://example.com/a.png"},
				{Type: api.ContentPartImage, ImageURL: "data:image/gif;base64,R0lG"},
				{Type: api.ContentPartImage, Data: "iVBO"},
			},
		}},
	}

	blocks := TranslateRequest(opts, 0, false).Messages[0].Content
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}
	if src := blocks[1].Source; src.Type != "url" || src.URL != "https://example.com/a.png" {
		t.Errorf("url source = %+v", src)
	}
	if src := blocks[2].Source; src.Type != "base64" || src.MediaType != "image/gif" || src.Data != "R0lG" {
		t.Errorf("data url source = %+v", src)
	}
	if src := blocks[3].Source; src.MediaType != "image/png" || src.Data != "iVBO" {
		t.Errorf("inline source = %+v", src)
	}
}

func TestTranslateRequest_ToolsAndChoice(t *testing.T) {
	tests := []struct {
		choice *api.ToolChoice
		want   string
	}{
		{nil, "null"},
		{&api.ToolChoice{Mode: api.ToolChoiceAuto}, `{"type":"auto"}`},
		{&api.ToolChoice{Mode: api.ToolChoiceRequired}, `{"type":"any"}`},
		{&api.ToolChoice{Mode: api.ToolChoiceNone}, `{"type":"none"}`},
		{&api.ToolChoice{Mode: api.ToolChoiceTool, Name: "lookup"}, `{"type":"tool","name":"lookup"}`},
	}

	for _, tt := range tests {
		opts := &api.CallOptions{
			Model:      "m",
			Tools:      []api.ToolDefinition{{Name: "lookup", Parameters: json.RawMessage(`{"type":"object"}`)}},
			ToolChoice: tt.choice,
		}
		mr := TranslateRequest(opts, 0, false)
		got, _ := json.Marshal(mr.ToolChoice)
		if string(got) != tt.want {
			t.Errorf("tool_choice = %s, want %s", got, tt.want)
		}
		if len(mr.Tools) != 1 || string(mr.Tools[0].InputSchema) != `{"type":"object"}` {
			t.Errorf("tools = %+v", mr.Tools)
		}
	}
}
