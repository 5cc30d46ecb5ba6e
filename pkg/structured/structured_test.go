package structured

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/rhuss/modelbridge/pkg/api"
)

func TestSanitizeToolName(t *testing.T) {
	tests := []struct {
		hint string
		want string
	}{
		{"Weather Report", "weather_report"},
		{"  --Person::Info--  ", "person_info"},
		{"a__b", "a_b"},
		{"3d-model", "_3d_model"},
		{"", FallbackToolName},
		{"!!!", FallbackToolName},
		{"Ünïcode name", "n_code_name"},
		{strings.Repeat("x", 80), strings.Repeat("x", 64)},
		{strings.Repeat("x", 63) + " tail", strings.Repeat("x", 63)},
		{"9" + strings.Repeat("y", 61) + " tail", "_9" + strings.Repeat("y", 61)},
	}
	for _, tt := range tests {
		t.Run(tt.hint, func(t *testing.T) {
			if got := SanitizeToolName(tt.hint); got != tt.want {
				t.Errorf("SanitizeToolName(%q) = %q, want %q", tt.hint, got, tt.want)
			}
		})
	}
}

func TestSanitizeSchema(t *testing.T) {
	raw := json.RawMessage(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"$id": "person",
		"x-generator": "tool",
		"properties": {
			"x-name": {"type": "string", "$comment": "kept key, stripped comment"},
			"tags": {"type": "array", "items": {"type": "string", "x-ui": "chips"}}
		},
		"required": ["x-name"]
	}`)
	got := SanitizeSchema(raw)

	if gjson.GetBytes(got, "type").String() != "object" {
		t.Errorf("missing type not defaulted: %s", got)
	}
	for _, path := range []string{`\$schema`, `\$id`, "x-generator", `properties.x-name.\$comment`, "properties.tags.items.x-ui"} {
		if gjson.GetBytes(got, path).Exists() {
			t.Errorf("%s not stripped: %s", path, got)
		}
	}
	if !gjson.GetBytes(got, "properties.x-name").Exists() {
		t.Errorf("property named x-name must be kept: %s", got)
	}
	if gjson.GetBytes(got, "properties.tags.items.type").String() != "string" {
		t.Errorf("nested schema damaged: %s", got)
	}
}

func TestSanitizeSchemaKeepsExplicitType(t *testing.T) {
	got := SanitizeSchema(json.RawMessage(`{"type":"array","items":{"type":"integer"}}`))
	if gjson.GetBytes(got, "type").String() != "array" {
		t.Errorf("explicit type replaced: %s", got)
	}
}

func TestSanitizeSchemaEmpty(t *testing.T) {
	for _, in := range []string{"", "null", "not json", "[1,2]"} {
		if got := string(SanitizeSchema(json.RawMessage(in))); got != `{"type":"object"}` {
			t.Errorf("SanitizeSchema(%q) = %s", in, got)
		}
	}
}

func TestNewPlan(t *testing.T) {
	p, err := NewPlan(api.ResponseFormat{
		Schema:      json.RawMessage(`{"properties":{"x":{"type":"integer"}},"required":["x"]}`),
		Name:        "Answer",
		Description: "The final answer.",
	})
	if err != nil {
		t.Fatalf("NewPlan() error = %v", err)
	}
	if p.ToolName != "answer" {
		t.Errorf("ToolName = %q", p.ToolName)
	}
	for _, want := range []string{"`answer`", "The final answer.", `"required": [`} {
		if !strings.Contains(p.Instruction, want) {
			t.Errorf("instruction missing %q:\n%s", want, p.Instruction)
		}
	}
	if err := p.Validate([]byte(`{"x":1}`)); err != nil {
		t.Errorf("Validate(conforming) = %v", err)
	}
	if err := p.Validate([]byte(`{"y":1}`)); err == nil {
		t.Error("Validate(non-conforming) = nil")
	}
}

func TestNewPlanRejectsInvalidSchemaJSON(t *testing.T) {
	if _, err := NewPlan(api.ResponseFormat{Schema: json.RawMessage(`{"type":`)}); err == nil {
		t.Fatal("expected an error for invalid schema JSON")
	}
}

func TestApplyForcesTool(t *testing.T) {
	p, _ := NewPlan(api.ResponseFormat{Schema: json.RawMessage(`{"type":"object"}`), Name: "result"})
	opts := &api.CallOptions{
		System: "Be brief.",
		Tools: []api.ToolDefinition{
			{Name: "search"},
			{Name: "result", Description: "caller's own"},
		},
		ToolChoice:     &api.ToolChoice{Mode: api.ToolChoiceNone},
		ResponseFormat: &api.ResponseFormat{},
	}

	got := p.Apply(opts)

	if len(got.Tools) != 2 || got.Tools[1].Description == "caller's own" {
		t.Errorf("same-named tool not replaced: %+v", got.Tools)
	}
	if got.ToolChoice == nil || got.ToolChoice.Mode != api.ToolChoiceTool || got.ToolChoice.Name != "result" {
		t.Errorf("ToolChoice = %+v", got.ToolChoice)
	}
	if !strings.HasPrefix(got.System, "Be brief.\n\n") || !strings.Contains(got.System, "`result`") {
		t.Errorf("System = %q", got.System)
	}
	if got.ResponseFormat != nil {
		t.Error("ResponseFormat not cleared")
	}
	if opts.ToolChoice.Mode != api.ToolChoiceNone || len(opts.Tools) != 2 || opts.Tools[1].Description != "caller's own" {
		t.Error("Apply modified the caller's options")
	}

	appended := p.Apply(&api.CallOptions{})
	if len(appended.Tools) != 1 || appended.Tools[0].Name != "result" {
		t.Errorf("tool not appended: %+v", appended.Tools)
	}
	if appended.System != p.Instruction {
		t.Errorf("System = %q", appended.System)
	}
}

func TestUnwrap(t *testing.T) {
	p, _ := NewPlan(api.ResponseFormat{
		Schema: json.RawMessage(`{"type":"object","required":["x"]}`),
	})
	own := func(args string) api.ToolInvocation {
		return api.ToolInvocation{ID: "call_1", Name: p.ToolName, Arguments: args}
	}
	other := api.ToolInvocation{ID: "call_2", Name: "search", Arguments: `{"q":"go"}`}

	tests := []struct {
		name  string
		text  string
		calls []api.ToolInvocation
		want  string
	}{
		{"matching call", "", []api.ToolInvocation{own(`{"x":1}`)}, `{"x":1}`},
		{"matching call compacted", "", []api.ToolInvocation{own("{ \"x\" : 1 }")}, `{"x":1}`},
		{"matching call wins over text", "ignored", []api.ToolInvocation{other, own(`{"x":2}`)}, `{"x":2}`},
		{"unparseable arguments returned raw", "", []api.ToolInvocation{own(`{"x":`)}, `{"x":`},
		{"empty arguments skipped", "plain", []api.ToolInvocation{own("  ")}, "plain"},
		{"text fallback", "plain", []api.ToolInvocation{other}, "plain"},
		{"first call fallback", "", []api.ToolInvocation{other}, `{"q":"go"}`},
		{"nothing", "", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Unwrap(tt.text, tt.calls); got != tt.want {
				t.Errorf("Unwrap() = %q, want %q", got, tt.want)
			}
		})
	}
}
