package provider

import (
	"encoding/json"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/rhuss/modelbridge/pkg/api"
)

func TestSanitizeTools(t *testing.T) {
	tools := []api.ToolDefinition{
		{Name: "search", Parameters: json.RawMessage(`{"$schema":"x","properties":{"q":{"type":"string"}}}`)},
		{Name: "", Description: "anonymous"},
		{Name: "noop"},
	}
	got := SanitizeTools(tools)
	if len(got) != 2 {
		t.Fatalf("got %d tools, want 2", len(got))
	}
	if gjson.GetBytes(got[0].Parameters, `\$schema`).Exists() || gjson.GetBytes(got[0].Parameters, "type").String() != "object" {
		t.Errorf("search parameters = %s", got[0].Parameters)
	}
	if string(got[1].Parameters) != `{"type":"object"}` {
		t.Errorf("noop parameters = %s", got[1].Parameters)
	}
	if tools[0].Parameters == nil || gjson.GetBytes(tools[0].Parameters, `\$schema`).String() != "x" {
		t.Error("caller tools were modified")
	}
}

func TestPrepareWithoutResponseFormat(t *testing.T) {
	opts := &api.CallOptions{Model: "m", Tools: []api.ToolDefinition{{Name: "a"}}}
	got, plan, err := Prepare(opts, false)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if plan != nil {
		t.Error("unexpected plan")
	}
	if got == opts {
		t.Error("Prepare must return a copy")
	}
}

func TestPrepareEmulatesStructuredOutput(t *testing.T) {
	opts := &api.CallOptions{
		Model:          "m",
		ResponseFormat: &api.ResponseFormat{Schema: json.RawMessage(`{"type":"object"}`), Name: "Answer"},
		ToolChoice:     &api.ToolChoice{Mode: api.ToolChoiceAuto},
	}
	got, plan, err := Prepare(opts, false)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if plan == nil || plan.ToolName != "answer" {
		t.Fatalf("plan = %+v", plan)
	}
	if got.ToolChoice.Mode != api.ToolChoiceTool || got.ToolChoice.Name != "answer" {
		t.Errorf("ToolChoice = %+v", got.ToolChoice)
	}
	if len(got.Tools) != 1 || got.ResponseFormat != nil {
		t.Errorf("prepared options = %+v", got)
	}
}

func TestPrepareNativeStructuredOutput(t *testing.T) {
	opts := &api.CallOptions{ResponseFormat: &api.ResponseFormat{Schema: json.RawMessage(`{}`)}}
	got, plan, err := Prepare(opts, true)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if plan != nil || got.ResponseFormat == nil {
		t.Errorf("native mode must pass the format through; plan = %+v", plan)
	}
}

func TestPrepareErrors(t *testing.T) {
	if _, _, err := Prepare(nil, false); err == nil {
		t.Error("expected an error for nil options")
	}
	_, _, err := Prepare(&api.CallOptions{ToolChoice: &api.ToolChoice{Mode: api.ToolChoiceTool}}, false)
	var apiErr *api.APIError
	if err == nil {
		t.Fatal("expected an error for a nameless forced tool")
	}
	if e, ok := err.(*api.APIError); ok {
		apiErr = e
	}
	if apiErr == nil || apiErr.Kind != api.ErrorKindInvalidToolFormat {
		t.Errorf("err = %v, want invalid_tool_format", err)
	}
}

func TestFinalize(t *testing.T) {
	_, plan, _ := Prepare(&api.CallOptions{
		ResponseFormat: &api.ResponseFormat{Schema: json.RawMessage(`{"type":"object","required":["x"]}`)},
	}, false)

	res := Finalize(&api.Result{
		ToolCalls:    []api.ToolInvocation{{ID: "call_1", Name: plan.ToolName, Arguments: `{"x":1}`}},
		FinishReason: api.FinishReasonToolCalls,
	}, plan)
	if res.Text != `{"x":1}` {
		t.Errorf("Text = %q", res.Text)
	}

	plain := &api.Result{Text: "hi"}
	if Finalize(plain, nil).Text != "hi" {
		t.Error("Finalize without plan changed the text")
	}
}
