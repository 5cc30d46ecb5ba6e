// Package structured emulates schema-constrained output on backends without
// native support. A Plan declares a synthesized tool whose parameters are the
// caller's schema, forces the model to call it, and turns the call's
// arguments back into the text result.
package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/debug"
)

// Plan is derived once per call and is immutable.
type Plan struct {
	ToolName    string
	Description string
	Schema      json.RawMessage
	Instruction string

	// validator is nil when the schema uses constructs the compiler rejects.
	validator *jsonschema.Schema
}

// NewPlan builds the plan for a requested response format.
func NewPlan(rf api.ResponseFormat) (*Plan, error) {
	if len(bytes.TrimSpace(rf.Schema)) > 0 && !json.Valid(rf.Schema) {
		return nil, api.NewError(api.ErrorKindInvalidRequest, "response format schema is not valid JSON")
	}

	p := &Plan{
		ToolName:    SanitizeToolName(rf.Name),
		Description: strings.TrimSpace(rf.Description),
		Schema:      SanitizeSchema(rf.Schema),
	}
	p.Instruction = p.buildInstruction()

	v, err := compileSchema(p.Schema)
	if err != nil {
		debug.Log(debug.Structured, "schema not compilable, conformance checks disabled",
			"tool", p.ToolName, "error", err.Error())
	}
	p.validator = v

	debug.Log(debug.Structured, "structured output plan", "tool", p.ToolName)
	return p, nil
}

func (p *Plan) buildInstruction() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Respond only by calling the `%s` tool exactly once. Do not answer with plain text.", p.ToolName)
	if p.Description != "" {
		b.WriteString("\n\n")
		b.WriteString(p.Description)
	}
	b.WriteString("\n\nThe tool arguments must be a JSON value that conforms to this JSON schema:\n")

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, p.Schema, "", "  "); err != nil {
		pretty.Write(p.Schema)
	}
	b.Write(pretty.Bytes())
	return b.String()
}

// Tool returns the synthesized tool declaration.
func (p *Plan) Tool() api.ToolDefinition {
	desc := p.Description
	if desc == "" {
		desc = "Return the final answer as structured data."
	}
	return api.ToolDefinition{Name: p.ToolName, Description: desc, Parameters: p.Schema}
}

// Apply returns a copy of opts with the synthesized tool declared (replacing
// a caller tool of the same name), tool choice forced to it, and the
// instruction appended to the system prompt. The native response format is
// cleared.
func (p *Plan) Apply(opts *api.CallOptions) *api.CallOptions {
	c := opts.Clone()

	tool := p.Tool()
	replaced := false
	for i := range c.Tools {
		if c.Tools[i].Name == tool.Name {
			c.Tools[i] = tool
			replaced = true
		}
	}
	if !replaced {
		c.Tools = append(c.Tools, tool)
	}

	if opts.ToolChoice != nil && (opts.ToolChoice.Mode != api.ToolChoiceTool || opts.ToolChoice.Name != p.ToolName) {
		debug.Log(debug.Structured, "overriding caller tool choice",
			"requested", opts.ToolChoice.Mode, "tool", p.ToolName)
	}
	c.ToolChoice = &api.ToolChoice{Mode: api.ToolChoiceTool, Name: p.ToolName}

	if c.System == "" {
		c.System = p.Instruction
	} else {
		c.System = c.System + "\n\n" + p.Instruction
	}
	c.ResponseFormat = nil
	return c
}

// Owns reports whether a tool call was made to the synthesized tool.
func (p *Plan) Owns(name string) bool {
	return name == p.ToolName
}

// Unwrap turns a completed response into text. Priority: arguments of a
// call to the synthesized tool (compacted JSON, or the raw text when it does
// not parse), then the ordinary text, then the first call's arguments.
func (p *Plan) Unwrap(text string, calls []api.ToolInvocation) string {
	for _, c := range calls {
		if !p.Owns(c.Name) || strings.TrimSpace(c.Arguments) == "" {
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(c.Arguments)); err != nil {
			slog.Warn("structured output arguments are not valid JSON, returning raw text",
				"tool", p.ToolName, "error", err.Error())
			return c.Arguments
		}
		p.check(buf.Bytes())
		return buf.String()
	}

	if text != "" {
		return text
	}
	if len(calls) > 0 {
		slog.Warn("model did not call the structured output tool, using first tool call",
			"tool", p.ToolName, "called", calls[0].Name)
		return calls[0].Arguments
	}
	return ""
}

// check logs schema violations. It never fails the call.
func (p *Plan) check(doc []byte) {
	if err := p.Validate(doc); err != nil {
		slog.Warn("structured output does not conform to schema",
			"tool", p.ToolName, "error", err.Error())
	}
}

// Validate checks doc against the schema. It returns nil when the schema
// could not be compiled.
func (p *Plan) Validate(doc []byte) error {
	if p.validator == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("decoding output: %w", err)
	}
	return p.validator.Validate(v)
}

func compileSchema(schema json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	s, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compiling schema: %w", err)
	}
	return s, nil
}
