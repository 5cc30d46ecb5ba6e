package provider

import (
	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/debug"
	"github.com/rhuss/modelbridge/pkg/structured"
)

// Prepare returns the options to send and the structured-output plan, if
// any. When the caller requests a response format and the backend has no
// native support, the format is emulated with a forced tool. The caller's
// options are never modified.
func Prepare(opts *api.CallOptions, nativeStructuredOutput bool) (*api.CallOptions, *structured.Plan, error) {
	if opts == nil {
		return nil, nil, api.NewInvalidRequestError("call options are required")
	}

	var plan *structured.Plan
	prepared := opts.Clone()
	if opts.ResponseFormat != nil && !nativeStructuredOutput {
		p, err := structured.NewPlan(*opts.ResponseFormat)
		if err != nil {
			return nil, nil, err
		}
		plan = p
		prepared = p.Apply(prepared)
		debug.Log(debug.Providers, "emulating structured output", "tool", p.ToolName)
	}

	prepared.Tools = SanitizeTools(prepared.Tools)
	if prepared.ToolChoice != nil && prepared.ToolChoice.Mode == api.ToolChoiceTool && prepared.ToolChoice.Name == "" {
		return nil, nil, api.NewError(api.ErrorKindInvalidToolFormat, "tool choice names no tool")
	}
	return prepared, plan, nil
}

// Finalize makes the result text-shaped when a plan is active.
func Finalize(res *api.Result, plan *structured.Plan) *api.Result {
	if res == nil || plan == nil {
		return res
	}
	res.Text = plan.Unwrap(res.Text, res.ToolCalls)
	return res
}
