package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/debug"
	"github.com/rhuss/modelbridge/pkg/executor"
	"github.com/rhuss/modelbridge/pkg/observability"
	"github.com/rhuss/modelbridge/pkg/provider"
	"github.com/rhuss/modelbridge/pkg/stream"
)

// Grammar is the configuration name of this wire format.
const Grammar = "chat"

// Client talks to an OpenAI-compatible Chat Completions backend. It is safe
// for concurrent use; all per-call state is created per call.
type Client struct {
	name         string
	baseURL      string
	apiKey       string
	defaultModel string
	native       bool
	extraBody    map[string]any
	exec         *executor.Executor
}

// Option configures a Client.
type Option func(*Client)

// WithName sets the provider name used in logs and metrics. Default "chat".
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithExecutor sets the executor. By default one is built from
// executor.DefaultConfig.
func WithExecutor(e *executor.Executor) Option {
	return func(c *Client) { c.exec = e }
}

// WithDefaultModel sets the model used when the call options name none.
func WithDefaultModel(model string) Option {
	return func(c *Client) { c.defaultModel = model }
}

// WithNativeStructuredOutput sends response formats as json_schema instead
// of emulating them with a forced tool.
func WithNativeStructuredOutput(enabled bool) Option {
	return func(c *Client) { c.native = enabled }
}

// WithExtraBody adds top-level fields to every request body. Keys use sjson
// path syntax, so nested fields like "chat_template_kwargs.thinking" work.
func WithExtraBody(fields map[string]any) Option {
	return func(c *Client) { c.extraBody = fields }
}

// New creates a Client for baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		name:    Grammar,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.exec == nil {
		c.exec = executor.New(executor.DefaultConfig(), executor.WithProvider(c.name))
	}
	return c
}

var _ provider.Provider = (*Client)(nil)

// Name returns the provider name.
func (c *Client) Name() string { return c.name }

// Generate performs a non-streaming call against the Chat Completions endpoint.
func (c *Client) Generate(ctx context.Context, opts *api.CallOptions) (*api.Result, error) {
	prepared, plan, err := provider.Prepare(opts, c.native)
	if err != nil {
		return nil, err
	}

	req, err := c.request(prepared, false)
	if err != nil {
		return nil, err
	}

	var resp ChatCompletionResponse
	if err := c.exec.Do(ctx, req, &resp); err != nil {
		return nil, err
	}

	res, err := TranslateResponse(&resp)
	if err != nil {
		return nil, err
	}
	res = provider.Finalize(res, plan)
	observability.RecordUsage(c.name, res.Model, res.Usage)
	debug.Log(debug.Providers, "generate completed", "provider", c.name, "model", res.Model,
		"finish_reason", res.FinishReason, "tool_calls", len(res.ToolCalls))
	return res, nil
}

// Stream performs a streaming call. Failures before the response headers
// arrive are returned directly; later ones arrive as a terminal error event.
// The channel is closed after the terminal event.
func (c *Client) Stream(ctx context.Context, opts *api.CallOptions) (<-chan api.StreamEvent, error) {
	prepared, plan, err := provider.Prepare(opts, c.native)
	if err != nil {
		return nil, err
	}

	req, err := c.request(prepared, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.exec.Open(ctx, req)
	if err != nil {
		return nil, err
	}

	return stream.Start(ctx, resp.Body, stream.Config{
		Interpreter: NewInterpreter(),
		Plan:        plan,
		Provider:    c.name,
	}), nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.exec.CloseIdleConnections()
	return nil
}

func (c *Client) request(opts *api.CallOptions, streaming bool) (executor.Request, error) {
	if opts.Model == "" {
		opts.Model = c.defaultModel
	}
	if opts.Model == "" {
		return executor.Request{}, api.NewError(api.ErrorKindInvalidModel, "no model configured")
	}

	body, err := json.Marshal(TranslateRequest(opts, streaming))
	if err != nil {
		return executor.Request{}, api.NewInvalidRequestError(fmt.Sprintf("failed to marshal request: %s", err.Error())).
			WithCause(err)
	}
	body, err = patchBody(body, c.extraBody)
	if err != nil {
		return executor.Request{}, err
	}

	headers := make(map[string]string, len(opts.Headers)+1)
	if c.apiKey != "" {
		headers["Authorization"] = "Bearer " + c.apiKey
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return executor.Request{
		URL:     c.baseURL + "/v1/chat/completions",
		Payload: body,
		Headers: headers,
		Stream:  streaming,
	}, nil
}

// patchBody sets the extra fields on body in key order.
func patchBody(body []byte, fields map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		patched, err := sjson.SetBytes(body, k, fields[k])
		if err != nil {
			return nil, api.NewError(api.ErrorKindInvalidParameters,
				fmt.Sprintf("invalid extra body field %q: %s", k, err.Error())).WithCause(err)
		}
		body = patched
	}
	return body, nil
}
