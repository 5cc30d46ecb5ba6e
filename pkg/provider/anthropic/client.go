package anthropic

import (
	"context"
	"strings"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/debug"
	"github.com/rhuss/modelbridge/pkg/executor"
	"github.com/rhuss/modelbridge/pkg/observability"
	"github.com/rhuss/modelbridge/pkg/provider"
	"github.com/rhuss/modelbridge/pkg/stream"
)

const (
	// Grammar is the configuration name of this wire format.
	Grammar = "messages"

	// DefaultVersion is sent in the anthropic-version header.
	DefaultVersion = "2023-06-01"
)

// Client talks to an Anthropic-style Messages API backend. It is safe for
// concurrent use.
type Client struct {
	name         string
	baseURL      string
	apiKey       string
	version      string
	defaultModel string
	maxTokens    int
	exec         *executor.Executor
}

// Option configures a Client.
type Option func(*Client)

// WithName sets the provider name used in logs and metrics. Default "messages".
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithExecutor sets the executor.
func WithExecutor(e *executor.Executor) Option {
	return func(c *Client) { c.exec = e }
}

// WithDefaultModel sets the model used when the call options name none.
func WithDefaultModel(model string) Option {
	return func(c *Client) { c.defaultModel = model }
}

// WithMaxTokens sets the max_tokens sent when the call sets none.
func WithMaxTokens(n int) Option {
	return func(c *Client) { c.maxTokens = n }
}

// WithVersion overrides the anthropic-version header.
func WithVersion(v string) Option {
	return func(c *Client) {
		if v != "" {
			c.version = v
		}
	}
}

// New creates a Client for baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		name:      Grammar,
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		version:   DefaultVersion,
		maxTokens: DefaultMaxTokens,
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

// Generate performs a non-streaming call. The Messages API has no native
// response format, so structured output is always emulated.
func (c *Client) Generate(ctx context.Context, opts *api.CallOptions) (*api.Result, error) {
	prepared, plan, err := provider.Prepare(opts, false)
	if err != nil {
		return nil, err
	}
	req, err := c.request(prepared, false)
	if err != nil {
		return nil, err
	}

	var resp MessagesResponse
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

// Stream performs a streaming call. The channel is closed after the terminal
// event.
func (c *Client) Stream(ctx context.Context, opts *api.CallOptions) (<-chan api.StreamEvent, error) {
	prepared, plan, err := provider.Prepare(opts, false)
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

	headers := map[string]string{"anthropic-version": c.version}
	if c.apiKey != "" {
		headers["x-api-key"] = c.apiKey
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return executor.Request{
		URL:     c.baseURL + "/v1/messages",
		Payload: TranslateRequest(opts, c.maxTokens, streaming),
		Headers: headers,
		Stream:  streaming,
	}, nil
}
