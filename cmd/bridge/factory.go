package main

import (
	"fmt"

	"github.com/rhuss/modelbridge/pkg/config"
	"github.com/rhuss/modelbridge/pkg/executor"
	"github.com/rhuss/modelbridge/pkg/provider"
	"github.com/rhuss/modelbridge/pkg/provider/anthropic"
	"github.com/rhuss/modelbridge/pkg/provider/openaicompat"
)

// newProvider builds the adapter for the configured backend grammar. Every
// adapter gets its own executor carrying the retry policy and extra headers.
func newProvider(cfg *config.Config, execOpts ...executor.Option) (provider.Provider, error) {
	b := cfg.Backend
	name := b.Grammar
	exec := executor.New(cfg.ExecutorConfig(), append([]executor.Option{executor.WithProvider(name)}, execOpts...)...)

	switch b.Grammar {
	case config.GrammarChat:
		return openaicompat.New(b.BaseURL, b.APIKey,
			openaicompat.WithName(name),
			openaicompat.WithExecutor(exec),
			openaicompat.WithDefaultModel(b.Model),
			openaicompat.WithNativeStructuredOutput(b.NativeStructuredOutput),
			openaicompat.WithExtraBody(b.ExtraBody),
		), nil
	case config.GrammarMessages:
		return anthropic.New(b.BaseURL, b.APIKey,
			anthropic.WithName(name),
			anthropic.WithExecutor(exec),
			anthropic.WithDefaultModel(b.Model),
			anthropic.WithMaxTokens(b.MaxTokens),
			anthropic.WithVersion(b.AnthropicVersion),
		), nil
	default:
		return nil, fmt.Errorf("unsupported backend grammar %q", b.Grammar)
	}
}
