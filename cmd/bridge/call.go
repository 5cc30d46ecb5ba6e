package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rhuss/modelbridge/pkg/api"
)

type callFlags struct {
	model       string
	system      string
	schema      string
	schemaName  string
	maxTokens   int
	temperature float64
	jsonOutput  bool
}

func newCallCmd(ro *rootOptions, streaming bool) *cobra.Command {
	f := &callFlags{}
	cmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "Send a prompt and print the complete result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := f.callOptions(cmd, args)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(ro)
			if err != nil {
				return err
			}
			stopMetrics := serveMetrics(cfg.Observability.Metrics)
			defer stopMetrics()

			prov, err := newProvider(cfg)
			if err != nil {
				return err
			}
			defer prov.Close()

			ctx, stop := signalContext()
			defer stop()

			if streaming {
				ch, err := prov.Stream(ctx, opts)
				if err != nil {
					return err
				}
				return printStream(cmd.OutOrStdout(), ch, f.jsonOutput)
			}

			res, err := prov.Generate(ctx, opts)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, f.jsonOutput)
		},
	}
	if streaming {
		cmd.Use = "stream [prompt]"
		cmd.Short = "Send a prompt and print the normalized event stream"
	}

	flags := cmd.Flags()
	flags.StringVar(&f.model, "model", "", "model name (default from config)")
	flags.StringVar(&f.system, "system", "", "system prompt")
	flags.StringVar(&f.schema, "schema", "", "JSON schema for structured output, inline or a file path")
	flags.StringVar(&f.schemaName, "schema-name", "", "name hint for the structured output")
	flags.IntVar(&f.maxTokens, "max-tokens", 0, "maximum output tokens")
	flags.Float64Var(&f.temperature, "temperature", 0, "sampling temperature")
	flags.BoolVar(&f.jsonOutput, "json", false, "print results and events as JSON")
	return cmd
}

// callOptions builds the call from the flags. The prompt is the
// space-joined positional arguments.
func (f *callFlags) callOptions(cmd *cobra.Command, args []string) (*api.CallOptions, error) {
	opts := &api.CallOptions{
		Model:    f.model,
		System:   f.system,
		Messages: []api.Message{api.TextMessage(api.RoleUser, strings.Join(args, " "))},
	}
	if cmd.Flags().Changed("max-tokens") {
		n := f.maxTokens
		opts.MaxTokens = &n
	}
	if cmd.Flags().Changed("temperature") {
		t := f.temperature
		opts.Temperature = &t
	}
	if f.schema != "" {
		schema, err := readSchema(f.schema)
		if err != nil {
			return nil, err
		}
		opts.ResponseFormat = &api.ResponseFormat{Schema: schema, Name: f.schemaName}
	}
	return opts, nil
}

// readSchema accepts inline JSON or a path to a JSON file.
func readSchema(s string) (json.RawMessage, error) {
	data := []byte(s)
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		var err error
		if data, err = os.ReadFile(s); err != nil {
			return nil, fmt.Errorf("reading schema: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, errors.New("schema is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func printResult(w io.Writer, res *api.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.Text != "" {
		fmt.Fprintln(w, res.Text)
	}
	for _, tc := range res.ToolCalls {
		fmt.Fprintf(w, "tool call %s %s(%s)\n", tc.ID, tc.Name, tc.Arguments)
	}
	fmt.Fprintf(w, "[finish=%s input=%d output=%d]\n",
		res.FinishReason, res.Usage.InputTokens, res.Usage.OutputTokens)
	return nil
}

// printStream drains ch. A terminal error event is returned as the error.
func printStream(w io.Writer, ch <-chan api.StreamEvent, asJSON bool) error {
	var streamErr error
	enc := json.NewEncoder(w)
	for ev := range ch {
		if ev.Type == api.EventError && ev.Err != nil {
			streamErr = ev.Err
		}
		if asJSON {
			if err := enc.Encode(ev); err != nil {
				return err
			}
			continue
		}
		switch ev.Type {
		case api.EventTextDelta:
			fmt.Fprint(w, ev.Delta)
		case api.EventTextEnd:
			fmt.Fprintln(w)
		case api.EventToolCall:
			fmt.Fprintf(w, "tool call %s %s(%s)\n", ev.ToolCall.ID, ev.ToolCall.Name, ev.ToolCall.Arguments)
		case api.EventParseError:
			fmt.Fprintf(w, "[skipped frame: %s]\n", ev.Err.Message)
		case api.EventFinish:
			var in, out int
			if ev.Usage != nil {
				in, out = ev.Usage.InputTokens, ev.Usage.OutputTokens
			}
			fmt.Fprintf(w, "[finish=%s input=%d output=%d]\n", ev.FinishReason, in, out)
		}
	}
	return streamErr
}
