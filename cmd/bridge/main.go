// Command bridge sends a prompt to a chat-completions or messages backend
// through the resilient executor and prints the normalized result.
//
//	bridge generate "What is the capital of France?"
//	bridge stream --schema person.json "Describe Ada Lovelace"
//
// Configuration comes from the file named by --config (or MODELBRIDGE_CONFIG,
// ./modelbridge.yaml, /etc/modelbridge/config.yaml) and MODELBRIDGE_*
// environment variables.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rhuss/modelbridge/pkg/config"
	"github.com/rhuss/modelbridge/pkg/debug"
)

type rootOptions struct {
	configPath  string
	metricsAddr string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("bridge failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{}
	root := &cobra.Command{
		Use:           "bridge",
		Short:         "Call an LLM backend with retries and normalized streaming",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&ro.configPath, "config", "", "path to the config file")
	root.PersistentFlags().StringVar(&ro.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")

	root.AddCommand(newCallCmd(ro, false), newCallCmd(ro, true))
	return root
}

// loadConfig loads the configuration and sets up logging.
func loadConfig(ro *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(ro.configPath)
	if err != nil {
		return nil, err
	}
	debug.Init(cfg.Debug.Categories, cfg.Debug.LogLevel, cfg.Debug.Format)
	if ro.metricsAddr != "" {
		cfg.Observability.Metrics.Enabled = true
		cfg.Observability.Metrics.Addr = ro.metricsAddr
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// serveMetrics starts the metrics endpoint when enabled. The returned func
// shuts it down.
func serveMetrics(cfg config.MetricsConfig) func() {
	if !cfg.Enabled {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics endpoint starting", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics endpoint failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
