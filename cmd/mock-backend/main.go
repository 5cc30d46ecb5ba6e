// Command mock-backend runs a deterministic backend that speaks both the
// chat-completions and the messages grammar, streaming and non-streaming.
// It is used to exercise retries, tool-call assembly and structured output
// against something that behaves like a real upstream.
//
// Responses depend on the request:
//   - a forced or offered tool yields a tool call whose arguments are an
//     example value generated from the tool's schema
//   - a json_schema response format yields an example document as text
//   - otherwise a short text answer
//
// Failures are injected per request with headers:
//
//	X-Mock-Fail: 503,429   statuses returned on successive attempts
//	X-Mock-Session: id     scope for the attempt counter (default: X-Mock-Fail value)
//	X-Mock-Malformed: 1    insert an undecodable frame into the stream
//	X-Mock-Truncate: 1     end the stream without a finish
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
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
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           newMux(newFaults()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

func newMux(f *faults) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/chat/completions", f.wrap(errorEnvelopeChat, http.HandlerFunc(handleChatCompletions)))
	mux.Handle("POST /v1/messages", f.wrap(errorEnvelopeMessages, http.HandlerFunc(handleMessages)))
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})
	return mux
}

func handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "modelbridge-mock"},
		},
	})
}
