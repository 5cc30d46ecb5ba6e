package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
)

// faults counts attempts per session and answers with the scripted status
// until the script is exhausted.
type faults struct {
	mu       sync.Mutex
	attempts map[string]int
}

func newFaults() *faults {
	return &faults{attempts: make(map[string]int)}
}

// envelopeFunc renders an error body in a grammar's error format.
type envelopeFunc func(status int, message string) any

func (f *faults) wrap(envelope envelopeFunc, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		script := r.Header.Get("X-Mock-Fail")
		if script == "" {
			next.ServeHTTP(w, r)
			return
		}

		session := r.Header.Get("X-Mock-Session")
		if session == "" {
			session = script
		}

		status, ok := f.next(session, script)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		slog.Info("injecting failure", "session", session, "status", status)
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(envelope(status, fmt.Sprintf("injected failure (HTTP %d)", status)))
	})
}

// next returns the status for the session's current attempt and advances
// the counter. ok is false once the script is used up.
func (f *faults) next(session, script string) (int, bool) {
	f.mu.Lock()
	n := f.attempts[session]
	f.attempts[session] = n + 1
	f.mu.Unlock()

	steps := strings.Split(script, ",")
	if n >= len(steps) {
		return 0, false
	}
	status, err := strconv.Atoi(strings.TrimSpace(steps[n]))
	if err != nil || status < 100 {
		return 0, false
	}
	return status, true
}

func errorEnvelopeChat(status int, message string) any {
	typ := "server_error"
	switch {
	case status == http.StatusTooManyRequests:
		typ = "rate_limit_exceeded"
	case status == http.StatusUnauthorized:
		typ = "invalid_api_key"
	case status < 500:
		typ = "invalid_request_error"
	}
	return map[string]any{"error": map[string]any{"message": message, "type": typ}}
}

func errorEnvelopeMessages(status int, message string) any {
	typ := "api_error"
	switch {
	case status == 529:
		typ = "overloaded_error"
	case status == http.StatusTooManyRequests:
		typ = "rate_limit_error"
	case status == http.StatusUnauthorized:
		typ = "authentication_error"
	case status < 500:
		typ = "invalid_request_error"
	}
	return map[string]any{"type": "error", "error": map[string]any{"type": typ, "message": message}}
}
