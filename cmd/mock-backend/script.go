package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// reply is what the mock decided to answer, independent of grammar.
type reply struct {
	model    string
	text     string
	toolName string
	toolArgs string
}

func (r reply) tokens() []string {
	if r.text == "1, 2, 3, 4, 5" {
		return []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}
	}
	var out []string
	for i, w := range strings.Split(r.text, " ") {
		if i > 0 {
			w = " " + w
		}
		out = append(out, w)
	}
	return out
}

// answerFor picks the text answer for the last user prompt.
func answerFor(prompt, system string) string {
	switch {
	case strings.Contains(strings.ToLower(prompt), "count from 1 to 5"):
		return "1, 2, 3, 4, 5"
	case system != "":
		return "Ahoy there, matey! Welcome aboard!"
	default:
		return "Hello, nice day!"
	}
}

// exampleJSON renders a document that satisfies simple schemas: every
// declared property is filled, the first enum value wins.
func exampleJSON(schema gjson.Result) string {
	data, _ := json.Marshal(exampleValue(schema))
	return string(data)
}

func exampleValue(s gjson.Result) any {
	if enum := s.Get("enum"); enum.IsArray() && len(enum.Array()) > 0 {
		return enum.Array()[0].Value()
	}
	if c := s.Get("const"); c.Exists() {
		return c.Value()
	}

	typ := s.Get("type")
	if typ.IsArray() {
		typ = typ.Array()[0]
	}
	switch typ.String() {
	case "string":
		return "mock"
	case "integer", "number":
		return 1
	case "boolean":
		return true
	case "null":
		return nil
	case "array":
		return []any{exampleValue(s.Get("items"))}
	case "object", "":
		obj := map[string]any{}
		s.Get("properties").ForEach(func(k, v gjson.Result) bool {
			obj[k.String()] = exampleValue(v)
			return true
		})
		return obj
	default:
		return "mock"
	}
}

// splitArgs cuts s into n roughly equal fragments so streamed arguments
// arrive in pieces.
func splitArgs(s string, n int) []string {
	if len(s) < n {
		return []string{s}
	}
	size := len(s) / n
	var out []string
	for i := 0; i < n-1; i++ {
		out = append(out, s[i*size:(i+1)*size])
	}
	return append(out, s[(n-1)*size:])
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// sseWriter writes frames and flushes after each one.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	return &sseWriter{w: w, flusher: flusher}, true
}

// event writes one frame. An empty name omits the event line.
func (s *sseWriter) event(name string, v any) {
	data, _ := json.Marshal(v)
	s.raw(name, string(data))
}

func (s *sseWriter) raw(name, data string) {
	if name != "" {
		fmt.Fprintf(s.w, "event: %s\n", name)
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	s.flusher.Flush()
}

func headerSet(r *http.Request, name string) bool {
	v := r.Header.Get(name)
	return v != "" && v != "0" && v != "false"
}
