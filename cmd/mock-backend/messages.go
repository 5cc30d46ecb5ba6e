package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

func handleMessages(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(body) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errorEnvelopeMessages(http.StatusBadRequest, "invalid request"))
		return
	}
	if r.Header.Get("x-api-key") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, errorEnvelopeMessages(http.StatusUnauthorized, "x-api-key header is required"))
		return
	}

	req := gjson.ParseBytes(body)
	rep := messagesReply(req)

	if req.Get("stream").Bool() {
		streamMessages(w, r, rep)
		return
	}

	var content []any
	stop := "end_turn"
	if rep.toolName != "" {
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    "toolu_mock_1",
			"name":  rep.toolName,
			"input": json.RawMessage(rep.toolArgs),
		})
		stop = "tool_use"
	} else {
		content = append(content, map[string]any{"type": "text", "text": rep.text})
	}

	writeJSON(w, map[string]any{
		"id":          "msg_mock",
		"type":        "message",
		"role":        "assistant",
		"model":       rep.model,
		"content":     content,
		"stop_reason": stop,
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 5},
	})
}

// messagesReply decides the answer for a messages request.
func messagesReply(req gjson.Result) reply {
	rep := reply{model: req.Get("model").String()}
	if rep.model == "" {
		rep.model = "mock-model"
	}

	var prompt string
	req.Get("messages").ForEach(func(_, m gjson.Result) bool {
		if m.Get("role").String() != "user" {
			return true
		}
		m.Get("content").ForEach(func(_, b gjson.Result) bool {
			if b.Get("type").String() == "text" {
				prompt = b.Get("text").String()
			}
			return true
		})
		return true
	})

	choice := req.Get("tool_choice")
	name := ""
	switch choice.Get("type").String() {
	case "tool":
		name = choice.Get("name").String()
	case "none":
	default:
		name = req.Get("tools.0.name").String()
	}
	if name != "" {
		rep.toolName = name
		rep.toolArgs = "{}"
		req.Get("tools").ForEach(func(_, t gjson.Result) bool {
			if t.Get("name").String() == name {
				rep.toolArgs = exampleJSON(t.Get("input_schema"))
				return false
			}
			return true
		})
		return rep
	}

	rep.text = answerFor(prompt, req.Get("system").String())
	return rep
}

func streamMessages(w http.ResponseWriter, r *http.Request, rep reply) {
	s, ok := newSSEWriter(w)
	if !ok {
		return
	}

	s.event("message_start", map[string]any{
		"type": "message_start",
		"message": map[string]any{
			"id": "msg_mock_stream", "type": "message", "role": "assistant",
			"model": rep.model, "content": []any{},
			"usage": map[string]any{"input_tokens": 10, "output_tokens": 1},
		},
	})
	s.event("ping", map[string]any{"type": "ping"})
	if headerSet(r, "X-Mock-Malformed") {
		s.raw("content_block_delta", `{"type":"content_block_delta","index":`)
	}

	stop := "end_turn"
	var count int
	if rep.toolName != "" {
		stop = "tool_use"
		s.event("content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "tool_use", "id": "toolu_mock_1", "name": rep.toolName, "input": map[string]any{}},
		})
		for _, frag := range splitArgs(rep.toolArgs, 3) {
			s.event("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": frag},
			})
			count++
		}
	} else {
		s.event("content_block_start", map[string]any{
			"type": "content_block_start", "index": 0,
			"content_block": map[string]any{"type": "text", "text": ""},
		})
		for _, token := range rep.tokens() {
			s.event("content_block_delta", map[string]any{
				"type": "content_block_delta", "index": 0,
				"delta": map[string]any{"type": "text_delta", "text": token},
			})
			count++
		}
	}
	s.event("content_block_stop", map[string]any{"type": "content_block_stop", "index": 0})

	if headerSet(r, "X-Mock-Truncate") {
		return
	}

	s.event("message_delta", map[string]any{
		"type":  "message_delta",
		"delta": map[string]any{"stop_reason": stop, "stop_sequence": nil},
		"usage": map[string]any{"output_tokens": count},
	})
	s.event("message_stop", map[string]any{"type": "message_stop"})
}
