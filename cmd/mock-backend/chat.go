package main

import (
	"io"
	"net/http"

	"github.com/tidwall/gjson"
)

func handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil || !gjson.ValidBytes(body) {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, errorEnvelopeChat(http.StatusBadRequest, "invalid request"))
		return
	}
	req := gjson.ParseBytes(body)
	rep := chatReply(req)

	if req.Get("stream").Bool() {
		streamChat(w, r, rep, req.Get("stream_options.include_usage").Bool())
		return
	}

	message := map[string]any{"role": "assistant", "content": nil}
	finish := "stop"
	if rep.toolName != "" {
		message["tool_calls"] = []any{map[string]any{
			"id":       "call_mock_1",
			"type":     "function",
			"function": map[string]any{"name": rep.toolName, "arguments": rep.toolArgs},
		}}
		finish = "tool_calls"
	} else {
		message["content"] = rep.text
	}

	writeJSON(w, map[string]any{
		"id":      "chatcmpl-mock",
		"object":  "chat.completion",
		"model":   rep.model,
		"choices": []any{map[string]any{"index": 0, "message": message, "finish_reason": finish}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
}

// chatReply decides the answer for a chat-completions request.
func chatReply(req gjson.Result) reply {
	rep := reply{model: req.Get("model").String()}
	if rep.model == "" {
		rep.model = "mock-model"
	}

	var prompt, system string
	req.Get("messages").ForEach(func(_, m gjson.Result) bool {
		switch m.Get("role").String() {
		case "system":
			system = m.Get("content").String()
		case "user":
			prompt = chatText(m.Get("content"))
		}
		return true
	})

	if name := toolToCall(req); name != "" {
		rep.toolName = name
		req.Get("tools").ForEach(func(_, t gjson.Result) bool {
			if t.Get("function.name").String() == name {
				rep.toolArgs = exampleJSON(t.Get("function.parameters"))
				return false
			}
			return true
		})
		if rep.toolArgs == "" {
			rep.toolArgs = "{}"
		}
		return rep
	}

	if req.Get("response_format.type").String() == "json_schema" {
		rep.text = exampleJSON(req.Get("response_format.json_schema.schema"))
		return rep
	}

	rep.text = answerFor(prompt, system)
	return rep
}

// toolToCall returns the forced tool, or the first offered tool when the
// choice is not "none".
func toolToCall(req gjson.Result) string {
	choice := req.Get("tool_choice")
	if name := choice.Get("function.name").String(); name != "" {
		return name
	}
	if choice.String() == "none" {
		return ""
	}
	return req.Get("tools.0.function.name").String()
}

func chatText(content gjson.Result) string {
	if !content.IsArray() {
		return content.String()
	}
	var text string
	content.ForEach(func(_, p gjson.Result) bool {
		if p.Get("type").String() == "text" {
			text = p.Get("text").String()
			return false
		}
		return true
	})
	return text
}

func streamChat(w http.ResponseWriter, r *http.Request, rep reply, includeUsage bool) {
	s, ok := newSSEWriter(w)
	if !ok {
		return
	}

	chunk := func(delta map[string]any, finish any) map[string]any {
		return map[string]any{
			"id":      "chatcmpl-mock-stream",
			"object":  "chat.completion.chunk",
			"model":   rep.model,
			"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": finish}},
		}
	}

	s.event("", chunk(map[string]any{"role": "assistant"}, nil))
	if headerSet(r, "X-Mock-Malformed") {
		s.raw("", `{"id":"chatcmpl-mock-stream","choices":[`)
	}

	finish := "stop"
	var count int
	if rep.toolName != "" {
		finish = "tool_calls"
		s.event("", chunk(map[string]any{"tool_calls": []any{map[string]any{
			"index": 0, "id": "call_mock_1", "type": "function",
			"function": map[string]any{"name": rep.toolName, "arguments": ""},
		}}}, nil))
		for _, frag := range splitArgs(rep.toolArgs, 3) {
			s.event("", chunk(map[string]any{"tool_calls": []any{map[string]any{
				"index": 0, "function": map[string]any{"arguments": frag},
			}}}, nil))
			count++
		}
	} else {
		for _, token := range rep.tokens() {
			s.event("", chunk(map[string]any{"content": token}, nil))
			count++
		}
	}

	if headerSet(r, "X-Mock-Truncate") {
		return
	}

	s.event("", chunk(map[string]any{}, finish))
	if includeUsage {
		s.event("", map[string]any{
			"id":      "chatcmpl-mock-stream",
			"object":  "chat.completion.chunk",
			"model":   rep.model,
			"choices": []any{},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": count, "total_tokens": 10 + count},
		})
	}
	s.raw("", "[DONE]")
}
