package structured

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FallbackToolName is used when no usable name hint is given.
const FallbackToolName = "structured_output"

const maxToolNameLen = 64

// nameMaps are schema keywords whose object keys are user-chosen names, not
// keywords. Their keys are kept even when they look like metadata.
var nameMaps = map[string]bool{
	"properties":        true,
	"patternProperties": true,
	"$defs":             true,
	"definitions":       true,
	"dependentSchemas":  true,
}

// SanitizeSchema strips foreign metadata ($schema, $id, $comment and x-*
// extension keys) at every level and defaults a missing top-level type to
// "object". An empty or invalid input yields {"type":"object"}.
func SanitizeSchema(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 || !gjson.ValidBytes(raw) {
		return json.RawMessage(`{"type":"object"}`)
	}

	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return json.RawMessage(`{"type":"object"}`)
	}

	out, err := json.Marshal(stripMetadata(obj))
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	if !gjson.GetBytes(out, "type").Exists() {
		if patched, err := sjson.SetBytes(out, "type", "object"); err == nil {
			out = patched
		}
	}
	return out
}

func isMetadataKey(k string) bool {
	switch k {
	case "$schema", "$id", "$comment":
		return true
	}
	return strings.HasPrefix(k, "x-")
}

func stripMetadata(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if isMetadataKey(k) {
			continue
		}
		if nameMaps[k] {
			if names, ok := v.(map[string]any); ok {
				kept := make(map[string]any, len(names))
				for name, sub := range names {
					kept[name] = stripValue(sub)
				}
				out[k] = kept
				continue
			}
		}
		out[k] = stripValue(v)
	}
	return out
}

func stripValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return stripMetadata(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = stripValue(item)
		}
		return out
	default:
		return v
	}
}

// SanitizeToolName derives a tool name from a caller hint: lowercased,
// runs of non-alphanumerics collapsed to one underscore, leading and
// trailing underscores trimmed, an underscore prefixed when the name would
// start with a digit, and the result cut to 64 characters without a
// trailing underscore.
func SanitizeToolName(hint string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(hint) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	name := strings.Trim(b.String(), "_")
	if name == "" {
		return FallbackToolName
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	if len(name) > maxToolNameLen {
		name = strings.TrimRight(name[:maxToolNameLen], "_")
	}
	return name
}
