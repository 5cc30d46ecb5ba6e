package provider

import (
	"log/slog"

	"github.com/rhuss/modelbridge/pkg/api"
	"github.com/rhuss/modelbridge/pkg/structured"
)

// SanitizeTools returns the declared tools with their parameter schemas
// cleaned of foreign metadata and a missing type defaulted to "object".
// Names are never invented: a tool without a name is dropped with a warning.
func SanitizeTools(tools []api.ToolDefinition) []api.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]api.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		if t.Name == "" {
			slog.Warn("dropping tool declaration without name", "description", t.Description)
			continue
		}
		t.Parameters = structured.SanitizeSchema(t.Parameters)
		out = append(out, t)
	}
	return out
}
