// Package provider defines the grammar-agnostic model-calling interface and
// the request preparation shared by every grammar adapter: tool schema
// sanitizing, structured-output planning and result finalization.
//
// Adapters live in subpackages (openaicompat for chat completions,
// anthropic for messages). Callers depend only on Provider.
package provider
