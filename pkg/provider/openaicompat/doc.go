// Package openaicompat implements the "chat" grammar: any OpenAI-compatible
// Chat Completions backend. It handles request serialization, response
// parsing and the chunk interpreter that feeds the shared stream normalizer.
// Retries, error classification and tool-call assembly come from the shared
// packages.
package openaicompat
