// Package anthropic implements the "messages" grammar: Anthropic-style
// Messages API backends. Requests carry content blocks and a required
// max_tokens; streams are named events whose tool-use blocks deliver their
// arguments as partial JSON fragments.
package anthropic
