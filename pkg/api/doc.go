// Package api defines the vendor-neutral types shared by every modelbridge
// package: call options, messages, tool declarations and invocations, the
// caller-facing stream events, and the single error shape.
//
// Core types:
//   - [CallOptions]: one model invocation (model, messages, tools, schema)
//   - [Result]: outcome of a non-streaming call
//   - [StreamEvent]: one element of the streaming event sequence
//   - [APIError]: classified failure with kind, severity, category,
//     retryability and remediation hints
//
// The package performs no I/O.
package api
