// Package classify maps upstream failures (HTTP status and body, transport
// errors, stream failures) onto the closed error taxonomy in pkg/api.
//
// All functions are pure and never return nil.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/rhuss/modelbridge/pkg/api"
)

var statusKinds = map[int]api.ErrorKind{
	http.StatusBadRequest:            api.ErrorKindInvalidRequest,
	http.StatusUnauthorized:          api.ErrorKindInvalidCredential,
	http.StatusForbidden:             api.ErrorKindAccessDenied,
	http.StatusNotFound:              api.ErrorKindNotFound,
	http.StatusRequestTimeout:        api.ErrorKindTimeout,
	http.StatusRequestEntityTooLarge: api.ErrorKindPayloadTooLarge,
	http.StatusUnprocessableEntity:   api.ErrorKindInvalidParameters,
	http.StatusTooManyRequests:       api.ErrorKindRateLimited,
	http.StatusBadGateway:            api.ErrorKindGatewayTimeout,
	http.StatusGatewayTimeout:        api.ErrorKindGatewayTimeout,
	http.StatusServiceUnavailable:    api.ErrorKindServiceUnavailable,
	http.StatusInsufficientStorage:   api.ErrorKindQuotaExceeded,
}

// KindForStatus returns the taxonomy kind for an HTTP status without
// looking at the body.
func KindForStatus(status int) api.ErrorKind {
	if kind, ok := statusKinds[status]; ok {
		return kind
	}
	if status >= 500 && status < 600 {
		return api.ErrorKindInternalServer
	}
	return api.ErrorKindUnknown
}

// FromStatus classifies a non-2xx response. The body is read best-effort:
// when it carries an error envelope of either grammar the upstream message
// is used and its type or code may refine the kind. A JSON body is attached
// for diagnostics; anything else is attached as an empty object.
func FromStatus(status int, body []byte) *api.APIError {
	kind := KindForStatus(status)
	env := readEnvelope(body)
	if refined, ok := refine(env); ok {
		kind = refined
	}

	message := env.message
	if message == "" {
		message = fmt.Sprintf("backend returned %s", api.StatusText(status))
	}

	e := api.NewError(kind, message).WithStatus(status)
	if kind == api.ErrorKindUnknown && status >= 500 {
		e.Retryable = true
	}
	return e.WithBody(diagnosticBody(body))
}

func diagnosticBody(body []byte) any {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return map[string]any{}
	}
	return json.RawMessage(append([]byte(nil), body...))
}

// FromStreamPayload classifies an error delivered inside a 200 stream, such
// as an Anthropic `error` event or an OpenAI chunk carrying an error object.
func FromStreamPayload(body []byte) *api.APIError {
	env := readEnvelope(body)
	kind := api.ErrorKindStreamError
	if refined, ok := refine(env); ok {
		kind = refined
	}
	return api.NewError(kind, env.message).WithBody(diagnosticBody(body))
}

// transportPatterns is matched in order against the lower-cased error text.
var transportPatterns = []struct {
	substrings []string
	kind       api.ErrorKind
}{
	{[]string{"timeout", "timed out", "deadline exceeded"}, api.ErrorKindConnectTimeout},
	{[]string{"connection refused"}, api.ErrorKindConnectionRefused},
	{[]string{"no such host", "dns", "server misbehaving"}, api.ErrorKindDNSFailure},
}

// FromTransport classifies an error returned by the HTTP client before any
// response was received.
func FromTransport(err error) *api.APIError {
	if err == nil {
		return api.NewError(api.ErrorKindUnknown, "")
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) {
		return api.NewCancelledError(err)
	}

	text := strings.ToLower(err.Error())
	for _, p := range transportPatterns {
		for _, s := range p.substrings {
			if strings.Contains(text, s) {
				return api.NewError(p.kind, "backend connection error: "+err.Error()).WithCause(err)
			}
		}
	}
	return api.NewError(api.ErrorKindNetwork, "backend connection error: "+err.Error()).WithCause(err)
}

// StreamFailure classifies an error raised while reading an open response
// stream. Cancellation keeps its own kind.
func StreamFailure(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if errors.Is(err, context.Canceled) {
		return api.NewCancelledError(err)
	}
	return api.NewStreamError("reading response stream: " + err.Error()).WithCause(err)
}

type envelope struct {
	typ     string
	code    string
	message string
}

// readEnvelope extracts type, code and message from the error shapes used by
// both grammars:
//
//	{"error": {"type": "...", "code": "...", "message": "..."}}
//	{"type": "error", "error": {"type": "...", "message": "..."}}
//	{"message": "..."}
func readEnvelope(body []byte) envelope {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return envelope{}
	}
	root := gjson.ParseBytes(body)
	errObj := root.Get("error")
	if errObj.Type == gjson.String {
		return envelope{message: errObj.String()}
	}
	if !errObj.IsObject() {
		return envelope{message: root.Get("message").String()}
	}
	return envelope{
		typ:     errObj.Get("type").String(),
		code:    errObj.Get("code").String(),
		message: errObj.Get("message").String(),
	}
}

var envelopeKinds = map[string]api.ErrorKind{
	"overloaded_error":        api.ErrorKindOverloaded,
	"rate_limit_error":        api.ErrorKindRateLimited,
	"rate_limit_exceeded":     api.ErrorKindRateLimited,
	"authentication_error":    api.ErrorKindInvalidCredential,
	"invalid_api_key":         api.ErrorKindInvalidCredential,
	"permission_error":        api.ErrorKindAccessDenied,
	"not_found_error":         api.ErrorKindNotFound,
	"model_not_found":         api.ErrorKindInvalidModel,
	"insufficient_quota":      api.ErrorKindQuotaExceeded,
	"context_length_exceeded": api.ErrorKindContentTooLong,
	"content_filter":          api.ErrorKindContentFiltered,
	"request_too_large":       api.ErrorKindPayloadTooLarge,
	"api_error":               api.ErrorKindInternalServer,
	"timeout_error":           api.ErrorKindTimeout,
}

func refine(env envelope) (api.ErrorKind, bool) {
	for _, key := range []string{env.code, env.typ} {
		if kind, ok := envelopeKinds[key]; ok {
			return kind, true
		}
	}
	msg := strings.ToLower(env.message)
	switch {
	case strings.Contains(msg, "context length"), strings.Contains(msg, "maximum context"):
		return api.ErrorKindContentTooLong, true
	case strings.Contains(msg, "content filter"), strings.Contains(msg, "content management policy"):
		return api.ErrorKindContentFiltered, true
	case strings.Contains(msg, "concurren"):
		return api.ErrorKindConcurrencyLimited, true
	case strings.Contains(msg, "maintenance"):
		return api.ErrorKindMaintenance, true
	}
	return "", false
}
