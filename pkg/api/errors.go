package api

import (
	"fmt"
	"net/http"
)

// ErrorKind identifies one entry of the closed error taxonomy.
type ErrorKind string

const (
	// Authentication and authorization.
	ErrorKindInvalidCredential ErrorKind = "invalid_credential"
	ErrorKindMissingCredential ErrorKind = "missing_credential"
	ErrorKindAccessDenied      ErrorKind = "access_denied"

	// Request validation.
	ErrorKindInvalidRequest    ErrorKind = "invalid_request"
	ErrorKindInvalidParameters ErrorKind = "invalid_parameters"
	ErrorKindInvalidModel      ErrorKind = "invalid_model"
	ErrorKindInvalidPrompt     ErrorKind = "invalid_prompt"
	ErrorKindInvalidToolFormat ErrorKind = "invalid_tool_format"
	ErrorKindPayloadTooLarge   ErrorKind = "payload_too_large"

	// Rate limits and quota.
	ErrorKindRateLimited        ErrorKind = "rate_limited"
	ErrorKindQuotaExceeded      ErrorKind = "quota_exceeded"
	ErrorKindConcurrencyLimited ErrorKind = "concurrency_limited"

	// Resources.
	ErrorKindNotFound            ErrorKind = "not_found"
	ErrorKindResourceUnavailable ErrorKind = "resource_unavailable"
	ErrorKindOverloaded          ErrorKind = "overloaded"

	// Server side.
	ErrorKindInternalServer     ErrorKind = "internal_server_error"
	ErrorKindServiceUnavailable ErrorKind = "service_unavailable"
	ErrorKindGatewayTimeout     ErrorKind = "gateway_timeout"
	ErrorKindMaintenance        ErrorKind = "maintenance"
	ErrorKindTimeout            ErrorKind = "timeout"

	// Network.
	ErrorKindNetwork           ErrorKind = "network_error"
	ErrorKindConnectTimeout    ErrorKind = "connect_timeout"
	ErrorKindConnectionRefused ErrorKind = "connection_refused"
	ErrorKindDNSFailure        ErrorKind = "dns_failure"

	// Response processing.
	ErrorKindParseFailure       ErrorKind = "parse_failure"
	ErrorKindMalformedResponse  ErrorKind = "malformed_response"
	ErrorKindIncompleteResponse ErrorKind = "incomplete_response"
	ErrorKindStreamError        ErrorKind = "stream_error"

	// Content safety.
	ErrorKindContentFiltered ErrorKind = "content_filtered"
	ErrorKindUnsafeContent   ErrorKind = "unsafe_content"
	ErrorKindContentTooLong  ErrorKind = "content_too_long"

	ErrorKindCancelled ErrorKind = "cancelled"
	ErrorKindUnknown   ErrorKind = "unknown"
)

// Severity grades how much attention an error deserves.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Category groups error kinds.
type Category string

const (
	CategoryAuth          Category = "auth"
	CategoryValidation    Category = "validation"
	CategoryRateLimit     Category = "rate_limit"
	CategoryResource      Category = "resource"
	CategoryServer        Category = "server"
	CategoryNetwork       Category = "network"
	CategoryResponse      Category = "response"
	CategoryContentSafety Category = "content_safety"
	CategoryClient        Category = "client"
)

// KindInfo holds the fixed attributes of an error kind.
type KindInfo struct {
	Severity    Severity
	Category    Category
	Retryable   bool
	Message     string
	Suggestions []string
}

var taxonomy = map[ErrorKind]KindInfo{
	ErrorKindInvalidCredential: {SeverityCritical, CategoryAuth, false, "the credential was rejected by the backend",
		[]string{"check the API key", "make sure the key belongs to this endpoint"}},
	ErrorKindMissingCredential: {SeverityCritical, CategoryAuth, false, "no credential was supplied",
		[]string{"configure an API key for the backend"}},
	ErrorKindAccessDenied: {SeverityHigh, CategoryAuth, false, "the credential is not allowed to perform this call",
		[]string{"check the key's permissions", "verify the model is enabled for this account"}},

	ErrorKindInvalidRequest: {SeverityMedium, CategoryValidation, false, "the backend rejected the request",
		[]string{"inspect the request body", "check message roles and content parts"}},
	ErrorKindInvalidParameters: {SeverityMedium, CategoryValidation, false, "one or more request parameters are invalid",
		[]string{"check temperature, max tokens and stop sequences"}},
	ErrorKindInvalidModel: {SeverityMedium, CategoryValidation, false, "the requested model is not available",
		[]string{"check the model identifier"}},
	ErrorKindInvalidPrompt: {SeverityMedium, CategoryValidation, false, "the prompt was rejected",
		[]string{"check the messages for empty or unsupported content"}},
	ErrorKindInvalidToolFormat: {SeverityMedium, CategoryValidation, false, "a tool declaration is invalid",
		[]string{"check tool names and parameter schemas"}},
	ErrorKindPayloadTooLarge: {SeverityMedium, CategoryValidation, false, "the request body is too large",
		[]string{"shorten the conversation", "send smaller images"}},

	ErrorKindRateLimited: {SeverityLow, CategoryRateLimit, true, "the backend rate limit was hit",
		[]string{"retry later", "reduce request rate"}},
	ErrorKindQuotaExceeded: {SeverityHigh, CategoryRateLimit, false, "the account quota is exhausted",
		[]string{"check billing and quota for the account"}},
	ErrorKindConcurrencyLimited: {SeverityLow, CategoryRateLimit, true, "too many concurrent requests",
		[]string{"reduce parallel calls"}},

	ErrorKindNotFound: {SeverityMedium, CategoryResource, false, "the requested resource does not exist",
		[]string{"check the endpoint URL and model identifier"}},
	ErrorKindResourceUnavailable: {SeverityMedium, CategoryResource, true, "the requested resource is temporarily unavailable",
		[]string{"retry later"}},
	ErrorKindOverloaded: {SeverityMedium, CategoryResource, true, "the backend is overloaded",
		[]string{"retry later", "try a different model"}},

	ErrorKindInternalServer: {SeverityMedium, CategoryServer, true, "the backend failed internally",
		[]string{"retry the call"}},
	ErrorKindServiceUnavailable: {SeverityMedium, CategoryServer, true, "the backend service is unavailable",
		[]string{"retry later"}},
	ErrorKindGatewayTimeout: {SeverityMedium, CategoryServer, true, "a gateway in front of the backend timed out",
		[]string{"retry the call", "reduce max tokens"}},
	ErrorKindMaintenance: {SeverityMedium, CategoryServer, true, "the backend is under maintenance",
		[]string{"retry later"}},
	ErrorKindTimeout: {SeverityMedium, CategoryServer, true, "the request timed out",
		[]string{"retry the call", "raise the per-attempt timeout"}},

	ErrorKindNetwork: {SeverityMedium, CategoryNetwork, true, "a network error occurred",
		[]string{"check connectivity to the backend"}},
	ErrorKindConnectTimeout: {SeverityMedium, CategoryNetwork, true, "connecting to the backend timed out",
		[]string{"check connectivity to the backend", "raise the per-attempt timeout"}},
	ErrorKindConnectionRefused: {SeverityMedium, CategoryNetwork, true, "the backend refused the connection",
		[]string{"check that the backend is running", "check the endpoint URL"}},
	ErrorKindDNSFailure: {SeverityMedium, CategoryNetwork, true, "the backend host name could not be resolved",
		[]string{"check the endpoint host name"}},

	ErrorKindParseFailure: {SeverityMedium, CategoryResponse, false, "the backend response could not be parsed",
		[]string{"check that the endpoint speaks the configured grammar"}},
	ErrorKindMalformedResponse: {SeverityMedium, CategoryResponse, false, "the backend response is malformed",
		[]string{"check that the endpoint speaks the configured grammar"}},
	ErrorKindIncompleteResponse: {SeverityMedium, CategoryResponse, true, "the backend response ended early",
		[]string{"retry the call"}},
	ErrorKindStreamError: {SeverityMedium, CategoryResponse, true, "the response stream failed",
		[]string{"retry the call"}},

	ErrorKindContentFiltered: {SeverityHigh, CategoryContentSafety, false, "the content was blocked by a safety filter",
		[]string{"rephrase the prompt"}},
	ErrorKindUnsafeContent: {SeverityHigh, CategoryContentSafety, false, "the content was flagged as unsafe",
		[]string{"rephrase the prompt"}},
	ErrorKindContentTooLong: {SeverityMedium, CategoryContentSafety, false, "the input exceeds the model context",
		[]string{"shorten the conversation", "lower max tokens"}},

	ErrorKindCancelled: {SeverityLow, CategoryClient, false, "the call was cancelled",
		nil},
	ErrorKindUnknown: {SeverityMedium, CategoryServer, false, "an unexpected error occurred",
		[]string{"inspect the attached response body"}},
}

// Info returns the fixed attributes of the kind. Unknown kinds map to the
// attributes of ErrorKindUnknown.
func (k ErrorKind) Info() KindInfo {
	if info, ok := taxonomy[k]; ok {
		return info
	}
	return taxonomy[ErrorKindUnknown]
}

// APIError is the single error shape returned by every operation in this
// module. It is immutable once constructed.
type APIError struct {
	Kind        ErrorKind `json:"kind"`
	Severity    Severity  `json:"severity"`
	Category    Category  `json:"category"`
	Retryable   bool      `json:"retryable"`
	Message     string    `json:"message"`
	Suggestions []string  `json:"suggestions,omitempty"`

	// Status is the originating HTTP status, or 0 when the failure did not
	// come from an HTTP response.
	Status int `json:"status,omitempty"`

	// Body is the upstream payload kept for diagnostics only.
	Body any `json:"-"`

	// Cause is the underlying error, if any.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Cause
}

// NewError creates an APIError for the given kind. An empty message uses the
// kind's default message.
func NewError(kind ErrorKind, message string) *APIError {
	info := kind.Info()
	if message == "" {
		message = info.Message
	}
	return &APIError{
		Kind:        kind,
		Severity:    info.Severity,
		Category:    info.Category,
		Retryable:   info.Retryable,
		Message:     message,
		Suggestions: info.Suggestions,
	}
}

// WithStatus returns a copy of e carrying the originating HTTP status.
func (e *APIError) WithStatus(status int) *APIError {
	c := *e
	c.Status = status
	return &c
}

// WithBody returns a copy of e carrying a diagnostic upstream payload.
func (e *APIError) WithBody(body any) *APIError {
	c := *e
	c.Body = body
	return &c
}

// WithCause returns a copy of e wrapping cause.
func (e *APIError) WithCause(cause error) *APIError {
	c := *e
	c.Cause = cause
	return &c
}

// NewInvalidRequestError creates an APIError for a request rejected before it
// was sent.
func NewInvalidRequestError(message string) *APIError {
	return NewError(ErrorKindInvalidRequest, message)
}

// NewCancelledError creates an APIError for a cancelled call.
func NewCancelledError(cause error) *APIError {
	return NewError(ErrorKindCancelled, "").WithCause(cause)
}

// NewStreamError creates an APIError for a failed response stream.
func NewStreamError(message string) *APIError {
	return NewError(ErrorKindStreamError, message)
}

// StatusText returns a short label for an HTTP status, used in messages
// when the upstream body carries none.
func StatusText(status int) string {
	if t := http.StatusText(status); t != "" {
		return t
	}
	return fmt.Sprintf("HTTP %d", status)
}
