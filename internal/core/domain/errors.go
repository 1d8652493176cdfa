package domain

import (
	"fmt"
	"net/http"
)

// ErrorCode represents categorized error types.
// These codes are stable and can be used for programmatic error handling.
type ErrorCode string

const (
	ErrCodeMalformedHash     ErrorCode = "malformed_hash"
	ErrCodeUnreachable       ErrorCode = "unreachable"
	ErrCodeTimeout           ErrorCode = "timeout"
	ErrCodeTooManyRedirects  ErrorCode = "too_many_redirects"
	ErrCodeHTTPStatus        ErrorCode = "http_status"
	ErrCodeConfigInvalid     ErrorCode = "config_invalid"
	ErrCodeCacheMiss         ErrorCode = "cache_miss"
	ErrCodeCacheUnavailable  ErrorCode = "cache_unavailable"
	ErrCodeCacheCorrupt      ErrorCode = "cache_corrupt"
	ErrCodeSignatureInvalid  ErrorCode = "signature_invalid"
	ErrCodeMalformedDocument ErrorCode = "malformed_document"
	ErrCodeBadCertificate    ErrorCode = "bad_certificate"
)

// String returns the error code as a string.
func (c ErrorCode) String() string {
	return string(c)
}

// Sentinel errors for use with errors.Is. AppError.Is matches on Code, so
// errors.Is(err, ErrTimeout) holds for any AppError carrying ErrCodeTimeout.
var (
	ErrMalformedHash     = &AppError{Code: ErrCodeMalformedHash, Message: "malformed sha1 identifier"}
	ErrUnreachable       = &AppError{Code: ErrCodeUnreachable, Message: "MDQ service unreachable"}
	ErrTimeout           = &AppError{Code: ErrCodeTimeout, Message: "MDQ request timed out"}
	ErrTooManyRedirects  = &AppError{Code: ErrCodeTooManyRedirects, Message: "too many redirects"}
	ErrHTTPStatus        = &AppError{Code: ErrCodeHTTPStatus, Message: "unexpected HTTP status"}
	ErrConfigInvalid     = &AppError{Code: ErrCodeConfigInvalid, Message: "invalid configuration"}
	ErrCacheMiss         = &AppError{Code: ErrCodeCacheMiss, Message: "cache miss"}
	ErrCacheUnavailable  = &AppError{Code: ErrCodeCacheUnavailable, Message: "cache backend unavailable"}
	ErrCacheCorrupt      = &AppError{Code: ErrCodeCacheCorrupt, Message: "corrupt cache entry"}
	ErrMalformedDocument = &AppError{Code: ErrCodeMalformedDocument, Message: "malformed metadata document"}
	ErrBadCertificate    = &AppError{Code: ErrCodeBadCertificate, Message: "invalid trust anchor certificate"}
)

// AppError is a structured error with code, message, and optional cause.
// Identifier and URL name the offending lookup so callers can report it.
type AppError struct {
	Code       ErrorCode
	Message    string
	Identifier string
	URL        string
	Status     int // HTTP status for ErrCodeHTTPStatus
	Cause      error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	msg := e.Message
	if e.URL != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.URL)
	} else if e.Identifier != "" {
		msg = fmt.Sprintf("%s (%q)", msg, e.Identifier)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Recoverable reports whether the error only fails the lookup for one
// identifier. Configuration and certificate errors are not recoverable.
func (c ErrorCode) Recoverable() bool {
	switch c {
	case ErrCodeConfigInvalid, ErrCodeBadCertificate:
		return false
	default:
		return true
	}
}

// HTTPStatus returns the HTTP status a proxy should answer with for this code.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeMalformedHash:
		return http.StatusBadRequest
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeUnreachable, ErrCodeTooManyRedirects, ErrCodeHTTPStatus, ErrCodeSignatureInvalid, ErrCodeMalformedDocument:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ExitCode returns the process exit status the CLI uses for this code.
func (c ErrorCode) ExitCode() int {
	switch c {
	case ErrCodeMalformedHash:
		return 2
	case ErrCodeUnreachable, ErrCodeTimeout, ErrCodeTooManyRedirects:
		return 3
	case ErrCodeHTTPStatus:
		return 4
	case ErrCodeSignatureInvalid, ErrCodeMalformedDocument:
		return 5
	case ErrCodeConfigInvalid, ErrCodeBadCertificate:
		return 6
	default:
		return 1
	}
}

// Title returns the upstream status text for HTTP status errors, and the
// code's title otherwise.
func (e *AppError) Title() string {
	if e.Code == ErrCodeHTTPStatus && e.Status != 0 {
		if text := http.StatusText(e.Status); text != "" {
			return text
		}
	}
	return e.Code.Title()
}

// Title returns a user-friendly title for this error code.
func (c ErrorCode) Title() string {
	switch c {
	case ErrCodeMalformedHash:
		return "Malformed Identifier"
	case ErrCodeUnreachable:
		return "Service Unreachable"
	case ErrCodeTimeout:
		return "Timeout"
	case ErrCodeTooManyRedirects:
		return "Too Many Redirects"
	case ErrCodeHTTPStatus:
		return "Upstream Error"
	case ErrCodeConfigInvalid:
		return "Configuration Error"
	case ErrCodeSignatureInvalid:
		return "Signature Invalid"
	case ErrCodeMalformedDocument:
		return "Malformed Document"
	case ErrCodeBadCertificate:
		return "Bad Certificate"
	default:
		return "Error"
	}
}

// JSONErrorResponse is the standard JSON error format for proxy responses.
type JSONErrorResponse struct {
	Error JSONErrorDetail `json:"error"`
}

// JSONErrorDetail contains error details.
type JSONErrorDetail struct {
	Code       string `json:"code"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	Identifier string `json:"identifier,omitempty"`
}

// NewJSONErrorResponse creates a JSON error response from an AppError.
func NewJSONErrorResponse(err *AppError) JSONErrorResponse {
	return JSONErrorResponse{
		Error: JSONErrorDetail{
			Code:       err.Code.String(),
			Title:      err.Title(),
			Message:    err.Message,
			Identifier: err.Identifier,
		},
	}
}

// MalformedHashError creates a malformed hashed-identifier error.
func MalformedHashError(id string) *AppError {
	return &AppError{
		Code:       ErrCodeMalformedHash,
		Message:    "SHA1 identifier is malformed",
		Identifier: id,
	}
}

// ConfigError creates a configuration error.
func ConfigError(message string) *AppError {
	return &AppError{Code: ErrCodeConfigInvalid, Message: message}
}

// HTTPStatusError creates an error for a non-200 final response.
func HTTPStatusError(url string, status int) *AppError {
	return &AppError{
		Code:    ErrCodeHTTPStatus,
		Message: fmt.Sprintf("MDQ service returned HTTP %d", status),
		URL:     url,
		Status:  status,
	}
}

// TransportError creates an unreachable, timeout, or redirect error for url.
func TransportError(code ErrorCode, url string, cause error) *AppError {
	var msg string
	switch code {
	case ErrCodeTimeout:
		msg = "connection to MDQ service timed out"
	case ErrCodeTooManyRedirects:
		msg = "MDQ service redirected too many times"
	default:
		msg = "can't connect to MDQ service"
	}
	return &AppError{Code: code, Message: msg, URL: url, Cause: cause}
}

// CacheError creates a cache backend error. These never reach callers of a
// lookup; the retrieval client downgrades them to misses.
func CacheError(code ErrorCode, key string, cause error) *AppError {
	return &AppError{Code: code, Message: "cache operation failed", Identifier: key, Cause: cause}
}
