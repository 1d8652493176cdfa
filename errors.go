package mdqt

import (
	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

// Re-export error types from domain package
type ErrorCode = domain.ErrorCode
type AppError = domain.AppError
type JSONErrorResponse = domain.JSONErrorResponse
type JSONErrorDetail = domain.JSONErrorDetail

// Re-export error code constants
const (
	ErrCodeMalformedHash     = domain.ErrCodeMalformedHash
	ErrCodeUnreachable       = domain.ErrCodeUnreachable
	ErrCodeTimeout           = domain.ErrCodeTimeout
	ErrCodeTooManyRedirects  = domain.ErrCodeTooManyRedirects
	ErrCodeHTTPStatus        = domain.ErrCodeHTTPStatus
	ErrCodeConfigInvalid     = domain.ErrCodeConfigInvalid
	ErrCodeCacheUnavailable  = domain.ErrCodeCacheUnavailable
	ErrCodeCacheCorrupt      = domain.ErrCodeCacheCorrupt
	ErrCodeSignatureInvalid  = domain.ErrCodeSignatureInvalid
	ErrCodeMalformedDocument = domain.ErrCodeMalformedDocument
	ErrCodeBadCertificate    = domain.ErrCodeBadCertificate
)

// Re-export sentinel errors for errors.Is
var (
	ErrMalformedHash     = domain.ErrMalformedHash
	ErrUnreachable       = domain.ErrUnreachable
	ErrTimeout           = domain.ErrTimeout
	ErrTooManyRedirects  = domain.ErrTooManyRedirects
	ErrHTTPStatus        = domain.ErrHTTPStatus
	ErrConfigInvalid     = domain.ErrConfigInvalid
	ErrCacheMiss         = domain.ErrCacheMiss
	ErrCacheUnavailable  = domain.ErrCacheUnavailable
	ErrCacheCorrupt      = domain.ErrCacheCorrupt
	ErrMalformedDocument = domain.ErrMalformedDocument
	ErrBadCertificate    = domain.ErrBadCertificate
)

// Re-export error constructors
var (
	ConfigError          = domain.ConfigError
	NewJSONErrorResponse = domain.NewJSONErrorResponse
)
