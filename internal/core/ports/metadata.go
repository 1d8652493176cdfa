package ports

import (
	"context"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

// FetchOptions controls a single retrieval.
type FetchOptions struct {
	Mode domain.FetchMode

	// ForceRefresh skips the cache lookup. A fresh cacheable response still
	// replaces the stored entry.
	ForceRefresh bool
}

// MetadataFetcher is the port interface for retrieving metadata from an MDQ
// service. It returns a response whose verification is not_attempted.
type MetadataFetcher interface {
	// Fetch retrieves the document for id. A non-200 final status returns
	// both the response and an error matching domain.ErrHTTPStatus.
	Fetch(ctx context.Context, id domain.EntityIdentifier, opts FetchOptions) (*domain.MetadataResponse, error)

	// BaseURL returns the MDQ service base URL.
	BaseURL() string
}

// DocumentInspector extracts structural facts from a metadata document.
type DocumentInspector interface {
	// Inspect parses body and reports what it holds. It returns an error
	// matching domain.ErrMalformedDocument if body is not SAML metadata.
	Inspect(body []byte) (domain.DocumentInfo, error)
}

// DocumentOpener builds a response from a local metadata document.
type DocumentOpener interface {
	Open(path string) (*domain.MetadataResponse, error)
}
