package domain

import (
	"net/http"
	"time"
)

// FetchMode selects the kind of request a lookup issues.
type FetchMode int

const (
	// ModeGet retrieves the document body.
	ModeGet FetchMode = iota

	// ModeExists issues a HEAD request and never materializes a body.
	ModeExists
)

// String returns the mode label used in logs and metrics.
func (m FetchMode) String() string {
	if m == ModeExists {
		return "exists"
	}
	return "get"
}

// DocumentInfo is what inspection of a metadata document found.
type DocumentInfo struct {
	// Aggregate is true for an EntitiesDescriptor root.
	Aggregate bool

	// EntityIDs lists the entityID of every EntityDescriptor found.
	EntityIDs []string

	// ValidUntil is the root validUntil attribute, if present.
	ValidUntil *time.Time
}

// Expired reports whether the document carries a validUntil before now.
func (d DocumentInfo) Expired(now time.Time) bool {
	return d.ValidUntil != nil && d.ValidUntil.Before(now)
}

// ResponseParams carries everything needed to build a MetadataResponse.
type ResponseParams struct {
	Identifier   EntityIdentifier
	SourceURL    string
	Status       int
	Header       http.Header
	Body         []byte
	Document     DocumentInfo
	CacheOutcome CacheOutcome
	TLSVerified  bool
	FetchedAt    time.Time
}

// MetadataResponse is the immutable result of a lookup. Accessors return
// copies of mutable fields; WithVerification returns a new value.
type MetadataResponse struct {
	id           EntityIdentifier
	sourceURL    string
	status       int
	header       http.Header
	body         []byte
	doc          DocumentInfo
	cacheOutcome CacheOutcome
	tlsVerified  bool
	fetchedAt    time.Time
	verification VerificationResult
}

// NewMetadataResponse builds a response whose verification is not_attempted.
func NewMetadataResponse(p ResponseParams) *MetadataResponse {
	body := make([]byte, len(p.Body))
	copy(body, p.Body)
	return &MetadataResponse{
		id:           p.Identifier,
		sourceURL:    p.SourceURL,
		status:       p.Status,
		header:       p.Header.Clone(),
		body:         body,
		doc:          p.Document,
		cacheOutcome: p.CacheOutcome,
		tlsVerified:  p.TLSVerified,
		fetchedAt:    p.FetchedAt,
		verification: NotAttemptedResult(),
	}
}

// WithVerification returns a copy of r annotated with result.
func (r *MetadataResponse) WithVerification(result VerificationResult) *MetadataResponse {
	annotated := *r
	annotated.verification = result
	return &annotated
}

// Identifier returns the identifier the response was requested for.
func (r *MetadataResponse) Identifier() EntityIdentifier { return r.id }

// EntityID returns the canonical key of the requested entity.
func (r *MetadataResponse) EntityID() string { return r.id.Canonical() }

// SourceURL returns the URL the document was requested from.
func (r *MetadataResponse) SourceURL() string { return r.sourceURL }

// Status returns the final HTTP status.
func (r *MetadataResponse) Status() int { return r.status }

// OK reports whether the final status was 200.
func (r *MetadataResponse) OK() bool { return r.status == http.StatusOK }

// Header returns a copy of the response headers.
func (r *MetadataResponse) Header() http.Header { return r.header.Clone() }

// Body returns a copy of the document bytes.
func (r *MetadataResponse) Body() []byte {
	out := make([]byte, len(r.body))
	copy(out, r.body)
	return out
}

// Len returns the body length without copying it.
func (r *MetadataResponse) Len() int { return len(r.body) }

// IsAggregate reports whether the body holds multiple entity descriptors.
func (r *MetadataResponse) IsAggregate() bool { return r.doc.Aggregate }

// EntityIDs returns the entityIDs found in the document.
func (r *MetadataResponse) EntityIDs() []string {
	return append([]string(nil), r.doc.EntityIDs...)
}

// ValidUntil returns the document validUntil, if present.
func (r *MetadataResponse) ValidUntil() *time.Time { return r.doc.ValidUntil }

// Expired reports whether the document's validUntil has passed.
func (r *MetadataResponse) Expired(now time.Time) bool { return r.doc.Expired(now) }

// CacheOutcome reports how the cache took part in the lookup.
func (r *MetadataResponse) CacheOutcome() CacheOutcome { return r.cacheOutcome }

// TLSVerified is false when transport certificate checks were disabled.
func (r *MetadataResponse) TLSVerified() bool { return r.tlsVerified }

// FetchedAt returns when the document was obtained (or the cache entry stored).
func (r *MetadataResponse) FetchedAt() time.Time { return r.fetchedAt }

// Verification returns the trust outcome.
func (r *MetadataResponse) Verification() VerificationResult { return r.verification }

// Verified reports whether the document was verified against an anchor.
func (r *MetadataResponse) Verified() bool { return r.verification.IsVerified() }

// Explanation returns the per-anchor trace, or nil if none was recorded.
func (r *MetadataResponse) Explanation() []AnchorAttempt {
	return append([]AnchorAttempt(nil), r.verification.Attempts...)
}
