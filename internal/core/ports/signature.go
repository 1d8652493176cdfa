package ports

import "github.com/ausaccessfed/aaf-mdqt/internal/core/domain"

// TrustVerifier checks metadata documents against a fixed set of trust
// anchors. The anchor set never changes after construction, so
// implementations are safe for concurrent use.
type TrustVerifier interface {
	// Verify checks body against every configured anchor. With an empty
	// anchor set the result is not_attempted. When explain is true the
	// result carries one attempt per anchor.
	Verify(body []byte, explain bool) domain.VerificationResult

	// Anchors describes the configured anchors.
	Anchors() []domain.TrustAnchor
}

// MetadataSigner signs XML documents for SAML metadata.
// This is a port interface - implementations are adapters.
type MetadataSigner interface {
	// Sign adds an enveloped XML signature to the metadata and returns
	// the signed XML bytes.
	Sign(data []byte) ([]byte, error)
}
