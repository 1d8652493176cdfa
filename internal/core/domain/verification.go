package domain

import "time"

// VerificationState is the trust outcome of a lookup.
type VerificationState string

const (
	// NotAttempted means no trust anchors were configured. It is distinct
	// from Failed and must not be reported as a verification failure.
	NotAttempted VerificationState = "not_attempted"

	// Verified means one of the anchors validated the embedded signature.
	Verified VerificationState = "verified"

	// Failed means anchors were configured and none validated the signature.
	Failed VerificationState = "failed"
)

// AttemptOutcome is the result of validating against a single anchor.
type AttemptOutcome string

const (
	OutcomeMatched    AttemptOutcome = "matched"
	OutcomeMismatched AttemptOutcome = "mismatched"
	OutcomeError      AttemptOutcome = "error"
)

// TrustAnchor describes a configured trust anchor certificate.
type TrustAnchor struct {
	// Fingerprint is the hex SHA-256 of the DER certificate.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	// Subject is the certificate subject distinguished name.
	Subject string `json:"subject" yaml:"subject"`

	// NotAfter is the certificate expiry.
	NotAfter time.Time `json:"not_after" yaml:"not_after"`
}

// AnchorAttempt records one anchor tried during verification.
type AnchorAttempt struct {
	Anchor     TrustAnchor    `json:"anchor" yaml:"anchor"`
	Outcome    AttemptOutcome `json:"outcome" yaml:"outcome"`
	Diagnostic string         `json:"diagnostic,omitempty" yaml:"diagnostic,omitempty"`
}

// VerificationResult is the outcome of checking a document against the
// trust anchor set. Attempts is populated only when an explanation was
// requested.
type VerificationResult struct {
	State VerificationState `json:"state" yaml:"state"`

	// Algorithm is the signature method of the matching signature, if any.
	Algorithm string `json:"algorithm,omitempty" yaml:"algorithm,omitempty"`

	// Malformed is set when the document could not be parsed at all, as
	// opposed to parsing fine and matching no anchor.
	Malformed bool `json:"malformed,omitempty" yaml:"malformed,omitempty"`

	Attempts []AnchorAttempt `json:"attempts,omitempty" yaml:"attempts,omitempty"`
}

// NotAttemptedResult is the result for an empty trust anchor set.
func NotAttemptedResult() VerificationResult {
	return VerificationResult{State: NotAttempted}
}

// IsVerified reports whether the document was verified.
func (r VerificationResult) IsVerified() bool {
	return r.State == Verified
}

// Attempted reports whether verification was requested at all.
func (r VerificationResult) Attempted() bool {
	return r.State != NotAttempted && r.State != ""
}

// Matched returns the anchor that validated the document, if any.
func (r VerificationResult) Matched() (TrustAnchor, bool) {
	for _, a := range r.Attempts {
		if a.Outcome == OutcomeMatched {
			return a.Anchor, true
		}
	}
	return TrustAnchor{}, false
}
