package signature

import (
	"bytes"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"go.uber.org/zap"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
	"github.com/ausaccessfed/aaf-mdqt/internal/core/ports"
)

// algorithmURIToName maps XML DSig algorithm URIs to human-readable names.
var algorithmURIToName = map[string]string{
	"http://www.w3.org/2000/09/xmldsig#rsa-sha1":          "RSA-SHA1",
	"http://www.w3.org/2001/04/xmldsig-more#rsa-sha256":   "RSA-SHA256",
	"http://www.w3.org/2001/04/xmldsig-more#rsa-sha384":   "RSA-SHA384",
	"http://www.w3.org/2001/04/xmldsig-more#rsa-sha512":   "RSA-SHA512",
	"http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha256": "ECDSA-SHA256",
	"http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha384": "ECDSA-SHA384",
	"http://www.w3.org/2001/04/xmldsig-more#ecdsa-sha512": "ECDSA-SHA512",
}

// algorithmName converts an XML DSig algorithm URI to a human-readable name.
// Returns the URI unchanged if not recognized.
func algorithmName(uri string) string {
	if name, ok := algorithmURIToName[uri]; ok {
		return name
	}
	return uri
}

// anchor is one trust anchor with its own single-root certificate store, so
// every anchor is validated in isolation.
type anchor struct {
	cert  *x509.Certificate
	info  domain.TrustAnchor
	store dsig.X509CertificateStore
}

// VerifierOption configures an XMLDsigVerifier.
type VerifierOption func(*XMLDsigVerifier)

// WithVerifierLogger sets the logger for verification events.
func WithVerifierLogger(logger *zap.Logger) VerifierOption {
	return func(v *XMLDsigVerifier) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// XMLDsigVerifier verifies enveloped XML signatures using goxmldsig, trying
// each trust anchor in order until one validates.
type XMLDsigVerifier struct {
	anchors []anchor
	logger  *zap.Logger
}

// NewXMLDsigVerifier creates a verifier over certs. An empty set yields a
// verifier whose results are always not_attempted.
func NewXMLDsigVerifier(certs []*x509.Certificate, opts ...VerifierOption) *XMLDsigVerifier {
	v := &XMLDsigVerifier{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	for _, cert := range certs {
		v.anchors = append(v.anchors, anchor{
			cert:  cert,
			info:  Describe(cert),
			store: &dsig.MemoryX509CertificateStore{Roots: []*x509.Certificate{cert}},
		})
	}
	return v
}

// NewXMLDsigVerifierFromRefs loads anchors from PEM text or file paths.
// Bad certificate material fails construction.
func NewXMLDsigVerifierFromRefs(refs []string, opts ...VerifierOption) (*XMLDsigVerifier, error) {
	certs, err := LoadTrustAnchors(refs)
	if err != nil {
		return nil, err
	}
	return NewXMLDsigVerifier(certs, opts...), nil
}

// Anchors describes the configured anchors in evaluation order.
func (v *XMLDsigVerifier) Anchors() []domain.TrustAnchor {
	out := make([]domain.TrustAnchor, len(v.anchors))
	for i, a := range v.anchors {
		out[i] = a.info
	}
	return out
}

// Verify checks the enveloped signature on the document root against each
// anchor in order and stops at the first match. Failures of a single anchor
// never abort evaluation of the rest.
func (v *XMLDsigVerifier) Verify(body []byte, explain bool) domain.VerificationResult {
	if len(v.anchors) == 0 {
		return domain.NotAttemptedResult()
	}

	result := domain.VerificationResult{State: domain.Failed}
	record := func(a anchor, outcome domain.AttemptOutcome, diagnostic string) {
		if explain {
			result.Attempts = append(result.Attempts, domain.AnchorAttempt{
				Anchor:     a.info,
				Outcome:    outcome,
				Diagnostic: diagnostic,
			})
		}
	}

	root, err := parseRoot(body)
	if err != nil {
		result.Malformed = true
		diagnostic := "malformed document: " + err.Error()
		for _, a := range v.anchors {
			record(a, domain.OutcomeError, diagnostic)
		}
		v.logger.Debug("metadata could not be parsed for verification", zap.Error(err))
		return result
	}

	embedded, embeddedErr := embeddedCertificate(root)
	for _, a := range v.anchors {
		outcome, diagnostic := v.attempt(a, root, embedded, embeddedErr)
		record(a, outcome, diagnostic)
		if outcome == domain.OutcomeMatched {
			result.State = domain.Verified
			result.Algorithm = algorithmName(extractSignatureAlgorithm(root))
			v.logger.Info("metadata signature verified",
				zap.String("algorithm", result.Algorithm),
				zap.String("cert_subject", a.cert.Subject.String()),
				zap.Time("cert_expiry", a.cert.NotAfter),
			)
			return result
		}
		v.logger.Debug("trust anchor did not validate metadata",
			zap.String("anchor", a.info.Fingerprint),
			zap.String("outcome", string(outcome)),
			zap.String("diagnostic", diagnostic),
		)
	}
	return result
}

// attempt validates root against a single anchor.
func (v *XMLDsigVerifier) attempt(a anchor, root *etree.Element, embedded []byte, embeddedErr error) (domain.AttemptOutcome, string) {
	if embeddedErr != nil {
		return domain.OutcomeError, embeddedErr.Error()
	}
	if embedded != nil && !bytes.Equal(embedded, a.cert.Raw) {
		return domain.OutcomeMismatched, "document signed by a different certificate" + signerSubject(embedded)
	}

	// Anchors are bare keys: their validity window does not gate the signature.
	ctx := dsig.NewDefaultValidationContext(a.store)
	ctx.Clock = dsig.NewFakeClockAt(a.cert.NotBefore)
	if _, err := ctx.Validate(root); err != nil {
		switch {
		case errors.Is(err, dsig.ErrMissingSignature):
			return domain.OutcomeError, "document is not signed"
		case embedded == nil && isKeyMismatch(err):
			return domain.OutcomeMismatched, "signature does not verify with the anchor key"
		default:
			return domain.OutcomeError, err.Error()
		}
	}
	return domain.OutcomeMatched, ""
}

// isKeyMismatch reports whether err is a public-key check failure rather
// than a structural problem.
func isKeyMismatch(err error) bool {
	return errors.Is(err, rsa.ErrVerification) || strings.HasSuffix(err.Error(), "verification failure")
}

func parseRoot(body []byte) (*etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, errors.New("empty XML document")
	}
	return root, nil
}

// embeddedCertificate returns the DER of the first KeyInfo certificate on
// the root signature, or nil when the signature carries none.
func embeddedCertificate(root *etree.Element) ([]byte, error) {
	el := root.FindElement("./Signature/KeyInfo/X509Data/X509Certificate")
	if el == nil {
		return nil, nil
	}
	data := strings.Join(strings.Fields(el.Text()), "")
	if data == "" {
		return nil, nil
	}
	der, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("undecodable KeyInfo certificate: %w", err)
	}
	return der, nil
}

func signerSubject(der []byte) string {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(" (%s)", cert.Subject.String())
}

// extractSignatureAlgorithm extracts the SignatureMethod Algorithm from an XML element.
// Returns empty string if not found.
func extractSignatureAlgorithm(root *etree.Element) string {
	sigMethod := root.FindElement("./Signature/SignedInfo/SignatureMethod")
	if sigMethod == nil {
		return ""
	}
	return sigMethod.SelectAttrValue("Algorithm", "")
}

// XMLDsigSigner signs XML documents using goxmldsig.
// It creates enveloped signatures with the provided key pair.
type XMLDsigSigner struct {
	privateKey  *rsa.PrivateKey
	certificate *x509.Certificate
}

// NewXMLDsigSigner creates a signer with the given key pair.
func NewXMLDsigSigner(privateKey *rsa.PrivateKey, certificate *x509.Certificate) *XMLDsigSigner {
	return &XMLDsigSigner{
		privateKey:  privateKey,
		certificate: certificate,
	}
}

// Sign adds an enveloped XML signature to the metadata and returns signed bytes.
func (s *XMLDsigSigner) Sign(metadata []byte) ([]byte, error) {
	if len(metadata) == 0 {
		return nil, errors.New("empty metadata")
	}

	root, err := parseRoot(metadata)
	if err != nil {
		return nil, fmt.Errorf("parse XML: %w", err)
	}

	keyStore := dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{s.certificate.Raw},
		PrivateKey:  s.privateKey,
	})

	signingContext := dsig.NewDefaultSigningContext(keyStore)
	signingContext.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")

	signedRoot, err := signingContext.SignEnveloped(root)
	if err != nil {
		return nil, fmt.Errorf("sign XML: %w", err)
	}

	doc := etree.NewDocument()
	doc.SetRoot(signedRoot)
	signedBytes, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize signed XML: %w", err)
	}
	return signedBytes, nil
}

// Ensure implementations satisfy interfaces
var _ ports.TrustVerifier = (*XMLDsigVerifier)(nil)
var _ ports.MetadataSigner = (*XMLDsigSigner)(nil)
