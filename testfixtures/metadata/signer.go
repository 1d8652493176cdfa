// Package metadata provides signed SAML metadata and a fake MDQ server for
// testing. Documents are signed with the same goxmldsig library the
// production verifier uses, so tests exercise the real verification path.
package metadata

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ausaccessfed/aaf-mdqt/internal/adapters/driven/signature"
)

// SAML metadata namespace constants.
const (
	samlMetadataNS = "urn:oasis:names:tc:SAML:2.0:metadata"
)

// Option configures a Signer.
type Option func(*signerOptions)

type signerOptions struct {
	commonName string
	notBefore  time.Time
	notAfter   time.Time
}

// WithCommonName sets the certificate subject common name.
func WithCommonName(cn string) Option {
	return func(o *signerOptions) { o.commonName = cn }
}

// WithValidity sets the certificate validity window.
func WithValidity(notBefore, notAfter time.Time) Option {
	return func(o *signerOptions) {
		o.notBefore = notBefore
		o.notAfter = notAfter
	}
}

// Signer signs SAML metadata XML for testing.
type Signer struct {
	t           testing.TB
	privateKey  *rsa.PrivateKey
	certificate *x509.Certificate
}

// New creates a Signer with auto-generated key/certificate.
func New(t testing.TB, opts ...Option) *Signer {
	t.Helper()

	o := signerOptions{
		commonName: "Test Metadata Signer",
		notBefore:  time.Now().Add(-time.Hour),
		notAfter:   time.Now().Add(24 * time.Hour),
	}
	for _, opt := range opts {
		opt(&o)
	}

	key, cert, err := generateSelfSignedCert(o)
	if err != nil {
		t.Fatalf("failed to generate signing certificate: %v", err)
	}

	return &Signer{
		t:           t,
		privateKey:  key,
		certificate: cert,
	}
}

// Certificate returns the signing certificate for verifier setup.
func (s *Signer) Certificate() *x509.Certificate {
	return s.certificate
}

// CertificatePEM returns the signing certificate PEM-encoded.
func (s *Signer) CertificatePEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.certificate.Raw})
}

// WriteCertificate writes the PEM certificate into dir and returns its path.
func (s *Signer) WriteCertificate(dir string) string {
	s.t.Helper()
	path := filepath.Join(dir, fmt.Sprintf("anchor-%s.pem", s.certificate.SerialNumber))
	if err := os.WriteFile(path, s.CertificatePEM(), 0o600); err != nil {
		s.t.Fatalf("write certificate: %v", err)
	}
	return path
}

// Sign signs the given metadata XML and returns signed bytes.
func (s *Signer) Sign(metadata []byte) ([]byte, error) {
	return signature.NewXMLDsigSigner(s.privateKey, s.certificate).Sign(metadata)
}

// MustSign signs metadata or fails the test.
func (s *Signer) MustSign(metadata []byte) []byte {
	s.t.Helper()
	signed, err := s.Sign(metadata)
	if err != nil {
		s.t.Fatalf("sign metadata: %v", err)
	}
	return signed
}

// EntityMetadata returns an unsigned EntityDescriptor for entityID.
func EntityMetadata(entityID string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<EntityDescriptor xmlns="%s" ID="%s" entityID="%s">
%s</EntityDescriptor>`, samlMetadataNS, documentID(entityID), entityID, idpDescriptor(entityID, "  ")))
}

// AggregateMetadata returns an unsigned EntitiesDescriptor holding one
// EntityDescriptor per entityID.
func AggregateMetadata(entityIDs []string) []byte {
	var entities strings.Builder
	for _, id := range entityIDs {
		fmt.Fprintf(&entities, "  <EntityDescriptor entityID=%q>\n%s  </EntityDescriptor>\n", id, idpDescriptor(id, "    "))
	}
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<EntitiesDescriptor xmlns="%s" ID="_aggregate" Name="Test Federation">
%s</EntitiesDescriptor>`, samlMetadataNS, entities.String()))
}

func idpDescriptor(entityID, indent string) string {
	return fmt.Sprintf(`%[1]s<IDPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
%[1]s  <SingleSignOnService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect" Location="%[2]s/sso"/>
%[1]s</IDPSSODescriptor>
`, indent, entityID)
}

// documentID derives an XML ID from entityID. IDs must not start with a digit.
func documentID(entityID string) string {
	var b strings.Builder
	b.WriteString("_")
	for _, r := range entityID {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// generateSelfSignedCert creates a self-signed certificate for signing.
func generateSelfSignedCert(o signerOptions) (*rsa.PrivateKey, *x509.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial: %w", err)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   o.commonName,
			Organization: []string{"Test"},
		},
		NotBefore:             o.notBefore,
		NotAfter:              o.notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, fmt.Errorf("parse certificate: %w", err)
	}

	return key, cert, nil
}
