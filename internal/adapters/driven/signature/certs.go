package signature

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/ausaccessfed/aaf-mdqt/internal/core/domain"
)

const pemMarker = "-----BEGIN"

// ParseCertificates decodes certificate material in PEM (one or more
// CERTIFICATE blocks) or binary DER form.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	return parseCertificates(data, "inline certificate")
}

func parseCertificates(data []byte, source string) ([]*x509.Certificate, error) {
	if !bytes.Contains(data, []byte(pemMarker)) {
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return nil, badCertificate(source, err)
		}
		return []*x509.Certificate{cert}, nil
	}

	var certs []*x509.Certificate
	for {
		block, rest := pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, badCertificate(source, err)
			}
			certs = append(certs, cert)
		}
		data = rest
	}

	if len(certs) == 0 {
		return nil, badCertificate(source, fmt.Errorf("no CERTIFICATE blocks found"))
	}
	return certs, nil
}

// LoadCertificateFile reads certificates from a PEM or DER file.
// Supports multiple certificates in a single file for rotation scenarios.
func LoadCertificateFile(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, badCertificate(path, err)
	}
	return parseCertificates(data, path)
}

// LoadTrustAnchors resolves each reference to certificates. A reference
// holding a PEM block is parsed in place; anything else is read as a file
// path. Any bad reference fails the whole set.
func LoadTrustAnchors(refs []string) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for _, ref := range refs {
		var (
			loaded []*x509.Certificate
			err    error
		)
		if strings.Contains(ref, pemMarker) {
			loaded, err = ParseCertificates([]byte(ref))
		} else {
			loaded, err = LoadCertificateFile(strings.TrimSpace(ref))
		}
		if err != nil {
			return nil, err
		}
		certs = append(certs, loaded...)
	}
	return certs, nil
}

// Fingerprint returns the hex SHA-256 of the DER certificate.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// Describe summarizes cert as a TrustAnchor.
func Describe(cert *x509.Certificate) domain.TrustAnchor {
	return domain.TrustAnchor{
		Fingerprint: Fingerprint(cert),
		Subject:     cert.Subject.String(),
		NotAfter:    cert.NotAfter,
	}
}

func badCertificate(source string, cause error) *domain.AppError {
	return &domain.AppError{
		Code:       domain.ErrCodeBadCertificate,
		Message:    "invalid trust anchor certificate",
		Identifier: source,
		Cause:      cause,
	}
}
