package pki

import (
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"
)

// Standard X.509v3 extension OIDs (RFC 5280 section 4.2.1).
var (
	OIDExtSubjectKeyID     = asn1.ObjectIdentifier{2, 5, 29, 14}
	OIDExtKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	OIDExtBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
)

// ErrExtensionNotFound is returned when a required extension is missing
var ErrExtensionNotFound = errors.New("extension not found")

// Extensions is the subset of certificate extensions this package sets.
type Extensions struct {
	IsCA            bool
	KeyUsage        x509.KeyUsage
	HasSubjectKeyID bool
}

// ExtensionsOf reads the extension set back from a parsed certificate.
func ExtensionsOf(cert *x509.Certificate) Extensions {
	return Extensions{
		IsCA:            cert.BasicConstraintsValid && cert.IsCA,
		KeyUsage:        cert.KeyUsage,
		HasSubjectKeyID: len(cert.SubjectKeyId) > 0,
	}
}

// HasKeyUsage reports whether every bit of usage is set.
func (e Extensions) HasKeyUsage(usage x509.KeyUsage) bool {
	return e.KeyUsage&usage == usage
}

// ExtractBasicConstraintsCA decodes the cA flag from the raw basicConstraints extension.
func ExtractBasicConstraintsCA(cert *x509.Certificate) (bool, error) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(OIDExtBasicConstraints) {
			var constraints struct {
				IsCA       bool `asn1:"optional"`
				MaxPathLen int  `asn1:"optional,default:-1"`
			}
			if _, err := asn1.Unmarshal(ext.Value, &constraints); err != nil {
				return false, fmt.Errorf("failed to unmarshal basic constraints: %w", err)
			}
			return constraints.IsCA, nil
		}
	}
	return false, ErrExtensionNotFound
}

// ExtractSubjectKeyID decodes the raw subjectKeyIdentifier extension.
func ExtractSubjectKeyID(cert *x509.Certificate) ([]byte, error) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(OIDExtSubjectKeyID) {
			var keyID []byte
			if _, err := asn1.Unmarshal(ext.Value, &keyID); err != nil {
				return nil, fmt.Errorf("failed to unmarshal subject key identifier: %w", err)
			}
			return keyID, nil
		}
	}
	return nil, ErrExtensionNotFound
}
