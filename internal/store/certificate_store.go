package store

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wolfeidau/selfca/internal/pki"
)

// CertMetadata represents metadata about an issued certificate
type CertMetadata struct {
	CertID       string    `dynamodbav:"cert_id"`
	Fingerprint  string    `dynamodbav:"fingerprint"`
	SerialNumber string    `dynamodbav:"serial_number"`
	CommonName   string    `dynamodbav:"common_name"`
	SubjectDN    string    `dynamodbav:"subject_dn"`
	IssuerDN     string    `dynamodbav:"issuer_dn"`
	IsCA         bool      `dynamodbav:"is_ca"`
	SelfSigned   bool      `dynamodbav:"self_signed"`
	IssuedAt     time.Time `dynamodbav:"issued_at"`
	ExpiresAt    time.Time `dynamodbav:"expires_at"`
	Description  string    `dynamodbav:"description,omitempty"`
	TTL          int64     `dynamodbav:"ttl"` // Unix seconds for DynamoDB TTL
}

// Expired reports whether the certificate is past its expiry at now.
func (m *CertMetadata) Expired(now time.Time) bool {
	return now.After(m.ExpiresAt)
}

// CertificateStore records certificates issued by the authority
type CertificateStore interface {
	// Get retrieves certificate metadata by SHA-256 fingerprint
	Get(ctx context.Context, fingerprint string) (*CertMetadata, error)

	// GetBySerial retrieves every certificate carrying a serial number.
	// Serials are only unique when random serials are enabled.
	GetBySerial(ctx context.Context, serialNumber string) ([]*CertMetadata, error)

	// Register stores certificate metadata
	Register(ctx context.Context, cert *CertMetadata) error

	// List returns registered certificates
	List(ctx context.Context, opts ListCertificatesOptions) ([]*CertMetadata, error)
}

// ListCertificatesOptions specifies filters for listing certificates
type ListCertificatesOptions struct {
	CommonName     string // Filter by subject common name (empty = all)
	IncludeExpired bool   // Include expired certs (default: false)
	Limit          int    // Max results (0 = default)
}

// Errors
var (
	ErrCertNotFound      = errors.New("certificate not found")
	ErrCertAlreadyExists = errors.New("certificate already exists")
	ErrInvalidMetadata   = errors.New("invalid certificate metadata")
	ErrThrottled         = errors.New("AWS request throttled")
)

// Validate checks the fields every backend relies on.
func (m *CertMetadata) Validate() error {
	switch {
	case m == nil:
		return ErrInvalidMetadata
	case m.Fingerprint == "":
		return errors.Join(ErrInvalidMetadata, errors.New("fingerprint is required"))
	case m.SerialNumber == "":
		return errors.Join(ErrInvalidMetadata, errors.New("serial number is required"))
	}
	return nil
}

// Fingerprint returns the base64 encoded SHA-256 digest of the certificate DER.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NewCertMetadataFromX509 creates CertMetadata from an X.509 certificate
func NewCertMetadataFromX509(cert *x509.Certificate) *CertMetadata {
	subjectDN := cert.Subject.String()
	if name, err := pki.SubjectName(cert); err == nil {
		subjectDN = name.String()
	}

	issuerDN := cert.Issuer.String()
	if name, err := pki.IssuerName(cert); err == nil {
		issuerDN = name.String()
	}

	// TTL: 30 days after expiry
	ttl := cert.NotAfter.Add(30 * 24 * time.Hour).Unix()

	return &CertMetadata{
		CertID:       uuid.Must(uuid.NewV7()).String(),
		Fingerprint:  Fingerprint(cert),
		SerialNumber: cert.SerialNumber.Text(16),
		CommonName:   cert.Subject.CommonName,
		SubjectDN:    subjectDN,
		IssuerDN:     issuerDN,
		IsCA:         pki.ExtensionsOf(cert).IsCA,
		SelfSigned:   string(cert.RawSubject) == string(cert.RawIssuer),
		IssuedAt:     cert.NotBefore.UTC(),
		ExpiresAt:    cert.NotAfter.UTC(),
		TTL:          ttl,
	}
}
