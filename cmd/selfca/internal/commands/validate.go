package commands

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/selfca/internal/pemstore"
	"github.com/wolfeidau/selfca/internal/pki"
)

const day = 24 * time.Hour

// CertValidation holds certificate validation results
type CertValidation struct {
	Path          string
	Exists        bool
	Expired       bool
	NotBefore     time.Time
	NotAfter      time.Time
	DaysRemaining int
	ShouldRotate  bool
}

// validateCertificate reads the certificate at path and decides whether it is
// due for rotation. A missing certificate always needs one.
func validateCertificate(ctx context.Context, st pemstore.Store, path string, rotationThreshold time.Duration, now time.Time) (*CertValidation, error) {
	validation := &CertValidation{Path: path}

	cert, err := loadCertificate(ctx, st, path)
	if errors.Is(err, pemstore.ErrNotFound) {
		validation.ShouldRotate = true
		return validation, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	validation.Exists = true
	validation.NotBefore = cert.NotBefore
	validation.NotAfter = cert.NotAfter
	validation.DaysRemaining = int(cert.NotAfter.Sub(now).Hours() / 24)

	// Check if expired
	if now.After(cert.NotAfter) {
		validation.Expired = true
		validation.ShouldRotate = true
		return validation, nil
	}

	// Check if within rotation threshold
	if cert.NotAfter.Sub(now) < rotationThreshold {
		validation.ShouldRotate = true
	}

	return validation, nil
}

func loadCertificate(ctx context.Context, st pemstore.Store, path string) (*x509.Certificate, error) {
	certPEM, err := st.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	return pki.DecodeCertificate(certPEM)
}
