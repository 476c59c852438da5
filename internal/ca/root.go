package ca

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/wolfeidau/selfca/internal/pemstore"
	"github.com/wolfeidau/selfca/internal/pki"
)

// DefaultValidityYears is the validity applied when no expiry is given.
const DefaultValidityYears = 5

var (
	// ErrNotRootCertificate is returned when a loaded certificate is not self-issued or not a CA.
	ErrNotRootCertificate = errors.New("not a root certificate")

	// ErrKeyMismatch is returned when loaded keys do not belong to the certificate.
	ErrKeyMismatch = errors.New("key does not match certificate")
)

// now is replaced in tests.
var now = time.Now

// RootOptions configures generation of a new root authority.
type RootOptions struct {
	// ExpiryOn is the end of the validity window. Zero means five years from creation.
	ExpiryOn time.Time

	// Bits is the RSA modulus size. Zero means pki.DefaultKeySize.
	Bits int

	// Subject fields, anything left empty becomes "None".
	Subject pki.Subject

	// SerialNumber overrides the default fixed serial.
	SerialNumber *big.Int
}

// RootAuthority is a self-signed certificate authority. It is immutable
// after construction and safe to share between goroutines.
type RootAuthority struct {
	cert       *x509.Certificate
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	subject    pki.DistinguishedName
	createdOn  time.Time
	expiryOn   time.Time
}

var _ pki.Signer = (*RootAuthority)(nil)

// GenerateRoot creates a fresh key pair and a self-signed CA certificate.
func GenerateRoot(opts RootOptions) (*RootAuthority, error) {
	bits := opts.Bits
	if bits == 0 {
		bits = pki.DefaultKeySize
	}
	if err := pki.ValidateKeySize(bits); err != nil {
		return nil, err
	}

	createdOn, expiryOn, err := checkedValidity(opts.ExpiryOn)
	if err != nil {
		return nil, err
	}

	keyPair, err := pki.GenerateKeyPair(bits)
	if err != nil {
		return nil, err
	}

	unsigned, err := buildRoot(opts, keyPair.PublicKey, createdOn, expiryOn)
	if err != nil {
		return nil, err
	}

	cert, err := pki.Sign(unsigned, keyPair.PrivateKey)
	if err != nil {
		return nil, err
	}

	return &RootAuthority{
		cert:       cert,
		privateKey: keyPair.PrivateKey,
		publicKey:  keyPair.PublicKey,
		subject:    unsigned.Subject(),
		createdOn:  createdOn,
		expiryOn:   expiryOn,
	}, nil
}

// SelfSignRoot creates a root certificate for a key held outside the
// process, such as an AWS KMS key. opts.Bits is ignored, the size comes from
// the key. Issue through pki.KMSSigner and IssueWith afterwards.
func SelfSignRoot(opts RootOptions, key crypto.Signer) (*x509.Certificate, error) {
	if key == nil {
		return nil, fmt.Errorf("%w: no signing key", pki.ErrSigning)
	}

	pub, ok := key.Public().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: root key is %T, want RSA", pki.ErrSigning, key.Public())
	}
	if err := pki.ValidateKeySize(pub.N.BitLen()); err != nil {
		return nil, err
	}

	createdOn, expiryOn, err := checkedValidity(opts.ExpiryOn)
	if err != nil {
		return nil, err
	}

	unsigned, err := buildRoot(opts, pub, createdOn, expiryOn)
	if err != nil {
		return nil, err
	}

	return pki.Sign(unsigned, key)
}

// checkedValidity is validityWindow failing with pki.ErrInvalidValidityWindow
// before any key material is generated.
func checkedValidity(expiry time.Time) (time.Time, time.Time, error) {
	createdOn, expiryOn := validityWindow(expiry)
	if createdOn.After(expiryOn) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: expiry %s is before creation %s",
			pki.ErrInvalidValidityWindow, expiryOn.Format(time.RFC3339), createdOn.Format(time.RFC3339))
	}
	return createdOn, expiryOn, nil
}

func buildRoot(opts RootOptions, pub *rsa.PublicKey, createdOn, expiryOn time.Time) (*pki.UnsignedCertificate, error) {
	subject := pki.BuildName(opts.Subject, pki.AuthorityDefaults())

	return pki.BuildCertificate(pki.CertificateRequest{
		SerialNumber: opts.SerialNumber,
		Validity:     pki.Validity{NotBefore: createdOn, NotAfter: expiryOn},
		Subject:      subject,
		Issuer:       subject,
		PublicKey:    pub,
		Profile:      pki.ProfileCA,
	})
}

// LoadRoot reconstructs a root authority from PEM text. When the bundle has
// no public key the authority is created without one and PublicKey fails
// with pki.ErrMissingPublicKey.
func LoadRoot(bundle PemBundle) (*RootAuthority, error) {
	cert, err := pki.DecodeCertificate(bundle.Certificate)
	if err != nil {
		return nil, fmt.Errorf("failed to decode root certificate: %w", err)
	}

	privateKey, err := pki.DecodePrivateKey(bundle.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode root private key: %w", err)
	}

	if err := pki.VerifyKeyPair(cert, privateKey); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeyMismatch, err)
	}

	var publicKey *rsa.PublicKey
	if bundle.PublicKey != "" {
		publicKey, err = pki.DecodePublicKey(bundle.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decode root public key: %w", err)
		}
		if !publicKey.Equal(cert.PublicKey) {
			return nil, fmt.Errorf("%w: public key differs from certificate", ErrKeyMismatch)
		}
	}

	if !bytes.Equal(cert.RawSubject, cert.RawIssuer) {
		return nil, fmt.Errorf("%w: issuer differs from subject", ErrNotRootCertificate)
	}
	if !pki.ExtensionsOf(cert).IsCA {
		return nil, fmt.Errorf("%w: basic constraints do not mark a CA", ErrNotRootCertificate)
	}

	subject, err := pki.SubjectName(cert)
	if err != nil {
		return nil, fmt.Errorf("failed to read root subject: %w", err)
	}

	return &RootAuthority{
		cert:       cert,
		privateKey: privateKey,
		publicKey:  publicKey,
		subject:    subject,
		createdOn:  cert.NotBefore,
		expiryOn:   cert.NotAfter,
	}, nil
}

// LoadRootFromStore reads the artifacts written by Persist and loads them.
func LoadRootFromStore(ctx context.Context, store pemstore.Store, dir, name string) (*RootAuthority, error) {
	bundle, err := ReadBundle(ctx, store, dir, name)
	if err != nil {
		return nil, err
	}
	return LoadRoot(bundle)
}

// Certificate returns the self-signed CA certificate.
func (r *RootAuthority) Certificate() *x509.Certificate { return r.cert }

// PrivateKey returns the CA private key.
func (r *RootAuthority) PrivateKey() *rsa.PrivateKey { return r.privateKey }

// PublicKey returns the CA public key, or pki.ErrMissingPublicKey when the
// authority was loaded without one.
func (r *RootAuthority) PublicKey() (*rsa.PublicKey, error) {
	if r.publicKey == nil {
		return nil, fmt.Errorf("root authority %q: %w", r.subject.CommonName(), pki.ErrMissingPublicKey)
	}
	return r.publicKey, nil
}

// Subject returns the CA subject, which is also its issuer.
func (r *RootAuthority) Subject() pki.DistinguishedName { return r.subject }

// CreatedOn returns the start of the validity window.
func (r *RootAuthority) CreatedOn() time.Time { return r.createdOn }

// ExpiryOn returns the end of the validity window.
func (r *RootAuthority) ExpiryOn() time.Time { return r.expiryOn }

// SignCertificate signs a certificate with the CA private key.
func (r *RootAuthority) SignCertificate(unsigned *pki.UnsignedCertificate) (*x509.Certificate, error) {
	return pki.Sign(unsigned, r.privateKey)
}

// ToPemBundle encodes the authority. The public key is included only when set.
func (r *RootAuthority) ToPemBundle() (PemBundle, error) {
	bundle := PemBundle{
		Certificate: pki.EncodeCertificate(r.cert),
		PrivateKey:  pki.EncodePrivateKey(r.privateKey),
	}

	if r.publicKey != nil {
		pub, err := pki.EncodePublicKey(r.publicKey)
		if err != nil {
			return PemBundle{}, err
		}
		bundle.PublicKey = pub
	}

	return bundle, nil
}

// Persist writes the authority's artifacts to store.
func (r *RootAuthority) Persist(ctx context.Context, store pemstore.Store, dir, name string) error {
	bundle, err := r.ToPemBundle()
	if err != nil {
		return err
	}
	return bundle.Persist(ctx, store, dir, name)
}

// validityWindow returns the creation time and the expiry, defaulting the
// expiry to DefaultValidityYears later. Both are truncated to whole seconds,
// the resolution of X.509 time fields.
func validityWindow(expiryOn time.Time) (time.Time, time.Time) {
	createdOn := now().UTC().Truncate(time.Second)
	if expiryOn.IsZero() {
		return createdOn, createdOn.AddDate(DefaultValidityYears, 0, 0)
	}
	return createdOn, expiryOn.UTC().Truncate(time.Second)
}
