package ca

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"math/big"
	"time"

	"github.com/wolfeidau/selfca/internal/pemstore"
	"github.com/wolfeidau/selfca/internal/pki"
)

// ErrMissingAuthority is returned when a client certificate is requested without an issuer.
var ErrMissingAuthority = errors.New("missing issuing authority")

// ClientOptions configures issuance of a client certificate.
type ClientOptions struct {
	// ExpiryOn is the end of the validity window. Zero means five years from creation.
	ExpiryOn time.Time

	// Bits is the RSA modulus size. Zero means pki.DefaultKeySize.
	Bits int

	// Subject fields. Empty fields fall back to pki.ClientDefaults.
	Subject pki.Subject

	// Hostname is the fallback common name, normally the local hostname.
	Hostname string

	// Strict issues a conventional end-entity certificate instead of one
	// carrying the CA extension set.
	Strict bool

	// SerialNumber overrides the default fixed serial.
	SerialNumber *big.Int
}

// Profile is the extension profile the options select.
func (o ClientOptions) Profile() pki.Profile {
	if o.Strict {
		return pki.ProfileStrictLeaf
	}
	return pki.ProfileLeaf
}

// IssuedCertificate is a client certificate with its key pair and issuer.
type IssuedCertificate struct {
	cert      *x509.Certificate
	keyPair   pki.KeyPair
	subject   pki.DistinguishedName
	authority *RootAuthority
	issuer    *x509.Certificate
	createdOn time.Time
	expiryOn  time.Time
}

// Issue creates a key pair and a client certificate signed by authority.
func Issue(opts ClientOptions, authority *RootAuthority) (*IssuedCertificate, error) {
	if authority == nil {
		return nil, ErrMissingAuthority
	}

	issued, err := IssueWith(opts, authority)
	if err != nil {
		return nil, err
	}

	issued.authority = authority
	return issued, nil
}

// IssueWith issues a client certificate through any pki.Signer, such as a
// pki.KMSSigner whose key is held remotely.
func IssueWith(opts ClientOptions, signer pki.Signer) (*IssuedCertificate, error) {
	if signer == nil || signer.Certificate() == nil {
		return nil, ErrMissingAuthority
	}

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

	subject := pki.BuildName(opts.Subject, pki.ClientDefaults(opts.Hostname))
	issuerCert := signer.Certificate()

	unsigned, err := pki.BuildCertificate(pki.CertificateRequest{
		SerialNumber: opts.SerialNumber,
		Validity:     pki.Validity{NotBefore: createdOn, NotAfter: expiryOn},
		Subject:      subject,
		RawIssuer:    issuerCert.RawSubject,
		PublicKey:    keyPair.PublicKey,
		Profile:      opts.Profile(),
	})
	if err != nil {
		return nil, err
	}

	cert, err := signer.SignCertificate(unsigned)
	if err != nil {
		return nil, err
	}

	return &IssuedCertificate{
		cert:      cert,
		keyPair:   keyPair,
		subject:   subject,
		issuer:    issuerCert,
		createdOn: createdOn,
		expiryOn:  expiryOn,
	}, nil
}

// Certificate returns the signed client certificate.
func (c *IssuedCertificate) Certificate() *x509.Certificate { return c.cert }

// KeyPair returns the generated client key pair.
func (c *IssuedCertificate) KeyPair() pki.KeyPair { return c.keyPair }

// PrivateKey returns the client private key.
func (c *IssuedCertificate) PrivateKey() *rsa.PrivateKey { return c.keyPair.PrivateKey }

// PublicKey returns the client public key.
func (c *IssuedCertificate) PublicKey() *rsa.PublicKey { return c.keyPair.PublicKey }

// Subject returns the client subject.
func (c *IssuedCertificate) Subject() pki.DistinguishedName { return c.subject }

// CreatedOn returns the start of the validity window.
func (c *IssuedCertificate) CreatedOn() time.Time { return c.createdOn }

// ExpiryOn returns the end of the validity window.
func (c *IssuedCertificate) ExpiryOn() time.Time { return c.expiryOn }

// Authority returns the root that signed the certificate, or nil when it
// was issued through IssueWith.
func (c *IssuedCertificate) Authority() *RootAuthority { return c.authority }

// Issuer returns the certificate of the signing authority.
func (c *IssuedCertificate) Issuer() *x509.Certificate { return c.issuer }

// ToPemBundle encodes the certificate and both keys.
func (c *IssuedCertificate) ToPemBundle() (PemBundle, error) {
	pub, err := pki.EncodePublicKey(c.keyPair.PublicKey)
	if err != nil {
		return PemBundle{}, err
	}

	return PemBundle{
		Certificate: pki.EncodeCertificate(c.cert),
		PrivateKey:  pki.EncodePrivateKey(c.keyPair.PrivateKey),
		PublicKey:   pub,
	}, nil
}

// Persist writes the certificate artifacts to store.
func (c *IssuedCertificate) Persist(ctx context.Context, store pemstore.Store, dir, name string) error {
	bundle, err := c.ToPemBundle()
	if err != nil {
		return err
	}
	return bundle.Persist(ctx, store, dir, name)
}
