package pki

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
)

// Signer signs assembled certificates on behalf of an issuing authority.
// Implementations include KeySigner (in-memory RSA key) and KMSSigner (AWS KMS).
type Signer interface {
	// SignCertificate signs the certificate and returns it parsed from its DER encoding.
	SignCertificate(unsigned *UnsignedCertificate) (*x509.Certificate, error)

	// Certificate returns the issuing certificate.
	Certificate() *x509.Certificate
}

// Sign binds unsigned to key, producing a SHA256WithRSA signature over the
// to-be-signed body. key must hold an RSA key. A self-issued CA certificate
// must be signed by the key it certifies; leaves may share their issuer's name.
func Sign(unsigned *UnsignedCertificate, key crypto.Signer) (*x509.Certificate, error) {
	if unsigned == nil {
		return nil, fmt.Errorf("%w: no certificate to sign", ErrSigning)
	}
	if key == nil {
		return nil, fmt.Errorf("%w: no signing key", ErrSigning)
	}

	pub, ok := key.Public().(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: signing key is %T, want RSA", ErrSigning, key.Public())
	}

	issuerKeyID, err := SubjectKeyID(pub)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid signing key: %w", ErrSigning, err)
	}

	if unsigned.profile == ProfileCA && unsigned.SelfIssued() && !pub.Equal(unsigned.template.PublicKey) {
		return nil, fmt.Errorf("%w: self-issued root must be signed by its own key", ErrSigning)
	}

	parent := &x509.Certificate{
		RawSubject:   unsigned.rawIssuer,
		SubjectKeyId: issuerKeyID,
		PublicKey:    pub,
	}

	der, err := x509.CreateCertificate(rand.Reader, unsigned.template, parent, unsigned.template.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSigning, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse signed certificate: %w", ErrSigning, err)
	}

	return cert, nil
}

// KeySigner implements Signer with an RSA private key held in memory.
type KeySigner struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

// NewKeySigner creates a KeySigner for the given issuing certificate and key.
// The key must match the certificate's public key.
func NewKeySigner(cert *x509.Certificate, key *rsa.PrivateKey) (*KeySigner, error) {
	if err := VerifyKeyPair(cert, key); err != nil {
		return nil, fmt.Errorf("issuer key and certificate do not match: %w", err)
	}

	return &KeySigner{
		key:  key,
		cert: cert,
	}, nil
}

// SignCertificate signs a certificate with the issuer's private key.
func (s *KeySigner) SignCertificate(unsigned *UnsignedCertificate) (*x509.Certificate, error) {
	return Sign(unsigned, s.key)
}

// Certificate returns the issuing certificate.
func (s *KeySigner) Certificate() *x509.Certificate {
	return s.cert
}

// VerifyKeyPair checks that a certificate's public key matches a private key.
func VerifyKeyPair(cert *x509.Certificate, key crypto.PrivateKey) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok || rsaKey == nil {
		return fmt.Errorf("private key is not RSA")
	}

	certPubKey, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("certificate public key is not RSA")
	}

	if !rsaKey.PublicKey.Equal(certPubKey) {
		return fmt.Errorf("public keys do not match")
	}

	return nil
}
