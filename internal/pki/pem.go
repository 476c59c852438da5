package pki

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// PEM block types.
const (
	BlockCertificate   = "CERTIFICATE"
	BlockRSAPrivateKey = "RSA PRIVATE KEY"
	BlockPrivateKey    = "PRIVATE KEY"
	BlockPublicKey     = "PUBLIC KEY"
	BlockRSAPublicKey  = "RSA PUBLIC KEY"
)

// EncodeCertificate returns the PEM encoding of cert.
func EncodeCertificate(cert *x509.Certificate) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  BlockCertificate,
		Bytes: cert.Raw,
	}))
}

// EncodePrivateKey returns the PKCS#1 PEM encoding of key.
func EncodePrivateKey(key *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  BlockRSAPrivateKey,
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

// EncodePublicKey returns the PKIX (SubjectPublicKeyInfo) PEM encoding of key.
func EncodePublicKey(key *rsa.PublicKey) (string, error) {
	if key == nil {
		return "", ErrMissingPublicKey
	}

	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{
		Type:  BlockPublicKey,
		Bytes: der,
	})), nil
}

// DecodeCertificate parses the first PEM block of text as a certificate.
func DecodeCertificate(text string) (*x509.Certificate, error) {
	block, err := decodeBlock(text, BlockCertificate)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse certificate: %w", ErrMalformedPEM, err)
	}

	return cert, nil
}

// DecodePrivateKey parses a PKCS#1 or PKCS#8 encoded RSA private key.
func DecodePrivateKey(text string) (*rsa.PrivateKey, error) {
	block, err := decodeBlock(text, BlockRSAPrivateKey, BlockPrivateKey)
	if err != nil {
		return nil, err
	}

	if block.Type == BlockRSAPrivateKey {
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse private key: %w", ErrMalformedPEM, err)
		}
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %w", ErrMalformedPEM, err)
	}

	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: private key is %T, want RSA", ErrMalformedPEM, parsed)
	}

	return key, nil
}

// DecodePublicKey parses a PKIX or PKCS#1 encoded RSA public key.
func DecodePublicKey(text string) (*rsa.PublicKey, error) {
	block, err := decodeBlock(text, BlockPublicKey, BlockRSAPublicKey)
	if err != nil {
		return nil, err
	}

	if block.Type == BlockRSAPublicKey {
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to parse public key: %w", ErrMalformedPEM, err)
		}
		return key, nil
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse public key: %w", ErrMalformedPEM, err)
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: public key is %T, want RSA", ErrMalformedPEM, parsed)
	}

	return key, nil
}

func decodeBlock(text string, types ...string) (*pem.Block, error) {
	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrMalformedPEM)
	}

	for _, t := range types {
		if block.Type == t {
			return block, nil
		}
	}

	return nil, fmt.Errorf("%w: unexpected block type %q (want %v)", ErrMalformedPEM, block.Type, types)
}
