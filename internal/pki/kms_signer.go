package pki

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// KMSAPI is the subset of the AWS KMS client used for signing.
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// KMSSigner implements Signer using an asymmetric RSA key in AWS KMS.
// The CA private key never leaves KMS - only signing operations are performed.
type KMSSigner struct {
	signer *kmsCryptoSigner
	caCert *x509.Certificate
}

// NewKMSSigner creates a new KMSSigner from a KMS key and the PEM encoded
// certificate of the authority it signs for. The kmsKeyID can be a key ID,
// key ARN, alias name, or alias ARN.
func NewKMSSigner(ctx context.Context, client KMSAPI, kmsKeyID string, caCertPEM string) (*KMSSigner, error) {
	caCert, err := DecodeCertificate(caCertPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to decode CA certificate: %w", err)
	}

	signer, err := newKMSCryptoSigner(ctx, client, kmsKeyID)
	if err != nil {
		return nil, err
	}

	certPubKey, ok := caCert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("CA certificate public key is not RSA")
	}

	if !signer.publicKey.Equal(certPubKey) {
		return nil, fmt.Errorf("KMS public key does not match CA certificate public key")
	}

	return &KMSSigner{
		signer: signer,
		caCert: caCert,
	}, nil
}

// SignCertificate signs a certificate using AWS KMS.
func (s *KMSSigner) SignCertificate(unsigned *UnsignedCertificate) (*x509.Certificate, error) {
	return Sign(unsigned, s.signer)
}

// Certificate returns the CA certificate.
func (s *KMSSigner) Certificate() *x509.Certificate {
	return s.caCert
}

// NewKMSCryptoSigner creates a crypto.Signer backed by AWS KMS.
// This is used for signing self-signed CA certificates where you don't yet have a CA cert.
// For signing other certificates, use NewKMSSigner instead.
func NewKMSCryptoSigner(ctx context.Context, client KMSAPI, kmsKeyID string) (crypto.Signer, error) {
	return newKMSCryptoSigner(ctx, client, kmsKeyID)
}

func newKMSCryptoSigner(ctx context.Context, client KMSAPI, kmsKeyID string) (*kmsCryptoSigner, error) {
	pubKeyOutput, err := client.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(kmsKeyID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get public key from KMS: %w", err)
	}

	kmsPublicKey, err := x509.ParsePKIXPublicKey(pubKeyOutput.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse KMS public key: %w", err)
	}

	rsaPubKey, ok := kmsPublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("KMS key is not RSA (got %T)", kmsPublicKey)
	}

	if err := ValidateKeySize(rsaPubKey.N.BitLen()); err != nil {
		return nil, fmt.Errorf("KMS key: %w", err)
	}

	return &kmsCryptoSigner{
		client:    client,
		kmsKeyID:  kmsKeyID,
		publicKey: rsaPubKey,
		ctx:       ctx,
	}, nil
}

// kmsCryptoSigner implements crypto.Signer using AWS KMS
type kmsCryptoSigner struct {
	client    KMSAPI
	kmsKeyID  string
	publicKey *rsa.PublicKey
	ctx       context.Context
}

// Public returns the public key
func (k *kmsCryptoSigner) Public() crypto.PublicKey {
	return k.publicKey
}

// Sign signs the digest using AWS KMS. Only PKCS#1 v1.5 over SHA-256 is
// supported, which is what x509.CreateCertificate requests for SHA256WithRSA.
func (k *kmsCryptoSigner) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if _, pss := opts.(*rsa.PSSOptions); pss {
		return nil, fmt.Errorf("KMS signer does not support RSA-PSS")
	}
	if opts.HashFunc() != crypto.SHA256 {
		return nil, fmt.Errorf("KMS signer only supports SHA256, got %v", opts.HashFunc())
	}

	signOutput, err := k.client.Sign(k.ctx, &kms.SignInput{
		KeyId:            aws.String(k.kmsKeyID),
		Message:          digest,
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		return nil, fmt.Errorf("KMS sign operation failed: %w", err)
	}

	// RSA signatures come back as the raw signature block, no ASN.1 wrapping
	return signOutput.Signature, nil
}
