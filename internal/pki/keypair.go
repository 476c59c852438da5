package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"slices"
)

// DefaultKeySize is the RSA modulus size used when none is requested.
const DefaultKeySize = 4096

// SupportedKeySizes lists the RSA modulus sizes GenerateKeyPair accepts.
var SupportedKeySizes = []int{2048, 4096}

// KeyPair is an RSA key pair. It is generated once and never modified.
type KeyPair struct {
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// ValidateKeySize checks bits against SupportedKeySizes.
func ValidateKeySize(bits int) error {
	if !slices.Contains(SupportedKeySizes, bits) {
		return fmt.Errorf("%w: %d bits (supported: %v)", ErrInvalidKeySize, bits, SupportedKeySizes)
	}
	return nil
}

// GenerateKeyPair creates a new RSA key pair with the given modulus size.
// The size is validated before any key material is generated.
func GenerateKeyPair(bits int) (KeyPair, error) {
	if err := ValidateKeySize(bits); err != nil {
		return KeyPair{}, err
	}

	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	return KeyPair{
		PublicKey:  &key.PublicKey,
		PrivateKey: key,
	}, nil
}
