package pki

import "errors"

var (
	// ErrInvalidKeySize is returned when an RSA modulus size outside SupportedKeySizes is requested.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidValidityWindow is returned when NotBefore is after NotAfter.
	ErrInvalidValidityWindow = errors.New("invalid validity window")

	// ErrSigning is returned when a certificate cannot be signed with the supplied key.
	ErrSigning = errors.New("signing failed")

	// ErrMalformedPEM is returned when PEM text cannot be decoded into the requested value.
	ErrMalformedPEM = errors.New("malformed PEM")

	// ErrMissingPublicKey is returned when an operation needs a public key that was never supplied.
	ErrMissingPublicKey = errors.New("missing public key")
)
