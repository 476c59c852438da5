package pki

import (
	"crypto/x509"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractBasicConstraintsCA(t *testing.T) {
	t.Run("signed root carries cA", func(t *testing.T) {
		unsigned, kp := testRoot(t)
		cert, err := Sign(unsigned, kp.PrivateKey)
		require.NoError(t, err)

		isCA, err := ExtractBasicConstraintsCA(cert)
		require.NoError(t, err)
		require.True(t, isCA)
	})

	t.Run("missing extension returns error", func(t *testing.T) {
		_, err := ExtractBasicConstraintsCA(&x509.Certificate{})
		require.ErrorIs(t, err, ErrExtensionNotFound)
	})
}

func TestExtractSubjectKeyID(t *testing.T) {
	t.Run("matches computed key identifier", func(t *testing.T) {
		unsigned, kp := testRoot(t)
		cert, err := Sign(unsigned, kp.PrivateKey)
		require.NoError(t, err)

		keyID, err := ExtractSubjectKeyID(cert)
		require.NoError(t, err)

		expected, err := SubjectKeyID(kp.PublicKey)
		require.NoError(t, err)
		require.Equal(t, expected, keyID)
	})

	t.Run("missing extension returns error", func(t *testing.T) {
		_, err := ExtractSubjectKeyID(&x509.Certificate{})
		require.ErrorIs(t, err, ErrExtensionNotFound)
	})
}

func TestExtensions_HasKeyUsage(t *testing.T) {
	ext := Extensions{KeyUsage: x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign}

	require.True(t, ext.HasKeyUsage(x509.KeyUsageCertSign))
	require.True(t, ext.HasKeyUsage(x509.KeyUsageDigitalSignature|x509.KeyUsageCertSign))
	require.False(t, ext.HasKeyUsage(x509.KeyUsageDataEncipherment))
}
