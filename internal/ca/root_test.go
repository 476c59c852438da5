package ca

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/selfca/internal/pemstore"
	"github.com/wolfeidau/selfca/internal/pki"
)

func TestGenerateRoot(t *testing.T) {
	expiry := time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)
	withClock(t, time.Date(2025, 6, 1, 12, 30, 15, 500, time.UTC))

	root, err := GenerateRoot(RootOptions{
		ExpiryOn: expiry,
		Bits:     2048,
		Subject:  pki.Subject{CommonName: "ca.example.com", Country: "BR"},
	})
	require.NoError(t, err)

	cert := root.Certificate()

	t.Run("subject and issuer are identical", func(t *testing.T) {
		require.Equal(t, cert.RawSubject, cert.RawIssuer)

		subject, err := pki.SubjectName(cert)
		require.NoError(t, err)
		require.Equal(t, "CN=ca.example.com,C=BR,ST=None,L=None,O=None,OU=None", subject.String())
		require.True(t, subject.Equal(root.Subject()))
	})

	t.Run("validity window", func(t *testing.T) {
		require.True(t, cert.NotAfter.Equal(expiry))
		require.True(t, cert.NotBefore.Equal(root.CreatedOn()))
		require.True(t, root.CreatedOn().Equal(time.Date(2025, 6, 1, 12, 30, 15, 0, time.UTC)))
		require.True(t, root.ExpiryOn().Equal(expiry))
	})

	t.Run("authority extensions", func(t *testing.T) {
		ext := pki.ExtensionsOf(cert)
		require.True(t, ext.IsCA)
		require.True(t, ext.HasKeyUsage(x509.KeyUsageCertSign|x509.KeyUsageDigitalSignature|
			x509.KeyUsageContentCommitment|x509.KeyUsageKeyEncipherment|x509.KeyUsageDataEncipherment))

		keyID, err := pki.SubjectKeyID(root.PrivateKey().Public().(*rsa.PublicKey))
		require.NoError(t, err)
		require.Equal(t, keyID, cert.SubjectKeyId)
	})

	t.Run("self signed", func(t *testing.T) {
		require.NoError(t, cert.CheckSignatureFrom(cert))
		require.Equal(t, x509.SHA256WithRSA, cert.SignatureAlgorithm)
		require.Equal(t, 0, cert.SerialNumber.Cmp(big.NewInt(1)))
	})

	t.Run("keys", func(t *testing.T) {
		pub, err := root.PublicKey()
		require.NoError(t, err)
		require.True(t, pub.Equal(cert.PublicKey))
		require.Equal(t, 2048, root.PrivateKey().N.BitLen())
	})
}

func TestGenerateRoot_DefaultKeySize(t *testing.T) {
	if testing.Short() {
		t.Skip("4096 bit key generation is slow")
	}

	root, err := GenerateRoot(RootOptions{
		ExpiryOn: time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC),
		Subject:  pki.Subject{CommonName: "ca.example.com", Country: "BR"},
	})
	require.NoError(t, err)
	require.Equal(t, pki.DefaultKeySize, root.PrivateKey().N.BitLen())
}

func TestGenerateRoot_DefaultExpiry(t *testing.T) {
	created := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	withClock(t, created)

	root, err := GenerateRoot(RootOptions{Bits: 2048})
	require.NoError(t, err)

	require.True(t, root.ExpiryOn().Equal(created.AddDate(DefaultValidityYears, 0, 0)))
	require.Equal(t, "CN=None,C=None,ST=None,L=None,O=None,OU=None", root.Subject().String())
}

func TestGenerateRoot_Errors(t *testing.T) {
	t.Run("unsupported key size", func(t *testing.T) {
		_, err := GenerateRoot(RootOptions{
			Bits:     1024,
			ExpiryOn: time.Now().AddDate(1, 0, 0),
		})
		require.ErrorIs(t, err, pki.ErrInvalidKeySize)
	})

	t.Run("expiry before creation", func(t *testing.T) {
		_, err := GenerateRoot(RootOptions{
			Bits:     2048,
			ExpiryOn: time.Now().AddDate(-1, 0, 0),
		})
		require.ErrorIs(t, err, pki.ErrInvalidValidityWindow)
	})
}

func TestGenerateRoot_SerialNumber(t *testing.T) {
	serial, err := pki.RandomSerialNumber()
	require.NoError(t, err)

	root, err := GenerateRoot(RootOptions{
		Bits:         2048,
		ExpiryOn:     time.Now().AddDate(1, 0, 0),
		SerialNumber: serial,
	})
	require.NoError(t, err)
	require.Equal(t, 0, root.Certificate().SerialNumber.Cmp(serial))
}

func TestLoadRoot(t *testing.T) {
	root := testAuthority(t)

	bundle, err := root.ToPemBundle()
	require.NoError(t, err)
	require.NotEmpty(t, bundle.PublicKey)

	t.Run("round trip", func(t *testing.T) {
		loaded, err := LoadRoot(bundle)
		require.NoError(t, err)

		require.Equal(t, root.Certificate().Raw, loaded.Certificate().Raw)
		require.True(t, root.PrivateKey().Equal(loaded.PrivateKey()))
		require.True(t, root.Subject().Equal(loaded.Subject()))
		require.True(t, root.CreatedOn().Equal(loaded.CreatedOn()))
		require.True(t, root.ExpiryOn().Equal(loaded.ExpiryOn()))

		pub, err := loaded.PublicKey()
		require.NoError(t, err)
		require.True(t, pub.Equal(root.Certificate().PublicKey))
	})

	t.Run("without public key", func(t *testing.T) {
		loaded, err := LoadRoot(PemBundle{
			Certificate: bundle.Certificate,
			PrivateKey:  bundle.PrivateKey,
		})
		require.NoError(t, err)

		_, err = loaded.PublicKey()
		require.ErrorIs(t, err, pki.ErrMissingPublicKey)

		reencoded, err := loaded.ToPemBundle()
		require.NoError(t, err)
		require.Empty(t, reencoded.PublicKey)
	})

	t.Run("mismatched private key", func(t *testing.T) {
		other, err := pki.GenerateKeyPair(2048)
		require.NoError(t, err)

		_, err = LoadRoot(PemBundle{
			Certificate: bundle.Certificate,
			PrivateKey:  pki.EncodePrivateKey(other.PrivateKey),
		})
		require.ErrorIs(t, err, ErrKeyMismatch)
	})

	t.Run("malformed certificate", func(t *testing.T) {
		_, err := LoadRoot(PemBundle{
			Certificate: "not a certificate",
			PrivateKey:  bundle.PrivateKey,
		})
		require.ErrorIs(t, err, pki.ErrMalformedPEM)
	})

	t.Run("issued certificate is not a root", func(t *testing.T) {
		issued, err := Issue(ClientOptions{
			Bits:     2048,
			ExpiryOn: time.Now().AddDate(0, 1, 0),
			Hostname: "worker-1",
		}, root)
		require.NoError(t, err)

		leaf, err := issued.ToPemBundle()
		require.NoError(t, err)

		_, err = LoadRoot(leaf)
		require.ErrorIs(t, err, ErrNotRootCertificate)
	})
}

func TestRootAuthority_Persist(t *testing.T) {
	ctx := context.Background()
	root := testAuthority(t)
	store := pemstore.NewMemoryStore()

	require.NoError(t, root.Persist(ctx, store, "certs", "root"))

	paths := Artifacts("certs", "root")
	for _, p := range []string{paths.Certificate, paths.PrivateKey, paths.PublicKey} {
		_, err := store.Read(ctx, p)
		require.NoError(t, err, p)
	}

	loaded, err := LoadRootFromStore(ctx, store, "certs", "root")
	require.NoError(t, err)
	require.Equal(t, root.Certificate().Raw, loaded.Certificate().Raw)

	_, err = LoadRootFromStore(ctx, store, "certs", "missing")
	require.ErrorIs(t, err, pemstore.ErrNotFound)
}

func TestSelfSignRoot(t *testing.T) {
	kp, err := pki.GenerateKeyPair(2048)
	require.NoError(t, err)

	cert, err := SelfSignRoot(RootOptions{
		ExpiryOn: time.Now().AddDate(1, 0, 0),
		Subject:  pki.Subject{CommonName: "kms.example.com"},
	}, kp.PrivateKey)
	require.NoError(t, err)

	require.Equal(t, cert.RawSubject, cert.RawIssuer)
	require.NoError(t, cert.CheckSignatureFrom(cert))
	require.True(t, pki.ExtensionsOf(cert).IsCA)

	loaded, err := LoadRoot(PemBundle{
		Certificate: pki.EncodeCertificate(cert),
		PrivateKey:  pki.EncodePrivateKey(kp.PrivateKey),
	})
	require.NoError(t, err)
	require.Equal(t, "CN=kms.example.com,C=None,ST=None,L=None,O=None,OU=None", loaded.Subject().String())

	t.Run("rejects missing key", func(t *testing.T) {
		_, err := SelfSignRoot(RootOptions{}, nil)
		require.ErrorIs(t, err, pki.ErrSigning)
	})
}
