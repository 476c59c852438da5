package ca

import (
	"context"
	"crypto/x509"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/selfca/internal/pemstore"
	"github.com/wolfeidau/selfca/internal/pki"
)

func TestIssue(t *testing.T) {
	root := testAuthority(t)
	expiry := time.Now().AddDate(0, 6, 0).UTC().Truncate(time.Second)

	issued, err := Issue(ClientOptions{
		Bits:     2048,
		ExpiryOn: expiry,
		Hostname: "build-host",
	}, root)
	require.NoError(t, err)

	cert := issued.Certificate()

	t.Run("subject defaults", func(t *testing.T) {
		require.Equal(t, "CN=build-host,C=US,ST=Georgia,L=Atlanta,O=None,OU=example", issued.Subject().String())

		subject, err := pki.SubjectName(cert)
		require.NoError(t, err)
		require.True(t, subject.Equal(issued.Subject()))
	})

	t.Run("issued by root", func(t *testing.T) {
		require.Equal(t, root.Certificate().RawSubject, cert.RawIssuer)
		require.NoError(t, cert.CheckSignatureFrom(root.Certificate()))
		require.Equal(t, root.Certificate().SubjectKeyId, cert.AuthorityKeyId)
		require.Same(t, root, issued.Authority())
		require.Same(t, root.Certificate(), issued.Issuer())
	})

	t.Run("key pair matches certificate", func(t *testing.T) {
		require.True(t, issued.PublicKey().Equal(cert.PublicKey))
		require.NoError(t, pki.VerifyKeyPair(cert, issued.PrivateKey()))
		require.False(t, issued.PublicKey().Equal(root.Certificate().PublicKey))
	})

	t.Run("validity window", func(t *testing.T) {
		require.True(t, cert.NotAfter.Equal(expiry))
		require.True(t, cert.NotBefore.Equal(issued.CreatedOn()))
		require.True(t, issued.ExpiryOn().Equal(expiry))
	})

	t.Run("carries authority extensions", func(t *testing.T) {
		ext := pki.ExtensionsOf(cert)
		require.True(t, ext.IsCA)
		require.True(t, ext.HasKeyUsage(x509.KeyUsageCertSign))
		require.Equal(t, 0, cert.SerialNumber.Cmp(big.NewInt(1)))
	})
}

func TestIssue_SubjectOverrides(t *testing.T) {
	root := testAuthority(t)

	issued, err := Issue(ClientOptions{
		Bits:     2048,
		ExpiryOn: time.Now().AddDate(0, 1, 0),
		Hostname: "ignored",
		Subject: pki.Subject{
			CommonName:   "client.example.com",
			Country:      "AU",
			Organization: "Example Pty",
		},
	}, root)
	require.NoError(t, err)

	require.Equal(t, "CN=client.example.com,C=AU,ST=Georgia,L=Atlanta,O=Example Pty,OU=example", issued.Subject().String())
}

func TestIssue_SubjectMatchesAuthority(t *testing.T) {
	subject := pki.Subject{
		CommonName:         "shared.example.com",
		Country:            "NZ",
		State:              "Otago",
		Locality:           "Dunedin",
		Organization:       "Shared",
		OrganizationalUnit: "ops",
	}

	root, err := GenerateRoot(RootOptions{
		Bits:     2048,
		ExpiryOn: time.Now().AddDate(1, 0, 0),
		Subject:  subject,
	})
	require.NoError(t, err)

	issued, err := Issue(ClientOptions{
		Bits:     2048,
		ExpiryOn: time.Now().AddDate(0, 1, 0),
		Subject:  subject,
	}, root)
	require.NoError(t, err)

	cert := issued.Certificate()
	require.Equal(t, cert.RawSubject, cert.RawIssuer)
	require.NoError(t, cert.CheckSignatureFrom(root.Certificate()))
	require.False(t, issued.PublicKey().Equal(root.Certificate().PublicKey))
}

func TestIssue_Strict(t *testing.T) {
	root := testAuthority(t)
	serial, err := pki.RandomSerialNumber()
	require.NoError(t, err)

	issued, err := Issue(ClientOptions{
		Bits:         2048,
		ExpiryOn:     time.Now().AddDate(0, 1, 0),
		Hostname:     "worker",
		Strict:       true,
		SerialNumber: serial,
	}, root)
	require.NoError(t, err)

	cert := issued.Certificate()
	require.False(t, cert.IsCA)
	require.False(t, pki.ExtensionsOf(cert).HasKeyUsage(x509.KeyUsageCertSign))
	require.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, cert.ExtKeyUsage)
	require.Equal(t, 0, cert.SerialNumber.Cmp(serial))

	roots := x509.NewCertPool()
	roots.AddCert(root.Certificate())
	_, err = cert.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	require.NoError(t, err)
}

func TestIssue_Errors(t *testing.T) {
	root := testAuthority(t)

	t.Run("missing authority", func(t *testing.T) {
		_, err := Issue(ClientOptions{Bits: 2048}, nil)
		require.ErrorIs(t, err, ErrMissingAuthority)
	})

	t.Run("unsupported key size", func(t *testing.T) {
		_, err := Issue(ClientOptions{Bits: 1024, Hostname: "h"}, root)
		require.ErrorIs(t, err, pki.ErrInvalidKeySize)
	})

	t.Run("expiry before creation", func(t *testing.T) {
		_, err := Issue(ClientOptions{
			Bits:     2048,
			ExpiryOn: time.Now().AddDate(0, 0, -1),
		}, root)
		require.ErrorIs(t, err, pki.ErrInvalidValidityWindow)
	})
}

func TestIssueWith_KeySigner(t *testing.T) {
	root := testAuthority(t)

	signer, err := pki.NewKeySigner(root.Certificate(), root.PrivateKey())
	require.NoError(t, err)

	issued, err := IssueWith(ClientOptions{
		Bits:     2048,
		ExpiryOn: time.Now().AddDate(0, 1, 0),
		Hostname: "remote",
	}, signer)
	require.NoError(t, err)

	require.Nil(t, issued.Authority())
	require.NoError(t, issued.Certificate().CheckSignatureFrom(root.Certificate()))
}

func TestIssuedCertificate_Persist(t *testing.T) {
	ctx := context.Background()
	root := testAuthority(t)

	issued, err := Issue(ClientOptions{
		Bits:     2048,
		ExpiryOn: time.Now().AddDate(0, 1, 0),
		Hostname: "host",
	}, root)
	require.NoError(t, err)

	store := pemstore.NewMemoryStore()
	require.NoError(t, issued.Persist(ctx, store, "out", "client"))

	bundle, err := ReadBundle(ctx, store, "out", "client")
	require.NoError(t, err)

	cert, err := pki.DecodeCertificate(bundle.Certificate)
	require.NoError(t, err)
	require.Equal(t, issued.Certificate().Raw, cert.Raw)

	key, err := pki.DecodePrivateKey(bundle.PrivateKey)
	require.NoError(t, err)
	require.True(t, issued.PrivateKey().Equal(key))

	pub, err := pki.DecodePublicKey(bundle.PublicKey)
	require.NoError(t, err)
	require.True(t, issued.PublicKey().Equal(pub))
}
