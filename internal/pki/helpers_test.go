package pki

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var (
	keyOnce  sync.Once
	keyCache []KeyPair
	keyErr   error
)

// testKeyPairs returns two cached 2048 bit key pairs, key generation is slow.
func testKeyPairs(t *testing.T) (KeyPair, KeyPair) {
	t.Helper()

	keyOnce.Do(func() {
		for range 2 {
			kp, err := GenerateKeyPair(2048)
			if err != nil {
				keyErr = err
				return
			}
			keyCache = append(keyCache, kp)
		}
	})
	require.NoError(t, keyErr)

	return keyCache[0], keyCache[1]
}

func testValidity() Validity {
	now := time.Now().UTC().Truncate(time.Second)
	return Validity{NotBefore: now, NotAfter: now.AddDate(1, 0, 0)}
}

func testRoot(t *testing.T) (*UnsignedCertificate, KeyPair) {
	t.Helper()

	kp, _ := testKeyPairs(t)
	name := BuildName(Subject{CommonName: "ca.example.com", Country: "BR"}, AuthorityDefaults())

	unsigned, err := BuildCertificate(CertificateRequest{
		Validity:  testValidity(),
		Subject:   name,
		Issuer:    name,
		PublicKey: kp.PublicKey,
		Profile:   ProfileCA,
	})
	require.NoError(t, err)

	return unsigned, kp
}
