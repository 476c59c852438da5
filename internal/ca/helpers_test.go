package ca

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/selfca/internal/pki"
)

var (
	rootOnce sync.Once
	rootTest *RootAuthority
	rootErr  error
)

// testAuthority returns a shared 2048 bit root, key generation is slow.
func testAuthority(t *testing.T) *RootAuthority {
	t.Helper()

	rootOnce.Do(func() {
		rootTest, rootErr = GenerateRoot(RootOptions{
			Bits:     2048,
			ExpiryOn: time.Now().AddDate(1, 0, 0),
			Subject:  pki.Subject{CommonName: "ca.example.com", Country: "BR"},
		})
	})
	require.NoError(t, rootErr)

	return rootTest
}

func withClock(t *testing.T, at time.Time) {
	t.Helper()

	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}
