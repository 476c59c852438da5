package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/selfca/internal/store"
)

func testCert(fingerprint, serial, cn string, issuedAt time.Time) *store.CertMetadata {
	return &store.CertMetadata{
		Fingerprint:  fingerprint,
		SerialNumber: serial,
		CommonName:   cn,
		SubjectDN:    "CN=" + cn,
		IssuerDN:     "CN=ca.example.com",
		IssuedAt:     issuedAt,
		ExpiresAt:    issuedAt.Add(365 * 24 * time.Hour),
	}
}

func TestNewCertificateStore(t *testing.T) {
	st := NewCertificateStore()
	require.NotNil(t, st)
}

func TestCertificateStore_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("register new certificate", func(t *testing.T) {
		st := NewCertificateStore()

		err := st.Register(ctx, testCert("fp-1", "1", "host-a", time.Now()))
		require.NoError(t, err)

		retrieved, err := st.Get(ctx, "fp-1")
		require.NoError(t, err)
		require.NotEmpty(t, retrieved.CertID)
		require.Equal(t, "host-a", retrieved.CommonName)
	})

	t.Run("register duplicate fingerprint returns error", func(t *testing.T) {
		st := NewCertificateStore()
		cert := testCert("fp-1", "1", "host-a", time.Now())

		require.NoError(t, st.Register(ctx, cert))

		err := st.Register(ctx, cert)
		require.ErrorIs(t, err, store.ErrCertAlreadyExists)
	})

	t.Run("same serial different fingerprint", func(t *testing.T) {
		st := NewCertificateStore()

		require.NoError(t, st.Register(ctx, testCert("fp-1", "1", "host-a", time.Now())))
		require.NoError(t, st.Register(ctx, testCert("fp-2", "1", "host-b", time.Now())))

		certs, err := st.GetBySerial(ctx, "1")
		require.NoError(t, err)
		require.Len(t, certs, 2)
	})

	t.Run("invalid metadata", func(t *testing.T) {
		st := NewCertificateStore()

		err := st.Register(ctx, &store.CertMetadata{SerialNumber: "1"})
		require.ErrorIs(t, err, store.ErrInvalidMetadata)

		err = st.Register(ctx, nil)
		require.ErrorIs(t, err, store.ErrInvalidMetadata)
	})
}

func TestCertificateStore_Get(t *testing.T) {
	ctx := context.Background()
	st := NewCertificateStore()

	require.NoError(t, st.Register(ctx, testCert("fp-1", "1", "host-a", time.Now())))

	t.Run("returns a copy", func(t *testing.T) {
		first, err := st.Get(ctx, "fp-1")
		require.NoError(t, err)
		first.Description = "changed"

		second, err := st.Get(ctx, "fp-1")
		require.NoError(t, err)
		require.Empty(t, second.Description)
	})

	t.Run("missing certificate", func(t *testing.T) {
		_, err := st.Get(ctx, "nope")
		require.ErrorIs(t, err, store.ErrCertNotFound)
	})

	t.Run("missing serial", func(t *testing.T) {
		certs, err := st.GetBySerial(ctx, "ff")
		require.NoError(t, err)
		require.Empty(t, certs)
	})
}

func TestCertificateStore_List(t *testing.T) {
	ctx := context.Background()
	st := NewCertificateStore()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	st.now = func() time.Time { return base.Add(400 * 24 * time.Hour) }

	expired := testCert("fp-old", "1", "host-a", base)
	require.NoError(t, st.Register(ctx, expired))
	require.NoError(t, st.Register(ctx, testCert("fp-b", "2", "host-b", base.Add(300*24*time.Hour))))
	require.NoError(t, st.Register(ctx, testCert("fp-a", "3", "host-a", base.Add(200*24*time.Hour))))

	tests := []struct {
		name string
		opts store.ListCertificatesOptions
		want []string
	}{
		{
			name: "hides expired by default",
			opts: store.ListCertificatesOptions{},
			want: []string{"fp-a", "fp-b"},
		},
		{
			name: "include expired",
			opts: store.ListCertificatesOptions{IncludeExpired: true},
			want: []string{"fp-old", "fp-a", "fp-b"},
		},
		{
			name: "filter by common name",
			opts: store.ListCertificatesOptions{CommonName: "host-a", IncludeExpired: true},
			want: []string{"fp-old", "fp-a"},
		},
		{
			name: "limit",
			opts: store.ListCertificatesOptions{IncludeExpired: true, Limit: 1},
			want: []string{"fp-old"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			certs, err := st.List(ctx, tt.opts)
			require.NoError(t, err)

			got := make([]string, 0, len(certs))
			for _, c := range certs {
				got = append(got, c.Fingerprint)
			}
			require.Equal(t, tt.want, got)
		})
	}
}
