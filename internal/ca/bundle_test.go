package ca

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/selfca/internal/pemstore"
)

func TestArtifacts(t *testing.T) {
	paths := Artifacts("/etc/selfca", "root")
	require.Equal(t, "/etc/selfca/root.cert", paths.Certificate)
	require.Equal(t, "/etc/selfca/root.key", paths.PrivateKey)
	require.Equal(t, "/etc/selfca/root.pub.key", paths.PublicKey)

	require.Equal(t, "client.cert", Artifacts("", "client").Certificate)
}

func TestPemBundle_Persist(t *testing.T) {
	ctx := context.Background()
	store := pemstore.NewMemoryStore()

	bundle := PemBundle{Certificate: "cert", PrivateKey: "key"}
	require.NoError(t, bundle.Persist(ctx, store, "dir", "name"))

	_, err := store.Read(ctx, "dir/name.pub.key")
	require.ErrorIs(t, err, pemstore.ErrNotFound)

	read, err := ReadBundle(ctx, store, "dir", "name")
	require.NoError(t, err)
	require.Equal(t, bundle, read)
}
