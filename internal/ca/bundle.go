package ca

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/wolfeidau/selfca/internal/pemstore"
)

// Artifact file extensions, written as siblings sharing one base name.
const (
	CertificateExt = ".cert"
	PrivateKeyExt  = ".key"
	PublicKeyExt   = ".pub.key"
)

// PemBundle holds the PEM text of a certificate and its keys.
// PublicKey is optional.
type PemBundle struct {
	Certificate string
	PrivateKey  string
	PublicKey   string
}

// ArtifactPaths are the store paths of one bundle.
type ArtifactPaths struct {
	Certificate string
	PrivateKey  string
	PublicKey   string
}

// Artifacts returns the artifact paths for name inside dir. Paths use
// forward slashes; stores translate them as needed.
func Artifacts(dir, name string) ArtifactPaths {
	base := path.Join(dir, name)
	return ArtifactPaths{
		Certificate: base + CertificateExt,
		PrivateKey:  base + PrivateKeyExt,
		PublicKey:   base + PublicKeyExt,
	}
}

// Persist writes the bundle to store. The public key is only written when present.
func (b PemBundle) Persist(ctx context.Context, store pemstore.Store, dir, name string) error {
	paths := Artifacts(dir, name)

	if err := store.Write(ctx, paths.Certificate, b.Certificate); err != nil {
		return fmt.Errorf("failed to write certificate: %w", err)
	}

	if err := store.Write(ctx, paths.PrivateKey, b.PrivateKey); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}

	if b.PublicKey != "" {
		if err := store.Write(ctx, paths.PublicKey, b.PublicKey); err != nil {
			return fmt.Errorf("failed to write public key: %w", err)
		}
	}

	return nil
}

// ReadBundle reads a bundle written by Persist. A missing public key is not an error.
func ReadBundle(ctx context.Context, store pemstore.Store, dir, name string) (PemBundle, error) {
	paths := Artifacts(dir, name)

	cert, err := store.Read(ctx, paths.Certificate)
	if err != nil {
		return PemBundle{}, fmt.Errorf("failed to read certificate: %w", err)
	}

	key, err := store.Read(ctx, paths.PrivateKey)
	if err != nil {
		return PemBundle{}, fmt.Errorf("failed to read private key: %w", err)
	}

	pub, err := store.Read(ctx, paths.PublicKey)
	if err != nil && !errors.Is(err, pemstore.ErrNotFound) {
		return PemBundle{}, fmt.Errorf("failed to read public key: %w", err)
	}

	return PemBundle{
		Certificate: cert,
		PrivateKey:  key,
		PublicKey:   pub,
	}, nil
}
