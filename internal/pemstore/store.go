// Package pemstore persists PEM encoded artifacts under slash separated paths.
package pemstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Read when nothing is stored at a path.
var ErrNotFound = errors.New("pem not found")

// Store is a destination for PEM text.
type Store interface {
	Write(ctx context.Context, path, content string) error
	Read(ctx context.Context, path string) (string, error)
}
