// Package storage persists file bytes under opaque keys. Two backends exist:
// local disk and a MinIO-compatible object store. Selection happens once at
// startup from configuration.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"nxsync/internal/config"
	"nxsync/internal/metastore"
)

// ErrObjectNotFound is returned by Open and for reads of deleted keys.
var ErrObjectNotFound = errors.New("object not found")

// Backend stores, retrieves and deletes byte blobs by key.
//
// After Save returns, Open with the same key yields the just-written bytes.
// Delete is best-effort: deleting an absent object is not an error.
type Backend interface {
	Save(ctx context.Context, key string, r io.Reader, size int64) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// New builds the backend named by cfg.Provider.
func New(cfg config.Server, meta *metastore.Store) (Backend, error) {
	switch cfg.Provider {
	case "local", "":
		return NewLocal(cfg.StorageRoot)
	case "minio":
		return NewMinio(cfg.Minio, meta), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}
