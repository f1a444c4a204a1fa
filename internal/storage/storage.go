// Package storage keeps job inputs and results as opaque blobs, either on the
// local disk or in an S3 compatible bucket, optionally encrypted at rest.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/local/pdftools/internal/config"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// Metadata travels with a blob.
type Metadata struct {
	Name        string            `json:"name"`
	ContentType string            `json:"content_type"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Store is a flat key/blob store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, meta Metadata) error
	Get(ctx context.Context, key string) ([]byte, Metadata, error)
	Delete(ctx context.Context, key string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// New builds the store selected by cfg.Backend, wrapped with encryption when
// an encryption key is configured.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Backend {
	case "", "local":
		st, err = NewLocalStore(cfg.LocalDir)
	case "s3":
		st, err = NewS3Store(ctx, S3Options{
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Prefix:    cfg.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.EncryptionKey != "" {
		st = WithEncryption(st, cfg.EncryptionKey)
	}
	return st, nil
}
