// Package photostore abstracts the object storage holding treatment photos.
package photostore

import (
	"context"
	"io"
	"time"
)

// Store keeps photo objects addressed by their storage path.
type Store interface {
	Put(ctx context.Context, key, contentType string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string) error
}

// Presigner is implemented by stores that can hand out temporary download URLs.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
