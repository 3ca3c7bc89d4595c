package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("stored object not found")

// Object is a persisted generated artifact.
type Object struct {
	Body        []byte
	ContentType string
	CreatedAt   time.Time
}

// ObjectInfo is the listing/metadata view of an Object.
type ObjectInfo struct {
	Key       string
	CreatedAt time.Time
}

// Store is a namespaced blob store with per-object creation metadata.
// Delete treats a missing key as success; implementations must be safe
// for concurrent use.
type Store interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Head(ctx context.Context, key string) (ObjectInfo, error)
	Put(ctx context.Context, key string, obj Object) error
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}
