// Package kvstore provides the durable key-value backends the response
// cache persists to.
package kvstore

import (
	"context"
	"errors"
)

// Store is a string key-value store. Get reports ok=false with a nil error
// when the key does not exist.
// Implemented by MemoryStore (tests), FileStore (single host),
// RedisStore and SQLiteStore.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// ErrEmptyKey is returned by every backend for an empty key.
var ErrEmptyKey = errors.New("kvstore: empty key")
