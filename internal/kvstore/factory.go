package kvstore

import (
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

type Config struct {
	Backend    string
	Prefix     string // redis key prefix
	Dir        string // file backend directory
	SQLitePath string
}

// New builds the backend named by cfg.Backend. The returned closer is
// non-nil for backends holding resources (SQLite); the Redis client is owned
// by the caller.
func New(cfg Config, redisClient *redis.Client) (Store, io.Closer, error) {
	switch cfg.Backend {
	case BackendRedis:
		if redisClient == nil {
			return nil, nil, errors.New("kvstore: redis backend needs a client")
		}
		return NewRedisStore(redisClient, RedisConfig{Prefix: cfg.Prefix}), nil, nil
	case BackendSQLite:
		s, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case BackendFile:
		s, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case BackendMemory, "":
		return NewMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("kvstore: unknown backend %q", cfg.Backend)
	}
}
