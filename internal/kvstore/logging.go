package kvstore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"playground-gateway/internal/metrics"
	"playground-gateway/pkg/logging"
)

// LoggingStore wraps a Store with logging + metrics.
type LoggingStore struct {
	inner   Store
	backend string
	logger  *zap.Logger
}

// NewLoggingStore returns a Store that logs every call and counts it in
// kvstore_operations_total. backend is only used as a log field.
func NewLoggingStore(inner Store, backend string, logger *zap.Logger) Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingStore{inner: inner, backend: backend, logger: logger.Named("kvstore")}
}

func (s *LoggingStore) Get(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	value, ok, err := s.inner.Get(ctx, key)

	result := "miss"
	switch {
	case err != nil:
		result = "error"
	case ok:
		result = "ok"
	}
	metrics.StoreOpsTotal.WithLabelValues("get", result).Inc()

	fields := s.fields(key, start, zap.String("store_result", result), zap.Int("value_bytes", len(value)))
	if err != nil {
		s.log(ctx).Warn("kvstore_get", append(fields, zap.Error(err))...)
	} else {
		s.log(ctx).Debug("kvstore_get", fields...)
	}
	return value, ok, err
}

func (s *LoggingStore) Set(ctx context.Context, key, value string) error {
	start := time.Now()
	err := s.inner.Set(ctx, key, value)
	s.record(ctx, "set", "kvstore_set", key, start, err, zap.Int("value_bytes", len(value)))
	return err
}

func (s *LoggingStore) Remove(ctx context.Context, key string) error {
	start := time.Now()
	err := s.inner.Remove(ctx, key)
	s.record(ctx, "remove", "kvstore_remove", key, start, err)
	return err
}

func (s *LoggingStore) record(ctx context.Context, op, event, key string, start time.Time, err error, extra ...zap.Field) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.StoreOpsTotal.WithLabelValues(op, result).Inc()

	fields := s.fields(key, start, extra...)
	if err != nil {
		s.log(ctx).Warn(event, append(fields, zap.Error(err))...)
		return
	}
	s.log(ctx).Debug(event, fields...)
}

func (s *LoggingStore) fields(key string, start time.Time, extra ...zap.Field) []zap.Field {
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0
	return append([]zap.Field{
		zap.String("store_backend", s.backend),
		zap.String("store_key", key),
		zap.Float64("latency_ms", latencyMs),
	}, extra...)
}

func (s *LoggingStore) log(ctx context.Context) *zap.Logger {
	return logging.Or(ctx, s.logger)
}
