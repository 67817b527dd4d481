package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := WithLogger(context.Background(), logger)

	if got := FromContext(ctx); got != logger {
		t.Fatalf("expected logger from context")
	}
	if got := FromContext(context.Background()); got != DefaultLogger() {
		t.Fatalf("expected default logger for empty context")
	}
}

func TestOr(t *testing.T) {
	fallback := zap.NewNop()
	if got := Or(context.Background(), fallback); got != fallback {
		t.Fatalf("expected fallback logger")
	}

	scoped := zaptest.NewLogger(t)
	ctx := WithLogger(context.Background(), scoped)
	if got := Or(ctx, fallback); got != scoped {
		t.Fatalf("expected request-scoped logger to win over unnamed fallback")
	}
}

func TestOrKeepsComponentName(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := WithLogger(context.Background(), zap.New(core).With(zap.String("request_id", "req-1")))

	Or(ctx, zap.NewNop().Named("respcache")).Info("lookup")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "respcache" {
		t.Fatalf("expected logger name respcache, got %q", entries[0].LoggerName)
	}
	if entries[0].ContextMap()["request_id"] != "req-1" {
		t.Fatalf("expected request fields kept, got %v", entries[0].ContextMap())
	}
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithFields(ctx, zap.String("path", "/v1/cache"))

	FromContext(ctx).Info("hello")

	if got := logs.All()[0].ContextMap()["path"]; got != "/v1/cache" {
		t.Fatalf("expected path field, got %v", got)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	logger, err := NewLogger(Options{Env: "production", Level: "warn"})
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zap.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
	if !logger.Core().Enabled(zap.WarnLevel) {
		t.Fatalf("warn should be enabled")
	}
}
