package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"playground-gateway/internal/app"
	"playground-gateway/internal/config"
	"playground-gateway/internal/handlers"
	"playground-gateway/internal/httpserver"
	"playground-gateway/internal/llm"
	"playground-gateway/internal/metrics"
	"playground-gateway/pkg/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("gateway exited with error: %v", err)
	}
}

func run() error {
	// ----- Config -----
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ----- Logger -----
	logger, err := logging.NewLogger(logging.Options{Env: cfg.Env, Level: cfg.LogLevel})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// ----- Metrics -----
	metrics.Register()

	logger.Info("loaded config",
		zap.String("port", cfg.Port),
		zap.String("store_backend", cfg.Store.Backend),
		zap.Bool("cache_enabled", cfg.Cache.Enabled),
		zap.Duration("cache_expiry", cfg.Cache.Expiry),
		zap.Float64("similarity_threshold", cfg.Cache.SimilarityThreshold),
		zap.Int("max_entries", cfg.Cache.MaxEntries),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("llm_base_url", cfg.LLM.BaseURL),
	)

	// ----- Store + response cache -----
	var (
		responseCache handlers.ResponseCache
		cacheHandler  *handlers.CacheHandler
	)
	if cfg.Cache.Enabled {
		storeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, closeStore, err := app.OpenStore(storeCtx, cfg, logger)
		if err != nil {
			cancel()
			logger.Error("store init failed", zap.Error(err))
			return err
		}
		defer func() {
			if err := closeStore(); err != nil {
				logger.Warn("store close failed", zap.Error(err))
			}
		}()

		rc := app.NewResponseCache(storeCtx, cfg, store, logger)
		cancel()
		responseCache = rc
		cacheHandler = handlers.NewCacheHandler(rc)
	}

	// ----- LLM client -----
	if cfg.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}

	llmClient, err := llm.NewClient(llm.Config{
		Provider:        cfg.LLM.Provider,
		BaseURL:         cfg.LLM.BaseURL,
		APIKey:          cfg.LLM.APIKey,
		APIVersion:      cfg.LLM.APIVersion,
		UpstreamTimeout: cfg.LLM.UpstreamTimeout,
		MaxRetries:      cfg.LLM.MaxRetries,
	}, logger)
	if err != nil {
		return err
	}
	if closer, ok := llmClient.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	// ----- Handlers -----
	chatHandler := handlers.NewChatHandler(responseCache, llmClient)

	// ----- Router + middleware -----
	r := chi.NewRouter()
	httpserver.SetupRouter(r, logger, chatHandler, cacheHandler)

	// ----- HTTP server -----
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting gateway", zap.String("addr", srv.Addr))

	// Start server in background
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// ----- Graceful shutdown -----
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("server error", zap.Error(err))
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
		return err
	}

	logger.Info("server shutdown complete")
	return nil
}
