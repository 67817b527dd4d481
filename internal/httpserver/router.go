package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"playground-gateway/internal/handlers"
	"playground-gateway/internal/metrics"
	"playground-gateway/internal/middleware"
)

// SetupRouter mounts the chat and cache routes. cacheHandler may be nil
// when the response cache is disabled.
func SetupRouter(r *chi.Mux, baseLogger *zap.Logger, chatHandler *handlers.ChatHandler, cacheHandler *handlers.CacheHandler) {
	r.Use(metrics.Middleware)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)

	r.Use(middleware.LoggingContext(baseLogger))
	r.Use(middleware.Recoverer())
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.MaxBodySize(512 * 1024))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/completions", chatHandler.ChatCompletion)
		if cacheHandler != nil {
			r.Get("/cache/stats", cacheHandler.Stats)
			r.Delete("/cache", cacheHandler.Clear)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())
}
