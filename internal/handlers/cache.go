package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"playground-gateway/pkg/logging"
)

// CacheHandler exposes the response cache for inspection and reset.
type CacheHandler struct {
	Cache ResponseCache
}

func NewCacheHandler(c ResponseCache) *CacheHandler {
	return &CacheHandler{Cache: c}
}

// Stats handles GET /v1/cache/stats.
func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cache.Stats())
}

// Clear handles DELETE /v1/cache.
func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Cache.Clear(r.Context()); err != nil {
		logging.L(r.Context()).Error("cache_clear_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "cache_clear_failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
