package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"playground-gateway/internal/llm"
	"playground-gateway/internal/pkg/json"
	"playground-gateway/internal/respcache"
	"playground-gateway/pkg/logging"
)

// ResponseCache is the part of respcache.ResponseCache the handlers use.
type ResponseCache interface {
	Lookup(ctx context.Context, prompt string, messages []respcache.Message, provider, model string) (respcache.Hit, bool)
	Set(ctx context.Context, prompt string, messages []respcache.Message, response, provider, model string)
	Clear(ctx context.Context) error
	Stats() respcache.Stats
}

// ChatHandler holds dependencies for the /v1/chat/completions endpoint.
// A nil Cache sends every request upstream.
type ChatHandler struct {
	Cache ResponseCache
	LLM   llm.Client
}

func NewChatHandler(c ResponseCache, client llm.Client) *ChatHandler {
	return &ChatHandler{
		Cache: c,
		LLM:   client,
	}
}

// ChatCompletion handles POST /v1/chat/completions. The prompt used for
// similarity matching is the last user message.
func (h *ChatHandler) ChatCompletion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Warn("read_request_error", zap.Error(err))
		writeError(w, http.StatusRequestEntityTooLarge, "request_too_large")
		return
	}

	var req llm.ChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if err := req.Validate(); err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	provider := h.LLM.Provider()
	prompt := req.LastUserContent()
	messages := toCacheMessages(req.Messages)

	fields := []zap.Field{
		zap.String("provider", provider),
		zap.String("model_id", req.Model),
	}

	var cacheLookupLatency time.Duration
	if h.Cache != nil {
		lookupStart := time.Now()
		hit, ok := h.Cache.Lookup(ctx, prompt, messages, provider, req.Model)
		cacheLookupLatency = time.Since(lookupStart)

		if ok {
			logger.Info("cache_decision", append(fields,
				zap.String("cache_result", string(hit.Kind)),
				zap.String("hash_key", hit.Hash),
				zap.Float64("score", hit.Score),
				zap.Duration("cache_lookup_latency_ms", cacheLookupLatency),
				zap.Duration("total_latency_ms", time.Since(start)),
			)...)

			w.Header().Set("X-Cache", string(hit.Kind))
			writeJSON(w, http.StatusOK, cachedResponse(req.Model, hit.Response))
			return
		}
	}

	llmStart := time.Now()
	resp, err := h.LLM.ChatCompletion(ctx, &req)
	llmLatency := time.Since(llmStart)
	if err != nil {
		logger.Warn("llm_call_error", append(fields, zap.Error(err), zap.Duration("llm_latency_ms", llmLatency))...)
		writeError(w, upstreamStatus(err), "upstream_error")
		return
	}

	if h.Cache != nil && resp.Content() != "" {
		h.Cache.Set(ctx, prompt, messages, resp.Content(), provider, req.Model)
	}

	logger.Info("cache_decision", append(fields,
		zap.String("cache_result", "miss"),
		zap.Bool("cache_enabled", h.Cache != nil),
		zap.Duration("cache_lookup_latency_ms", cacheLookupLatency),
		zap.Duration("llm_latency_ms", llmLatency),
		zap.Duration("total_latency_ms", time.Since(start)),
	)...)

	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, resp)
}

// cachedResponse wraps a cached reply in the completion shape clients expect.
func cachedResponse(model, content string) *llm.ChatResponse {
	return &llm.ChatResponse{
		ID:      "chatcmpl-" + uuid.NewString(),
		Created: time.Now(),
		Model:   model,
		Choices: []llm.ChatChoice{{
			Index:        0,
			Message:      llm.ChatMessage{Role: llm.RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
	}
}

func toCacheMessages(in []llm.ChatMessage) []respcache.Message {
	out := make([]respcache.Message, 0, len(in))
	for _, m := range in {
		out = append(out, respcache.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// upstreamStatus passes provider 4xx errors through and maps everything
// else to 502.
func upstreamStatus(err error) int {
	var upErr *llm.UpstreamError
	if errors.As(err, &upErr) && upErr.StatusCode >= 400 && upErr.StatusCode < 500 {
		return upErr.StatusCode
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal_server_error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
