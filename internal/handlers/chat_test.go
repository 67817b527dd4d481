package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"playground-gateway/internal/kvstore"
	"playground-gateway/internal/llm"
	"playground-gateway/internal/respcache"
)

type mockLLMClient struct {
	provider    string
	content     string
	err         error
	calls       int
	lastRequest *llm.ChatRequest
}

func (m *mockLLMClient) ChatCompletion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.calls++
	m.lastRequest = req
	if m.err != nil {
		return nil, m.err
	}
	return &llm.ChatResponse{
		ID:    "chatcmpl-upstream",
		Model: req.Model,
		Choices: []llm.ChatChoice{
			{Index: 0, Message: llm.ChatMessage{Role: llm.RoleAssistant, Content: m.content}},
		},
	}, nil
}

func (m *mockLLMClient) Provider() string {
	if m.provider == "" {
		return llm.ProviderOpenAI
	}
	return m.provider
}

func newTestResponseCache(t *testing.T) *respcache.ResponseCache {
	t.Helper()
	return respcache.New(context.Background(), kvstore.NewMemoryStore(), respcache.WithLogger(zaptest.NewLogger(t)))
}

func postChat(t *testing.T, h *ChatHandler, body llm.ChatRequest) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ChatCompletion(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) llm.ChatResponse {
	t.Helper()
	var resp llm.ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return resp
}

func capitalRequest(content string) llm.ChatRequest {
	return llm.ChatRequest{
		Model:    "gpt-4",
		Messages: []llm.ChatMessage{{Role: llm.RoleUser, Content: content}},
	}
}

func TestChatHandlerMissThenExactHit(t *testing.T) {
	fakeLLM := &mockLLMClient{content: "Paris"}
	h := NewChatHandler(newTestResponseCache(t), fakeLLM)

	rr := postChat(t, h, capitalRequest("What is the capital of France?"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr.Header().Get("X-Cache") != "miss" {
		t.Fatalf("expected miss, got %q", rr.Header().Get("X-Cache"))
	}
	if got := decodeResponse(t, rr); got.Choices[0].Message.Content != "Paris" {
		t.Fatalf("unexpected response: %#v", got)
	}

	rr = postChat(t, h, capitalRequest("What is the capital of France?"))
	if rr.Header().Get("X-Cache") != "exact" {
		t.Fatalf("expected exact hit, got %q", rr.Header().Get("X-Cache"))
	}
	resp := decodeResponse(t, rr)
	if resp.Choices[0].Message.Content != "Paris" || resp.Choices[0].Message.Role != llm.RoleAssistant {
		t.Fatalf("unexpected cached response: %#v", resp)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Fatalf("expected completion id, got %q", resp.ID)
	}
	if fakeLLM.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", fakeLLM.calls)
	}
}

func TestChatHandlerSimilarHit(t *testing.T) {
	fakeLLM := &mockLLMClient{content: "Paris"}
	h := NewChatHandler(newTestResponseCache(t), fakeLLM)

	postChat(t, h, capitalRequest("What is the capital of France?"))
	rr := postChat(t, h, capitalRequest("what is the capital of france"))

	if rr.Header().Get("X-Cache") != "similar" {
		t.Fatalf("expected similar hit, got %q", rr.Header().Get("X-Cache"))
	}
	if fakeLLM.calls != 1 {
		t.Fatalf("expected one upstream call, got %d", fakeLLM.calls)
	}
}

func TestChatHandlerWithoutCache(t *testing.T) {
	fakeLLM := &mockLLMClient{content: "hello!"}
	h := NewChatHandler(nil, fakeLLM)

	postChat(t, h, capitalRequest("hi"))
	rr := postChat(t, h, capitalRequest("hi"))

	if rr.Code != http.StatusOK || rr.Header().Get("X-Cache") != "miss" {
		t.Fatalf("unexpected result: %d %q", rr.Code, rr.Header().Get("X-Cache"))
	}
	if fakeLLM.calls != 2 {
		t.Fatalf("expected every request upstream, got %d calls", fakeLLM.calls)
	}
}

func TestChatHandlerUpstreamErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"provider 4xx passes through", &llm.UpstreamError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}, http.StatusTooManyRequests},
		{"provider 5xx", &llm.UpstreamError{StatusCode: http.StatusInternalServerError, Message: "boom"}, http.StatusBadGateway},
		{"network", errors.New("connection refused"), http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestResponseCache(t)
			h := NewChatHandler(c, &mockLLMClient{err: tc.err})

			rr := postChat(t, h, capitalRequest("hi"))
			if rr.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rr.Code)
			}
			if c.Stats().Size != 0 {
				t.Fatalf("failed calls must not be cached")
			}
		})
	}
}

func TestChatHandlerRejectsBadRequests(t *testing.T) {
	fakeLLM := &mockLLMClient{content: "x"}
	h := NewChatHandler(newTestResponseCache(t), fakeLLM)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	h.ChatCompletion(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad JSON, got %d", rr.Code)
	}

	rr = postChat(t, h, llm.ChatRequest{Model: "gpt-4"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing messages, got %d", rr.Code)
	}
	if fakeLLM.calls != 0 {
		t.Fatalf("invalid requests must not reach upstream")
	}
}

func TestCacheHandlerStatsAndClear(t *testing.T) {
	c := newTestResponseCache(t)
	c.Set(context.Background(), "q", []respcache.Message{{Role: "user", Content: "q"}}, "a", "openai", "gpt-4")
	h := NewCacheHandler(c)

	rr := httptest.NewRecorder()
	h.Stats(rr, httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil))
	var stats respcache.Stats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Size != 1 || stats.OldestEntry == nil {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	rr = httptest.NewRecorder()
	h.Clear(rr, httptest.NewRequest(http.MethodDelete, "/v1/cache", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if c.Stats().Size != 0 {
		t.Fatalf("expected empty cache after clear")
	}
}
