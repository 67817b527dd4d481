// Package respcache serves previously obtained LLM responses for identical
// or near-identical chat requests.
//
// Entries are keyed by a fingerprint of (prompt, messages, provider, model).
// A lookup first tries the exact fingerprint and then scans entries of the
// same provider and model for the best word-set similarity above a
// threshold. Every Set persists the whole entry set to a kvstore.Store under
// a single key, and New reloads it.
package respcache

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"playground-gateway/internal/kvstore"
	"playground-gateway/internal/metrics"
	"playground-gateway/internal/pkg/json"
	"playground-gateway/pkg/logging"
)

const (
	DefaultExpiry              = 24 * time.Hour
	DefaultSimilarityThreshold = 0.85
	DefaultMaxEntries          = 100
	DefaultStorageKey          = "llm-cache"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Entry is one cached exchange. Timestamp is epoch milliseconds.
type Entry struct {
	Prompt    string    `json:"prompt"`
	Messages  []Message `json:"messages"`
	Response  string    `json:"response"`
	Timestamp int64     `json:"timestamp"`
	Hash      string    `json:"hash"`
	Provider  string    `json:"provider"`
	ModelName string    `json:"modelName"`
}

type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchSimilar MatchKind = "similar"
)

// Hit describes a successful lookup. Score is 1 for exact matches.
type Hit struct {
	Response string
	Kind     MatchKind
	Score    float64
	Hash     string
}

// Stats is a point-in-time view of the cache. OldestEntry is nil when the
// cache is empty.
type Stats struct {
	Size        int        `json:"size"`
	OldestEntry *time.Time `json:"oldestEntry,omitempty"`
}

type Option func(*ResponseCache)

// WithExpiry sets how long an entry may be served. Non-positive values are ignored.
func WithExpiry(d time.Duration) Option {
	return func(c *ResponseCache) {
		if d > 0 {
			c.expiry = d
		}
	}
}

// WithSimilarityThreshold sets the score a similarity match must exceed.
// Values outside [0, 1] are ignored.
func WithSimilarityThreshold(t float64) Option {
	return func(c *ResponseCache) {
		if t >= 0 && t <= 1 {
			c.threshold = t
		}
	}
}

// WithMaxEntries bounds the number of entries kept after each Set.
// Non-positive values are ignored.
func WithMaxEntries(n int) Option {
	return func(c *ResponseCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithStorageKey sets the store key the entry list is persisted under.
func WithStorageKey(key string) Option {
	return func(c *ResponseCache) {
		if key != "" {
			c.storageKey = key
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *ResponseCache) {
		if l != nil {
			c.logger = l.Named("respcache")
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) {
		if now != nil {
			c.now = now
		}
	}
}

// ResponseCache is safe for concurrent use. Every operation runs to
// completion, store I/O included, while holding the cache lock.
type ResponseCache struct {
	mu      sync.Mutex
	store   kvstore.Store
	entries map[string]*Entry

	expiry     time.Duration
	threshold  float64
	maxEntries int
	storageKey string

	now    func() time.Time
	logger *zap.Logger
}

// New builds a cache over store and loads the non-expired entries persisted
// under the storage key. A read or decode failure is logged and leaves the
// cache empty.
func New(ctx context.Context, store kvstore.Store, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		store:      store,
		entries:    make(map[string]*Entry),
		expiry:     DefaultExpiry,
		threshold:  DefaultSimilarityThreshold,
		maxEntries: DefaultMaxEntries,
		storageKey: DefaultStorageKey,
		now:        time.Now,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.load(ctx)
	return c
}

func (c *ResponseCache) load(ctx context.Context) {
	logger := c.log(ctx)

	raw, ok, err := c.store.Get(ctx, c.storageKey)
	if err != nil {
		logger.Warn("response_cache_load_failed", zap.String("storage_key", c.storageKey), zap.Error(err))
		return
	}
	if !ok {
		logger.Debug("response_cache_load_empty", zap.String("storage_key", c.storageKey))
		return
	}

	var stored []Entry
	if err := json.UnmarshalString(raw, &stored); err != nil {
		logger.Warn("response_cache_decode_failed", zap.String("storage_key", c.storageKey), zap.Error(err))
		return
	}

	nowMs := c.now().UnixMilli()
	dropped := 0
	for i := range stored {
		e := stored[i]
		if c.expired(&e, nowMs) {
			dropped++
			continue
		}
		if e.Hash == "" {
			e.Hash = Fingerprint(e.Prompt, e.Messages, e.Provider, e.ModelName)
		}
		c.entries[e.Hash] = &e
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))

	logger.Info("response_cache_loaded",
		zap.String("storage_key", c.storageKey),
		zap.Int("entries", len(c.entries)),
		zap.Int("expired_dropped", dropped),
	)
}

// Get returns the cached response for the request, if any.
func (c *ResponseCache) Get(ctx context.Context, prompt string, messages []Message, provider, model string) (string, bool) {
	hit, ok := c.Lookup(ctx, prompt, messages, provider, model)
	if !ok {
		return "", false
	}
	return hit.Response, true
}

// Lookup is Get with match details. An exact fingerprint match wins;
// otherwise the non-expired entry of the same provider and model with the
// highest similarity strictly above the threshold is returned, the first
// one in timestamp order on ties.
func (c *ResponseCache) Lookup(ctx context.Context, prompt string, messages []Message, provider, model string) (Hit, bool) {
	prompt, messages, provider, model = validUTF8(prompt), validMessages(messages), validUTF8(provider), validUTF8(model)
	hash := Fingerprint(prompt, messages, provider, model)

	c.mu.Lock()
	defer c.mu.Unlock()

	logger := c.log(ctx)
	nowMs := c.now().UnixMilli()

	if e, ok := c.entries[hash]; ok && !c.expired(e, nowMs) {
		metrics.CacheLookupsTotal.WithLabelValues(string(MatchExact)).Inc()
		logger.Debug("response_cache_lookup",
			zap.String("cache_result", string(MatchExact)),
			zap.String("hash", hash),
		)
		return Hit{Response: e.Response, Kind: MatchExact, Score: 1, Hash: e.Hash}, true
	}

	msgText := messagesText(messages)
	var best *Entry
	bestScore := c.threshold
	for _, e := range c.sorted() {
		if c.expired(e, nowMs) {
			continue
		}
		if e.Provider != provider || e.ModelName != model {
			continue
		}
		score := similarity(prompt, e.Prompt, msgText, messagesText(e.Messages))
		if score > bestScore {
			best = e
			bestScore = score
		}
	}

	if best == nil {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		logger.Debug("response_cache_lookup",
			zap.String("cache_result", "miss"),
			zap.String("hash", hash),
		)
		return Hit{}, false
	}

	metrics.CacheLookupsTotal.WithLabelValues(string(MatchSimilar)).Inc()
	logger.Debug("response_cache_lookup",
		zap.String("cache_result", string(MatchSimilar)),
		zap.String("hash", hash),
		zap.String("matched_hash", best.Hash),
		zap.Float64("score", bestScore),
	)
	return Hit{Response: best.Response, Kind: MatchSimilar, Score: bestScore, Hash: best.Hash}, true
}

// Set stores response for the request, overwriting an entry with the same
// fingerprint, then drops expired entries, evicts the oldest ones beyond
// the size bound and persists the full set. Invalid UTF-8 in any field is
// replaced with U+FFFD first, in Lookup as well. A persistence failure is
// logged; the entry stays in memory.
func (c *ResponseCache) Set(ctx context.Context, prompt string, messages []Message, response, provider, model string) {
	prompt, messages, provider, model = validUTF8(prompt), validMessages(messages), validUTF8(provider), validUTF8(model)
	response = validUTF8(response)
	hash := Fingerprint(prompt, messages, provider, model)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[hash] = &Entry{
		Prompt:    prompt,
		Messages:  messages,
		Response:  response,
		Timestamp: now.UnixMilli(),
		Hash:      hash,
		Provider:  provider,
		ModelName: model,
	}

	c.cleanup(ctx, now.UnixMilli())
	c.persist(ctx)
	metrics.CacheEntries.Set(float64(len(c.entries)))
}

// cleanup must be called with mu held.
func (c *ResponseCache) cleanup(ctx context.Context, nowMs int64) {
	expired := 0
	for hash, e := range c.entries {
		if c.expired(e, nowMs) {
			delete(c.entries, hash)
			expired++
		}
	}

	evicted := 0
	if excess := len(c.entries) - c.maxEntries; excess > 0 {
		for _, e := range c.sorted()[:excess] {
			delete(c.entries, e.Hash)
			evicted++
		}
	}

	if expired > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues("expired").Add(float64(expired))
	}
	if evicted > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues("capacity").Add(float64(evicted))
	}
	if expired > 0 || evicted > 0 {
		c.log(ctx).Debug("response_cache_cleanup",
			zap.Int("expired", expired),
			zap.Int("evicted", evicted),
			zap.Int("entries", len(c.entries)),
		)
	}
}

// persist must be called with mu held.
func (c *ResponseCache) persist(ctx context.Context) {
	sorted := c.sorted()
	list := make([]Entry, 0, len(sorted))
	for _, e := range sorted {
		list = append(list, *e)
	}

	raw, err := json.MarshalString(list)
	if err != nil {
		c.log(ctx).Warn("response_cache_encode_failed", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, c.storageKey, raw); err != nil {
		c.log(ctx).Warn("response_cache_persist_failed",
			zap.String("storage_key", c.storageKey),
			zap.Int("entries", len(list)),
			zap.Error(err),
		)
	}
}

// Clear drops every entry and removes the storage record. Memory is
// cleared even when the removal fails.
func (c *ResponseCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	metrics.CacheEntries.Set(0)

	if err := c.store.Remove(ctx, c.storageKey); err != nil {
		c.log(ctx).Warn("response_cache_clear_failed", zap.String("storage_key", c.storageKey), zap.Error(err))
		return fmt.Errorf("respcache: remove %s: %w", c.storageKey, err)
	}
	c.log(ctx).Info("response_cache_cleared", zap.String("storage_key", c.storageKey))
	return nil
}

func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{Size: len(c.entries)}
	if sorted := c.sorted(); len(sorted) > 0 {
		oldest := time.UnixMilli(sorted[0].Timestamp)
		stats.OldestEntry = &oldest
	}
	return stats
}

// Entries returns copies of the in-memory entries, oldest first.
func (c *ResponseCache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	sorted := c.sorted()
	out := make([]Entry, 0, len(sorted))
	for _, e := range sorted {
		cp := *e
		cp.Messages = slices.Clone(e.Messages)
		out = append(out, cp)
	}
	return out
}

func (c *ResponseCache) expired(e *Entry, nowMs int64) bool {
	return nowMs-e.Timestamp > c.expiry.Milliseconds()
}

// sorted orders entries by timestamp, then hash.
func (c *ResponseCache) sorted() []*Entry {
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b *Entry) int {
		if n := cmp.Compare(a.Timestamp, b.Timestamp); n != 0 {
			return n
		}
		return cmp.Compare(a.Hash, b.Hash)
	})
	return out
}

// validUTF8 replaces each run of invalid bytes with U+FFFD so stored fields
// come back from the store byte for byte.
func validUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}

// validMessages returns a sanitised copy of messages.
func validMessages(messages []Message) []Message {
	if messages == nil {
		return nil
	}
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = Message{Role: validUTF8(m.Role), Content: validUTF8(m.Content)}
	}
	return out
}

func (c *ResponseCache) log(ctx context.Context) *zap.Logger {
	return logging.Or(ctx, c.logger)
}
