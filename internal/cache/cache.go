// ABOUTME: TTL response cache on top of the key-value store
// ABOUTME: Lets repeated prompts and offline sessions reuse earlier answers
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/Ashama-AI/ashama-go/internal/kv"
	"github.com/Ashama-AI/ashama-go/internal/metrics"
	"go.uber.org/zap"
)

const (
	// Prefix namespaces cache entries inside the shared store
	Prefix = "ashama_cache_"
	// DefaultTTL applies when Set is given a zero ttl
	DefaultTTL = 30 * time.Minute
)

const (
	offlineGreeting = "Nagaa! Ani Ashama. Yeroo ammaa interneetiin hin jiru, garuu si gargaaruuf qophaa'adha. Gaaffii kee irra deebi'ii yaali yoo interneetiin deebi'e."
	offlineDefault  = "Dhiifama, yeroo ammaa interneetiin hin jiru. Deebii sirrii siif kennuuf interneetii barbaada. Maaloo walitti dhufeenya kee mirkaneessiitii irra deebi'ii yaali."
)

// entry is the stored envelope. Timestamp and TTL are milliseconds.
type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	TTL       int64           `json:"ttl"`
}

// Cache stores JSON values with an expiry
type Cache struct {
	kv         kv.Store
	defaultTTL time.Duration
	now        func() time.Time
	logger     *zap.SugaredLogger
	metrics    *metrics.Metrics
}

// Option configures a Cache
type Option func(*Cache)

// WithTTL sets the default ttl
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithMetrics counts hits and misses
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache over store
func New(store kv.Store, opts ...Option) *Cache {
	c := &Cache{
		kv:         store,
		defaultTTL: DefaultTTL,
		now:        time.Now,
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set stores value under key. A zero ttl uses the default.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	raw, err := json.Marshal(entry{
		Data:      data,
		Timestamp: c.now().UnixMilli(),
		TTL:       ttl.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	if err := c.kv.Set(ctx, Prefix+key, string(raw)); err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

// Get decodes the cached value into out. It reports false for a missing,
// expired or unreadable entry; expired and unreadable entries are removed.
func (c *Cache) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := c.kv.Get(ctx, Prefix+key)
	if err != nil {
		return false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	if !ok {
		c.metrics.CacheLookup(false)
		return false, nil
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		c.logger.Warnw("Dropping unreadable cache entry", "key", key, "error", err)
		c.drop(ctx, key)
		c.metrics.CacheLookup(false)
		return false, nil
	}

	if c.now().UnixMilli()-e.Timestamp > e.TTL {
		c.drop(ctx, key)
		c.metrics.CacheLookup(false)
		return false, nil
	}

	if err := json.Unmarshal(e.Data, out); err != nil {
		c.logger.Warnw("Cache value has unexpected shape", "key", key, "error", err)
		c.metrics.CacheLookup(false)
		return false, nil
	}
	c.metrics.CacheLookup(true)
	return true, nil
}

// Delete removes one entry
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.kv.Delete(ctx, Prefix+key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// ClearAll removes every cache entry and leaves other keys alone
func (c *Cache) ClearAll(ctx context.Context) error {
	keys, err := c.kv.Keys(ctx, Prefix)
	if err != nil {
		return fmt.Errorf("failed to list cache entries: %w", err)
	}
	for _, k := range keys {
		if err := c.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("failed to delete cache entry: %w", err)
		}
	}
	c.logger.Debugw("Cleared cache", "entries", len(keys))
	return nil
}

func (c *Cache) drop(ctx context.Context, key string) {
	if err := c.Delete(ctx, key); err != nil {
		c.logger.Warnw("Failed to drop cache entry", "key", key, "error", err)
	}
}

// GenerateKey derives a stable key from a prompt, optionally scoped by mode.
// Keys match those written by the web client for the same prompt.
func GenerateKey(prompt, mode string) string {
	h := hashString(strings.ToLower(strings.TrimSpace(prompt)))
	if mode == "" {
		return h
	}
	return mode + "_" + h
}

// hashString is the 31-multiplier string hash over UTF-16 code units with
// int32 overflow, rendered as the absolute value in base 36
func hashString(s string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

// OfflineFallback returns a canned reply for when the service is unreachable
func OfflineFallback(prompt string) string {
	lower := strings.ToLower(prompt)
	if strings.Contains(lower, "nagaa") || strings.Contains(lower, "akkam") {
		return offlineGreeting
	}
	return offlineDefault
}
