// Package cache stores search results in Redis keyed by index generation,
// so a reload makes every older entry unreachable even before Invalidate
// removes it.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/parser"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "symsearch:"

// Store is the subset of pkg/redis.Client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

func New(store Store, ttl time.Duration) *QueryCache {
	return &QueryCache{
		store:  store,
		ttl:    ttl,
		logger: slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, generation uint64, plan *parser.Plan, limit int) (*executor.SearchResult, bool) {
	key := BuildKey(generation, plan, limit)
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	// Raw differs between plans that normalize to the same key.
	result.Query = plan.Raw
	c.hits.Add(1)
	c.logger.Debug("cache hit", "query", plan.Raw, "key", key)
	return &result, true
}

func (c *QueryCache) Set(ctx context.Context, plan *parser.Plan, limit int, result *executor.SearchResult) {
	key := BuildKey(result.Generation, plan, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for plan at generation, or runs
// computeFn once per key no matter how many callers miss together. The
// computed result is stored under its own generation, which may be newer
// than the one asked for.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	plan *parser.Plan,
	limit int,
	computeFn func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, generation, plan, limit); ok {
		return result, true, nil
	}
	key := BuildKey(generation, plan, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, plan, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	shared := *val.(*executor.SearchResult)
	shared.Query = plan.Raw
	return &shared, false, nil
}

// Invalidate removes every cached result.
func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// BuildKey derives the cache key. Plans with equal normalized text, mode,
// and scope share a key.
func BuildKey(generation uint64, plan *parser.Plan, limit int) string {
	raw := fmt.Sprintf("%d\x00%s\x00%s\x00%s\x00%d", generation, plan.Mode, plan.Text, plan.Scope, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
