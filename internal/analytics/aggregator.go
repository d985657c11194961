package analytics

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/kafka"
)

// latencyWindow bounds how many recent latencies feed the percentiles.
const latencyWindow = 10000

const topQueries = 10

type AggregatedStats struct {
	TotalQueries        int64            `json:"total_queries"`
	QueriesByMode       map[string]int64 `json:"queries_by_mode"`
	CacheHits           int64            `json:"cache_hits"`
	CacheMisses         int64            `json:"cache_misses"`
	ZeroResultCount     int64            `json:"zero_result_count"`
	AvgLatencyMicros    float64          `json:"avg_latency_us"`
	P50LatencyMicros    int64            `json:"p50_latency_us"`
	P95LatencyMicros    int64            `json:"p95_latency_us"`
	P99LatencyMicros    int64            `json:"p99_latency_us"`
	TopQueries          []QueryCount     `json:"top_queries"`
	ZeroResultQueries   []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute    float64          `json:"queries_per_minute"`
	Reloads             int64            `json:"reloads"`
	FailedReloads       int64            `json:"failed_reloads"`
	LastReloadAt        time.Time        `json:"last_reload_at,omitzero"`
	LastGeneration      uint64           `json:"last_generation"`
	LastReloadEntries   int              `json:"last_reload_entries"`
	LastReloadTargets   int              `json:"last_reload_targets"`
	LastReloadLatencyMs int64            `json:"last_reload_latency_ms"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals over query and reload events. It is safe
// for concurrent use.
type Aggregator struct {
	mu                sync.Mutex
	totalQueries      int64
	byMode            map[string]int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	reloads           int64
	failedReloads     int64
	lastReload        ReloadEvent
	startTime         time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byMode:            make(map[string]int64),
		latencies:         make([]int64, 0, latencyWindow),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// Track records event directly, for processes that aggregate their own
// events without going through Kafka.
func (a *Aggregator) Track(event any) {
	switch e := event.(type) {
	case QueryEvent:
		a.recordQuery(e)
	case ReloadEvent:
		a.recordReload(e)
	default:
		a.logger.Warn("ignoring unknown analytics event", "type", fmt.Sprintf("%T", event))
	}
}

// HandleEvent returns a Kafka MessageHandler feeding the aggregator. Events
// that cannot be decoded are logged and skipped so one bad message does not
// stall the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		var envelope struct {
			Type EventType `json:"type"`
		}
		if err := json.Unmarshal(value, &envelope); err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		switch envelope.Type {
		case EventQuery:
			event, err := kafka.DecodeJSON[QueryEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode query event", "error", err)
				return nil
			}
			agg.recordQuery(event)
		case EventReload:
			event, err := kafka.DecodeJSON[ReloadEvent](value)
			if err != nil {
				agg.logger.Error("failed to decode reload event", "error", err)
				return nil
			}
			agg.recordReload(event)
		default:
			agg.logger.Warn("ignoring analytics event", "type", envelope.Type, "key", string(key))
		}
		return nil
	}
}

func (a *Aggregator) recordQuery(event QueryEvent) {
	query := event.Text
	if query == "" {
		query = event.Query
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalQueries++
	a.byMode[event.Mode]++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, event.LatencyMicros)
	} else {
		a.latencies[a.latencyNext] = event.LatencyMicros
		a.latencyNext = (a.latencyNext + 1) % latencyWindow
	}
	a.queryCounts[query]++
	if event.TotalHits == 0 {
		a.zeroResults++
		a.zeroResultQueries[query]++
	}
}

func (a *Aggregator) recordReload(event ReloadEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !event.Success {
		a.failedReloads++
		return
	}
	a.reloads++
	if event.Generation >= a.lastReload.Generation {
		a.lastReload = event
	}
}

// Restore seeds the counters from a previously saved snapshot so totals
// survive restarts. Percentiles and per-query counts start fresh except for
// the top lists carried in the snapshot.
func (a *Aggregator) Restore(stats AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalQueries += stats.TotalQueries
	for mode, n := range stats.QueriesByMode {
		a.byMode[mode] += n
	}
	a.cacheHits += stats.CacheHits
	a.cacheMisses += stats.CacheMisses
	a.zeroResults += stats.ZeroResultCount
	for _, q := range stats.TopQueries {
		a.queryCounts[q.Query] += q.Count
	}
	for _, q := range stats.ZeroResultQueries {
		a.zeroResultQueries[q.Query] += q.Count
	}
	a.reloads += stats.Reloads
	a.failedReloads += stats.FailedReloads
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalQueries:        a.totalQueries,
		QueriesByMode:       make(map[string]int64, len(a.byMode)),
		CacheHits:           a.cacheHits,
		CacheMisses:         a.cacheMisses,
		ZeroResultCount:     a.zeroResults,
		Reloads:             a.reloads,
		FailedReloads:       a.failedReloads,
		LastReloadAt:        a.lastReload.Timestamp,
		LastGeneration:      a.lastReload.Generation,
		LastReloadEntries:   a.lastReload.Entries,
		LastReloadTargets:   a.lastReload.Targets,
		LastReloadLatencyMs: a.lastReload.LatencyMs,
	}
	for mode, n := range a.byMode {
		stats.QueriesByMode[mode] = n
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMicros = float64(sum) / float64(len(sorted))
		stats.P50LatencyMicros = percentile(sorted, 50)
		stats.P95LatencyMicros = percentile(sorted, 95)
		stats.P99LatencyMicros = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, topQueries)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, topQueries)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalQueries) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN returns the n most frequent queries, ties broken alphabetically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	slices.SortFunc(result, func(a, b QueryCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Query, b.Query)
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
