// Command loadtest drives the search service with symbol queries over HTTP
// or the internal RPC transport and reports throughput and latency.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-rpc localhost:9000] [-concurrency 10] [-duration 30s]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/proto"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	RPCAddr     string
	Concurrency int
	Duration    time.Duration
	Queries     []query
}

type query struct {
	text string
	mode string
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	zeroResults   atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

// defaultQueries mixes short prefixes, exact names, scoped queries, and
// substring probes the way a documentation search box is used.
var defaultQueries = []query{
	{"s", "prefix"},
	{"sh", "prefix"},
	{"ship", "prefix"},
	{"shipname", "prefix"},
	{"string", "prefix"},
	{"stringmaker", "prefix"},
	{"section in:Catch", "prefix"},
	{"matcher", "substring"},
	{"name", "substring"},
	{"length in:Game", "substring"},
	{"::", "substring"},
	{"nothing-matches-this", "prefix"},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	rpcAddr := flag.String("rpc", "", "RPC address; when set, queries use the RPC transport instead of HTTP")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		RPCAddr:     *rpcAddr,
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     defaultQueries,
	}

	target := cfg.BaseURL
	if cfg.RPCAddr != "" {
		target = "rpc://" + cfg.RPCAddr
	}
	fmt.Println("=== Symbol Search Load Test ===")
	fmt.Printf("Target:      %s\n", target)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	stats, err := runLoadTest(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}
	printReport(stats, cfg.Duration)
}

// searchFunc runs one query and returns an HTTP-style status code.
type searchFunc func(ctx context.Context, q query) (int, error)

func runLoadTest(cfg Config) (*Stats, error) {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		search, closeFn, err := newSearchFunc(cfg, stats)
		if err != nil {
			return nil, err
		}
		g.Go(func() error {
			defer closeFn()
			queryIdx := w
			for ctx.Err() == nil {
				q := cfg.Queries[queryIdx%len(cfg.Queries)]
				queryIdx++

				start := time.Now()
				status, err := search(ctx, q)
				if ctx.Err() != nil {
					return nil
				}
				stats.RecordRequest(time.Since(start), status, err)
			}
			return nil
		})
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	err := g.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats, err
}

func newSearchFunc(cfg Config, stats *Stats) (searchFunc, func(), error) {
	if cfg.RPCAddr != "" {
		client, err := grpc.Dial(cfg.RPCAddr)
		if err != nil {
			return nil, nil, err
		}
		return func(ctx context.Context, q query) (int, error) {
			var resp proto.SearchResponse
			err := client.Call(ctx, proto.MethodSearch, proto.SearchRequest{Query: q.text, Mode: q.mode, Limit: 10}, &resp)
			var remote *grpc.RemoteError
			if errors.As(err, &remote) {
				return remote.Code, nil
			}
			if err != nil {
				return 0, err
			}
			if resp.TotalHits == 0 {
				stats.zeroResults.Add(1)
			}
			return http.StatusOK, nil
		}, func() { client.Close() }, nil
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        2,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return func(ctx context.Context, q query) (int, error) {
		searchURL := fmt.Sprintf("%s/api/v1/symbols/search?q=%s&mode=%s&limit=10",
			cfg.BaseURL, url.QueryEscape(q.text), q.mode)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
		if err != nil {
			return 0, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()
		var result struct {
			TotalHits int `json:"total_hits"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && resp.StatusCode == http.StatusOK && result.TotalHits == 0 {
			stats.zeroResults.Add(1)
		}
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}, client.CloseIdleConnections, nil
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errCount := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errCount)
	fmt.Printf("Zero results:    %d\n", stats.zeroResults.Load())

	if total > 0 {
		errorRate := float64(errCount) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
