// Package rpc exposes the searcher over the internal JSON-over-TCP RPC
// layer as SymbolService.
package rpc

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer/reload"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/grpc"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/proto"
)

type Service struct {
	executor   handler.QueryExecutor
	reloader   handler.Reloader
	maxResults int
	adminToken string
}

type Option func(*Service)

// WithAdminToken requires Reload callers to present token. An empty token
// leaves Reload open, matching the HTTP admin routes.
func WithAdminToken(token string) Option {
	return func(s *Service) { s.adminToken = token }
}

// New builds the service. reloader may be nil, in which case Reload
// reports the feature as unavailable.
func New(exec handler.QueryExecutor, reloader handler.Reloader, maxResults int, opts ...Option) *Service {
	if maxResults <= 0 {
		maxResults = 200
	}
	svc := &Service{executor: exec, reloader: reloader, maxResults: maxResults}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Register adds every SymbolService method to s.
func (svc *Service) Register(s *grpc.Server) {
	s.Register(proto.MethodSearch, handle(svc.Search))
	s.Register(proto.MethodLookup, handle(svc.Lookup))
	s.Register(proto.MethodStats, handle(func(context.Context, *proto.StatsRequest) (*proto.StatsResponse, error) {
		return svc.Stats(), nil
	}))
	s.Register(proto.MethodReload, handle(svc.Reload))
	s.Register(proto.MethodHealth, handle(func(context.Context, *struct{}) (*proto.HealthCheckResponse, error) {
		if !svc.executor.Stats().Ready {
			return &proto.HealthCheckResponse{Status: "NOT_SERVING"}, nil
		}
		return &proto.HealthCheckResponse{Status: "SERVING"}, nil
	}))
}

// handle decodes params into Req before calling fn.
func handle[Req, Resp any](fn func(context.Context, *Req) (*Resp, error)) grpc.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		req := new(Req)
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, req); err != nil {
				return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding params: %v", err)
			}
		}
		return fn(ctx, req)
	}
}

func (svc *Service) Search(ctx context.Context, req *proto.SearchRequest) (*proto.SearchResponse, error) {
	start := time.Now()
	if req.Limit < 0 {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must not be negative")
	}
	limit := min(int(req.Limit), svc.maxResults)
	plan := parser.Parse(req.Query, req.Mode)
	result, err := svc.executor.Execute(ctx, plan, limit)
	if err != nil {
		return nil, err
	}
	resp := &proto.SearchResponse{
		Query:      result.Query,
		Mode:       string(result.Mode),
		Scope:      result.Scope,
		Generation: result.Generation,
		TotalHits:  int32(result.TotalHits),
		Results:    make([]proto.Symbol, len(result.Results)),
	}
	for i, hit := range result.Results {
		resp.Results[i] = toSymbol(hit)
	}
	resp.LatencyMicros = time.Since(start).Microseconds()
	return resp, nil
}

func (svc *Service) Lookup(ctx context.Context, req *proto.LookupRequest) (*proto.LookupResponse, error) {
	hit, generation, err := svc.executor.Lookup(ctx, req.Name)
	if err != nil {
		return nil, err
	}
	return &proto.LookupResponse{Generation: generation, Symbol: toSymbol(*hit)}, nil
}

func (svc *Service) Stats() *proto.StatsResponse {
	stats := svc.executor.Stats()
	resp := &proto.StatsResponse{
		Ready:      stats.Ready,
		Generation: stats.Generation,
		Entries:    int64(stats.Entries),
		Targets:    int64(stats.Targets),
	}
	if !stats.LoadedAt.IsZero() {
		resp.LoadedAt = stats.LoadedAt.Unix()
	}
	return resp
}

func (svc *Service) Reload(ctx context.Context, req *proto.ReloadRequest) (*proto.ReloadResponse, error) {
	if svc.adminToken != "" && subtle.ConstantTimeCompare([]byte(req.Token), []byte(svc.adminToken)) != 1 {
		return nil, apperrors.New(apperrors.ErrUnauthorized, http.StatusUnauthorized, "invalid or missing admin token")
	}
	if svc.reloader == nil {
		return nil, apperrors.New(apperrors.ErrInternal, http.StatusServiceUnavailable, "reloading is disabled")
	}
	v, err := svc.reloader.Reload(ctx, reload.TriggerManual)
	if err != nil {
		return nil, err
	}
	return &proto.ReloadResponse{
		Generation: v.Generation,
		Entries:    int64(v.Index.Len()),
		Targets:    int64(v.Index.TargetCount()),
	}, nil
}

func toSymbol(hit executor.Hit) proto.Symbol {
	targets := make([]proto.Target, len(hit.Targets))
	for i, t := range hit.Targets {
		targets[i] = proto.Target{Scope: t.Scope, Reference: t.Reference}
	}
	return proto.Symbol{Key: hit.Key, DisplayName: hit.DisplayName, Targets: targets}
}
