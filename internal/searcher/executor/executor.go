// Package executor runs parsed plans against the active symbol index.
package executor

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/tracing"
)

// DefaultLimit applies when Execute is called with a non-positive limit.
const DefaultLimit = 20

// cancelCheckEvery is how many matches are consumed between context checks.
const cancelCheckEvery = 1024

// Hit is one matching entry, with targets already filtered by scope.
type Hit struct {
	Key         string               `json:"key"`
	DisplayName string               `json:"display_name"`
	Targets     []symbolindex.Target `json:"targets"`
}

type SearchResult struct {
	Query      string      `json:"query"`
	Mode       parser.Mode `json:"mode"`
	Scope      string      `json:"scope,omitempty"`
	Generation uint64      `json:"generation"`
	TotalHits  int         `json:"total_hits"`
	Results    []Hit       `json:"results"`
}

// IndexStats describes the active index.
type IndexStats struct {
	Ready      bool      `json:"ready"`
	Generation uint64    `json:"generation"`
	Entries    int       `json:"entries"`
	Targets    int       `json:"targets"`
	LoadedAt   time.Time `json:"loaded_at,omitzero"`
}

type Executor struct {
	holder *symbolindex.Holder
	logger *slog.Logger
}

func New(holder *symbolindex.Holder) *Executor {
	return &Executor{
		holder: holder,
		logger: slog.Default().With("component", "query-executor"),
	}
}

var errNotReady = apperrors.New(apperrors.ErrIndexNotReady, http.StatusServiceUnavailable, "no symbol index has been loaded")

// Execute runs plan against the current index. Results hold at most limit
// hits in index order; TotalHits counts every match that survives the scope
// filter. The whole query sees a single index generation even if a reload
// lands meanwhile.
func (e *Executor) Execute(ctx context.Context, plan *parser.Plan, limit int) (*SearchResult, error) {
	ctx, span := tracing.StartChildSpan(ctx, "executor.execute")
	defer span.End()

	v := e.holder.Current()
	if v.Index == nil {
		return nil, errNotReady
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	seq := v.Index.Query(plan.Text)
	if plan.Mode == parser.ModeSubstring {
		seq = v.Index.SubstringSearch(plan.Text)
	}

	result := &SearchResult{
		Query:      plan.Raw,
		Mode:       plan.Mode,
		Scope:      plan.Scope,
		Generation: v.Generation,
		Results:    make([]Hit, 0, min(limit, 32)),
	}
	for entry := range seq {
		targets := entry.Targets
		if plan.Scope != "" {
			targets = filterTargets(plan, targets)
			if len(targets) == 0 {
				continue
			}
		}
		result.TotalHits++
		if len(result.Results) < limit {
			result.Results = append(result.Results, Hit{
				Key:         entry.Key,
				DisplayName: entry.DisplayName,
				Targets:     targets,
			})
		}
		if result.TotalHits%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, apperrors.Newf(apperrors.ErrTimeout, http.StatusGatewayTimeout,
					"query %q abandoned after %d matches: %v", plan.Raw, result.TotalHits, err)
			}
		}
	}

	span.SetAttr("mode", string(plan.Mode))
	span.SetAttr("generation", v.Generation)
	span.SetAttr("total_hits", result.TotalHits)
	e.logger.Debug("query executed",
		"query", plan.Raw,
		"text", plan.Text,
		"mode", plan.Mode,
		"scope", plan.Scope,
		"generation", v.Generation,
		"total_hits", result.TotalHits,
		"returned", len(result.Results),
	)
	return result, nil
}

// Lookup returns the entry whose key equals the normalized name.
func (e *Executor) Lookup(ctx context.Context, name string) (*Hit, uint64, error) {
	_, span := tracing.StartChildSpan(ctx, "executor.lookup")
	defer span.End()

	v := e.holder.Current()
	if v.Index == nil {
		return nil, 0, errNotReady
	}
	entry, ok := v.Index.Get(name)
	if !ok {
		return nil, v.Generation, apperrors.Newf(apperrors.ErrSymbolNotFound, http.StatusNotFound,
			"no symbol named %q", name)
	}
	return &Hit{Key: entry.Key, DisplayName: entry.DisplayName, Targets: entry.Targets}, v.Generation, nil
}

// Stats reports the size and generation of the active index.
func (e *Executor) Stats() IndexStats {
	v := e.holder.Current()
	if v.Index == nil {
		return IndexStats{}
	}
	return IndexStats{
		Ready:      true,
		Generation: v.Generation,
		Entries:    v.Index.Len(),
		Targets:    v.Index.TargetCount(),
		LoadedAt:   v.LoadedAt,
	}
}

func filterTargets(plan *parser.Plan, targets []symbolindex.Target) []symbolindex.Target {
	kept := targets[:0]
	for _, t := range targets {
		if plan.MatchesScope(t.Scope) {
			kept = append(kept, t)
		}
	}
	return kept
}
