package executor

import (
	"context"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/tracing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newExecutor(t *testing.T) (*Executor, *symbolindex.Holder) {
	t.Helper()
	idx, err := symbolindex.Build([]symbolindex.Record{
		{DisplayName: "Ship", Targets: []symbolindex.Target{
			{Scope: "Ship", Reference: "../class_ship.html"},
			{Scope: "Ship::Ship()", Reference: "../class_ship.html#a1836"},
		}},
		{DisplayName: "shipLength", Targets: []symbolindex.Target{
			{Scope: "Game::shipLength()", Reference: "../class_game.html#af447"},
			{Scope: "GameImpl::shipLength()", Reference: "../class_game_impl.html#aa3b7"},
		}},
		{DisplayName: "shipName", Targets: []symbolindex.Target{{Scope: "Game::shipName()", Reference: "../class_game.html#aa652"}}},
		{DisplayName: "placeShip", Targets: []symbolindex.Target{{Scope: "Board::placeShip()", Reference: "../class_board.html#a1"}}},
		{DisplayName: "Board", Targets: []symbolindex.Target{{Scope: "Board", Reference: "../class_board.html"}}},
	})
	require.NoError(t, err)
	h := symbolindex.NewHolder()
	_, err = h.Publish(idx)
	require.NoError(t, err)
	return New(h), h
}

func hitKeys(r *SearchResult) []string {
	out := make([]string, len(r.Results))
	for i, h := range r.Results {
		out[i] = h.Key
	}
	return out
}

func TestExecutePrefix(t *testing.T) {
	e, _ := newExecutor(t)
	res, err := e.Execute(context.Background(), parser.Parse("Ship", ""), 10)
	require.NoError(t, err)

	assert.Equal(t, []string{"ship", "shipname", "shiplength"}, hitKeys(res))
	assert.Equal(t, 3, res.TotalHits)
	assert.Equal(t, uint64(1), res.Generation)
	assert.Equal(t, parser.ModePrefix, res.Mode)
	assert.Len(t, res.Results[0].Targets, 2)
}

func TestExecuteSubstringWithLimit(t *testing.T) {
	e, _ := newExecutor(t)
	res, err := e.Execute(context.Background(), parser.Parse("ship", "substring"), 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"ship", "shipname"}, hitKeys(res))
	assert.Equal(t, 4, res.TotalHits)
}

func TestExecuteScopeFilter(t *testing.T) {
	e, _ := newExecutor(t)
	res, err := e.Execute(context.Background(), parser.Parse("ship in:GameImpl", ""), 10)
	require.NoError(t, err)

	require.Equal(t, []string{"shiplength"}, hitKeys(res))
	assert.Equal(t, []symbolindex.Target{{Scope: "GameImpl::shipLength()", Reference: "../class_game_impl.html#aa3b7"}}, res.Results[0].Targets)
	assert.Equal(t, 1, res.TotalHits)
	assert.Equal(t, "gameimpl", res.Scope)

	// the filter must not leak into the index
	again, err := e.Execute(context.Background(), parser.Parse("shiplength", ""), 10)
	require.NoError(t, err)
	assert.Len(t, again.Results[0].Targets, 2)
}

func TestExecuteEmptyTextReturnsWholeIndex(t *testing.T) {
	e, _ := newExecutor(t)
	res, err := e.Execute(context.Background(), parser.Parse("", ""), 0)
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalHits)
	assert.Equal(t, []string{"ship", "board", "shipname", "placeship", "shiplength"}, hitKeys(res))
}

func TestExecuteNoMatch(t *testing.T) {
	e, _ := newExecutor(t)
	res, err := e.Execute(context.Background(), parser.Parse("zzz", "substring"), 10)
	require.NoError(t, err)
	assert.Zero(t, res.TotalHits)
	assert.NotNil(t, res.Results)
	assert.Empty(t, res.Results)
}

func TestExecuteNotReady(t *testing.T) {
	e := New(symbolindex.NewHolder())
	_, err := e.Execute(context.Background(), parser.Parse("ship", ""), 10)
	assert.ErrorIs(t, err, apperrors.ErrIndexNotReady)
	assert.Equal(t, 503, apperrors.HTTPStatusCode(err))

	_, _, err = e.Lookup(context.Background(), "ship")
	assert.ErrorIs(t, err, apperrors.ErrIndexNotReady)
	assert.False(t, e.Stats().Ready)
}

func TestExecuteSeesNewGeneration(t *testing.T) {
	e, h := newExecutor(t)
	idx, err := symbolindex.Build([]symbolindex.Record{
		{DisplayName: "Shipyard", Targets: []symbolindex.Target{{Reference: "../yard.html"}}},
	})
	require.NoError(t, err)
	_, err = h.Publish(idx)
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), parser.Parse("ship", ""), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"shipyard"}, hitKeys(res))
	assert.Equal(t, uint64(2), res.Generation)
}

func TestLookup(t *testing.T) {
	e, _ := newExecutor(t)
	hit, gen, err := e.Lookup(context.Background(), "SHIPNAME")
	require.NoError(t, err)
	assert.Equal(t, "shipName", hit.DisplayName)
	assert.Equal(t, uint64(1), gen)

	_, _, err = e.Lookup(context.Background(), "ship name")
	assert.ErrorIs(t, err, apperrors.ErrSymbolNotFound)
	assert.Equal(t, 404, apperrors.HTTPStatusCode(err))
}

func TestStats(t *testing.T) {
	e, _ := newExecutor(t)
	s := e.Stats()
	assert.True(t, s.Ready)
	assert.Equal(t, 5, s.Entries)
	assert.Equal(t, 7, s.Targets)
	assert.False(t, s.LoadedAt.IsZero())
}

func TestExecuteRecordsSpan(t *testing.T) {
	e, _ := newExecutor(t)
	ctx, root := tracing.StartSpan(context.Background(), "test", "trace-1")
	_, err := e.Execute(ctx, parser.Parse("ship", ""), 10)
	require.NoError(t, err)

	require.Len(t, root.Children, 1)
	child := root.Children[0]
	assert.Equal(t, "executor.execute", child.Name)
	assert.Equal(t, 3, child.Attrs["total_hits"])
}
