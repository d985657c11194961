package reload

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/indexer/source"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/internal/symbolindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symbol-Search-Service/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   int
	results []func() ([]symbolindex.Record, error)
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Records(context.Context) ([]symbolindex.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := min(f.calls, len(f.results)-1)
	f.calls++
	return f.results[i]()
}

func records(names ...string) func() ([]symbolindex.Record, error) {
	return func() ([]symbolindex.Record, error) {
		out := make([]symbolindex.Record, len(names))
		for i, n := range names {
			out[i] = symbolindex.Record{DisplayName: n, Targets: []symbolindex.Target{{Reference: n + ".html"}}}
		}
		return out, nil
	}
}

func fail(err error) func() ([]symbolindex.Record, error) {
	return func() ([]symbolindex.Record, error) { return nil, err }
}

type countingCache struct{ n atomic.Int32 }

func (c *countingCache) Invalidate(context.Context) error {
	c.n.Add(1)
	return nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []any
}

func (t *recordingTracker) Track(e any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func fastRetry() Option { return WithRetry(3, time.Millisecond) }

func TestReloadPublishes(t *testing.T) {
	holder := symbolindex.NewHolder()
	src := &fakeSource{results: []func() ([]symbolindex.Record, error){records("Ship", "Board"), records("Game")}}
	cache := &countingCache{}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	tracker := &recordingTracker{}
	r := New(holder, src, WithCache(cache), WithMetrics(m), WithTracker(tracker), fastRetry())

	v, err := r.Reload(context.Background(), TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v.Generation)
	assert.Equal(t, 2, v.Index.Len())

	v, err = r.Reload(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.Generation)
	assert.Same(t, v.Index, holder.Current().Index)

	assert.Equal(t, int32(2), cache.n.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexEntries))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexGeneration))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexReloadsTotal.WithLabelValues(TriggerManual, "success")))
	require.Len(t, tracker.events, 2)
	assert.Equal(t, TriggerStartup, tracker.events[0].(analytics.ReloadEvent).Trigger)
}

func TestReloadFailureKeepsCurrentIndex(t *testing.T) {
	holder := symbolindex.NewHolder()
	src := &fakeSource{results: []func() ([]symbolindex.Record, error){
		records("Ship"),
		records(""), // empty display name
	}}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	tracker := &recordingTracker{}
	r := New(holder, src, WithMetrics(m), WithTracker(tracker), fastRetry())

	first, err := r.Reload(context.Background(), TriggerStartup)
	require.NoError(t, err)

	_, err = r.Reload(context.Background(), TriggerWatch)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMalformedEntry)
	assert.Equal(t, 2, src.calls, "malformed input must not be retried")

	cur := holder.Current()
	assert.Same(t, first.Index, cur.Index)
	assert.Equal(t, uint64(1), cur.Generation)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexReloadsTotal.WithLabelValues(TriggerWatch, "failure")))
	assert.False(t, tracker.events[1].(analytics.ReloadEvent).Success)
}

func TestReloadRetriesTransientFailures(t *testing.T) {
	holder := symbolindex.NewHolder()
	src := &fakeSource{results: []func() ([]symbolindex.Record, error){
		fail(errors.New("connection reset")),
		fail(errors.New("connection reset")),
		records("Ship"),
	}}
	r := New(holder, src, fastRetry())

	v, err := r.Reload(context.Background(), TriggerStartup)
	require.NoError(t, err)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, uint64(1), v.Generation)
}

func TestReloadGivesUp(t *testing.T) {
	holder := symbolindex.NewHolder()
	src := &fakeSource{results: []func() ([]symbolindex.Record, error){fail(errors.New("disk gone"))}}
	r := New(holder, src, fastRetry())

	_, err := r.Reload(context.Background(), TriggerStartup)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSourceFailed)
	assert.Equal(t, 3, src.calls)
	assert.False(t, holder.Ready())
}

func TestHandleNotification(t *testing.T) {
	holder := symbolindex.NewHolder()
	src := &fakeSource{results: []func() ([]symbolindex.Record, error){records("Ship")}}
	r := New(holder, src, fastRetry())
	handle := r.HandleNotification()

	value, err := json.Marshal(indexer.IndexPublished{Source: "dir:docs", Entries: 1, PublishedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, handle(context.Background(), nil, value))
	assert.Equal(t, uint64(1), holder.Current().Generation)

	require.NoError(t, handle(context.Background(), nil, []byte("garbage")))
	assert.Equal(t, uint64(1), holder.Current().Generation)
}

const searchData = `var searchData=[['ship',['Ship',['../class_ship.html',1,'Ship']]]];`

const searchDataV2 = `var searchData=[
  ['ship',['Ship',['../class_ship.html',1,'Ship']]],
  ['shipname',['shipName',['../class_game.html#aa652',1,'Game::shipName()']]]
];`

func TestWatchReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "all_s.js")
	require.NoError(t, os.WriteFile(path, []byte(searchData), 0o644))

	holder := symbolindex.NewHolder()
	r := New(holder, source.NewFile(path), fastRetry())
	_, err := r.Reload(context.Background(), TriggerStartup)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, path, 20*time.Millisecond) }()

	// give the watcher time to register before writing
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.js"), []byte("x"), 0o644))
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(searchDataV2), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	assert.Eventually(t, func() bool {
		return holder.Current().Index.Len() == 2
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(2), holder.Current().Generation)

	// a broken rewrite leaves the last good index in place
	require.NoError(t, os.WriteFile(path, []byte("var searchData=[['x',"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2, holder.Current().Index.Len())

	cancel()
	require.NoError(t, <-done)
}

func TestWatchMissingPath(t *testing.T) {
	r := New(symbolindex.NewHolder(), source.NewFile("nope"))
	err := r.Watch(context.Background(), filepath.Join(t.TempDir(), "missing"), 0)
	assert.Error(t, err)
}
