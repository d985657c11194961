package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWorstStatusWins(t *testing.T) {
	var ready atomic.Bool
	c := NewChecker()
	c.Register("index", ReadyCheck(ready.Load, "no index loaded"))
	c.Register("redis", Optional(PingCheck(func(context.Context) error { return errors.New("dial tcp: refused") })))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "no index loaded", report.Components["index"].Message)

	ready.Store(true)
	report = c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, StatusUp, report.Components["index"].Status)
	assert.Equal(t, StatusDegraded, report.Components["redis"].Status)
}

func TestReadyHandler(t *testing.T) {
	var ready atomic.Bool
	c := NewChecker()
	c.Register("index", ReadyCheck(ready.Load, "no index loaded"))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready.Store(true)
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUp, report.Status)
}

func TestLiveHandlerIgnoresChecks(t *testing.T) {
	c := NewChecker()
	c.Register("broken", PingCheck(func(context.Context) error { return errors.New("down") }))

	rec := httptest.NewRecorder()
	c.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
