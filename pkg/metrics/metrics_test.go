package metrics

import (
	"context"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithRegistryRegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)

	m.IndexGeneration.Set(4)
	m.SymbolQueriesTotal.WithLabelValues("prefix", "hit").Inc()

	assert.Equal(t, 4.0, testutil.ToFloat64(m.IndexGeneration))
	n, err := testutil.GatherAndCount(reg, "symbol_index_generation", "symbol_queries_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStartServerReportsBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	shutdown, err := StartServer(ln.Addr().(*net.TCPAddr).Port)
	assert.Error(t, err)
	assert.Nil(t, shutdown)
}

func TestStartServerShutdown(t *testing.T) {
	shutdown, err := StartServer(0)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
