package admin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"github.com/cartridge/prioreplay/internal/metrics"
	"github.com/cartridge/prioreplay/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.MemoryBackend) {
	t.Helper()

	reg := prometheus.NewRegistry()
	logger := zerolog.New(io.Discard)
	backend, err := storage.NewMemoryBackend(4, metrics.NewCollector(reg), logger)
	require.NoError(t, err)

	return NewServer(backend, reg, logger), backend
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	res := httptest.NewRecorder()
	h.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
	return res
}

func TestHealthAndStats(t *testing.T) {
	server, backend := newTestServer(t)
	routes := server.Routes()

	res := get(t, routes, "/healthz")
	assert.Equal(t, http.StatusOK, res.Code)

	ctx := context.Background()
	require.NoError(t, backend.Store(ctx, &storage.Transition{EnvID: "tictactoe"}))
	require.NoError(t, backend.Store(ctx, &storage.Transition{EnvID: "gridworld"}))

	res = get(t, routes, "/stats?env_id=tictactoe")
	require.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "application/json", res.Header().Get("Content-Type"))

	var payload statsPayload
	require.NoError(t, sonnet.Unmarshal(res.Body.Bytes(), &payload))
	assert.Equal(t, uint64(4), payload.Capacity)
	assert.Equal(t, uint64(2), payload.Size)
	assert.Equal(t, 2.0, payload.TotalPriority)
	assert.Equal(t, map[string]uint64{"tictactoe": 1}, payload.TransitionsByEnv)
}

func TestMetricsEndpoint(t *testing.T) {
	server, backend := newTestServer(t)
	require.NoError(t, backend.Store(context.Background(), &storage.Transition{}))

	res := get(t, server.Routes(), "/metrics")
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.True(t, strings.Contains(body, "replay_transitions_stored_total 1"), body)
	assert.Contains(t, body, "replay_buffer_size 1")
}

func TestClosedBackendIsUnavailable(t *testing.T) {
	server, backend := newTestServer(t)
	require.NoError(t, backend.Close())

	routes := server.Routes()
	assert.Equal(t, http.StatusServiceUnavailable, get(t, routes, "/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, routes, "/stats").Code)
}
