package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kha1n3vol3/BitaxePID/internal/lib"
	"github.com/kha1n3vol3/BitaxePID/internal/pools"
	"github.com/kha1n3vol3/BitaxePID/internal/stats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testCatalog = `- endpoint: stratum+tcp://a.example.com:3333
  fee: 0.5
  latency_ms: 25.5
  last_tested: 2026-08-23T10:00:00Z
- endpoint: stratum+tcp://dead.example.com:3333
  latency_ms: .inf
`

func newTestHandler(t *testing.T) (*gin.Engine, *stats.Registry) {
	t.Helper()
	log := lib.NewTestLogger()

	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))
	poolRegistry := pools.NewRegistry(path, 0, nil, log)
	require.NoError(t, poolRegistry.Load())

	registry := stats.NewRegistry(10)
	promReg := prometheus.NewRegistry()
	metrics := stats.NewMetrics(promReg)

	snapshot := stats.DeviceSnapshot{
		Device:    "AA:BB:CC:DD:EE:FF",
		Hostname:  "bitaxe1",
		Timestamp: time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC),
		Voltage:   1200,
		Frequency: 500,
		Temp:      43.5,
		Power:     14.2,
		Hashrate:  512.3,
	}
	registry.Publish(snapshot)
	metrics.Observe(snapshot)

	return NewHTTPHandler(registry, poolRegistry, promReg, log), registry
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	h.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doGet(t, h, "/healthcheck")

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "healthy", body["status"])
	require.NotEmpty(t, body["version"])
}

func TestGetMetrics(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doGet(t, h, "/metrics")

	require.Equal(t, http.StatusOK, w.Code)
	var body []stats.DeviceSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
	require.Equal(t, "bitaxe1", body[0].Hostname)
	require.Equal(t, 512.3, body[0].Hashrate)
}

func TestGetHistory(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doGet(t, h, "/metrics/history")

	require.Equal(t, http.StatusOK, w.Code)
	var body []stats.DeviceSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body, 1)
}

func TestGetPoolsOmitsUnreachableLatency(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doGet(t, h, "/pools")

	require.Equal(t, http.StatusOK, w.Code)
	var rows []PoolRow
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	require.Len(t, rows, 2)

	require.Equal(t, "stratum+tcp://a.example.com:3333", rows[0].Endpoint)
	require.NotNil(t, rows[0].LatencyMS)
	require.Equal(t, 25.5, *rows[0].LatencyMS)
	require.NotNil(t, rows[0].LastTested)

	// unreachable endpoints are listed without a latency figure
	require.Equal(t, "stratum+tcp://dead.example.com:3333", rows[1].Endpoint)
	require.Nil(t, rows[1].LatencyMS)
}

func TestPrometheusEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	w := doGet(t, h, "/metrics/prometheus")

	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "bitaxepid_hashrate_ghs"))
	require.True(t, strings.Contains(w.Body.String(), "bitaxepid_temperature_celsius"))
}
