package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kirja/pkg/inventory"
)

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	d, err := NewDaemon(Config{
		Interval: time.Hour,
		Kinds:    []inventory.Kind{inventory.KindBucket},
		Runner:   &fakeRunner{},
	})
	require.NoError(t, err)
	return d
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandleHealthz(t *testing.T) {
	w := get(t, newTestDaemon(t).Handler(nil), "/healthz")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestHandleReadyz_BeforeAndAfterFirstPass(t *testing.T) {
	d := newTestDaemon(t)
	h := d.Handler(nil)

	w := get(t, h, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	d.runAll(context.Background())

	w = get(t, h, "/readyz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestHandleHealth_JSON(t *testing.T) {
	d := newTestDaemon(t)
	d.runAll(context.Background())

	w := get(t, d.Handler(nil), "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var health HealthStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, int64(1), health.Runs)
}

func TestHandler_MetricsMountedWhenGiven(t *testing.T) {
	d := newTestDaemon(t)

	w := get(t, d.Handler(nil), "/metrics")
	assert.Equal(t, http.StatusNotFound, w.Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("kirja_records_total 3\n"))
	})
	w = get(t, d.Handler(metrics), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "kirja_records_total")
}
