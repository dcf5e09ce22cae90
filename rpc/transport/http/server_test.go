package http

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/VictoriaMetrics/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsEndpoint(t *testing.T) {
	set := metrics.NewSet()
	set.GetOrCreateCounter(`skv_requests_total{cmd="get"}`).Add(3)

	a := NewAdminServer(set, nil, true)
	rec := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `skv_requests_total{cmd="get"} 3`)
}

func TestHealthEndpoint(t *testing.T) {
	var healthErr error
	a := NewAdminServer(nil, func() error { return healthErr }, false)

	rec := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	healthErr = errors.New("store closed")
	rec = httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "store closed")
}

func TestMethodNotAllowed(t *testing.T) {
	a := NewAdminServer(nil, nil, false)
	rec := httptest.NewRecorder()
	a.srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStartAndClose(t *testing.T) {
	a := NewAdminServer(metrics.NewSet(), nil, false)
	require.NoError(t, a.Start("127.0.0.1:0"))

	resp, err := http.Get("http://" + a.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.HasPrefix(string(body), "ok"))

	require.NoError(t, a.Close())
}

func TestLoggerMiddlewareCapturesStatus(t *testing.T) {
	var captured *responseWriter
	h := loggerMiddleware(func(w http.ResponseWriter, r *http.Request) {
		captured = w.(*responseWriter)
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, http.StatusTeapot, captured.statusCode)
}
