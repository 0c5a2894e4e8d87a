package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cryptopredict/internal/api/handlers"
	"github.com/wonny/cryptopredict/internal/brain"
	"github.com/wonny/cryptopredict/internal/contracts"
	"github.com/wonny/cryptopredict/internal/data/memory"
	"github.com/wonny/cryptopredict/internal/layers"
	"github.com/wonny/cryptopredict/internal/marketdata"
	"github.com/wonny/cryptopredict/internal/persona"
	"github.com/wonny/cryptopredict/internal/policy"
	"github.com/wonny/cryptopredict/internal/scope"
	"github.com/wonny/cryptopredict/pkg/logger"
	"github.com/wonny/cryptopredict/pkg/metrics"
)

func newTestRouter(t *testing.T, checks map[string]HealthCheck) (http.Handler, *metrics.Recorder) {
	t.Helper()
	log := logger.Nop()

	store := memory.NewWatchlistStore(&contracts.WatchlistContext{
		ID:     "default",
		Name:   "Majors",
		Assets: []string{"BTC", "ETH", "SOL"},
	})
	history := memory.NewRunStore()
	adapter := persona.NewAdapter(history, log)
	cfg := policy.Default()

	orch, err := brain.NewOrchestrator(brain.Deps{
		Resolver:   scope.NewResolver(store, log),
		Provider:   marketdata.NewSyntheticProvider(marketdata.DefaultCatalog()),
		Evaluators: layers.NewChain(cfg, log, nil),
		History:    history,
		Adapter:    adapter,
		Policy:     cfg,
		PolicyHash: "testhash",
	}, log)
	require.NoError(t, err)

	rec := metrics.New()
	router := NewRouter(RouterDeps{
		Analysis: handlers.NewAnalysisHandler(orch, history, adapter, log),
		Stream:   handlers.NewStreamHub(adapter, log),
		Metrics:  rec,
		Checks:   checks,
	}, log)
	return router, rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantBody   string
	}{
		{"no checks", nil, http.StatusOK, "ok"},
		{"passing check", map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		}, http.StatusOK, "ok"},
		{"failing check", map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, tt.checks)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body["status"])
			assert.Equal(t, "cryptopredict-api", body["service"])
		})
	}
}

func TestRouter_AnalysisAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/analysis", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var p persona.Projection
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.Equal(t, "default", p.Context.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/"+p.RunID, nil)
	req.Header.Set(handlers.HeaderPersona, "admin")
	req.Header.Set(handlers.HeaderUserID, "root")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `route="/api/analysis"`), "analysis route should be labelled by template")
	assert.True(t, strings.Contains(body, `route="/api/runs/{id}"`), "run ids must not leak into labels")
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/analysis", http.StatusMethodNotAllowed},
		{http.MethodDelete, "/api/runs/run_1", http.StatusMethodNotAllowed},
		{http.MethodPut, "/api/contexts/default/runs", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := recoveryMiddleware(logger.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	sw.WriteHeader(http.StatusTeapot)
	sw.WriteHeader(http.StatusOK)
	assert.Equal(t, http.StatusTeapot, sw.status)

	_, _, err := sw.Hijack()
	assert.Error(t, err, "recorder cannot be hijacked")
}
