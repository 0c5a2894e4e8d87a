package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/cryptopredict/internal/contracts"
)

func TestRecorder_Layers(t *testing.T) {
	r := New()

	r.ObserveLayer(contracts.LayerMacro, 20*time.Millisecond, false)
	r.ObserveLayer(contracts.LayerSector, 30*time.Millisecond, true)
	r.ObserveLayer(contracts.LayerSector, 30*time.Millisecond, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.layerDegraded.WithLabelValues("sector")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.layerDegraded.WithLabelValues("macro")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.layerDuration))
}

func TestRecorder_Runs(t *testing.T) {
	r := New()

	r.ObserveRun("complete", 0.72, time.Second)
	r.ObserveRun("failed", 0, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.72, testutil.ToFloat64(r.aggregate), "failed runs keep the last aggregate")
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.ObserveHTTP("/api/analysis", http.MethodGet, http.StatusOK, 5*time.Millisecond)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `cryptopredict_http_requests_total{method="GET",route="/api/analysis",status="200"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
