package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("resolve_conrefs", 150*time.Millisecond)
	pr.ObserveRunDuration(500 * time.Millisecond)
	pr.IncStageResult("resolve_conrefs", ResultSuccess)
	pr.IncRunOutcome("success")
	pr.IncFileResult("resolve_conrefs", true)
	pr.IncFileResult("resolve_conrefs", false)
	pr.ObserveConrefRounds(3)
	pr.IncConrefCycle()
	pr.IncTransformRetry("resolve-conrefs")
	pr.SetWorkers(4)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["dita2docbook_file_results_total"])
	assert.True(t, names["dita2docbook_conref_cycles_total"])
	assert.True(t, names["dita2docbook_workers"])
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.IncConrefCycle()
		pr.ObserveRunDuration(time.Second)
	})
}

func TestWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncRunOutcome("partial")
	p := filepath.Join(t.TempDir(), "dita2docbook.prom")
	require.NoError(t, pr.WriteTextfile(p))
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `dita2docbook_run_outcomes_total{outcome="partial"} 1`)
}

func TestHTTPHandler(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.SetWorkers(2)
	rec := httptest.NewRecorder()
	HTTPHandler(pr.Registry()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dita2docbook_workers 2")
}

func TestTestRecorderCounts(t *testing.T) {
	r := newTestRecorder()
	r.IncStageResult("extract_manifest", ResultSuccess)
	r.IncFileResult("make_unique_ids", true)
	assert.Equal(t, 1, r.stageResults["extract_manifest"][ResultSuccess])
	assert.Equal(t, 1, r.files["make_unique_ids"])
}
