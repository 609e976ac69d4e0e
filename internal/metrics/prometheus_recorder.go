package metrics

import (
	"fmt"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once          sync.Once
	reg           *prom.Registry
	stageDuration *prom.HistogramVec
	runDuration   prom.Histogram
	stageResults  *prom.CounterVec
	runOutcome    *prom.CounterVec
	fileResults   *prom.CounterVec
	conrefRounds  prom.Histogram
	conrefCycles  prom.Counter
	retries       *prom.CounterVec
	workers       prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "dita2docbook",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "dita2docbook",
			Name:      "run_duration_seconds",
			Help:      "Total conversion run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dita2docbook",
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dita2docbook",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.fileResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dita2docbook",
			Name:      "file_results_total",
			Help:      "Per-file results by stage",
		}, []string{"stage", "result"})
		pr.conrefRounds = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "dita2docbook",
			Name:      "conref_rounds",
			Help:      "Resolution rounds needed per file",
			Buckets:   prom.LinearBuckets(1, 1, 10),
		})
		pr.conrefCycles = prom.NewCounter(prom.CounterOpts{
			Namespace: "dita2docbook",
			Name:      "conref_cycles_total",
			Help:      "Files whose conref resolution stopped on a cycle",
		})
		pr.retries = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "dita2docbook",
			Name:      "transform_retries_total",
			Help:      "Transform invocations retried after a timeout",
		}, []string{"program"})
		pr.workers = prom.NewGauge(prom.GaugeOpts{
			Namespace: "dita2docbook",
			Name:      "workers",
			Help:      "Worker pool size of the last run",
		})
		reg.MustRegister(pr.stageDuration, pr.runDuration, pr.stageResults, pr.runOutcome, pr.fileResults, pr.conrefRounds, pr.conrefCycles, pr.retries, pr.workers)
	})
	return pr
}

// Registry returns the registry the metrics are registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry { return p.reg }

// WriteTextfile writes the registry in the Prometheus text format, for the
// node_exporter textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}
func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}
func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}
func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncFileResult(stage string, success bool) {
	if p == nil || p.fileResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.fileResults.WithLabelValues(stage, res).Inc()
}

func (p *PrometheusRecorder) ObserveConrefRounds(rounds int) {
	if p == nil || p.conrefRounds == nil {
		return
	}
	p.conrefRounds.Observe(float64(rounds))
}

func (p *PrometheusRecorder) IncConrefCycle() {
	if p == nil || p.conrefCycles == nil {
		return
	}
	p.conrefCycles.Inc()
}

func (p *PrometheusRecorder) IncTransformRetry(program string) {
	if p == nil || p.retries == nil {
		return
	}
	p.retries.WithLabelValues(program).Inc()
}

func (p *PrometheusRecorder) SetWorkers(n int) {
	if p == nil || p.workers == nil {
		return
	}
	p.workers.Set(float64(n))
}
