package metrics

import (
	"sync"
	"time"
)

// testRecorder counts calls; used by tests in this package to check the
// interface can be satisfied by simple fakes.
type testRecorder struct {
	mu             sync.Mutex
	stageDurations map[string]int
	stageResults   map[string]map[ResultLabel]int
	runDurations   int
	runOutcomes    map[string]int
	files          map[string]int
}

func newTestRecorder() *testRecorder {
	return &testRecorder{
		stageDurations: map[string]int{},
		stageResults:   map[string]map[ResultLabel]int{},
		runOutcomes:    map[string]int{},
		files:          map[string]int{},
	}
}

func (t *testRecorder) ObserveStageDuration(stage string, _ time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stageDurations[stage]++
}
func (t *testRecorder) ObserveRunDuration(_ time.Duration) { t.runDurations++ }
func (t *testRecorder) IncStageResult(stage string, result ResultLabel) {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.stageResults[stage]
	if !ok {
		m = map[ResultLabel]int{}
		t.stageResults[stage] = m
	}
	m[result]++
}
func (t *testRecorder) IncRunOutcome(outcome string) { t.runOutcomes[outcome]++ }
func (t *testRecorder) IncFileResult(stage string, _ bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[stage]++
}
func (t *testRecorder) ObserveConrefRounds(int)  {}
func (t *testRecorder) IncConrefCycle()          {}
func (t *testRecorder) IncTransformRetry(string) {}
func (t *testRecorder) SetWorkers(int)           {}

var (
	_ Recorder = (*testRecorder)(nil)
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)
