package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for run, stage and per-file metrics.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRunOutcome(outcome string) // outcome: success|partial|failed
	IncFileResult(stage string, success bool)
	ObserveConrefRounds(rounds int)
	IncConrefCycle()
	IncTransformRetry(program string)
	SetWorkers(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncRunOutcome(string)                       {}
func (NoopRecorder) IncFileResult(string, bool)                 {}
func (NoopRecorder) ObserveConrefRounds(int)                    {}
func (NoopRecorder) IncConrefCycle()                            {}
func (NoopRecorder) IncTransformRetry(string)                   {}
func (NoopRecorder) SetWorkers(int)                             {}
