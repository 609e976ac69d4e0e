// Package report carries the reporting context of a conversion run. Stages
// log through a Reporter instead of a process-wide logger; the Reporter keeps
// the run's failures and warnings for the end-of-run summary and forwards
// every event to the configured sinks.
package report

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/dita2docbook/internal/eventstore"
	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
)

// Sink receives every event of a run.
type Sink interface {
	Publish(ctx context.Context, e eventstore.Event) error
	Close() error
}

// Failure is a file that could not be processed by a stage.
type Failure struct {
	Stage string
	File  string
	Error string
	Repro string
}

// Warning is a non-fatal problem worth surfacing in the summary.
type Warning struct {
	Stage   string
	File    string
	Message string
}

// Reporter accumulates the events of one run. It is safe for concurrent use.
type Reporter struct {
	logger *slog.Logger
	runID  string
	sinks  []Sink

	mu         sync.Mutex
	events     []eventstore.Event
	failures   []Failure
	warnings   []Warning
	sinkBroken []bool
}

// New creates a reporter for runID. logger may be nil.
func New(logger *slog.Logger, runID string, sinks ...Sink) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		logger:     logger.With(logfields.RunID(runID)),
		runID:      runID,
		sinks:      sinks,
		sinkBroken: make([]bool, len(sinks)),
	}
}

// Logger returns the run-scoped logger.
func (r *Reporter) Logger() *slog.Logger { return r.logger }

// RunID returns the id of the run being reported.
func (r *Reporter) RunID() string { return r.runID }

// Emit records a typed event and forwards it to the sinks. A failing sink is
// reported once and then skipped for the rest of the run.
func (r *Reporter) Emit(ctx context.Context, eventType string, payload any) {
	e, err := eventstore.NewEvent(r.runID, eventType, payload)
	if err != nil {
		r.logger.Warn("Dropping unencodable event", slog.String("type", eventType), logfields.Error(err))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	for i, s := range r.sinks {
		if r.sinkBroken[i] {
			continue
		}
		if err := s.Publish(ctx, e); err != nil {
			r.sinkBroken[i] = true
			r.logger.Warn("Event sink failed, disabling it for this run", slog.String("type", eventType), logfields.Error(err))
		}
	}
}

// Warn logs a warning and keeps it for the summary.
func (r *Reporter) Warn(ctx context.Context, stage, file, msg string, attrs ...slog.Attr) {
	all := append([]slog.Attr{logfields.Stage(stage)}, attrs...)
	if file != "" {
		all = append(all, logfields.File(file))
	}
	r.logger.LogAttrs(ctx, slog.LevelWarn, msg, all...)

	r.mu.Lock()
	r.warnings = append(r.warnings, Warning{Stage: stage, File: file, Message: msg})
	r.mu.Unlock()
	r.Emit(ctx, eventstore.TypeDiagnostic, eventstore.Diagnostic{Level: "warning", Stage: stage, File: file, Message: msg})
}

// Fail records a per-file failure. repro, when set, is a command line that
// reproduces the failing invocation by hand.
func (r *Reporter) Fail(ctx context.Context, stage, file string, err error, repro string) {
	attrs := []slog.Attr{logfields.Stage(stage), logfields.File(file), logfields.Error(err)}
	if repro != "" {
		attrs = append(attrs, slog.String("repro", repro))
	}
	r.logger.LogAttrs(ctx, slog.LevelError, "File failed", attrs...)

	f := Failure{Stage: stage, File: file, Repro: repro}
	if err != nil {
		f.Error = err.Error()
	}
	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()
	r.Emit(ctx, eventstore.TypeFileFailed, eventstore.FileFailed{Stage: stage, File: file, Error: f.Error, Repro: repro})
}

// Critical logs at error level with critical=true.
func (r *Reporter) Critical(ctx context.Context, msg string, attrs ...slog.Attr) {
	r.logger.LogAttrs(ctx, slog.LevelError, msg, append(attrs, logfields.Critical())...)
}

// Failures returns the failures recorded so far.
func (r *Reporter) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.failures...)
}

// Warnings returns the warnings recorded so far.
func (r *Reporter) Warnings() []Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Warning(nil), r.warnings...)
}

// Events returns every event emitted so far.
func (r *Reporter) Events() []eventstore.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]eventstore.Event(nil), r.events...)
}

// Close closes all sinks.
func (r *Reporter) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
