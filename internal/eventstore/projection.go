package eventstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

const (
	runStatusRunning = "running"
)

// RunSummary is a read model summarizing a completed or in-progress run.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	RootMap     string        `json:"root_map"`
	Status      string        `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	FileCount   int           `json:"file_count"`
	Collisions  int           `json:"collisions"`
	Failed      []string      `json:"failed,omitempty"`
	Warnings    int           `json:"warnings"`
}

// RunHistoryProjection maintains an in-memory view of run history,
// reconstructed from events stored in the event store.
type RunHistoryProjection struct {
	mu      sync.RWMutex
	store   Store
	runs    map[string]*RunSummary
	maxSize int
}

// NewRunHistoryProjection creates a new projection backed by the given store.
func NewRunHistoryProjection(store Store, maxHistorySize int) *RunHistoryProjection {
	if maxHistorySize <= 0 {
		maxHistorySize = 100
	}
	return &RunHistoryProjection{
		store:   store,
		runs:    make(map[string]*RunSummary),
		maxSize: maxHistorySize,
	}
}

// Rebuild reconstructs the projection from all events in the store.
func (p *RunHistoryProjection) Rebuild(ctx context.Context) error {
	events, err := p.store.GetRange(ctx, time.Time{}, time.Now().Add(time.Hour))
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.runs = make(map[string]*RunSummary)
	for _, e := range events {
		p.applyLocked(e)
	}
	return nil
}

// Apply folds a single event into the projection.
func (p *RunHistoryProjection) Apply(e Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.applyLocked(e)
}

func (p *RunHistoryProjection) applyLocked(e Event) {
	s, ok := p.runs[e.RunID()]
	if !ok {
		s = &RunSummary{RunID: e.RunID(), Status: runStatusRunning, StartedAt: e.Timestamp()}
		p.runs[e.RunID()] = s
	}
	switch e.Type() {
	case TypeRunStarted:
		var v RunStarted
		if Decode(e, &v) == nil {
			s.RootMap = v.RootMap
			s.StartedAt = e.Timestamp()
		}
	case TypeManifestExtracted:
		var v ManifestExtracted
		if Decode(e, &v) == nil {
			s.FileCount = v.FileCount
		}
	case TypeIdentifiersUniquified:
		var v IdentifiersUniquified
		if Decode(e, &v) == nil {
			s.Collisions = len(v.Collisions)
		}
	case TypeDiagnostic:
		s.Warnings++
	case TypeRunCompleted:
		var v RunCompleted
		if Decode(e, &v) == nil {
			ts := e.Timestamp()
			s.Status = v.Status
			s.CompletedAt = &ts
			s.Duration = time.Duration(v.DurationMS) * time.Millisecond
			s.Failed = v.Failed
		}
	}
}

// History returns the newest runs first, at most maxSize of them.
func (p *RunHistoryProjection) History() []RunSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]RunSummary, 0, len(p.runs))
	for _, s := range p.runs {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].RunID > out[j].RunID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > p.maxSize {
		out = out[:p.maxSize]
	}
	return out
}

// Get returns the summary of one run.
func (p *RunHistoryProjection) Get(runID string) (RunSummary, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.runs[runID]
	if !ok {
		return RunSummary{}, false
	}
	return *s, true
}
