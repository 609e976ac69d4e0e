// Package uniqueid makes identifier values unique across every manifest file
// of the working tree while keeping references pointing at the same targets.
//
// The pass has two phases separated by a barrier. The collect phase scans
// each file read-only and in parallel. Once every scan is in, the rename plan
// is computed and persisted. The write phase then runs the rewrite program
// once per file, again in parallel, and swaps each result in atomically.
package uniqueid

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/dita2docbook/internal/ditaxml"
	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
	"git.home.luguber.info/inful/dita2docbook/internal/eventstore"
	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
	"git.home.luguber.info/inful/dita2docbook/internal/metrics"
	"git.home.luguber.info/inful/dita2docbook/internal/report"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
	"git.home.luguber.info/inful/dita2docbook/internal/transform/native"
)

// Stage names this component in logs, events and metrics.
const Stage = "make_unique_ids"

// PlanFile is the rename plan's file name inside the working tree.
const PlanFile = "renames.json"

// Result summarizes a uniquification pass.
type Result struct {
	Collisions []string
	Plan       *ditaxml.RenamePlan
	PlanPath   string
	Renamed    int
	Dropped    int
	Failed     []string
}

// Uniquifier runs the collect and write phases.
type Uniquifier struct {
	invoker  transform.Invoker
	program  string
	workers  int
	cleanID  bool
	recorder metrics.Recorder
}

// Option configures a Uniquifier.
type Option func(*Uniquifier)

// WithWorkers bounds the number of files processed concurrently.
func WithWorkers(n int) Option {
	return func(u *Uniquifier) {
		if n > 0 {
			u.workers = n
		}
	}
}

// WithCleanID removes identifiers nothing refers to.
func WithCleanID(enabled bool) Option {
	return func(u *Uniquifier) { u.cleanID = enabled }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(u *Uniquifier) {
		if rec != nil {
			u.recorder = rec
		}
	}
}

// New creates a uniquifier applying program through inv.
func New(inv transform.Invoker, program string, opts ...Option) *Uniquifier {
	u := &Uniquifier{
		invoker:  inv,
		program:  program,
		workers:  runtime.GOMAXPROCS(0),
		recorder: metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Run uniquifies files, which are paths relative to workDir. Per-file
// failures are reported and collected; the error is only set when ctx ends or
// the rename plan cannot be persisted.
func (u *Uniquifier) Run(ctx context.Context, rep *report.Reporter, workDir string, files []string) (*Result, error) {
	log := rep.Logger().With(logfields.Stage(Stage))
	res := &Result{PlanPath: filepath.Join(workDir, PlanFile)}

	// collect
	scans := make([]*FileScan, len(files))
	scanErrs := make([]error, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				scanErrs[i] = err
				return nil
			}
			scans[i], scanErrs[i] = Scan(filepath.Join(workDir, filepath.FromSlash(f)), f)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ok []*FileScan
	for i, f := range files {
		if scanErrs[i] != nil {
			u.recorder.IncFileResult(Stage, false)
			rep.Fail(ctx, Stage, f, cerrors.MalformedDocument(f, scanErrs[i]), "")
			res.Failed = append(res.Failed, f)
			continue
		}
		ok = append(ok, scans[i])
	}

	plan := BuildPlan(ok, u.cleanID)
	res.Plan = plan
	res.Collisions = plan.Collisions
	if err := ditaxml.WritePlan(res.PlanPath, plan); err != nil {
		return nil, cerrors.WorkspaceError("write rename plan", err)
	}
	log.Info("Identifier scan complete",
		logfields.Count(len(ok)),
		logfields.Value(strings.Join(plan.Collisions, " ")),
		logfields.Path(res.PlanPath))

	// write
	renamed := make([]int, len(ok))
	dropped := make([]int, len(ok))
	writeErrs := make([]error, len(ok))
	repros := make([]string, len(ok))
	collisions := strings.Join(plan.Collisions, " ")
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i, s := range ok {
		g.Go(func() error {
			renamed[i], dropped[i], repros[i], writeErrs[i] = u.rewrite(gctx, workDir, s.File, collisions, res.PlanPath)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, s := range ok {
		if writeErrs[i] != nil {
			u.recorder.IncFileResult(Stage, false)
			rep.Fail(ctx, Stage, s.File, writeErrs[i], repros[i])
			res.Failed = append(res.Failed, s.File)
			continue
		}
		u.recorder.IncFileResult(Stage, true)
		res.Renamed += renamed[i]
		res.Dropped += dropped[i]
	}

	rep.Emit(ctx, eventstore.TypeIdentifiersUniquified, eventstore.IdentifiersUniquified{
		Collisions: plan.Collisions,
		Renamed:    res.Renamed,
		Dropped:    res.Dropped,
	})
	log.Info("Identifiers uniquified",
		slog.Int("collisions", len(plan.Collisions)),
		slog.Int("renamed", res.Renamed),
		slog.Int("dropped", res.Dropped),
		slog.Int("failed", len(res.Failed)))
	return res, nil
}

// rewrite runs the rewrite program on one file into a sibling temp file and
// renames it over the original only when the program succeeded.
func (u *Uniquifier) rewrite(ctx context.Context, workDir, file, collisions, planPath string) (renamed, dropped int, repro string, err error) {
	target := filepath.Join(workDir, filepath.FromSlash(file))
	tmp := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+".uniq")
	req := transform.Request{
		Input:   target,
		Program: u.program,
		Params: transform.Params{
			native.ParamCollisions: collisions,
			native.ParamFilePath:   file,
			native.ParamRenameMap:  planPath,
		},
		Output: tmp,
		NoNet:  true,
	}
	res, err := u.invoker.Apply(ctx, req)
	if err != nil {
		_ = os.Remove(tmp)
		if transform.IsTimeout(err) {
			return 0, 0, req.ReproCommand(), cerrors.TransformTimeout(file, err)
		}
		return 0, 0, req.ReproCommand(), cerrors.TransformApply(file, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return 0, 0, "", cerrors.WorkspaceError("swap rewritten file", err)
	}
	for _, m := range res.Messages {
		switch {
		case strings.HasPrefix(m, native.MsgIDRenamed):
			renamed++
		case strings.HasPrefix(m, native.MsgIDDropped):
			dropped++
		}
	}
	return renamed, dropped, "", nil
}
