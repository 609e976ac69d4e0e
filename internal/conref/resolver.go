// Package conref resolves content references of every manifest file to a
// fixpoint, writing the results into the working tree.
//
// Each file is processed independently: round one reads the original, later
// rounds re-feed the file's own working copy, and every substituted target is
// read from the immutable original tree. Files therefore run in parallel on a
// bounded pool without read-after-write races.
package conref

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
	"git.home.luguber.info/inful/dita2docbook/internal/eventstore"
	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
	"git.home.luguber.info/inful/dita2docbook/internal/metrics"
	"git.home.luguber.info/inful/dita2docbook/internal/report"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
	"git.home.luguber.info/inful/dita2docbook/internal/transform/native"
	"git.home.luguber.info/inful/dita2docbook/internal/util/sets"
	"git.home.luguber.info/inful/dita2docbook/internal/workspace"
)

// Stage names this component in logs, events and metrics.
const Stage = "resolve_conrefs"

// DefaultMaxRounds bounds the substitution rounds per file.
const DefaultMaxRounds = 10

// Status is the final state of one file.
type Status string

const (
	StatusResolved   Status = "resolved"
	StatusCycle      Status = "cycle"
	StatusIncomplete Status = "incomplete"
	StatusFailed     Status = "failed"
)

// Outcome describes how one file ended.
type Outcome struct {
	File   string
	Rounds int
	Status Status
	Err    error
}

// Result aggregates the outcomes of a Resolve call in manifest order.
type Result struct {
	Outcomes []Outcome
	Failed   []string
}

// Resolver runs the substitution program until no conref remains.
type Resolver struct {
	invoker   transform.Invoker
	program   string
	workers   int
	maxRounds int
	recorder  metrics.Recorder
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithWorkers bounds the number of files processed concurrently.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithMaxRounds sets the per-file round bound.
func WithMaxRounds(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxRounds = n
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec metrics.Recorder) Option {
	return func(r *Resolver) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// New creates a resolver applying program through inv.
func New(inv transform.Invoker, program string, opts ...Option) *Resolver {
	r := &Resolver{
		invoker:   inv,
		program:   program,
		workers:   runtime.GOMAXPROCS(0),
		maxRounds: DefaultMaxRounds,
		recorder:  metrics.NoopRecorder{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve processes every manifest file. Per-file failures are reported and
// collected in Result.Failed; the returned error is only set when ctx ends.
func (r *Resolver) Resolve(ctx context.Context, rep *report.Reporter, baseDir, workDir string, files []string) (*Result, error) {
	outcomes := make([]Outcome, len(files))
	tree := workspace.At(workDir, workspace.WithLogger(rep.Logger()))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, f := range files {
		g.Go(func() error {
			outcomes[i] = r.resolveFile(gctx, rep, baseDir, tree, f)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{Outcomes: outcomes}
	for _, o := range outcomes {
		if o.Status != StatusResolved {
			res.Failed = append(res.Failed, o.File)
		}
	}
	return res, nil
}

func (r *Resolver) resolveFile(ctx context.Context, rep *report.Reporter, baseDir string, tree *workspace.Manager, file string) Outcome {
	start := time.Now()
	log := rep.Logger().With(logfields.Stage(Stage), logfields.File(file))
	src := filepath.Join(baseDir, filepath.FromSlash(file))

	fail := func(o Outcome, repro string) Outcome {
		r.recorder.IncFileResult(Stage, false)
		if o.Status == StatusCycle {
			r.recorder.IncConrefCycle()
		}
		rep.Fail(ctx, Stage, file, o.Err, repro)
		return o
	}

	dst, err := tree.EnsureDir(file)
	if err != nil {
		return fail(Outcome{File: file, Status: StatusFailed, Err: cerrors.WorkspaceError("place working copy", err)}, "")
	}
	// a reused tree may still hold the copy of an earlier run
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fail(Outcome{File: file, Status: StatusFailed, Err: cerrors.WorkspaceError("remove stale working copy", err)}, "")
	}

	input := src
	visited := sets.New[string]()
	rounds := 0
	for {
		directives, err := Directives(input, file)
		if err != nil {
			return fail(Outcome{File: file, Rounds: rounds, Status: StatusFailed, Err: cerrors.MalformedDocument(file, err)}, "")
		}
		if len(directives) == 0 {
			if rounds == 0 {
				if err := copyFile(src, dst); err != nil {
					return fail(Outcome{File: file, Status: StatusFailed, Err: cerrors.WorkspaceError("copy", err)}, "")
				}
			}
			r.recorder.IncFileResult(Stage, true)
			r.recorder.ObserveConrefRounds(rounds)
			rep.Emit(ctx, eventstore.TypeFileResolved, eventstore.FileResolved{File: file, Rounds: rounds})
			log.Debug("Resolved conrefs", logfields.Round(rounds), logfields.DurationMS(float64(time.Since(start).Milliseconds())))
			return Outcome{File: file, Rounds: rounds, Status: StatusResolved}
		}

		frontier := Frontier(directives)
		fingerprint := strings.Join(frontier, "\n")
		if visited.Has(fingerprint) {
			return fail(Outcome{File: file, Rounds: rounds, Status: StatusCycle, Err: cerrors.ConrefCycle(file, rounds, frontier)}, "")
		}
		if rounds >= r.maxRounds {
			return fail(Outcome{File: file, Rounds: rounds, Status: StatusIncomplete, Err: cerrors.IncompleteResolution(file, rounds, len(directives))}, "")
		}
		visited.Add(fingerprint)
		rounds++

		req := transform.Request{
			Input:   input,
			Program: r.program,
			Params: transform.Params{
				native.ParamBasePath:         baseDir,
				native.ParamRelativeFilePath: path.Dir(file),
			},
			Output: dst + ".round",
			NoNet:  true,
		}
		log.Debug("Substituting conrefs", logfields.Round(rounds), logfields.Count(len(directives)))
		if _, err := r.invoker.Apply(ctx, req); err != nil {
			_ = os.Remove(req.Output)
			return fail(Outcome{File: file, Rounds: rounds, Status: StatusFailed, Err: classify(file, err)}, req.ReproCommand())
		}
		if err := os.Rename(req.Output, dst); err != nil {
			return fail(Outcome{File: file, Rounds: rounds, Status: StatusFailed, Err: cerrors.WorkspaceError("replace working copy", err)}, "")
		}
		input = dst
	}
}

func classify(file string, err error) error {
	if transform.IsTimeout(err) {
		return cerrors.TransformTimeout(file, err)
	}
	return cerrors.TransformApply(file, err)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - manifest path below the base directory
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	out, err := os.Create(dst) // #nosec G304 - working tree path
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}

// Summary logs the outcome counts of a Resolve call.
func (res *Result) Summary(log *slog.Logger) {
	counts := map[Status]int{}
	for _, o := range res.Outcomes {
		counts[o.Status]++
	}
	log.Info("Conref resolution finished",
		logfields.Stage(Stage),
		logfields.Count(len(res.Outcomes)),
		slog.Int("resolved", counts[StatusResolved]),
		slog.Int("cycles", counts[StatusCycle]),
		slog.Int("incomplete", counts[StatusIncomplete]),
		slog.Int("failed", counts[StatusFailed]))
}
