package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
	"git.home.luguber.info/inful/dita2docbook/internal/conref"
	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
	"git.home.luguber.info/inful/dita2docbook/internal/eventstore"
	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
	"git.home.luguber.info/inful/dita2docbook/internal/manifest"
	"git.home.luguber.info/inful/dita2docbook/internal/metrics"
	"git.home.luguber.info/inful/dita2docbook/internal/report"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
	"git.home.luguber.info/inful/dita2docbook/internal/uniqueid"
	"git.home.luguber.info/inful/dita2docbook/internal/util/sets"
	"git.home.luguber.info/inful/dita2docbook/internal/workspace"
)

// Stage names used for timing and results.
const (
	StageExtract = "extract_manifest"
	StageOutputs = "write_outputs"
)

// Output file names inside the project directory.
const (
	RunManifestFile = "run.json"
	ReportFile      = "report.md"
	ReportHTMLFile  = "report.html"
	WorkDirName     = "tmp"
	IncludesFile    = "includes"
	// PersistentTree is the working tree reused by consecutive watch runs.
	PersistentTree = "working"
)

// Options customize a run. The zero value builds everything from the
// configuration.
type Options struct {
	Logger *slog.Logger
	// Recorder overrides the recorder derived from metrics.textfile.
	Recorder metrics.Recorder
	// Invoker overrides the configured engine. Programs must be set with it.
	Invoker  transform.Invoker
	Programs Programs
	// Sinks are appended to the sinks opened from the events section.
	Sinks []report.Sink
	// Persistent reuses <projectdir>/tmp/working across runs instead of a
	// fresh timestamped tree. Ignored when cleantmp is set.
	Persistent bool
}

// Result describes a finished run.
type Result struct {
	RunID        string
	Paths        *config.Paths
	Manifest     []string
	Replacements []config.Replacement
	WorkDir      string
	Collisions   []string
	Failed       []string
	Status       string
	Duration     time.Duration
	RunManifest  *manifest.RunManifest
	Events       []eventstore.Event
}

// Run converts the root map at mapPath. The returned error is set only for
// fatal conditions: the root map cannot be flattened, the project directory
// cannot be written, or ctx ends. Per-file failures are reported and the run
// finishes with status partial.
func Run(ctx context.Context, cfg *config.Config, mapPath string, opts Options) (*Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	paths, err := cfg.ResolvePaths(mapPath)
	if err != nil {
		return nil, cerrors.RootMapUnreadable(mapPath, err)
	}
	runID := uuid.NewString()

	sinks := append(openSinks(cfg, logger), opts.Sinks...)
	rep := report.New(logger, runID, sinks...)
	defer func() {
		if err := rep.Close(); err != nil {
			logger.Warn("Closing event sinks failed", logfields.Error(err))
		}
	}()
	log := rep.Logger()

	rec := opts.Recorder
	var prom *metrics.PrometheusRecorder
	if rec == nil {
		if cfg.Metrics.Textfile != "" {
			prom = metrics.NewPrometheusRecorder(nil)
			rec = prom
		} else {
			rec = metrics.NoopRecorder{}
		}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	rec.SetWorkers(workers)

	inv, programs := opts.Invoker, opts.Programs
	if inv == nil {
		if inv, programs, err = NewInvoker(cfg, log, rec); err != nil {
			return nil, err
		}
	}

	res := &Result{RunID: runID, Paths: paths}
	configHash, err := cfg.Snapshot()
	if err != nil {
		log.Warn("Hashing configuration failed", logfields.Error(err))
	}
	rep.Emit(ctx, eventstore.TypeRunStarted, eventstore.RunStarted{
		RootMap:    paths.MapPath,
		ConfigHash: configHash,
		Engine:     string(cfg.Transform.Engine),
	})
	log.Info("Starting conversion",
		logfields.File(paths.MapPath),
		logfields.Path(paths.ProjectDir),
		slog.String("main", paths.MainFile),
		slog.String("dcfile", paths.DCFile),
		logfields.Worker(workers))
	if cfg.Tweak != "" {
		log.Info("Tweak setting is passed through unused", logfields.Value(cfg.Tweak))
	}

	finish := func(status string, failErr error) (*Result, error) {
		res.Status = status
		res.Duration = time.Since(start)
		rec.IncRunOutcome(status)
		rec.ObserveRunDuration(res.Duration)
		rep.Emit(ctx, eventstore.TypeRunCompleted, eventstore.RunCompleted{
			Status:     status,
			DurationMS: res.Duration.Milliseconds(),
			FileCount:  len(res.Manifest),
			Failed:     res.Failed,
		})
		if prom != nil {
			if err := prom.WriteTextfile(cfg.Metrics.Textfile); err != nil {
				log.Warn("Writing metrics textfile failed", logfields.Path(cfg.Metrics.Textfile), logfields.Error(err))
			}
		}
		res.Events = rep.Events()
		return res, failErr
	}

	if err := os.MkdirAll(paths.XMLDir, 0o750); err != nil {
		return finish(manifest.StatusFailed, cerrors.WorkspaceError("create project directory", err))
	}

	ws := workspace.NewManager(filepath.Join(paths.ProjectDir, WorkDirName), workspace.WithLogger(log))
	if opts.Persistent && !cfg.CleanTmp {
		ws = workspace.NewPersistentManager(filepath.Join(paths.ProjectDir, WorkDirName), PersistentTree, workspace.WithLogger(log))
	}
	ws.SetRetain(!cfg.CleanTmp)
	if err := ws.Create(); err != nil {
		return finish(manifest.StatusFailed, cerrors.WorkspaceError("create working tree", err))
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			log.Warn("Removing working tree failed", logfields.Error(err))
		}
	}()
	res.WorkDir = ws.GetPath()

	// extract
	replacements, _ := cfg.Replacements()
	var extracted *manifest.Result
	err = stage(rec, StageExtract, func() error {
		var err error
		extracted, err = manifest.NewExtractor(inv, programs.MapToMain, log).Extract(ctx, paths.MapPath, manifest.Options{
			Prefix:       paths.BaseName,
			EntityFile:   cfg.EntityFile,
			Replacements: replacements,
			Remove:       cfg.RemoveSet(),
			MainPath:     filepath.Join(paths.XMLDir, paths.MainFile),
			IncludesPath: filepath.Join(res.WorkDir, IncludesFile),
		})
		return err
	})
	if err != nil {
		log.Error("Cannot build the manifest", logfields.File(paths.MapPath), logfields.Error(err))
		return finish(manifest.StatusFailed, err)
	}
	res.Manifest = extracted.Manifest
	res.Replacements = extracted.Replacements
	rep.Emit(ctx, eventstore.TypeManifestExtracted, eventstore.ManifestExtracted{
		FileCount:    len(extracted.Manifest),
		Files:        extracted.Manifest,
		Replacements: len(extracted.Replacements),
	})

	entityPath := filepath.Join(paths.XMLDir, cfg.EntityFile)
	if created, err := EnsureEntityFile(entityPath); err != nil {
		return finish(manifest.StatusFailed, cerrors.WorkspaceError("create entity file", err))
	} else if created {
		log.Info("Created empty entity file", logfields.Path(entityPath))
	}

	// resolve
	var resolved *conref.Result
	err = stage(rec, conref.Stage, func() error {
		var err error
		resolved, err = conref.New(inv, programs.ResolveConrefs,
			conref.WithWorkers(workers),
			conref.WithMaxRounds(cfg.MaxRounds),
			conref.WithRecorder(rec),
		).Resolve(ctx, rep, paths.BaseDir, res.WorkDir, extracted.Manifest)
		return err
	})
	if err != nil {
		return finish(manifest.StatusFailed, err)
	}
	resolved.Summary(log)
	failed := sets.New(resolved.Failed...)

	// Every file with a working copy takes part, including files that failed
	// resolution part way: whatever they declare reaches the conversion step
	// and must not collide.
	var candidates []string
	for _, f := range extracted.Manifest {
		p, err := ws.Path(f)
		if err == nil {
			_, err = os.Stat(p)
		}
		if err == nil {
			candidates = append(candidates, f)
		} else if !failed.Has(f) {
			log.Warn("Working copy missing", logfields.File(f), logfields.Error(err))
		}
	}
	var uniq *uniqueid.Result
	err = stage(rec, uniqueid.Stage, func() error {
		var err error
		uniq, err = uniqueid.New(inv, programs.MakeUniqueIDs,
			uniqueid.WithWorkers(workers),
			uniqueid.WithCleanID(cfg.CleanID),
			uniqueid.WithRecorder(rec),
		).Run(ctx, rep, res.WorkDir, candidates)
		return err
	})
	if err != nil {
		return finish(manifest.StatusFailed, err)
	}
	res.Collisions = uniq.Collisions
	for _, f := range uniq.Failed {
		failed.Add(f)
	}
	res.Failed = sets.Sorted(failed)

	status := manifest.StatusSuccess
	if len(res.Failed) > 0 {
		status = manifest.StatusPartial
		if len(res.Failed) == 1 {
			log.Warn("One file could not be converted", logfields.File(res.Failed[0]))
		}
		rep.Critical(ctx, "Failed files", slog.Any("files", res.Failed))
	}

	err = stage(rec, StageOutputs, func() error {
		return writeOutputs(ctx, cfg, rep, res, status, start, configHash, programs, workers)
	})
	if err != nil {
		return finish(manifest.StatusFailed, err)
	}
	log.Info("Conversion finished",
		slog.String("status", status),
		logfields.Count(len(res.Manifest)),
		slog.Int("failed", len(res.Failed)),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return finish(status, nil)
}

// stage times fn and records its result.
func stage(rec metrics.Recorder, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	rec.ObserveStageDuration(name, time.Since(start))
	switch {
	case err == nil:
		rec.IncStageResult(name, metrics.ResultSuccess)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		rec.IncStageResult(name, metrics.ResultCanceled)
	default:
		rec.IncStageResult(name, metrics.ResultFatal)
	}
	return err
}

func openSinks(cfg *config.Config, logger *slog.Logger) []report.Sink {
	var sinks []report.Sink
	if cfg.Events.SQLite != "" {
		s, err := report.OpenSQLiteSink(cfg.Events.SQLite)
		if err != nil {
			logger.Warn("Event store unavailable, continuing without it", logfields.Path(cfg.Events.SQLite), logfields.Error(err))
		} else {
			sinks = append(sinks, s)
		}
	}
	if cfg.Events.NATSURL != "" {
		s, err := report.ConnectNATS(cfg.Events.NATSURL, cfg.Events.NATSSubject)
		if err != nil {
			logger.Warn("NATS unavailable, continuing without it", slog.String("url", cfg.Events.NATSURL), logfields.Error(err))
		} else {
			sinks = append(sinks, s)
		}
	}
	return sinks
}
