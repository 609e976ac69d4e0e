package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
	"git.home.luguber.info/inful/dita2docbook/internal/metrics"
	"git.home.luguber.info/inful/dita2docbook/internal/pipeline"
	"git.home.luguber.info/inful/dita2docbook/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	ConvertFlags
	Debounce    time.Duration `default:"2s" help:"Quiet period after the last change before converting"`
	Interval    time.Duration `help:"Also convert on this interval (0 disables)"`
	MetricsAddr string        `name:"metrics-addr" help:"Serve Prometheus metrics on this address, e.g. :9102"`
	Map         string        `arg:"" name:"ditamap" help:"Root DITA map"`
}

func (w *WatchCmd) Run(g *Global, root *CLI) error {
	cfg, paths, err := loadConfig(g, root, w.Map, w.ConvertFlags)
	if err != nil {
		return err
	}
	debugConfig(g.Logger, cfg, paths)

	ctx, cancel := signalContext()
	defer cancel()

	rec := metrics.NewPrometheusRecorder(nil)
	if w.MetricsAddr != "" {
		stop := serveMetrics(ctx, g.Logger, w.MetricsAddr, rec)
		defer stop()
	}

	// the configuration is read again for every run so edits to it apply
	run := func(ctx context.Context, _ string) error {
		cfg, _, err := loadConfig(g, root, w.Map, w.ConvertFlags)
		if err != nil {
			return err
		}
		_, err = pipeline.Run(ctx, cfg, w.Map, pipeline.Options{Logger: g.Logger, Recorder: rec, Persistent: true})
		if cfg.Metrics.Textfile != "" {
			if werr := rec.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
				g.Logger.Warn("Writing metrics textfile failed", logfields.Error(werr))
			}
		}
		return err
	}

	ignore := []string{paths.ProjectDir}
	if out := outputRoot(cfg, paths); out != paths.BaseDir {
		ignore = append(ignore, out)
	}
	watcher, err := watch.New(paths.BaseDir, run,
		watch.WithDebounce(w.Debounce),
		watch.WithInterval(w.Interval),
		watch.WithIgnore(ignore...),
		watch.WithLogger(g.Logger),
	)
	if err != nil {
		return err
	}
	return watcher.Run(ctx)
}

// outputRoot is the directory all projects are written to.
func outputRoot(cfg *config.Config, paths *config.Paths) string {
	if filepath.IsAbs(cfg.OutputDir) {
		return cfg.OutputDir
	}
	return filepath.Join(paths.BaseDir, cfg.OutputDir)
}

func serveMetrics(ctx context.Context, log *slog.Logger, addr string, rec *metrics.PrometheusRecorder) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HTTPHandler(rec.Registry()))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("Serving metrics", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics server failed", logfields.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
