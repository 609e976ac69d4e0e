package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
	"git.home.luguber.info/inful/dita2docbook/internal/version"
)

// Global is shared with every subcommand.
type Global struct {
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config    string           `short:"c" help:"Additional configuration file, read after conversion.yaml next to the map" type:"path"`
	Verbose   int              `short:"v" type:"counter" help:"Verbose logging (-v debug, -vv debug with source locations)"`
	LogFormat string           `name:"log-format" help:"Log output format (text|json)"`
	Version   kong.VersionFlag `name:"version" help:"Show version and exit"`

	Convert  ConvertCmd  `cmd:"" help:"Convert a DITA map into a DocBook project"`
	Manifest ManifestCmd `cmd:"" help:"List the source files referenced by a DITA map"`
	Watch    WatchCmd    `cmd:"" help:"Convert again whenever the sources change"`
	Init     InitCmd     `cmd:"" help:"Write an example conversion.yaml"`
	History  HistoryCmd  `cmd:"" help:"Show past runs recorded in the event store"`
}

// AfterApply runs after flag parsing; setup logging once.
func (c *CLI) AfterApply(g *Global) error {
	g.Logger = newLogger(g.Stderr, c.Verbose, config.NormalizeLogFormat(c.LogFormat))
	slog.SetDefault(g.Logger)
	return nil
}

func newLogger(w io.Writer, verbose int, format config.LogFormat) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose > 0 {
		opts.Level = slog.LevelDebug
	}
	if verbose > 1 {
		opts.AddSource = true
	}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Execute parses args, runs the selected command and returns the process
// exit status.
func Execute(args []string, stdout, stderr io.Writer) int {
	var cli CLI
	g := &Global{Stdout: stdout, Stderr: stderr, Logger: slog.Default()}
	exitCode := -1
	parser, err := kong.New(&cli,
		kong.Name("dita2docbook"),
		kong.Description("Flatten a DITA map into a resolved document set for DocBook conversion."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exitCode = code }),
		kong.Bind(g),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		// --help or --version
		return exitCode
	}
	if err != nil {
		parser.Errorf("%s", err)
		return 2
	}
	err = kctx.Run(g, &cli)
	if err == nil {
		return 0
	}
	adapter := cerrors.NewCLIErrorAdapter(cli.Verbose > 0, g.Logger)
	fmt.Fprintln(stderr, adapter.FormatError(err))
	return adapter.ExitCodeFor(err)
}

// ConvertFlags override configuration values for a single invocation.
type ConvertFlags struct {
	OutputDir  string `short:"o" name:"outputdir" help:"Output directory (default from config: converted)"`
	StyleRoot  string `name:"styleroot" help:"STYLEROOT written to the DC file"`
	EntityFile string `name:"entityfile" help:"Entity file name created under xml/ when missing"`
	CleanTmp   bool   `name:"cleantmp" help:"Remove the working tree after the run"`
	CleanID    bool   `name:"cleanid" help:"Remove ids that are not link targets"`
	Workers    int    `short:"j" name:"workers" help:"Files processed in parallel (default: CPUs)"`
	MaxRounds  int    `name:"max-rounds" help:"Conref resolution rounds per file before giving up"`
	Engine     string `name:"engine" help:"Transform engine (native|xsltproc)"`
	XSLTDir    string `name:"xslt-dir" type:"path" help:"Directory holding the stylesheets for the xsltproc engine"`
}

func (f ConvertFlags) overrides(logFormat string) config.Overrides {
	return config.Overrides{
		OutputDir:  f.OutputDir,
		StyleRoot:  f.StyleRoot,
		EntityFile: f.EntityFile,
		CleanTmp:   f.CleanTmp,
		CleanID:    f.CleanID,
		Workers:    f.Workers,
		MaxRounds:  f.MaxRounds,
		Engine:     f.Engine,
		XSLTDir:    f.XSLTDir,
		LogFormat:  logFormat,
	}
}

// loadConfig reads the configuration for mapPath, applies the command-line
// overrides and, when the file asks for it, switches the logger.
func loadConfig(g *Global, root *CLI, mapPath string, flags ConvertFlags) (*config.Config, *config.Paths, error) {
	cfg, err := config.Load(mapPath, root.Config, config.WithLogger(g.Logger))
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Apply(flags.overrides(root.LogFormat)); err != nil {
		return nil, nil, err
	}
	paths, err := cfg.ResolvePaths(mapPath)
	if err != nil {
		return nil, nil, err
	}

	verbose := root.Verbose
	if verbose == 0 && cfg.Logging.Level == config.LogLevelDebug {
		verbose = 1
	}
	if verbose != root.Verbose || cfg.Logging.Format != config.NormalizeLogFormat(root.LogFormat) {
		g.Logger = newLogger(g.Stderr, verbose, cfg.Logging.Format)
		slog.SetDefault(g.Logger)
	}
	return cfg, paths, nil
}

// debugConfig logs the effective configuration.
func debugConfig(log *slog.Logger, cfg *config.Config, paths *config.Paths) {
	replacements, _ := cfg.Replacements()
	log.Info("Effective configuration",
		slog.String("basedir", paths.BaseDir),
		slog.String("basename", paths.BaseName),
		slog.String("dcfile", paths.DCFile),
		slog.String("projectdir", paths.ProjectDir),
		slog.String("xmldir", paths.XMLDir),
		slog.String("mainfile", paths.MainFile),
		slog.String("entityfile", cfg.EntityFile),
		slog.String("styleroot", cfg.StyleRoot),
		slog.Bool("cleantmp", cfg.CleanTmp),
		slog.Bool("cleanid", cfg.CleanID),
		slog.Int("replace", len(replacements)),
		slog.Any("remove", cfg.RemoveSet()),
		slog.String("engine", string(cfg.Transform.Engine)),
		slog.String("xslt_dir", cfg.Transform.XSLTDir),
		slog.String("timeout", cfg.Transform.Timeout))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
