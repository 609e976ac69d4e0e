package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
	"git.home.luguber.info/inful/dita2docbook/internal/metrics"
	"git.home.luguber.info/inful/dita2docbook/internal/retry"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
	"git.home.luguber.info/inful/dita2docbook/internal/transform/native"
)

// Programs names the transformation programs of each stage as handed to the
// invoker.
type Programs struct {
	MapToMain      string
	ResolveConrefs string
	MakeUniqueIDs  string
}

// List returns the program names in stage order.
func (p Programs) List() []string {
	return []string{p.MapToMain, p.ResolveConrefs, p.MakeUniqueIDs}
}

// NewInvoker builds the configured Transform Invoker wrapped with the
// per-invocation timeout and the retry policy for timeouts.
func NewInvoker(cfg *config.Config, logger *slog.Logger, rec metrics.Recorder) (transform.Invoker, Programs, error) {
	programs := Programs{
		MapToMain:      transform.ProgramMapToMain,
		ResolveConrefs: transform.ProgramResolveConrefs,
		MakeUniqueIDs:  transform.ProgramMakeUniqueIDs,
	}

	var inv transform.Invoker
	switch cfg.Transform.Engine {
	case config.EngineXSLTProc:
		dir, err := filepath.Abs(cfg.Transform.XSLTDir)
		if err != nil {
			return nil, Programs{}, cerrors.ConfigInvalid("transform.xslt_dir", err)
		}
		inv = transform.NewExecInvoker(dir)
		programs = Programs{
			MapToMain:      transform.ProgramPath(dir, transform.ProgramMapToMain),
			ResolveConrefs: transform.ProgramPath(dir, transform.ProgramResolveConrefs),
			MakeUniqueIDs:  transform.ProgramPath(dir, transform.ProgramMakeUniqueIDs),
		}
	case config.EngineNative, "":
		inv = native.NewInvoker()
	default:
		return nil, Programs{}, cerrors.ValidationFailed("transform.engine", fmt.Sprintf("unknown engine %q", cfg.Transform.Engine))
	}

	timeout, err := cfg.TransformTimeout()
	if err != nil {
		return nil, Programs{}, cerrors.ValidationFailed("transform.timeout", err.Error())
	}
	policy, err := retry.FromConfig(cfg.Transform.Retry)
	if err != nil {
		return nil, Programs{}, cerrors.ValidationFailed("transform.retry", err.Error())
	}
	inv = transform.WithTimeout(inv, timeout)
	inv = transform.WithRetry(inv, policy, logger, rec)
	return inv, programs, nil
}
