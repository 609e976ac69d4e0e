package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
	"git.home.luguber.info/inful/dita2docbook/internal/logfields"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
	"git.home.luguber.info/inful/dita2docbook/internal/transform/native"
	"git.home.luguber.info/inful/dita2docbook/internal/util/sets"
)

// Extractor runs the map flattening program over a root map and turns its
// diagnostic messages into the processing manifest.
type Extractor struct {
	invoker transform.Invoker
	program string
	noNet   bool
	logger  *slog.Logger
}

// NewExtractor creates an extractor applying program through inv.
func NewExtractor(inv transform.Invoker, program string, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{invoker: inv, program: program, noNet: true, logger: logger}
}

// Options parameterize a single extraction.
type Options struct {
	Prefix       string
	EntityFile   string
	Replacements []config.Replacement
	Remove       []string
	MainPath     string // where the MAIN document is written
	IncludesPath string // where raw diagnostics are persisted, optional
}

// Result is the typed outcome of an extraction.
type Result struct {
	// Manifest is the sorted, duplicate-free list of base-relative topic paths.
	Manifest     []string
	Replacements []config.Replacement
	Diagnostics  []string
}

// Extract flattens mapPath. Any failure here is fatal for the run: without a
// manifest there is nothing to convert.
func (x *Extractor) Extract(ctx context.Context, mapPath string, opts Options) (*Result, error) {
	if _, err := os.Stat(mapPath); err != nil {
		return nil, cerrors.RootMapUnreadable(mapPath, err)
	}

	params := transform.Params{native.ParamPrefix: opts.Prefix}
	if opts.EntityFile != "" {
		params[native.ParamEntityFile] = opts.EntityFile
	}
	if len(opts.Replacements) > 0 {
		lines := make([]string, 0, len(opts.Replacements))
		for _, r := range opts.Replacements {
			lines = append(lines, r.Old+"="+r.New)
		}
		params[native.ParamReplace] = strings.Join(lines, "\n")
	}
	if len(opts.Remove) > 0 {
		params[native.ParamRemove] = strings.Join(opts.Remove, "\n")
	}

	req := transform.Request{
		Input:   mapPath,
		Program: x.program,
		Params:  params,
		Output:  opts.MainPath,
		NoNet:   x.noNet,
	}
	res, err := x.invoker.Apply(ctx, req)
	if err != nil {
		x.logger.Error("Map flattening failed",
			logfields.File(mapPath),
			logfields.Error(err),
			slog.String("repro", req.ReproCommand()))
		return nil, cerrors.RootMapUnreadable(mapPath, err)
	}

	out := ParseMessages(res.Messages)
	if opts.IncludesPath != "" {
		if err := WriteDiagnostics(opts.IncludesPath, out.Diagnostics); err != nil {
			return nil, cerrors.WorkspaceError("write diagnostics", err)
		}
	}
	for _, r := range out.Replacements {
		x.logger.Info("Replaced source file", slog.String("old", r.Old), slog.String("new", r.New))
	}
	x.logger.Info("Extracted manifest", logfields.File(mapPath), logfields.Count(len(out.Manifest)))
	return out, nil
}

// ParseMessages interprets the flattening program's diagnostics. Paths are
// taken verbatim, deduplicated and sorted; unrelated messages are kept only in
// Diagnostics. A replacement line without "=new" records the original only.
func ParseMessages(msgs []string) *Result {
	files := sets.New[string]()
	res := &Result{Diagnostics: append([]string(nil), msgs...)}
	for _, m := range msgs {
		switch {
		case strings.HasPrefix(m, native.MsgSourceFileReplaced):
			old, repl, _ := strings.Cut(strings.TrimPrefix(m, native.MsgSourceFileReplaced), "=")
			if old != "" {
				res.Replacements = append(res.Replacements, config.Replacement{Old: old, New: repl})
			}
		case strings.HasPrefix(m, native.MsgSourceFile):
			if p := strings.TrimPrefix(m, native.MsgSourceFile); p != "" {
				files.Add(p)
			}
		}
	}
	res.Manifest = sets.Sorted(files)
	return res
}

// WriteDiagnostics persists raw messages one per line.
func WriteDiagnostics(path string, msgs []string) error {
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(m)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
