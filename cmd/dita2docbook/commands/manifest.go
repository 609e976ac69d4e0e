package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
	"git.home.luguber.info/inful/dita2docbook/internal/manifest"
	"git.home.luguber.info/inful/dita2docbook/internal/pipeline"
)

// ManifestCmd implements the 'manifest' command: only the extractor runs and
// nothing is written to the project directory.
type ManifestCmd struct {
	ConvertFlags
	JSON bool   `name:"json" help:"Print the manifest and replacements as JSON"`
	Map  string `arg:"" name:"ditamap" help:"Root DITA map"`
}

type manifestOutput struct {
	Manifest     []string             `json:"manifest"`
	Replacements []config.Replacement `json:"replacements,omitempty"`
}

func (m *ManifestCmd) Run(g *Global, root *CLI) error {
	cfg, paths, err := loadConfig(g, root, m.Map, m.ConvertFlags)
	if err != nil {
		return err
	}
	inv, programs, err := pipeline.NewInvoker(cfg, g.Logger, nil)
	if err != nil {
		return err
	}
	scratch, err := os.MkdirTemp("", "dita2docbook-manifest-*")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(scratch) }()

	replacements, _ := cfg.Replacements()
	ctx, cancel := signalContext()
	defer cancel()
	res, err := manifest.NewExtractor(inv, programs.MapToMain, g.Logger).Extract(ctx, paths.MapPath, manifest.Options{
		Prefix:       paths.BaseName,
		EntityFile:   cfg.EntityFile,
		Replacements: replacements,
		Remove:       cfg.RemoveSet(),
		MainPath:     filepath.Join(scratch, paths.MainFile),
	})
	if err != nil {
		return err
	}

	if m.JSON {
		enc := json.NewEncoder(g.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(manifestOutput{Manifest: res.Manifest, Replacements: res.Replacements})
	}
	for _, f := range res.Manifest {
		fmt.Fprintln(g.Stdout, f)
	}
	return nil
}
