package commands

import (
	"fmt"

	"git.home.luguber.info/inful/dita2docbook/internal/pipeline"
)

// ConvertCmd implements the 'convert' command.
type ConvertCmd struct {
	ConvertFlags
	Map string `arg:"" name:"ditamap" help:"Root DITA map"`
}

func (c *ConvertCmd) Run(g *Global, root *CLI) error {
	cfg, paths, err := loadConfig(g, root, c.Map, c.ConvertFlags)
	if err != nil {
		return err
	}
	debugConfig(g.Logger, cfg, paths)

	ctx, cancel := signalContext()
	defer cancel()
	res, err := pipeline.Run(ctx, cfg, c.Map, pipeline.Options{Logger: g.Logger})
	if err != nil {
		return err
	}
	// failed files are reported but do not change the exit status
	fmt.Fprintf(g.Stdout, "%s: %s (%d files, %d failed) -> %s\n",
		res.Status, paths.BaseName, len(res.Manifest), len(res.Failed), paths.ProjectDir)
	return nil
}
