package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing configuration file"`
	Output string `short:"o" name:"output" default:"." help:"Directory receiving conversion.yaml, usually the one holding the map"`
}

func (i *InitCmd) Run(g *Global, _ *CLI) error {
	cfgPath := filepath.Join(i.Output, config.DefaultFileName)
	fmt.Fprintf(g.Stdout, "Writing configuration to %s\n", cfgPath)
	if err := config.Init(cfgPath, i.Force); err != nil {
		return err
	}
	fmt.Fprintln(g.Stdout, "initialized successfully")
	return nil
}
