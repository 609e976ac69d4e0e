package main

import (
	"os"

	"git.home.luguber.info/inful/dita2docbook/cmd/dita2docbook/commands"
)

func main() {
	os.Exit(commands.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
