package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/dita2docbook/internal/config"
)

// Descriptor renders the DC project descriptor consumed by the DocBook
// tool chain.
func Descriptor(paths *config.Paths, styleRoot string) []byte {
	var b strings.Builder
	b.WriteString("## -----------------------------------------\n")
	b.WriteString("## Doc Config File\n")
	fmt.Fprintf(&b, "## From DITAMap %s\n", paths.BaseName)
	b.WriteString("## -----------------------------------------\n")
	b.WriteString("##\n\n")
	fmt.Fprintf(&b, "MAIN=%s\n", paths.MainFile)
	b.WriteString("# ROOTID=\n")
	if styleRoot != "" {
		fmt.Fprintf(&b, "STYLEROOT=%s\n", styleRoot)
	}
	return []byte(b.String())
}

// WriteDescriptor writes the descriptor into the project directory and
// returns its path.
func WriteDescriptor(paths *config.Paths, styleRoot string) (string, error) {
	p := filepath.Join(paths.ProjectDir, paths.DCFile)
	if err := os.WriteFile(p, Descriptor(paths, styleRoot), 0o600); err != nil {
		return "", fmt.Errorf("write descriptor: %w", err)
	}
	return p, nil
}

// EnsureEntityFile creates an empty entity file unless one exists already.
func EnsureEntityFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		return false, fmt.Errorf("create entity file: %w", err)
	}
	return true, nil
}
