package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Paths holds the locations derived from the root map and configuration.
type Paths struct {
	MapPath    string // absolute path of the root map
	BaseDir    string // directory of the root map, symlinks resolved
	BaseName   string // map file name without extension
	DCFile     string // project descriptor file name
	MainFile   string // generated entry document file name
	ProjectDir string
	XMLDir     string
}

// BaseDir returns the real directory containing the root map.
func BaseDir(mapPath string) (string, error) {
	abs, err := filepath.Abs(mapPath)
	if err != nil {
		return "", fmt.Errorf("resolve map path: %w", err)
	}
	dir := filepath.Dir(abs)
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		dir = real
	}
	return dir, nil
}

// ResolvePaths computes all derived locations for a root map.
func (c *Config) ResolvePaths(mapPath string) (*Paths, error) {
	basedir, err := BaseDir(mapPath)
	if err != nil {
		return nil, err
	}
	base := filepath.Base(mapPath)
	basename := strings.TrimSuffix(base, filepath.Ext(base))

	p := &Paths{
		MapPath:  filepath.Join(basedir, base),
		BaseDir:  basedir,
		BaseName: basename,
		DCFile:   c.DCPrefix + basename + c.DCSuffix,
		MainFile: c.MainPrefix + basename + c.MainSuffix,
	}
	if filepath.IsAbs(c.OutputDir) {
		p.ProjectDir = filepath.Join(c.OutputDir, basename)
	} else {
		p.ProjectDir = filepath.Join(basedir, c.OutputDir, basename)
	}
	p.XMLDir = filepath.Join(p.ProjectDir, "xml")
	return p, nil
}
