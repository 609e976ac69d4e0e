package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoad_MissingConfiguration(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "book.ditamap")
	writeFile(t, mapPath, "<map/>")

	_, err := Load(mapPath, filepath.Join(dir, "nope.yaml"))
	require.Error(t, err)
	assert.True(t, cerrors.IsCategory(err, cerrors.CategoryConfig))
}

func TestLoad_DefaultsFromMapDirectory(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "book.ditamap")
	writeFile(t, mapPath, "<map/>")
	writeFile(t, filepath.Join(dir, DefaultFileName), "styleroot: mystyle\n")

	cfg, err := Load(mapPath, "")
	require.NoError(t, err)
	assert.Equal(t, "DC-", cfg.DCPrefix)
	assert.Equal(t, "MAIN.", cfg.MainPrefix)
	assert.Equal(t, "converted", cfg.OutputDir)
	assert.Equal(t, "entities.xml", cfg.EntityFile)
	assert.Equal(t, "mystyle", cfg.StyleRoot)
	assert.Equal(t, 10, cfg.MaxRounds)
	assert.Equal(t, EngineNative, cfg.Transform.Engine)

	timeout, err := cfg.TransformTimeout()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, timeout)
}

func TestLoad_ExplicitFileOverridesMapDirectory(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "maps", "book.ditamap")
	writeFile(t, mapPath, "<map/>")
	writeFile(t, filepath.Join(dir, "maps", DefaultFileName), "dcprefix: X-\nmainprefix: M.\n")
	explicit := filepath.Join(dir, "override.yaml")
	writeFile(t, explicit, "dcprefix: Y-\n")

	cfg, err := Load(mapPath, explicit)
	require.NoError(t, err)
	assert.Equal(t, "Y-", cfg.DCPrefix, "explicit file wins")
	assert.Equal(t, "M.", cfg.MainPrefix, "unset keys keep the earlier value")
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "book.ditamap")
	writeFile(t, mapPath, "<map/>")
	writeFile(t, filepath.Join(dir, DefaultFileName), "styleroot: ${D2D_TEST_STYLE}\n")
	t.Setenv("D2D_TEST_STYLE", "from-env")

	cfg, err := Load(mapPath, "")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.StyleRoot)
}

func TestLoad_DotEnvNextToMap(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "book.ditamap")
	writeFile(t, mapPath, "<map/>")
	writeFile(t, filepath.Join(dir, ".env"), "D2D_DOTENV_STYLE=dotenv\n")
	writeFile(t, filepath.Join(dir, DefaultFileName), "styleroot: ${D2D_DOTENV_STYLE}\n")
	t.Cleanup(func() { _ = os.Unsetenv("D2D_DOTENV_STYLE") })

	cfg, err := Load(mapPath, "")
	require.NoError(t, err)
	assert.Equal(t, "dotenv", cfg.StyleRoot)
}

func TestLoad_ReportsDotEnvThroughGivenLogger(t *testing.T) {
	dir := t.TempDir()
	mapPath := filepath.Join(dir, "book.ditamap")
	writeFile(t, mapPath, "<map/>")
	writeFile(t, filepath.Join(dir, ".env.local"), "D2D_LOGGED=yes\n")
	writeFile(t, filepath.Join(dir, DefaultFileName), "outputdir: out\n")
	t.Cleanup(func() { _ = os.Unsetenv("D2D_LOGGED") })

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	_, err := Load(mapPath, "", WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Loaded environment variables")
	assert.Contains(t, buf.String(), ".env.local")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*Config)
		field string
	}{
		{"unknown engine", func(c *Config) { c.Transform.Engine = "saxon" }, "transform.engine"},
		{"xsltproc needs dir", func(c *Config) { c.Transform.Engine = EngineXSLTProc }, "transform.xslt_dir"},
		{"bad timeout", func(c *Config) { c.Transform.Timeout = "soon" }, "transform.timeout"},
		{"bad backoff", func(c *Config) { c.Transform.Retry.Backoff = "random" }, "transform.retry.backoff"},
		{"entity path", func(c *Config) { c.EntityFile = "dir/entities.xml" }, "entityfile"},
		{"bad replace", func(c *Config) { c.Replace = []string{"no-separator"} }, "replace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.ApplyDefaults()
			tt.mut(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			ce, ok := cerrors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, ce.Context["field"])
		})
	}
}

func TestReplacementsAndRemoveSet(t *testing.T) {
	cfg := &Config{
		Replace: []string{"old.dita = new.dita", "a/b.dita=c/d.dita", "  "},
		Remove:  []string{"x.dita", "x.dita", " y.dita "},
	}
	reps, err := cfg.Replacements()
	require.NoError(t, err)
	assert.Equal(t, []Replacement{{Old: "old.dita", New: "new.dita"}, {Old: "a/b.dita", New: "c/d.dita"}}, reps)
	assert.Equal(t, []string{"x.dita", "y.dita"}, cfg.RemoveSet())
}

func TestResolvePaths(t *testing.T) {
	dir := t.TempDir()
	real, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	mapPath := filepath.Join(dir, "book.ditamap")

	cfg := &Config{}
	cfg.ApplyDefaults()
	p, err := cfg.ResolvePaths(mapPath)
	require.NoError(t, err)
	assert.Equal(t, "book", p.BaseName)
	assert.Equal(t, "DC-book", p.DCFile)
	assert.Equal(t, "MAIN.book", p.MainFile)
	assert.Equal(t, filepath.Join(real, "converted", "book"), p.ProjectDir)
	assert.Equal(t, filepath.Join(real, "converted", "book", "xml"), p.XMLDir)

	abs := t.TempDir()
	cfg.OutputDir = abs
	p, err = cfg.ResolvePaths(mapPath)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(abs, "book"), p.ProjectDir)
}

func TestApplyOverrides(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Apply(Overrides{StyleRoot: "s", Workers: 4, CleanID: true, LogFormat: "JSON"}))
	assert.Equal(t, "s", cfg.StyleRoot)
	assert.Equal(t, 4, cfg.Workers)
	assert.True(t, cfg.CleanID)
	assert.Equal(t, LogFormatJSON, cfg.Logging.Format)

	assert.Error(t, cfg.Apply(Overrides{Engine: "bogus"}))
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, Init(path, false))
	assert.Error(t, Init(path, false), "existing file needs --force")
	require.NoError(t, Init(path, true))

	mapPath := filepath.Join(filepath.Dir(path), "book.ditamap")
	cfg, err := Load(mapPath, "")
	require.NoError(t, err)
	assert.Len(t, cfg.Replace, 1)
}

func TestSnapshotStable(t *testing.T) {
	a := &Config{}
	a.ApplyDefaults()
	b := &Config{}
	b.ApplyDefaults()
	ha, err := a.Snapshot()
	require.NoError(t, err)
	hb, err := b.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.StyleRoot = "other"
	hb, err = b.Snapshot()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hb)
}
