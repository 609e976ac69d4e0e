package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	cerrors "git.home.luguber.info/inful/dita2docbook/internal/errors"
)

// DefaultFileName is the configuration file looked up next to the root map.
const DefaultFileName = "conversion.yaml"

// Config represents the conversion configuration.
type Config struct {
	DCPrefix   string   `yaml:"dcprefix"`
	DCSuffix   string   `yaml:"dcsuffix"`
	MainPrefix string   `yaml:"mainprefix"`
	MainSuffix string   `yaml:"mainsuffix"`
	OutputDir  string   `yaml:"outputdir"`
	EntityFile string   `yaml:"entityfile"`
	StyleRoot  string   `yaml:"styleroot,omitempty"`
	CleanTmp   bool     `yaml:"cleantmp"`
	CleanID    bool     `yaml:"cleanid"`
	Replace    []string `yaml:"replace,omitempty"` // "old = new" pairs
	Remove     []string `yaml:"remove,omitempty"`
	Tweak      string   `yaml:"tweak,omitempty"`
	Workers    int      `yaml:"workers,omitempty"`
	MaxRounds  int      `yaml:"max_rounds,omitempty"`

	Transform TransformConfig `yaml:"transform"`
	Events    EventsConfig    `yaml:"events,omitempty"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	Report    ReportConfig    `yaml:"report,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// TransformConfig selects and tunes the Transform Invoker.
type TransformConfig struct {
	Engine  TransformEngine `yaml:"engine"`
	XSLTDir string          `yaml:"xslt_dir,omitempty"`
	Timeout string          `yaml:"timeout,omitempty"`
	Retry   RetryConfig     `yaml:"retry,omitempty"`
}

// RetryConfig configures retries of transient invocation failures (timeouts).
type RetryConfig struct {
	Backoff    RetryBackoffMode `yaml:"backoff,omitempty"`
	Initial    string           `yaml:"initial,omitempty"`
	Max        string           `yaml:"max,omitempty"`
	MaxRetries int              `yaml:"max_retries,omitempty"`
}

// EventsConfig configures where pipeline events are persisted or streamed.
type EventsConfig struct {
	SQLite      string `yaml:"sqlite,omitempty"`
	NATSURL     string `yaml:"nats_url,omitempty"`
	NATSSubject string `yaml:"nats_subject,omitempty"`
}

// MetricsConfig configures the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `yaml:"textfile,omitempty"`
}

// ReportConfig configures the end-of-run report.
type ReportConfig struct {
	HTML bool `yaml:"html"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level,omitempty"`
	Format LogFormat `yaml:"format,omitempty"`
}

// Replacement is one parsed "old = new" entry of the replace list.
type Replacement struct {
	Old string
	New string
}

var replaceSeparator = regexp.MustCompile(`\s*=\s*`)

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	logger *slog.Logger
}

// WithLogger routes messages about environment files to l.
func WithLogger(l *slog.Logger) LoadOption {
	return func(o *loadOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// Load reads the configuration for a root map. It reads the default file next
// to the map first and the explicitly given file second, so values from the
// explicit file win. At least one of them must exist.
func Load(mapPath, configPath string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	loadEnvFiles(filepath.Dir(mapPath), o.logger)

	basedir, err := BaseDir(mapPath)
	if err != nil {
		return nil, err
	}
	candidates := []string{filepath.Join(basedir, DefaultFileName)}
	if configPath != "" {
		if abs, err := filepath.Abs(configPath); err == nil && abs != candidates[0] {
			candidates = append(candidates, configPath)
		}
	}

	cfg := &Config{}
	found := 0
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, cerrors.ConfigInvalid(path, err)
		}
		// Expand environment variables in the YAML content
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, cerrors.ConfigInvalid(path, err)
		}
		found++
	}
	if found == 0 {
		return nil, cerrors.ConfigurationMissing(candidates...)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields with the original tool's defaults.
func (c *Config) ApplyDefaults() {
	if c.DCPrefix == "" {
		c.DCPrefix = "DC-"
	}
	if c.MainPrefix == "" {
		c.MainPrefix = "MAIN."
	}
	if c.OutputDir == "" {
		c.OutputDir = "converted"
	}
	if c.EntityFile == "" {
		c.EntityFile = "entities.xml"
	}
	if c.MaxRounds <= 0 {
		c.MaxRounds = 10
	}
	if c.Workers < 0 {
		c.Workers = 0
	}
	if c.Transform.Engine == "" {
		c.Transform.Engine = EngineNative
	}
	if c.Transform.Timeout == "" {
		c.Transform.Timeout = "60s"
	}
	if c.Events.NATSSubject == "" {
		c.Events.NATSSubject = "dita2docbook.events"
	}
	c.Logging.Level = NormalizeLogLevel(string(c.Logging.Level))
	c.Logging.Format = NormalizeLogFormat(string(c.Logging.Format))
}

// Validate checks enumerated and bounded fields.
func (c *Config) Validate() error {
	engine := NormalizeTransformEngine(string(c.Transform.Engine))
	if engine == "" {
		return cerrors.ValidationFailed("transform.engine", fmt.Sprintf("unknown engine %q (allowed: native|xsltproc)", c.Transform.Engine))
	}
	c.Transform.Engine = engine
	if engine == EngineXSLTProc && c.Transform.XSLTDir == "" {
		return cerrors.ValidationFailed("transform.xslt_dir", "required for the xsltproc engine")
	}
	if _, err := c.TransformTimeout(); err != nil {
		return cerrors.ValidationFailed("transform.timeout", err.Error())
	}
	if b := c.Transform.Retry.Backoff; b != "" && NormalizeRetryBackoff(string(b)) == "" {
		return cerrors.ValidationFailed("transform.retry.backoff", fmt.Sprintf("invalid backoff %q (allowed: fixed|linear|exponential)", b))
	}
	if c.Transform.Retry.MaxRetries < 0 {
		return cerrors.ValidationFailed("transform.retry.max_retries", "cannot be negative")
	}
	if strings.ContainsAny(c.EntityFile, `/\`) {
		return cerrors.ValidationFailed("entityfile", "must be a file name, not a path")
	}
	if _, err := c.Replacements(); err != nil {
		return cerrors.ValidationFailed("replace", err.Error())
	}
	return nil
}

// TransformTimeout returns the per-invocation deadline; zero disables it.
func (c *Config) TransformTimeout() (time.Duration, error) {
	if c.Transform.Timeout == "" || c.Transform.Timeout == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Transform.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", c.Transform.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", c.Transform.Timeout)
	}
	return d, nil
}

// Replacements parses the replace list into old/new pairs.
func (c *Config) Replacements() ([]Replacement, error) {
	out := make([]Replacement, 0, len(c.Replace))
	for _, raw := range c.Replace {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := replaceSeparator.Split(raw, 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("entry %q is not of the form old = new", raw)
		}
		out = append(out, Replacement{Old: parts[0], New: parts[1]})
	}
	return out, nil
}

// RemoveSet returns the deduplicated remove list.
func (c *Config) RemoveSet() []string {
	seen := make(map[string]bool, len(c.Remove))
	out := make([]string, 0, len(c.Remove))
	for _, r := range c.Remove {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// Init creates a new configuration file with example content
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Config{
		DCPrefix:   "DC-",
		MainPrefix: "MAIN.",
		OutputDir:  "converted",
		EntityFile: "entities.xml",
		Replace:    []string{"legacy/old-intro.dita = topics/intro.dita"},
		Remove:     []string{"drafts/unfinished.dita"},
		MaxRounds:  10,
		Transform: TransformConfig{
			Engine:  EngineNative,
			Timeout: "60s",
			Retry:   RetryConfig{Backoff: RetryBackoffLinear, Initial: "1s", Max: "10s", MaxRetries: 1},
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
