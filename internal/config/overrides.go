package config

// Overrides carries command-line values that take precedence over the file.
// Zero values mean "not given".
type Overrides struct {
	OutputDir  string
	StyleRoot  string
	EntityFile string
	CleanTmp   bool
	CleanID    bool
	Workers    int
	MaxRounds  int
	Engine     string
	XSLTDir    string
	LogFormat  string
}

// Apply merges the overrides into the configuration and re-validates it.
func (c *Config) Apply(o Overrides) error {
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.StyleRoot != "" {
		c.StyleRoot = o.StyleRoot
	}
	if o.EntityFile != "" {
		c.EntityFile = o.EntityFile
	}
	if o.CleanTmp {
		c.CleanTmp = true
	}
	if o.CleanID {
		c.CleanID = true
	}
	if o.Workers > 0 {
		c.Workers = o.Workers
	}
	if o.MaxRounds > 0 {
		c.MaxRounds = o.MaxRounds
	}
	if o.Engine != "" {
		c.Transform.Engine = TransformEngine(o.Engine)
	}
	if o.XSLTDir != "" {
		c.Transform.XSLTDir = o.XSLTDir
	}
	if o.LogFormat != "" {
		c.Logging.Format = NormalizeLogFormat(o.LogFormat)
	}
	return c.Validate()
}
