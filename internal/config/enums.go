package config

import "strings"

// TransformEngine selects the Transform Invoker implementation.
type TransformEngine string

const (
	EngineNative   TransformEngine = "native"
	EngineXSLTProc TransformEngine = "xsltproc"
)

// NormalizeTransformEngine returns the typed engine or empty string for unknown input.
func NormalizeTransformEngine(raw string) TransformEngine {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(EngineNative):
		return EngineNative
	case string(EngineXSLTProc):
		return EngineXSLTProc
	default:
		return ""
	}
}

// LogLevel enumerates supported logging levels.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// NormalizeLogLevel maps user input to a level, defaulting to info.
func NormalizeLogLevel(raw string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// LogFormat enumerates supported log output formats.
type LogFormat string

const (
	LogFormatJSON LogFormat = "json"
	LogFormatText LogFormat = "text"
)

// NormalizeLogFormat maps user input to a format, defaulting to text.
func NormalizeLogFormat(raw string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(raw), string(LogFormatJSON)) {
		return LogFormatJSON
	}
	return LogFormatText
}
