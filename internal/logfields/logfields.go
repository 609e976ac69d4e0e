package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyRunID      = "run_id"
	KeyStage      = "stage"
	KeyDurationMS = "duration_ms"
	KeyFile       = "file"
	KeyPath       = "path"
	KeyProgram    = "program"
	KeyRound      = "round"
	KeyTarget     = "target"
	KeyWorker     = "worker"
	KeyCount      = "count"
	KeyValue      = "value"
	KeyCritical   = "critical"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func RunID(id string) slog.Attr       { return slog.String(KeyRunID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func File(f string) slog.Attr         { return slog.String(KeyFile, f) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Program(p string) slog.Attr      { return slog.String(KeyProgram, p) }
func Round(n int) slog.Attr           { return slog.Int(KeyRound, n) }
func Target(t string) slog.Attr       { return slog.String(KeyTarget, t) }
func Worker(n int) slog.Attr          { return slog.Int(KeyWorker, n) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Value(v string) slog.Attr        { return slog.String(KeyValue, v) }
func Critical() slog.Attr             { return slog.Bool(KeyCritical, true) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
