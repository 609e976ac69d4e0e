package errors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// ExitConfigMissing is the process status used when no configuration file
// could be located. It is distinct from every other failure status.
const ExitConfigMissing = 10

// CLIErrorAdapter handles error presentation and exit code determination for CLI applications.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{
		verbose: verbose,
		logger:  logger,
	}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}

	if ce, ok := As(err); ok {
		return a.exitCodeFromConversion(ce)
	}

	return 1
}

// exitCodeFromConversion maps ConversionError to exit codes.
func (a *CLIErrorAdapter) exitCodeFromConversion(err *ConversionError) int {
	switch err.Category {
	case CategoryConfig:
		return ExitConfigMissing
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryTransform, CategoryDocument, CategoryResolution, CategoryFileSystem:
		return 11 // Conversion error
	case CategoryEvents:
		return 12 // Runtime error
	case CategoryInternal:
		return 1
	default:
		return 1 // General error
	}
}

// FormatError formats an error for user-friendly display.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}

	if ce, ok := As(err); ok {
		return a.formatConversion(ce)
	}

	return fmt.Sprintf("Error: %v", err)
}

// formatConversion formats a ConversionError for display.
func (a *CLIErrorAdapter) formatConversion(err *ConversionError) string {
	if a.verbose {
		return err.Error()
	}

	switch err.Category {
	case CategoryConfig, CategoryValidation:
		return err.Message
	default:
		return fmt.Sprintf("%s: %s", err.Category, err.Message)
	}
}

// HandleError processes an error and exits the program with appropriate code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	exitCode := a.ExitCodeFor(err)
	message := a.FormatError(err)

	if a.shouldLog(err) {
		a.logError(err)
	}

	fmt.Fprintf(os.Stderr, "%s\n", message)
	os.Exit(exitCode)
}

// shouldLog determines if an error should be logged.
func (a *CLIErrorAdapter) shouldLog(err error) bool {
	if a.verbose {
		return true
	}

	if ce, ok := As(err); ok {
		return ce.Category == CategoryInternal ||
			ce.Severity == SeverityFatal
	}

	return true
}

// logError logs an error with appropriate level and context.
func (a *CLIErrorAdapter) logError(err error) {
	if ce, ok := As(err); ok {
		level := a.slogLevelFromConversionSeverity(ce.Severity)
		attrs := []slog.Attr{
			slog.String("category", string(ce.Category)),
		}
		if ce.Retryable {
			attrs = append(attrs, slog.Bool("retryable", true))
		}

		a.logger.LogAttrs(context.Background(), level, ce.Message, attrs...)
		return
	}

	a.logger.Error("Unclassified error", "error", err)
}

// slogLevelFromConversionSeverity converts ConversionError severity to slog level.
func (a *CLIErrorAdapter) slogLevelFromConversionSeverity(severity ErrorSeverity) slog.Level {
	switch severity {
	case SeverityInfo:
		return slog.LevelInfo
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityFatal:
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
