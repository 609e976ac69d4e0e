// Package errors provides a lightweight structured error type (ConversionError)
// for category-based classification of pipeline failures and CLI exit codes.
package errors

import (
	stdErrors "errors"
	"fmt"
)

// ErrorCategory represents the category of a conversion error for classification
type ErrorCategory string

const (
	// User-facing configuration and input errors
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// Per-document processing errors
	CategoryTransform  ErrorCategory = "transform"
	CategoryDocument   ErrorCategory = "document"
	CategoryResolution ErrorCategory = "resolution"

	// Runtime and infrastructure errors
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryEvents     ErrorCategory = "events"
	CategoryInternal   ErrorCategory = "internal"
)

// ErrorSeverity indicates how critical an error is
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // Stops execution
	SeverityError   ErrorSeverity = "error"   // Error, but not fatal
	SeverityWarning ErrorSeverity = "warning" // Continues with degraded functionality
	SeverityInfo    ErrorSeverity = "info"    // Informational, no impact
)

// ConversionError is a structured error with category, retryability, and context
type ConversionError struct {
	Category  ErrorCategory `json:"category"`
	Severity  ErrorSeverity `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"cause,omitempty"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

// ContextFields carries structured context for ConversionError
type ContextFields map[string]any

// Error implements the error interface
func (e *ConversionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

// Unwrap implements error unwrapping for Go 1.13+ error handling
func (e *ConversionError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error
func (e *ConversionError) WithContext(key string, value any) *ConversionError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new ConversionError
func New(category ErrorCategory, severity ErrorSeverity, message string) *ConversionError {
	return &ConversionError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Retryable: false,
	}
}

// Wrap creates a new ConversionError that wraps an existing error
func Wrap(err error, category ErrorCategory, severity ErrorSeverity, message string) *ConversionError {
	return &ConversionError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// WrapRetryable creates a new retryable ConversionError that wraps an existing error
func WrapRetryable(err error, category ErrorCategory, severity ErrorSeverity, message string) *ConversionError {
	return &ConversionError{
		Category:  category,
		Severity:  severity,
		Message:   message,
		Cause:     err,
		Retryable: true,
	}
}

// As extracts the outermost ConversionError from an error chain.
func As(err error) (*ConversionError, bool) {
	var ce *ConversionError
	if stdErrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category
func IsCategory(err error, category ErrorCategory) bool {
	if ce, ok := As(err); ok {
		return ce.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if ce, ok := As(err); ok {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal if not a ConversionError
func GetCategory(err error) ErrorCategory {
	if ce, ok := As(err); ok {
		return ce.Category
	}
	return CategoryInternal
}
