package errors

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"testing"
)

func TestConversionError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConversionError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("unexpected EOF"), CategoryDocument, SeverityError, "malformed document"),
			expected: "document (error): malformed document: unexpected EOF",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := test.err.Error()
			if result != test.expected {
				t.Errorf("Error() = %q, want %q", result, test.expected)
			}
		})
	}
}

func TestConversionError_WithContext(t *testing.T) {
	err := IncompleteResolution("topics/a.dita", 10, 2)

	if err.Context == nil {
		t.Fatal("Context should not be nil")
	}
	if err.Context["file"] != "topics/a.dita" {
		t.Errorf("Context[file] = %v, want topics/a.dita", err.Context["file"])
	}
	if err.Context["rounds"] != 10 {
		t.Errorf("Context[rounds] = %v, want 10", err.Context["rounds"])
	}
}

func TestIsCategory_ThroughWrapping(t *testing.T) {
	base := MalformedDocument("a.dita", fmt.Errorf("bad token"))
	wrapped := fmt.Errorf("collect ids: %w", base)

	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		expected bool
	}{
		{"direct match", base, CategoryDocument, true},
		{"wrapped match", wrapped, CategoryDocument, true},
		{"wrong category", wrapped, CategoryTransform, false},
		{"standard error", fmt.Errorf("plain"), CategoryDocument, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsCategory(test.err, test.category); got != test.expected {
				t.Errorf("IsCategory() = %v, want %v", got, test.expected)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(TransformTimeout("a.dita", fmt.Errorf("deadline"))) {
		t.Error("timeouts should be retryable")
	}
	if IsRetryable(TransformApply("a.dita", fmt.Errorf("boom"))) {
		t.Error("apply failures should not be retryable")
	}
	if IsRetryable(fmt.Errorf("plain")) {
		t.Error("plain errors are never retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := TransformApply("a.dita", cause)
	if !stdErrors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if GetCategory(fmt.Errorf("x")) != CategoryInternal {
		t.Error("unclassified errors default to internal")
	}
}

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"configuration missing", ConfigurationMissing("conversion.yaml"), ExitConfigMissing},
		{"wrapped configuration missing", fmt.Errorf("load: %w", ConfigurationMissing("x")), ExitConfigMissing},
		{"invalid configuration", ConfigInvalid("x", fmt.Errorf("yaml")), 2},
		{"root map unreadable", RootMapUnreadable("book.ditamap", fmt.Errorf("eof")), 11},
		{"unclassified error", fmt.Errorf("unknown"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := adapter.ExitCodeFor(tt.err); got != tt.expected {
				t.Errorf("ExitCodeFor() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())
	if got := adapter.FormatError(ConfigurationMissing("a")); got != "configuration file not found" {
		t.Errorf("FormatError() = %q", got)
	}
	if got := adapter.FormatError(TransformApply("a", fmt.Errorf("x"))); got != "transform: transform apply failed" {
		t.Errorf("FormatError() = %q", got)
	}

	verbose := NewCLIErrorAdapter(true, slog.Default())
	if got := verbose.FormatError(TransformApply("a", fmt.Errorf("x"))); got != "transform (error): transform apply failed: x" {
		t.Errorf("verbose FormatError() = %q", got)
	}
}
