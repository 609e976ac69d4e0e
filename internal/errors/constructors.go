package errors

// Convenience functions for the conversion error taxonomy

// Config errors

func ConfigurationMissing(paths ...string) *ConversionError {
	return New(CategoryConfig, SeverityFatal, "configuration file not found").
		WithContext("paths", paths)
}

func ConfigInvalid(path string, cause error) *ConversionError {
	return Wrap(cause, CategoryValidation, SeverityFatal, "configuration file invalid").
		WithContext("path", path)
}

func ValidationFailed(field, reason string) *ConversionError {
	return New(CategoryValidation, SeverityFatal, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

// Per-document errors. All of these are recoverable: the pipeline records the
// file as failed and carries on with the rest of the manifest.

func TransformApply(file string, cause error) *ConversionError {
	return Wrap(cause, CategoryTransform, SeverityError, "transform apply failed").
		WithContext("file", file)
}

func TransformTimeout(file string, cause error) *ConversionError {
	return WrapRetryable(cause, CategoryTransform, SeverityWarning, "transform timed out").
		WithContext("file", file)
}

func MalformedDocument(file string, cause error) *ConversionError {
	return Wrap(cause, CategoryDocument, SeverityError, "malformed document").
		WithContext("file", file)
}

func IncompleteResolution(file string, rounds, remaining int) *ConversionError {
	return New(CategoryResolution, SeverityWarning, "conref resolution incomplete").
		WithContext("file", file).
		WithContext("rounds", rounds).
		WithContext("remaining", remaining)
}

func ConrefCycle(file string, round int, targets []string) *ConversionError {
	return New(CategoryResolution, SeverityWarning, "conref cycle detected").
		WithContext("file", file).
		WithContext("round", round).
		WithContext("targets", targets)
}

// Pipeline errors

func RootMapUnreadable(path string, cause error) *ConversionError {
	return Wrap(cause, CategoryDocument, SeverityFatal, "root map cannot be parsed").
		WithContext("path", path)
}

func WorkspaceError(operation string, cause error) *ConversionError {
	return Wrap(cause, CategoryFileSystem, SeverityFatal, "workspace operation failed").
		WithContext("operation", operation)
}

func EventSinkError(sink string, cause error) *ConversionError {
	return Wrap(cause, CategoryEvents, SeverityWarning, "event sink failed").
		WithContext("sink", sink)
}

// Internal errors

func InternalError(message string, cause error) *ConversionError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
