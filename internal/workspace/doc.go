// Package workspace manages the working tree: the private, mutable copy of the
// manifest files that conref resolution and identifier rewriting operate on.
//
// Ephemeral mode creates a unique timestamped scratch directory
// (e.g., dita2docbook-20251214-122336-1234) and removes it on Cleanup unless the
// caller asked for it to be retained.
//
// Persistent mode uses a fixed directory path that survives across runs, which
// is what watch mode uses so repeated conversions land in the same place.
package workspace
