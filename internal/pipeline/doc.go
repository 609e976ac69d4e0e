// Package pipeline runs one conversion of a root map: manifest extraction,
// conref resolution into a private working tree, identifier uniquification,
// and the project outputs (MAIN document, entity file, DC descriptor, run
// manifest and report).
package pipeline
