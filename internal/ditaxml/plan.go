package ditaxml

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
)

// RenamePlan is the output of the collect phase of identifier uniquification
// and the input of every per-file rewrite. Files are keyed by their
// base-relative manifest path.
type RenamePlan struct {
	Collisions []string                `json:"collisions"`
	Files      map[string]*FileRenames `json:"files"`
	// Owners lists, for each colliding value, the files declaring it in
	// manifest order.
	Owners map[string][]string `json:"owners,omitempty"`
}

// FileRenames holds the decisions for one file.
type FileRenames struct {
	// Declarations maps a value to the new value of each of its occurrences
	// in document order. An empty entry keeps the original.
	Declarations map[string][]string `json:"declarations,omitempty"`
	// Scopes holds, parallel to Declarations, the identifier values of the
	// ancestors of each occurrence, outermost first.
	Scopes map[string][][]string `json:"scopes,omitempty"`
	// Drop lists unreferenced values removed entirely.
	Drop []string `json:"drop,omitempty"`
}

// NewRenamePlan returns an empty plan.
func NewRenamePlan() *RenamePlan {
	return &RenamePlan{Files: make(map[string]*FileRenames), Owners: make(map[string][]string)}
}

// ForFile returns the decisions for file, never nil.
func (p *RenamePlan) ForFile(file string) *FileRenames {
	if p == nil || p.Files == nil {
		return &FileRenames{}
	}
	if f, ok := p.Files[file]; ok && f != nil {
		return f
	}
	return &FileRenames{}
}

// Rename returns the new value for the nth occurrence of value.
func (f *FileRenames) Rename(value string, occurrence int) (string, bool) {
	news, ok := f.Declarations[value]
	if !ok || occurrence >= len(news) || news[occurrence] == "" {
		return value, false
	}
	return news[occurrence], true
}

// Dropped reports whether value is removed from the file.
func (f *FileRenames) Dropped(value string) bool {
	for _, d := range f.Drop {
		if d == value {
			return true
		}
	}
	return false
}

// Lookup maps a reference to value inside file onto its new value, using the
// value's first occurrence in that file.
func (p *RenamePlan) Lookup(file, value string) string {
	if v, ok := p.ForFile(file).Rename(value, 0); ok {
		return v
	}
	return value
}

// LookupIn maps an element reference written as topic/value inside file onto
// its new value. The first occurrence below topic wins; without a topic, or
// when no occurrence lies below it, the first occurrence in the file is used.
func (p *RenamePlan) LookupIn(file, topic, value string) string {
	f := p.ForFile(file)
	if topic != "" {
		for i, scope := range f.Scopes[value] {
			if !slices.Contains(scope, topic) {
				continue
			}
			if v, ok := f.Rename(value, i); ok {
				return v
			}
			return value
		}
	}
	return p.Lookup(file, value)
}

// LookupGlobal resolves a file-less reference such as linkend. The host
// file's own declaration wins, otherwise the first owner in manifest order.
func (p *RenamePlan) LookupGlobal(host, value string) string {
	owners := p.Owners[value]
	if len(owners) == 0 {
		return p.Lookup(host, value)
	}
	for _, o := range owners {
		if o == host {
			return p.Lookup(host, value)
		}
	}
	return p.Lookup(owners[0], value)
}

// WritePlan persists a plan as JSON.
func WritePlan(path string, p *RenamePlan) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rename plan: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write rename plan: %w", err)
	}
	return nil
}

// ReadPlan loads a plan written by WritePlan.
func ReadPlan(path string) (*RenamePlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rename plan: %w", err)
	}
	p := NewRenamePlan()
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode rename plan %s: %w", path, err)
	}
	return p, nil
}
