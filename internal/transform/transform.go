package transform

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// Names of the transformation programs the pipeline invokes. For the xsltproc
// engine each maps to <xslt_dir>/<name>.xsl.
const (
	ProgramMapToMain      = "map-to-MAIN"
	ProgramResolveConrefs = "resolve-conrefs"
	ProgramMakeUniqueIDs  = "make-unique-ids"
)

// Params are the named string parameters passed to a program.
type Params map[string]string

// Request describes a single program invocation.
type Request struct {
	Input   string
	Program string
	Params  Params
	Output  string
	NoNet   bool // refuse to fetch DTDs or entities over the network
}

// Result carries the diagnostic message sequence of a successful invocation.
type Result struct {
	Messages []string
}

// Invoker applies transformation programs.
type Invoker interface {
	Apply(ctx context.Context, req Request) (*Result, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, req Request) (*Result, error)

// Apply implements Invoker.
func (f InvokerFunc) Apply(ctx context.Context, req Request) (*Result, error) { return f(ctx, req) }

// ApplyError is returned when a program fails on an input document.
type ApplyError struct {
	Input    string
	Program  string
	Messages []string
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("apply %s to %s: %v", ProgramName(e.Program), e.Input, e.Err)
}

func (e *ApplyError) Unwrap() error { return e.Err }

// IsTimeout reports whether err was caused by an expired invocation deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// ProgramName returns the registry name of a program path: its base name
// without extension, so "xslt/map-to-MAIN.xsl" becomes "map-to-MAIN".
func ProgramName(program string) string {
	base := filepath.Base(program)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ProgramPath returns the stylesheet location of a program inside dir.
func ProgramPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return filepath.Join(dir, name+".xsl")
}

// ValidateParamName rejects names xsltproc cannot take as --stringparam.
func ValidateParamName(name string) error {
	if name == "" {
		return fmt.Errorf("empty parameter name")
	}
	if strings.ContainsAny(name, "+:") {
		return fmt.Errorf("parameter name %q contains invalid character", name)
	}
	return nil
}

// SortedKeys returns parameter names in a stable order.
func (p Params) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReproCommand renders an xsltproc command line that reproduces the request
// by hand. It is logged whenever an invocation fails.
func (r Request) ReproCommand() string {
	var b strings.Builder
	b.WriteString("xsltproc")
	if r.NoNet {
		b.WriteString(" --nonet")
	}
	for _, k := range r.Params.SortedKeys() {
		fmt.Fprintf(&b, " --stringparam %s %s", k, shellQuote(r.Params[k]))
	}
	fmt.Fprintf(&b, " %s %s > %s", shellQuote(r.Program), shellQuote(r.Input), shellQuote(r.Output))
	return b.String()
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`;&|<>*?()[]{}") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
