package transform

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Program is an in-process transformation. emit appends one diagnostic
// message, the native counterpart of xsl:message.
type Program interface {
	Run(ctx context.Context, req Request, emit func(string)) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ctx context.Context, req Request, emit func(string)) error

// Run implements Program.
func (f ProgramFunc) Run(ctx context.Context, req Request, emit func(string)) error {
	return f(ctx, req, emit)
}

// NativeInvoker dispatches requests to registered programs by ProgramName.
type NativeInvoker struct {
	mu       sync.RWMutex
	programs map[string]Program
}

// NewNativeInvoker creates an empty registry.
func NewNativeInvoker() *NativeInvoker {
	return &NativeInvoker{programs: make(map[string]Program)}
}

// Register adds or replaces a program.
func (n *NativeInvoker) Register(name string, p Program) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.programs[name] = p
}

// Programs lists the registered program names.
func (n *NativeInvoker) Programs() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	names := make([]string, 0, len(n.programs))
	for k := range n.programs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Apply implements Invoker.
func (n *NativeInvoker) Apply(ctx context.Context, req Request) (*Result, error) {
	name := ProgramName(req.Program)
	n.mu.RLock()
	p, ok := n.programs[name]
	n.mu.RUnlock()
	if !ok {
		return nil, &ApplyError{Input: req.Input, Program: req.Program, Err: fmt.Errorf("unknown program %q", name)}
	}
	for k := range req.Params {
		if err := ValidateParamName(k); err != nil {
			return nil, &ApplyError{Input: req.Input, Program: req.Program, Err: err}
		}
	}

	var messages []string
	emit := func(m string) { messages = append(messages, m) }
	if err := ctx.Err(); err != nil {
		return nil, &ApplyError{Input: req.Input, Program: req.Program, Err: err}
	}
	if err := p.Run(ctx, req, emit); err != nil {
		return nil, &ApplyError{Input: req.Input, Program: req.Program, Messages: messages, Err: err}
	}
	return &Result{Messages: messages}, nil
}
