package transform

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// ExecInvoker runs programs through the xsltproc binary. xsl:message output
// arrives on stderr and becomes the diagnostic message sequence.
type ExecInvoker struct {
	Binary  string // defaults to "xsltproc"
	XSLTDir string // resolves relative program paths
}

// NewExecInvoker creates an invoker for stylesheets in xsltDir.
func NewExecInvoker(xsltDir string) *ExecInvoker {
	return &ExecInvoker{Binary: "xsltproc", XSLTDir: xsltDir}
}

// Apply implements Invoker.
func (x *ExecInvoker) Apply(ctx context.Context, req Request) (*Result, error) {
	args, err := x.args(req)
	if err != nil {
		return nil, &ApplyError{Input: req.Input, Program: req.Program, Err: err}
	}
	bin := x.Binary
	if bin == "" {
		bin = "xsltproc"
	}

	// #nosec G204 - binary and stylesheet come from configuration
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	messages := splitMessages(stderr.Bytes())
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			runErr = fmt.Errorf("%w: %v", ctxErr, runErr)
		}
		return nil, &ApplyError{Input: req.Input, Program: req.Program, Messages: messages, Err: runErr}
	}
	return &Result{Messages: messages}, nil
}

func (x *ExecInvoker) args(req Request) ([]string, error) {
	var args []string
	if req.NoNet {
		args = append(args, "--nonet")
	}
	for _, k := range req.Params.SortedKeys() {
		if err := ValidateParamName(k); err != nil {
			return nil, err
		}
		args = append(args, "--stringparam", k, req.Params[k])
	}
	program := req.Program
	if !filepath.IsAbs(program) && x.XSLTDir != "" {
		program = filepath.Join(x.XSLTDir, program)
	}
	if filepath.Ext(program) == "" {
		program += ".xsl"
	}
	args = append(args, "-o", req.Output, program, req.Input)
	return args, nil
}

func splitMessages(b []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}
