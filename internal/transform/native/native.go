// Package native implements the pipeline's transformation programs in-process
// on top of etree, for use through transform.NativeInvoker.
package native

import (
	"strings"

	"github.com/beevik/etree"

	"git.home.luguber.info/inful/dita2docbook/internal/transform"
)

// Message prefixes emitted by the programs.
const (
	MsgSourceFile         = "source-file:"
	MsgSourceFileReplaced = "source-file-replaced:"
	MsgConrefResolved     = "conref-resolved:"
	MsgIDRenamed          = "id-renamed:"
	MsgIDDropped          = "id-dropped:"
)

// Register adds every native program to inv.
func Register(inv *transform.NativeInvoker) {
	inv.Register(transform.ProgramMapToMain, transform.ProgramFunc(MapToMain))
	inv.Register(transform.ProgramResolveConrefs, transform.ProgramFunc(ResolveConrefs))
	inv.Register(transform.ProgramMakeUniqueIDs, transform.ProgramFunc(MakeUniqueIDs))
}

// NewInvoker returns a NativeInvoker with all programs registered.
func NewInvoker() *transform.NativeInvoker {
	inv := transform.NewNativeInvoker()
	Register(inv)
	return inv
}

// textContent concatenates the character data below el.
func textContent(el *etree.Element) string {
	var b strings.Builder
	var walk func(*etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				b.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(el)
	return strings.Join(strings.Fields(b.String()), " ")
}

// splitList parses newline separated parameter lists.
func splitList(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
