package native

import (
	"context"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"git.home.luguber.info/inful/dita2docbook/internal/ditaxml"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
)

// Parameters understood by MakeUniqueIDs.
const (
	ParamCollisions = "collisions" // space separated colliding values
	ParamFilePath   = "filepath"   // base-relative path of the input
	ParamRenameMap  = "renamemap"  // rename plan written by the collect phase
)

// MakeUniqueIDs applies the rename plan to one document. Declarations are
// renamed per occurrence, references are rewritten through the target file's
// renames, and dropped identifiers are removed except on the root element.
func MakeUniqueIDs(ctx context.Context, req transform.Request, emit func(string)) error {
	planPath := req.Params[ParamRenameMap]
	if planPath == "" {
		return fmt.Errorf("missing parameter %s", ParamRenameMap)
	}
	plan, err := ditaxml.ReadPlan(planPath)
	if err != nil {
		return err
	}
	doc, err := ditaxml.Load(req.Input)
	if err != nil {
		return err
	}

	host := req.Params[ParamFilePath]
	colliding := make(map[string]bool)
	for _, c := range strings.Fields(req.Params[ParamCollisions]) {
		colliding[c] = true
	}
	fr := plan.ForFile(host)
	root := doc.Root()
	seen := make(map[string]int)

	ditaxml.Walk(root, func(e *etree.Element) bool {
		for _, v := range ditaxml.IDValues(e) {
			n := seen[v]
			seen[v] = n + 1
			switch {
			case e != root && fr.Dropped(v):
				ditaxml.RemoveID(e, v)
				emit(MsgIDDropped + v)
			case colliding[v]:
				if nv, ok := fr.Rename(v, n); ok {
					ditaxml.RenameID(e, v, nv)
					emit(MsgIDRenamed + v + "=" + nv)
				}
			}
		}
		rewriteRefs(e, host, plan)
		return true
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	return ditaxml.Save(doc, req.Output)
}

func rewriteRefs(e *etree.Element, host string, plan *ditaxml.RenamePlan) {
	for _, k := range []string{"href", "conref"} {
		a := e.SelectAttr(k)
		if a == nil || !ditaxml.IsLocal(a.Value) {
			continue
		}
		ref := ditaxml.ParseRef(a.Value)
		if !ref.HasFragment {
			continue
		}
		file := ditaxml.ResolveFile(ref, host)
		if ref.Element != "" {
			ref.Element = plan.LookupIn(file, ref.Topic, ref.Element)
		}
		ref.Topic = plan.Lookup(file, ref.Topic)
		a.Value = ref.String()
	}
	for _, k := range []string{"linkend", "endterm"} {
		if a := e.SelectAttr(k); a != nil && a.Value != "" {
			a.Value = plan.LookupGlobal(host, a.Value)
		}
	}
}
