package native

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/beevik/etree"

	"git.home.luguber.info/inful/dita2docbook/internal/ditaxml"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
)

// Parameters understood by ResolveConrefs.
const (
	ParamBasePath         = "basepath"
	ParamRelativeFilePath = "relativefilepath"
)

// ResolveConrefs performs one substitution pass over the input: every element
// carrying a conref is replaced by a copy of its target. Targets are always
// read from the original tree below basepath. References inside the
// copied content are rebased so they still resolve from the host file, and
// conrefs among them are left for the next pass.
func ResolveConrefs(ctx context.Context, req transform.Request, emit func(string)) error {
	basepath := req.Params[ParamBasePath]
	if basepath == "" {
		return fmt.Errorf("missing parameter %s", ParamBasePath)
	}
	doc, err := ditaxml.Load(req.Input)
	if err != nil {
		return err
	}
	p := &conrefPass{
		basepath: basepath,
		host:     ditaxml.HostPath(req.Params[ParamRelativeFilePath], filepath.Base(req.Input)),
		doc:      doc,
		cache:    make(map[string]*etree.Document),
		emit:     emit,
	}

	var directives []*etree.Element
	ditaxml.Walk(doc.Root(), func(e *etree.Element) bool {
		if e.SelectAttr("conref") != nil {
			directives = append(directives, e)
		}
		return true
	})
	for _, el := range directives {
		if err := ctx.Err(); err != nil {
			return err
		}
		// an enclosing directive already replaced this one
		if !ditaxml.Attached(el, doc.Root()) {
			continue
		}
		if err := p.substitute(el); err != nil {
			return err
		}
	}
	return ditaxml.Save(doc, req.Output)
}

type conrefPass struct {
	basepath string
	host     string
	doc      *etree.Document
	cache    map[string]*etree.Document
	emit     func(string)
}

func (p *conrefPass) substitute(el *etree.Element) error {
	raw := el.SelectAttrValue("conref", "")
	ref := ditaxml.ParseRef(raw)
	if !ref.HasFragment || ref.Topic == "" {
		return fmt.Errorf("conref %q in %s has no topic fragment", raw, p.host)
	}
	target := ditaxml.ResolveFile(ref, p.host)
	tdoc, err := p.load(target)
	if err != nil {
		return fmt.Errorf("conref %q in %s: %w", raw, p.host, err)
	}
	src := ditaxml.Resolve(tdoc, ref.Topic, ref.Element)
	if src == nil {
		return fmt.Errorf("conref %q in %s: target %s#%s not found", raw, p.host, target, ref.Fragment())
	}

	cp := src.Copy()
	for _, k := range ditaxml.IDAttrs {
		cp.RemoveAttr(k)
	}
	for _, id := range ditaxml.IDs(el) {
		cp.CreateAttr(id.FullKey(), id.Value)
	}
	if target != p.host {
		rebaseRefs(cp, target, p.host)
	}

	if parent := el.Parent(); parent == nil || el == p.doc.Root() {
		p.doc.SetRoot(cp)
	} else {
		idx := el.Index()
		parent.RemoveChildAt(idx)
		parent.InsertChildAt(idx, cp)
	}
	p.emit(MsgConrefResolved + target + "#" + ref.Fragment())
	return nil
}

// load returns the original document for a base-relative path. Targets are
// never read from the copy being edited, including targets in the host.
func (p *conrefPass) load(rel string) (*etree.Document, error) {
	if d, ok := p.cache[rel]; ok {
		return d, nil
	}
	d, err := ditaxml.Load(filepath.Join(p.basepath, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	p.cache[rel] = d
	return d, nil
}

func rebaseRefs(el *etree.Element, from, to string) {
	ditaxml.Walk(el, func(e *etree.Element) bool {
		if e.SelectAttrValue("scope", "local") == "external" {
			return true
		}
		for _, k := range []string{"conref", "href"} {
			if a := e.SelectAttr(k); a != nil && ditaxml.IsLocal(a.Value) {
				a.Value = ditaxml.Rebase(a.Value, from, to)
			}
		}
		return true
	})
}
