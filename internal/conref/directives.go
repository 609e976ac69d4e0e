package conref

import (
	"github.com/beevik/etree"

	"git.home.luguber.info/inful/dita2docbook/internal/ditaxml"
	"git.home.luguber.info/inful/dita2docbook/internal/util/sets"
)

// Directive is a conref found in a document.
type Directive struct {
	Element string // path of the owning element
	Target  string // reference as written
	Key     string // target normalized to the base directory
}

// Directives lists every conref in the document at path, at any depth. host
// is the document's base-relative path, used to normalize targets.
func Directives(path, host string) ([]Directive, error) {
	doc, err := ditaxml.Load(path)
	if err != nil {
		return nil, err
	}
	var out []Directive
	ditaxml.Walk(doc.Root(), func(e *etree.Element) bool {
		if a := e.SelectAttr("conref"); a != nil {
			out = append(out, Directive{
				Element: e.GetPath(),
				Target:  a.Value,
				Key:     ditaxml.TargetKey(a.Value, host),
			})
		}
		return true
	})
	return out, nil
}

// Frontier returns the sorted distinct target keys of ds. The next round's
// frontier depends only on this set, so seeing a frontier twice proves a
// reference cycle.
func Frontier(ds []Directive) []string {
	s := sets.New[string]()
	for _, d := range ds {
		s.Add(d.Key)
	}
	return sets.Sorted(s)
}
