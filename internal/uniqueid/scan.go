package uniqueid

import (
	"github.com/beevik/etree"

	"git.home.luguber.info/inful/dita2docbook/internal/ditaxml"
)

// Record is one identifier declaration.
type Record struct {
	Value   string
	File    string
	Element string
	// Scope lists the identifier values of the enclosing elements, outermost
	// first, so topic/element references find the right occurrence.
	Scope []string
}

// Reference is one attribute pointing at an identifier.
type Reference struct {
	Attr  string
	Value string
	File  string
}

// FileScan is the read-only view of one file taken in the collect phase.
type FileScan struct {
	File    string
	RootIDs []string
	IDs     []Record // document order
	Refs    []Reference
}

// Scan collects the identifier declarations and references of a document.
func Scan(path, file string) (*FileScan, error) {
	doc, err := ditaxml.Load(path)
	if err != nil {
		return nil, err
	}
	s := &FileScan{File: file}
	root := doc.Root()
	s.RootIDs = ditaxml.IDValues(root)
	ditaxml.Walk(root, func(e *etree.Element) bool {
		values := ditaxml.IDValues(e)
		if len(values) > 0 {
			scope := ditaxml.ScopeIDs(e)
			for _, v := range values {
				s.IDs = append(s.IDs, Record{Value: v, File: file, Element: e.GetPath(), Scope: scope})
			}
		}
		for _, k := range ditaxml.RefAttrs {
			a := e.SelectAttr(k)
			if a == nil || a.Value == "" {
				continue
			}
			if (k == "href" || k == "conref") && !ditaxml.IsLocal(a.Value) {
				continue
			}
			s.Refs = append(s.Refs, Reference{Attr: k, Value: a.Value, File: file})
		}
		return true
	})
	return s, nil
}
