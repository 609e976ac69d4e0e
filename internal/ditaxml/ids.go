package ditaxml

import (
	"slices"

	"github.com/beevik/etree"
)

// IDAttrs are the attributes that declare identifiers.
var IDAttrs = []string{"id", "xml:id"}

// RefAttrs are the attributes that reference identifiers.
var RefAttrs = []string{"href", "conref", "linkend", "endterm"}

// ID returns the first identifier attribute of el, if any.
func ID(el *etree.Element) (*etree.Attr, bool) {
	if ids := IDs(el); len(ids) > 0 {
		return ids[0], true
	}
	return nil, false
}

// IDs returns every identifier attribute of el in attribute order. An element
// may carry both id and xml:id. Namespaces are matched exactly, unlike
// SelectAttr("id"), which also matches xml:id.
func IDs(el *etree.Element) []*etree.Attr {
	var out []*etree.Attr
	for i := range el.Attr {
		a := &el.Attr[i]
		if a.Key == "id" && (a.Space == "" || a.Space == "xml") {
			out = append(out, a)
		}
	}
	return out
}

// IDValues returns the distinct non-empty identifier values of el. id and
// xml:id carrying the same value count as one declaration.
func IDValues(el *etree.Element) []string {
	var out []string
	for _, a := range IDs(el) {
		if a.Value != "" && !slices.Contains(out, a.Value) {
			out = append(out, a.Value)
		}
	}
	return out
}

// HasID reports whether el declares value through any identifier attribute.
func HasID(el *etree.Element, value string) bool {
	return slices.Contains(IDValues(el), value)
}

// RenameID rewrites every identifier attribute of el holding old.
func RenameID(el *etree.Element, old, value string) {
	for _, a := range IDs(el) {
		if a.Value == old {
			a.Value = value
		}
	}
}

// RemoveID deletes every identifier attribute of el holding value.
func RemoveID(el *etree.Element, value string) {
	var keys []string
	for _, a := range IDs(el) {
		if a.Value == value {
			keys = append(keys, a.FullKey())
		}
	}
	for _, k := range keys {
		el.RemoveAttr(k)
	}
}

// ScopeIDs returns the identifier values declared by the ancestors of el,
// outermost first. A topic/element fragment names an element below the
// topic, so these are the topics el can be addressed through.
func ScopeIDs(el *etree.Element) []string {
	var chain []*etree.Element
	for p := el.Parent(); p != nil; p = p.Parent() {
		chain = append(chain, p)
	}
	var out []string
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, IDValues(chain[i])...)
	}
	return out
}

// Walk visits el and its descendants in document order. Returning false from
// fn skips the element's children.
func Walk(el *etree.Element, fn func(*etree.Element) bool) {
	if el == nil {
		return
	}
	if !fn(el) {
		return
	}
	for _, c := range el.ChildElements() {
		Walk(c, fn)
	}
}

// FindByID returns the first element at or below el declaring id.
func FindByID(el *etree.Element, id string) *etree.Element {
	var found *etree.Element
	Walk(el, func(e *etree.Element) bool {
		if found != nil {
			return false
		}
		if HasID(e, id) {
			found = e
			return false
		}
		return true
	})
	return found
}

// Resolve locates the element a topic/element fragment names within doc.
func Resolve(doc *etree.Document, topic, element string) *etree.Element {
	t := FindByID(doc.Root(), topic)
	if t == nil || element == "" {
		return t
	}
	return FindByID(t, element)
}

// Attached reports whether el is still part of the tree rooted at root.
func Attached(el, root *etree.Element) bool {
	for e := el; e != nil; e = e.Parent() {
		if e == root {
			return true
		}
	}
	return false
}
