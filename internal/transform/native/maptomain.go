package native

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"

	"git.home.luguber.info/inful/dita2docbook/internal/ditaxml"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
)

// Parameters understood by MapToMain.
const (
	ParamPrefix     = "prefix"
	ParamEntityFile = "entityfile"
	ParamReplace    = "replace" // newline separated old=new
	ParamRemove     = "remove"  // newline separated paths
)

const (
	docbookNS  = "http://docbook.org/ns/docbook"
	xincludeNS = "http://www.w3.org/2001/XInclude"
)

var includeNameReplacer = strings.NewReplacer("/", "-", ",", "-", " ", "-")

// IncludeName is the file name under which a source topic is included from
// the MAIN document.
func IncludeName(prefix, source string) string {
	return prefix + "-" + includeNameReplacer.Replace(source)
}

// MapToMain flattens a root map into the DocBook MAIN document and emits one
// source-file message for every topic reference it keeps. Submaps are
// followed. Topic paths are reported relative to the root map's directory.
func MapToMain(ctx context.Context, req transform.Request, emit func(string)) error {
	doc, err := ditaxml.Load(req.Input)
	if err != nil {
		return err
	}
	w := &mapWalker{
		ctx:     ctx,
		baseDir: filepath.Dir(req.Input),
		replace: make(map[string]string),
		remove:  make(map[string]bool),
		emit:    emit,
		visited: map[string]bool{filepath.Base(req.Input): true},
		seen:    make(map[string]bool),
	}
	for _, r := range splitList(req.Params[ParamReplace]) {
		old, repl, ok := strings.Cut(r, "=")
		if !ok {
			return fmt.Errorf("invalid replacement %q", r)
		}
		w.replace[path.Clean(strings.TrimSpace(old))] = path.Clean(strings.TrimSpace(repl))
	}
	for _, r := range splitList(req.Params[ParamRemove]) {
		w.remove[path.Clean(r)] = true
	}

	if err := w.walk(doc.Root(), "."); err != nil {
		return err
	}

	prefix := req.Params[ParamPrefix]
	if prefix == "" {
		base := filepath.Base(req.Input)
		prefix = strings.TrimSuffix(base, filepath.Ext(base))
	}
	title := mapTitle(doc.Root())
	if title == "" {
		title = prefix
	}
	main := buildMain(title, prefix, req.Params[ParamEntityFile], w.topics)
	return ditaxml.Save(main, req.Output)
}

type mapWalker struct {
	ctx     context.Context
	baseDir string
	replace map[string]string
	remove  map[string]bool
	emit    func(string)
	visited map[string]bool
	seen    map[string]bool
	topics  []string
}

func (w *mapWalker) walk(el *etree.Element, dir string) error {
	for _, c := range el.ChildElements() {
		if err := w.ctx.Err(); err != nil {
			return err
		}
		// relationship tables link topics, they do not contribute content
		if c.Tag == "reltable" {
			continue
		}
		href := c.SelectAttrValue("href", "")
		if href == "" || !ditaxml.IsLocal(href) || skipRef(c) {
			if err := w.walk(c, dir); err != nil {
				return err
			}
			continue
		}
		ref := ditaxml.ParseRef(href)
		rel := path.Join(dir, ref.File)
		if strings.HasPrefix(ref.File, "/") {
			rel = path.Clean(strings.TrimPrefix(ref.File, "/"))
		}
		if isMapRef(c, ref.File) {
			if w.visited[rel] {
				continue
			}
			w.visited[rel] = true
			sub, err := ditaxml.Load(filepath.Join(w.baseDir, filepath.FromSlash(rel)))
			if err != nil {
				return fmt.Errorf("submap %s: %w", rel, err)
			}
			if err := w.walk(sub.Root(), path.Dir(rel)); err != nil {
				return err
			}
			continue
		}
		w.addTopic(rel)
		if err := w.walk(c, dir); err != nil {
			return err
		}
	}
	return nil
}

func (w *mapWalker) addTopic(rel string) {
	if w.remove[rel] {
		return
	}
	if repl, ok := w.replace[rel]; ok {
		w.emit(MsgSourceFileReplaced + rel + "=" + repl)
		rel = repl
		if w.remove[rel] {
			return
		}
	}
	w.emit(MsgSourceFile + rel)
	if !w.seen[rel] {
		w.seen[rel] = true
		w.topics = append(w.topics, rel)
	}
}

func skipRef(el *etree.Element) bool {
	switch el.SelectAttrValue("scope", "local") {
	case "external", "peer":
		return true
	}
	if el.SelectAttrValue("processing-role", "") == "resource-only" {
		return true
	}
	switch el.SelectAttrValue("format", "dita") {
	case "dita", "ditamap":
		return false
	default:
		return true
	}
}

func isMapRef(el *etree.Element, file string) bool {
	return el.SelectAttrValue("format", "") == "ditamap" || strings.HasSuffix(strings.ToLower(file), ".ditamap")
}

func mapTitle(root *etree.Element) string {
	if t := root.FindElement("./booktitle/mainbooktitle"); t != nil {
		return textContent(t)
	}
	if t := root.FindElement("./title"); t != nil {
		return textContent(t)
	}
	return strings.TrimSpace(root.SelectAttrValue("title", ""))
}

func buildMain(title, prefix, entityFile string, topics []string) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	if entityFile != "" {
		doc.CreateDirective("DOCTYPE book [\n<!ENTITY % local.entities SYSTEM \"" + entityFile + "\">\n%local.entities;\n]")
	}
	book := doc.CreateElement("book")
	book.CreateAttr("xmlns", docbookNS)
	book.CreateAttr("xmlns:xi", xincludeNS)
	book.CreateAttr("version", "5.0")
	book.CreateElement("title").SetText(title)
	for _, t := range topics {
		inc := book.CreateElement("xi:include")
		inc.CreateAttr("href", IncludeName(prefix, t))
	}
	doc.Indent(2)
	return doc
}
