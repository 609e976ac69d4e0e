package native

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dita2docbook/internal/ditaxml"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func apply(t *testing.T, req transform.Request) (*transform.Result, error) {
	t.Helper()
	return NewInvoker().Apply(context.Background(), req)
}

func TestRegister(t *testing.T) {
	assert.Equal(t, []string{transform.ProgramMakeUniqueIDs, transform.ProgramMapToMain, transform.ProgramResolveConrefs}, NewInvoker().Programs())
}

func TestIncludeName(t *testing.T) {
	assert.Equal(t, "book-topics-my-file-x.dita", IncludeName("book", "topics/my file,x.dita"))
	assert.Equal(t, "book-intro.dita", IncludeName("book", "intro.dita"))
}

func TestMapToMain(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"book.ditamap": `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE map PUBLIC "-//OASIS//DTD DITA Map//EN" "map.dtd">
<map>
  <title>The Book</title>
  <topicref href="intro.dita"/>
  <topicref href="topics/body.dita">
    <topicref href="topics/sub.dita#sub"/>
  </topicref>
  <topicref href="intro.dita"/>
  <topicref href="https://example.com/" scope="external" format="html"/>
  <topicref href="guide.pdf" format="pdf"/>
  <mapref href="sub/part.ditamap"/>
  <reltable><relrow><relcell><topicref href="rel.dita"/></relcell></relrow></reltable>
  <topicref href="old.dita"/>
  <topicref href="drafts/x.dita"/>
</map>`,
		"sub/part.ditamap": `<map><topicref href="p1.dita"/></map>`,
	})
	out := filepath.Join(dir, "xml", "MAIN.book")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0o750))

	res, err := apply(t, transform.Request{
		Input:   filepath.Join(dir, "book.ditamap"),
		Program: transform.ProgramMapToMain,
		Output:  out,
		NoNet:   true,
		Params: transform.Params{
			ParamPrefix:     "book",
			ParamEntityFile: "entities.xml",
			ParamReplace:    "old.dita=new.dita",
			ParamRemove:     "drafts/x.dita",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"source-file:intro.dita",
		"source-file:topics/body.dita",
		"source-file:topics/sub.dita",
		"source-file:intro.dita",
		"source-file:sub/p1.dita",
		"source-file-replaced:old.dita=new.dita",
		"source-file:new.dita",
	}, res.Messages)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `SYSTEM "entities.xml"`)

	doc, err := ditaxml.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "book", doc.Root().Tag)
	assert.Equal(t, "The Book", doc.Root().FindElement("./title").Text())
	var hrefs []string
	for _, inc := range doc.Root().SelectElements("xi:include") {
		hrefs = append(hrefs, inc.SelectAttrValue("href", ""))
	}
	assert.Equal(t, []string{"book-intro.dita", "book-topics-body.dita", "book-topics-sub.dita", "book-sub-p1.dita", "book-new.dita"}, hrefs)
}

func TestMapToMainBookmapTitle(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"b.ditamap": `<bookmap><booktitle><mainbooktitle>Main <ph>Title</ph></mainbooktitle></booktitle><chapter href="c.dita"/></bookmap>`,
	})
	out := filepath.Join(dir, "MAIN.b")
	_, err := apply(t, transform.Request{Input: filepath.Join(dir, "b.ditamap"), Program: transform.ProgramMapToMain, Output: out})
	require.NoError(t, err)
	doc, err := ditaxml.Load(out)
	require.NoError(t, err)
	assert.Equal(t, "Main Title", doc.Root().FindElement("./title").Text())
}

func TestMapToMainUnreadableSubmap(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"m.ditamap": `<map><mapref href="missing.ditamap"/></map>`})
	_, err := apply(t, transform.Request{Input: filepath.Join(dir, "m.ditamap"), Program: transform.ProgramMapToMain, Output: filepath.Join(dir, "out")})
	var ae *transform.ApplyError
	require.ErrorAs(t, err, &ae)
}

func conrefFixture(t *testing.T) string {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"shared.dita": `<topic id="shared"><title>S</title><body>
<note id="n1">Shared <xref href="#shared/n2"/></note>
<p id="n2" conref="other.dita#o/p">placeholder</p>
</body></topic>`,
		"other.dita": `<topic id="o"><title>O</title><body><p id="p">Other text</p></body></topic>`,
		"topics/a.dita": `<topic id="a"><title>A</title><body>
<p id="keep" conref="../shared.dita#shared/n1"/>
<p conref="#a/local"/>
<p id="local">L</p>
<p conref="/shared.dita#shared/n2"/>
</body></topic>`,
	})
	return dir
}

func TestResolveConrefsSinglePass(t *testing.T) {
	dir := conrefFixture(t)
	out := filepath.Join(t.TempDir(), "a.dita")
	res, err := apply(t, transform.Request{
		Input:   filepath.Join(dir, "topics", "a.dita"),
		Program: transform.ProgramResolveConrefs,
		Output:  out,
		Params:  transform.Params{ParamBasePath: dir, ParamRelativeFilePath: "topics"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"conref-resolved:shared.dita#shared/n1",
		"conref-resolved:topics/a.dita#a/local",
		"conref-resolved:shared.dita#shared/n2",
	}, res.Messages)

	doc, err := ditaxml.Load(out)
	require.NoError(t, err)
	body := doc.Root().FindElement("./body")
	children := body.ChildElements()
	require.Len(t, children, 4)

	note := children[0]
	assert.Equal(t, "note", note.Tag)
	assert.Equal(t, "keep", note.SelectAttrValue("id", ""))
	assert.Nil(t, note.SelectAttr("conref"))
	assert.Equal(t, "../shared.dita#shared/n2", note.FindElement("./xref").SelectAttrValue("href", ""))

	local := children[1]
	assert.Equal(t, "L", local.Text())
	assert.Nil(t, local.SelectAttr("id"), "the copy does not duplicate the target id")

	// the chained target still carries its own conref, rebased to the host
	chained := children[3]
	assert.Equal(t, "../other.dita#o/p", chained.SelectAttrValue("conref", ""))
}

func TestResolveConrefsMissingTarget(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.dita": `<topic id="a"><body><p conref="#a/nope"/></body></topic>`})
	_, err := apply(t, transform.Request{
		Input:   filepath.Join(dir, "a.dita"),
		Program: transform.ProgramResolveConrefs,
		Output:  filepath.Join(dir, "out.dita"),
		Params:  transform.Params{ParamBasePath: dir},
	})
	var ae *transform.ApplyError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, filepath.Join(dir, "a.dita"), ae.Input)
	assert.Contains(t, err.Error(), "not found")
}

func TestResolveConrefsNoDirectivesIsUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.dita": `<topic id="a"><body><p id="x">text</p></body></topic>`})
	out := filepath.Join(dir, "out.dita")
	res, err := apply(t, transform.Request{
		Input:   filepath.Join(dir, "a.dita"),
		Program: transform.ProgramResolveConrefs,
		Output:  out,
		Params:  transform.Params{ParamBasePath: dir},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Messages)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, `<topic id="a"><body><p id="x">text</p></body></topic>`, string(data))
}

func TestMakeUniqueIDs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.dita": `<topic id="intro"><title/><body>
<p id="intro">x</p>
<p id="unused">y</p>
<xref href="b.dita#intro/p"/>
<xref href="#intro"/>
<link linkend="intro"/>
<xref href="https://example.com/#intro"/>
</body></topic>`})

	plan := ditaxml.NewRenamePlan()
	plan.Collisions = []string{"intro"}
	plan.Files["a.dita"] = &ditaxml.FileRenames{
		Declarations: map[string][]string{"intro": {"a_intro", "a_intro_2"}},
		Drop:         []string{"unused"},
	}
	plan.Files["b.dita"] = &ditaxml.FileRenames{Declarations: map[string][]string{"intro": {"b_intro"}}}
	plan.Owners["intro"] = []string{"a.dita", "b.dita"}
	planPath := filepath.Join(dir, "renames.json")
	require.NoError(t, ditaxml.WritePlan(planPath, plan))

	out := filepath.Join(dir, "out.dita")
	res, err := apply(t, transform.Request{
		Input:   filepath.Join(dir, "a.dita"),
		Program: transform.ProgramMakeUniqueIDs,
		Output:  out,
		Params: transform.Params{
			ParamCollisions: "intro",
			ParamFilePath:   "a.dita",
			ParamRenameMap:  planPath,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id-renamed:intro=a_intro", "id-renamed:intro=a_intro_2", "id-dropped:unused"}, res.Messages)

	doc, err := ditaxml.Load(out)
	require.NoError(t, err)
	root := doc.Root()
	assert.Equal(t, "a_intro", root.SelectAttrValue("id", ""))
	ps := root.FindElements("./body/p")
	require.Len(t, ps, 2)
	assert.Equal(t, "a_intro_2", ps[0].SelectAttrValue("id", ""))
	assert.Nil(t, ps[1].SelectAttr("id"))

	xrefs := root.FindElements("./body/xref")
	require.Len(t, xrefs, 3)
	assert.Equal(t, "b.dita#b_intro/p", xrefs[0].SelectAttrValue("href", ""))
	assert.Equal(t, "#a_intro", xrefs[1].SelectAttrValue("href", ""))
	assert.Equal(t, "https://example.com/#intro", xrefs[2].SelectAttrValue("href", ""))
	assert.Equal(t, "a_intro", root.FindElement("./body/link").SelectAttrValue("linkend", ""))
}

func TestMakeUniqueIDsKeepsRootOnDrop(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"a.dita": `<topic id="a"><body/></topic>`})
	plan := ditaxml.NewRenamePlan()
	plan.Files["a.dita"] = &ditaxml.FileRenames{Drop: []string{"a"}}
	planPath := filepath.Join(dir, "renames.json")
	require.NoError(t, ditaxml.WritePlan(planPath, plan))

	out := filepath.Join(dir, "out.dita")
	_, err := apply(t, transform.Request{
		Input:   filepath.Join(dir, "a.dita"),
		Program: transform.ProgramMakeUniqueIDs,
		Output:  out,
		Params:  transform.Params{ParamFilePath: "a.dita", ParamRenameMap: planPath},
	})
	require.NoError(t, err)
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromFile(out))
	assert.Equal(t, "a", doc.Root().SelectAttrValue("id", ""))
}
