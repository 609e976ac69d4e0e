package uniqueid

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dita2docbook/internal/ditaxml"
	"git.home.luguber.info/inful/dita2docbook/internal/eventstore"
	"git.home.luguber.info/inful/dita2docbook/internal/report"
	"git.home.luguber.info/inful/dita2docbook/internal/transform"
	"git.home.luguber.info/inful/dita2docbook/internal/transform/native"
)

var fixture = map[string]string{
	"intro.dita": `<topic id="intro"><title>Intro</title><body><p id="p1">x</p></body></topic>`,
	"body.dita": `<topic id="body"><title>Body</title><body>` +
		`<section id="intro">s</section><p id="p1">y</p>` +
		`<xref href="intro.dita#intro"/><xref href="#body/p1"/>` +
		`<xref href="https://example.com/a#intro"/></body></topic>`,
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
}

func newReporter() *report.Reporter {
	return report.New(slog.New(slog.NewTextHandler(io.Discard, nil)), "test-run")
}

func allIDs(t *testing.T, dir string, files ...string) []string {
	t.Helper()
	var ids []string
	for _, f := range files {
		doc, err := ditaxml.Load(filepath.Join(dir, f))
		require.NoError(t, err)
		ditaxml.Walk(doc.Root(), func(e *etree.Element) bool {
			ids = append(ids, ditaxml.IDValues(e)...)
			return true
		})
	}
	return ids
}

func hrefs(t *testing.T, path string) []string {
	t.Helper()
	doc, err := ditaxml.Load(path)
	require.NoError(t, err)
	var out []string
	for _, x := range doc.FindElements("//xref") {
		out = append(out, x.SelectAttrValue("href", ""))
	}
	return out
}

func TestRunMakesIdentifiersGloballyUnique(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, fixture)
	files := []string{"intro.dita", "body.dita"}

	rep := newReporter()
	res, err := New(native.NewInvoker(), transform.ProgramMakeUniqueIDs, WithWorkers(2)).Run(context.Background(), rep, dir, files)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)
	assert.Equal(t, []string{"intro", "p1"}, res.Collisions)
	assert.Equal(t, 4, res.Renamed)
	assert.FileExists(t, res.PlanPath)

	ids := allIDs(t, dir, files...)
	assert.ElementsMatch(t, []string{"intro_intro", "intro_p1", "body", "body_intro", "body_p1"}, ids)

	assert.Equal(t, []string{
		"intro.dita#intro_intro",
		"#body/body_p1",
		"https://example.com/a#intro",
	}, hrefs(t, filepath.Join(dir, "body.dita")))

	var uniq *eventstore.IdentifiersUniquified
	for _, e := range rep.Events() {
		if e.Type() == eventstore.TypeIdentifiersUniquified {
			uniq = &eventstore.IdentifiersUniquified{}
			require.NoError(t, eventstore.Decode(e, uniq))
		}
	}
	require.NotNil(t, uniq)
	assert.Equal(t, 4, uniq.Renamed)
}

func TestRunWithoutCollisionsLeavesValues(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.dita": `<topic id="a"><title>A</title></topic>`,
		"b.dita": `<topic id="b"><title>B</title></topic>`,
	})
	res, err := New(native.NewInvoker(), transform.ProgramMakeUniqueIDs).Run(context.Background(), newReporter(), dir, []string{"a.dita", "b.dita"})
	require.NoError(t, err)
	assert.Empty(t, res.Collisions)
	assert.Zero(t, res.Renamed)
	assert.ElementsMatch(t, []string{"a", "b"}, allIDs(t, dir, "a.dita", "b.dita"))
}

func TestRunCleanIDDropsUnreferenced(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, fixture)
	files := []string{"intro.dita", "body.dita"}

	res, err := New(native.NewInvoker(), transform.ProgramMakeUniqueIDs, WithCleanID(true)).Run(context.Background(), newReporter(), dir, files)
	require.NoError(t, err)
	assert.Empty(t, res.Failed)

	// p1 in body.dita is targeted by "#body/p1" and survives; the other
	// non-root values are unreferenced.
	assert.ElementsMatch(t, []string{"intro_intro", "body", "body_p1"}, allIDs(t, dir, files...))
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, []string{"intro"}, res.Plan.Files["body.dita"].Drop)
	assert.Equal(t, []string{"p1"}, res.Plan.Files["intro.dita"].Drop)
	assert.Contains(t, hrefs(t, filepath.Join(dir, "body.dita")), "intro.dita#intro_intro")
}

func TestRunIsolatesPerFileFailures(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, fixture)
	writeFiles(t, dir, map[string]string{
		"broken.dita": `<topic id="intro"><p></topic>`,
		"stuck.dita":  `<topic id="stuck"><title>S</title></topic>`,
	})
	stuckOrig, err := os.ReadFile(filepath.Join(dir, "stuck.dita"))
	require.NoError(t, err)

	nat := native.NewInvoker()
	inv := transform.InvokerFunc(func(ctx context.Context, req transform.Request) (*transform.Result, error) {
		if filepath.Base(req.Input) == "stuck.dita" {
			return nil, &transform.ApplyError{Input: req.Input, Program: req.Program, Err: errors.New("boom")}
		}
		return nat.Apply(ctx, req)
	})

	rep := newReporter()
	res, err := New(inv, transform.ProgramMakeUniqueIDs).Run(context.Background(), rep, dir, []string{"intro.dita", "broken.dita", "body.dita", "stuck.dita"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"broken.dita", "stuck.dita"}, res.Failed)

	// the malformed file does not take part in collision detection
	assert.Equal(t, []string{"intro", "p1"}, res.Collisions)
	assert.ElementsMatch(t, []string{"intro_intro", "intro_p1", "body", "body_intro", "body_p1"}, allIDs(t, dir, "intro.dita", "body.dita"))

	after, err := os.ReadFile(filepath.Join(dir, "stuck.dita"))
	require.NoError(t, err)
	assert.Equal(t, stuckOrig, after)
	assert.NoFileExists(t, filepath.Join(dir, ".stuck.dita.uniq"))

	var stuck *report.Failure
	for _, f := range rep.Failures() {
		if f.File == "stuck.dita" {
			stuck = &f
		}
	}
	require.NotNil(t, stuck)
	assert.Contains(t, stuck.Repro, "make-unique-ids")
	assert.Contains(t, stuck.Repro, "stuck.dita")
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, fixture)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(native.NewInvoker(), transform.ProgramMakeUniqueIDs).Run(ctx, newReporter(), dir, []string{"intro.dita", "body.dita"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestRunFollowsTopicScopeOfReferences(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"c.dita": `<dita>` +
			`<topic id="t1"><title>One</title><body><p id="p">one</p></body></topic>` +
			`<topic id="t2"><title>Two</title><body><p id="p">two</p></body></topic>` +
			`</dita>`,
		"r.dita": `<topic id="r"><title>R</title><body>` +
			`<xref href="c.dita#t2/p"/><xref href="c.dita#t1/p"/></body></topic>`,
	})

	res, err := New(native.NewInvoker(), transform.ProgramMakeUniqueIDs).Run(context.Background(), newReporter(), dir, []string{"c.dita", "r.dita"})
	require.NoError(t, err)
	assert.Equal(t, []string{"p"}, res.Collisions)
	assert.Equal(t, [][]string{{"t1"}, {"t2"}}, res.Plan.Files["c.dita"].Scopes["p"])

	doc, err := ditaxml.Load(filepath.Join(dir, "c.dita"))
	require.NoError(t, err)
	two := ditaxml.Resolve(doc, "t2", "c_p_2")
	require.NotNil(t, two)
	assert.Equal(t, "two", two.Text())

	// each link still lands on the paragraph of the topic it names
	assert.Equal(t, []string{"c.dita#t2/c_p_2", "c.dita#t1/c_p"}, hrefs(t, filepath.Join(dir, "r.dita")))
}

func TestRunRenamesEveryIdentifierAttribute(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"a.dita": `<topic id="a"><body><p id="x" xml:id="y">a</p></body></topic>`,
		"b.dita": `<topic id="b"><body><p id="y">b</p></body></topic>`,
	})

	res, err := New(native.NewInvoker(), transform.ProgramMakeUniqueIDs).Run(context.Background(), newReporter(), dir, []string{"a.dita", "b.dita"})
	require.NoError(t, err)
	assert.Equal(t, []string{"y"}, res.Collisions)

	doc, err := ditaxml.Load(filepath.Join(dir, "a.dita"))
	require.NoError(t, err)
	p := doc.FindElement("//p")
	require.NotNil(t, p)
	assert.Equal(t, "x", p.SelectAttrValue("id", ""))
	assert.Equal(t, "a_y", p.SelectAttrValue("xml:id", ""))
	assert.ElementsMatch(t, []string{"a", "x", "a_y", "b", "b_y"}, allIDs(t, dir, "a.dita", "b.dita"))
}

func TestBuildPlanNamingAndBump(t *testing.T) {
	scans := []*FileScan{
		{File: "a.dita", RootIDs: []string{"a"}, IDs: []Record{{Value: "a"}, {Value: "x"}, {Value: "x"}}},
		// b.dita already declares the name a.dita's x would get
		{File: "sub/b.dita", RootIDs: []string{"b"}, IDs: []Record{{Value: "b"}, {Value: "a_x"}, {Value: "x"}}},
	}
	plan := BuildPlan(scans, false)
	assert.Equal(t, []string{"x"}, plan.Collisions)
	assert.Equal(t, []string{"a_x_2", "a_x_2_2"}, plan.Files["a.dita"].Declarations["x"][:2])
	assert.Equal(t, []string{"sub-b_x"}, plan.Files["sub/b.dita"].Declarations["x"])
	assert.Equal(t, []string{"a.dita", "sub/b.dita"}, plan.Owners["x"])
	assert.Equal(t, "sub-b_x", plan.LookupGlobal("sub/b.dita", "x"))
	assert.Equal(t, "a_x_2", plan.LookupGlobal("c.dita", "x"))
}

func TestBuildPlanCleanIDKeepsReferenced(t *testing.T) {
	scans := []*FileScan{
		{File: "a.dita", RootIDs: []string{"a"}, IDs: []Record{{Value: "a"}, {Value: "keep"}, {Value: "gone"}, {Value: "sect"}}},
		{File: "b.dita", RootIDs: []string{"b"}, IDs: []Record{{Value: "b"}}, Refs: []Reference{
			{Attr: "href", Value: "a.dita#a/keep"},
			{Attr: "linkend", Value: "sect"},
		}},
	}
	plan := BuildPlan(scans, true)
	assert.Equal(t, []string{"gone"}, plan.Files["a.dita"].Drop)
	assert.Empty(t, plan.Files["b.dita"].Drop)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "intro", Slug("intro.dita"))
	assert.Equal(t, "topics-sub-page", Slug("topics/sub page.dita"))
	assert.Equal(t, "f1-start", Slug("1-start.xml"))
	assert.Equal(t, "f", Slug(".dita"))
}
