package uniqueid

import (
	"path"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/dita2docbook/internal/ditaxml"
	"git.home.luguber.info/inful/dita2docbook/internal/util/sets"
)

// Collisions returns the sorted values declared more than once across scans.
func Collisions(scans []*FileScan) []string {
	counts := make(map[string]int)
	for _, s := range scans {
		for _, r := range s.IDs {
			counts[r.Value]++
		}
	}
	out := sets.New[string]()
	for v, n := range counts {
		if n > 1 {
			out.Add(v)
		}
	}
	return sets.Sorted(out)
}

// BuildPlan computes the rename plan from the scans of every file, in
// manifest order. Every occurrence of a colliding value is renamed to
// <file-slug>_<value>, with _<n> appended to later occurrences in the same
// file and a numeric bump until the name is globally unused. With cleanID,
// values no reference points at are scheduled for removal.
func BuildPlan(scans []*FileScan, cleanID bool) *ditaxml.RenamePlan {
	plan := ditaxml.NewRenamePlan()
	plan.Collisions = Collisions(scans)
	colliding := sets.New(plan.Collisions...)

	existing := sets.New[string]()
	for _, s := range scans {
		for _, r := range s.IDs {
			existing.Add(r.Value)
		}
	}
	taken := existing.Clone()

	for _, s := range scans {
		fr := &ditaxml.FileRenames{
			Declarations: make(map[string][]string),
			Scopes:       make(map[string][][]string),
		}
		occurrence := make(map[string]int)
		for _, r := range s.IDs {
			n := occurrence[r.Value]
			occurrence[r.Value] = n + 1
			if !colliding.Has(r.Value) {
				continue
			}
			if n == 0 {
				plan.Owners[r.Value] = append(plan.Owners[r.Value], s.File)
			}
			base := Slug(s.File) + "_" + r.Value
			if n > 0 {
				base += "_" + strconv.Itoa(n+1)
			}
			name := base
			for bump := 2; taken.Has(name); bump++ {
				name = base + "_" + strconv.Itoa(bump)
			}
			taken.Add(name)
			fr.Declarations[r.Value] = append(fr.Declarations[r.Value], name)
			fr.Scopes[r.Value] = append(fr.Scopes[r.Value], r.Scope)
		}
		plan.Files[s.File] = fr
	}

	if cleanID {
		markUnused(plan, scans)
	}
	return plan
}

func markUnused(plan *ditaxml.RenamePlan, scans []*FileScan) {
	targeted := sets.New[string]() // "file#value"
	global := sets.New[string]()   // values named by linkend/endterm
	for _, s := range scans {
		for _, ref := range s.Refs {
			switch ref.Attr {
			case "linkend", "endterm":
				global.Add(ref.Value)
			default:
				r := ditaxml.ParseRef(ref.Value)
				if !r.HasFragment {
					continue
				}
				file := ditaxml.ResolveFile(r, s.File)
				targeted.Add(file + "#" + r.Topic)
				if r.Element != "" {
					targeted.Add(file + "#" + r.Element)
				}
			}
		}
	}
	for _, s := range scans {
		drop := sets.New[string]()
		roots := sets.New(s.RootIDs...)
		for _, r := range s.IDs {
			if roots.Has(r.Value) || global.Has(r.Value) || targeted.Has(s.File+"#"+r.Value) {
				continue
			}
			drop.Add(r.Value)
		}
		if drop.Len() == 0 {
			continue
		}
		fr := plan.Files[s.File]
		fr.Drop = sets.Sorted(drop)
		for _, v := range fr.Drop {
			delete(fr.Declarations, v)
			delete(fr.Scopes, v)
		}
	}
}

// Slug turns a manifest path into an identifier-safe prefix.
func Slug(file string) string {
	file = strings.TrimSuffix(file, path.Ext(file))
	var b strings.Builder
	for _, r := range file {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	s := strings.Trim(b.String(), "-")
	if s == "" || (s[0] >= '0' && s[0] <= '9') {
		s = "f" + s
	}
	return s
}
