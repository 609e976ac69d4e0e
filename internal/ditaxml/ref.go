package ditaxml

import (
	"path"
	"path/filepath"
	"strings"
)

// Ref is a parsed reference of the form file#topic/element. Each part may be
// absent: "#t/e" points into the host document and "file.dita" has no
// fragment at all.
type Ref struct {
	File        string
	Topic       string
	Element     string
	HasFragment bool
}

// ParseRef splits a conref or href value.
func ParseRef(s string) Ref {
	var r Ref
	file, frag, found := strings.Cut(strings.TrimSpace(s), "#")
	r.File = file
	if !found {
		return r
	}
	r.HasFragment = true
	r.Topic, r.Element, _ = strings.Cut(frag, "/")
	return r
}

// Fragment renders the part after '#'.
func (r Ref) Fragment() string {
	if r.Element == "" {
		return r.Topic
	}
	return r.Topic + "/" + r.Element
}

func (r Ref) String() string {
	if !r.HasFragment {
		return r.File
	}
	return r.File + "#" + r.Fragment()
}

// IsLocal reports whether a reference value points into the document set
// rather than at a URL.
func IsLocal(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if strings.Contains(s, "://") {
		return false
	}
	lower := strings.ToLower(s)
	for _, scheme := range []string{"mailto:", "urn:", "data:", "tel:"} {
		if strings.HasPrefix(lower, scheme) {
			return false
		}
	}
	return true
}

// ResolveFile returns the base-relative slash path of the document r points
// at when written inside host (itself base-relative). A leading '/' makes the
// path relative to the base directory.
func ResolveFile(r Ref, host string) string {
	switch {
	case r.File == "":
		return host
	case strings.HasPrefix(r.File, "/"):
		return path.Clean(strings.TrimPrefix(r.File, "/"))
	default:
		return path.Join(path.Dir(host), r.File)
	}
}

// TargetKey normalizes a reference written in host to a key naming the same
// target no matter which file it was written in.
func TargetKey(raw, host string) string {
	r := ParseRef(raw)
	return ResolveFile(r, host) + "#" + r.Fragment()
}

// Rebase rewrites a reference written inside document from so it still names
// the same target after being copied into document to. Base-absolute
// references are returned as-is.
func Rebase(raw, from, to string) string {
	r := ParseRef(raw)
	if strings.HasPrefix(r.File, "/") || from == to {
		return raw
	}
	target := ResolveFile(r, from)
	if target == to {
		if !r.HasFragment {
			return raw
		}
		r.File = ""
	} else {
		r.File = relSlash(path.Dir(to), target)
	}
	return r.String()
}

// HostPath joins a file's own directory (relative to the base) with its name.
func HostPath(relDir, name string) string {
	return path.Join(filepath.ToSlash(relDir), name)
}

func relSlash(fromDir, target string) string {
	rel, err := filepath.Rel(filepath.FromSlash(fromDir), filepath.FromSlash(target))
	if err != nil {
		return target
	}
	return filepath.ToSlash(rel)
}
