package report

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Summary is the end-of-run report.
type Summary struct {
	RunID        string
	RootMap      string
	Status       string
	Started      time.Time
	Duration     time.Duration
	Commit       string
	Manifest     []string
	Replacements [][2]string
	Collisions   []string
	Failures     []Failure
	Warnings     []Warning
}

// Markdown renders the summary.
func (s *Summary) Markdown() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# Conversion report: %s\n\n", s.RootMap)
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Run | `%s` |\n", s.RunID)
	fmt.Fprintf(&b, "| Status | **%s** |\n", s.Status)
	fmt.Fprintf(&b, "| Started | %s |\n", s.Started.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "| Duration | %s |\n", s.Duration.Round(time.Millisecond))
	if s.Commit != "" {
		fmt.Fprintf(&b, "| Source commit | `%s` |\n", s.Commit)
	}

	fmt.Fprintf(&b, "\n## Manifest (%d files)\n\n", len(s.Manifest))
	for _, f := range s.Manifest {
		fmt.Fprintf(&b, "- `%s`\n", f)
	}

	if len(s.Replacements) > 0 {
		b.WriteString("\n## Replacements\n\n")
		for _, r := range s.Replacements {
			if r[1] == "" {
				fmt.Fprintf(&b, "- `%s`\n", r[0])
				continue
			}
			fmt.Fprintf(&b, "- `%s` replaced by `%s`\n", r[0], r[1])
		}
	}

	if len(s.Collisions) > 0 {
		fmt.Fprintf(&b, "\n## Identifier collisions (%d)\n\n", len(s.Collisions))
		quoted := make([]string, len(s.Collisions))
		for i, c := range s.Collisions {
			quoted[i] = "`" + c + "`"
		}
		b.WriteString(strings.Join(quoted, ", "))
		b.WriteString("\n")
	}

	if len(s.Failures) > 0 {
		fmt.Fprintf(&b, "\n## Failed files (%d)\n\n", len(s.Failures))
		b.WriteString("| Stage | File | Error |\n|---|---|---|\n")
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "| %s | `%s` | %s |\n", f.Stage, f.File, cell(f.Error))
		}
		for _, f := range s.Failures {
			if f.Repro == "" {
				continue
			}
			fmt.Fprintf(&b, "\nReproduce `%s`:\n\n```sh\n%s\n```\n", f.File, f.Repro)
		}
	}

	if len(s.Warnings) > 0 {
		fmt.Fprintf(&b, "\n## Warnings (%d)\n\n", len(s.Warnings))
		for _, w := range s.Warnings {
			if w.File != "" {
				fmt.Fprintf(&b, "- %s: `%s`: %s\n", w.Stage, w.File, w.Message)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", w.Stage, w.Message)
			}
		}
	}
	return b.Bytes()
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// RenderHTML converts a markdown report into a standalone HTML page.
func RenderHTML(title string, md []byte) ([]byte, error) {
	conv := goldmark.New(goldmark.WithExtensions(extension.Table))
	var body bytes.Buffer
	if err := conv.Convert(md, &body); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	var page bytes.Buffer
	page.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	page.WriteString(html.EscapeString(title))
	page.WriteString("</title>\n</head>\n<body>\n")
	page.Write(body.Bytes())
	page.WriteString("</body>\n</html>\n")
	return page.Bytes(), nil
}
