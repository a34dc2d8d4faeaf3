// Package consolidate indexes and searches the daily/monthly/yearly summary
// hierarchy. Summary generation happens outside the core; this package
// extracts the high-signal text for embedding and walks the hierarchy at
// query time.
package consolidate

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Level identifies the consolidation tier.
type Level string

const (
	LevelDaily   Level = "daily"
	LevelMonthly Level = "monthly"
	LevelYearly  Level = "yearly"
)

// SourceType returns the vector index source_type for a level.
func (l Level) SourceType() string { return string(l) + "_summary" }

// markers select the high-signal lines per level.
var levelMarkers = map[Level][]string{
	LevelDaily:   {"fact", "decision", "preference", "topic"},
	LevelMonthly: {"metric", "vasana", "recommendation", "tendency"},
	LevelYearly:  {"summary", "trend", "annual"},
}

// ExtractSignal reduces a summary markdown document to its high-signal text:
// all headings plus the list items and paragraphs whose lines carry the
// level's markers.
func ExtractSignal(level Level, markdown string) string {
	md := goldmark.New()
	source := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(source))

	markers := levelMarkers[level]
	var lines []string

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			lines = append(lines, nodeText(node, source))
			return ast.WalkSkipChildren, nil
		case *ast.ListItem, *ast.Paragraph:
			content := nodeText(n, source)
			if content == "" {
				return ast.WalkContinue, nil
			}
			lower := strings.ToLower(content)
			for _, marker := range markers {
				if strings.Contains(lower, marker) {
					lines = append(lines, content)
					break
				}
			}
			if _, isItem := node.(*ast.ListItem); isItem {
				return ast.WalkSkipChildren, nil
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(dedupeLines(lines), "\n")
}

// nodeText collects the raw text under a node.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := child.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func dedupeLines(lines []string) []string {
	seen := make(map[string]bool, len(lines))
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}
