package docs

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Render formats markdown for a terminal of the given width. It returns the
// input unchanged when rendering fails.
func Render(markdown string, width int) string {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}

// Columns wraps topic names into indented lines no wider than width.
func Columns(topics []string, width int) []string {
	const indent, gap = "  ", "  "
	if width <= len(indent) {
		width = 60
	}

	var lines []string
	var b strings.Builder
	for _, t := range topics {
		if b.Len() > 0 && b.Len()+len(gap)+len(t) > width {
			lines = append(lines, b.String())
			b.Reset()
		}
		if b.Len() == 0 {
			b.WriteString(indent)
		} else {
			b.WriteString(gap)
		}
		b.WriteString(t)
	}
	if b.Len() > 0 {
		lines = append(lines, b.String())
	}
	return lines
}
