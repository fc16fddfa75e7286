package docs

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextLines is the number of unchanged lines kept around each change.
const contextLines = 2

// Condense returns a line diff of old and new with long unchanged runs
// collapsed to "...". At most maxLines lines are returned; 0 means no limit.
func Condense(oldText, newText string, maxLines int) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	changed := false
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			changed = true
			break
		}
	}
	if !changed {
		return ""
	}

	var out []string
	for i, d := range diffs {
		text := strings.TrimSuffix(d.Text, "\n")
		if text == "" {
			continue
		}
		chunk := strings.Split(text, "\n")
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			for _, l := range chunk {
				out = append(out, "- "+l)
			}
		case diffmatchpatch.DiffInsert:
			for _, l := range chunk {
				out = append(out, "+ "+l)
			}
		case diffmatchpatch.DiffEqual:
			out = append(out, collapse(chunk, i == 0, i == len(diffs)-1)...)
		}
	}

	if maxLines > 0 && len(out) > maxLines {
		more := len(out) - maxLines
		out = append(out[:maxLines], fmt.Sprintf("  ... (%d more lines)", more))
	}
	return strings.Join(out, "\n") + "\n"
}

// collapse keeps the context lines of an unchanged run that touch a change.
func collapse(lines []string, first, last bool) []string {
	head, tail := contextLines, contextLines
	if first {
		head = 0
	}
	if last {
		tail = 0
	}
	if len(lines) <= head+tail {
		return indent(lines)
	}

	var out []string
	out = append(out, indent(lines[:head])...)
	out = append(out, "  ...")
	return append(out, indent(lines[len(lines)-tail:])...)
}

func indent(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = "  " + l
	}
	return out
}
