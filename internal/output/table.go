// Package output renders docmirror's terminal output.
//
// This package includes:
//   - Status markers (✓ ⚠ ✗) styled with lipgloss when color is enabled
//   - Tables for sync history, settings backups and workflow steps
//   - A spinner for git and network operations
//
// Color is used only when stdout is a terminal and NO_COLOR is unset.
package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/blackwell-systems/docmirror/internal/store"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#E53935")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	headStyle = lipgloss.NewStyle().Bold(true)
)

// IsColorEnabled returns true if styled output should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// TerminalWidth returns the width of stdout, or fallback when stdout is not
// a terminal.
func TerminalWidth(fallback int) int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return fallback
}

func style(s lipgloss.Style, text string) string {
	if IsColorEnabled() {
		return s.Render(text)
	}
	return text
}

// OK formats a success line.
func OK(format string, args ...any) string {
	return style(okStyle, "✓") + " " + fmt.Sprintf(format, args...)
}

// Warn formats a soft failure line.
func Warn(format string, args ...any) string {
	return style(warnStyle, "⚠") + " " + fmt.Sprintf(format, args...)
}

// Fail formats a fatal error line.
func Fail(format string, args ...any) string {
	return style(failStyle, "✗") + " " + fmt.Sprintf(format, args...)
}

// Dim formats secondary text.
func Dim(text string) string {
	return style(dimStyle, text)
}

// Heading formats a section heading.
func Heading(text string) string {
	return style(headStyle, text)
}

// Step is one finished workflow step.
type Step struct {
	Name   string
	Status string // done, skipped, warning
	Detail string
}

// RenderSteps renders one marker line per step.
func RenderSteps(steps []Step) string {
	var sb strings.Builder
	for _, s := range steps {
		line := fmt.Sprintf("%-16s %s", s.Name, s.Detail)
		switch s.Status {
		case "warning":
			sb.WriteString(Warn("%s", line))
		case "skipped":
			sb.WriteString(style(dimStyle, "-") + " " + line)
		default:
			sb.WriteString(OK("%s", line))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderSyncEventTable renders sync history, newest first as given.
func RenderSyncEventTable(events []*store.SyncEvent) string {
	if len(events) == 0 {
		return "No syncs recorded.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-15s %-10s %-11s %-17s %-8s %s\n",
		"When", "Trigger", "Outcome", "Head", "Took", "Error"))
	sb.WriteString(strings.Repeat("─", 80))
	sb.WriteString("\n")

	for _, e := range events {
		head := shortHash(e.HeadAfter)
		if e.HeadBefore != "" && e.HeadBefore != e.HeadAfter {
			head = shortHash(e.HeadBefore) + ".." + shortHash(e.HeadAfter)
		}
		outcome := e.Outcome
		if e.Error != "" {
			outcome = style(warnStyle, outcome)
		}
		sb.WriteString(fmt.Sprintf("%-15s %-10s %-11s %-17s %-8s %s\n",
			FormatRelativeTime(e.StartedAt),
			e.Trigger,
			outcome,
			head,
			formatDuration(e.Duration()),
			truncate(e.Error, 40)))
	}
	return sb.String()
}

// RenderBackupTable renders settings backups, newest first as given.
func RenderBackupTable(backups []*store.Backup) string {
	if len(backups) == 0 {
		return "No settings backups found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-5s %-15s %-9s %s\n", "ID", "Created", "Size", "Reason"))
	sb.WriteString(strings.Repeat("─", 60))
	sb.WriteString("\n")

	for _, b := range backups {
		sb.WriteString(fmt.Sprintf("%-5d %-15s %-9s %s\n",
			b.ID,
			FormatRelativeTime(b.CreatedAt),
			humanize.Bytes(uint64(b.SizeBytes)),
			truncate(b.Reason, 30)))
	}
	return sb.String()
}

// FormatRelativeTime converts a timestamp to relative time (e.g. "2 days ago").
func FormatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	if time.Since(t) < time.Minute {
		return "just now"
	}
	return humanize.Time(t)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return d.Round(100 * time.Millisecond).String()
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	if h == "" {
		return "-"
	}
	return h
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
