package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"
	"github.com/wesm/leadvault/internal/leads"
)

// padRight pads a string with spaces to fill width terminal cells.
// Uses lipgloss.Width to correctly handle ANSI codes and full-width characters.
func padRight(s string, width int) string {
	if width <= 0 {
		return ""
	}
	sw := lipgloss.Width(s)
	if sw >= width {
		return ansi.Truncate(s, width, "")
	}
	return s + strings.Repeat(" ", width-sw)
}

// truncateRunes truncates a string to fit within maxWidth terminal cells.
// Newlines and tabs become spaces so a value cannot break the table layout.
func truncateRunes(s string, maxWidth int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\t", " ")

	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// truncateToWidth truncates an ANSI string to maxWidth visual columns.
func truncateToWidth(s string, maxWidth int) string {
	return ansi.Truncate(s, maxWidth, "")
}

// skipToWidth returns the suffix of s starting after skipWidth visual columns.
func skipToWidth(s string, skipWidth int) string {
	return ansi.Cut(s, skipWidth, 10000)
}

func filterLabel(f leads.TimeFilter, r leads.DateRange) string {
	switch f {
	case leads.FilterToday:
		return "Today"
	case leads.FilterYesterday:
		return "Yesterday"
	case leads.FilterAll:
		return "All Time"
	case leads.FilterCustom:
		if r.Complete() {
			return "Custom (" + r.Start + " to " + r.End + ")"
		}
		return "Custom"
	}
	return string(f)
}

func formatLabel(f leads.Format) string {
	if f == leads.FormatCSV {
		return "CSV"
	}
	return "Excel"
}
