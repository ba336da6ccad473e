package export

import (
	"fmt"
	"strings"
)

// Result describes a finished download for display.
type Result struct {
	Count int
	Size  int64
	Path  string
	Note  string
}

// FormatResult formats a Result into a human-readable string.
func FormatResult(r Result) string {
	if r.Path == "" {
		msg := "No leads exported."
		if r.Note != "" {
			msg += "\n\n" + r.Note
		}
		return msg
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Exported %d lead(s) (%s)\n\nSaved to:\n%s", r.Count, FormatBytesLong(r.Size), r.Path)
	if r.Note != "" {
		b.WriteString("\n\n" + r.Note)
	}
	return b.String()
}

// FormatBytesLong formats bytes with full precision for export results.
func FormatBytesLong(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
