package leads

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultPageSize is the number of leads shown per page.
const DefaultPageSize = 10

// DefaultMaxLeads caps how many leads one fetch asks for.
const DefaultMaxLeads = 300

// SortNewestFirst returns a copy of ls ordered by creation time, newest
// first. Undated leads go last; ties keep their input order.
func SortNewestFirst(ls []Lead) []Lead {
	type keyed struct {
		lead Lead
		t    time.Time
		ok   bool
	}
	ks := make([]keyed, len(ls))
	for i, l := range ls {
		t, ok := l.Created()
		ks[i] = keyed{lead: l, t: t, ok: ok}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		a, b := ks[i], ks[j]
		if a.ok != b.ok {
			return a.ok
		}
		return a.t.After(b.t)
	})
	out := make([]Lead, len(ks))
	for i, k := range ks {
		out[i] = k.lead
	}
	return out
}

// TotalPages returns the page count for n leads, at least 1.
func TotalPages(n, size int) int {
	if size <= 0 {
		size = DefaultPageSize
	}
	if n <= 0 {
		return 1
	}
	return (n + size - 1) / size
}

// ClampPage bounds page to [1, TotalPages(n, size)].
func ClampPage(page, n, size int) int {
	if page < 1 {
		return 1
	}
	if last := TotalPages(n, size); page > last {
		return last
	}
	return page
}

// PageBounds returns the half-open index range [from, to) of a 1-based page.
func PageBounds(page, n, size int) (from, to int) {
	if size <= 0 {
		size = DefaultPageSize
	}
	page = ClampPage(page, n, size)
	from = (page - 1) * size
	to = min(from+size, n)
	if from > n {
		from = n
	}
	return from, to
}

// PageOf returns the leads on a 1-based page.
func PageOf(ls []Lead, page, size int) []Lead {
	from, to := PageBounds(page, len(ls), size)
	return ls[from:to]
}

// Columns returns the union of field names across ls in first-seen order.
func Columns(ls []Lead) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, l := range ls {
		for _, f := range l.FieldData {
			if !seen[f.Name] {
				seen[f.Name] = true
				cols = append(cols, f.Name)
			}
		}
	}
	return cols
}

// ExportFilename names a regular download:
// leads_<form>_<filter>_<YYYY-MM-DD>.<ext>.
func ExportFilename(form string, f TimeFilter, day time.Time, format Format) string {
	return fmt.Sprintf("leads_%s_%s_%s.%s", formPart(form), f, day.Format(DateLayout), format.Extension())
}

// YesterdayFilename names a yesterday download: leads_<form>_<MM-DD-YYYY>.<ext>.
func YesterdayFilename(form string, day time.Time, format Format) string {
	return fmt.Sprintf("leads_%s_%s.%s", formPart(form), day.Format("01-02-2006"), format.Extension())
}

func formPart(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "form"
	}
	return SanitizeFilename(name)
}

// SanitizeFilename replaces characters that are invalid in filenames.
func SanitizeFilename(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', '\n', '\r', '\t':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
