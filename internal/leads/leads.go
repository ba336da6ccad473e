// Package leads holds the lead-form domain shared by the dashboard, the
// command line, and the reference server: accounts, pages, forms, leads,
// time filters, and the helpers that order, page, and name them.
package leads

import (
	"fmt"
	"strings"
	"time"
)

// Account is an ad account the operator can browse.
type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PagesCount int    `json:"pagesCount"`
	IsCurrent  bool   `json:"isCurrent"`
}

// Page is a Facebook page. AccessToken is the page-scoped token used for
// every form and lead request made on behalf of the page.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// Form is a lead-generation form attached to a page.
type Form struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Field is one answered question on a lead.
type Field struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// Lead is a single form submission. CreatedTime is kept exactly as the
// upstream sent it so it can be echoed back on export.
type Lead struct {
	ID          string  `json:"id"`
	CreatedTime string  `json:"created_time"`
	FieldData   []Field `json:"field_data"`
}

// Created parses CreatedTime. ok is false when the value is missing or
// in an unknown layout.
func (l Lead) Created() (t time.Time, ok bool) {
	t, err := ParseTime(l.CreatedTime)
	return t, err == nil
}

// Value returns the field's values joined with ", ", or "" when the lead
// has no such field.
func (l Lead) Value(name string) string {
	for _, f := range l.FieldData {
		if f.Name == name {
			return strings.Join(f.Values, ", ")
		}
	}
	return ""
}

// FieldNames returns the lead's field names in upstream order.
func (l Lead) FieldNames() []string {
	names := make([]string, 0, len(l.FieldData))
	for _, f := range l.FieldData {
		names = append(names, f.Name)
	}
	return names
}

// TimeFilter selects which leads a fetch asks for.
type TimeFilter string

const (
	FilterToday     TimeFilter = "today"
	FilterYesterday TimeFilter = "yesterday"
	FilterAll       TimeFilter = "all"
	FilterCustom    TimeFilter = "custom"
)

// Filters lists every filter in display order.
var Filters = []TimeFilter{FilterToday, FilterYesterday, FilterAll, FilterCustom}

// ParseTimeFilter validates s as a filter name.
func ParseTimeFilter(s string) (TimeFilter, error) {
	f := TimeFilter(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Filters {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown time filter %q (want today, yesterday, all, or custom)", s)
}

// Next returns the filter after f in display order, wrapping around.
func (f TimeFilter) Next() TimeFilter {
	for i, known := range Filters {
		if known == f {
			return Filters[(i+1)%len(Filters)]
		}
	}
	return FilterToday
}

// DateRange is an inclusive custom range of YYYY-MM-DD dates.
type DateRange struct {
	Start string `json:"startDate,omitempty"`
	End   string `json:"endDate,omitempty"`
}

// Complete reports whether both ends are set.
func (r DateRange) Complete() bool {
	return r.Start != "" && r.End != ""
}

// Validate checks that both dates are set, parse, and are in order.
func (r DateRange) Validate() error {
	if !r.Complete() {
		return fmt.Errorf("custom range needs both a start and an end date")
	}
	start, err := time.Parse(DateLayout, r.Start)
	if err != nil {
		return fmt.Errorf("invalid start date %q (want YYYY-MM-DD)", r.Start)
	}
	end, err := time.Parse(DateLayout, r.End)
	if err != nil {
		return fmt.Errorf("invalid end date %q (want YYYY-MM-DD)", r.End)
	}
	if end.Before(start) {
		return fmt.Errorf("start date %s is after end date %s", r.Start, r.End)
	}
	return nil
}

// Format is the spreadsheet format of an export.
type Format string

const (
	FormatExcel Format = "excel"
	FormatCSV   Format = "csv"
)

// Content types produced and accepted for exports.
const (
	ContentTypeXLSX   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypeCSV    = "text/csv"
	ContentTypeBinary = "application/octet-stream"
)

// ParseFormat validates s as an export format. "xlsx" is accepted as an
// alias for excel.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "excel", "xlsx":
		return FormatExcel, nil
	case "csv":
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unknown format %q (want excel or csv)", s)
}

// Extension returns the file extension, without the dot.
func (f Format) Extension() string {
	if f == FormatCSV {
		return "csv"
	}
	return "xlsx"
}

// ContentType returns the MIME type of the rendered spreadsheet.
func (f Format) ContentType() string {
	if f == FormatCSV {
		return ContentTypeCSV + "; charset=utf-8"
	}
	return ContentTypeXLSX
}

// Query describes one lead fetch.
type Query struct {
	FormID      string
	AccessToken string
	Filter      TimeFilter
	Range       DateRange // only meaningful for FilterCustom
	MaxLeads    int
}

// ExportRequest asks for a spreadsheet. When Leads is non-nil those exact
// leads are rendered; otherwise the exporter fetches them from Query.
type ExportRequest struct {
	Query
	Leads  []Lead
	Format Format
}

// Payload is a rendered spreadsheet.
type Payload struct {
	ContentType string
	Data        []byte
}
