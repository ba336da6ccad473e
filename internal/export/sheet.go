// Package export renders leads as spreadsheets and saves downloaded
// spreadsheets to disk.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/wesm/leadvault/internal/leads"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// SheetName is the worksheet leads are written to.
const SheetName = "Leads"

// Render renders ls in the given format. Timestamps are shown in loc.
func Render(ls []leads.Lead, format leads.Format, loc *time.Location) (*leads.Payload, error) {
	rows := Table(ls, loc)
	switch format {
	case leads.FormatCSV:
		data, err := renderCSV(rows)
		if err != nil {
			return nil, err
		}
		return &leads.Payload{ContentType: format.ContentType(), Data: data}, nil
	case leads.FormatExcel, "":
		data, err := renderXLSX(rows)
		if err != nil {
			return nil, err
		}
		return &leads.Payload{ContentType: leads.ContentTypeXLSX, Data: data}, nil
	}
	return nil, fmt.Errorf("unknown export format %q", format)
}

// Table lays ls out as rows: a header of "Lead ID", "Created Time", and
// every field name in first-seen order, then one row per lead.
func Table(ls []leads.Lead, loc *time.Location) [][]string {
	cols := leads.Columns(ls)
	header := append([]string{"Lead ID", "Created Time"}, cols...)
	rows := make([][]string, 0, len(ls)+1)
	rows = append(rows, header)
	for _, l := range ls {
		row := make([]string, 0, len(header))
		row = append(row, l.ID, leads.FormatCreated(l, loc))
		for _, c := range cols {
			row = append(row, l.Value(c))
		}
		rows = append(rows, row)
	}
	return rows
}

func renderXLSX(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, fmt.Errorf("cell for row %d: %w", i+1, err)
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	if n := len(rows[0]); n > 0 {
		last, err := excelize.ColumnNumberToName(n)
		if err != nil {
			return nil, fmt.Errorf("last column: %w", err)
		}
		if err := f.SetColWidth(SheetName, "A", last, 24); err != nil {
			return nil, fmt.Errorf("column width: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// renderCSV writes UTF-8 with a byte order mark so spreadsheet apps detect
// the encoding of non-ASCII answers. Cells are escaped with csvCell.
func renderCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	tw := transform.NewWriter(&buf, unicode.UTF8BOM.NewEncoder())
	w := csv.NewWriter(tw)
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = csvCell(v)
		}
		if err := w.Write(cells); err != nil {
			return nil, fmt.Errorf("write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// csvCell prefixes values a spreadsheet would evaluate as a formula with a
// single quote. Form answers come from the public.
func csvCell(v string) string {
	if v == "" {
		return v
	}
	switch v[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + v
	}
	return v
}
