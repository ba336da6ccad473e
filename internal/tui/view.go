package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/wesm/leadvault/internal/leads"
)

// Monochrome theme - adaptive for light and dark terminals
var (
	bgBase   = lipgloss.AdaptiveColor{Light: "#ffffff", Dark: "#000000"}
	bgAlt    = lipgloss.AdaptiveColor{Light: "#f0f0f0", Dark: "#181818"}
	bgCursor = lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#282828"}

	titleBarStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.AdaptiveColor{Light: "#e0e0e0", Dark: "#333333"}).
			Foreground(lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"}).
			Padding(0, 1)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase)

	// Spinner style - NOT faint so it's visible
	spinnerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	separatorStyle = lipgloss.NewStyle().
			Faint(true).
			Background(bgBase)

	cursorRowStyle = lipgloss.NewStyle().
			Background(bgCursor)

	// Selected items in the selector lists: bold
	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Background(bgBase)

	normalRowStyle = lipgloss.NewStyle().
			Background(bgBase)

	altRowStyle = lipgloss.NewStyle().
			Background(bgAlt)

	hintStyle = lipgloss.NewStyle().
			Faint(true).
			Background(bgBase)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#555555", Dark: "#999999"}).
			Background(bgBase)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Background(bgBase)

	loadingStyle = lipgloss.NewStyle().
			Italic(true).
			Background(bgBase)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(1, 2).
			Background(bgBase)

	modalTitleStyle = lipgloss.NewStyle().
			Bold(true)

	flashStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#996600", Dark: "#ffcc00"}).
			Background(bgBase)
)

// createdWidth fits leads.DisplayLayout.
const createdWidth = 20

// renderView lays out the header, selectors, lead table, footer, and
// status line, then overlays any modal.
func (m Model) renderView() string {
	var sb strings.Builder
	sb.WriteString(m.headerView())
	sb.WriteString("\n")
	sb.WriteString(m.selectorsView())
	sb.WriteString("\n")
	sb.WriteString(m.leadsView())
	sb.WriteString("\n")
	sb.WriteString(m.footerView())
	sb.WriteString("\n")
	sb.WriteString(m.statusView())

	if m.modal != modalNone {
		return m.overlayModal(sb.String())
	}
	return sb.String()
}

// headerView renders the title bar and the filter line.
func (m Model) headerView() string {
	title := "leadvault"
	if m.version != "" && m.version != "dev" {
		title += " " + m.version
	}
	var crumbs []string
	if a, ok := m.state.Account(); ok {
		crumbs = append(crumbs, orID(a.Name, a.ID))
	}
	if m.state.Page != nil {
		crumbs = append(crumbs, orID(m.state.Page.Name, m.state.Page.ID))
	}
	if m.state.Form != nil {
		crumbs = append(crumbs, orID(m.state.Form.Name, m.state.Form.ID))
	}
	if len(crumbs) > 0 {
		title += " │ " + strings.Join(crumbs, " › ")
	}
	line1 := titleBarStyle.Render(padRight(title, m.width-2))

	stats := fmt.Sprintf(" Filter: %s │ Format: %s │ Leads: %d",
		filterLabel(m.state.Filter, m.state.Range),
		formatLabel(m.sess.Format()),
		len(m.state.Leads))
	right := ""
	if m.busy() {
		right = m.spinner.View() + " "
	}
	gap := m.width - lipgloss.Width(stats) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	line2 := statsStyle.Render(stats+strings.Repeat(" ", gap)) + right
	return line1 + "\n" + padRight(line2, m.width)
}

// selectorsView renders the account, page, and form lists side by side.
func (m Model) selectorsView() string {
	colW := (m.width - 2) / 3
	if colW < 1 {
		colW = 1
	}
	cols := make([][]string, 0, 3)
	for p := paneAccounts; p < paneLeads; p++ {
		cols = append(cols, m.selectorColumn(p, colW))
	}
	lines := make([]string, 0, selectorRows+1)
	for i := 0; i <= selectorRows; i++ {
		row := cols[0][i] + " " + cols[1][i] + " " + cols[2][i]
		lines = append(lines, padRight(row, m.width))
	}
	return strings.Join(lines, "\n")
}

var paneTitles = [paneLeads]string{"Accounts", "Pages", "Forms"}

// selectorColumn renders a title and selectorRows rows for one list.
func (m Model) selectorColumn(p pane, width int) []string {
	items := m.paneItems(p)
	focused := m.focus == p

	title := fmt.Sprintf("%s (%d)", paneTitles[p], len(items))
	if focused {
		title = "▸ " + title
	} else {
		title = "  " + title
	}
	lines := []string{tableHeaderStyle.Render(padRight(title, width))}

	if len(items) == 0 {
		lines = append(lines, hintStyle.Render(padRight("  "+m.emptySelectorHint(p), width)))
	}
	off := m.offset[p]
	for i := off; i < off+selectorRows && i < len(items); i++ {
		it := items[i]
		indicator := "  "
		if it.selected {
			indicator = "● "
		}
		text := padRight(indicator+truncateRunes(it.label, width-2), width)
		switch {
		case focused && i == m.cursor[p]:
			text = cursorRowStyle.Render(text)
		case it.selected:
			text = selectedRowStyle.Render(text)
		default:
			text = normalRowStyle.Render(text)
		}
		lines = append(lines, text)
	}
	for len(lines) < selectorRows+1 {
		lines = append(lines, normalRowStyle.Render(strings.Repeat(" ", width)))
	}
	return lines
}

func (m Model) emptySelectorHint(p pane) string {
	switch p {
	case paneAccounts:
		if m.busy() {
			return "Loading..."
		}
		return "No accounts"
	case panePages:
		if m.state.AccountID == "" {
			return "Select an account"
		}
		return "No pages"
	}
	if m.state.Page == nil {
		return "Select a page"
	}
	return "No forms"
}

// leadsView renders the lead table, or a hint when there is nothing to show.
func (m Model) leadsView() string {
	rows := m.state.PageSize
	if rows <= 0 {
		rows = leads.DefaultPageSize
	}
	var lines []string
	window := m.state.Window()

	switch {
	case m.loadingLeads() && len(window) == 0:
		lines = append(lines,
			"",
			loadingStyle.Render(padRight("  "+m.spinner.View()+" "+loadingMessages[m.message], m.width)))
	case m.state.Form == nil:
		lines = append(lines, "", hintStyle.Render(padRight("  Select a form to view leads", m.width)))
	case len(window) == 0:
		lines = append(lines,
			"",
			normalRowStyle.Render(padRight("  No leads available", m.width)),
			hintStyle.Render(padRight("  Try changing the time filter or selecting a different form", m.width)))
	default:
		lines = m.leadTable(window)
	}

	for len(lines) < rows+2 {
		lines = append(lines, "")
	}
	for i, l := range lines {
		lines[i] = padRight(l, m.width)
	}
	return strings.Join(lines, "\n")
}

// leadTable renders the current page. Columns follow the first displayed
// lead's fields; columns that do not fit are dropped from the right.
func (m Model) leadTable(window []leads.Lead) []string {
	cols := window[0].FieldNames()
	avail := m.width - 2 - createdWidth
	colW := 0
	if len(cols) > 0 {
		colW = avail/len(cols) - 1
		if colW < 10 {
			colW = 10
		}
		fit := avail / (colW + 1)
		if fit < len(cols) {
			cols = cols[:fit]
		}
	}

	var header strings.Builder
	header.WriteString("  ")
	header.WriteString(padRight("Created", createdWidth))
	for _, c := range cols {
		header.WriteString(" ")
		header.WriteString(padRight(truncateRunes(c, colW), colW))
	}
	lines := []string{
		tableHeaderStyle.Render(padRight(header.String(), m.width)),
		separatorStyle.Render(strings.Repeat("─", max(m.width, 0))),
	}

	loc := m.sess.Location()
	for i, l := range window {
		indicator := "  "
		if m.focus == paneLeads && i == m.cursor[paneLeads] {
			indicator = "▶ "
		}
		var row strings.Builder
		row.WriteString(indicator)
		row.WriteString(padRight(leads.FormatCreated(l, loc), createdWidth))
		for _, c := range cols {
			row.WriteString(" ")
			row.WriteString(padRight(truncateRunes(l.Value(c), colW), colW))
		}
		text := padRight(row.String(), m.width)
		switch {
		case m.focus == paneLeads && i == m.cursor[paneLeads]:
			text = cursorRowStyle.Render(text)
		case i%2 == 1:
			text = altRowStyle.Render(text)
		default:
			text = normalRowStyle.Render(text)
		}
		lines = append(lines, text)
	}
	return lines
}

// footerView renders key hints and the lead position.
func (m Model) footerView() string {
	keys := []string{"tab pane", "↑/↓ move", "enter select", "←/→ page", "f filter", "c custom", "d download", "y yesterday", "x format", "? help"}
	left := " " + strings.Join(keys, " │ ")

	right := ""
	if n := len(m.state.Leads); n > 0 {
		from, to := m.state.Showing()
		right = fmt.Sprintf("Showing %d to %d of %d │ Page %d of %d ", from, to, n, m.state.CurrentPage, m.state.TotalPages())
	}
	space := m.width - lipgloss.Width(right)
	if lipgloss.Width(left) > space-1 {
		left = truncateToWidth(left, max(space-1, 0))
	}
	return footerStyle.Render(padRight(left, space) + right)
}

// statusView renders the loading message, flash, error, or session status.
func (m Model) statusView() string {
	switch {
	case m.loadingLeads():
		return loadingStyle.Render(padRight(" "+m.spinner.View()+" "+loadingMessages[m.message], m.width))
	case m.flashMessage != "":
		return flashStyle.Render(padRight(" "+m.flashMessage, m.width))
	case m.state.Error != "":
		return errorStyle.Render(padRight(" Error: "+m.state.Error, m.width))
	case m.state.Status != "":
		return normalRowStyle.Render(padRight(" "+m.state.Status, m.width))
	}
	return normalRowStyle.Render(strings.Repeat(" ", max(m.width, 0)))
}

// helpLines is the help modal content. The first line is the title.
var helpLines = []string{
	"Keyboard Shortcuts",
	"",
	"Tab/Shift+Tab  Switch pane",
	"↑/k ↓/j        Move cursor",
	"Enter          Select / show lead",
	"←/h →/l        Previous / next page",
	"f              Cycle today / yesterday / all",
	"c              Custom date range",
	"r              Reload",
	"d              Download leads",
	"y              Download yesterday's leads",
	"x              Toggle Excel / CSV",
	"q              Quit",
	"",
	"Press any key to close",
}

func (m Model) renderHelpModal() string {
	return modalTitleStyle.Render(helpLines[0]) + "\n" + strings.Join(helpLines[1:], "\n")
}

// renderLeadModal renders every field of the lead under the cursor.
func (m Model) renderLeadModal() string {
	window := m.state.Window()
	c := m.cursor[paneLeads]
	if c >= len(window) {
		return ""
	}
	l := window[c]
	width := m.width - 10
	if width < 20 {
		width = 20
	}

	var sb strings.Builder
	sb.WriteString(modalTitleStyle.Render("Lead " + l.ID))
	sb.WriteString("\n\n")
	sb.WriteString(truncateRunes("Created: "+leads.FormatCreated(l, m.sess.Location()), width))
	for _, f := range l.FieldData {
		sb.WriteString("\n")
		sb.WriteString(truncateRunes(f.Name+": "+strings.Join(f.Values, ", "), width))
	}
	sb.WriteString("\n\n[↑/↓] Previous / next lead  [any key] Close")
	return sb.String()
}

func (m Model) renderRangeModal() string {
	if m.form == nil {
		return ""
	}
	return modalTitleStyle.Render("Custom Date Range") + "\n\n" +
		m.form.View() + "\n" +
		"[Enter] Next / apply  [Esc] Cancel"
}

// overlayModal renders the active modal centered over background.
func (m Model) overlayModal(background string) string {
	var content string
	switch m.modal {
	case modalHelp:
		content = m.renderHelpModal()
	case modalLead:
		content = m.renderLeadModal()
	case modalRange:
		content = m.renderRangeModal()
	}
	if content == "" {
		return background
	}

	modal := modalStyle.Render(content)
	bgLines := strings.Split(background, "\n")
	modalLines := strings.Split(modal, "\n")

	startLine := (len(bgLines) - len(modalLines)) / 2
	if startLine < 0 {
		startLine = 0
	}
	modalWidth := lipgloss.Width(modal)
	leftPadding := (m.width - modalWidth) / 2
	if leftPadding < 0 {
		leftPadding = 0
	}

	for i, modalLine := range modalLines {
		lineIdx := startLine + i
		if lineIdx >= len(bgLines) {
			break
		}
		bgLine := bgLines[lineIdx]

		var composite strings.Builder
		if leftPadding > 0 {
			leftBg := truncateToWidth(bgLine, leftPadding)
			composite.WriteString(leftBg)
			if w := lipgloss.Width(leftBg); w < leftPadding {
				composite.WriteString(strings.Repeat(" ", leftPadding-w))
			}
		}
		composite.WriteString(modalLine)
		if rightStart := leftPadding + modalWidth; rightStart < lipgloss.Width(bgLine) {
			composite.WriteString(skipToWidth(bgLine, rightStart))
		}
		bgLines[lineIdx] = composite.String()
	}
	return strings.Join(bgLines, "\n")
}
