package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/wesm/leadvault/internal/leads"
)

// handleKeyPress processes keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.modal != modalNone {
		return m.handleModalKeys(msg)
	}

	if m2, cmd, handled := m.handleGlobalKeys(msg); handled {
		return m2, cmd
	}

	if m.navigate(msg.String()) {
		return m, nil
	}

	switch msg.String() {
	case "enter":
		return m.selectAtCursor()

	case "left", "h", "pgup":
		m.sess.PrevPage()
		m.cursor[paneLeads] = 0
		m.refresh()

	case "right", "l", "pgdown":
		m.sess.NextPage()
		m.cursor[paneLeads] = 0
		m.refresh()

	case "f":
		return m.cycleFilter()

	case "c":
		return m.openRangeForm()

	case "x":
		next := leads.FormatCSV
		if m.sess.Format() == leads.FormatCSV {
			next = leads.FormatExcel
		}
		m.sess.SetFormat(next)
		return m.showFlash("Download format: " + formatLabel(next))

	case "d":
		return m, m.start("download", false, func(ctx context.Context) (string, error) {
			dl, err := m.sess.DownloadLeads(ctx, "")
			return dl.Path, err
		})

	case "y":
		// Downloading yesterday may load every lead first.
		fetch := len(m.state.Leads) == 0
		return m, m.start("download yesterday", fetch, func(ctx context.Context) (string, error) {
			dl, err := m.sess.DownloadYesterdayLeads(ctx, "")
			return dl.Path, err
		})

	case "r":
		if m.state.Form != nil {
			return m, m.start("reload leads", true, func(ctx context.Context) (string, error) {
				return "", m.sess.FetchLeads(ctx)
			})
		}
		if m.state.Page != nil {
			page := *m.state.Page
			return m, m.start("reload forms", false, func(ctx context.Context) (string, error) {
				return "", m.sess.SelectPage(ctx, page)
			})
		}
		return m, m.start("reload accounts", false, func(ctx context.Context) (string, error) {
			return "", m.sess.LoadAccounts(ctx)
		})
	}
	return m, nil
}

// handleGlobalKeys handles keys that work in every pane.
func (m Model) handleGlobalKeys(msg tea.KeyMsg) (Model, tea.Cmd, bool) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit, true
	case "?":
		m.modal = modalHelp
		return m, nil, true
	case "tab":
		m.focus = (m.focus + 1) % paneCount
		return m, nil, true
	case "shift+tab":
		m.focus = (m.focus + paneCount - 1) % paneCount
		return m, nil, true
	}
	return m, nil, false
}

// navigate moves the focused pane's cursor. Returns true if handled.
func (m *Model) navigate(key string) bool {
	n := m.paneLen(m.focus)
	c := m.cursor[m.focus]
	switch key {
	case "up", "k":
		c--
	case "down", "j":
		c++
	case "home", "g":
		c = 0
	case "end", "G":
		c = n - 1
	default:
		return false
	}
	m.cursor[m.focus] = clamp(c, 0, n-1)
	if m.focus < paneLeads {
		m.offset[m.focus] = scrollOffset(m.cursor[m.focus], m.offset[m.focus], selectorRows)
	}
	return true
}

func (m Model) paneLen(p pane) int {
	switch p {
	case paneAccounts:
		return len(m.state.Accounts)
	case panePages:
		return len(m.state.Pages)
	case paneForms:
		return len(m.state.Forms)
	}
	return len(m.state.Window())
}

// selectAtCursor selects the item under the cursor and moves focus to the
// next pane. In the lead table it opens the lead's detail.
func (m Model) selectAtCursor() (tea.Model, tea.Cmd) {
	c := m.cursor[m.focus]
	if c >= m.paneLen(m.focus) {
		return m, nil
	}
	switch m.focus {
	case paneAccounts:
		id := m.state.Accounts[c].ID
		m.focus = panePages
		return m, m.start("select account", false, func(ctx context.Context) (string, error) {
			return "", m.sess.SelectAccount(ctx, id)
		})
	case panePages:
		page := m.state.Pages[c]
		m.focus = paneForms
		return m, m.start("select page", false, func(ctx context.Context) (string, error) {
			return "", m.sess.SelectPage(ctx, page)
		})
	case paneForms:
		form := m.state.Forms[c]
		m.focus = paneLeads
		fetch := m.state.Form == nil || m.state.Form.ID != form.ID
		return m, m.start("select form", fetch, func(ctx context.Context) (string, error) {
			return "", m.sess.SelectForm(ctx, form)
		})
	}
	m.modal = modalLead
	return m, nil
}

// cycleFilter moves through today, yesterday, and all. Custom ranges are
// entered with the range form.
func (m Model) cycleFilter() (tea.Model, tea.Cmd) {
	next := m.state.Filter.Next()
	if next == leads.FilterCustom {
		next = next.Next()
	}
	fetch := m.state.Form != nil
	return m, m.start("change filter", fetch, func(ctx context.Context) (string, error) {
		return "", m.sess.SetTimeFilter(ctx, next, leads.DateRange{})
	})
}

// handleModalKeys handles keys while a modal is open.
func (m Model) handleModalKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.modal {
	case modalRange:
		return m.updateRangeForm(msg)
	case modalLead:
		switch msg.String() {
		case "up", "k":
			m.cursor[paneLeads] = clamp(m.cursor[paneLeads]-1, 0, m.paneLen(paneLeads)-1)
			return m, nil
		case "down", "j":
			m.cursor[paneLeads] = clamp(m.cursor[paneLeads]+1, 0, m.paneLen(paneLeads)-1)
			return m, nil
		}
	case modalHelp:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	}
	// Any other key closes the modal.
	m.modal = modalNone
	return m, nil
}
