package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/wesm/leadvault/internal/leads"
)

const rangeFormWidth = 36

// rangeDraft holds the custom range being edited. The form binds to its
// fields, so it lives on the heap and survives Model copies.
type rangeDraft struct {
	Start string
	End   string
}

func newRangeForm(d *rangeDraft) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Start date").
				Placeholder("YYYY-MM-DD").
				Value(&d.Start).
				Validate(validateDate),
			huh.NewInput().
				Title("End date").
				Placeholder("YYYY-MM-DD").
				Value(&d.End).
				Validate(validateDate),
		),
	).WithShowHelp(false).WithWidth(rangeFormWidth)
}

func validateDate(s string) error {
	if _, err := time.Parse(leads.DateLayout, strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("use YYYY-MM-DD")
	}
	return nil
}

// openRangeForm shows the custom range form, prefilled with the range the
// session already holds.
func (m Model) openRangeForm() (tea.Model, tea.Cmd) {
	m.draft = &rangeDraft{Start: m.state.Range.Start, End: m.state.Range.End}
	m.form = newRangeForm(m.draft)
	m.modal = modalRange
	return m, m.form.Init()
}

func (m Model) closeRangeForm() Model {
	m.modal = modalNone
	m.form = nil
	m.draft = nil
	return m
}

// updateRangeForm forwards msg to the form. Completion hands the range to
// the session; the form's own submit and cancel commands are dropped.
func (m Model) updateRangeForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		return m.closeRangeForm(), nil
	}

	next, cmd := m.form.Update(msg)
	if f, ok := next.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		rng := leads.DateRange{
			Start: strings.TrimSpace(m.draft.Start),
			End:   strings.TrimSpace(m.draft.End),
		}
		m = m.closeRangeForm()
		return m, func() tea.Msg { return rangeSubmittedMsg{rng: rng} }
	case huh.StateAborted:
		return m.closeRangeForm(), nil
	}
	return m, cmd
}
