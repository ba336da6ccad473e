package tui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/wesm/leadvault/internal/session"
	"github.com/wesm/leadvault/internal/testutil"
)

func TestViewBeforeResize(t *testing.T) {
	m, _ := newTestModel(t, newStubBackend())
	m.width = 0
	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q, want Loading...", got)
	}
}

func TestViewRendersDashboard(t *testing.T) {
	forceColorProfile(t)

	m, _ := loaded(t, newStubBackend())
	m = pressKey(t, m, keyEnter)

	view := m.View()
	if !strings.Contains(view, ansiStart) {
		t.Error("expected styled output")
	}
	testutil.AssertContainsAll(t, stripANSI(view), []string{
		"leadvault 1.2.3",
		"Acme Ads › Acme Page › Spring Signup",
		"Filter: All Time",
		"Format: Excel",
		"Leads: 25",
		"Accounts (2)",
		"Forms (2)",
		"Old Form [archived]",
		"Created",
		"email",
		"03/02/2024, 09:59 AM",
		"lead-1@example.com",
		"Showing 1 to 10 of 25",
		"Page 1 of 3",
		"25 leads loaded successfully. Ready to download.",
	})
	if strings.Contains(stripANSI(view), "lead-11@example.com") {
		t.Error("second page lead rendered on page 1")
	}
}

func TestViewLinesFitWidth(t *testing.T) {
	m, _ := loaded(t, newStubBackend())
	m = pressKey(t, m, keyEnter)
	m.width = 80

	for i, line := range strings.Split(m.View(), "\n") {
		if w := lipgloss.Width(line); w > m.width {
			t.Errorf("line %d is %d cells wide, max %d: %q", i, w, m.width, stripANSI(line))
		}
	}
}

func TestViewEmptyLeadsHint(t *testing.T) {
	m, _ := loaded(t, newStubBackend())
	m = pressKey(t, m, keyDown)
	m = pressKey(t, m, keyEnter)

	if m.state.Form == nil || m.state.Form.ID != "f2" {
		t.Fatalf("Form = %+v, want f2", m.state.Form)
	}
	testutil.AssertContainsAll(t, stripANSI(m.View()), []string{
		"No leads available",
		"Try changing the time filter or selecting a different form",
		session.StatusNoLeads,
	})
}

func TestViewNoFormHint(t *testing.T) {
	m, _ := newTestModel(t, newStubBackend())
	m = drive(t, m, m.Init())
	testutil.AssertContainsAll(t, stripANSI(m.View()), []string{
		"Select a form to view leads",
		"Select a page",
	})
}

func TestViewLoadingMessage(t *testing.T) {
	m, _ := loaded(t, newStubBackend())
	m.fetching = 1
	m.message = 2
	if got := stripANSI(m.View()); !strings.Contains(got, "Processing data...") {
		t.Errorf("view missing loading message:\n%s", got)
	}
}

func TestHelpModal(t *testing.T) {
	m, _ := newTestModel(t, newStubBackend())
	m = pressKey(t, m, key("?"))
	if m.modal != modalHelp {
		t.Fatalf("modal = %d, want help", m.modal)
	}
	if got := stripANSI(m.View()); !strings.Contains(got, "Keyboard Shortcuts") {
		t.Errorf("help not rendered:\n%s", got)
	}
	m = pressKey(t, m, key("a"))
	if m.modal != modalNone {
		t.Errorf("modal = %d after key, want closed", m.modal)
	}
}

func TestLeadModal(t *testing.T) {
	m, _ := loaded(t, newStubBackend())
	m = pressKey(t, m, keyEnter)

	m = pressKey(t, m, keyEnter)
	if m.modal != modalLead {
		t.Fatalf("modal = %d, want lead detail", m.modal)
	}
	if got := stripANSI(m.View()); !strings.Contains(got, "Lead lead-1") {
		t.Errorf("lead detail not rendered:\n%s", got)
	}

	m = pressKey(t, m, key("j"))
	if m.cursor[paneLeads] != 1 {
		t.Errorf("lead cursor = %d, want 1", m.cursor[paneLeads])
	}
	if got := stripANSI(m.View()); !strings.Contains(got, "Lead lead-2") {
		t.Errorf("lead detail did not follow the cursor:\n%s", got)
	}

	m = pressKey(t, m, keyEsc)
	if m.modal != modalNone {
		t.Errorf("modal = %d after esc", m.modal)
	}
}

func TestRangeModalRenders(t *testing.T) {
	m, _ := loaded(t, newStubBackend())
	next, _ := m.openRangeForm()
	m = next.(Model)
	testutil.AssertContainsAll(t, stripANSI(m.View()), []string{
		"Custom Date Range",
		"Start date",
	})
}
