// Package tui provides the terminal lead dashboard: account, page, and
// form selectors above a paginated lead table, driven by a session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/session"
)

// Options configures the dashboard.
type Options struct {
	Version string
	Logger  *slog.Logger
}

// pane identifies the focused area of the dashboard.
type pane int

const (
	paneAccounts pane = iota
	panePages
	paneForms
	paneLeads
	paneCount
)

// modalType represents the type of modal dialog.
type modalType int

const (
	modalNone modalType = iota
	modalHelp
	modalRange
	modalLead
)

// loadingMessages rotate under the spinner while leads load.
var loadingMessages = []string{
	"Connecting to Facebook...",
	"Fetching leads...",
	"Processing data...",
	"Almost there...",
	"This may take a moment for large datasets...",
}

const (
	// loadingMessageInterval is how long each loading message is shown.
	loadingMessageInterval = 3 * time.Second

	// flashDuration is how long flash messages are displayed.
	flashDuration = 4 * time.Second

	// selectorRows is the number of items visible in each selector list.
	selectorRows = 5
)

// tickFunc schedules a message after d. tea.Tick in production.
type tickFunc func(d time.Duration, fn func(time.Time) tea.Msg) tea.Cmd

// Model is the bubbletea model for the dashboard.
type Model struct {
	ctx     context.Context
	sess    *session.Session
	logger  *slog.Logger
	version string
	now     func() time.Time
	tick    tickFunc

	// state is the last session snapshot rendered.
	state session.State

	focus    pane
	cursor   [paneCount]int
	offset   [paneLeads]int    // scroll offset of each selector list
	listKeys [paneLeads]string // identity of each list when cursors were last synced

	modal modalType
	form  *huh.Form
	draft *rangeDraft

	width  int
	height int

	spinner  spinner.Model
	spinning bool // True while a spinner tick is scheduled
	pending  int  // Session calls in flight
	fetching int  // Lead fetches in flight
	rotating bool // True while a loading message tick is scheduled
	message  int  // Index into loadingMessages

	flashMessage   string
	flashExpiresAt time.Time

	quitting bool
}

// New creates a dashboard over sess. Init loads the account list.
func New(ctx context.Context, sess *session.Session, opts Options) Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := Model{
		ctx:      ctx,
		sess:     sess,
		logger:   logger,
		version:  opts.Version,
		now:      time.Now,
		tick:     tea.Tick,
		state:    sess.Snapshot(),
		focus:    paneAccounts,
		spinner:  spinner.New(spinner.WithSpinner(spinner.MiniDot), spinner.WithStyle(spinnerStyle)),
		pending:  1,
		spinning: true,
	}
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.runOp("load accounts", false, func(ctx context.Context) (string, error) {
			return "", m.sess.LoadAccounts(ctx)
		}),
		m.spinnerTick(),
	)
}

// opDoneMsg is sent when a session call returns.
type opDoneMsg struct {
	op    string
	fetch bool
	path  string
	err   error
}

// spinnerTickMsg advances the spinner and refreshes the snapshot.
type spinnerTickMsg struct{}

// loadingMessageMsg rotates the loading message.
type loadingMessageMsg struct{}

// flashClearMsg clears the flash message after timeout.
type flashClearMsg struct{}

// rangeSubmittedMsg carries a completed custom range form.
type rangeSubmittedMsg struct {
	rng leads.DateRange
}

// start counts a session call as in flight and returns the command that
// runs it, plus the spinner and loading message ticks if they are idle.
func (m *Model) start(name string, fetch bool, fn func(context.Context) (string, error)) tea.Cmd {
	m.pending++
	if fetch {
		m.fetching++
	}
	cmds := []tea.Cmd{m.runOp(name, fetch, fn)}
	if !m.spinning {
		m.spinning = true
		cmds = append(cmds, m.spinnerTick())
	}
	if fetch && !m.rotating {
		m.rotating = true
		m.message = 0
		cmds = append(cmds, m.loadingMessageTick())
	}
	return tea.Batch(cmds...)
}

// runOp wraps fn as a command. Panics become errors so a bad response
// cannot take down the terminal.
func (m Model) runOp(name string, fetch bool, fn func(context.Context) (string, error)) tea.Cmd {
	ctx := m.ctx
	return func() (msg tea.Msg) {
		defer func() {
			if r := recover(); r != nil {
				msg = opDoneMsg{op: name, fetch: fetch, err: fmt.Errorf("%s: panic: %v", name, r)}
			}
		}()
		path, err := fn(ctx)
		return opDoneMsg{op: name, fetch: fetch, path: path, err: err}
	}
}

func (m Model) spinnerTick() tea.Cmd {
	return m.tick(m.spinner.Spinner.FPS, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func (m Model) loadingMessageTick() tea.Cmd {
	return m.tick(loadingMessageInterval, func(time.Time) tea.Msg {
		return loadingMessageMsg{}
	})
}

// showFlash displays a temporary message.
func (m Model) showFlash(text string) (Model, tea.Cmd) {
	m.flashMessage = text
	m.flashExpiresAt = m.now().Add(flashDuration)
	return m, m.tick(flashDuration, func(time.Time) tea.Msg {
		return flashClearMsg{}
	})
}

// busy reports whether anything is loading.
func (m Model) busy() bool {
	return m.pending > 0 || m.state.Loading
}

// loadingLeads reports whether a lead fetch is in flight.
func (m Model) loadingLeads() bool {
	return m.fetching > 0 || m.state.LoadingLeads
}

// refresh takes a new snapshot and keeps cursors on valid rows.
func (m *Model) refresh() {
	m.state = m.sess.Snapshot()
	m.syncCursors()
}

// syncCursors moves a selector cursor onto the selected item when its list
// changes, and clamps every cursor to its list.
func (m *Model) syncCursors() {
	for p := paneAccounts; p < paneLeads; p++ {
		items := m.paneItems(p)
		key := listKey(items)
		if key != m.listKeys[p] {
			m.listKeys[p] = key
			m.cursor[p] = 0
			m.offset[p] = 0
			for i, it := range items {
				if it.selected {
					m.cursor[p] = i
					break
				}
			}
		}
		m.cursor[p] = clamp(m.cursor[p], 0, len(items)-1)
		m.offset[p] = scrollOffset(m.cursor[p], m.offset[p], selectorRows)
	}
	m.cursor[paneLeads] = clamp(m.cursor[paneLeads], 0, len(m.state.Window())-1)
}

// listItem is one row of a selector list.
type listItem struct {
	id       string
	label    string
	selected bool
}

func (m Model) paneItems(p pane) []listItem {
	st := m.state
	var items []listItem
	switch p {
	case paneAccounts:
		for _, a := range st.Accounts {
			label := a.Name
			if label == "" {
				label = a.ID
			}
			if a.PagesCount > 0 {
				label = fmt.Sprintf("%s (%d)", label, a.PagesCount)
			}
			items = append(items, listItem{id: a.ID, label: label, selected: a.ID == st.AccountID})
		}
	case panePages:
		for _, pg := range st.Pages {
			items = append(items, listItem{id: pg.ID, label: orID(pg.Name, pg.ID), selected: st.Page != nil && st.Page.ID == pg.ID})
		}
	case paneForms:
		for _, f := range st.Forms {
			label := orID(f.Name, f.ID)
			if f.Status != "" && !strings.EqualFold(f.Status, "active") {
				label += " [" + strings.ToLower(f.Status) + "]"
			}
			items = append(items, listItem{id: f.ID, label: label, selected: st.Form != nil && st.Form.ID == f.ID})
		}
	}
	return items
}

func listKey(items []listItem) string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return strings.Join(ids, "\x00")
}

func orID(name, id string) string {
	if name == "" {
		return id
	}
	return name
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.modal == modalRange {
		if _, ok := msg.(tea.KeyMsg); ok {
			return m.updateRangeForm(msg)
		}
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.width < 0 {
			m.width = 0
		}
		if m.height < 0 {
			m.height = 0
		}
		return m, nil

	case opDoneMsg:
		m.pending--
		if msg.fetch {
			m.fetching--
		}
		m.refresh()
		switch {
		case msg.err == nil:
			if msg.path != "" {
				return m.showFlash("Saved " + msg.path)
			}
		case errors.Is(msg.err, session.ErrSuperseded):
			m.logger.Debug("result superseded", "op", msg.op)
		default:
			m.logger.Warn("dashboard action failed", "op", msg.op, "error", msg.err)
			// Session errors already carry a message in the state.
			if m.state.Error == "" {
				return m.showFlash(msg.err.Error())
			}
		}
		return m, nil

	case rangeSubmittedMsg:
		rng := msg.rng
		return m, m.start("custom range", true, func(ctx context.Context) (string, error) {
			if err := m.sess.SetTimeFilter(ctx, leads.FilterCustom, rng); err != nil {
				return "", err
			}
			return "", m.sess.ConfirmCustomRange(ctx)
		})

	case spinnerTickMsg:
		m.refresh()
		if m.busy() {
			m.spinner, _ = m.spinner.Update(m.spinner.Tick())
			return m, m.spinnerTick()
		}
		m.spinning = false
		return m, nil

	case loadingMessageMsg:
		if m.loadingLeads() {
			m.message = (m.message + 1) % len(loadingMessages)
			return m, m.loadingMessageTick()
		}
		m.rotating = false
		m.message = 0
		return m, nil

	case flashClearMsg:
		if !m.now().Before(m.flashExpiresAt) {
			m.flashMessage = ""
		}
		return m, nil
	}

	if m.modal == modalRange && m.form != nil {
		return m.updateRangeForm(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 {
		return "Loading..."
	}
	return m.renderView()
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// scrollOffset keeps cursor within [offset, offset+rows).
func scrollOffset(cursor, offset, rows int) int {
	if cursor < offset {
		return cursor
	}
	if cursor >= offset+rows {
		return cursor - rows + 1
	}
	return offset
}
