package tui

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/session"
	"github.com/wesm/leadvault/internal/testutil"
)

// ansiStart is the escape sequence prefix found in styled terminal output.
const ansiStart = "\x1b["

// colorProfileMu serializes tests that mutate the global lipgloss color profile.
var colorProfileMu sync.Mutex

// forceColorProfile sets lipgloss to ANSI color output for tests that assert
// on styled output. It acquires colorProfileMu to prevent data races with
// parallel tests and restores the original profile via t.Cleanup.
func forceColorProfile(t *testing.T) {
	t.Helper()
	colorProfileMu.Lock()
	orig := lipgloss.ColorProfile()
	lipgloss.SetColorProfile(termenv.ANSI)
	t.Cleanup(func() {
		lipgloss.SetColorProfile(orig)
		colorProfileMu.Unlock()
	})
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

func stripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// testNow is 2024-03-02 10:00 in Asia/Kolkata.
var testNow = time.Date(2024, 3, 2, 4, 30, 0, 0, time.UTC)

// stubBackend serves one account with one page and one form.
type stubBackend struct {
	mu        sync.Mutex
	accounts  []leads.Account
	pages     []leads.Page
	forms     []leads.Form
	leads     []leads.Lead
	formsErr  error
	fetches   []leads.Query
	exports   []leads.ExportRequest
	exportErr error
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		accounts: []leads.Account{
			{ID: "a1", Name: "Acme Ads", PagesCount: 1, IsCurrent: true},
			{ID: "a2", Name: "Beta Ads"},
		},
		pages: []leads.Page{{ID: "p1", Name: "Acme Page", AccessToken: "page-token"}},
		forms: []leads.Form{
			{ID: "f1", Name: "Spring Signup", Status: "ACTIVE"},
			{ID: "f2", Name: "Old Form", Status: "ARCHIVED"},
		},
		leads: testutil.LeadsEvery(25, testNow.Add(-time.Minute), time.Hour),
	}
}

func (b *stubBackend) ListAccounts(ctx context.Context, setCurrentID string) ([]leads.Account, error) {
	return b.accounts, nil
}

func (b *stubBackend) ListPages(ctx context.Context, accountID string) ([]leads.Page, error) {
	if accountID != "a1" {
		return nil, nil
	}
	return b.pages, nil
}

func (b *stubBackend) ListForms(ctx context.Context, pageID, accessToken string) ([]leads.Form, error) {
	if b.formsErr != nil {
		return nil, b.formsErr
	}
	return b.forms, nil
}

func (b *stubBackend) FetchLeads(ctx context.Context, q leads.Query) ([]leads.Lead, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fetches = append(b.fetches, q)
	if q.FormID != "f1" {
		return nil, nil
	}
	return b.leads, nil
}

func (b *stubBackend) ExportLeads(ctx context.Context, req leads.ExportRequest) (*leads.Payload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exports = append(b.exports, req)
	if b.exportErr != nil {
		return nil, b.exportErr
	}
	return &leads.Payload{ContentType: leads.ContentTypeXLSX, Data: []byte("sheet")}, nil
}

func (b *stubBackend) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.fetches)
}

type memSaver struct {
	mu    sync.Mutex
	names []string
}

func (s *memSaver) Save(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return "/downloads/" + name, nil
}

// noTick disables timers so drive only runs session calls.
func noTick(time.Duration, func(time.Time) tea.Msg) tea.Cmd { return nil }

// newTestModel builds a sized dashboard over b with timers disabled.
func newTestModel(t *testing.T, b *stubBackend) (Model, *memSaver) {
	t.Helper()
	loc, err := leads.LoadLocation(leads.DefaultTimezone)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	saver := &memSaver{}
	sess := session.New(b, saver,
		session.WithClock(testutil.FixedClock(testNow)),
		session.WithLocation(loc),
		session.WithFilter(leads.FilterAll),
	)
	m := New(context.Background(), sess, Options{Version: "1.2.3", Logger: testutil.DiscardLogger()})
	m.tick = noTick
	m.now = testutil.FixedClock(testNow)
	m.width = 120
	m.height = 30
	return m, saver
}

// drive runs cmd and every command it produces, feeding each message back
// into the model. Do not drive the range form's commands; its cursor blink
// reschedules itself forever.
func drive(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	queue := []tea.Cmd{cmd}
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 100 {
			t.Fatal("drive: too many commands")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		msg := c()
		switch msg := msg.(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
			continue
		case tea.QuitMsg:
			continue
		}
		next, nextCmd := m.Update(msg)
		m = next.(Model)
		queue = append(queue, nextCmd)
	}
	return m
}

// loaded returns a model after Init has run and accounts, pages, and
// forms are loaded for the current account and first page.
func loaded(t *testing.T, b *stubBackend) (Model, *memSaver) {
	t.Helper()
	m, saver := newTestModel(t, b)
	m = drive(t, m, m.Init())
	m.focus = panePages
	m = pressKey(t, m, keyEnter)
	return m, saver
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var (
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyTab   = tea.KeyMsg{Type: tea.KeyTab}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyRight = tea.KeyMsg{Type: tea.KeyRight}
	keyLeft  = tea.KeyMsg{Type: tea.KeyLeft}
)

// pressKey sends k and drives the resulting commands.
func pressKey(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(k)
	return drive(t, next.(Model), cmd)
}

var _ session.Backend = (*stubBackend)(nil)
