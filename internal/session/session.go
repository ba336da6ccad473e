// Package session implements the selection and lead session controller:
// the cascading account → page → form → time filter selection, the lead
// set fetched for it, pagination over that set, and downloads.
//
// Every state change goes through reduce. Backend calls run without the
// session lock held; each captures the generation of its selection level
// when it starts and its result is dropped with ErrSuperseded if the user
// has moved on by the time it returns.
package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/remote"
)

// Backend is the collaborator the session fetches from and exports
// through. *remote.Client implements it.
type Backend interface {
	ListAccounts(ctx context.Context, setCurrentID string) ([]leads.Account, error)
	ListPages(ctx context.Context, accountID string) ([]leads.Page, error)
	ListForms(ctx context.Context, pageID, accessToken string) ([]leads.Form, error)
	FetchLeads(ctx context.Context, q leads.Query) ([]leads.Lead, error)
	ExportLeads(ctx context.Context, req leads.ExportRequest) (*leads.Payload, error)
}

// Saver persists a downloaded spreadsheet and returns where it went.
type Saver interface {
	Save(name string, data []byte) (string, error)
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithClock sets the time source used for "today" and "yesterday".
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLocation sets the zone "yesterday" and file dates are computed in.
func WithLocation(loc *time.Location) Option {
	return func(s *Session) { s.loc = loc }
}

// WithMaxLeads caps how many leads a fetch asks for.
func WithMaxLeads(n int) Option {
	return func(s *Session) { s.maxLeads = n }
}

// WithFormat sets the default download format.
func WithFormat(f leads.Format) Option {
	return func(s *Session) { s.format = f }
}

// WithPageSize sets the number of leads per page.
func WithPageSize(n int) Option {
	return func(s *Session) { s.state.PageSize = n }
}

// WithFilter sets the initial time filter.
func WithFilter(f leads.TimeFilter) Option {
	return func(s *Session) { s.state.Filter = f }
}

// Session holds one user's selections and leads.
type Session struct {
	backend  Backend
	saver    Saver
	logger   *slog.Logger
	now      func() time.Time
	loc      *time.Location
	maxLeads int
	format   leads.Format

	mu        sync.Mutex
	state     State
	busy      int
	leadsBusy int
}

// New creates a session with the default filter (today) and nothing
// selected.
func New(backend Backend, saver Saver, opts ...Option) *Session {
	s := &Session{
		backend:  backend,
		saver:    saver,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
		maxLeads: leads.DefaultMaxLeads,
		format:   leads.FormatExcel,
		state: State{
			Filter:      leads.FilterToday,
			CurrentPage: 1,
			PageSize:    leads.DefaultPageSize,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc, _ = leads.LoadLocation(leads.DefaultTimezone)
	}
	if s.state.PageSize <= 0 {
		s.state.PageSize = leads.DefaultPageSize
	}
	return s
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state.clone()
	st.Loading = s.busy > 0
	st.LoadingLeads = s.leadsBusy > 0
	return st
}

// Location returns the zone dates are computed in.
func (s *Session) Location() *time.Location {
	return s.loc
}

// Format returns the default download format.
func (s *Session) Format() leads.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// SetFormat changes the default download format.
func (s *Session) SetFormat(f leads.Format) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.format = f
}

// dispatch applies ev. Callers hold s.mu.
func (s *Session) dispatch(ev event) {
	s.state = reduce(s.state, ev)
}

// begin marks a backend call in flight and returns the func that ends it.
func (s *Session) begin(fetchingLeads bool) func() {
	s.mu.Lock()
	s.busy++
	if fetchingLeads {
		s.leadsBusy++
	}
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.busy--
		if fetchingLeads {
			s.leadsBusy--
		}
		s.mu.Unlock()
	}
}

// LoadAccounts fetches the account list and selects the account flagged
// current, else the first one.
func (s *Session) LoadAccounts(ctx context.Context) error {
	end := s.begin(false)
	accounts, err := s.backend.ListAccounts(ctx, "")
	end()

	s.mu.Lock()
	if err != nil {
		msg := remote.UserMessage(err)
		s.dispatch(failed{message: msg})
		s.mu.Unlock()
		s.logger.Warn("load accounts failed", "error", err)
		return err
	}
	s.dispatch(accountsLoaded{accounts: accounts})
	s.mu.Unlock()

	if len(accounts) == 0 {
		return nil
	}
	pick := accounts[0]
	for _, a := range accounts {
		if a.IsCurrent {
			pick = a
			break
		}
	}
	return s.SelectAccount(ctx, pick.ID)
}

// SelectAccount makes id the selected account. A different account clears
// the page, form, and lead state, records the choice server-side, and
// fetches the account's pages. Selecting the current account is a no-op
// once its pages have loaded; after a failed fetch it retries.
func (s *Session) SelectAccount(ctx context.Context, id string) error {
	if id == "" {
		return ErrNoAccount
	}

	s.mu.Lock()
	if id == s.state.AccountID && s.state.Pages != nil {
		s.mu.Unlock()
		return nil
	}
	s.dispatch(accountSelected{id: id})
	gen := s.state.gens.account
	s.mu.Unlock()

	s.logger.Debug("account selected", "account", id)

	end := s.begin(false)
	defer end()

	// Recording the current account is best effort; the page list is what
	// the user is waiting for.
	if _, err := s.backend.ListAccounts(ctx, id); err != nil {
		s.logger.Warn("record current account failed", "account", id, "error", err)
	}

	pages, err := s.backend.ListPages(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.gens.account != gen {
		return ErrSuperseded
	}
	if err != nil {
		s.dispatch(failed{message: remote.UserMessage(err)})
		s.logger.Warn("fetch pages failed", "account", id, "error", err)
		return err
	}
	s.dispatch(pagesLoaded{pages: pages})
	return nil
}

// SelectPage makes page the selected page, clearing form and lead state,
// and fetches its lead forms with the page's own access token. Selecting
// the current page again only refetches if its forms failed to load.
func (s *Session) SelectPage(ctx context.Context, page leads.Page) error {
	s.mu.Lock()
	if s.state.Page != nil && s.state.Page.ID == page.ID && s.state.Forms != nil {
		s.mu.Unlock()
		return nil
	}
	s.dispatch(pageSelected{page: page})
	gen := s.state.gens.page
	s.mu.Unlock()

	s.logger.Debug("page selected", "page", page.ID)

	end := s.begin(false)
	forms, err := s.backend.ListForms(ctx, page.ID, page.AccessToken)
	end()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.gens.page != gen {
		return ErrSuperseded
	}
	if err != nil {
		s.dispatch(failed{message: formsErrorMessage(err)})
		s.logger.Warn("fetch forms failed", "page", page.ID, "error", err)
		return err
	}
	s.dispatch(formsLoaded{forms: forms})
	return nil
}

// SelectPageByID selects a page from the loaded page list.
func (s *Session) SelectPageByID(ctx context.Context, id string) error {
	s.mu.Lock()
	var found *leads.Page
	for _, p := range s.state.Pages {
		if p.ID == id {
			found = &p
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return fmt.Errorf("page %q: %w", id, ErrUnknownSelection)
	}
	return s.SelectPage(ctx, *found)
}

func formsErrorMessage(err error) string {
	msg := remote.UserMessage(err)
	if remote.IsStatus(err, http.StatusUnauthorized) || remote.IsStatus(err, http.StatusForbidden) {
		msg += msgTokenHint
	}
	return msg
}

// SelectForm makes form the selected form, clears the lead state, and
// fetches leads for the active filter.
func (s *Session) SelectForm(ctx context.Context, form leads.Form) error {
	s.mu.Lock()
	if s.state.Form != nil && s.state.Form.ID == form.ID {
		s.mu.Unlock()
		return nil
	}
	s.dispatch(formSelected{form: form})
	s.mu.Unlock()

	s.logger.Debug("form selected", "form", form.ID)
	return s.FetchLeads(ctx)
}

// SelectFormByID selects a form from the loaded form list.
func (s *Session) SelectFormByID(ctx context.Context, id string) error {
	s.mu.Lock()
	var found *leads.Form
	for _, f := range s.state.Forms {
		if f.ID == id {
			found = &f
			break
		}
	}
	s.mu.Unlock()
	if found == nil {
		return fmt.Errorf("form %q: %w", id, ErrUnknownSelection)
	}
	return s.SelectForm(ctx, *found)
}

// SetTimeFilter changes the filter. Any filter other than custom reloads
// leads once when a form is selected and the filter actually changed; a
// custom filter only records rng and waits for ConfirmCustomRange.
func (s *Session) SetTimeFilter(ctx context.Context, f leads.TimeFilter, rng leads.DateRange) error {
	if _, err := leads.ParseTimeFilter(string(f)); err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.state.Filter
	s.dispatch(filterChanged{filter: f, rng: rng})
	hasForm := s.state.Form != nil
	s.mu.Unlock()

	if f == leads.FilterCustom || f == prev || !hasForm {
		return nil
	}
	return s.FetchLeads(ctx)
}

// ConfirmCustomRange reloads leads for the custom range once both dates
// are set and in order. An invalid range sets the error message and
// leaves the leads alone.
func (s *Session) ConfirmCustomRange(ctx context.Context) error {
	s.mu.Lock()
	st := s.state
	if st.Filter != leads.FilterCustom {
		s.mu.Unlock()
		return ErrNotCustom
	}
	if err := st.Range.Validate(); err != nil {
		s.dispatch(failed{message: err.Error()})
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}
	s.mu.Unlock()

	if st.Form == nil {
		return ErrNoForm
	}
	return s.FetchLeads(ctx)
}

// FetchLeads replaces the lead set with a fresh fetch for the selected
// form and filter. On failure the previous leads stay in place.
func (s *Session) FetchLeads(ctx context.Context) error {
	s.mu.Lock()
	st := s.state
	if st.Form == nil {
		s.mu.Unlock()
		return ErrNoForm
	}
	if st.Page == nil {
		s.mu.Unlock()
		return ErrNoPage
	}
	q := leads.Query{
		FormID:      st.Form.ID,
		AccessToken: st.Page.AccessToken,
		Filter:      st.Filter,
		MaxLeads:    s.maxLeads,
	}
	if st.Filter == leads.FilterCustom {
		q.Range = st.Range
	}
	s.dispatch(leadsRequested{})
	gen := s.state.gens.leads
	s.mu.Unlock()

	s.logger.Debug("fetching leads", "form", q.FormID, "filter", q.Filter)

	end := s.begin(true)
	got, err := s.backend.FetchLeads(ctx, q)
	end()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.gens.leads != gen {
		return ErrSuperseded
	}
	if err != nil {
		s.dispatch(failed{status: StatusLoadError, message: "Error fetching leads: " + remote.UserMessage(err)})
		s.logger.Warn("fetch leads failed", "form", q.FormID, "error", err)
		return err
	}
	s.dispatch(leadsLoaded{leads: got})
	s.logger.Debug("leads loaded", "form", q.FormID, "count", len(got))
	return nil
}

// SetPage moves to page n, clamped to the valid range, and returns the
// page now shown.
func (s *Session) SetPage(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch(pageChanged{page: n})
	return s.state.CurrentPage
}

// NextPage moves one page forward, stopping at the last page.
func (s *Session) NextPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch(pageChanged{page: s.state.CurrentPage + 1})
	return s.state.CurrentPage
}

// PrevPage moves one page back, stopping at the first page.
func (s *Session) PrevPage() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatch(pageChanged{page: s.state.CurrentPage - 1})
	return s.state.CurrentPage
}

// Page returns the leads on the current page.
func (s *Session) Page() []leads.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Window()
}
