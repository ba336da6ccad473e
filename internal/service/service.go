// Package service answers the lead collaborator calls (accounts, pages,
// forms, lead download and export) from the local account store and the
// Graph API. The HTTP server, the --local command mode, and scheduled
// exports all go through it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/wesm/leadvault/internal/export"
	"github.com/wesm/leadvault/internal/graph"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/store"
)

var (
	// ErrNotFound means a referenced account, page, or form does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalid means the request itself is malformed.
	ErrInvalid = errors.New("invalid request")
)

// AccountStore is the subset of the store the service needs.
type AccountStore interface {
	ListAccounts(ctx context.Context) ([]store.Account, error)
	GetAccount(ctx context.Context, id string) (*store.Account, error)
	CurrentAccount(ctx context.Context) (*store.Account, error)
	SetCurrentAccount(ctx context.Context, id string) error
	UpdatePagesCount(ctx context.Context, id string, n int) error
	RecordExportRun(ctx context.Context, r store.ExportRun) (int64, error)
}

// Graph is the subset of the Graph client the service needs.
type Graph interface {
	Pages(ctx context.Context, userToken string) ([]leads.Page, error)
	LeadForms(ctx context.Context, pageID, pageToken string) ([]leads.Form, error)
	Leads(ctx context.Context, formID, token string, opts graph.LeadOptions) ([]leads.Lead, error)
}

// Saver persists rendered exports.
type Saver interface {
	Save(name string, data []byte) (string, error)
}

// Service implements the collaborator calls.
type Service struct {
	store    AccountStore
	graph    Graph
	saver    Saver
	logger   *slog.Logger
	loc      *time.Location
	now      func() time.Time
	maxLeads int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithLocation sets the zone day boundaries are computed in.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

// WithClock sets the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithMaxLeads caps leads per fetch when the request does not say.
func WithMaxLeads(n int) Option { return func(s *Service) { s.maxLeads = n } }

// WithSaver sets where scheduled exports are written.
func WithSaver(sv Saver) Option { return func(s *Service) { s.saver = sv } }

// New creates a Service.
func New(st AccountStore, g Graph, opts ...Option) *Service {
	s := &Service{
		store:    st,
		graph:    g,
		logger:   slog.Default(),
		now:      time.Now,
		maxLeads: leads.DefaultMaxLeads,
		saver:    export.DiskSaver{Dir: "."},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.loc == nil {
		s.loc, _ = leads.LoadLocation(leads.DefaultTimezone)
	}
	return s
}

func storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// ListAccounts returns every stored account. A non-empty setCurrentID is
// made current first.
func (s *Service) ListAccounts(ctx context.Context, setCurrentID string) ([]leads.Account, error) {
	if setCurrentID != "" {
		if err := s.store.SetCurrentAccount(ctx, setCurrentID); err != nil {
			return nil, storeErr(err)
		}
	}
	rows, err := s.store.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]leads.Account, 0, len(rows))
	for _, a := range rows {
		out = append(out, leads.Account{ID: a.ID, Name: a.Name, PagesCount: a.PagesCount, IsCurrent: a.IsCurrent})
	}
	return out, nil
}

// ListPages lists the pages visible to an account's token. An empty
// accountID means the current account.
func (s *Service) ListPages(ctx context.Context, accountID string) ([]leads.Page, error) {
	acct, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	pages, err := s.graph.Pages(ctx, acct.AccessToken)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdatePagesCount(ctx, acct.ID, len(pages)); err != nil {
		s.logger.Warn("failed to record pages count", "account", acct.ID, "error", err)
	}
	if pages == nil {
		pages = []leads.Page{}
	}
	return pages, nil
}

func (s *Service) account(ctx context.Context, id string) (*store.Account, error) {
	var (
		a   *store.Account
		err error
	)
	if id == "" {
		a, err = s.store.CurrentAccount(ctx)
	} else {
		a, err = s.store.GetAccount(ctx, id)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return a, nil
}

// ListForms lists a page's lead forms using the page's token.
func (s *Service) ListForms(ctx context.Context, pageID, accessToken string) ([]leads.Form, error) {
	if pageID == "" || accessToken == "" {
		return nil, fmt.Errorf("%w: pageId and accessToken are required", ErrInvalid)
	}
	forms, err := s.graph.LeadForms(ctx, pageID, accessToken)
	if err != nil {
		return nil, err
	}
	if forms == nil {
		forms = []leads.Form{}
	}
	return forms, nil
}

// FetchLeads returns a form's leads within the query's time window,
// newest first.
func (s *Service) FetchLeads(ctx context.Context, q leads.Query) ([]leads.Lead, error) {
	if q.FormID == "" || q.AccessToken == "" {
		return nil, fmt.Errorf("%w: formId and accessToken are required", ErrInvalid)
	}
	if q.Filter == "" {
		q.Filter = leads.FilterAll
	}
	since, until, err := leads.Window(q.Filter, q.Range, s.now(), s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	limit := q.MaxLeads
	if limit <= 0 {
		limit = s.maxLeads
	}

	s.logger.Debug("fetching leads", "form", q.FormID, "filter", q.Filter, "since", since, "until", until, "max", limit)
	ls, err := s.graph.Leads(ctx, q.FormID, q.AccessToken, graph.LeadOptions{Since: since, Until: until, Max: limit})
	if err != nil {
		return nil, err
	}
	// Graph filtering has second granularity; trim to the exact window.
	ls = leads.SortNewestFirst(leads.InWindow(ls, since, until))
	if ls == nil {
		ls = []leads.Lead{}
	}
	return ls, nil
}

// ExportLeads renders a spreadsheet. The request's leads are used as
// given; when nil they are fetched first.
func (s *Service) ExportLeads(ctx context.Context, req leads.ExportRequest) (*leads.Payload, error) {
	ls := req.Leads
	if ls == nil {
		var err error
		if ls, err = s.FetchLeads(ctx, req.Query); err != nil {
			return nil, err
		}
	}
	format := req.Format
	if format == "" {
		format = leads.FormatExcel
	}
	p, err := export.Render(ls, format, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return p, nil
}

// Location returns the zone day boundaries are computed in.
func (s *Service) Location() *time.Location { return s.loc }

// ExportJob names a form whose previous day of leads should be exported.
type ExportJob struct {
	Name      string
	AccountID string
	PageID    string
	FormID    string
	Format    leads.Format
}

// ExportYesterday exports the job form's leads from the previous day and
// records the run. A day without leads is not an error; no file is written.
func (s *Service) ExportYesterday(ctx context.Context, job ExportJob) (*export.Result, error) {
	started := s.now()
	day := leads.Yesterday(started, s.loc)
	res, err := s.exportYesterday(ctx, job, day)

	run := store.ExportRun{
		JobName:    job.Name,
		FormID:     job.FormID,
		Day:        day.Format(leads.DayLayout),
		StartedAt:  started,
		FinishedAt: s.now(),
	}
	if res != nil {
		run.LeadCount = res.Count
		run.Path = res.Path
	}
	if err != nil {
		run.Error = err.Error()
	}
	if _, rerr := s.store.RecordExportRun(ctx, run); rerr != nil {
		s.logger.Warn("failed to record export run", "job", job.Name, "error", rerr)
	}
	return res, err
}

func (s *Service) exportYesterday(ctx context.Context, job ExportJob, day time.Time) (*export.Result, error) {
	page, err := s.findPage(ctx, job.AccountID, job.PageID)
	if err != nil {
		return nil, err
	}
	formName := job.FormID
	if forms, err := s.graph.LeadForms(ctx, page.ID, page.AccessToken); err == nil {
		for _, f := range forms {
			if f.ID == job.FormID && f.Name != "" {
				formName = f.Name
			}
		}
	}

	ls, err := s.FetchLeads(ctx, leads.Query{FormID: job.FormID, AccessToken: page.AccessToken, Filter: leads.FilterYesterday})
	if err != nil {
		return nil, err
	}
	if len(ls) == 0 {
		return &export.Result{Note: fmt.Sprintf("No leads found for yesterday (%s)", day.Format(leads.DayLayout))}, nil
	}

	format := job.Format
	if format == "" {
		format = leads.FormatExcel
	}
	p, err := export.Render(ls, format, s.loc)
	if err != nil {
		return nil, err
	}
	path, err := s.saver.Save(leads.YesterdayFilename(formName, day, format), p.Data)
	if err != nil {
		return nil, err
	}
	return &export.Result{Count: len(ls), Size: int64(len(p.Data)), Path: path}, nil
}

func (s *Service) findPage(ctx context.Context, accountID, pageID string) (*leads.Page, error) {
	pages, err := s.ListPages(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		if pages[i].ID == pageID {
			return &pages[i], nil
		}
	}
	var ids []string
	for _, p := range pages {
		ids = append(ids, p.ID)
	}
	return nil, fmt.Errorf("%w: page %s (available: %s)", ErrNotFound, pageID, strings.Join(ids, ", "))
}
