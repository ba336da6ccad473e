package service

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/leadvault/internal/export"
	"github.com/wesm/leadvault/internal/graph"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/testutil"
)

type fakeGraph struct {
	mu       sync.Mutex
	pages    map[string][]leads.Page // by user token
	forms    map[string][]leads.Form // by page ID
	leads    []leads.Lead
	pagesErr error
	gotLeads []graph.LeadOptions
	gotToken []string
}

func (g *fakeGraph) Pages(_ context.Context, token string) ([]leads.Page, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gotToken = append(g.gotToken, token)
	if g.pagesErr != nil {
		return nil, g.pagesErr
	}
	return g.pages[token], nil
}

func (g *fakeGraph) LeadForms(_ context.Context, pageID, token string) ([]leads.Form, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gotToken = append(g.gotToken, token)
	return g.forms[pageID], nil
}

func (g *fakeGraph) Leads(_ context.Context, _, token string, opts graph.LeadOptions) ([]leads.Lead, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gotToken = append(g.gotToken, token)
	g.gotLeads = append(g.gotLeads, opts)
	return g.leads, nil
}

// now is 2024-03-02 10:00 IST.
var now = time.Date(2024, 3, 2, 10, 0, 0, 0, testutil.IST)

func newTestService(t *testing.T, g *fakeGraph, opts ...Option) *Service {
	t.Helper()
	st := testutil.NewTestStore(t)
	testutil.SeedAccounts(t, st, "a1", "a2")
	base := []Option{
		WithLogger(testutil.DiscardLogger()),
		WithLocation(testutil.IST),
		WithClock(testutil.FixedClock(now)),
	}
	return New(st, g, append(base, opts...)...)
}

func TestListAccounts_SetCurrent(t *testing.T) {
	svc := newTestService(t, &fakeGraph{})
	ctx := context.Background()

	got, err := svc.ListAccounts(ctx, "a2")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	want := []leads.Account{
		{ID: "a1", Name: "Account a1"},
		{ID: "a2", Name: "Account a2", IsCurrent: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("accounts mismatch (-want +got):\n%s", diff)
	}

	if _, err := svc.ListAccounts(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListPages_UsesAccountTokenAndRecordsCount(t *testing.T) {
	g := &fakeGraph{pages: map[string][]leads.Page{
		"tok-a1": {{ID: "p1", Name: "One", AccessToken: "pt1"}, {ID: "p2", Name: "Two", AccessToken: "pt2"}},
	}}
	svc := newTestService(t, g)
	ctx := context.Background()

	pages, err := svc.ListPages(ctx, "")
	if err != nil {
		t.Fatalf("ListPages: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("len = %d, want 2", len(pages))
	}
	accts, _ := svc.ListAccounts(ctx, "")
	if accts[0].PagesCount != 2 {
		t.Errorf("PagesCount = %d, want 2", accts[0].PagesCount)
	}

	pages, err = svc.ListPages(ctx, "a2")
	if err != nil {
		t.Fatalf("ListPages(a2): %v", err)
	}
	if pages == nil || len(pages) != 0 {
		t.Errorf("pages = %#v, want empty non-nil", pages)
	}
	testutil.AssertStrings(t, g.gotToken, "tok-a1", "tok-a2")

	if _, err := svc.ListPages(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListForms_RequiresToken(t *testing.T) {
	svc := newTestService(t, &fakeGraph{})
	if _, err := svc.ListForms(context.Background(), "p1", ""); !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestFetchLeads_Windows(t *testing.T) {
	todayStart := time.Date(2024, 3, 2, 0, 0, 0, 0, testutil.IST)
	g := &fakeGraph{leads: []leads.Lead{
		testutil.NewLead("old").CreatedAt(todayStart.Add(-2 * time.Hour)).Build(),
		testutil.NewLead("new").CreatedAt(todayStart.Add(3 * time.Hour)).Build(),
		testutil.NewLead("mid").CreatedAt(todayStart.Add(time.Hour)).Build(),
	}}
	svc := newTestService(t, g, WithMaxLeads(50))
	ctx := context.Background()

	got, err := svc.FetchLeads(ctx, leads.Query{FormID: "f1", AccessToken: "pt", Filter: leads.FilterToday})
	if err != nil {
		t.Fatalf("FetchLeads: %v", err)
	}
	testutil.AssertStrings(t, testutil.LeadIDs(got), "new", "mid")
	opts := g.gotLeads[0]
	if !opts.Since.Equal(todayStart) || !opts.Until.IsZero() || opts.Max != 50 {
		t.Errorf("options = %+v", opts)
	}

	got, err = svc.FetchLeads(ctx, leads.Query{FormID: "f1", AccessToken: "pt", Filter: leads.FilterYesterday, MaxLeads: 5})
	if err != nil {
		t.Fatalf("FetchLeads(yesterday): %v", err)
	}
	testutil.AssertStrings(t, testutil.LeadIDs(got), "old")
	if g.gotLeads[1].Max != 5 {
		t.Errorf("Max = %d, want 5", g.gotLeads[1].Max)
	}

	got, err = svc.FetchLeads(ctx, leads.Query{FormID: "f1", AccessToken: "pt", Filter: leads.FilterAll})
	if err != nil {
		t.Fatalf("FetchLeads(all): %v", err)
	}
	testutil.AssertStrings(t, testutil.LeadIDs(got), "new", "mid", "old")
}

func TestFetchLeads_InvalidCustomRange(t *testing.T) {
	svc := newTestService(t, &fakeGraph{})
	_, err := svc.FetchLeads(context.Background(), leads.Query{
		FormID: "f1", AccessToken: "pt", Filter: leads.FilterCustom,
		Range: leads.DateRange{Start: "2024-03-05", End: "2024-03-01"},
	})
	if !errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestExportLeads_UsesGivenLeads(t *testing.T) {
	g := &fakeGraph{}
	svc := newTestService(t, g)
	given := []leads.Lead{testutil.NewLead("l1").Field("city", "Pune").Build()}

	p, err := svc.ExportLeads(context.Background(), leads.ExportRequest{
		Query:  leads.Query{FormID: "f1", AccessToken: "pt", Filter: leads.FilterAll},
		Leads:  given,
		Format: leads.FormatCSV,
	})
	if err != nil {
		t.Fatalf("ExportLeads: %v", err)
	}
	if p.ContentType != leads.FormatCSV.ContentType() {
		t.Errorf("ContentType = %q", p.ContentType)
	}
	if !strings.Contains(string(p.Data), "Pune") {
		t.Errorf("csv missing lead data: %q", p.Data)
	}
	if len(g.gotLeads) != 0 {
		t.Error("given leads should not trigger a fetch")
	}
}

func TestExportLeads_FetchesWhenNil(t *testing.T) {
	g := &fakeGraph{leads: []leads.Lead{testutil.NewLead("l1").CreatedAt(now).Build()}}
	svc := newTestService(t, g)
	p, err := svc.ExportLeads(context.Background(), leads.ExportRequest{
		Query: leads.Query{FormID: "f1", AccessToken: "pt", Filter: leads.FilterAll},
	})
	if err != nil {
		t.Fatalf("ExportLeads: %v", err)
	}
	if p.ContentType != leads.ContentTypeXLSX {
		t.Errorf("ContentType = %q, want xlsx", p.ContentType)
	}
	if len(g.gotLeads) != 1 {
		t.Errorf("fetches = %d, want 1", len(g.gotLeads))
	}
}

func TestExportYesterday(t *testing.T) {
	yesterday := time.Date(2024, 3, 1, 15, 0, 0, 0, testutil.IST)
	g := &fakeGraph{
		pages: map[string][]leads.Page{"tok-a1": {{ID: "p1", Name: "One", AccessToken: "pt1"}}},
		forms: map[string][]leads.Form{"p1": {{ID: "f1", Name: "Signup Form"}}},
		leads: []leads.Lead{
			testutil.NewLead("y1").CreatedAt(yesterday).Build(),
			testutil.NewLead("t1").CreatedAt(now).Build(),
		},
	}
	dir := t.TempDir()
	st := testutil.NewTestStore(t)
	testutil.SeedAccounts(t, st, "a1")
	svc := New(st, g,
		WithLogger(testutil.DiscardLogger()),
		WithLocation(testutil.IST),
		WithClock(testutil.FixedClock(now)),
		WithSaver(export.DiskSaver{Dir: dir}),
	)
	ctx := context.Background()

	res, err := svc.ExportYesterday(ctx, ExportJob{Name: "daily", PageID: "p1", FormID: "f1", Format: leads.FormatCSV})
	if err != nil {
		t.Fatalf("ExportYesterday: %v", err)
	}
	if res.Count != 1 {
		t.Errorf("Count = %d, want 1", res.Count)
	}
	testutil.AssertStrings(t, testutil.ListDir(t, dir), "leads_Signup Form_03-01-2024.csv")
	if _, err := os.Stat(res.Path); err != nil {
		t.Errorf("exported file: %v", err)
	}
	// The page token, not the account token, reads forms and leads.
	testutil.AssertStrings(t, g.gotToken, "tok-a1", "pt1", "pt1")

	_, err = svc.ExportYesterday(ctx, ExportJob{Name: "daily", PageID: "gone", FormID: "f1"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	runs, err := st.RecentExportRuns(ctx, "daily", 10)
	if err != nil {
		t.Fatalf("RecentExportRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	var ok, failed int
	for _, r := range runs {
		if r.Day != "03/01/2024" {
			t.Errorf("Day = %q", r.Day)
		}
		if r.Error == "" && r.LeadCount == 1 {
			ok++
		} else if r.Error != "" {
			failed++
		}
	}
	if ok != 1 || failed != 1 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestExportYesterday_NoLeads(t *testing.T) {
	g := &fakeGraph{
		pages: map[string][]leads.Page{"tok-a1": {{ID: "p1", AccessToken: "pt1"}}},
	}
	dir := t.TempDir()
	svc := newTestService(t, g, WithSaver(export.DiskSaver{Dir: dir}))

	res, err := svc.ExportYesterday(context.Background(), ExportJob{Name: "daily", PageID: "p1", FormID: "f1"})
	if err != nil {
		t.Fatalf("ExportYesterday: %v", err)
	}
	if res.Path != "" || res.Note != "No leads found for yesterday (03/01/2024)" {
		t.Errorf("result = %+v", res)
	}
	if files := testutil.ListDir(t, dir); len(files) != 0 {
		t.Errorf("files = %v, want none", files)
	}
}
