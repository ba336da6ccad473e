package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/remote"
	"github.com/wesm/leadvault/internal/testutil"
)

func TestDownloadLeads(t *testing.T) {
	b := seededBackend()
	s, saver := newTestSession(b)
	selectAll(t, s)

	dl, err := s.DownloadLeads(context.Background(), "")
	testutil.MustNoErr(t, err, "DownloadLeads")

	want := "leads_Promo_today_2024-03-10.xlsx"
	if dl.Path != "/downloads/"+want || dl.Count != 25 {
		t.Errorf("download = %+v", dl)
	}
	if _, ok := saver.files[want]; !ok {
		t.Errorf("saved files = %v", saver.files)
	}
	if len(b.exports) != 1 {
		t.Fatalf("exports = %d", len(b.exports))
	}
	req := b.exports[0]
	if len(req.Leads) != 25 || req.Filter != leads.FilterToday || req.AccessToken != "tok-A1" || req.Format != leads.FormatExcel {
		t.Errorf("export request = filter:%s token:%s format:%s leads:%d", req.Filter, req.AccessToken, req.Format, len(req.Leads))
	}
	if b.fetchCount() != 1 {
		t.Errorf("download refetched: %d fetches", b.fetchCount())
	}
	if st := s.Snapshot(); st.Status != StatusDownloadComplete || st.Error != "" {
		t.Errorf("Status = %q, Error = %q", st.Status, st.Error)
	}
}

func TestDownloadLeads_CSVAndCustomRange(t *testing.T) {
	ctx := context.Background()
	b := seededBackend()
	s, saver := newTestSession(b, WithFormat(leads.FormatCSV))
	selectAll(t, s)

	rng := leads.DateRange{Start: "2024-03-01", End: "2024-03-10"}
	testutil.MustNoErr(t, s.SetTimeFilter(ctx, leads.FilterCustom, rng), "custom")
	testutil.MustNoErr(t, s.ConfirmCustomRange(ctx), "confirm")

	_, err := s.DownloadLeads(ctx, "")
	testutil.MustNoErr(t, err, "DownloadLeads")
	if _, ok := saver.files["leads_Promo_custom_2024-03-10.csv"]; !ok {
		t.Errorf("saved files = %v", saver.files)
	}
	if req := b.exports[0]; req.Range != rng || req.Format != leads.FormatCSV {
		t.Errorf("export request range = %+v format = %s", req.Range, req.Format)
	}
}

func TestDownloadLeads_TokenExpired(t *testing.T) {
	b := seededBackend()
	s, saver := newTestSession(b)
	selectAll(t, s)
	s.SetPage(2)
	before := s.Snapshot()

	b.exportErr = &remote.UpstreamError{Op: "download leads", Status: http.StatusInternalServerError, Message: "token expired"}
	if _, err := s.DownloadLeads(context.Background(), leads.FormatExcel); err == nil {
		t.Fatal("expected error")
	}

	st := s.Snapshot()
	if st.Error != "token expired" {
		t.Errorf("Error = %q, want %q", st.Error, "token expired")
	}
	if st.Status != StatusDownloadFailed {
		t.Errorf("Status = %q", st.Status)
	}
	if len(st.Leads) != len(before.Leads) || st.CurrentPage != before.CurrentPage {
		t.Errorf("lead state changed on failed download")
	}
	if len(saver.files) != 0 {
		t.Errorf("files saved on failure: %v", saver.files)
	}
}

func TestDownloadLeads_NothingHeld(t *testing.T) {
	s, _ := newTestSession(seededBackend())
	if _, err := s.DownloadLeads(context.Background(), ""); !errors.Is(err, ErrNoLeads) {
		t.Errorf("err = %v, want ErrNoLeads", err)
	}
}

func TestDownloadLeads_SaveFailure(t *testing.T) {
	s, saver := newTestSession(seededBackend())
	selectAll(t, s)
	saver.err = errors.New("disk full")

	if _, err := s.DownloadLeads(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
	if st := s.Snapshot(); st.Status != StatusDownloadFailed || st.Error == "" {
		t.Errorf("Status = %q, Error = %q", st.Status, st.Error)
	}
}

// yesterdayLeads spans 2024-03-08..2024-03-10 IST with two leads on the 9th.
func yesterdayLeads() []leads.Lead {
	return []leads.Lead{
		testutil.NewLead("today").CreatedRaw("2024-03-10T08:00:00+0530").Build(),
		testutil.NewLead("y-late").CreatedRaw("2024-03-09T18:00:00+0000").Build(),
		testutil.NewLead("y-early").CreatedRaw("2024-03-09T00:30:00+0530").Build(),
		testutil.NewLead("older").CreatedRaw("2024-03-08T23:00:00+0530").Build(),
	}
}

func TestDownloadYesterday(t *testing.T) {
	ctx := context.Background()
	b := seededBackend()
	b.leadsByForm["f1"] = yesterdayLeads()
	s, saver := newTestSession(b)
	selectAll(t, s)
	testutil.MustNoErr(t, s.SetTimeFilter(ctx, leads.FilterAll, leads.DateRange{}), "all")
	fetches := b.fetchCount()

	dl, err := s.DownloadYesterdayLeads(ctx, "")
	testutil.MustNoErr(t, err, "DownloadYesterdayLeads")

	if dl.Path != "/downloads/leads_Promo_03-09-2024.xlsx" || dl.Count != 2 {
		t.Errorf("download = %+v", dl)
	}
	if _, ok := saver.files["leads_Promo_03-09-2024.xlsx"]; !ok {
		t.Errorf("saved = %v", saver.files)
	}
	req := b.exports[0]
	testutil.AssertStrings(t, testutil.LeadIDs(req.Leads), "y-late", "y-early")
	if req.Filter != leads.FilterYesterday {
		t.Errorf("export filter = %s", req.Filter)
	}

	st := s.Snapshot()
	if st.Filter != leads.FilterAll {
		t.Errorf("Filter = %s, want all restored", st.Filter)
	}
	if st.Status != "2 leads from yesterday (03/09/2024) downloaded successfully!" {
		t.Errorf("Status = %q", st.Status)
	}
	if len(st.Leads) != 4 {
		t.Errorf("held leads changed: %d", len(st.Leads))
	}
	if b.fetchCount() != fetches {
		t.Errorf("download refetched with leads held")
	}
}

func TestDownloadYesterday_NoneFromYesterday(t *testing.T) {
	b := seededBackend()
	b.leadsByForm["f1"] = []leads.Lead{
		testutil.NewLead("today").CreatedRaw("2024-03-10T08:00:00+0530").Build(),
	}
	s, saver := newTestSession(b)
	selectAll(t, s)

	_, err := s.DownloadYesterdayLeads(context.Background(), "")
	if !errors.Is(err, ErrNoYesterdayLeads) {
		t.Fatalf("err = %v, want ErrNoYesterdayLeads", err)
	}
	st := s.Snapshot()
	if st.Error != "No leads found for yesterday (03/09/2024)" || st.Status != StatusNothingToExport {
		t.Errorf("Error = %q, Status = %q", st.Error, st.Status)
	}
	if st.Filter != leads.FilterToday {
		t.Errorf("Filter = %s, want today restored", st.Filter)
	}
	if len(b.exports) != 0 || len(saver.files) != 0 {
		t.Error("nothing should be exported")
	}
}

func TestDownloadYesterday_BootstrapsAndRestores(t *testing.T) {
	ctx := context.Background()
	b := seededBackend()
	b.leadsFor = func(q leads.Query) ([]leads.Lead, error) {
		if q.Filter == leads.FilterToday {
			return []leads.Lead{}, nil
		}
		return yesterdayLeads(), nil
	}
	s, _ := newTestSession(b)
	selectAll(t, s)
	if n := len(s.Snapshot().Leads); n != 0 {
		t.Fatalf("setup: %d leads under today", n)
	}

	_, err := s.DownloadYesterdayLeads(ctx, leads.FormatCSV)
	testutil.MustNoErr(t, err, "DownloadYesterdayLeads")

	var filters []leads.TimeFilter
	for _, q := range b.fetches {
		filters = append(filters, q.Filter)
	}
	want := []leads.TimeFilter{leads.FilterToday, leads.FilterAll, leads.FilterToday}
	if len(filters) != len(want) {
		t.Fatalf("fetch filters = %v, want %v", filters, want)
	}
	for i := range want {
		if filters[i] != want[i] {
			t.Errorf("fetch %d filter = %s, want %s", i, filters[i], want[i])
		}
	}

	st := s.Snapshot()
	if st.Filter != leads.FilterToday {
		t.Errorf("Filter = %s, want today", st.Filter)
	}
	if len(st.Leads) != 0 {
		t.Errorf("leads = %d, want the today set (empty) after restore", len(st.Leads))
	}
	if st.Status != "2 leads from yesterday (03/09/2024) downloaded successfully!" {
		t.Errorf("Status = %q", st.Status)
	}
	if got := b.exports[0].Format; got != leads.FormatCSV {
		t.Errorf("format = %s", got)
	}
}

func TestDownloadYesterday_NothingAtAll(t *testing.T) {
	b := seededBackend()
	b.leadsByForm["f1"] = []leads.Lead{}
	s, _ := newTestSession(b)
	selectAll(t, s)

	_, err := s.DownloadYesterdayLeads(context.Background(), "")
	if !errors.Is(err, ErrNoLeads) {
		t.Fatalf("err = %v, want ErrNoLeads", err)
	}
	st := s.Snapshot()
	if st.Error != "No leads available. Please try loading leads first." {
		t.Errorf("Error = %q", st.Error)
	}
	if st.Filter != leads.FilterToday {
		t.Errorf("Filter = %s, want today restored", st.Filter)
	}
}

func TestDownloadYesterday_NoForm(t *testing.T) {
	s, _ := newTestSession(seededBackend())
	if _, err := s.DownloadYesterdayLeads(context.Background(), ""); !errors.Is(err, ErrNoForm) {
		t.Errorf("err = %v, want ErrNoForm", err)
	}
}

func TestDownloadYesterday_UsesClockAndZone(t *testing.T) {
	b := seededBackend()
	// 2024-03-09 20:00 UTC is 2024-03-10 01:30 IST, so yesterday is the 9th in IST.
	now := time.Date(2024, 3, 9, 20, 0, 0, 0, time.UTC)
	b.leadsByForm["f1"] = yesterdayLeads()
	s, _ := newTestSession(b, WithClock(testutil.FixedClock(now)))
	selectAll(t, s)

	dl, err := s.DownloadYesterdayLeads(context.Background(), "")
	testutil.MustNoErr(t, err, "DownloadYesterdayLeads")
	if dl.Path != "/downloads/leads_Promo_03-09-2024.xlsx" || dl.Count != 2 {
		t.Errorf("download = %+v", dl)
	}
}
