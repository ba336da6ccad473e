package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/remote"
	"github.com/wesm/leadvault/internal/testutil"
)

func TestHandleListAccounts(t *testing.T) {
	svc := &fakeService{accounts: []leads.Account{{ID: "a1", Name: "Main", PagesCount: 2, IsCurrent: true}}}
	srv := newTestServer(t, nil, svc, nil)

	w := do(t, srv, "GET", "/api/accounts?setCurrentId=a1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.gotSetID != "a1" {
		t.Errorf("setCurrentId = %q", svc.gotSetID)
	}
	var resp struct {
		Success  bool            `json:"success"`
		Accounts []leads.Account `json:"accounts"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Accounts) != 1 || !resp.Accounts[0].IsCurrent || resp.Accounts[0].PagesCount != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestHandleListAccounts_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t, nil, &fakeService{}, nil)
	w := do(t, srv, "GET", "/api/accounts", "")
	if got := w.Body.String(); got != "{\"accounts\":[],\"success\":true}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestHandleListForms(t *testing.T) {
	svc := &fakeService{forms: []leads.Form{{ID: "f1", Name: "Signup", Status: "ACTIVE"}}}
	srv := newTestServer(t, nil, svc, nil)

	w := do(t, srv, "POST", "/api/lead-forms", `{"pageId":"p1","accessToken":"pt1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.gotForms != (formsRequest{PageID: "p1", AccessToken: "pt1"}) {
		t.Errorf("got %+v", svc.gotForms)
	}

	w = do(t, srv, "POST", "/api/lead-forms", `{not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d", w.Code)
	}
}

func TestHandleDownloadLeads_FetchMode(t *testing.T) {
	svc := &fakeService{leads: []leads.Lead{testutil.NewLead("l1").Build()}}
	srv := newTestServer(t, nil, svc, nil)

	body := `{"formId":"f1","timeFilter":"custom","maxLeads":"300","startDate":"2024-03-01","endDate":"2024-03-02","accessToken":"pt1"}`
	w := do(t, srv, "POST", "/api/download-leads", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var got []leads.Lead
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "l1" {
		t.Errorf("leads = %+v", got)
	}
	want := leads.Query{
		FormID:      "f1",
		AccessToken: "pt1",
		Filter:      leads.FilterCustom,
		Range:       leads.DateRange{Start: "2024-03-01", End: "2024-03-02"},
		MaxLeads:    300,
	}
	if diff := cmp.Diff(want, svc.gotQuery); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	if svc.gotExport != nil {
		t.Error("fetch mode should not export")
	}
}

func TestHandleDownloadLeads_RangeIgnoredUnlessCustom(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, nil, svc, nil)
	do(t, srv, "POST", "/api/download-leads", `{"formId":"f1","timeFilter":"today","maxLeads":50,"startDate":"2024-03-01","accessToken":"pt1"}`)
	if svc.gotQuery.Range != (leads.DateRange{}) || svc.gotQuery.MaxLeads != 50 {
		t.Errorf("query = %+v", svc.gotQuery)
	}
}

func TestHandleDownloadLeads_ExportMode(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, nil, svc, nil)

	body := `{"formId":"f1","timeFilter":"yesterday","accessToken":"pt1","format":"csv","preFilteredLeads":[{"id":"l9","created_time":"2024-03-01T10:00:00+0000","field_data":[]}]}`
	w := do(t, srv, "POST", "/api/download-leads", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != leads.FormatCSV.ContentType() {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("Content-Disposition"); got != `attachment; filename=leads_f1_yesterday_2024-03-02.csv` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if w.Body.String() != "sheet-bytes" {
		t.Errorf("body = %q", w.Body.String())
	}
	if svc.gotExport == nil || len(svc.gotExport.Leads) != 1 || svc.gotExport.Leads[0].ID != "l9" {
		t.Errorf("export request = %+v", svc.gotExport)
	}
}

func TestHandleDownloadLeads_BadInput(t *testing.T) {
	srv := newTestServer(t, nil, &fakeService{}, nil)
	for name, body := range map[string]string{
		"filter":   `{"formId":"f1","timeFilter":"lastweek","accessToken":"pt1"}`,
		"format":   `{"formId":"f1","accessToken":"pt1","format":"pdf"}`,
		"maxLeads": `{"formId":"f1","accessToken":"pt1","maxLeads":"many"}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := do(t, srv, "POST", "/api/download-leads", body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
			if resp := decodeError(t, w); resp.Success || resp.Error == "" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}
}

func TestFlexInt(t *testing.T) {
	for in, want := range map[string]int{`"300"`: 300, `25`: 25, `""`: 0, `null`: 0} {
		var f flexInt
		if err := json.Unmarshal([]byte(in), &f); err != nil {
			t.Errorf("Unmarshal(%s): %v", in, err)
			continue
		}
		if int(f) != want {
			t.Errorf("Unmarshal(%s) = %d, want %d", in, f, want)
		}
	}
}

// The remote client and the server agree on the wire format.
func TestRemoteClientRoundTrip(t *testing.T) {
	svc := &fakeService{
		accounts: []leads.Account{{ID: "a1", Name: "Main", IsCurrent: true}},
		pages:    []leads.Page{{ID: "p1", Name: "Page", AccessToken: "pt1"}},
		forms:    []leads.Form{{ID: "f1", Name: "Signup"}},
		leads:    []leads.Lead{testutil.NewLead("l1").Build()},
	}
	srv := newTestServer(t, nil, svc, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	c, err := remote.New(remote.Config{URL: ts.URL + "/api"})
	if err != nil {
		t.Fatalf("remote.New: %v", err)
	}
	ctx := context.Background()

	accts, err := c.ListAccounts(ctx, "")
	if err != nil || len(accts) != 1 {
		t.Fatalf("ListAccounts = %v, %v", accts, err)
	}
	pages, err := c.ListPages(ctx, "a1")
	if err != nil || len(pages) != 1 || pages[0].AccessToken != "pt1" {
		t.Fatalf("ListPages = %v, %v", pages, err)
	}
	forms, err := c.ListForms(ctx, "p1", "pt1")
	if err != nil || len(forms) != 1 {
		t.Fatalf("ListForms = %v, %v", forms, err)
	}
	ls, err := c.FetchLeads(ctx, leads.Query{FormID: "f1", AccessToken: "pt1", Filter: leads.FilterToday, MaxLeads: 300})
	if err != nil || len(ls) != 1 {
		t.Fatalf("FetchLeads = %v, %v", ls, err)
	}
	if svc.gotQuery.MaxLeads != 300 || svc.gotQuery.Filter != leads.FilterToday {
		t.Errorf("server saw query %+v", svc.gotQuery)
	}
	p, err := c.ExportLeads(ctx, leads.ExportRequest{Query: leads.Query{FormID: "f1", AccessToken: "pt1", Filter: leads.FilterToday}, Leads: ls, Format: leads.FormatExcel})
	if err != nil {
		t.Fatalf("ExportLeads: %v", err)
	}
	if p.ContentType != leads.ContentTypeXLSX || string(p.Data) != "sheet-bytes" {
		t.Errorf("payload = %q %q", p.ContentType, p.Data)
	}

	svc.err = errors.New("token expired")
	_, err = c.FetchLeads(ctx, leads.Query{FormID: "f1", AccessToken: "pt1", Filter: leads.FilterAll})
	if got := remote.UserMessage(err); got != "token expired" {
		t.Errorf("UserMessage = %q, want token expired", got)
	}
}
