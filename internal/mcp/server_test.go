package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/testutil"
)

// toolHandler is the function signature for MCP tool handler methods.
type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

type fakeBackend struct {
	accounts []leads.Account
	pages    map[string][]leads.Page // by account ID
	forms    []leads.Form
	leads    []leads.Lead
	err      error
	gotForms [2]string
	gotQuery leads.Query
}

func (f *fakeBackend) ListAccounts(context.Context, string) ([]leads.Account, error) {
	return f.accounts, f.err
}

func (f *fakeBackend) ListPages(_ context.Context, accountID string) ([]leads.Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[accountID], nil
}

func (f *fakeBackend) ListForms(_ context.Context, pageID, token string) ([]leads.Form, error) {
	f.gotForms = [2]string{pageID, token}
	return f.forms, nil
}

func (f *fakeBackend) FetchLeads(_ context.Context, q leads.Query) ([]leads.Lead, error) {
	f.gotQuery = q
	return f.leads, nil
}

func newFake() *fakeBackend {
	return &fakeBackend{
		accounts: []leads.Account{{ID: "a1", Name: "Main", IsCurrent: true}},
		pages: map[string][]leads.Page{
			"":   {{ID: "p1", Name: "Page One", AccessToken: "pt1"}},
			"a2": {{ID: "p2", Name: "Page Two", AccessToken: "pt2"}},
		},
		forms: []leads.Form{{ID: "f1", Name: "Signup", Status: "ACTIVE"}},
	}
}

// callToolDirect invokes a handler directly with the given arguments and returns the raw result.
func callToolDirect(t *testing.T, name string, fn toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := fn(context.Background(), req)
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", r.Content[0])
	}
	return tc.Text
}

// runTool invokes a handler, asserts no error, and unmarshals the JSON result into T.
func runTool[T any](t *testing.T, name string, fn toolHandler, args map[string]any) T {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(t, r))
	}
	var out T
	if err := json.Unmarshal([]byte(resultText(t, r)), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return out
}

func runToolExpectError(t *testing.T, name string, fn toolHandler, args map[string]any) string {
	t.Helper()
	r := callToolDirect(t, name, fn, args)
	if !r.IsError {
		t.Fatal("expected error result")
	}
	return resultText(t, r)
}

func TestListAccounts(t *testing.T) {
	h := newHandlers(newFake(), Options{})
	got := runTool[[]leads.Account](t, ToolListAccounts, h.listAccounts, nil)
	if len(got) != 1 || !got[0].IsCurrent {
		t.Errorf("accounts = %+v", got)
	}

	h = newHandlers(&fakeBackend{err: errors.New("boom")}, Options{})
	if msg := runToolExpectError(t, ToolListAccounts, h.listAccounts, nil); !strings.Contains(msg, "boom") {
		t.Errorf("msg = %q", msg)
	}
}

func TestListPages_HidesTokens(t *testing.T) {
	h := newHandlers(newFake(), Options{})
	r := callToolDirect(t, ToolListPages, h.listPages, map[string]any{"account_id": "a2"})
	text := resultText(t, r)
	if strings.Contains(text, "pt2") || !strings.Contains(text, "Page Two") {
		t.Errorf("result = %s", text)
	}
}

func TestListForms_UsesPageToken(t *testing.T) {
	fb := newFake()
	h := newHandlers(fb, Options{})
	got := runTool[[]leads.Form](t, ToolListForms, h.listForms, map[string]any{"page_id": "p1"})
	if len(got) != 1 || got[0].ID != "f1" {
		t.Errorf("forms = %+v", got)
	}
	if fb.gotForms != [2]string{"p1", "pt1"} {
		t.Errorf("ListForms called with %v", fb.gotForms)
	}

	runToolExpectError(t, ToolListForms, h.listForms, map[string]any{})
	if msg := runToolExpectError(t, ToolListForms, h.listForms, map[string]any{"page_id": "nope"}); !strings.Contains(msg, "not found") {
		t.Errorf("msg = %q", msg)
	}
}

func TestListLeads_Pages(t *testing.T) {
	fb := newFake()
	newest := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fb.leads = testutil.LeadsEvery(25, newest, time.Minute)
	h := newHandlers(fb, Options{Location: testutil.IST, MaxLeads: 100})

	got := runTool[leadsPage](t, ToolListLeads, h.listLeads, map[string]any{
		"page_id": "p1", "form_id": "f1", "time_filter": "all", "page": float64(3),
	})
	if got.Total != 25 || got.Page != 3 || got.TotalPages != 3 || got.Showing != "Showing 21 to 25 of 25" {
		t.Errorf("page = %+v", got)
	}
	if len(got.Leads) != 5 || got.Leads[0].ID != "lead-21" {
		t.Fatalf("leads = %+v", got.Leads)
	}
	if got.Leads[0].Fields["email"] != "lead-21@example.com" {
		t.Errorf("fields = %v", got.Leads[0].Fields)
	}
	want := fb.leads[20]
	if got.Leads[0].Created != leads.FormatCreated(want, testutil.IST) {
		t.Errorf("created = %q", got.Leads[0].Created)
	}
	if fb.gotQuery.AccessToken != "pt1" || fb.gotQuery.MaxLeads != 100 || fb.gotQuery.Filter != leads.FilterAll {
		t.Errorf("query = %+v", fb.gotQuery)
	}

	// Out-of-range pages clamp.
	got = runTool[leadsPage](t, ToolListLeads, h.listLeads, map[string]any{
		"page_id": "p1", "form_id": "f1", "time_filter": "all", "page": float64(9),
	})
	if got.Page != 3 {
		t.Errorf("clamped page = %d, want 3", got.Page)
	}
}

func TestListLeads_Empty(t *testing.T) {
	h := newHandlers(newFake(), Options{})
	got := runTool[leadsPage](t, ToolListLeads, h.listLeads, map[string]any{"page_id": "p1", "form_id": "f1"})
	if got.Total != 0 || got.Page != 1 || got.TotalPages != 1 || len(got.Leads) != 0 || got.Showing != "" {
		t.Errorf("page = %+v", got)
	}
}

func TestListLeads_Validation(t *testing.T) {
	h := newHandlers(newFake(), Options{})
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing form", map[string]any{"page_id": "p1"}},
		{"bad filter", map[string]any{"page_id": "p1", "form_id": "f1", "time_filter": "lastweek"}},
		{"custom missing end", map[string]any{"page_id": "p1", "form_id": "f1", "time_filter": "custom", "start_date": "2024-03-01"}},
		{"missing page", map[string]any{"form_id": "f1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runToolExpectError(t, ToolListLeads, h.listLeads, tt.args)
		})
	}
}

func TestListLeads_CustomRange(t *testing.T) {
	fb := newFake()
	h := newHandlers(fb, Options{})
	runTool[leadsPage](t, ToolListLeads, h.listLeads, map[string]any{
		"page_id": "p1", "form_id": "f1", "time_filter": "custom",
		"start_date": "2024-03-01", "end_date": "2024-03-05",
	})
	if fb.gotQuery.Range != (leads.DateRange{Start: "2024-03-01", End: "2024-03-05"}) {
		t.Errorf("range = %+v", fb.gotQuery.Range)
	}
}

func TestPageArg(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{nil, 1},
		{float64(0), 1},
		{float64(-3), 1},
		{float64(2), 2},
		{"2", 1},
	}
	for _, tt := range tests {
		if got := pageArg(map[string]any{"page": tt.in}, "page"); got != tt.want {
			t.Errorf("pageArg(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
