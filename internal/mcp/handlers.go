package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/wesm/leadvault/internal/leads"
)

type handlers struct {
	backend  Backend
	loc      *time.Location
	maxLeads int
	pageSize int
}

func newHandlers(b Backend, opts Options) *handlers {
	h := &handlers{backend: b, loc: opts.Location, maxLeads: opts.MaxLeads, pageSize: opts.PageSize}
	if h.loc == nil {
		h.loc, _ = leads.LoadLocation(leads.DefaultTimezone)
	}
	if h.maxLeads <= 0 {
		h.maxLeads = leads.DefaultMaxLeads
	}
	if h.pageSize <= 0 {
		h.pageSize = leads.DefaultPageSize
	}
	return h
}

type pageSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type leadRow struct {
	ID      string            `json:"id"`
	Created string            `json:"created"`
	Fields  map[string]string `json:"fields"`
}

type leadsPage struct {
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	TotalPages int       `json:"total_pages"`
	Showing    string    `json:"showing"`
	Leads      []leadRow `json:"leads"`
}

func (h *handlers) listAccounts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	accounts, err := h.backend.ListAccounts(ctx, "")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list accounts failed: %v", err)), nil
	}
	if accounts == nil {
		accounts = []leads.Account{}
	}
	return jsonResult(accounts)
}

func (h *handlers) listPages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	accountID, _ := args["account_id"].(string)

	pages, err := h.backend.ListPages(ctx, accountID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list pages failed: %v", err)), nil
	}
	out := make([]pageSummary, 0, len(pages))
	for _, p := range pages {
		out = append(out, pageSummary{ID: p.ID, Name: p.Name})
	}
	return jsonResult(out)
}

// findPage resolves a page ID to the page so calls use its own token.
func (h *handlers) findPage(ctx context.Context, args map[string]any) (*leads.Page, error) {
	pageID, _ := args["page_id"].(string)
	if pageID == "" {
		return nil, fmt.Errorf("page_id parameter is required")
	}
	accountID, _ := args["account_id"].(string)
	pages, err := h.backend.ListPages(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list pages failed: %v", err)
	}
	for i := range pages {
		if pages[i].ID == pageID {
			return &pages[i], nil
		}
	}
	return nil, fmt.Errorf("page %s not found", pageID)
}

func (h *handlers) listForms(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := h.findPage(ctx, req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	forms, err := h.backend.ListForms(ctx, page.ID, page.AccessToken)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list forms failed: %v", err)), nil
	}
	if forms == nil {
		forms = []leads.Form{}
	}
	return jsonResult(forms)
}

func (h *handlers) listLeads(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	formID, _ := args["form_id"].(string)
	if formID == "" {
		return mcp.NewToolResultError("form_id parameter is required"), nil
	}
	filter := leads.FilterToday
	if v, _ := args["time_filter"].(string); v != "" {
		f, err := leads.ParseTimeFilter(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		filter = f
	}
	q := leads.Query{FormID: formID, Filter: filter, MaxLeads: h.maxLeads}
	if filter == leads.FilterCustom {
		start, _ := args["start_date"].(string)
		end, _ := args["end_date"].(string)
		q.Range = leads.DateRange{Start: start, End: end}
		if err := q.Range.Validate(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	page, err := h.findPage(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q.AccessToken = page.AccessToken

	ls, err := h.backend.FetchLeads(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch leads failed: %v", err)), nil
	}
	ls = leads.SortNewestFirst(ls)

	n := pageArg(args, "page")
	n = leads.ClampPage(n, len(ls), h.pageSize)
	from, to := leads.PageBounds(n, len(ls), h.pageSize)

	out := leadsPage{
		Total:      len(ls),
		Page:       n,
		TotalPages: leads.TotalPages(len(ls), h.pageSize),
		Leads:      make([]leadRow, 0, to-from),
	}
	if len(ls) > 0 {
		out.Showing = fmt.Sprintf("Showing %d to %d of %d", from+1, to, len(ls))
	}
	for _, l := range ls[from:to] {
		row := leadRow{ID: l.ID, Created: leads.FormatCreated(l, h.loc), Fields: make(map[string]string, len(l.FieldData))}
		for _, f := range l.FieldData {
			row.Fields[f.Name] = l.Value(f.Name)
		}
		out.Leads = append(out.Leads, row)
	}
	return jsonResult(out)
}

// pageArg reads a 1-based page number; anything unusable means page 1.
func pageArg(args map[string]any, key string) int {
	v, ok := args[key].(float64)
	if !ok || math.IsNaN(v) || v < 1 {
		return 1
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
