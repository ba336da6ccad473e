// Package mcp exposes lead browsing to MCP clients over stdio.
package mcp

import (
	"context"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wesm/leadvault/internal/leads"
)

// Tool name constants.
const (
	ToolListAccounts = "list_accounts"
	ToolListPages    = "list_pages"
	ToolListForms    = "list_forms"
	ToolListLeads    = "list_leads"
)

// Backend is the lead source the tools read from. Both the remote client
// and the local service satisfy it.
type Backend interface {
	ListAccounts(ctx context.Context, setCurrentID string) ([]leads.Account, error)
	ListPages(ctx context.Context, accountID string) ([]leads.Page, error)
	ListForms(ctx context.Context, pageID, accessToken string) ([]leads.Form, error)
	FetchLeads(ctx context.Context, q leads.Query) ([]leads.Lead, error)
}

// Options tune the tools' defaults.
type Options struct {
	Version  string
	Location *time.Location // zone for filters and displayed times
	MaxLeads int
	PageSize int
}

func withAccountID() mcp.ToolOption {
	return mcp.WithString("account_id",
		mcp.Description("Ad account ID (default: the current account)"),
	)
}

func withPageID() mcp.ToolOption {
	return mcp.WithString("page_id",
		mcp.Required(),
		mcp.Description("Facebook page ID (from list_pages)"),
	)
}

// Serve creates an MCP server with the lead tools and serves over stdio.
// It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, backend Backend, opts Options) error {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := server.NewMCPServer(
		"leadvault",
		opts.Version,
		server.WithToolCapabilities(false),
	)

	h := newHandlers(backend, opts)
	s.AddTool(listAccountsTool(), h.listAccounts)
	s.AddTool(listPagesTool(), h.listPages)
	s.AddTool(listFormsTool(), h.listForms)
	s.AddTool(listLeadsTool(), h.listLeads)

	stdio := server.NewStdioServer(s)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func listAccountsTool() mcp.Tool {
	return mcp.NewTool(ToolListAccounts,
		mcp.WithDescription("List ad accounts. The current account is marked isCurrent."),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}

func listPagesTool() mcp.Tool {
	return mcp.NewTool(ToolListPages,
		mcp.WithDescription("List the Facebook pages an ad account manages. Page access tokens are not returned."),
		mcp.WithReadOnlyHintAnnotation(true),
		withAccountID(),
	)
}

func listFormsTool() mcp.Tool {
	return mcp.NewTool(ToolListForms,
		mcp.WithDescription("List the lead generation forms on a page."),
		mcp.WithReadOnlyHintAnnotation(true),
		withAccountID(),
		withPageID(),
	)
}

func listLeadsTool() mcp.Tool {
	return mcp.NewTool(ToolListLeads,
		mcp.WithDescription("List leads submitted to a form, newest first, one page at a time."),
		mcp.WithReadOnlyHintAnnotation(true),
		withAccountID(),
		withPageID(),
		mcp.WithString("form_id",
			mcp.Required(),
			mcp.Description("Lead form ID (from list_forms)"),
		),
		mcp.WithString("time_filter",
			mcp.Description("today, yesterday, all, or custom (default today)"),
			mcp.Enum(string(leads.FilterToday), string(leads.FilterYesterday), string(leads.FilterAll), string(leads.FilterCustom)),
		),
		mcp.WithString("start_date",
			mcp.Description("Custom range start (YYYY-MM-DD)"),
		),
		mcp.WithString("end_date",
			mcp.Description("Custom range end, inclusive (YYYY-MM-DD)"),
		),
		mcp.WithNumber("page",
			mcp.Description("1-based page of results (default 1)"),
		),
	)
}
