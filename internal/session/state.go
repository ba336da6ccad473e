package session

import (
	"errors"

	"github.com/wesm/leadvault/internal/leads"
)

// Status strings shown next to the lead table.
const (
	StatusLoading          = "Loading leads..."
	StatusLoadError        = "Error loading leads"
	StatusNoLeads          = "No leads found for the selected time period."
	StatusPreparing        = "Preparing leads for download..."
	StatusDownloadComplete = "Download complete!"
	StatusDownloadFailed   = "Download failed"
	StatusNothingToExport  = "No leads to download"
)

// Messages surfaced in State.Error.
const (
	msgNothingLoaded = "No leads available. Please try loading leads first."
	msgTokenHint     = ". Try using a manual access token."
)

var (
	// ErrSuperseded is returned when a response arrives after the selection
	// it was fetched for has changed. The response is discarded.
	ErrSuperseded = errors.New("superseded by a newer selection")

	ErrNoAccount        = errors.New("no account selected")
	ErrNoPage           = errors.New("no page selected")
	ErrNoForm           = errors.New("no form selected")
	ErrNoLeads          = errors.New("no leads to download")
	ErrNoYesterdayLeads = errors.New("no leads from yesterday")
	ErrNotCustom        = errors.New("time filter is not custom")
	ErrInvalidRange     = errors.New("invalid custom range")
	ErrUnknownSelection = errors.New("unknown selection")
)

// State is the view of a session. Values returned by Session.Snapshot are
// safe to read without further locking.
type State struct {
	Accounts  []leads.Account
	AccountID string

	Pages []leads.Page
	Page  *leads.Page

	Forms []leads.Form
	Form  *leads.Form

	Filter leads.TimeFilter
	Range  leads.DateRange

	// Leads is every fetched lead, newest first.
	Leads       []leads.Lead
	CurrentPage int
	PageSize    int

	Status string
	Error  string

	// Loading is true while any backend call is in flight; LoadingLeads
	// only while a lead fetch is.
	Loading      bool
	LoadingLeads bool

	gens generations
}

// generations counts selection changes per level. A response is applied
// only if its level's generation is unchanged since the request started.
type generations struct {
	account uint64
	page    uint64
	leads   uint64
}

// Account returns the selected account.
func (s State) Account() (leads.Account, bool) {
	for _, a := range s.Accounts {
		if a.ID == s.AccountID {
			return a, true
		}
	}
	if s.AccountID != "" {
		return leads.Account{ID: s.AccountID}, true
	}
	return leads.Account{}, false
}

// TotalPages is the number of lead pages, at least 1.
func (s State) TotalPages() int {
	return leads.TotalPages(len(s.Leads), s.PageSize)
}

// Window returns the leads on the current page.
func (s State) Window() []leads.Lead {
	return leads.PageOf(s.Leads, s.CurrentPage, s.PageSize)
}

// Showing returns the 1-based positions of the first and last lead on the
// current page; both are 0 when there are no leads.
func (s State) Showing() (from, to int) {
	lo, hi := leads.PageBounds(s.CurrentPage, len(s.Leads), s.PageSize)
	if hi == 0 {
		return 0, 0
	}
	return lo + 1, hi
}

func (s State) clone() State {
	c := s
	if s.Page != nil {
		p := *s.Page
		c.Page = &p
	}
	if s.Form != nil {
		f := *s.Form
		c.Form = &f
	}
	return c
}
