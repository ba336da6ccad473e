package session

import (
	"fmt"

	"github.com/wesm/leadvault/internal/leads"
)

// event is a state transition input. Every mutation of State goes through
// reduce.
type event interface{ isEvent() }

type (
	accountsLoaded  struct{ accounts []leads.Account }
	accountSelected struct{ id string }
	pagesLoaded     struct{ pages []leads.Page }
	pageSelected    struct{ page leads.Page }
	formsLoaded     struct{ forms []leads.Form }
	formSelected    struct{ form leads.Form }
	filterChanged   struct {
		filter leads.TimeFilter
		rng    leads.DateRange
	}
	leadsRequested struct{}
	leadsLoaded    struct{ leads []leads.Lead }
	pageChanged    struct{ page int }
	statusChanged  struct{ status string }
	failed         struct{ status, message string }
)

func (accountsLoaded) isEvent()  {}
func (accountSelected) isEvent() {}
func (pagesLoaded) isEvent()     {}
func (pageSelected) isEvent()    {}
func (formsLoaded) isEvent()     {}
func (formSelected) isEvent()    {}
func (filterChanged) isEvent()   {}
func (leadsRequested) isEvent()  {}
func (leadsLoaded) isEvent()     {}
func (pageChanged) isEvent()     {}
func (statusChanged) isEvent()   {}
func (failed) isEvent()          {}

// reduce returns the state after ev. It never modifies slices reachable
// from s; anything it changes is copied first.
func reduce(s State, ev event) State {
	switch ev := ev.(type) {
	case accountsLoaded:
		s.Accounts = append([]leads.Account(nil), ev.accounts...)

	case accountSelected:
		if ev.id == s.AccountID && s.Pages != nil {
			return s
		}
		s.AccountID = ev.id
		accounts := make([]leads.Account, len(s.Accounts))
		for i, a := range s.Accounts {
			a.IsCurrent = a.ID == ev.id
			accounts[i] = a
		}
		s.Accounts = accounts
		s.Pages, s.Page = nil, nil
		s.Forms, s.Form = nil, nil
		s = clearLeads(s)
		s.Error = ""
		s.gens.account++
		s.gens.page++
		s.gens.leads++

	case pagesLoaded:
		// Non-nil even when empty: nil means not loaded.
		s.Pages = append(make([]leads.Page, 0, len(ev.pages)), ev.pages...)

	case pageSelected:
		p := ev.page
		s.Page = &p
		s.Forms, s.Form = nil, nil
		s = clearLeads(s)
		s.Error = ""
		s.gens.page++
		s.gens.leads++

	case formsLoaded:
		s.Forms = append(make([]leads.Form, 0, len(ev.forms)), ev.forms...)

	case formSelected:
		f := ev.form
		s.Form = &f
		s = clearLeads(s)
		s.Error = ""
		s.gens.leads++

	case filterChanged:
		s.Filter = ev.filter
		if ev.filter == leads.FilterCustom {
			s.Range = ev.rng
		}

	case leadsRequested:
		s.Status = StatusLoading
		s.Error = ""
		s.gens.leads++

	case leadsLoaded:
		s.Leads = leads.SortNewestFirst(ev.leads)
		s.CurrentPage = 1
		s.Error = ""
		if len(s.Leads) == 0 {
			s.Status = StatusNoLeads
		} else {
			s.Status = fmt.Sprintf("%d leads loaded successfully. Ready to download.", len(s.Leads))
		}

	case pageChanged:
		s.CurrentPage = leads.ClampPage(ev.page, len(s.Leads), s.PageSize)

	case statusChanged:
		s.Status = ev.status
		s.Error = ""

	case failed:
		if ev.status != "" {
			s.Status = ev.status
		}
		s.Error = ev.message
	}
	return s
}

func clearLeads(s State) State {
	s.Leads = nil
	s.CurrentPage = 1
	s.Status = ""
	return s
}
