package session

import (
	"testing"

	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/testutil"
)

func TestReduce_DoesNotAliasInput(t *testing.T) {
	accounts := []leads.Account{{ID: "A", IsCurrent: true}, {ID: "B"}}
	s := State{Accounts: accounts, AccountID: "A", PageSize: 10, CurrentPage: 1}

	next := reduce(s, accountSelected{id: "B"})

	if !accounts[0].IsCurrent || accounts[1].IsCurrent {
		t.Error("reduce modified the input accounts slice")
	}
	if next.Accounts[0].IsCurrent || !next.Accounts[1].IsCurrent {
		t.Errorf("IsCurrent not moved: %+v", next.Accounts)
	}
}

func TestReduce_Generations(t *testing.T) {
	s := State{PageSize: 10, CurrentPage: 1}
	start := s.gens

	s = reduce(s, accountSelected{id: "A"})
	if s.gens.account != start.account+1 || s.gens.page != start.page+1 || s.gens.leads != start.leads+1 {
		t.Errorf("account selection gens = %+v", s.gens)
	}

	g := s.gens
	s = reduce(s, pageSelected{page: leads.Page{ID: "p"}})
	if s.gens.account != g.account || s.gens.page != g.page+1 || s.gens.leads != g.leads+1 {
		t.Errorf("page selection gens = %+v", s.gens)
	}

	g = s.gens
	s = reduce(s, formSelected{form: leads.Form{ID: "f"}})
	if s.gens.page != g.page || s.gens.leads != g.leads+1 {
		t.Errorf("form selection gens = %+v", s.gens)
	}

	g = s.gens
	s = reduce(s, accountSelected{id: "A"})
	if s.gens != g {
		t.Error("reselecting the same account bumped generations")
	}
}

func TestReduce_FilterKeepsCustomRange(t *testing.T) {
	rng := leads.DateRange{Start: "2024-01-01", End: "2024-01-31"}
	s := reduce(State{}, filterChanged{filter: leads.FilterCustom, rng: rng})
	s = reduce(s, filterChanged{filter: leads.FilterToday})
	if s.Range != rng {
		t.Errorf("Range = %+v, want custom range kept", s.Range)
	}
	s = reduce(s, filterChanged{filter: leads.FilterCustom, rng: leads.DateRange{Start: "2024-02-01"}})
	if s.Range.End != "" {
		t.Errorf("Range = %+v", s.Range)
	}
}

func TestReduce_LeadsLoadedSortsAndResets(t *testing.T) {
	ls := testutil.LeadsEvery(12, testNow, -1)
	s := State{PageSize: 10, CurrentPage: 2}
	s = reduce(s, leadsLoaded{leads: ls})
	if s.CurrentPage != 1 {
		t.Errorf("CurrentPage = %d", s.CurrentPage)
	}
	if s.Leads[0].ID != "lead-12" {
		t.Errorf("first lead = %s, want newest (lead-12)", s.Leads[0].ID)
	}
	if ls[0].ID != "lead-1" {
		t.Error("input slice reordered")
	}
}
