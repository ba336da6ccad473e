package testutil

import (
	"fmt"
	"time"

	"github.com/wesm/leadvault/internal/leads"
)

// IST is the +05:30 zone leads are bucketed in by default.
var IST = time.FixedZone("IST", 5*3600+1800)

// LeadBuilder provides a fluent API for constructing leads.Lead in tests.
type LeadBuilder struct {
	l leads.Lead
}

// NewLead creates a builder with an email field and a fixed creation time.
func NewLead(id string) *LeadBuilder {
	return &LeadBuilder{
		l: leads.Lead{
			ID:          id,
			CreatedTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC).Format(leads.GraphLayout),
			FieldData: []leads.Field{
				{Name: "email", Values: []string{id + "@example.com"}},
			},
		},
	}
}

// CreatedAt sets the creation time using the Graph layout.
func (b *LeadBuilder) CreatedAt(t time.Time) *LeadBuilder {
	b.l.CreatedTime = t.Format(leads.GraphLayout)
	return b
}

// CreatedRaw sets the creation time verbatim.
func (b *LeadBuilder) CreatedRaw(s string) *LeadBuilder {
	b.l.CreatedTime = s
	return b
}

// Field appends a field.
func (b *LeadBuilder) Field(name string, values ...string) *LeadBuilder {
	b.l.FieldData = append(b.l.FieldData, leads.Field{Name: name, Values: values})
	return b
}

// Build returns the lead.
func (b *LeadBuilder) Build() leads.Lead {
	return b.l
}

// LeadsEvery builds n leads whose creation times step back from newest by
// step, so the result is already newest first. IDs are "lead-1".."lead-n".
func LeadsEvery(n int, newest time.Time, step time.Duration) []leads.Lead {
	out := make([]leads.Lead, n)
	for i := range out {
		out[i] = NewLead(fmt.Sprintf("lead-%d", i+1)).
			CreatedAt(newest.Add(-time.Duration(i) * step)).
			Build()
	}
	return out
}

// LeadIDs returns the IDs of ls in order.
func LeadIDs(ls []leads.Lead) []string {
	ids := make([]string, len(ls))
	for i, l := range ls {
		ids[i] = l.ID
	}
	return ids
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
