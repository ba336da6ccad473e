package leads

import (
	"fmt"
	"time"
)

// Layouts used across the dashboard.
const (
	// GraphLayout is how the Graph API renders created_time.
	GraphLayout = "2006-01-02T15:04:05-0700"
	// DateLayout is the layout of custom range dates.
	DateLayout = "2006-01-02"
	// DisplayLayout renders a lead timestamp in the lead table.
	DisplayLayout = "01/02/2006, 03:04 PM"
	// DayLayout renders a calendar day in status messages.
	DayLayout = "01/02/2006"
)

// DefaultTimezone is the zone "today" and "yesterday" are computed in.
const DefaultTimezone = "Asia/Kolkata"

var timeLayouts = []string{
	GraphLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05",
}

// ParseTime parses a lead timestamp in any layout the upstream is known to
// send.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// LoadLocation resolves a zone name. Hosts without tzdata still get the
// fixed +05:30 offset for the default zone.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == DefaultTimezone {
		return time.FixedZone("IST", 5*3600+1800), nil
	}
	return nil, fmt.Errorf("load timezone %q: %w", name, err)
}

// StartOfDay returns midnight of t's date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Yesterday returns midnight of the day before now, in loc.
func Yesterday(now time.Time, loc *time.Location) time.Time {
	return StartOfDay(now, loc).AddDate(0, 0, -1)
}

// SameDay reports whether a and b fall on the same calendar date in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// CreatedOn returns the leads created on day's calendar date in loc,
// preserving order. Leads with unparseable timestamps are skipped.
func CreatedOn(ls []Lead, day time.Time, loc *time.Location) []Lead {
	var out []Lead
	for _, l := range ls {
		t, ok := l.Created()
		if ok && SameDay(t, day, loc) {
			out = append(out, l)
		}
	}
	return out
}

// FormatCreated renders a lead's creation time for display, falling back
// to the raw value.
func FormatCreated(l Lead, loc *time.Location) string {
	t, ok := l.Created()
	if !ok {
		if l.CreatedTime == "" {
			return "-"
		}
		return l.CreatedTime
	}
	return t.In(loc).Format(DisplayLayout)
}

// Window returns the half-open creation interval [since, until) a filter
// selects, evaluated at now in loc. Zero times mean unbounded. Custom end
// dates are inclusive.
func Window(f TimeFilter, r DateRange, now time.Time, loc *time.Location) (since, until time.Time, err error) {
	switch f {
	case FilterToday:
		return StartOfDay(now, loc), time.Time{}, nil
	case FilterYesterday:
		today := StartOfDay(now, loc)
		return today.AddDate(0, 0, -1), today, nil
	case FilterAll:
		return time.Time{}, time.Time{}, nil
	case FilterCustom:
		if err := r.Validate(); err != nil {
			return time.Time{}, time.Time{}, err
		}
		start, _ := time.ParseInLocation(DateLayout, r.Start, loc)
		end, _ := time.ParseInLocation(DateLayout, r.End, loc)
		return start, end.AddDate(0, 0, 1), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown time filter %q", f)
}

// InWindow filters ls to leads created within [since, until). Leads with
// unparseable timestamps are kept only when the window is unbounded.
func InWindow(ls []Lead, since, until time.Time) []Lead {
	if since.IsZero() && until.IsZero() {
		return ls
	}
	out := make([]Lead, 0, len(ls))
	for _, l := range ls {
		t, ok := l.Created()
		if !ok {
			continue
		}
		if !since.IsZero() && t.Before(since) {
			continue
		}
		if !until.IsZero() && !t.Before(until) {
			continue
		}
		out = append(out, l)
	}
	return out
}
