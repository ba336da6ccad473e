package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/remote"
)

// Download describes a saved export.
type Download struct {
	Path  string
	Count int
}

// DownloadLeads exports the leads already held, under the active filter,
// and saves the spreadsheet. It never refetches. An empty format uses the
// session default.
func (s *Session) DownloadLeads(ctx context.Context, format leads.Format) (Download, error) {
	s.mu.Lock()
	st := s.state
	if st.Form == nil || st.Page == nil || len(st.Leads) == 0 {
		s.mu.Unlock()
		return Download{}, ErrNoLeads
	}
	if format == "" {
		format = s.format
	}
	req := leads.ExportRequest{
		Query: leads.Query{
			FormID:      st.Form.ID,
			AccessToken: st.Page.AccessToken,
			Filter:      st.Filter,
			MaxLeads:    s.maxLeads,
		},
		Leads:  st.Leads,
		Format: format,
	}
	if st.Filter == leads.FilterCustom {
		req.Range = st.Range
	}
	name := leads.ExportFilename(st.Form.Name, st.Filter, s.now().In(s.loc), format)
	s.dispatch(statusChanged{status: StatusPreparing})
	s.mu.Unlock()

	path, err := s.export(ctx, req, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.dispatch(failed{status: StatusDownloadFailed, message: remote.UserMessage(err)})
		s.logger.Warn("download failed", "form", req.FormID, "error", err)
		return Download{}, err
	}
	s.dispatch(statusChanged{status: StatusDownloadComplete})
	s.logger.Info("leads downloaded", "form", req.FormID, "count", len(req.Leads), "path", path)
	return Download{Path: path, Count: len(req.Leads)}, nil
}

func (s *Session) export(ctx context.Context, req leads.ExportRequest, name string) (string, error) {
	end := s.begin(false)
	defer end()

	payload, err := s.backend.ExportLeads(ctx, req)
	if err != nil {
		return "", err
	}
	path, err := s.saver.Save(name, payload.Data)
	if err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	return path, nil
}

// DownloadYesterdayLeads exports the held leads created yesterday in the
// session's zone. With nothing held it first loads every lead for the
// form. The filter active before the call is restored afterwards, and if
// the lead set had to be loaded under "all" it is reloaded for that filter.
func (s *Session) DownloadYesterdayLeads(ctx context.Context, format leads.Format) (dl Download, err error) {
	s.mu.Lock()
	st := s.state
	if st.Form == nil || st.Page == nil {
		s.mu.Unlock()
		return Download{}, ErrNoForm
	}
	if format == "" {
		format = s.format
	}
	prevFilter, prevRange := st.Filter, st.Range
	bootstrap := len(st.Leads) == 0
	if bootstrap {
		s.dispatch(filterChanged{filter: leads.FilterAll})
	}
	s.dispatch(statusChanged{status: StatusPreparing})
	s.mu.Unlock()

	defer func() {
		s.restoreFilter(ctx, prevFilter, prevRange, bootstrap, err)
	}()

	if bootstrap {
		if err := s.FetchLeads(ctx); err != nil {
			return Download{}, err
		}
	}

	s.mu.Lock()
	st = s.state
	if len(st.Leads) == 0 {
		s.dispatch(failed{status: StatusNothingToExport, message: msgNothingLoaded})
		s.mu.Unlock()
		return Download{}, ErrNoLeads
	}
	day := leads.Yesterday(s.now(), s.loc)
	label := day.Format(leads.DayLayout)
	picked := leads.CreatedOn(st.Leads, day, s.loc)
	if len(picked) == 0 {
		s.dispatch(failed{status: StatusNothingToExport, message: fmt.Sprintf("No leads found for yesterday (%s)", label)})
		s.mu.Unlock()
		return Download{}, fmt.Errorf("%w (%s)", ErrNoYesterdayLeads, label)
	}
	req := leads.ExportRequest{
		Query: leads.Query{
			FormID:      st.Form.ID,
			AccessToken: st.Page.AccessToken,
			Filter:      leads.FilterYesterday,
			MaxLeads:    s.maxLeads,
		},
		Leads:  picked,
		Format: format,
	}
	name := leads.YesterdayFilename(st.Form.Name, day, format)
	s.mu.Unlock()

	path, err := s.export(ctx, req, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.dispatch(failed{status: StatusDownloadFailed, message: remote.UserMessage(err)})
		s.logger.Warn("yesterday download failed", "form", req.FormID, "error", err)
		return Download{}, err
	}
	s.dispatch(statusChanged{status: fmt.Sprintf("%d leads from yesterday (%s) downloaded successfully!", len(picked), label)})
	s.logger.Info("yesterday leads downloaded", "form", req.FormID, "day", label, "count", len(picked), "path", path)
	return Download{Path: path, Count: len(picked)}, nil
}

// restoreFilter puts back the filter that was active before a yesterday
// download. When the download had to load leads under "all", the leads
// are reloaded for the restored filter and the download's outcome message
// is kept.
func (s *Session) restoreFilter(ctx context.Context, prev leads.TimeFilter, rng leads.DateRange, bootstrapped bool, downloadErr error) {
	s.mu.Lock()
	s.dispatch(filterChanged{filter: prev, rng: rng})
	status, message := s.state.Status, s.state.Error
	s.mu.Unlock()

	if !bootstrapped || prev == leads.FilterAll || errors.Is(downloadErr, ErrSuperseded) {
		return
	}
	if prev == leads.FilterCustom && rng.Validate() != nil {
		return
	}
	if err := s.FetchLeads(ctx); err != nil {
		s.logger.Warn("reload after yesterday download failed", "filter", prev, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if message != "" {
		s.dispatch(failed{status: status, message: message})
	} else {
		s.dispatch(statusChanged{status: status})
	}
}
