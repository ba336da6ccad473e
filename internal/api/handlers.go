package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/wesm/leadvault/internal/graph"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/scheduler"
	"github.com/wesm/leadvault/internal/service"
)

// maxRequestBody bounds JSON request bodies; pre-filtered leads can be large.
const maxRequestBody = 32 << 20

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// SchedulerStatusResponse represents scheduler status.
type SchedulerStatusResponse struct {
	Running bool                  `json:"running"`
	Jobs    []scheduler.JobStatus `json:"jobs"`
}

type formsRequest struct {
	PageID      string `json:"pageId"`
	AccessToken string `json:"accessToken"`
}

// flexInt accepts a JSON number or a numeric string; the dashboard sends
// maxLeads as a string.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("maxLeads: %q is not a number", s)
	}
	*f = flexInt(n)
	return nil
}

type downloadRequest struct {
	FormID           string           `json:"formId"`
	TimeFilter       leads.TimeFilter `json:"timeFilter"`
	MaxLeads         flexInt          `json:"maxLeads"`
	StartDate        string           `json:"startDate"`
	EndDate          string           `json:"endDate"`
	AccessToken      string           `json:"accessToken"`
	PreFilteredLeads []leads.Lead     `json:"preFilteredLeads"`
	Format           string           `json:"format"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps service and Graph errors onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	var ge *graph.Error
	switch {
	case errors.Is(err, service.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case graph.IsTokenError(err):
		status = http.StatusUnauthorized
		if errors.As(err, &ge) {
			msg = ge.Message
		}
	case errors.As(err, &ge):
		status = http.StatusBadGateway
		msg = ge.Message
	}
	s.logger.Error("api call failed", "op", op, "status", status, "error", err)
	writeError(w, status, msg)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.ListAccounts(r.Context(), r.URL.Query().Get("setCurrentId"))
	if err != nil {
		s.writeServiceError(w, "accounts", err)
		return
	}
	if accounts == nil {
		accounts = []leads.Account{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "accounts": accounts})
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.svc.ListPages(r.Context(), r.URL.Query().Get("accountId"))
	if err != nil {
		s.writeServiceError(w, "pages", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "pages": pages})
}

func (s *Server) handleListForms(w http.ResponseWriter, r *http.Request) {
	var req formsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	forms, err := s.svc.ListForms(r.Context(), req.PageID, req.AccessToken)
	if err != nil {
		s.writeServiceError(w, "lead-forms", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "forms": forms})
}

// handleDownloadLeads returns a JSON lead array, or a spreadsheet when the
// request names a format or carries pre-filtered leads.
func (s *Server) handleDownloadLeads(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TimeFilter == "" {
		req.TimeFilter = leads.FilterAll
	}
	if _, err := leads.ParseTimeFilter(string(req.TimeFilter)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q := leads.Query{
		FormID:      req.FormID,
		AccessToken: req.AccessToken,
		Filter:      req.TimeFilter,
		MaxLeads:    int(req.MaxLeads),
	}
	if req.TimeFilter == leads.FilterCustom {
		q.Range = leads.DateRange{Start: req.StartDate, End: req.EndDate}
	}

	if req.Format == "" && req.PreFilteredLeads == nil {
		ls, err := s.svc.FetchLeads(r.Context(), q)
		if err != nil {
			s.writeServiceError(w, "download-leads", err)
			return
		}
		writeJSON(w, http.StatusOK, ls)
		return
	}

	format := leads.FormatExcel
	if req.Format != "" {
		f, err := leads.ParseFormat(req.Format)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		format = f
	}
	p, err := s.svc.ExportLeads(r.Context(), leads.ExportRequest{Query: q, Leads: req.PreFilteredLeads, Format: format})
	if err != nil {
		s.writeServiceError(w, "export-leads", err)
		return
	}

	name := leads.ExportFilename(req.FormID, req.TimeFilter, s.now().In(s.loc), format)
	w.Header().Set("Content-Type", p.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Data)
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	resp := SchedulerStatusResponse{Jobs: []scheduler.JobStatus{}}
	if s.scheduler != nil {
		resp.Running = s.scheduler.IsRunning()
		if jobs := s.scheduler.Status(); jobs != nil {
			resp.Jobs = jobs
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "No exports are scheduled")
		return
	}
	name := chi.URLParam(r, "name")
	if err := s.scheduler.TriggerRun(name); err != nil {
		s.logger.Warn("failed to trigger export", "job", name, "error", err)
		status := http.StatusConflict
		if strings.Contains(err.Error(), "not scheduled") {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	s.logger.Info("export triggered via API", "job", name)
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "message": "Export started for " + name})
}
