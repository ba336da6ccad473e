// Package remote provides an HTTP client for the lead collaborator
// endpoints: accounts, pages, lead forms, and lead download/export.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/wesm/leadvault/internal/leads"
)

// DefaultURL is where the collaborator endpoints live when nothing is
// configured.
const DefaultURL = "http://127.0.0.1:8080/api"

// maxBodySize bounds how much of a response is read into memory.
const maxBodySize = 64 << 20

// Client talks to the collaborator endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config holds configuration for creating a client.
type Config struct {
	URL           string
	APIKey        string
	AllowInsecure bool
	Timeout       time.Duration
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL scheme must be http or https, got: %s", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return nil, fmt.Errorf("remote URL must include a host (e.g., http://127.0.0.1:8080/api)")
	}

	// Plain HTTP is fine on loopback; anywhere else it needs an explicit opt-in.
	if parsedURL.Scheme == "http" && !cfg.AllowInsecure && !isLoopback(parsedURL.Hostname()) {
		return nil, fmt.Errorf("HTTPS required for remote connections\n\n" +
			"Options:\n" +
			"  1. Use HTTPS: [remote] url = \"https://leads.example.com/api\"\n" +
			"  2. For trusted networks: add 'allow_insecure = true' to [remote] in config.toml")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest performs an authenticated HTTP request. Transport failures come
// back as *NetworkError.
func (c *Client) doRequest(ctx context.Context, op, method, path string, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: encode request", op)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: create request", op)
	}

	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: eris.Wrap(err, "request failed")}
	}
	return resp, nil
}

// apiError represents an error body from the collaborator.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// handleErrorResponse turns a non-2xx response into an *UpstreamError.
// The message is the body's "message", else its "error", else the raw
// text, else the status line.
func handleErrorResponse(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	msg := ""
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil {
		msg = apiErr.Message
		if msg == "" {
			msg = apiErr.Error
		}
	}
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	return &UpstreamError{Op: op, Status: resp.StatusCode, Message: msg}
}

// decodeEnvelope reads a {success, ...} body into dst and enforces the
// success flag.
func decodeEnvelope(op string, resp *http.Response, dst any, fallback string) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &NetworkError{Op: op, Err: eris.Wrap(err, "read response")}
	}

	var env struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return &FormatError{Op: op, ContentType: resp.Header.Get("Content-Type"), Message: fallback, Err: eris.Wrap(err, "decode response")}
	}
	if env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = fallback
		}
		return &UpstreamError{Op: op, Status: resp.StatusCode, Message: msg}
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return &FormatError{Op: op, ContentType: resp.Header.Get("Content-Type"), Message: fallback, Err: eris.Wrap(err, "decode response")}
	}
	return nil
}

type accountsResponse struct {
	Accounts []leads.Account `json:"accounts"`
}

// ListAccounts fetches the account list. A non-empty setCurrentID also
// records that account as current on the server.
func (c *Client) ListAccounts(ctx context.Context, setCurrentID string) ([]leads.Account, error) {
	const op = "list accounts"
	path := "/accounts"
	if setCurrentID != "" {
		path += "?setCurrentId=" + url.QueryEscape(setCurrentID)
	}

	resp, err := c.doRequest(ctx, op, http.MethodGet, path, nil, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, handleErrorResponse(op, resp)
	}

	var ar accountsResponse
	if err := decodeEnvelope(op, resp, &ar, "Failed to fetch accounts"); err != nil {
		return nil, err
	}
	return ar.Accounts, nil
}

type pagesResponse struct {
	Pages []leads.Page `json:"pages"`
}

// ListPages fetches the pages of an account.
func (c *Client) ListPages(ctx context.Context, accountID string) ([]leads.Page, error) {
	const op = "list pages"
	resp, err := c.doRequest(ctx, op, http.MethodGet, "/pages?accountId="+url.QueryEscape(accountID), nil, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, handleErrorResponse(op, resp)
	}

	var pr pagesResponse
	if err := decodeEnvelope(op, resp, &pr, "Failed to fetch pages"); err != nil {
		return nil, err
	}
	return pr.Pages, nil
}

type formsRequest struct {
	PageID      string `json:"pageId"`
	AccessToken string `json:"accessToken"`
}

type formsResponse struct {
	Forms []leads.Form `json:"forms"`
}

// ListForms fetches a page's lead forms with the page's token.
func (c *Client) ListForms(ctx context.Context, pageID, accessToken string) ([]leads.Form, error) {
	const op = "list forms"
	resp, err := c.doRequest(ctx, op, http.MethodPost, "/lead-forms", formsRequest{PageID: pageID, AccessToken: accessToken}, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, handleErrorResponse(op, resp)
	}

	var fr formsResponse
	if err := decodeEnvelope(op, resp, &fr, "Failed to fetch forms"); err != nil {
		return nil, err
	}
	return fr.Forms, nil
}

// DownloadRequest is the body of POST /download-leads. Without Format and
// PreFilteredLeads the endpoint answers with a JSON lead array; with them
// it answers with a spreadsheet.
type DownloadRequest struct {
	FormID           string           `json:"formId"`
	TimeFilter       leads.TimeFilter `json:"timeFilter"`
	MaxLeads         string           `json:"maxLeads,omitempty"`
	StartDate        string           `json:"startDate,omitempty"`
	EndDate          string           `json:"endDate,omitempty"`
	AccessToken      string           `json:"accessToken"`
	PreFilteredLeads []leads.Lead     `json:"preFilteredLeads,omitempty"`
	Format           leads.Format     `json:"format,omitempty"`
}

func newDownloadRequest(q leads.Query) DownloadRequest {
	req := DownloadRequest{
		FormID:      q.FormID,
		TimeFilter:  q.Filter,
		AccessToken: q.AccessToken,
	}
	if q.MaxLeads > 0 {
		req.MaxLeads = strconv.Itoa(q.MaxLeads)
	}
	if q.Filter == leads.FilterCustom {
		req.StartDate = q.Range.Start
		req.EndDate = q.Range.End
	}
	return req
}

// FetchLeads fetches leads in fetch mode. Order is whatever the server
// sends; callers sort.
func (c *Client) FetchLeads(ctx context.Context, q leads.Query) ([]leads.Lead, error) {
	const op = "fetch leads"
	resp, err := c.doRequest(ctx, op, http.MethodPost, "/download-leads", newDownloadRequest(q), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, handleErrorResponse(op, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: eris.Wrap(err, "read response")}
	}
	return decodeLeads(op, resp.Header.Get("Content-Type"), body)
}

// decodeLeads accepts a bare array, null, or an object carrying the array
// under "leads" (with an optional success flag).
func decodeLeads(op, contentType string, body []byte) ([]leads.Lead, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []leads.Lead{}, nil
	}

	if trimmed[0] == '[' {
		var ls []leads.Lead
		if err := json.Unmarshal(trimmed, &ls); err != nil {
			return nil, &FormatError{Op: op, ContentType: contentType, Message: "Unexpected response format", Err: eris.Wrap(err, "decode leads")}
		}
		return ls, nil
	}

	var wrapped struct {
		Success *bool        `json:"success"`
		Error   string       `json:"error"`
		Message string       `json:"message"`
		Leads   []leads.Lead `json:"leads"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, &FormatError{Op: op, ContentType: contentType, Message: "Unexpected response format", Err: eris.Wrap(err, "decode leads")}
	}
	if wrapped.Success != nil && !*wrapped.Success {
		msg := wrapped.Message
		if msg == "" {
			msg = wrapped.Error
		}
		if msg == "" {
			msg = "Failed to fetch leads"
		}
		return nil, &UpstreamError{Op: op, Status: http.StatusOK, Message: msg}
	}
	if wrapped.Leads == nil {
		return nil, &FormatError{Op: op, ContentType: contentType, Message: "Unexpected response format"}
	}
	return wrapped.Leads, nil
}

// ExportLeads asks the server to render req as a spreadsheet.
func (c *Client) ExportLeads(ctx context.Context, req leads.ExportRequest) (*leads.Payload, error) {
	const op = "download leads"
	body := newDownloadRequest(req.Query)
	body.PreFilteredLeads = req.Leads
	body.Format = req.Format
	if body.Format == "" {
		body.Format = leads.FormatExcel
	}

	accept := leads.ContentTypeXLSX + ", " + leads.ContentTypeBinary
	if body.Format == leads.FormatCSV {
		accept = leads.ContentTypeCSV + ", " + leads.ContentTypeBinary
	}

	resp, err := c.doRequest(ctx, op, http.MethodPost, "/download-leads", body, accept)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, handleErrorResponse(op, resp)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isSpreadsheet(contentType) {
		return nil, &FormatError{Op: op, ContentType: contentType, Message: "Failed to download: Unexpected response format"}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: eris.Wrap(err, "read spreadsheet")}
	}
	return &leads.Payload{ContentType: contentType, Data: data}, nil
}

func isSpreadsheet(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case leads.ContentTypeXLSX, leads.ContentTypeCSV, leads.ContentTypeBinary:
		return true
	}
	return false
}
