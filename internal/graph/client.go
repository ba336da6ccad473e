// Package graph is a small client for the Facebook Graph API endpoints the
// lead server needs: the user's pages, each page's lead forms, and the
// leads submitted to a form.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/wesm/leadvault/internal/leads"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL = "https://graph.facebook.com"
	DefaultVersion = "v19.0"

	defaultMaxRetries = 4
	maxBackoff        = 30 // seconds
	defaultTimeout    = 30 * time.Second
	pageLimit         = 100
	maxBodySize       = 32 << 20
)

// Client calls the Graph API. Every call takes the access token it should
// authenticate with, since user and page tokens differ per call.
type Client struct {
	httpClient  *http.Client
	rateLimiter *RateLimiter
	logger      *slog.Logger
	baseURL     string
	version     string
	maxRetries  int
	sleep       func(ctx context.Context, d time.Duration) error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithRateLimiter sets a custom rate limiter.
func WithRateLimiter(rl *RateLimiter) ClientOption {
	return func(c *Client) { c.rateLimiter = rl }
}

// WithHTTPClient sets the base HTTP client. Its transport is wrapped with
// token injection.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at a different Graph host.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithVersion sets the API version path segment, e.g. "v19.0".
func WithVersion(v string) ClientOption {
	return func(c *Client) { c.version = v }
}

// WithMaxRetries sets how many times throttled or failed requests are retried.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a Graph API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		baseURL:    DefaultBaseURL,
		version:    DefaultVersion,
		maxRetries: defaultMaxRetries,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rateLimiter == nil {
		c.rateLimiter = NewRateLimiter(5.0)
	}
	return c
}

// User is the owner of an access token.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Me returns the user the token belongs to.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var u User
	q := url.Values{"fields": {"id,name"}}
	if err := c.getJSON(ctx, token, c.endpoint("/me", q), &u); err != nil {
		return nil, eris.Wrap(err, "get user")
	}
	return &u, nil
}

// Pages lists the pages the user token manages, with their page tokens.
func (c *Client) Pages(ctx context.Context, userToken string) ([]leads.Page, error) {
	q := url.Values{"fields": {"id,name,access_token"}, "limit": {strconv.Itoa(pageLimit)}}
	var out []leads.Page
	err := c.paginate(ctx, userToken, c.endpoint("/me/accounts", q), func(raw json.RawMessage) (bool, error) {
		var batch []leads.Page
		if err := json.Unmarshal(raw, &batch); err != nil {
			return false, err
		}
		out = append(out, batch...)
		return true, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "list pages")
	}
	return out, nil
}

// LeadForms lists a page's lead forms.
func (c *Client) LeadForms(ctx context.Context, pageID, pageToken string) ([]leads.Form, error) {
	q := url.Values{"fields": {"id,name,status"}, "limit": {strconv.Itoa(pageLimit)}}
	var out []leads.Form
	err := c.paginate(ctx, pageToken, c.endpoint("/"+url.PathEscape(pageID)+"/leadgen_forms", q), func(raw json.RawMessage) (bool, error) {
		var batch []leads.Form
		if err := json.Unmarshal(raw, &batch); err != nil {
			return false, err
		}
		out = append(out, batch...)
		return true, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "list forms for page %s", pageID)
	}
	return out, nil
}

// LeadOptions narrows a lead listing. Zero times are unbounded and a zero
// Max means no cap.
type LeadOptions struct {
	Since time.Time
	Until time.Time
	Max   int
}

type filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    int64  `json:"value"`
}

// Leads lists the leads submitted to a form, filtered server side by
// creation time.
func (c *Client) Leads(ctx context.Context, formID, token string, opts LeadOptions) ([]leads.Lead, error) {
	limit := pageLimit
	if opts.Max > 0 && opts.Max < limit {
		limit = opts.Max
	}
	q := url.Values{
		"fields": {"id,created_time,field_data"},
		"limit":  {strconv.Itoa(limit)},
	}
	var filters []filter
	if !opts.Since.IsZero() {
		// GREATER_THAN is exclusive; step back a second to include Since.
		filters = append(filters, filter{"time_created", "GREATER_THAN", opts.Since.Unix() - 1})
	}
	if !opts.Until.IsZero() {
		filters = append(filters, filter{"time_created", "LESS_THAN", opts.Until.Unix()})
	}
	if len(filters) > 0 {
		b, err := json.Marshal(filters)
		if err != nil {
			return nil, eris.Wrap(err, "encode lead filter")
		}
		q.Set("filtering", string(b))
	}

	var out []leads.Lead
	err := c.paginate(ctx, token, c.endpoint("/"+url.PathEscape(formID)+"/leads", q), func(raw json.RawMessage) (bool, error) {
		var batch []leads.Lead
		if err := json.Unmarshal(raw, &batch); err != nil {
			return false, err
		}
		for _, l := range batch {
			if opts.Max > 0 && len(out) >= opts.Max {
				return false, nil
			}
			out = append(out, l)
		}
		return opts.Max == 0 || len(out) < opts.Max, nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "list leads for form %s", formID)
	}
	return out, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.baseURL + "/" + c.version + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

type listPage struct {
	Data   json.RawMessage `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// paginate walks "paging.next" links until they run out or fn returns false.
func (c *Client) paginate(ctx context.Context, token, first string, fn func(json.RawMessage) (bool, error)) error {
	next := first
	for pages := 0; next != ""; pages++ {
		var p listPage
		if err := c.getJSON(ctx, token, next, &p); err != nil {
			return err
		}
		if len(p.Data) == 0 || string(p.Data) == "null" {
			return nil
		}
		more, err := fn(p.Data)
		if err != nil {
			return eris.Wrap(err, "decode page data")
		}
		if !more {
			return nil
		}
		c.logger.Debug("following graph paging", "page", pages+1)
		next = p.Paging.Next
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, token, reqURL string, v any) error {
	body, err := c.request(ctx, token, reqURL)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return eris.Wrap(err, "decode graph response")
	}
	return nil
}

func (c *Client) authClient(token string) *http.Client {
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   base,
		},
		Timeout: c.httpClient.Timeout,
	}
}

// request performs a GET with rate limiting and retry on throttling, 5xx,
// and transport failures.
func (c *Client) request(ctx context.Context, token, reqURL string) ([]byte, error) {
	if token == "" {
		return nil, eris.New("missing access token")
	}
	hc := c.authClient(token)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt)
			c.logger.Debug("retrying graph request", "attempt", attempt, "backoff", backoff)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}
		if err := c.rateLimiter.Acquire(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "create request")
		}
		resp, err := hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = eris.Wrap(err, "http request")
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		resp.Body.Close()
		if err != nil {
			lastErr = eris.Wrap(err, "read response")
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return body, nil
		}

		gerr := parseError(resp.StatusCode, body)
		switch {
		case gerr.IsRateLimit():
			c.logger.Debug("graph throttled", "code", gerr.Code, "attempt", attempt)
			c.rateLimiter.Throttle(time.Duration(attempt+1) * 5 * time.Second)
			lastErr = gerr
		case resp.StatusCode >= 500:
			lastErr = gerr
		default:
			return nil, gerr
		}
	}
	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff uses exponential backoff with full jitter.
func calculateBackoff(attempt int) time.Duration {
	base := float64(uint(1) << uint(attempt))
	if base > maxBackoff {
		base = maxBackoff
	}
	return time.Duration(rand.Float64() * base * float64(time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
