package session

import (
	"context"
	"errors"
	"sync"

	"github.com/wesm/leadvault/internal/leads"
)

// fakeBackend serves canned data and records calls. A gate registered
// for a key blocks the matching call until the channel is closed; entered
// receives the key when the call starts.
type fakeBackend struct {
	mu sync.Mutex

	accounts []leads.Account
	pages    map[string][]leads.Page
	forms    map[string][]leads.Form
	// leadsFor answers FetchLeads; nil returns leadsByForm[q.FormID].
	leadsFor    func(q leads.Query) ([]leads.Lead, error)
	leadsByForm map[string][]leads.Lead
	pagesErr    error
	formsErr    error
	exportErr   error

	setCurrent []string
	formTokens []string
	fetches    []leads.Query
	exports    []leads.ExportRequest

	gates   map[string]chan struct{}
	entered chan string
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pages:       make(map[string][]leads.Page),
		forms:       make(map[string][]leads.Form),
		leadsByForm: make(map[string][]leads.Lead),
		gates:       make(map[string]chan struct{}),
		entered:     make(chan string, 16),
	}
}

func (f *fakeBackend) wait(ctx context.Context, key string) error {
	f.mu.Lock()
	gate := f.gates[key]
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	f.entered <- key
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) gate(key string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[key] = ch
	return ch
}

func (f *fakeBackend) ListAccounts(ctx context.Context, setCurrentID string) ([]leads.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if setCurrentID != "" {
		f.setCurrent = append(f.setCurrent, setCurrentID)
	}
	return f.accounts, nil
}

func (f *fakeBackend) ListPages(ctx context.Context, accountID string) ([]leads.Page, error) {
	if err := f.wait(ctx, "pages:"+accountID); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pagesErr != nil {
		return nil, f.pagesErr
	}
	return f.pages[accountID], nil
}

func (f *fakeBackend) ListForms(ctx context.Context, pageID, accessToken string) ([]leads.Form, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.formTokens = append(f.formTokens, accessToken)
	if f.formsErr != nil {
		return nil, f.formsErr
	}
	return f.forms[pageID], nil
}

func (f *fakeBackend) FetchLeads(ctx context.Context, q leads.Query) ([]leads.Lead, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, q)
	fn := f.leadsFor
	f.mu.Unlock()

	if err := f.wait(ctx, "leads:"+string(q.Filter)); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(q)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leadsByForm[q.FormID], nil
}

func (f *fakeBackend) ExportLeads(ctx context.Context, req leads.ExportRequest) (*leads.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, req)
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return &leads.Payload{ContentType: leads.ContentTypeXLSX, Data: []byte("sheet")}, nil
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetches)
}

type memSaver struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (m *memSaver) Save(name string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[name] = data
	return "/downloads/" + name, nil
}

var errBoom = errors.New("boom")
