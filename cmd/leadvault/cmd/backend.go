package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/wesm/leadvault/internal/export"
	"github.com/wesm/leadvault/internal/graph"
	"github.com/wesm/leadvault/internal/remote"
	"github.com/wesm/leadvault/internal/service"
	"github.com/wesm/leadvault/internal/session"
	"github.com/wesm/leadvault/internal/store"
)

// IsRemoteMode returns true if commands should use the lead server.
// Resolution order:
//  1. --local flag → always local
//  2. [remote].url set in config (the default points at a server on
//     this machine) → use remote
//  3. url = "" → local
func IsRemoteMode() bool {
	if useLocal {
		return false
	}
	return cfg != nil && cfg.Remote.URL != ""
}

// openBackend returns the lead server client, or an in-process service
// over the local account store. The returned func releases whatever was
// opened.
func openBackend() (session.Backend, func(), error) {
	if IsRemoteMode() {
		c, err := openRemote()
		if err != nil {
			return nil, nil, err
		}
		return c, func() {}, nil
	}
	svc, st, err := openLocalService()
	if err != nil {
		return nil, nil, err
	}
	return svc, func() { _ = st.Close() }, nil
}

// openRemote creates a client for the configured lead server.
func openRemote() (*remote.Client, error) {
	return remote.New(remote.Config{
		URL:           cfg.Remote.URL,
		APIKey:        cfg.Remote.APIKey,
		AllowInsecure: cfg.Remote.AllowInsecure,
		Timeout:       cfg.Remote.Timeout.Duration,
	})
}

// openStore opens the local account store with an up-to-date schema.
func openStore() (*store.Store, error) {
	s, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// newGraphClient builds a Graph API client from [graph].
func newGraphClient() *graph.Client {
	return graph.NewClient(
		graph.WithLogger(logger),
		graph.WithBaseURL(cfg.Graph.BaseURL),
		graph.WithVersion(cfg.Graph.Version),
		graph.WithRateLimiter(graph.NewRateLimiter(float64(cfg.Graph.RateLimitQPS))),
	)
}

// openLocalService opens the store and wires it to the Graph API. The
// caller closes the returned store.
func openLocalService() (*service.Service, *store.Store, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	svc := service.New(st, newGraphClient(),
		service.WithLogger(logger),
		service.WithLocation(loc),
		service.WithMaxLeads(cfg.Leads.MaxLeads),
		service.WithSaver(export.DiskSaver{Dir: cfg.Leads.DownloadDir}),
	)
	return svc, st, nil
}

// newSession creates a session configured from [leads]. A nil logger
// discards.
func newSession(backend session.Backend, l *slog.Logger) (*session.Session, error) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	filter, err := cfg.DefaultFilter()
	if err != nil {
		return nil, err
	}
	format, err := cfg.DefaultFormat()
	if err != nil {
		return nil, err
	}
	return session.New(backend, export.DiskSaver{Dir: cfg.Leads.DownloadDir},
		session.WithLogger(l),
		session.WithLocation(loc),
		session.WithMaxLeads(cfg.Leads.MaxLeads),
		session.WithPageSize(cfg.Leads.PageSize),
		session.WithFormat(format),
		session.WithFilter(filter),
	), nil
}
