// Package config handles loading and managing leadvault configuration.
package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"github.com/wesm/leadvault/internal/fileutil"
	"github.com/wesm/leadvault/internal/leads"
)

// Config represents the leadvault configuration.
type Config struct {
	Remote    RemoteConfig     `toml:"remote"`
	Leads     LeadsConfig      `toml:"leads"`
	Data      DataConfig       `toml:"data"`
	Server    ServerConfig     `toml:"server"`
	Graph     GraphConfig      `toml:"graph"`
	Schedules []ExportSchedule `toml:"schedules"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	configPath string
}

// RemoteConfig points the dashboard at the lead endpoints.
type RemoteConfig struct {
	URL           string   `toml:"url"`            // Base URL of the lead API (default: http://127.0.0.1:8080/api)
	APIKey        string   `toml:"api_key"`        // Sent as X-API-Key
	AllowInsecure bool     `toml:"allow_insecure"` // Permit plain HTTP to non-loopback hosts
	Timeout       Duration `toml:"timeout"`        // Per-request timeout (default: 60s)
}

// LeadsConfig holds dashboard behavior.
type LeadsConfig struct {
	Timezone      string `toml:"timezone"`       // Zone for today/yesterday (default: Asia/Kolkata)
	MaxLeads      int    `toml:"max_leads"`      // Leads requested per fetch (default: 300)
	PageSize      int    `toml:"page_size"`      // Leads per page (default: 10)
	DefaultFilter string `toml:"default_filter"` // today, yesterday, all, or custom
	Format        string `toml:"format"`         // excel or csv
	DownloadDir   string `toml:"download_dir"`   // Where downloads are saved (default: .)
}

// DataConfig holds data storage configuration for the lead server.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort         int      `toml:"api_port"`         // HTTP server port (default: 8080)
	BindAddr        string   `toml:"bind_addr"`        // Listen address (default: 127.0.0.1)
	APIKey          string   `toml:"api_key"`          // API authentication key
	CORSOrigins     []string `toml:"cors_origins"`     // Allowed browser origins
	CORSCredentials bool     `toml:"cors_credentials"` // Allow credentialed CORS requests
	CORSMaxAge      int      `toml:"cors_max_age"`     // Preflight cache seconds
	AllowInsecure   bool     `toml:"allow_insecure"`   // Allow a non-loopback bind without an API key
}

// GraphConfig holds Facebook Graph API settings.
type GraphConfig struct {
	BaseURL      string `toml:"base_url"`       // Default: https://graph.facebook.com
	Version      string `toml:"version"`        // API version (default: v19.0)
	RateLimitQPS int    `toml:"rate_limit_qps"` // Outbound requests per second
}

// ExportSchedule defines a recurring "yesterday" export for one form.
type ExportSchedule struct {
	Name      string `toml:"name"`       // Unique job name
	AccountID string `toml:"account_id"` // Account the page belongs to
	PageID    string `toml:"page_id"`    // Page the form belongs to
	FormID    string `toml:"form_id"`    // Form to export
	Schedule  string `toml:"schedule"`   // Cron expression (e.g., "30 6 * * *" for 06:30 daily)
	Format    string `toml:"format"`     // excel or csv (default: [leads] format)
	Enabled   bool   `toml:"enabled"`    // Whether the job runs
}

// Duration is a time.Duration written as a Go duration string ("60s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultHome returns the default leadvault home directory.
// Respects LEADVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("LEADVAULT_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".leadvault"
	}
	return filepath.Join(home, ".leadvault")
}

// Load reads the configuration from the specified file.
// If path is empty, uses <home>/config.toml, where home is homeDir when set
// and DefaultHome otherwise.
func Load(path, homeDir string) (*Config, error) {
	if homeDir == "" {
		homeDir = DefaultHome()
	} else {
		homeDir = expandPath(homeDir)
	}

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}
	path = expandPath(path)

	cfg := defaults(homeDir)
	cfg.configPath = path

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Expand ~ in paths
	cfg.Data.DataDir = expandPath(cfg.Data.DataDir)
	cfg.Leads.DownloadDir = expandPath(cfg.Leads.DownloadDir)

	return cfg, nil
}

func defaults(homeDir string) *Config {
	return &Config{
		HomeDir: homeDir,
		Remote: RemoteConfig{
			URL:     "http://127.0.0.1:8080/api",
			Timeout: Duration{60 * time.Second},
		},
		Leads: LeadsConfig{
			Timezone:      leads.DefaultTimezone,
			MaxLeads:      leads.DefaultMaxLeads,
			PageSize:      leads.DefaultPageSize,
			DefaultFilter: string(leads.FilterToday),
			Format:        string(leads.FormatExcel),
			DownloadDir:   ".",
		},
		Data: DataConfig{
			DataDir: homeDir,
		},
		Server: ServerConfig{
			APIPort:  8080,
			BindAddr: "127.0.0.1",
		},
		Graph: GraphConfig{
			BaseURL:      "https://graph.facebook.com",
			Version:      "v19.0",
			RateLimitQPS: 10,
		},
		Schedules: []ExportSchedule{},
	}
}

// ConfigFilePath returns the file Load read (or would have read).
func (c *Config) ConfigFilePath() string {
	if c.configPath != "" {
		return c.configPath
	}
	return filepath.Join(c.HomeDir, "config.toml")
}

// EnsureHomeDir creates the home directory with owner-only permissions.
func (c *Config) EnsureHomeDir() error {
	return fileutil.SecureMkdirAll(c.HomeDir, 0700)
}

// Save writes the configuration to ConfigFilePath. The file holds API keys,
// so it is written owner-only.
func (c *Config) Save() error {
	path := c.ConfigFilePath()
	if err := fileutil.SecureMkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := fileutil.SecureWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// DatabasePath returns the path to the SQLite account store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Data.DataDir, "leadvault.db")
}

// Location resolves [leads] timezone.
func (c *Config) Location() (*time.Location, error) {
	return leads.LoadLocation(c.Leads.Timezone)
}

// DefaultFilter parses [leads] default_filter.
func (c *Config) DefaultFilter() (leads.TimeFilter, error) {
	return leads.ParseTimeFilter(c.Leads.DefaultFilter)
}

// DefaultFormat parses [leads] format.
func (c *Config) DefaultFormat() (leads.Format, error) {
	return leads.ParseFormat(c.Leads.Format)
}

// ScheduledExports returns schedules that are enabled and have a cron
// expression.
func (c *Config) ScheduledExports() []ExportSchedule {
	var scheduled []ExportSchedule
	for _, s := range c.Schedules {
		if s.Enabled && s.Schedule != "" {
			scheduled = append(scheduled, s)
		}
	}
	return scheduled
}

// GetSchedule returns the named schedule, or nil.
func (c *Config) GetSchedule(name string) *ExportSchedule {
	for i := range c.Schedules {
		if c.Schedules[i].Name == name {
			return &c.Schedules[i]
		}
	}
	return nil
}

// Validate checks values Load cannot: zone names, enums, ranges, and
// cron expressions.
func (c *Config) Validate() error {
	var problems []string
	if _, err := c.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("[leads] timezone: %v", err))
	}
	if _, err := c.DefaultFilter(); err != nil {
		problems = append(problems, fmt.Sprintf("[leads] default_filter: %v", err))
	}
	if _, err := c.DefaultFormat(); err != nil {
		problems = append(problems, fmt.Sprintf("[leads] format: %v", err))
	}
	if c.Leads.MaxLeads <= 0 {
		problems = append(problems, "[leads] max_leads must be positive")
	}
	if c.Leads.PageSize <= 0 {
		problems = append(problems, "[leads] page_size must be positive")
	}
	if c.Server.APIPort < 0 || c.Server.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("[server] api_port %d out of range", c.Server.APIPort))
	}

	seen := make(map[string]bool)
	for i, s := range c.Schedules {
		where := fmt.Sprintf("[[schedules]] #%d", i+1)
		if s.Name == "" {
			problems = append(problems, where+": name is required")
		} else if seen[s.Name] {
			problems = append(problems, fmt.Sprintf("%s: duplicate name %q", where, s.Name))
		}
		seen[s.Name] = true
		if s.AccountID == "" || s.PageID == "" || s.FormID == "" {
			problems = append(problems, where+": account_id, page_id, and form_id are required")
		}
		if s.Format != "" {
			if _, err := leads.ParseFormat(s.Format); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", where, err))
			}
		}
		if s.Enabled {
			if _, err := cron.ParseStandard(s.Schedule); err != nil {
				problems = append(problems, fmt.Sprintf("%s: invalid schedule %q: %v", where, s.Schedule, err))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}
	return nil
}

// ValidateSecure refuses to expose the API beyond loopback without an API
// key unless allow_insecure is set.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey != "" || s.AllowInsecure || IsLoopback(s.BindAddr) {
		return nil
	}
	return fmt.Errorf("refusing to bind to %s without an API key\n\n"+
		"Options:\n"+
		"  1. Set [server] api_key in config.toml\n"+
		"  2. Bind to loopback: [server] bind_addr = \"127.0.0.1\"\n"+
		"  3. For trusted networks: add 'allow_insecure = true' to [server]", s.BindAddr)
}

// IsLoopback reports whether addr is empty, "localhost", or a loopback IP.
func IsLoopback(addr string) bool {
	if addr == "" || addr == "localhost" {
		return true
	}
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsLoopback()
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
