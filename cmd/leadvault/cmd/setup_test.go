package cmd

import (
	"os"
	"runtime"
	"testing"

	"github.com/wesm/leadvault/internal/config"
	"github.com/wesm/leadvault/internal/leads"
)

func TestApplySetup(t *testing.T) {
	home := t.TempDir()
	c := loadTestConfig(t, home, "")

	err := applySetup(c, setupAnswers{
		RemoteURL:   " https://leads.example.com/api/ ",
		APIKey:      "secret",
		Timezone:    "",
		DownloadDir: "",
		Format:      "xlsx",
	})
	if err != nil {
		t.Fatalf("applySetup: %v", err)
	}
	if c.Remote.URL != "https://leads.example.com/api" {
		t.Errorf("Remote.URL = %q", c.Remote.URL)
	}
	if c.Leads.Timezone != leads.DefaultTimezone || c.Leads.DownloadDir != "." || c.Leads.Format != "excel" {
		t.Errorf("leads = %+v", c.Leads)
	}

	// Saved config round-trips and stays owner-only.
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(c.ConfigFilePath())
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0077 != 0 {
		t.Errorf("config perm = %04o, want no group/other access", info.Mode().Perm())
	}
	reloaded, err := config.Load("", home)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Remote.APIKey != "secret" || reloaded.Remote.URL != c.Remote.URL {
		t.Errorf("reloaded remote = %+v", reloaded.Remote)
	}
}

func TestApplySetup_EmptyURLIsLocal(t *testing.T) {
	c := loadTestConfig(t, t.TempDir(), "")
	if err := applySetup(c, setupAnswers{Format: "csv"}); err != nil {
		t.Fatalf("applySetup: %v", err)
	}
	if c.Remote.URL != "" {
		t.Errorf("Remote.URL = %q, want empty", c.Remote.URL)
	}
}

func TestApplySetup_Rejects(t *testing.T) {
	tests := []struct {
		name string
		a    setupAnswers
	}{
		{"bad scheme", setupAnswers{RemoteURL: "ftp://host/api", Format: "csv"}},
		{"no host", setupAnswers{RemoteURL: "http:///api", Format: "csv"}},
		{"bad timezone", setupAnswers{Timezone: "Nowhere/City", Format: "csv"}},
		{"bad format", setupAnswers{Format: "pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := loadTestConfig(t, t.TempDir(), "")
			before := c.Leads
			if err := applySetup(c, tt.a); err == nil {
				t.Fatal("expected error")
			}
			if c.Leads != before {
				t.Errorf("config changed on error: %+v", c.Leads)
			}
		})
	}
}
