package cmd

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"github.com/wesm/leadvault/internal/config"
	"github.com/wesm/leadvault/internal/leads"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for first-run configuration",
	Long: `Interactive setup wizard to configure leadvault for first use.

This command asks for:
  1. The lead server URL and API key (leave the URL empty to call the
     Graph API directly with the local account store)
  2. The timezone used for "today" and "yesterday"
  3. Where downloads are saved and their default format

and writes them to config.toml.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupAnswers holds the wizard's fields.
type setupAnswers struct {
	RemoteURL   string
	APIKey      string
	Timezone    string
	DownloadDir string
	Format      string
}

func answersFromConfig(c *config.Config) setupAnswers {
	return setupAnswers{
		RemoteURL:   c.Remote.URL,
		APIKey:      c.Remote.APIKey,
		Timezone:    c.Leads.Timezone,
		DownloadDir: c.Leads.DownloadDir,
		Format:      c.Leads.Format,
	}
}

// applySetup validates a and copies it into c.
func applySetup(c *config.Config, a setupAnswers) error {
	if err := validateRemoteURL(a.RemoteURL); err != nil {
		return err
	}
	tz := strings.TrimSpace(a.Timezone)
	if tz == "" {
		tz = leads.DefaultTimezone
	}
	if _, err := leads.LoadLocation(tz); err != nil {
		return err
	}
	format, err := leads.ParseFormat(a.Format)
	if err != nil {
		return err
	}
	dir := strings.TrimSpace(a.DownloadDir)
	if dir == "" {
		dir = "."
	}

	c.Remote.URL = strings.TrimRight(strings.TrimSpace(a.RemoteURL), "/")
	c.Remote.APIKey = strings.TrimSpace(a.APIKey)
	c.Leads.Timezone = tz
	c.Leads.DownloadDir = dir
	c.Leads.Format = string(format)
	return nil
}

func validateRemoteURL(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid server URL %q (want http(s)://host[:port]/api)", s)
	}
	return nil
}

func runSetup(cmd *cobra.Command, args []string) error {
	a := answersFromConfig(cfg)
	if a.Format == "" {
		a.Format = string(leads.FormatExcel)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Lead server URL").
				Description("Leave empty to call the Graph API directly.").
				Placeholder("http://127.0.0.1:8080/api").
				Value(&a.RemoteURL).
				Validate(validateRemoteURL),
			huh.NewInput().
				Title("Lead server API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Timezone").
				Description("Used for the today and yesterday filters.").
				Placeholder(leads.DefaultTimezone).
				Value(&a.Timezone).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := leads.LoadLocation(s)
					return err
				}),
			huh.NewInput().
				Title("Download directory").
				Placeholder(".").
				Value(&a.DownloadDir),
			huh.NewSelect[string]().
				Title("Download format").
				Options(
					huh.NewOption("Excel (.xlsx)", string(leads.FormatExcel)),
					huh.NewOption("CSV (.csv)", string(leads.FormatCSV)),
				).
				Value(&a.Format),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
			return nil
		}
		return err
	}

	if err := applySetup(cfg, a); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nConfiguration saved to %s\n\n", cfg.ConfigFilePath())
	fmt.Fprintln(out, "Setup complete! Next steps:")
	fmt.Fprintln(out)
	if cfg.Remote.URL == "" {
		fmt.Fprintln(out, "  1. Add an ad account:")
		fmt.Fprintln(out, "     leadvault add-account act_123 --token <user-access-token>")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  2. Open the dashboard:")
	} else {
		fmt.Fprintln(out, "  1. Open the dashboard:")
	}
	fmt.Fprintln(out, "     leadvault tui")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "For more help: leadvault --help")
	return nil
}
