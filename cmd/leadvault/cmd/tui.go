package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/wesm/leadvault/internal/tui"
)

var tuiLogFile string

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive lead dashboard",
	Long: `Open the interactive terminal dashboard for browsing and downloading leads.

Pick an ad account, a page, and a lead form. Leads load for the active
time filter and can be paged through and downloaded as Excel or CSV.

Navigation:
  Tab/Shift+Tab  Switch between accounts, pages, forms, and leads
  ↑/k, ↓/j       Move up/down
  Enter          Select item / show lead details
  ←/h, →/l       Previous/next page of leads

Leads:
  f              Cycle time filter (Today, Yesterday, All Time, Custom)
  c              Enter a custom date range
  x              Toggle download format (Excel/CSV)
  d              Download the current leads
  y              Download yesterday's leads
  r              Reload
  ?              Help
  q              Quit

With [remote] url set, the dashboard talks to a leadvault server.
Otherwise it calls the Graph API with the tokens in the local account
store (see 'add-account').`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
			return fmt.Errorf("tui requires a terminal; use 'leads' or 'download' for scripted use")
		}

		// The dashboard owns the screen, so logs go to a file or nowhere.
		tuiLogger := slog.New(slog.NewTextHandler(io.Discard, nil))
		if tuiLogFile != "" {
			f, err := os.OpenFile(tuiLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			tuiLogger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
		}

		backend, release, err := openBackend()
		if err != nil {
			return err
		}
		defer release()

		sess, err := newSession(backend, tuiLogger)
		if err != nil {
			return err
		}

		model := tui.New(cmd.Context(), sess, tui.Options{Version: Version, Logger: tuiLogger})
		p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().StringVar(&tuiLogFile, "log-file", "", "write logs to this file while the dashboard is open")
}
