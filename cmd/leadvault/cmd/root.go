package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/wesm/leadvault/internal/config"
)

var (
	cfgFile  string
	homeDir  string
	verbose  bool
	useLocal bool // Call the Graph API in-process instead of the configured lead server
	cfg      *config.Config
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "leadvault",
	Short: "Facebook lead form dashboard",
	Long: `leadvault browses Facebook lead-generation forms and downloads their
leads as Excel or CSV spreadsheets.

Pick an ad account, a page, and a form, choose a time filter, and page
through the leads in the terminal UI or from the command line. The
'serve' command runs the lead server the dashboard talks to, with
scheduled daily exports of yesterday's leads.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		if cmd.Name() == "version" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		// Load config (--home is passed through so it influences
		// where config.toml is loaded from, like LEADVAULT_HOME).
		var err error
		cfg, err = config.Load(cfgFile, homeDir)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if err := cfg.EnsureHomeDir(); err != nil {
			return fmt.Errorf("create data directory %s: %w", cfg.HomeDir, err)
		}
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.leadvault/config.toml)")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "home directory (overrides LEADVAULT_HOME)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&useLocal, "local", false, "call the Graph API directly with the local account store (ignore [remote] url)")
}
