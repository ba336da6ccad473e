package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/wesm/leadvault/internal/export"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/session"
)

var (
	downloadSel    selection
	downloadFormat string
	downloadDir    string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download a form's leads as a spreadsheet",
	Long: `Fetch the leads of a form for a time filter and save them as an Excel
or CSV spreadsheet named leads_<form>_<filter>_<date>.<ext>.

Examples:
  leadvault download --page 1234567890 --form 987654321
  leadvault download --page 1234567890 --form 987654321 --filter all --format csv
  leadvault download --page 1234567890 --form 987654321 --start 2024-03-01 --end 2024-03-07 --dir ~/Downloads`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := cfg.DefaultFilter()
		if err != nil {
			return err
		}
		return runDownload(cmd, &downloadSel, def, false)
	},
}

var (
	yesterdaySel    selection
	yesterdayFormat string
	yesterdayDir    string
)

var downloadYesterdayCmd = &cobra.Command{
	Use:   "download-yesterday",
	Short: "Download the leads a form received yesterday",
	Long: `Save the leads a form received yesterday, in the configured timezone,
as a spreadsheet named leads_<form>_<MM-DD-YYYY>.<ext>.

Examples:
  leadvault download-yesterday --page 1234567890 --form 987654321
  leadvault download-yesterday --page 1234567890 --form 987654321 --format csv`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDownload(cmd, &yesterdaySel, leads.FilterYesterday, true)
	},
}

func runDownload(cmd *cobra.Command, sel *selection, def leads.TimeFilter, yesterday bool) error {
	formatFlag, dirFlag := downloadFormat, downloadDir
	if yesterday {
		formatFlag, dirFlag = yesterdayFormat, yesterdayDir
	}

	var format leads.Format
	if formatFlag != "" {
		f, err := leads.ParseFormat(formatFlag)
		if err != nil {
			return err
		}
		format = f
	}
	if dirFlag != "" {
		cfg.Leads.DownloadDir = dirFlag
	}

	sess, release, err := openSession()
	if err != nil {
		return err
	}
	defer release()

	ctx := cmd.Context()
	progress := newStepProgress(cmd.ErrOrStderr())

	progress.Step("Fetching leads")
	if err := sel.selectForm(ctx, sess, def); err != nil {
		progress.Done()
		return err
	}
	progress.Step("Exporting leads")
	var dl session.Download
	if yesterday {
		dl, err = sess.DownloadYesterdayLeads(ctx, format)
	} else {
		dl, err = sess.DownloadLeads(ctx, format)
	}
	progress.Done()
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	res := export.Result{Count: dl.Count, Path: dl.Path}
	if info, err := os.Stat(dl.Path); err == nil {
		res.Size = info.Size()
	}
	fmt.Fprintln(cmd.OutOrStdout(), export.FormatResult(res))
	return nil
}

// stepProgress prints a single overwriting status line when w is a
// terminal and nothing otherwise.
type stepProgress struct {
	w       io.Writer
	enabled bool
	started time.Time
	width   int
}

func newStepProgress(w io.Writer) *stepProgress {
	p := &stepProgress{w: w, started: time.Now()}
	if f, ok := w.(*os.File); ok {
		p.enabled = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return p
}

func (p *stepProgress) Step(msg string) {
	if !p.enabled {
		return
	}
	line := fmt.Sprintf("  %s... (%s)", msg, time.Since(p.started).Round(time.Millisecond))
	pad := p.width - len(line)
	p.width = len(line)
	if pad < 0 {
		pad = 0
	}
	fmt.Fprintf(p.w, "\r%s%*s", line, pad, "")
}

// Done clears the status line.
func (p *stepProgress) Done() {
	if !p.enabled || p.width == 0 {
		return
	}
	fmt.Fprintf(p.w, "\r%*s\r", p.width, "")
	p.width = 0
}

func init() {
	downloadSel.bind(downloadCmd, true)
	downloadCmd.Flags().StringVar(&downloadFormat, "format", "", "spreadsheet format: excel or csv (default from config)")
	downloadCmd.Flags().StringVar(&downloadDir, "dir", "", "directory to save into (default from config)")

	yesterdaySel.bind(downloadYesterdayCmd, false)
	downloadYesterdayCmd.Flags().StringVar(&yesterdaySel.form, "form", "", "lead form ID")
	downloadYesterdayCmd.Flags().StringVar(&yesterdayFormat, "format", "", "spreadsheet format: excel or csv (default from config)")
	downloadYesterdayCmd.Flags().StringVar(&yesterdayDir, "dir", "", "directory to save into (default from config)")

	rootCmd.AddCommand(downloadCmd, downloadYesterdayCmd)
}
