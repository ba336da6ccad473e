package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/leadvault/internal/api"
	"github.com/wesm/leadvault/internal/config"
	"github.com/wesm/leadvault/internal/export"
	"github.com/wesm/leadvault/internal/leads"
	"github.com/wesm/leadvault/internal/scheduler"
	"github.com/wesm/leadvault/internal/service"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lead server with scheduled exports",
	Long: `Run leadvault as a long-running lead server.

The server runs in the foreground and provides:
  - The HTTP API the dashboard uses in remote mode (default port: 8080)
  - Scheduled exports of yesterday's leads for configured forms

Page tokens come from the local account store (see 'add-account').

Configure scheduled exports in config.toml:
  [[schedules]]
  name = "spring-signup"
  account_id = "act_123"
  page_id = "1234567890"
  form_id = "987654321"
  schedule = "30 6 * * *"   # 06:30 daily in [leads] timezone
  format = "excel"
  enabled = true

Cron format: minute hour day-of-month month day-of-week

Use Ctrl+C to stop the server gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	// Validate security posture before doing any work
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	svc, s, err := openLocalService()
	if err != nil {
		return err
	}
	defer s.Close()

	var sched *scheduler.Scheduler
	if jobs := cfg.ScheduledExports(); len(jobs) > 0 {
		sched = scheduler.New(scheduledExport(svc), svc.Location()).WithLogger(logger)
		count, errs := sched.AddJobsFromConfig(cfg)
		for _, err := range errs {
			logger.Error("failed to schedule export", "error", err)
		}
		if count == 0 {
			return fmt.Errorf("none of the %d configured exports could be scheduled", len(jobs))
		}
		sched.Start()
	}

	// A nil *Scheduler must not become a non-nil interface.
	var apiSched api.ExportScheduler
	if sched != nil {
		apiSched = sched
	}
	apiServer := api.NewServer(cfg, svc, apiSched, logger)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "leadvault server started\n")
	fmt.Fprintf(out, "  API server: http://%s\n", net.JoinHostPort(cfg.Server.BindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Fprintf(out, "  Data directory: %s\n", cfg.Data.DataDir)
	if sched != nil {
		for _, status := range sched.Status() {
			fmt.Fprintf(out, "  %s: next export at %s\n", status.Name, status.NextRun.In(svc.Location()).Format("2006-01-02 15:04:05"))
		}
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Press Ctrl+C to stop.")

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}
		return nil
	})
	err = g.Wait()

	if sched != nil {
		fmt.Fprintln(out, "Waiting for running exports to complete...")
		select {
		case <-sched.Stop().Done():
		case <-time.After(30 * time.Second):
			fmt.Fprintln(out, "Shutdown timed out after 30 seconds.")
		}
	}
	fmt.Fprintln(out, "Shutdown complete.")
	return err
}

// scheduledExport returns the scheduler callback that exports yesterday's
// leads for one configured job.
func scheduledExport(svc *service.Service) scheduler.ExportFunc {
	return func(ctx context.Context, job config.ExportSchedule) error {
		format, err := jobFormat(job)
		if err != nil {
			return err
		}
		res, err := svc.ExportYesterday(ctx, service.ExportJob{
			Name:      job.Name,
			AccountID: job.AccountID,
			PageID:    job.PageID,
			FormID:    job.FormID,
			Format:    format,
		})
		if err != nil {
			return err
		}
		logger.Info("scheduled export finished", "job", job.Name, "summary", export.FormatResult(*res))
		return nil
	}
}

func jobFormat(job config.ExportSchedule) (leads.Format, error) {
	if job.Format != "" {
		return leads.ParseFormat(job.Format)
	}
	return cfg.DefaultFormat()
}
