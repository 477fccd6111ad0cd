package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"surveysync/internal/cache"
	"surveysync/internal/components/telemetry"
	"surveysync/internal/config"
	"surveysync/internal/coordinator"
	"surveysync/internal/history"
	libtelemetry "surveysync/lib/telemetry"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(fetchCmd)
}

var fetchCmd = &cobra.Command{
	Use:   "fetch [--cache-dir <dir>] [--concurrency <n>] [--cooldown <duration>]",
	Short: "Fetches every survey response that is not cached yet.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		otel, err := libtelemetry.Setup(ctx, serviceName, cfg.Telemetry)
		if err != nil {
			slog.Warn("failed to set up telemetry export, continuing without it", "err", err.Error())
		}
		defer func() {
			// the run context may already be cancelled, flushing gets its own deadline
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err := otel.Shutdown(shutdownCtx)
			if err != nil {
				slog.Warn("failed to flush telemetry", "err", err.Error())
			}
		}()

		tel := telemetry.SlogAPI{}

		store, err := cache.NewStore(cfg.CacheDir, tel)
		if err != nil {
			return err
		}
		client, clientOpts, err := newClient(cfg, tel)
		if err != nil {
			return err
		}
		opts, err := cfg.CoordinatorOptions()
		if err != nil {
			return err
		}

		slog.Info(
			"fetching survey responses",
			"survey_id", clientOpts.SurveyId,
			"cache_dir", store.Dir(),
			"concurrency", opts.Concurrency,
			"cooldown", opts.Cooldown.String(),
		)

		start := time.Now()
		report, err := coordinator.New(client, client, store, opts, tel).Run(ctx)
		elapsed := time.Since(start)
		logReport(report, elapsed)
		recordRun(cfg, history.RunFromReport(clientOpts.SurveyId, start, elapsed, report))
		return err
	},
}

// recordRun saves the run to the history database, failing to do so does
// not change the outcome of the run.
func recordRun(cfg config.Config, run history.Run) {
	if !cfg.HistoryEnabled() {
		return
	}
	h, err := history.Open(cfg.History)
	if err != nil {
		slog.Warn("failed to open run history", "path", cfg.History, "err", err.Error())
		return
	}
	defer h.Close()

	// the run context is likely cancelled if the run was interrupted
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = h.Record(ctx, run)
	if err != nil {
		slog.Warn("failed to record run", "path", cfg.History, "err", err.Error())
	}
}

func logReport(report coordinator.Report, elapsed time.Duration) {
	attrs := []any{
		"listed", report.Listed,
		"skipped", report.Skipped,
		"fetched", report.Fetched,
		"failed", report.Failed,
		"not_started", report.NotStarted,
		"seconds", elapsed.Seconds(),
	}
	if report.Failure == nil {
		slog.Info("all responses cached", attrs...)
		return
	}

	var fetchErr *coordinator.FetchError
	if errors.As(report.Failure, &fetchErr) {
		attrs = append(attrs, "response_id", fetchErr.Id, "status", statusText(fetchErr))
	}
	slog.Error("stopped early, run again to resume", attrs...)
}

func statusText(err *coordinator.FetchError) string {
	if err.StatusCode == 0 {
		return "no response"
	}
	return fmt.Sprint(err.StatusCode)
}
