package commands

import (
	"fmt"
	"surveysync/internal/cache"
	"surveysync/internal/components/telemetry"
	"surveysync/internal/history"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	statusRemote bool
	statusRuns   int
)

func init() {
	statusCmd.Flags().BoolVarP(&statusRemote, "remote", "r", false, "Also lists the survey and counts the responses that are not cached yet.")
	statusCmd.Flags().IntVar(&statusRuns, "runs", 5, "The amount of previous runs to show, 0 hides them.")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status [--remote] [--runs <n>]",
	Short: "Shows the cached survey responses.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		tel := telemetry.SlogAPI{}

		store, err := cache.NewStore(cfg.CacheDir, tel)
		if err != nil {
			return err
		}
		entries, err := store.Entries()
		if err != nil {
			return fmt.Errorf("read cache: %w", err)
		}
		renderEntries(entries)

		if statusRuns > 0 && cfg.HistoryEnabled() {
			h, err := history.Open(cfg.History)
			if err != nil {
				return fmt.Errorf("open run history: %w", err)
			}
			runs, err := h.Recent(cmd.Context(), cfg.Mailchimp.SurveyId, statusRuns)
			h.Close()
			if err != nil {
				return fmt.Errorf("read run history: %w", err)
			}
			renderRuns(runs)
		}

		if !statusRemote {
			return nil
		}

		client, clientOpts, err := newClient(cfg, tel)
		if err != nil {
			return err
		}
		ids, err := client.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list survey responses: %w", err)
		}
		renderRemote(clientOpts.SurveyId, ids, entries)
		return nil
	},
}

func renderEntries(entries []cache.Entry) {
	t := newTable()
	t.SetTitle("Cached responses")
	t.AppendHeader(table.Row{"Response", "Size", "Modified"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Size", Align: text.AlignRight},
	})

	var total int64
	for _, e := range entries {
		t.AppendRow(table.Row{e.Id, formatSize(e.Size), e.ModTime.Format(time.DateTime)})
		total += e.Size
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d responses", len(entries)), formatSize(total), ""})
	t.Render()
}

func renderRuns(runs []history.Run) {
	t := newTable()
	t.SetTitle("Previous runs")
	t.AppendHeader(table.Row{"Started", "Duration", "Listed", "Skipped", "Fetched", "Failed", "Not started", "Result"})
	for _, r := range runs {
		result := "ok"
		if r.Failure != "" {
			result = text.WrapSoft(r.Failure, 48)
		}
		t.AppendRow(table.Row{
			r.StartedAt.Format(time.DateTime),
			r.Duration.Round(time.Millisecond).String(),
			r.Listed,
			r.Skipped,
			r.Fetched,
			r.Failed,
			r.NotStarted,
			result,
		})
	}
	t.Render()
}

// missingIds returns the listed ids that have no cache entry, in listing order.
func missingIds(listed []string, entries []cache.Entry) []string {
	cached := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		cached[e.Id] = struct{}{}
	}
	var missing []string
	for _, id := range listed {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func renderRemote(surveyId string, listed []string, entries []cache.Entry) {
	missing := missingIds(listed, entries)

	t := newTable()
	t.SetTitle(fmt.Sprintf("Survey %s", surveyId))
	t.AppendRows([]table.Row{
		{"Listed", len(listed)},
		{"Cached", len(listed) - len(missing)},
		{"Missing", len(missing)},
	})
	t.Render()
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
