package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/monitoring"
	"github.com/sells-group/catalog-enricher/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded table runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunLog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		table, _ := cmd.Flags().GetString("table")
		kind, _ := cmd.Flags().GetString("kind")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Table:  table,
			Kind:   model.RunKind(kind),
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := openRunLog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent runs and evaluate alert thresholds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunLog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hours, _ := cmd.Flags().GetInt("since")
		notify, _ := cmd.Flags().GetBool("notify")

		snap, err := monitoring.NewCollector(st).Collect(ctx, hours)
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerts := alerter.Evaluate(snap)
		formatStats(os.Stdout, snap, alerts)
		if notify {
			alerter.SendAlerts(ctx, alerts)
		}
		return nil
	},
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List records whose enrichment was exhausted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openRunLog(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runID, _ := cmd.Flags().GetString("run")
		table, _ := cmd.Flags().GetString("table")
		errType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		failures, err := st.ListFailures(ctx, store.FailureFilter{
			RunID:     runID,
			Table:     table,
			ErrorType: errType,
			Limit:     limit,
		})
		if err != nil {
			return eris.Wrap(err, "failures list")
		}
		if len(failures) == 0 {
			fmt.Fprintln(os.Stderr, "No failures found.")
			return nil
		}
		formatFailures(os.Stdout, failures)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("table", "", "filter by table name")
	runsCmd.Flags().String("kind", "", "filter by run kind (enrich, reconcile)")
	runsCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsCmd.Flags().Int("limit", 50, "max number of runs to display")

	failuresCmd.Flags().String("run", "", "filter by run ID")
	failuresCmd.Flags().String("table", "", "filter by table name")
	failuresCmd.Flags().String("type", "", "filter by error type (transient, permanent)")
	failuresCmd.Flags().Int("limit", 50, "max number of failures to display")

	runsStatsCmd.Flags().Int("since", 24, "lookback window in hours")
	runsStatsCmd.Flags().Bool("notify", false, "send triggered alerts to monitoring.webhook_url")

	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(failuresCmd)
}

// openRunLog opens the configured run log and fails when it is disabled.
func openRunLog(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx, cfg)
	if err != nil {
		return nil, eris.Wrap(err, "init run log")
	}
	if st == nil {
		return nil, eris.New("run log is disabled (store.driver = none)")
	}
	return st, nil
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTABLE\tKIND\tSTATUS\tENRICHED\tFAILED\tADDED\tCOST\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t----\t------\t--------\t------\t-----\t----\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t$%.4f\t%s\t%s\n",
			truncateID(r.ID),
			r.Table,
			r.Kind,
			statusColor(r.Status).Sprint(r.Status),
			r.Stats.Enriched,
			r.Stats.Failed,
			r.Stats.Added,
			r.Stats.CostUSD,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatStats writes a run-log summary followed by any triggered alerts.
func formatStats(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Runs:\t%d (%d complete, %d failed, %d running)\n",
		snap.RunsTotal, snap.RunsComplete, snap.RunsFailed, snap.RunsRunning)
	_, _ = fmt.Fprintf(w, "Run failure rate:\t%.1f%%\n", snap.RunFailRate*100)
	_, _ = fmt.Fprintf(w, "Records:\t%d enriched, %d failed (%d transient, %d permanent)\n",
		snap.RecordsEnriched, snap.RecordsFailed, snap.TransientFailure, snap.PermanentFailure)
	_, _ = fmt.Fprintf(w, "Record failure rate:\t%.1f%%\n", snap.RecordFailRate*100)
	_, _ = fmt.Fprintf(w, "Join rows added:\t%d\n", snap.JoinRowsAdded)
	_, _ = fmt.Fprintf(w, "Tokens:\t%d in / %d out\n", snap.InputTokens, snap.OutputTokens)
	_, _ = fmt.Fprintf(w, "Cost:\t$%.4f\n", snap.CostUSD)
	_ = w.Flush()

	if len(alerts) == 0 {
		okColor.Fprintln(out, "No alerts.") //nolint:errcheck
		return
	}
	for _, a := range alerts {
		errColor.Fprintf(out, "[%s] %s\n", a.Severity, a.Message) //nolint:errcheck
	}
}

// formatFailures writes a tabular list of record failures to w.
func formatFailures(out io.Writer, failures []model.RecordFailure) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tTABLE\tRECORD\tTYPE\tATTEMPTS\tERROR")
	_, _ = fmt.Fprintln(w, "---\t-----\t------\t----\t--------\t-----")
	for _, f := range failures {
		msg := f.Error
		if len(msg) > 80 {
			msg = msg[:77] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			truncateID(f.RunID), f.Table, f.RecordID, f.ErrorType, f.Attempts, msg)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
