package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/pipeline"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	errColor  = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.FgCyan)
)

// printResults writes one summary block per processed table.
func printResults(w io.Writer, results []*pipeline.TableResult) {
	var total model.RunStats
	var costUSD float64
	for _, r := range results {
		printResult(w, r)
		total.Enriched += r.Stats.Enriched
		total.Failed += r.Stats.Failed
		total.Added += r.Stats.Added
		total.InputTokens += r.Stats.InputTokens
		total.OutputTokens += r.Stats.OutputTokens
		costUSD += r.Stats.CostUSD
	}
	if len(results) > 1 {
		_, _ = fmt.Fprintf(w, "\n%d tables: %d enriched, %d failed, %d join rows added, %d/%d tokens, $%.4f\n",
			len(results), total.Enriched, total.Failed, total.Added, total.InputTokens, total.OutputTokens, costUSD)
	}
}

func printResult(w io.Writer, r *pipeline.TableResult) {
	s := r.Stats
	label := r.Table
	if r.DryRun {
		label += " (dry run)"
	}
	switch {
	case s.Failed > 0:
		_, _ = warnColor.Fprintf(w, "! %s\n", label)
	default:
		_, _ = okColor.Fprintf(w, "✓ %s\n", label)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if r.Kind == model.RunKindReconcile {
		_, _ = fmt.Fprintf(tw, "  join rows:\t%d existing, %d added\n", s.Loaded, s.Added)
		if s.Stubbed > 0 {
			_, _ = fmt.Fprintf(tw, "  new children:\t%d\n", s.Stubbed)
		}
	} else {
		_, _ = fmt.Fprintf(tw, "  records:\t%d loaded, %d dropped, %d stubbed\n", s.Loaded, s.Dropped, s.Stubbed)
		_, _ = fmt.Fprintf(tw, "  gate:\t%d complete, %d incomplete\n", r.Gate.Complete, r.Gate.Incomplete)
		if !r.DryRun {
			_, _ = fmt.Fprintf(tw, "  enriched:\t%d ok, %d failed, %d warnings\n", s.Enriched, s.Failed, s.Warnings)
			_, _ = fmt.Fprintf(tw, "  usage:\t%d in / %d out tokens, $%.4f\n", s.InputTokens, s.OutputTokens, s.CostUSD)
		}
	}
	if s.BackupPath != "" {
		_, _ = fmt.Fprintf(tw, "  backup:\t%s\n", s.BackupPath)
	}
	_ = tw.Flush()

	if r.DryRun && len(r.Gate.Missing) > 0 {
		_, _ = dimColor.Fprintf(w, "  missing: %s\n", formatMissing(r.Gate.Missing))
	}
}

// formatMissing renders per-field missing counts, most missing first.
func formatMissing(missing map[string]int) string {
	fields := make([]string, 0, len(missing))
	for f := range missing {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		if missing[fields[i]] != missing[fields[j]] {
			return missing[fields[i]] > missing[fields[j]]
		}
		return fields[i] < fields[j]
	})
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s=%d", f, missing[f])
	}
	return strings.Join(parts, ", ")
}

// statusColor picks the color for a run status.
func statusColor(status model.RunStatus) *color.Color {
	switch status {
	case model.RunStatusComplete:
		return okColor
	case model.RunStatusFailed:
		return errColor
	default:
		return warnColor
	}
}
