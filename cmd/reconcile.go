package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enricher/internal/pipeline"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <join>",
	Short: "Append missing rows to one join table",
	Long:  "Derives parent/child pairs for the join and appends the ones not already present. Existing rows are never changed.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		// Reconciliation never calls the model, so no credentials are needed.
		cat, err := loadCatalog(cfg)
		if err != nil {
			return eris.Wrap(err, "load catalog")
		}
		var recorder pipeline.RunRecorder
		if !dryRun {
			runs, err := initStore(ctx, cfg)
			if err != nil {
				return eris.Wrap(err, "init run log")
			}
			if runs != nil {
				defer runs.Close() //nolint:errcheck
				recorder = runs
			}
		}
		proc := pipeline.New(cat, newTableStore(cfg), nil, nil, recorder)
		proc.DryRun = dryRun

		res, err := proc.ReconcileJoin(ctx, args[0])
		if res != nil {
			printResults(os.Stdout, []*pipeline.TableResult{res})
		}
		return eris.Wrapf(err, "reconcile %s", args[0])
	},
}

func init() {
	reconcileCmd.Flags().Bool("dry-run", false, "report how many rows would be added without writing")
	rootCmd.AddCommand(reconcileCmd)
}
