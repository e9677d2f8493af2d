package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enrich every table parent-first, then reconcile all joins",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dryRun, _ := cmd.Flags().GetBool("dry-run")

		proc, cleanup, err := newProcessor(ctx, cfg, dryRun)
		if err != nil {
			return err
		}
		defer cleanup()

		results, err := proc.RunAll(ctx)
		printResults(os.Stdout, results)
		if err != nil {
			zap.L().Error("run stopped", zap.Int("tables_done", len(results)), zap.Error(err))
			return eris.Wrap(err, "run")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "report the completeness gate of every table without calling the model or writing files")
	rootCmd.AddCommand(runCmd)
}
