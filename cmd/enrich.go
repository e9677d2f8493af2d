package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/pipeline"
)

var enrichCmd = &cobra.Command{
	Use:   "enrich <table>",
	Short: "Enrich one entity table",
	Long: "Validates references, synthesizes stub records when the table is empty, and fills missing fields of " +
		"incomplete records. With --joins, every join table touching this table is reconciled afterwards.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		joins, _ := cmd.Flags().GetBool("joins")

		proc, cleanup, err := newProcessor(ctx, cfg, dryRun)
		if err != nil {
			return err
		}
		defer cleanup()

		var results []*pipeline.TableResult
		if joins {
			results, err = proc.ProcessWithJoins(ctx, args[0])
		} else {
			var res *pipeline.TableResult
			res, err = proc.ProcessTable(ctx, args[0])
			if res != nil {
				results = append(results, res)
			}
		}
		printResults(os.Stdout, results)
		if err != nil {
			zap.L().Error("enrich failed", zap.String("table", args[0]), zap.Error(err))
			return eris.Wrapf(err, "enrich %s", args[0])
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().Bool("joins", false, "reconcile the join tables of this table afterwards")
	enrichCmd.Flags().Bool("dry-run", false, "report the completeness gate without calling the model or writing files")
	rootCmd.AddCommand(enrichCmd)
}
