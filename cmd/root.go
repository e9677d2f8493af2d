package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/config"
	"github.com/sells-group/catalog-enricher/internal/pipeline"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "catalog-enricher",
	Short: "Incremental enrichment of relational CSV tables",
	Long: "Fills missing fields of catalog tables (platforms, models, benchmarks, pricing, ...) with a generative model, " +
		"keeping populated values, references and join tables consistent.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err for the operator. Configuration problems get a
// distinct prefix since they abort before any table is touched.
func reportError(w io.Writer, err error) {
	if pipeline.IsConfigError(err) {
		errColor.Fprintf(w, "configuration error: %v\n", err) //nolint:errcheck
		return
	}
	errColor.Fprintf(w, "Error: %v\n", err) //nolint:errcheck
}
