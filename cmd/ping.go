package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catalog-enricher/internal/pipeline"
)

const pingPrompt = `Reply with the JSON object {"status": "ok"} and nothing else.`

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check connectivity to the primary and fallback models",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		models := []string{cfg.Anthropic.PrimaryModel}
		if cfg.Anthropic.FallbackModel != "" && cfg.Anthropic.FallbackModel != cfg.Anthropic.PrimaryModel {
			models = append(models, cfg.Anthropic.FallbackModel)
		}
		return pingModels(cmd.Context(), newGenerator(cfg), models, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

// pingModels sends one tiny request per model and reports latency. It fails
// if any model does not answer with a parseable JSON object.
func pingModels(ctx context.Context, gen pipeline.Generator, models []string, w io.Writer) error {
	var failed []string
	for _, m := range models {
		start := time.Now()
		out, err := gen.Generate(ctx, pipeline.GenerateRequest{
			Prompt:    pingPrompt,
			Model:     m,
			MaxTokens: 32,
		})
		if err == nil {
			_, err = pipeline.ExtractJSON(out.Text)
		}
		elapsed := time.Since(start).Round(time.Millisecond)
		if err != nil {
			failed = append(failed, m)
			_, _ = errColor.Fprintf(w, "✗ %s", m)
			_, _ = fmt.Fprintf(w, "  %v\n", err)
			continue
		}
		_, _ = okColor.Fprintf(w, "✓ %s", m)
		_, _ = fmt.Fprintf(w, "  %s  %d/%d tokens\n", elapsed, out.Usage.Input, out.Usage.Output)
	}
	if len(failed) > 0 {
		return eris.Errorf("ping: no usable response from %s", strings.Join(failed, ", "))
	}
	return nil
}
