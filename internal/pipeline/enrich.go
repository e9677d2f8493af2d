package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/cost"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/resilience"
	"github.com/sells-group/catalog-enricher/pkg/anthropic"
)

// GenerateRequest is one call to the generation service.
type GenerateRequest struct {
	System      string
	Prompt      string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Generation is the free-form text returned by the generation service.
type Generation struct {
	Text    string
	Model   string
	Usage   cost.Usage
	CostUSD float64
}

// Generator produces free-form text for a prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)
}

// AnthropicGenerator implements Generator over the Messages API.
type AnthropicGenerator struct {
	Client anthropic.Client
	Costs  *cost.Calculator
}

// NewAnthropicGenerator wires client and the cost calculator together. A nil
// calculator uses the default rates.
func NewAnthropicGenerator(client anthropic.Client, costs *cost.Calculator) *AnthropicGenerator {
	if costs == nil {
		costs = cost.NewCalculator(nil)
	}
	return &AnthropicGenerator{Client: client, Costs: costs}
}

// Generate sends req as a single user message.
func (g *AnthropicGenerator) Generate(ctx context.Context, req GenerateRequest) (*Generation, error) {
	temp := req.Temperature
	resp, err := g.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		System:      req.System,
		Messages:    []anthropic.Message{{Role: anthropic.RoleUser, Content: req.Prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: generate with %s", req.Model)
	}

	usage := cost.Usage{
		Input:      resp.Usage.InputTokens,
		Output:     resp.Usage.OutputTokens,
		CacheWrite: resp.Usage.CacheCreationInputTokens,
		CacheRead:  resp.Usage.CacheReadInputTokens,
	}
	billed := resp.Model
	if billed == "" {
		billed = req.Model
	}
	usd := g.Costs.Claude(billed, usage)

	zap.L().Debug("pipeline: generation complete",
		zap.String("model", billed),
		zap.Int64("input_tokens", usage.Input),
		zap.Int64("output_tokens", usage.Output),
		zap.Float64("cost_usd", usd),
		zap.String("stop_reason", resp.StopReason),
	)
	if resp.Truncated() {
		zap.L().Warn("pipeline: generation hit max_tokens, reply may be incomplete",
			zap.String("model", billed),
			zap.Int64("max_tokens", req.MaxTokens),
		)
	}

	return &Generation{
		Text:    resp.Text(),
		Model:   billed,
		Usage:   usage,
		CostUSD: usd,
	}, nil
}

// Result is the outcome of enriching one record.
type Result struct {
	Fields   map[string]string
	Model    string
	Attempts int
	Usage    cost.Usage
	CostUSD  float64
}

// ExhaustedError reports that every attempt for a record failed. It matches
// ErrEnrichmentExhausted and unwraps to the last attempt's error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrEnrichmentExhausted.Error(), e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrEnrichmentExhausted) hold.
func (e *ExhaustedError) Is(target error) bool { return target == ErrEnrichmentExhausted }

// Orchestrator enriches single records through a Generator with primary and
// fallback models, bounded attempts and exponential backoff.
type Orchestrator struct {
	Gen           Generator
	PrimaryModel  string
	FallbackModel string
	MaxAttempts   int
	Backoff       resilience.Backoff
	Temperature   float64
	MaxTokens     int64

	// Sleep waits between backoff retries. Defaults to resilience.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before every retry. Defaults to a zap warning.
	OnRetry func(attempt int, model string, err error)
}

// Enrich asks the generation service for the record's missing fields. The
// returned map holds only enrichable fields. On terminal failure the error
// is an *ExhaustedError and the Result still carries the spent usage.
func (o *Orchestrator) Enrich(ctx context.Context, schema *model.Schema, r *model.Record, parents ParentContext) (*Result, error) {
	maxAttempts := o.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	sleep := o.Sleep
	if sleep == nil {
		sleep = resilience.Sleep
	}
	onRetry := o.OnRetry
	if onRetry == nil {
		onRetry = resilience.RetryLogger("generation", schema.Name)
	}
	maxTokens := o.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	req := GenerateRequest{
		System:      SystemPrompt(schema),
		Prompt:      BuildPrompt(schema, r, parents),
		Temperature: o.Temperature,
		MaxTokens:   maxTokens,
	}

	res := &Result{}
	usingFallback := false
	backoffs := 0

	for attempt := 1; ; attempt++ {
		req.Model = o.modelFor(usingFallback)
		res.Attempts = attempt

		fields, err := o.attempt(ctx, schema, req, res)
		if err == nil {
			res.Fields = fields
			res.Model = req.Model
			return res, nil
		}
		if ctx.Err() != nil {
			return res, eris.Wrap(ctx.Err(), "pipeline: enrichment cancelled")
		}

		switch nextState(attempt, maxAttempts, usingFallback, err) {
		case StateRetryWithFallback:
			usingFallback = true
			onRetry(attempt, o.modelFor(true), err)
		case StateRetryWithBackoff:
			delay := o.Backoff.Delay(backoffs)
			backoffs++
			onRetry(attempt, o.modelFor(true), err)
			if serr := sleep(ctx, delay); serr != nil {
				return res, eris.Wrap(serr, "pipeline: enrichment cancelled")
			}
		case StateExhausted:
			return res, &ExhaustedError{Attempts: attempt, Err: err}
		}
	}
}

func (o *Orchestrator) attempt(ctx context.Context, schema *model.Schema, req GenerateRequest, res *Result) (map[string]string, error) {
	gen, err := o.Gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Usage.Add(gen.Usage)
	res.CostUSD += gen.CostUSD
	fields, err := ParseFields(schema, gen.Text)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: parse %s response", req.Model)
	}
	return fields, nil
}

func (o *Orchestrator) modelFor(fallback bool) string {
	if fallback && o.FallbackModel != "" {
		return o.FallbackModel
	}
	return o.PrimaryModel
}

// IsExhausted reports whether err is a terminal per-record failure.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrEnrichmentExhausted)
}
