// Package mars scores free text for risk with the generative capability and
// maps the score to a tier.
package mars

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"nexus/internal/guardian/metrics"
	"nexus/internal/llm"
)

const (
	promptTemplate = "Analyse the following text for potential security risks, " +
		"harmful intent, or policy violations.  Respond with ONLY a JSON object:\n" +
		`{"score": <float 0-1>, "category": "<risk category>", "details": "<brief explanation>"}` +
		"\n\nText (%s):\n\"\"\"\n%s\n\"\"\""
	systemPrompt = "You are a security analyst.  Respond ONLY with valid JSON."

	// DefaultLanguage is the language hint used when none is given.
	DefaultLanguage = "de"

	fallbackScore    = 0.5
	fallbackCategory = "ERROR"
	fallbackDetails  = "MARS scoring failed; defaulting to medium risk."
)

// Score is the classifier output. Tier is a pure function of Score.
type Score struct {
	Score    float64 `json:"score"`
	Tier     int     `json:"tier"`
	Category string  `json:"category"`
	Details  string  `json:"details"`
}

// Classifier scores text via a Generator.
type Classifier struct {
	generator llm.Generator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Classifier)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		c.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Classifier) {
		c.metrics = m
	}
}

func New(generator llm.Generator, opts ...Option) *Classifier {
	c := &Classifier{
		generator: generator,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Score never fails: a generation or parse failure yields the medium-risk
// fallback (score 0.5, category ERROR).
func (c *Classifier) Score(ctx context.Context, text, language string) Score {
	if language == "" {
		language = DefaultLanguage
	}

	raw, err := c.generator.Generate(ctx, llm.GenerateRequest{
		Prompt:       fmt.Sprintf(promptTemplate, language, text),
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		return c.fallback(ctx, err)
	}

	parsed, err := ParseResponse(raw)
	if err != nil {
		return c.fallback(ctx, err)
	}
	if !parsed.Strict {
		c.logger.DebugContext(ctx, "risk response was not valid JSON, fields scraped")
	}

	tier := ClassifyTier(parsed.Score)
	c.metrics.IncRiskTier(tier)
	return Score{
		Score:    parsed.Score,
		Tier:     tier,
		Category: parsed.Category,
		Details:  parsed.Details,
	}
}

func (c *Classifier) fallback(ctx context.Context, err error) Score {
	c.logger.WarnContext(ctx, "risk scoring failed, using fallback",
		"error", err,
		"error_category", llm.CategoryOf(err),
	)
	c.metrics.IncRiskFailure()
	tier := ClassifyTier(fallbackScore)
	c.metrics.IncRiskTier(tier)
	return Score{
		Score:    fallbackScore,
		Tier:     tier,
		Category: fallbackCategory,
		Details:  fallbackDetails,
	}
}
