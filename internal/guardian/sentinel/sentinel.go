// Package sentinel decides whether input text is an injection attempt by
// majority vote over independent detectors.
package sentinel

import (
	"context"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"nexus/internal/guardian/metrics"
	"nexus/internal/llm"
)

// Detector is one independent suspicion signal.
type Detector interface {
	Method() string
	Detect(ctx context.Context, text string) Vote
}

// Service runs every detector concurrently and combines the votes.
type Service struct {
	detectors []Detector
	threshold int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New builds a Service over detectors, reported in the given order.
// A threshold below one falls back to DefaultThreshold.
func New(detectors []Detector, threshold int, opts ...Option) *Service {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	s := &Service{
		detectors: detectors,
		threshold: threshold,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewDefault wires the pattern, judgment and similarity detectors.
func NewDefault(gen llm.Generator, emb llm.Embedder, threshold int, similarity float64, opts ...Option) *Service {
	return New([]Detector{
		PatternDetector{},
		NewJudgmentDetector(gen),
		NewSimilarityDetector(emb, similarity),
	}, threshold, opts...)
}

// Check runs all detectors and applies consensus. It never returns an error:
// a detector that fails is logged and counted as a pass vote.
func (s *Service) Check(ctx context.Context, text string) Result {
	votes := make([]Vote, len(s.detectors))

	// Detectors report failures through Vote.Err, so every goroutine returns
	// nil and one failure never cancels the others.
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range s.detectors {
		g.Go(func() error {
			start := time.Now()
			v := d.Detect(gctx, text)
			v.Method = d.Method()
			votes[i] = v
			s.metrics.ObserveVote(v.Method, v.Label(), time.Since(start))
			if v.Err != nil {
				s.logger.WarnContext(ctx, "detector failed open",
					"method", v.Method,
					"error", v.Err,
				)
			}
			return nil
		})
	}
	_ = g.Wait() // always nil

	res := Consensus(votes, s.threshold)
	s.metrics.IncVerdict(res.IsSafe)
	if !res.IsSafe {
		s.logger.WarnContext(ctx, "injection consensus reached",
			"consensus", res.Consensus,
			"confidence", res.Confidence,
		)
	}
	return res
}

// Threshold returns the configured consensus threshold.
func (s *Service) Threshold() int { return s.threshold }
