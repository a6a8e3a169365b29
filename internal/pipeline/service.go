// Package pipeline runs the layered trust decision for one request and
// exposes each guardian and governance step on its own. Every decision it
// makes is appended to the audit chain under the request's correlation id.
package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"nexus/internal/governance/budget"
	"nexus/internal/governance/dpia"
	"nexus/internal/governance/policy"
	"nexus/internal/guardian/apex"
	"nexus/internal/guardian/mars"
	"nexus/internal/guardian/sentinel"
	"nexus/internal/guardian/vigil"
	"nexus/internal/llm"
	"nexus/internal/platform/metrics"
	"nexus/pkg/platform/audit"
	"nexus/pkg/requestcontext"
)

const tracerName = "nexus/pipeline"

// DefaultEpsilonPerRequest is charged to the caller for each admitted request.
const DefaultEpsilonPerRequest = 0.1

// Components are the collaborators the pipeline drives. Generator is only
// needed for answer generation.
type Components struct {
	Sentinel  *sentinel.Service
	Risk      *mars.Classifier
	Policy    *policy.Engine
	Router    *apex.Router
	Cost      *apex.CostBudget
	Ledger    *budget.Ledger
	Assessor  *dpia.Assessor
	Vigil     *vigil.Validator
	Chain     *audit.Chain
	Generator llm.Generator
}

func (c Components) validate() error {
	var errs []error
	if c.Sentinel == nil {
		errs = append(errs, errors.New("sentinel is required"))
	}
	if c.Risk == nil {
		errs = append(errs, errors.New("risk classifier is required"))
	}
	if c.Policy == nil {
		errs = append(errs, errors.New("policy engine is required"))
	}
	if c.Router == nil || c.Cost == nil {
		errs = append(errs, errors.New("router and cost budget are required"))
	}
	if c.Ledger == nil {
		errs = append(errs, errors.New("budget ledger is required"))
	}
	if c.Assessor == nil {
		errs = append(errs, errors.New("impact assessor is required"))
	}
	if c.Vigil == nil {
		errs = append(errs, errors.New("tool validator is required"))
	}
	if c.Chain == nil {
		errs = append(errs, errors.New("audit chain is required"))
	}
	return errors.Join(errs...)
}

// Service orchestrates the trust decision.
type Service struct {
	c       Components
	epsilon float64
	cache   *ResponseCache
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	newID   func() string
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

// WithEpsilonPerRequest sets the privacy cost charged per admitted request.
func WithEpsilonPerRequest(epsilon float64) Option {
	return func(s *Service) {
		if epsilon >= 0 {
			s.epsilon = epsilon
		}
	}
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithResponseCache caches generated answers by prompt and model.
func WithResponseCache(cache *ResponseCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func New(c Components, opts ...Option) (*Service, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	s := &Service{
		c:       c,
		epsilon: DefaultEpsilonPerRequest,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer:  otel.Tracer(tracerName),
		newID:   newRequestID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Chain exposes the audit chain for read-side handlers.
func (s *Service) Chain() *audit.Chain {
	return s.c.Chain
}

// logAudit writes an audit-flavoured log line and appends the event to the
// chain. The request id is added to both when the context carries one.
func (s *Service) logAudit(ctx context.Context, event audit.EventKind, callerID string, layer audit.Layer, component string, details map[string]any) string {
	if details == nil {
		details = map[string]any{}
	}
	attrs := []any{"caller_id", callerID, "layer", layer, "component", component}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		details["request_id"] = requestID
		attrs = append(attrs, "request_id", requestID)
	}
	attrs = append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, string(event), attrs...)

	return s.c.Chain.Append(ctx, event, callerID, layer, component, details)
}

// stage starts a span for one pipeline step and returns a func that ends it
// and records its latency.
func (s *Service) stage(ctx context.Context, name string) (context.Context, trace.Span, func()) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "pipeline."+name)
	return ctx, span, func() {
		span.End()
		s.metrics.ObserveStage(name, time.Since(start))
	}
}

// Close drains the write-behind queues. The chain goes last so entries
// appended while closing still reach the mirror.
func (s *Service) Close(ctx context.Context) error {
	return errors.Join(
		s.cache.Close(ctx),
		s.c.Ledger.Close(ctx),
		s.c.Chain.Close(ctx),
	)
}
