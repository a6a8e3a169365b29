// Package policy evaluates governance rules against a sparse request context.
package policy

import (
	"context"
	"io"
	"log/slog"

	"nexus/internal/governance/metrics"
)

const (
	DefaultVersion = "1.0.0"
	DefaultRole    = "viewer"
)

// Context carries only the fields relevant to one request. Nil fields are
// absent and skip the rules that read them.
type Context struct {
	Role        string  `json:"role"`
	RiskTier    *int    `json:"risk_tier,omitempty"`
	PIIDetected *bool   `json:"pii_detected,omitempty"`
	PrivacyTier *int    `json:"privacy_tier,omitempty"`
	Capability  *string `json:"capability_name,omitempty"`
}

// Decision is the evaluation result. Allowed is true iff Violations is empty.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Violations    []string `json:"violations"`
	PolicyVersion string   `json:"policy_version"`
}

// Engine is stateless apart from its rule table.
type Engine struct {
	rules   []Rule
	version string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Engine)

func WithRules(rules []Rule) Option {
	return func(e *Engine) {
		e.rules = rules
	}
}

func WithVersion(version string) Option {
	return func(e *Engine) {
		if version != "" {
			e.version = version
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		rules:   DefaultRules(),
		version: DefaultVersion,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rules = ordered(e.rules)
	return e
}

// Version returns the policy version reported in decisions.
func (e *Engine) Version() string {
	return e.version
}

// Evaluate checks every rule independently and collects one violation per
// failing rule, ordered risk tier, PII, capability.
func (e *Engine) Evaluate(ctx context.Context, in Context) Decision {
	role := in.Role
	if role == "" {
		role = DefaultRole
	}

	violations := []string{}
	for _, rule := range e.rules {
		if msg, failed := rule.violation(role, in); failed {
			violations = append(violations, msg)
			e.metrics.IncViolation(string(rule.Kind()))
		}
	}

	allowed := len(violations) == 0
	e.metrics.IncDecision(allowed)
	if !allowed {
		e.logger.WarnContext(ctx, "policy violation",
			"role", role,
			"violations", violations,
		)
	}
	return Decision{
		Allowed:       allowed,
		Violations:    violations,
		PolicyVersion: e.version,
	}
}
