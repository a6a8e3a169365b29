package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"nexus/internal/governance/dpia"
	"nexus/internal/governance/policy"
	"nexus/internal/guardian/apex"
	"nexus/internal/guardian/mars"
	"nexus/internal/guardian/sentinel"
	"nexus/internal/guardian/shield"
	"nexus/internal/llm"
	dErrors "nexus/pkg/domain-errors"
	"nexus/pkg/platform/audit"
	"nexus/pkg/requestcontext"
)

// Stages that can refuse a request.
const (
	StageSentinel = "sentinel"
	StagePolicy   = "policy"
	StageBudget   = "budget"
)

// Request is one inbound query. Text is expected to be PII-redacted already;
// PIIDetected reports whether redaction found anything.
type Request struct {
	CallerID       string   `json:"caller_id"`
	Role           string   `json:"role"`
	Text           string   `json:"text"`
	Language       string   `json:"language,omitempty"`
	PIIDetected    bool     `json:"pii_detected"`
	PrivacyTier    int      `json:"privacy_tier"`
	Capability     string   `json:"capability_name,omitempty"`
	DataCategories []string `json:"data_categories,omitempty"`
	Generate       bool     `json:"generate"`
}

// Outcome reports how far a request got. When Allowed is false, Stage names
// the refusing step and Reasons says why.
type Outcome struct {
	RequestID        string           `json:"request_id"`
	Allowed          bool             `json:"allowed"`
	Stage            string           `json:"stage,omitempty"`
	Reasons          []string         `json:"reasons,omitempty"`
	Sentinel         *sentinel.Result `json:"sentinel,omitempty"`
	Risk             *mars.Score      `json:"risk,omitempty"`
	Policy           *policy.Decision `json:"policy,omitempty"`
	Route            *apex.Decision   `json:"route,omitempty"`
	EpsilonConsumed  float64          `json:"epsilon_consumed"`
	PrivacyRemaining float64          `json:"privacy_budget_remaining"`
	DPIA             *dpia.Report     `json:"dpia,omitempty"`
	Response         string           `json:"response,omitempty"`
	AnswerConfidence *float64         `json:"answer_confidence,omitempty"`
	CacheHit         bool             `json:"cache_hit,omitempty"`
}

func newRequestID() string {
	return uuid.NewString()
}

// Process runs injection consensus, risk scoring, policy, routing and the
// privacy charge in that order, stopping at the first refusal. High-risk
// requests (tier 1 or 0) additionally get an impact assessment. The returned
// error is reserved for invalid input and answer generation failures.
func (s *Service) Process(ctx context.Context, req Request) (*Outcome, error) {
	if req.CallerID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "caller_id is required")
	}
	if req.Text == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "text is required")
	}
	if req.PrivacyTier < 0 || req.PrivacyTier > 3 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "privacy_tier must be between 0 and 3")
	}

	requestID := requestcontext.RequestID(ctx)
	if requestID == "" {
		requestID = s.newID()
		ctx = requestcontext.WithRequestID(ctx, requestID)
	}
	if req.Role == "" {
		req.Role = policy.DefaultRole
	}

	ctx, span := s.tracer.Start(ctx, "pipeline.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("caller.role", req.Role),
	)

	out := &Outcome{RequestID: requestID}

	verdict := s.sentinelStage(ctx, req)
	out.Sentinel = &verdict
	if !verdict.IsSafe {
		return s.block(ctx, out, req.CallerID, StageSentinel, []string{verdict.Consensus}), nil
	}

	risk := s.riskStage(ctx, req)
	out.Risk = &risk

	decision := s.policyStage(ctx, req, risk.Tier)
	out.Policy = &decision
	if !decision.Allowed {
		return s.block(ctx, out, req.CallerID, StagePolicy, decision.Violations), nil
	}

	route := s.routeStage(ctx, req.CallerID, verdict.Confidence)
	out.Route = &route

	ok, remaining := s.budgetStage(ctx, req.CallerID)
	out.PrivacyRemaining = remaining
	if !ok {
		return s.block(ctx, out, req.CallerID, StageBudget, []string{"Privacy budget exhausted for this caller."}), nil
	}
	out.EpsilonConsumed = s.epsilon

	if risk.Tier <= mars.TierHigh {
		out.DPIA = s.assessStage(ctx, req, risk.Tier)
	}

	if req.Generate {
		if err := s.generateStage(ctx, req, out); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "generation failed")
			s.metrics.IncFailed()
			return nil, err
		}
	}

	out.Allowed = true
	details := map[string]any{
		"model":     route.ModelSelected,
		"risk_tier": risk.Tier,
	}
	if out.DPIA != nil {
		details["dpia_report_id"] = out.DPIA.ReportID
	}
	s.logAudit(ctx, audit.EventRequestCompleted, req.CallerID, audit.LayerGateway, "pipeline", details)
	s.metrics.IncAllowed()
	return out, nil
}

func (s *Service) block(ctx context.Context, out *Outcome, callerID, stage string, reasons []string) *Outcome {
	out.Allowed = false
	out.Stage = stage
	out.Reasons = reasons

	s.logAudit(ctx, audit.EventRequestBlocked, callerID, audit.LayerGateway, "pipeline", map[string]any{
		"stage":   stage,
		"reasons": reasons,
	})
	s.metrics.IncBlocked(stage)
	return out
}

func (s *Service) sentinelStage(ctx context.Context, req Request) sentinel.Result {
	ctx, span, end := s.stage(ctx, StageSentinel)
	defer end()

	res := s.c.Sentinel.Check(ctx, req.Text)
	span.SetAttributes(
		attribute.Bool("sentinel.safe", res.IsSafe),
		attribute.Float64("sentinel.confidence", res.Confidence),
	)
	s.logAudit(ctx, audit.EventSentinelCheck, req.CallerID, audit.LayerGuardian, "sentinel", sentinelDetails(res))
	return res
}

func (s *Service) riskStage(ctx context.Context, req Request) mars.Score {
	ctx, span, end := s.stage(ctx, "mars")
	defer end()

	score := s.c.Risk.Score(ctx, req.Text, req.Language)
	span.SetAttributes(attribute.Int("risk.tier", score.Tier))
	s.logAudit(ctx, audit.EventRiskScored, req.CallerID, audit.LayerGuardian, "mars", map[string]any{
		"score":    score.Score,
		"tier":     score.Tier,
		"category": score.Category,
	})
	return score
}

func (s *Service) policyStage(ctx context.Context, req Request, tier int) policy.Decision {
	ctx, _, end := s.stage(ctx, StagePolicy)
	defer end()

	in := policy.Context{
		Role:        req.Role,
		RiskTier:    &tier,
		PIIDetected: &req.PIIDetected,
		PrivacyTier: &req.PrivacyTier,
	}
	if req.Capability != "" {
		in.Capability = &req.Capability
	}
	decision := s.c.Policy.Evaluate(ctx, in)
	s.logAudit(ctx, audit.EventPolicyEvaluated, req.CallerID, audit.LayerGovernance, "policy_engine", map[string]any{
		"role":       req.Role,
		"allowed":    decision.Allowed,
		"violations": decision.Violations,
	})
	return decision
}

func (s *Service) routeStage(ctx context.Context, callerID string, confidence float64) apex.Decision {
	ctx, span, end := s.stage(ctx, "apex")
	defer end()

	d := s.c.Router.Select(confidence, s.c.Cost.Remaining())
	s.c.Cost.Spend(d.CostEstimate)
	span.SetAttributes(attribute.String("apex.model", d.ModelSelected))
	s.logAudit(ctx, audit.EventModelRouted, callerID, audit.LayerGuardian, "apex", map[string]any{
		"model":         d.ModelSelected,
		"confidence":    d.Confidence,
		"cost_estimate": d.CostEstimate,
		"branch":        d.Branch,
	})
	return d
}

func (s *Service) budgetStage(ctx context.Context, callerID string) (bool, float64) {
	ctx, _, end := s.stage(ctx, StageBudget)
	defer end()

	ok := s.c.Ledger.Consume(ctx, s.epsilon, callerID)
	remaining := s.c.Ledger.Remaining(ctx, callerID)
	event := audit.EventBudgetConsumed
	if !ok {
		event = audit.EventBudgetRefused
	}
	s.logAudit(ctx, event, callerID, audit.LayerGovernance, "privacy_budget", map[string]any{
		"epsilon":   s.epsilon,
		"remaining": remaining,
	})
	return ok, remaining
}

func (s *Service) assessStage(ctx context.Context, req Request, tier int) *dpia.Report {
	ctx, _, end := s.stage(ctx, "dpia")
	defer end()

	categories := append([]string{"user_query"}, req.DataCategories...)
	report, err := s.c.Assessor.Assess(ctx, req.CallerID, dpia.Input{
		ProcessingActivity: fmt.Sprintf("High-risk query from caller %s", req.CallerID),
		DataCategories:     categories,
		RiskTier:           tier,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "impact assessment failed", "error", err)
		return nil
	}
	return report
}

func (s *Service) generateStage(ctx context.Context, req Request, out *Outcome) error {
	ctx, _, end := s.stage(ctx, "generate")
	defer end()

	if s.c.Generator == nil {
		return dErrors.New(dErrors.CodeUnavailable, "answer generation is not configured")
	}
	prompt := shield.Enhance(req.Text, "")
	model := out.Route.ModelSelected

	if cached, ok := s.cache.Get(ctx, prompt, model); ok {
		out.Response = cached
		out.CacheHit = true
		return nil
	}
	text, confidence, err := llm.GenerateWithConfidence(ctx, s.c.Generator, prompt, model)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "answer generation failed")
	}
	s.cache.Put(prompt, model, text)
	out.Response = text
	out.AnswerConfidence = &confidence
	return nil
}

func sentinelDetails(res sentinel.Result) map[string]any {
	details := map[string]any{
		"is_safe":    res.IsSafe,
		"confidence": res.Confidence,
		"consensus":  res.Consensus,
	}
	if len(res.FailedMethods) > 0 {
		details["failed_methods"] = res.FailedMethods
	}
	return details
}
