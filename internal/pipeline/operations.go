package pipeline

import (
	"context"
	"fmt"

	"nexus/internal/governance/dpia"
	"nexus/internal/governance/policy"
	"nexus/internal/guardian/apex"
	"nexus/internal/guardian/mars"
	"nexus/internal/guardian/sentinel"
	"nexus/internal/guardian/shield"
	"nexus/internal/guardian/vigil"
	"nexus/pkg/platform/audit"
)

// The operations below run a single step outside Process. Each is audited the
// same way its Process counterpart is.

func (s *Service) CheckInjection(ctx context.Context, callerID, text string) sentinel.Result {
	return s.sentinelStage(ctx, Request{CallerID: callerID, Text: text})
}

func (s *Service) ScoreRisk(ctx context.Context, callerID, text, language string) mars.Score {
	return s.riskStage(ctx, Request{CallerID: callerID, Text: text, Language: language})
}

// Route selects a model for an explicit confidence and cost budget. The
// process-wide cost pool is not touched.
func (s *Service) Route(ctx context.Context, callerID string, confidence, budgetRemaining float64) apex.Decision {
	d := s.c.Router.Select(confidence, budgetRemaining)
	s.logAudit(ctx, audit.EventModelRouted, callerID, audit.LayerGuardian, "apex", map[string]any{
		"model":         d.ModelSelected,
		"confidence":    d.Confidence,
		"cost_estimate": d.CostEstimate,
		"branch":        d.Branch,
	})
	return d
}

func (s *Service) Harden(ctx context.Context, callerID, prompt, systemPrompt string) string {
	enhanced := shield.Enhance(prompt, systemPrompt)
	s.logAudit(ctx, audit.EventPromptHardened, callerID, audit.LayerGuardian, "shield", map[string]any{
		"prompt_length":   len(prompt),
		"enhanced_length": len(enhanced),
	})
	return enhanced
}

func (s *Service) CheckToolCall(ctx context.Context, callerID, toolName string, args map[string]any) (vigil.Verdict, error) {
	v, err := s.c.Vigil.Check(ctx, toolName, args, callerID)
	if err != nil {
		return vigil.Verdict{}, fmt.Errorf("checking tool call: %w", err)
	}
	s.logAudit(ctx, audit.EventToolCallChecked, callerID, audit.LayerAgent, "vigil", map[string]any{
		"tool":    toolName,
		"verdict": v.Verdict,
		"reasons": v.Reasons,
	})
	return v, nil
}

func (s *Service) EvaluatePolicy(ctx context.Context, callerID string, in policy.Context) policy.Decision {
	decision := s.c.Policy.Evaluate(ctx, in)
	role := in.Role
	if role == "" {
		role = policy.DefaultRole
	}
	s.logAudit(ctx, audit.EventPolicyEvaluated, callerID, audit.LayerGovernance, "policy_engine", map[string]any{
		"role":       role,
		"allowed":    decision.Allowed,
		"violations": decision.Violations,
	})
	return decision
}

// Consume charges epsilon to callerID. Refusal for insufficient budget is a
// false result; a malformed amount is a CodeBadRequest error.
func (s *Service) Consume(ctx context.Context, callerID string, epsilon float64) (bool, float64, error) {
	ok, err := s.c.Ledger.ConsumeChecked(ctx, epsilon, callerID)
	if err != nil {
		return false, 0, err
	}
	remaining := s.c.Ledger.Remaining(ctx, callerID)
	event := audit.EventBudgetConsumed
	if !ok {
		event = audit.EventBudgetRefused
	}
	s.logAudit(ctx, event, callerID, audit.LayerGovernance, "privacy_budget", map[string]any{
		"epsilon":   epsilon,
		"remaining": remaining,
	})
	return ok, remaining, nil
}

func (s *Service) Remaining(ctx context.Context, callerID string) float64 {
	return s.c.Ledger.Remaining(ctx, callerID)
}

// ResetBudget restores callerID's budget, e.g. after an erasure request.
func (s *Service) ResetBudget(ctx context.Context, actorID, callerID string) float64 {
	s.c.Ledger.Reset(ctx, callerID)
	s.logAudit(ctx, audit.EventBudgetReset, callerID, audit.LayerGovernance, "privacy_budget", map[string]any{
		"reset_by": actorID,
	})
	return s.c.Ledger.Remaining(ctx, callerID)
}

// Assess generates an impact assessment against callerID's remaining budget.
func (s *Service) Assess(ctx context.Context, callerID string, in dpia.Input) (*dpia.Report, error) {
	return s.c.Assessor.Assess(ctx, callerID, in)
}
