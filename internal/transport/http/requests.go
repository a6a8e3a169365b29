package httptransport

import (
	"strings"

	"nexus/internal/governance/dpia"
	"nexus/internal/governance/policy"
	"nexus/internal/pipeline"
	dErrors "nexus/pkg/domain-errors"
)

const maxTextLength = 100_000

// TextRequest is the body of POST /v1/sentinel/check and POST /v1/mars/score.
type TextRequest struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

func (r *TextRequest) Validate() error {
	if r.Text == "" {
		return dErrors.New(dErrors.CodeBadRequest, "text is required")
	}
	if len(r.Text) > maxTextLength {
		return dErrors.New(dErrors.CodeBadRequest, "text is too long")
	}
	r.Language = strings.TrimSpace(r.Language)
	return nil
}

// RouteRequest is the body of POST /v1/apex/route.
type RouteRequest struct {
	Query           string   `json:"query"`
	Confidence      *float64 `json:"confidence"`
	BudgetRemaining *float64 `json:"budget_remaining"`
}

func (r *RouteRequest) Validate() error {
	if r.Confidence == nil || r.BudgetRemaining == nil {
		return dErrors.New(dErrors.CodeBadRequest, "confidence and budget_remaining are required")
	}
	if *r.Confidence < 0 || *r.Confidence > 1 {
		return dErrors.New(dErrors.CodeBadRequest, "confidence must be between 0 and 1")
	}
	return nil
}

// EnhanceRequest is the body of POST /v1/shield/enhance.
type EnhanceRequest struct {
	Prompt       string `json:"prompt"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

func (r *EnhanceRequest) Validate() error {
	if r.Prompt == "" {
		return dErrors.New(dErrors.CodeBadRequest, "prompt is required")
	}
	return nil
}

// ToolCallRequest is the body of POST /v1/vigil/check. CallerID falls back to
// the authenticated caller.
type ToolCallRequest struct {
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
	CallerID string         `json:"caller_id,omitempty"`
}

func (r *ToolCallRequest) Validate() error {
	r.ToolName = strings.TrimSpace(r.ToolName)
	if r.ToolName == "" {
		return dErrors.New(dErrors.CodeBadRequest, "tool_name is required")
	}
	r.CallerID = strings.TrimSpace(r.CallerID)
	return nil
}

// PolicyRequest is the body of POST /v1/policy/evaluate.
type PolicyRequest struct {
	policy.Context
}

func (r *PolicyRequest) Validate() error {
	r.Role = strings.TrimSpace(r.Role)
	if r.PrivacyTier != nil && (*r.PrivacyTier < 0 || *r.PrivacyTier > 3) {
		return dErrors.New(dErrors.CodeBadRequest, "privacy_tier must be between 0 and 3")
	}
	return nil
}

// ConsumeRequest is the body of POST /v1/privacy/consume.
type ConsumeRequest struct {
	Epsilon  *float64 `json:"epsilon"`
	CallerID string   `json:"caller_id"`
}

func (r *ConsumeRequest) Validate() error {
	r.CallerID = strings.TrimSpace(r.CallerID)
	if r.CallerID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "caller_id is required")
	}
	if r.Epsilon == nil {
		return dErrors.New(dErrors.CodeBadRequest, "epsilon is required")
	}
	return nil
}

// AssessRequest is the body of POST /v1/dpia/generate.
type AssessRequest struct {
	ProcessingActivity string   `json:"processing_activity"`
	DataCategories     []string `json:"data_categories"`
	RiskTier           *int     `json:"risk_tier,omitempty"`
	Purpose            string   `json:"purpose,omitempty"`
}

func (r *AssessRequest) Validate() error {
	r.ProcessingActivity = strings.TrimSpace(r.ProcessingActivity)
	if r.ProcessingActivity == "" {
		return dErrors.New(dErrors.CodeBadRequest, "processing_activity is required")
	}
	if r.DataCategories == nil {
		r.DataCategories = []string{}
	}
	return nil
}

// Input converts the body. An absent risk tier means the lowest risk.
func (r *AssessRequest) Input() dpia.Input {
	tier := 3
	if r.RiskTier != nil {
		tier = *r.RiskTier
	}
	return dpia.Input{
		ProcessingActivity: r.ProcessingActivity,
		DataCategories:     r.DataCategories,
		RiskTier:           tier,
		Purpose:            r.Purpose,
	}
}

// ProcessRequest is the body of POST /v1/process. The pipeline validates the
// fields itself; only the caller fallback happens here.
type ProcessRequest struct {
	pipeline.Request
}

func (r *ProcessRequest) Validate() error {
	r.CallerID = strings.TrimSpace(r.CallerID)
	r.Role = strings.TrimSpace(r.Role)
	return nil
}
