package httptransport

import "nexus/pkg/platform/audit"

// EnhanceResponse is the HTTP response for POST /v1/shield/enhance.
type EnhanceResponse struct {
	EnhancedPrompt string `json:"enhanced_prompt"`
}

// BudgetResponse reports a caller's remaining epsilon.
type BudgetResponse struct {
	CallerID         string  `json:"caller_id"`
	RemainingEpsilon float64 `json:"remaining_epsilon"`
}

// ConsumeResponse is the HTTP response for POST /v1/privacy/consume.
type ConsumeResponse struct {
	Success          bool    `json:"success"`
	RemainingEpsilon float64 `json:"remaining_epsilon"`
	CallerID         string  `json:"caller_id"`
}

// AuditListResponse is the HTTP response for GET /v1/audit.
type AuditListResponse struct {
	Count   int           `json:"count"`
	Entries []audit.Entry `json:"entries"`
}

// VerifyResponse is the HTTP response for GET /v1/audit/verify.
type VerifyResponse struct {
	Intact        bool `json:"intact"`
	Count         int  `json:"count"`
	MirrorEnabled bool `json:"mirror_enabled"`
}

// HealthResponse is the HTTP response for GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components,omitempty"`
}
