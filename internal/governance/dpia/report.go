// Package dpia generates data protection impact assessments for high-risk
// processing.
package dpia

import (
	"fmt"
	"strings"

	"nexus/internal/guardian/mars"
)

const (
	RecommendationProceed        = "PROCEED"
	RecommendationReviewRequired = "REVIEW_REQUIRED"

	DefaultPurpose = "AI-assisted query processing"
)

// Report is a five-section assessment.
type Report struct {
	ReportID       string   `json:"report_id"`
	Timestamp      int64    `json:"timestamp"`
	Sections       Sections `json:"sections"`
	RiskLevel      string   `json:"risk_level"`
	Recommendation string   `json:"recommendation"`
}

// Sections are serialized under fixed, sortable keys.
type Sections struct {
	Description     Description     `json:"1_description"`
	Necessity       Necessity       `json:"2_necessity"`
	RiskAssessment  RiskAssessment  `json:"3_risk_assessment"`
	Mitigation      Mitigation      `json:"4_mitigation"`
	DPOConsultation DPOConsultation `json:"5_dpo_consultation"`
}

type Description struct {
	Title             string   `json:"title"`
	Content           string   `json:"content"`
	DataCategories    []string `json:"data_categories"`
	ProcessingPurpose string   `json:"processing_purpose"`
}

type Necessity struct {
	Title                  string  `json:"title"`
	Content                string  `json:"content"`
	PrivacyBudgetRemaining float64 `json:"privacy_budget_remaining"`
	DataMinimization       bool    `json:"data_minimization"`
	PurposeLimitation      bool    `json:"purpose_limitation"`
}

type RiskAssessment struct {
	Title     string `json:"title"`
	RiskTier  int    `json:"risk_tier"`
	RiskLevel string `json:"risk_level"`
	Content   string `json:"content"`
}

type Mitigation struct {
	Title                string   `json:"title"`
	Measures             []string `json:"measures"`
	GuardianShieldActive bool     `json:"guardian_shield_active"`
	SentinelActive       bool     `json:"sentinel_active"`
	PIIRedactionActive   bool     `json:"pii_redaction_active"`
}

type DPOConsultation struct {
	Title          string `json:"title"`
	Required       bool   `json:"required"`
	Recommendation string `json:"recommendation"`
}

var mitigations = map[string][]string{
	mars.LevelCritical: {
		"Immediate DPO consultation required",
		"Processing must be suspended until review complete",
		"Supervisory authority notification may be required (Art. 36)",
	},
	mars.LevelHigh: {
		"Enhanced Guardian Shield monitoring",
		"SENTINEL consensus threshold increased to 3/3",
		"All responses require manual review",
	},
	mars.LevelMedium: {
		"Standard Guardian Shield protections active",
		"PII redaction verified at gateway layer",
		"Audit logging with hash-chain integrity",
	},
	mars.LevelLow: {
		"Standard privacy protections sufficient",
		"Regular audit log review recommended",
	},
}

// Measures returns a copy of the mitigation list for a risk level.
func Measures(riskLevel string) []string {
	return append([]string{}, mitigations[riskLevel]...)
}

// ToMarkdown renders the report header and its sections in key order.
func (r *Report) ToMarkdown() string {
	var b strings.Builder
	b.WriteString("# Data Protection Impact Assessment (DPIA)\n")
	fmt.Fprintf(&b, "**Report ID:** %s\n", r.ReportID)
	fmt.Fprintf(&b, "**Risk Level:** %s\n", r.RiskLevel)
	fmt.Fprintf(&b, "**Recommendation:** %s\n", r.Recommendation)
	b.WriteString("\n")

	s := r.Sections
	writeSection(&b, s.Description.Title, s.Description.Content)
	writeSection(&b, s.Necessity.Title, s.Necessity.Content)
	writeSection(&b, s.RiskAssessment.Title, s.RiskAssessment.Content)

	fmt.Fprintf(&b, "## %s\n", s.Mitigation.Title)
	for _, m := range s.Mitigation.Measures {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## %s\n", s.DPOConsultation.Title)
	fmt.Fprintf(&b, "**%s**\n", s.DPOConsultation.Recommendation)
	return b.String()
}

func writeSection(b *strings.Builder, title, content string) {
	fmt.Fprintf(b, "## %s\n%s\n\n", title, content)
}
