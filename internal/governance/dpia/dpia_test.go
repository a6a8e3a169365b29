package dpia

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"nexus/internal/governance/budget"
	"nexus/internal/governance/metrics"
	dErrors "nexus/pkg/domain-errors"
	"nexus/pkg/platform/audit"
	"nexus/pkg/requestcontext"
)

type stubBudget map[string]float64

func (b stubBudget) Remaining(_ context.Context, callerID string) float64 {
	if v, ok := b[callerID]; ok {
		return v
	}
	return 1.0
}

type AssessorSuite struct {
	suite.Suite
	ctx      context.Context
	chain    *audit.Chain
	metrics  *metrics.Metrics
	assessor *Assessor
}

func TestAssessorSuite(t *testing.T) {
	suite.Run(t, new(AssessorSuite))
}

func (s *AssessorSuite) SetupTest() {
	s.ctx = context.Background()
	s.chain = audit.NewChain()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.assessor = NewAssessor(stubBudget{"alice": 0.25}, s.chain,
		WithMetrics(s.metrics),
		WithClock(func() time.Time { return time.Unix(1767225600, 0) }),
	)
	s.assessor.newID = func() string { return "report-1" }
}

// =============================================================================
// Tier table
// =============================================================================

func (s *AssessorSuite) TestTierTable() {
	tests := []struct {
		tier           int
		level          string
		recommendation string
		dpoRequired    bool
		measures       int
	}{
		{0, "CRITICAL", RecommendationReviewRequired, true, 3},
		{1, "HIGH", RecommendationReviewRequired, true, 3},
		{2, "MEDIUM", RecommendationProceed, false, 3},
		{3, "LOW", RecommendationProceed, false, 2},
	}
	for _, tt := range tests {
		s.Run(tt.level, func() {
			r, err := s.assessor.Generate(Input{ProcessingActivity: "chat", RiskTier: tt.tier}, 1.0)
			s.Require().NoError(err)
			s.Equal(tt.level, r.RiskLevel)
			s.Equal(tt.level, r.Sections.RiskAssessment.RiskLevel)
			s.Equal(tt.recommendation, r.Recommendation)
			s.Equal(tt.dpoRequired, r.Sections.DPOConsultation.Required)
			s.Len(r.Sections.Mitigation.Measures, tt.measures)
		})
	}
}

func (s *AssessorSuite) TestInvalidTier() {
	for _, tier := range []int{-1, 4} {
		_, err := s.assessor.Generate(Input{RiskTier: tier}, 1.0)
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest), "tier %d", tier)
	}
	_, err := s.assessor.Assess(s.ctx, "alice", Input{RiskTier: 9})
	s.Error(err)
	s.Zero(s.chain.Count())
}

func (s *AssessorSuite) TestSectionContent() {
	r, err := s.assessor.Generate(Input{
		ProcessingActivity: "Summarize patient records",
		DataCategories:     []string{"health", "contact"},
		RiskTier:           1,
	}, 0.35)
	s.Require().NoError(err)

	s.Equal("report-1", r.ReportID)
	s.Equal(int64(1767225600), r.Timestamp)
	s.Equal("Summarize patient records", r.Sections.Description.Content)
	s.Equal([]string{"health", "contact"}, r.Sections.Description.DataCategories)
	s.Equal(DefaultPurpose, r.Sections.Description.ProcessingPurpose)
	s.Contains(r.Sections.Necessity.Content, "Privacy budget (epsilon): 0.3500 remaining.")
	s.Equal(0.35, r.Sections.Necessity.PrivacyBudgetRemaining)
	s.Contains(r.Sections.RiskAssessment.Content, "HIGH (Tier 1)")
	s.Equal("DPO consultation is REQUIRED before proceeding.", r.Sections.DPOConsultation.Recommendation)

	s.Run("measures are copies", func() {
		r.Sections.Mitigation.Measures[0] = "changed"
		s.NotEqual("changed", Measures("HIGH")[0])
	})
}

func (s *AssessorSuite) TestJSONSectionKeys() {
	r, err := s.assessor.Generate(Input{ProcessingActivity: "x", RiskTier: 3}, 1)
	s.Require().NoError(err)
	raw, err := json.Marshal(r)
	s.Require().NoError(err)

	var decoded map[string]map[string]any
	var envelope struct {
		Sections json.RawMessage `json:"sections"`
	}
	s.Require().NoError(json.Unmarshal(raw, &envelope))
	s.Require().NoError(json.Unmarshal(envelope.Sections, &decoded))
	s.ElementsMatch([]string{
		"1_description", "2_necessity", "3_risk_assessment", "4_mitigation", "5_dpo_consultation",
	}, keys(decoded))
	s.Equal([]any{}, decoded["1_description"]["data_categories"])
}

// =============================================================================
// Assess
// =============================================================================

func (s *AssessorSuite) TestAssessUsesLedgerAndAudits() {
	ctx := requestcontext.WithRequestID(s.ctx, "req-7")
	r, err := s.assessor.Assess(ctx, "alice", Input{ProcessingActivity: "export", RiskTier: 0})
	s.Require().NoError(err)
	s.Equal(0.25, r.Sections.Necessity.PrivacyBudgetRemaining)

	entries := s.chain.Entries("")
	s.Require().Len(entries, 1)
	e := entries[0]
	s.Equal(audit.EventDPIAGenerated, e.Event)
	s.Equal(audit.LayerGovernance, e.Layer)
	s.Equal("alice", e.CallerID)
	s.Equal("report-1", e.Details["report_id"])
	s.Equal("CRITICAL", e.Details["risk_level"])
	s.Equal("req-7", e.Details["request_id"])
	s.True(s.chain.Verify())

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Assessments.WithLabelValues("CRITICAL")))
	s.NotContains(e.Details, "privacy_budget_noisy")
}

func (s *AssessorSuite) TestAssessRecordsNoisedBudget() {
	a := NewAssessor(stubBudget{"alice": 0.25}, s.chain, WithBudgetNoise(0.5, rand.New(rand.NewPCG(7, 11))))
	want, err := budget.AddLaplaceNoise([]float64{0.25}, 0.5, rand.New(rand.NewPCG(7, 11)))
	s.Require().NoError(err)

	r, err := a.Assess(s.ctx, "alice", Input{RiskTier: 1})
	s.Require().NoError(err)
	s.Equal(0.25, r.Sections.Necessity.PrivacyBudgetRemaining, "report keeps the exact figure")

	entries := s.chain.Entries("")
	s.Require().Len(entries, 1)
	noisy, ok := entries[0].Details["privacy_budget_noisy"].(float64)
	s.Require().True(ok)
	s.InDelta(want[0], noisy, 1e-12)
}

func (s *AssessorSuite) TestAssessWithoutRecorder() {
	a := NewAssessor(stubBudget{}, nil)
	r, err := a.Assess(s.ctx, "bob", Input{RiskTier: 2})
	s.Require().NoError(err)
	s.Equal(1.0, r.Sections.Necessity.PrivacyBudgetRemaining)
}

// =============================================================================
// Markdown
// =============================================================================

func TestToMarkdown(t *testing.T) {
	a := NewAssessor(stubBudget{}, nil)
	a.newID = func() string { return "abc" }
	r, err := a.Generate(Input{ProcessingActivity: "Chat support", RiskTier: 3}, 0.5)
	require.NoError(t, err)

	want := strings.Join([]string{
		"# Data Protection Impact Assessment (DPIA)",
		"**Report ID:** abc",
		"**Risk Level:** LOW",
		"**Recommendation:** PROCEED",
		"",
		"## Description of Processing",
		"Chat support",
		"",
		"## Necessity and Proportionality Assessment",
		r.Sections.Necessity.Content,
		"",
		"## Risk Assessment",
		r.Sections.RiskAssessment.Content,
		"",
		"## Mitigation Measures",
		"- Standard privacy protections sufficient",
		"- Regular audit log review recommended",
		"",
		"## DPO Consultation Recommendation",
		"**DPO consultation recommended but not mandatory.**",
		"",
	}, "\n")

	md := r.ToMarkdown()
	assert.Equal(t, want, md)
	assert.Equal(t, md, r.ToMarkdown())
}

func keys(m map[string]map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
