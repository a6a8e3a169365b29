package policy

import (
	"fmt"
	"slices"
)

// RuleKind names a rule variant. Kinds also fix evaluation order.
type RuleKind string

const (
	KindRiskTier   RuleKind = "risk_tier"
	KindPIIPrivacy RuleKind = "pii_privacy"
	KindCapability RuleKind = "capability"
)

var kindOrder = map[RuleKind]int{
	KindRiskTier:   0,
	KindPIIPrivacy: 1,
	KindCapability: 2,
}

// Rule is one of RiskTierRule, PIIPrivacyRule or CapabilityRule. The set is
// closed: violation is unexported.
type Rule interface {
	Kind() RuleKind
	// violation returns the message for a failing check. Rules whose field is
	// absent from the context pass.
	violation(role string, in Context) (string, bool)
}

// RiskTierRule rejects a request whose risk tier is numerically below the
// role's maximum. Lower tiers are more dangerous, so admin (0) accepts every
// tier and viewer (3) only tier 3.
type RiskTierRule struct {
	MaxTierForRole map[string]int
	// DefaultMax applies to roles missing from MaxTierForRole.
	DefaultMax int
}

func (RiskTierRule) Kind() RuleKind { return KindRiskTier }

func (r RiskTierRule) violation(role string, in Context) (string, bool) {
	if in.RiskTier == nil {
		return "", false
	}
	maxTier, ok := r.MaxTierForRole[role]
	if !ok {
		maxTier = r.DefaultMax
	}
	if *in.RiskTier < maxTier {
		return fmt.Sprintf("Role '%s' cannot handle risk tier %d (maximum allowed: %d).", role, *in.RiskTier, maxTier), true
	}
	return "", false
}

// PIIPrivacyRule requires a minimum privacy tier whenever PII was detected.
// A missing privacy tier counts as 0.
type PIIPrivacyRule struct {
	MinPrivacyTier int
}

func (PIIPrivacyRule) Kind() RuleKind { return KindPIIPrivacy }

func (r PIIPrivacyRule) violation(_ string, in Context) (string, bool) {
	if in.PIIDetected == nil || !*in.PIIDetected {
		return "", false
	}
	tier := 0
	if in.PrivacyTier != nil {
		tier = *in.PrivacyTier
	}
	if tier < r.MinPrivacyTier {
		return fmt.Sprintf("PII detected but privacy tier %d < required %d.", tier, r.MinPrivacyTier), true
	}
	return "", false
}

// CapabilityRule restricts each role to an allow-list of capability names.
// A nil list, or a role with no entry, is unrestricted.
type CapabilityRule struct {
	AllowList map[string][]string
}

func (CapabilityRule) Kind() RuleKind { return KindCapability }

func (r CapabilityRule) violation(role string, in Context) (string, bool) {
	if in.Capability == nil || *in.Capability == "" {
		return "", false
	}
	allowed := r.AllowList[role]
	if allowed == nil || slices.Contains(allowed, *in.Capability) {
		return "", false
	}
	return fmt.Sprintf("Role '%s' not authorized for tool '%s'.", role, *in.Capability), true
}

// DefaultRules returns the built-in rule table.
func DefaultRules() []Rule {
	return []Rule{
		RiskTierRule{
			MaxTierForRole: map[string]int{
				"admin":          0,
				"data_processor": 1,
				"auditor":        2,
				"viewer":         3,
			},
			DefaultMax: 3,
		},
		PIIPrivacyRule{MinPrivacyTier: 1},
		CapabilityRule{
			AllowList: map[string][]string{
				"admin":          nil,
				"data_processor": {"search", "calculator", "summarizer", "document_reader", "translator"},
				"auditor":        {"search", "document_reader"},
				"viewer":         {"search"},
			},
		},
	}
}

// ordered returns rules sorted by kind, keeping the given order within a kind.
func ordered(rules []Rule) []Rule {
	out := slices.Clone(rules)
	slices.SortStableFunc(out, func(a, b Rule) int {
		return kindOrder[a.Kind()] - kindOrder[b.Kind()]
	})
	return out
}
