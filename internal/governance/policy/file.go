package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the YAML form of a rule table:
//
//	version: "1.1.0"
//	max_risk_tier_for_role: {admin: 0, viewer: 3}
//	default_max_risk_tier: 3
//	privacy_tier_required_for_pii: 1
//	tool_allowlist_per_role:
//	  admin: null
//	  viewer: [search]
type File struct {
	Version              string              `yaml:"version"`
	MaxRiskTierForRole   map[string]int      `yaml:"max_risk_tier_for_role"`
	DefaultMaxRiskTier   *int                `yaml:"default_max_risk_tier"`
	PrivacyTierRequired  *int                `yaml:"privacy_tier_required_for_pii"`
	ToolAllowlistPerRole map[string][]string `yaml:"tool_allowlist_per_role"`
}

// LoadFile reads a rule table from path. Sections left out of the file keep
// their built-in defaults.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing policy %s: %w", path, err)
	}
	return &f, nil
}

// Rules merges the file over DefaultRules.
func (f *File) Rules() []Rule {
	rules := DefaultRules()
	for i, rule := range rules {
		switch r := rule.(type) {
		case RiskTierRule:
			if f.MaxRiskTierForRole != nil {
				r.MaxTierForRole = f.MaxRiskTierForRole
			}
			if f.DefaultMaxRiskTier != nil {
				r.DefaultMax = *f.DefaultMaxRiskTier
			}
			rules[i] = r
		case PIIPrivacyRule:
			if f.PrivacyTierRequired != nil {
				r.MinPrivacyTier = *f.PrivacyTierRequired
			}
			rules[i] = r
		case CapabilityRule:
			if f.ToolAllowlistPerRole != nil {
				r.AllowList = f.ToolAllowlistPerRole
			}
			rules[i] = r
		}
	}
	return rules
}

// Options returns engine options for the file's rules and version.
func (f *File) Options() []Option {
	return []Option{WithRules(f.Rules()), WithVersion(f.Version)}
}
