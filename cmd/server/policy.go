package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nexus/internal/governance/policy"
)

type policyEvalFlags struct {
	file        string
	role        string
	riskTier    int
	pii         bool
	privacyTier int
	capability  string
}

func newPolicyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect the role policy",
	}
	cmd.AddCommand(newPolicyEvalCmd())
	return cmd
}

func newPolicyEvalCmd() *cobra.Command {
	var f policyEvalFlags
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate one request context against the policy and print the decision",
		Long: `Evaluate a request context offline, without starting the gateway.

  nexus policy eval --role viewer --risk-tier 1
  nexus policy eval --file policy.yaml --role data_processor --tool search`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPolicyEval(cmd, f)
		},
		SilenceUsage: true,
	}
	cmd.Flags().StringVar(&f.file, "file", os.Getenv("NSS_POLICY_FILE"), "Policy YAML file (default: built-in rules)")
	cmd.Flags().StringVar(&f.role, "role", policy.DefaultRole, "Caller role")
	cmd.Flags().IntVar(&f.riskTier, "risk-tier", -1, "Risk tier 0..3 (omitted when negative)")
	cmd.Flags().BoolVar(&f.pii, "pii", false, "Whether PII was detected")
	cmd.Flags().IntVar(&f.privacyTier, "privacy-tier", 0, "Privacy tier of the request")
	cmd.Flags().StringVar(&f.capability, "tool", "", "Requested tool capability")
	return cmd
}

func runPolicyEval(cmd *cobra.Command, f policyEvalFlags) error {
	var opts []policy.Option
	if f.file != "" {
		file, err := policy.LoadFile(f.file)
		if err != nil {
			return err
		}
		opts = file.Options()
	}
	engine := policy.NewEngine(opts...)

	in := policy.Context{
		Role:        f.role,
		PIIDetected: &f.pii,
		PrivacyTier: &f.privacyTier,
	}
	if f.riskTier >= 0 {
		in.RiskTier = &f.riskTier
	}
	if f.capability != "" {
		in.Capability = &f.capability
	}

	decision := engine.Evaluate(cmd.Context(), in)
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(decision); err != nil {
		return fmt.Errorf("encode decision: %w", err)
	}
	if !decision.Allowed {
		return fmt.Errorf("denied by policy %s", decision.PolicyVersion)
	}
	return nil
}
