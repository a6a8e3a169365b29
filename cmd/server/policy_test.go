package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexus/internal/governance/policy"
)

func runPolicy(t *testing.T, args ...string) (policy.Decision, error) {
	t.Helper()
	t.Setenv("NSS_POLICY_FILE", "")

	var out bytes.Buffer
	cmd := newPolicyCmd()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"eval"}, args...))
	err := cmd.Execute()

	var d policy.Decision
	require.NoError(t, json.Unmarshal(out.Bytes(), &d), out.String())
	return d, err
}

func TestPolicyEval(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		d, err := runPolicy(t, "--role", "admin", "--risk-tier", "2")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Empty(t, d.Violations)
	})

	t.Run("denied exits with an error", func(t *testing.T) {
		d, err := runPolicy(t, "--role", "viewer", "--risk-tier", "1", "--tool", "calculator")
		require.Error(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, []string{
			"Role 'viewer' cannot handle risk tier 1 (maximum allowed: 3).",
			"Role 'viewer' not authorized for tool 'calculator'.",
		}, d.Violations)
	})

	t.Run("rules from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		doc := "version: \"2.0.0\"\ntool_allowlist_per_role:\n  viewer: [search, calculator]\n"
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

		d, err := runPolicy(t, "--file", path, "--tool", "calculator")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, "2.0.0", d.PolicyVersion)
	})
}
