package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Nexus - layered trust gateway for LLM requests",
	Long: `Nexus gates natural-language requests bound for an LLM backend behind a
layered trust decision: injection consensus, risk tiering, role policy, model
routing and a per-caller privacy budget, all recorded in a tamper-evident
audit chain.

Configuration is read from NSS_* environment variables.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newServeCmd(), newPolicyCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
