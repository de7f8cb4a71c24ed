// Package main provides the CLI entry point for finch, a tool-calling agent
// loop over Anthropic and OpenAI models.
//
// Start an interactive chat:
//
//	finch chat --config finch.yaml
//
// List stored sessions:
//
//	finch sessions
//
// Configuration can reference environment variables, e.g. ${ANTHROPIC_API_KEY}.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "finch",
		Short:        "finch - tool-calling agent loop",
		Long:         "Finch runs a streaming tool-calling agent loop over Anthropic or OpenAI models.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "finch.yaml", "Path to configuration file")

	rootCmd.AddCommand(
		buildChatCmd(),
		buildSessionsCmd(),
	)
	return rootCmd
}
