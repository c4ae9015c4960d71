package main

import (
	"os"

	"github.com/spf13/cobra"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "codeframe",
	Short: "Orchestrator for autonomous development agents",
	Long: `codeframe coordinates a team of AI development agents over a task
dependency graph. It schedules ready tasks onto typed agent slots, manages
each agent's working memory within a token budget, and pauses work on
blockers until a human answers.

State lives in .codeframe/ inside your project: a SQLite database for
tasks, agents, context and blockers, plus a human-readable session snapshot
for resuming.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(blockersCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
