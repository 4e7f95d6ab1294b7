// Package main provides the idea_agent CLI: single runs, batches over the
// idea ledgers, archive maintenance, schema checks and the status API.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "idea_agent",
	Short: "Iterative idea analysis with reviewer and fact-checker agents",
	Long: `idea_agent drafts an analysis of an idea, has it critiqued by a reviewer and a
fact-checker, and revises until both accept or the iteration cap is reached.

Configuration can be loaded from a JSON or YAML file using --config. Command-line
flags override config file values.`,
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
