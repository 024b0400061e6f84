package main

import (
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "automatad",
	Short: "Automata - scheduled autonomous agent daemon",
	Long: `Automata runs scheduled automation jobs: on every tick it decides which
jobs are eligible under the global rate budget, spins up an agent for each
one and drives that agent through model calls and tool executions until it
needs a human or finishes.`,
	Version: Version,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(jobsCmd)
}
