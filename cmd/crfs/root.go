package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "crfs",
	Short: "crfs - conflict-free replicated Markdown filesystem",
	Long: `crfs tracks Markdown files in a working directory as a tree of
operation-based CRDTs, so divergent edits from multiple replicas merge
without a central lock or a three-way diff.`,
}

// Execute runs the CLI, exiting nonzero on any error per the command
// contract.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
