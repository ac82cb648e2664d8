// Package main provides the entry point for the CaseForge batch generation CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "caseforge",
	Short: "CaseForge batch documentation generator",
	Long:  "CaseForge generates process documentation and AI use-case candidates for business process taxonomies via an asynchronous batch completion service.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
