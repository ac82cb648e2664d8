package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gruhno/caseforge/internal/packager"
)

var generateCommand = &cobra.Command{
	Use:   "generate",
	Short: "Submit a batch generation job and wait for results",
	Long: `Selects the leaf nodes of the configured model variant, builds hierarchical
context for each, submits one batch job to the completion service, polls it to
completion, and persists the parsed results.

The job state is written to the state directory immediately after submission,
so an interrupted invocation can be resumed with "caseforge monitor".`,
	RunE: runGenerateCmd,
}

var (
	generateKind  string
	generateTest  bool
	generateCount int
	generateYes   bool
)

func init() {
	generateCommand.Flags().StringVarP(&generateKind, "kind", "k", string(packager.KindProcessDetails),
		"Generation kind: process_details or usecase_candidates")
	generateCommand.Flags().BoolVar(&generateTest, "test", false,
		"Test mode: submit only a handful of nodes")
	generateCommand.Flags().IntVar(&generateCount, "count", 5,
		"Number of nodes to submit in test mode")
	generateCommand.Flags().BoolVarP(&generateYes, "yes", "y", false,
		"Skip the confirmation prompt")

	rootCmd.AddCommand(generateCommand)
}

func runGenerateCmd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	kind, err := parseKind(generateKind)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	opts := rt.options(kind)
	opts.TestMode = generateTest
	opts.TestCount = generateCount

	if !generateTest && !generateYes {
		prompt := fmt.Sprintf("This submits a batch job for ALL leaf nodes of model %q. Continue?", rt.cfg.ModelKey)
		if !confirm(prompt) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	summary, err := rt.runner().Run(ctx, opts)
	if summary != nil {
		printSummary(summary)
	}
	return err
}
