package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gruhno/caseforge/internal/packager"
	"github.com/gruhno/caseforge/internal/retry"
)

var retryCommand = &cobra.Command{
	Use:   "retry-failed",
	Short: "Resubmit the recorded failed nodes as a new batch job",
	Long: `Loads the failed-node record written by a previous run or by
"caseforge identify-failed" and submits a new batch job targeting exactly
those nodes. The new run overwrites the job state and failed-node record
for the kind, so repeated invocations converge on the remaining failures.`,
	RunE: runRetryCmd,
}

var (
	retryKind string
	retryYes  bool
)

func init() {
	retryCommand.Flags().StringVarP(&retryKind, "kind", "k", string(packager.KindProcessDetails),
		"Generation kind: process_details or usecase_candidates")
	retryCommand.Flags().BoolVarP(&retryYes, "yes", "y", false,
		"Skip the confirmation prompt")

	rootCmd.AddCommand(retryCommand)
}

func runRetryCmd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	kind, err := parseKind(retryKind)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	setPath := retry.FailedSetPath(rt.cfg.StateDir, kind)
	set, err := retry.LoadFailedSet(setPath)
	if err != nil {
		return fmt.Errorf("no failed-node record for %s (run \"caseforge identify-failed\" first): %w", kind, err)
	}
	if len(set.Nodes) == 0 {
		fmt.Printf("No failed nodes recorded for %s; nothing to retry.\n", kind)
		return nil
	}
	if set.ModelKey != rt.cfg.ModelKey {
		return fmt.Errorf("failed-node record is for model %q but the configured model is %q",
			set.ModelKey, rt.cfg.ModelKey)
	}

	fmt.Printf("Retrying %d failed nodes for %s (identified %s)\n",
		len(set.Nodes), kind, set.IdentifiedAt.Format("2006-01-02 15:04:05"))
	if !retryYes && !confirm("Submit retry batch?") {
		fmt.Println("Aborted.")
		return nil
	}

	opts := rt.options(kind)
	opts.NodeIDs = set.NodeIDs()

	summary, err := rt.runner().Run(ctx, opts)
	if summary != nil {
		printSummary(summary)
	}
	return err
}
