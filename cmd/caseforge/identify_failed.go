package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gruhno/caseforge/internal/observability"
	"github.com/gruhno/caseforge/internal/packager"
	"github.com/gruhno/caseforge/internal/retry"
)

var identifyCommand = &cobra.Command{
	Use:   "identify-failed",
	Short: "Identify leaf nodes without generated output and record them",
	Long: `Diffs the leaf nodes of the configured model variant against the nodes that
already have output of the given kind, and writes the difference to the
failed-node record in the state directory. A process_details node counts as
done when any document of that type exists; use-case candidates count only
when batch-generated. Use "caseforge retry-failed" to resubmit exactly that
set.

Reasons captured during a run are only available right after it; this offline
pass records every missing node with reason "unknown".`,
	RunE: runIdentifyCmd,
}

var identifyKind string

func init() {
	identifyCommand.Flags().StringVarP(&identifyKind, "kind", "k", string(packager.KindProcessDetails),
		"Generation kind: process_details or usecase_candidates")

	rootCmd.AddCommand(identifyCommand)
}

func runIdentifyCmd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	kind, err := parseKind(identifyKind)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	set, total, err := retry.IdentifyMissing(ctx, rt.store, kind, rt.cfg.ModelKey)
	if err != nil {
		return err
	}

	setPath := retry.FailedSetPath(rt.cfg.StateDir, kind)
	if err := retry.SaveFailedSet(setPath, set); err != nil {
		return err
	}

	fmt.Printf("%d of %d leaf nodes have no %s output\n", len(set.Nodes), total, kind)
	observability.NewPrinter(os.Stdout).PrintFailedNodes(set)
	fmt.Printf("Recorded in %s\n", setPath)
	return nil
}
