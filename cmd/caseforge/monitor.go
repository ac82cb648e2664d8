package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gruhno/caseforge/internal/batch"
	"github.com/gruhno/caseforge/internal/observability"
	"github.com/gruhno/caseforge/internal/packager"
)

var monitorCommand = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the last submitted batch job and harvest its results",
	Long: `Reads the persisted job state for the given kind, polls the external job
until it reaches a terminal state, and processes the results. With --status
the command prints the current job snapshot and exits without waiting.`,
	RunE: runMonitorCmd,
}

var (
	monitorKind       string
	monitorStatusOnly bool
)

func init() {
	monitorCommand.Flags().StringVarP(&monitorKind, "kind", "k", string(packager.KindProcessDetails),
		"Job kind: process_details or usecase_candidates")
	monitorCommand.Flags().BoolVar(&monitorStatusOnly, "status", false,
		"Print the current job status and exit without processing results")

	rootCmd.AddCommand(monitorCommand)
}

func runMonitorCmd(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	kind, err := parseKind(monitorKind)
	if err != nil {
		return err
	}

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	state, err := batch.LoadState(batch.StatePath(rt.cfg.StateDir, kind))
	if err != nil {
		return fmt.Errorf("no job state for %s (run \"caseforge generate\" first): %w", kind, err)
	}

	if monitorStatusOnly {
		job, err := rt.client.GetJob(ctx, state.JobID)
		if err != nil {
			return err
		}
		observability.NewPrinter(os.Stdout).PrintJobStatus(state, job)
		return nil
	}

	summary, err := rt.runner().Resume(ctx, state, rt.options(kind))
	if summary != nil {
		printSummary(summary)
	}
	return err
}
