// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gruhno/caseforge/internal/batch"
	"github.com/gruhno/caseforge/internal/pipeline"
	"github.com/gruhno/caseforge/internal/results"
	"github.com/gruhno/caseforge/internal/retry"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRunSummary outputs the end-of-run accounting for a pipeline run.
func (p *Printer) PrintRunSummary(s *pipeline.Summary) {
	if s == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:       %s\n", s.JobID))
	sb.WriteString(fmt.Sprintf("Targeted:  %d\n", s.Targeted))
	sb.WriteString(fmt.Sprintf("Skipped:   %d\n", s.Skipped))
	sb.WriteString(fmt.Sprintf("Submitted: %d\n", s.Submitted))
	sb.WriteString(fmt.Sprintf("Succeeded: %d\n", s.Succeeded))
	sb.WriteString(fmt.Sprintf("Failed:    %d", s.Failed))

	if len(s.Reasons) > 0 {
		reasons := make([]string, 0, len(s.Reasons))
		for reason := range s.Reasons {
			reasons = append(reasons, string(reason))
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			sb.WriteString(fmt.Sprintf("\n  %-22s %d", reason, s.Reasons[results.FailureReason(reason)]))
		}
	}

	p.printBox(fmt.Sprintf("Run Summary (%s)", s.Kind), sb.String())
}

// PrintJobStatus outputs the current snapshot of a submitted batch job.
func (p *Printer) PrintJobStatus(state *batch.JobState, job *batch.Job) {
	if state == nil || job == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Status:    %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("Completed: %d/%d\n", job.Completed, job.Total))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", job.Failed))
	sb.WriteString(fmt.Sprintf("Submitted: %s\n", state.SubmittedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Model:     %s (%s)", state.Model, state.ModelKey))

	p.printBox(fmt.Sprintf("Batch Job %s (%s)", job.ID, state.Kind), sb.String())
}

// PrintFailedNodes outputs the recorded failed-node set, truncating long lists.
func (p *Printer) PrintFailedNodes(set *retry.FailedSet) {
	if set == nil {
		return
	}
	if len(set.Nodes) == 0 {
		p.printBox(fmt.Sprintf("Failed Nodes (%s)", set.Kind), "None recorded")
		return
	}

	var sb strings.Builder
	for i, n := range set.Nodes {
		if i >= maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more", len(set.Nodes)-maxItemsToShow))
			break
		}
		sb.WriteString(fmt.Sprintf("%d [%s] %s\n", n.NodeID, n.Code, n.Reason))
	}

	title := fmt.Sprintf("Failed Nodes (%s): %d", set.Kind, len(set.Nodes))
	p.printBox(title, strings.TrimRight(sb.String(), "\n"))
}
