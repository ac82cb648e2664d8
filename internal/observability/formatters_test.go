package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gruhno/caseforge/internal/batch"
	"github.com/gruhno/caseforge/internal/packager"
	"github.com/gruhno/caseforge/internal/pipeline"
	"github.com/gruhno/caseforge/internal/results"
	"github.com/gruhno/caseforge/internal/retry"
)

func TestPrintRunSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintRunSummary(&pipeline.Summary{
		Kind:      packager.KindProcessDetails,
		JobID:     "batch_abc",
		Targeted:  10,
		Skipped:   1,
		Submitted: 9,
		Succeeded: 7,
		Failed:    2,
		Reasons: map[results.FailureReason]int{
			results.ReasonTokenLimit:      1,
			results.ReasonMalformedOutput: 1,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Run Summary (process_details)")
	assert.Contains(t, out, "batch_abc")
	assert.Contains(t, out, "Succeeded: 7")
	assert.Contains(t, out, "token_limit")
	assert.Contains(t, out, "malformed_output")
}

func TestPrintRunSummary_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintRunSummary(nil)
	assert.Empty(t, buf.String())
}

func TestPrintJobStatus(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintJobStatus(
		&batch.JobState{
			JobID:       "batch_abc",
			Kind:        packager.KindUsecaseCandidates,
			Model:       "gpt-5",
			ModelKey:    "apqc_pcf",
			SubmittedAt: time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
		},
		&batch.Job{ID: "batch_abc", Status: batch.StatusInProgress, Total: 100, Completed: 42},
	)

	out := buf.String()
	assert.Contains(t, out, "Batch Job batch_abc (usecase_candidates)")
	assert.Contains(t, out, "in_progress")
	assert.Contains(t, out, "42/100")
}

func TestPrintFailedNodes_Truncates(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	set := &retry.FailedSet{Kind: packager.KindProcessDetails}
	for i := int64(1); i <= 15; i++ {
		set.Nodes = append(set.Nodes, retry.FailedNode{NodeID: i, Code: "1.1", Reason: results.ReasonUnknown})
	}

	p.PrintFailedNodes(set)

	out := buf.String()
	assert.Contains(t, out, "Failed Nodes (process_details): 15")
	assert.Contains(t, out, "... and 5 more")
	assert.Equal(t, maxItemsToShow, strings.Count(out, "[1.1]"))
}

func TestPrintFailedNodes_Empty(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintFailedNodes(&retry.FailedSet{Kind: packager.KindProcessDetails})
	assert.Contains(t, buf.String(), "None recorded")
}
