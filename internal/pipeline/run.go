// Package pipeline provides the high-level orchestration for batch document
// generation: target selection, context building, submission, polling, result
// harvesting, and failure identification.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gruhno/caseforge/internal/batch"
	"github.com/gruhno/caseforge/internal/contextbuild"
	"github.com/gruhno/caseforge/internal/packager"
	"github.com/gruhno/caseforge/internal/persist"
	"github.com/gruhno/caseforge/internal/results"
	"github.com/gruhno/caseforge/internal/retry"
	"github.com/gruhno/caseforge/internal/store"
)

// Store is the subset of database operations the pipeline needs. The concrete
// *store.Store satisfies it; tests substitute a fake.
type Store interface {
	contextbuild.NodeSource
	packager.DocumentSource
	persist.TargetStore
	ListLeafNodes(ctx context.Context, modelKey string) ([]store.ProcessNode, error)
	ListNodesByIDs(ctx context.Context, ids []int64) ([]store.ProcessNode, error)
}

// Options configure one pipeline run.
type Options struct {
	Kind        packager.RequestKind
	Model       string
	Temperature float32
	ModelKey    string
	Owner       string
	StateDir    string

	// TestMode caps the run at TestCount nodes for a cheap end-to-end check.
	TestMode  bool
	TestCount int

	// NodeIDs, when set, targets exactly these nodes instead of all leaves.
	// Retry runs use this to resubmit a previously identified failed set.
	NodeIDs []int64

	Context      contextbuild.Options
	PollInterval time.Duration
}

// Summary is the end-of-run accounting. Succeeded plus Failed covers every
// node that was submitted; Skipped nodes never entered the batch.
type Summary struct {
	Kind      packager.RequestKind
	JobID     string
	Targeted  int
	Skipped   int
	Submitted int
	Succeeded int
	Failed    int
	Reasons   map[results.FailureReason]int
}

// Runner executes pipeline runs against a store and a batch service.
type Runner struct {
	store  Store
	client batch.Client
	out    io.Writer
}

func NewRunner(s Store, client batch.Client, out io.Writer) *Runner {
	return &Runner{store: s, client: client, out: out}
}

// Run executes the full cycle: select targets, build contexts, package,
// submit, persist job state, poll to completion, and harvest results.
// The job state file is written immediately after submission so an
// interrupted run can be resumed with Resume.
func (r *Runner) Run(ctx context.Context, opts Options) (*Summary, error) {
	targets, err := r.selectTargets(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("no target nodes for %s/%s", opts.ModelKey, opts.Kind)
	}
	fmt.Fprintf(r.out, "Step 1/5: Selected %d target nodes for %s\n", len(targets), opts.Kind)

	items, contextSkipped, err := r.buildContexts(ctx, targets, opts)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(r.out, "Step 2/5: Built context for %d nodes (%d skipped)\n", len(items), len(contextSkipped))

	params := packager.DefaultParams(opts.Kind, opts.Model, opts.Temperature)
	requests, packSkipped, err := packager.New(r.store).Package(ctx, items, opts.Kind, params)
	if err != nil {
		return nil, fmt.Errorf("packaging failed: %w", err)
	}
	skipped := append(contextSkipped, packSkipped...)
	for _, s := range skipped {
		fmt.Fprintf(r.out, "  skipping node %d [%s]: %s\n", s.NodeID, s.Code, s.Reason)
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("all %d target nodes were skipped", len(targets))
	}

	fmt.Fprintf(r.out, "Step 3/5: Submitting %d requests...\n", len(requests))
	job, err := r.client.Submit(ctx, requests, map[string]string{
		"kind":      string(opts.Kind),
		"model_key": opts.ModelKey,
	})
	if err != nil {
		return nil, fmt.Errorf("batch submission failed: %w", err)
	}
	fmt.Fprintf(r.out, "  job %s created (%s)\n", job.ID, job.Status)

	state := &batch.JobState{
		JobID:       job.ID,
		Kind:        opts.Kind,
		ModelKey:    opts.ModelKey,
		Model:       opts.Model,
		Temperature: opts.Temperature,
		SubmittedAt: time.Now().UTC(),
		NodeIDs:     requestNodeIDs(requests),
	}
	statePath := batch.StatePath(opts.StateDir, opts.Kind)
	if err := batch.SaveState(statePath, state); err != nil {
		return nil, err
	}
	fmt.Fprintf(r.out, "  job state written to %s\n", statePath)

	summary, err := r.await(ctx, state, opts)
	if summary != nil {
		summary.Targeted = len(targets)
		summary.Skipped = len(skipped)
	}
	return summary, err
}

// Resume picks up a previously submitted job from its persisted state, polls
// it to completion, and harvests the results. Used by the monitor command and
// after an interrupted Run.
func (r *Runner) Resume(ctx context.Context, state *batch.JobState, opts Options) (*Summary, error) {
	summary, err := r.await(ctx, state, opts)
	if summary != nil {
		summary.Targeted = len(state.NodeIDs)
	}
	return summary, err
}

func (r *Runner) await(ctx context.Context, state *batch.JobState, opts Options) (*Summary, error) {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}

	fmt.Fprintf(r.out, "Step 4/5: Polling job %s every %s...\n", state.JobID, interval)
	poller := batch.NewPoller(r.client, interval)
	job, err := poller.Wait(ctx, state.JobID, func(j *batch.Job) {
		fmt.Fprintf(r.out, "  %s: %d/%d completed, %d failed\n", j.Status, j.Completed, j.Total, j.Failed)
	})
	if err != nil {
		var failed *batch.JobFailedError
		if errors.As(err, &failed) {
			// The whole job died before producing output. Record every
			// targeted node as failed so a retry run can resubmit them.
			return r.recordJobFailure(ctx, state, opts, failed)
		}
		return nil, err
	}

	return r.harvest(ctx, state, opts, job)
}

// harvest downloads the output and error files, parses them, persists the
// results, and identifies the failed set.
func (r *Runner) harvest(ctx context.Context, state *batch.JobState, opts Options, job *batch.Job) (*Summary, error) {
	fmt.Fprintf(r.out, "Step 5/5: Harvesting results for job %s...\n", job.ID)

	var outputData, errorData []byte
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if job.OutputFileID == "" {
			return nil
		}
		var err error
		outputData, err = r.client.DownloadFile(gCtx, job.OutputFileID)
		return err
	})
	g.Go(func() error {
		if job.ErrorFileID == "" {
			return nil
		}
		var err error
		errorData, err = r.client.DownloadFile(gCtx, job.ErrorFileID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to download result files: %w", err)
	}

	prov := persist.Provenance{
		Model:       state.Model,
		Temperature: state.Temperature,
		ModelKey:    state.ModelKey,
		BatchID:     state.JobID,
	}
	writer := persist.NewWriter(r.store, opts.Owner)

	var persisted []int64
	var failures []results.FailureRecord

	switch state.Kind {
	case packager.KindUsecaseCandidates:
		parsed, parseFailures := results.ParseUsecases(outputData)
		written, total, writeFailures := writer.WriteUsecases(ctx, parsed, prov)
		persisted = written
		failures = append(parseFailures, writeFailures...)
		fmt.Fprintf(r.out, "  persisted %d candidates across %d nodes\n", total, len(written))
	default:
		parsed, parseFailures := results.ParseProcessDetails(outputData)
		written, writeFailures := writer.WriteDocuments(ctx, parsed, prov)
		persisted = written
		failures = append(parseFailures, writeFailures...)
		fmt.Fprintf(r.out, "  persisted %d documents\n", len(written))
	}

	// The error file carries the service's own per-request failures. Parse it
	// with the same decoder; it yields no documents, only failure records.
	if len(errorData) > 0 {
		_, errFailures := results.ParseProcessDetails(errorData)
		failures = append(failures, errFailures...)
	}

	return r.finish(ctx, state, opts, persisted, failures)
}

func (r *Runner) recordJobFailure(ctx context.Context, state *batch.JobState, opts Options, failed *batch.JobFailedError) (*Summary, error) {
	fmt.Fprintf(r.out, "  job %s ended %s\n", failed.JobID, failed.Status)
	summary, err := r.finish(ctx, state, opts, nil, nil)
	if err != nil {
		return nil, err
	}
	return summary, failed
}

// finish diffs targets against persisted output, writes the failed-node
// record, and builds the summary.
func (r *Runner) finish(ctx context.Context, state *batch.JobState, opts Options, persisted []int64, failures []results.FailureRecord) (*Summary, error) {
	targets, err := r.store.ListNodesByIDs(ctx, state.NodeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load submitted nodes: %w", err)
	}

	failedNodes := retry.Identify(targets, persisted, failures)
	set := &retry.FailedSet{
		Kind:         state.Kind,
		ModelKey:     state.ModelKey,
		IdentifiedAt: time.Now().UTC(),
		Nodes:        failedNodes,
	}
	setPath := retry.FailedSetPath(opts.StateDir, state.Kind)
	if err := retry.SaveFailedSet(setPath, set); err != nil {
		return nil, err
	}

	summary := &Summary{
		Kind:      state.Kind,
		JobID:     state.JobID,
		Submitted: len(state.NodeIDs),
		Succeeded: len(persisted),
		Failed:    len(failedNodes),
		Reasons:   retry.CountByReason(failedNodes),
	}

	fmt.Fprintf(r.out, "Done: %d succeeded, %d failed", summary.Succeeded, summary.Failed)
	if summary.Failed > 0 {
		fmt.Fprintf(r.out, " (recorded in %s)", setPath)
	}
	fmt.Fprintln(r.out)
	return summary, nil
}

func (r *Runner) selectTargets(ctx context.Context, opts Options) ([]store.ProcessNode, error) {
	if len(opts.NodeIDs) > 0 {
		nodes, err := r.store.ListNodesByIDs(ctx, opts.NodeIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load target nodes: %w", err)
		}
		return nodes, nil
	}

	nodes, err := r.store.ListLeafNodes(ctx, opts.ModelKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaf nodes: %w", err)
	}
	if opts.TestMode && opts.TestCount > 0 && len(nodes) > opts.TestCount {
		nodes = nodes[:opts.TestCount]
	}
	return nodes, nil
}

// buildContexts assembles the prompt context per node. Nodes with
// insufficient data are skipped, not failed; every other error aborts the
// run before anything is submitted.
func (r *Runner) buildContexts(ctx context.Context, targets []store.ProcessNode, opts Options) ([]packager.NodeContext, []packager.SkippedNode, error) {
	builder := contextbuild.New(r.store)

	var items []packager.NodeContext
	var skipped []packager.SkippedNode

	for i := range targets {
		node := targets[i]
		block, err := builder.Build(ctx, &node, opts.Context)
		if err != nil {
			if errors.Is(err, contextbuild.ErrContextUnavailable) {
				skipped = append(skipped, packager.SkippedNode{
					NodeID: node.ID,
					Code:   node.Code,
					Reason: "insufficient data to build context",
				})
				continue
			}
			return nil, nil, fmt.Errorf("context build failed for node %d: %w", node.ID, err)
		}
		items = append(items, packager.NodeContext{Node: node, Context: block})
	}
	return items, skipped, nil
}

func requestNodeIDs(requests []packager.GenerationRequest) []int64 {
	ids := make([]int64, 0, len(requests))
	for _, req := range requests {
		ids = append(ids, req.NodeID)
	}
	return ids
}
