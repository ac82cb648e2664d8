package batch

import (
	"context"
	"fmt"
	"time"
)

// JobFailedError reports a job that reached a terminal non-completed state.
// The external job is never resubmitted automatically; the operator decides
// whether to build a retry batch.
type JobFailedError struct {
	JobID  string
	Status string
	Detail string
}

func (e *JobFailedError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("batch job %s %s: %s", e.JobID, e.Status, e.Detail)
	}
	return fmt.Sprintf("batch job %s %s", e.JobID, e.Status)
}

// Poller periodically queries a job until it reaches a terminal state.
// Polling is a coarse delay loop; jobs typically run for hours. Cancelling
// the context abandons observation only; the external job keeps running and
// can be re-polled later from the persisted job state.
type Poller struct {
	client   Client
	interval time.Duration
}

// NewPoller creates a Poller with the given check interval.
func NewPoller(client Client, interval time.Duration) *Poller {
	return &Poller{client: client, interval: interval}
}

// Wait polls until the job is terminal. onProgress, if non-nil, is invoked
// with every snapshot. Returns the final snapshot; a terminal failed, expired
// or cancelled status is returned as a *JobFailedError alongside the snapshot.
func (p *Poller) Wait(ctx context.Context, jobID string, onProgress func(*Job)) (*Job, error) {
	for {
		job, err := p.client.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}

		if onProgress != nil {
			onProgress(job)
		}

		if job.Terminal() {
			if job.Status != StatusCompleted {
				return job, &JobFailedError{JobID: job.ID, Status: job.Status, Detail: job.ErrorDetail}
			}
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-time.After(p.interval):
		}
	}
}
