package batch

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gruhno/caseforge/internal/packager"
)

func TestJob_Terminal(t *testing.T) {
	tests := []struct {
		status   string
		terminal bool
	}{
		{StatusValidating, false},
		{StatusInProgress, false},
		{StatusFinalizing, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusExpired, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			j := &Job{Status: tt.status}
			assert.Equal(t, tt.terminal, j.Terminal())
		})
	}
}

func TestChatLines(t *testing.T) {
	requests := []packager.GenerationRequest{
		{
			CustomID:     "node_1_1.1.1",
			SystemPrompt: "system prompt",
			UserPrompt:   "user prompt",
			Params: packager.ModelParams{
				Model:               "gpt-5",
				MaxCompletionTokens: 8000,
			},
		},
		{
			CustomID:     "usecases_node_2_1.1.2",
			SystemPrompt: "system prompt",
			UserPrompt:   "user prompt",
			Params: packager.ModelParams{
				Model:               "gpt-5",
				MaxCompletionTokens: 15000,
				JSONResponse:        true,
			},
		},
	}

	lines := chatLines(requests)
	require.Len(t, lines, 2)

	first, err := json.Marshal(lines[0])
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(first, &decoded))
	assert.Equal(t, "node_1_1.1.1", decoded["custom_id"])
	assert.Equal(t, "POST", decoded["method"])
	assert.Equal(t, "/v1/chat/completions", decoded["url"])

	body, ok := decoded["body"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "gpt-5", body["model"])
}

func TestJobState_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := StatePath(dir, packager.KindProcessDetails)
	assert.Equal(t, filepath.Join(dir, "process_details_job.json"), path)

	state := &JobState{
		JobID:       "batch_abc123",
		Kind:        packager.KindProcessDetails,
		ModelKey:    "apqc_pcf",
		Model:       "gpt-5",
		Temperature: 1.0,
		SubmittedAt: time.Now().UTC().Truncate(time.Second),
		NodeIDs:     []int64{1, 2, 3},
	}
	require.NoError(t, SaveState(path, state))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, state.JobID, loaded.JobID)
	assert.Equal(t, state.Kind, loaded.Kind)
	assert.Equal(t, state.NodeIDs, loaded.NodeIDs)
}

func TestJobState_OverwrittenPerSubmission(t *testing.T) {
	dir := t.TempDir()
	path := StatePath(dir, packager.KindUsecaseCandidates)

	require.NoError(t, SaveState(path, &JobState{JobID: "batch_old"}))
	require.NoError(t, SaveState(path, &JobState{JobID: "batch_new"}))

	loaded, err := LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, "batch_new", loaded.JobID)
}

func TestLoadState_Missing(t *testing.T) {
	_, err := LoadState(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

type scriptedClient struct {
	jobs []Job
	idx  int
}

func (s *scriptedClient) Submit(context.Context, []packager.GenerationRequest, map[string]string) (*Job, error) {
	return nil, nil
}

func (s *scriptedClient) GetJob(context.Context, string) (*Job, error) {
	job := s.jobs[s.idx]
	if s.idx < len(s.jobs)-1 {
		s.idx++
	}
	return &job, nil
}

func (s *scriptedClient) DownloadFile(context.Context, string) ([]byte, error) {
	return nil, nil
}

func TestPoller_WaitUntilCompleted(t *testing.T) {
	client := &scriptedClient{jobs: []Job{
		{ID: "b1", Status: StatusInProgress, Total: 10, Completed: 4},
		{ID: "b1", Status: StatusCompleted, Total: 10, Completed: 10, OutputFileID: "file_out"},
	}}

	var snapshots []string
	poller := NewPoller(client, time.Millisecond)
	job, err := poller.Wait(context.Background(), "b1", func(j *Job) {
		snapshots = append(snapshots, j.Status)
	})

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, "file_out", job.OutputFileID)
	assert.Equal(t, []string{StatusInProgress, StatusCompleted}, snapshots)
}

func TestPoller_TerminalFailure(t *testing.T) {
	client := &scriptedClient{jobs: []Job{
		{ID: "b2", Status: StatusExpired, ErrorDetail: "window elapsed"},
	}}

	poller := NewPoller(client, time.Millisecond)
	job, err := poller.Wait(context.Background(), "b2", nil)

	require.Error(t, err)
	var jobErr *JobFailedError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, StatusExpired, jobErr.Status)
	assert.Equal(t, StatusExpired, job.Status)
}

func TestPoller_ContextCancellation(t *testing.T) {
	client := &scriptedClient{jobs: []Job{
		{ID: "b3", Status: StatusInProgress},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	poller := NewPoller(client, time.Hour)
	_, err := poller.Wait(ctx, "b3", nil)
	require.ErrorIs(t, err, context.Canceled)
}
