package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gruhno/caseforge/internal/packager"
)

// JobState is the persisted record of an active batch submission. It is
// written on submit and read by the monitor and retry commands, so a pipeline
// invocation can exit after submitting and the job can be re-polled later.
// One file exists per request kind; each submission overwrites it.
type JobState struct {
	JobID       string               `json:"job_id"`
	Kind        packager.RequestKind `json:"kind"`
	ModelKey    string               `json:"model_key"`
	Model       string               `json:"model"`
	Temperature float32              `json:"temperature"`
	SubmittedAt time.Time            `json:"submitted_at"`
	NodeIDs     []int64              `json:"node_ids"`
}

// StatePath returns the job state file location for a request kind.
func StatePath(dir string, kind packager.RequestKind) string {
	return filepath.Join(dir, string(kind)+"_job.json")
}

// SaveState writes the job state record, creating parent directories as needed.
func SaveState(path string, state *JobState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job state: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write job state %s: %w", path, err)
	}
	return nil
}

// LoadState reads a previously saved job state record.
func LoadState(path string) (*JobState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job state %s: %w", path, err)
	}

	var state JobState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse job state %s: %w", path, err)
	}
	return &state, nil
}
