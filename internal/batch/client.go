// Package batch submits generation requests to the external asynchronous
// batch completion service and observes job progress.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/gruhno/caseforge/internal/packager"
)

// Batch job statuses, as reported by the service.
const (
	StatusValidating = "validating"
	StatusInProgress = "in_progress"
	StatusFinalizing = "finalizing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusExpired    = "expired"
	StatusCancelled  = "cancelled"
)

// completionWindow is the service-side processing deadline for a batch.
const completionWindow = "24h"

// Job is the pipeline's view of an external batch job. The job lifecycle is
// owned entirely by the service; this is a read-only snapshot.
type Job struct {
	ID           string
	Status       string
	Total        int
	Completed    int
	Failed       int
	OutputFileID string
	ErrorFileID  string
	ErrorDetail  string
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Client is the interface to the external batch completion service.
type Client interface {
	// Submit uploads the request sequence and creates a batch job.
	Submit(ctx context.Context, requests []packager.GenerationRequest, metadata map[string]string) (*Job, error)
	// GetJob retrieves the current snapshot of a job.
	GetJob(ctx context.Context, jobID string) (*Job, error)
	// DownloadFile fetches the raw content of a service-side file.
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// OpenAIClient implements Client against the OpenAI Batch API.
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a batch client authenticated with the given API key.
func NewOpenAIClient(apiKey string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return &OpenAIClient{client: openai.NewClient(apiKey)}, nil
}

// Submit serializes the requests into the service's line-delimited format,
// uploads the file, and creates a batch job with a 24h completion window.
func (c *OpenAIClient) Submit(ctx context.Context, requests []packager.GenerationRequest, metadata map[string]string) (*Job, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("no requests to submit")
	}

	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	resp, err := c.client.CreateBatchWithUploadFile(ctx, openai.CreateBatchWithUploadFileRequest{
		Endpoint:         openai.BatchEndpointChatCompletions,
		CompletionWindow: completionWindow,
		Metadata:         meta,
		UploadBatchFileRequest: openai.UploadBatchFileRequest{
			FileName: fmt.Sprintf("caseforge_batch_%d.jsonl", time.Now().Unix()),
			Lines:    chatLines(requests),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit batch: %w", err)
	}

	return jobFromBatch(resp.Batch), nil
}

// GetJob retrieves the current status of a batch job.
func (c *OpenAIClient) GetJob(ctx context.Context, jobID string) (*Job, error) {
	resp, err := c.client.RetrieveBatch(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve batch %s: %w", jobID, err)
	}
	return jobFromBatch(resp.Batch), nil
}

// DownloadFile fetches a file's content from the service.
func (c *OpenAIClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	content, err := c.client.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer content.Close()

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return data, nil
}

// chatLines converts generation requests to the service's wire format.
func chatLines(requests []packager.GenerationRequest) []openai.BatchLineItem {
	lines := make([]openai.BatchLineItem, 0, len(requests))
	for _, req := range requests {
		body := openai.ChatCompletionRequest{
			Model: req.Params.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
			},
			MaxCompletionTokens: req.Params.MaxCompletionTokens,
		}
		if req.Params.JSONResponse {
			body.ResponseFormat = &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			}
		}

		lines = append(lines, openai.BatchChatCompletionRequest{
			CustomID: req.CustomID,
			Method:   "POST",
			URL:      openai.BatchEndpointChatCompletions,
			Body:     body,
		})
	}
	return lines
}

func jobFromBatch(b openai.Batch) *Job {
	job := &Job{
		ID:        b.ID,
		Status:    b.Status,
		Total:     b.RequestCounts.Total,
		Completed: b.RequestCounts.Completed,
		Failed:    b.RequestCounts.Failed,
	}
	if b.OutputFileID != nil {
		job.OutputFileID = *b.OutputFileID
	}
	if b.ErrorFileID != nil {
		job.ErrorFileID = *b.ErrorFileID
	}
	if b.Errors != nil {
		if detail, err := json.Marshal(b.Errors); err == nil {
			job.ErrorDetail = string(detail)
		}
	}
	return job
}
