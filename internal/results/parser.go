// Package results decodes completed batch output into structured records,
// tolerating malformed and partial entries.
package results

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gruhno/caseforge/internal/packager"
	"github.com/gruhno/caseforge/internal/schemas"
)

// Complexity labels are mapped onto a 1-10 scale. Any other label fails
// closed as malformed output rather than defaulting.
const (
	complexityLow    = 2
	complexityMedium = 5
	complexityHigh   = 8
)

// DocumentResult is one successfully parsed process-details document.
type DocumentResult struct {
	NodeID    int64
	NodeCode  string
	RequestID string
	Content   string
}

// UsecaseEntry is one parsed use-case candidate.
type UsecaseEntry struct {
	Title                  string `json:"title"`
	Description            string `json:"description"`
	ImpactAssessment       string `json:"impact_assessment"`
	ComplexityLabel        string `json:"complexity_score"`
	ComplexityDetails      string `json:"complexity_details"`
	TechnologyRequirements string `json:"technology_requirements"`
	SuccessMetrics         string `json:"success_metrics"`
	ImplementationTimeline string `json:"implementation_timeline"`
	Category               string `json:"category"`
	EstimatedROI           string `json:"estimated_roi"`
	RiskLevel              string `json:"risk_level"`

	// ComplexityScore is the numeric mapping of ComplexityLabel.
	ComplexityScore int `json:"-"`
}

// UsecaseResult is the parsed candidate set for one node.
type UsecaseResult struct {
	NodeID    int64
	NodeCode  string
	RequestID string
	Entries   []UsecaseEntry
}

// resultLine mirrors the service's line-delimited result format. Each line is
// keyed by the custom id of the originating request; result ordering carries
// no meaning.
type resultLine struct {
	CustomID string        `json:"custom_id"`
	Response *lineResponse `json:"response"`
	Error    *lineError    `json:"error"`
}

type lineResponse struct {
	StatusCode int             `json:"status_code"`
	RequestID  string          `json:"request_id"`
	Body       json.RawMessage `json:"body"`
}

type lineError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type completionBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *lineError `json:"error"`
}

// ParseProcessDetails decodes completed output lines into document results.
// The markdown body is stored as-is; section structure is a prompt-side hint,
// not a validation target. Failures are collected per line, never raised.
func ParseProcessDetails(data []byte) ([]DocumentResult, []FailureRecord) {
	var docs []DocumentResult
	var failures []FailureRecord

	forEachLine(data, func(line []byte) {
		doc, failure := extractContent(line)
		if failure != nil {
			failures = append(failures, *failure)
			return
		}
		docs = append(docs, *doc)
	})

	return docs, failures
}

// ParseUsecases decodes completed output lines into per-node candidate sets.
// Decoding failures are isolated per entry: a malformed candidate is recorded
// and skipped without discarding its siblings or other nodes.
func ParseUsecases(data []byte) ([]UsecaseResult, []FailureRecord) {
	var results []UsecaseResult
	var failures []FailureRecord

	forEachLine(data, func(line []byte) {
		doc, failure := extractContent(line)
		if failure != nil {
			failures = append(failures, *failure)
			return
		}

		entries, entryFailures := decodeUsecaseList(doc)
		failures = append(failures, entryFailures...)
		if len(entries) == 0 {
			return
		}

		results = append(results, UsecaseResult{
			NodeID:    doc.NodeID,
			NodeCode:  doc.NodeCode,
			RequestID: doc.RequestID,
			Entries:   entries,
		})
	})

	return results, failures
}

// MapComplexity maps the fixed textual vocabulary onto the numeric 1-10
// scale. Unrecognized labels are an error; callers record them as malformed
// output rather than defaulting silently.
func MapComplexity(label string) (int, error) {
	switch label {
	case "Low":
		return complexityLow, nil
	case "Medium":
		return complexityMedium, nil
	case "High":
		return complexityHigh, nil
	default:
		return 0, fmt.Errorf("unrecognized complexity label %q", label)
	}
}

func forEachLine(data []byte, fn func(line []byte)) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
}

// extractContent decodes one result line down to the model output text.
// Returns either a DocumentResult or a FailureRecord, never both.
func extractContent(line []byte) (*DocumentResult, *FailureRecord) {
	var rl resultLine
	if err := json.Unmarshal(line, &rl); err != nil {
		return nil, &FailureRecord{
			Reason: ReasonMalformedOutput,
			Detail: fmt.Sprintf("undecodable result line: %v", err),
		}
	}

	_, nodeID, code, err := packager.ParseCustomID(rl.CustomID)
	if err != nil {
		return nil, &FailureRecord{
			CustomID: rl.CustomID,
			Reason:   ReasonMalformedOutput,
			Detail:   err.Error(),
		}
	}

	if rl.Error != nil {
		return nil, &FailureRecord{
			NodeID:   nodeID,
			CustomID: rl.CustomID,
			Reason:   classifyServiceError(rl.Error.Code, rl.Error.Message),
			Detail:   rl.Error.Message,
		}
	}
	if rl.Response == nil {
		return nil, &FailureRecord{
			NodeID:   nodeID,
			CustomID: rl.CustomID,
			Reason:   ReasonUnknown,
			Detail:   "result line has neither response nor error",
		}
	}

	var body completionBody
	if err := json.Unmarshal(rl.Response.Body, &body); err != nil {
		return nil, &FailureRecord{
			NodeID:   nodeID,
			CustomID: rl.CustomID,
			Reason:   ReasonMalformedOutput,
			Detail:   fmt.Sprintf("undecodable response body: %v", err),
		}
	}

	if rl.Response.StatusCode != 200 {
		code, message := "", fmt.Sprintf("status %d", rl.Response.StatusCode)
		if body.Error != nil {
			code, message = body.Error.Code, body.Error.Message
		}
		return nil, &FailureRecord{
			NodeID:   nodeID,
			CustomID: rl.CustomID,
			Reason:   classifyServiceError(code, message),
			Detail:   message,
		}
	}

	if len(body.Choices) == 0 || body.Choices[0].Message.Content == "" {
		return nil, &FailureRecord{
			NodeID:   nodeID,
			CustomID: rl.CustomID,
			Reason:   ReasonMalformedOutput,
			Detail:   "response has no content",
		}
	}

	if body.Choices[0].FinishReason == "length" {
		return nil, &FailureRecord{
			NodeID:   nodeID,
			CustomID: rl.CustomID,
			Reason:   ReasonTokenLimit,
			Detail:   "output truncated at the completion token limit",
		}
	}

	return &DocumentResult{
		NodeID:    nodeID,
		NodeCode:  code,
		RequestID: rl.Response.RequestID,
		Content:   body.Choices[0].Message.Content,
	}, nil
}

// decodeUsecaseList parses the model's JSON content for one node. Accepts
// either a bare array or an object wrapping a use_cases array.
func decodeUsecaseList(doc *DocumentResult) ([]UsecaseEntry, []FailureRecord) {
	content := cleanJSONBlock(doc.Content)

	rawEntries, err := unwrapEntries([]byte(content))
	if err != nil {
		return nil, []FailureRecord{{
			NodeID:   doc.NodeID,
			CustomID: packager.FormatCustomID(packager.KindUsecaseCandidates, doc.NodeID, doc.NodeCode),
			Reason:   ReasonMalformedOutput,
			Detail:   err.Error(),
		}}
	}

	var entries []UsecaseEntry
	var failures []FailureRecord

	for i, raw := range rawEntries {
		entry, err := decodeEntry(raw)
		if err != nil {
			failures = append(failures, FailureRecord{
				NodeID: doc.NodeID,
				Reason: ReasonMalformedOutput,
				Detail: fmt.Sprintf("entry %d: %v", i+1, err),
			})
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, failures
}

func unwrapEntries(content []byte) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(content, &entries); err == nil {
		return entries, nil
	}

	var wrapper struct {
		Usecases []json.RawMessage `json:"use_cases"`
	}
	if err := json.Unmarshal(content, &wrapper); err != nil {
		return nil, fmt.Errorf("content is neither a JSON array nor a use_cases object: %w", err)
	}
	if wrapper.Usecases == nil {
		return nil, fmt.Errorf("object content has no use_cases array")
	}
	return wrapper.Usecases, nil
}

func decodeEntry(raw json.RawMessage) (*UsecaseEntry, error) {
	if err := schemas.ValidateUsecaseEntry(string(raw)); err != nil {
		return nil, err
	}

	var entry UsecaseEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode entry: %w", err)
	}

	score, err := MapComplexity(entry.ComplexityLabel)
	if err != nil {
		return nil, err
	}
	entry.ComplexityScore = score

	return &entry, nil
}

// cleanJSONBlock removes markdown code block wrappers from JSON content.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
