// Package packager converts (node, context) pairs into independently
// addressable generation requests for the batch completion service.
package packager

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gruhno/caseforge/internal/prompts"
	"github.com/gruhno/caseforge/internal/store"
)

// RequestKind selects the generation target for a batch.
type RequestKind string

const (
	KindProcessDetails    RequestKind = "process_details"
	KindUsecaseCandidates RequestKind = "usecase_candidates"
)

// Default max completion token budgets. Use-case generation restates process
// context in its output, so it carries a larger budget.
const (
	processDetailsMaxTokens = 8000
	usecaseMaxTokens        = 15000
)

// ModelParams are the per-request model settings.
type ModelParams struct {
	Model               string
	Temperature         float32
	MaxCompletionTokens int
	JSONResponse        bool
}

// DefaultParams returns the model parameters for a request kind.
func DefaultParams(kind RequestKind, model string, temperature float32) ModelParams {
	p := ModelParams{Model: model, Temperature: temperature}
	switch kind {
	case KindUsecaseCandidates:
		p.MaxCompletionTokens = usecaseMaxTokens
		p.JSONResponse = true
	default:
		p.MaxCompletionTokens = processDetailsMaxTokens
	}
	return p
}

// GenerationRequest is one independently addressable unit of batch work.
// CustomID correlates the eventual result back to the originating node
// without relying on response order.
type GenerationRequest struct {
	CustomID     string
	NodeID       int64
	NodeCode     string
	Kind         RequestKind
	SystemPrompt string
	UserPrompt   string
	Params       ModelParams
}

// NodeContext pairs a node with its assembled hierarchical context.
type NodeContext struct {
	Node    store.ProcessNode
	Context string
}

// SkippedNode records a node excluded from packaging with the reason.
// Skips are recoverable preconditions, not errors.
type SkippedNode struct {
	NodeID int64
	Code   string
	Reason string
}

// DocumentSource is the store subset needed to check packaging preconditions.
type DocumentSource interface {
	GetDocument(ctx context.Context, nodeID int64, documentType string) (*store.NodeDocument, error)
}

// Packager builds request sequences from node contexts.
type Packager struct {
	docs DocumentSource
}

// New creates a Packager. docs may be nil when only process-details batches
// are packaged.
func New(docs DocumentSource) *Packager {
	return &Packager{docs: docs}
}

// Package renders one GenerationRequest per input node. For usecase
// candidates, nodes without an existing process_details document are skipped
// and returned separately rather than failing the batch.
func (p *Packager) Package(ctx context.Context, items []NodeContext, kind RequestKind, params ModelParams) ([]GenerationRequest, []SkippedNode, error) {
	systemPrompt, userTemplate, err := templatesFor(kind)
	if err != nil {
		return nil, nil, err
	}

	requests := make([]GenerationRequest, 0, len(items))
	var skipped []SkippedNode

	for _, item := range items {
		data := map[string]string{"Context": item.Context}

		if kind == KindUsecaseCandidates {
			if p.docs == nil {
				return nil, nil, fmt.Errorf("usecase packaging requires a document source")
			}
			doc, err := p.docs.GetDocument(ctx, item.Node.ID, store.DocumentTypeProcessDetails)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to check process details for node %d: %w", item.Node.ID, err)
			}
			if doc == nil {
				skipped = append(skipped, SkippedNode{
					NodeID: item.Node.ID,
					Code:   item.Node.Code,
					Reason: "missing process_details document",
				})
				continue
			}
			data["ProcessDetails"] = doc.Content
		}

		requests = append(requests, GenerationRequest{
			CustomID:     FormatCustomID(kind, item.Node.ID, item.Node.Code),
			NodeID:       item.Node.ID,
			NodeCode:     item.Node.Code,
			Kind:         kind,
			SystemPrompt: systemPrompt,
			UserPrompt:   prompts.Format(userTemplate, data),
			Params:       params,
		})
	}

	return requests, skipped, nil
}

func templatesFor(kind RequestKind) (system, user string, err error) {
	switch kind {
	case KindProcessDetails:
		return prompts.MustGet("generation.json", "process-details-system"),
			prompts.MustGet("generation.json", "process-details-user"), nil
	case KindUsecaseCandidates:
		return prompts.MustGet("generation.json", "usecase-candidates-system"),
			prompts.MustGet("generation.json", "usecase-candidates-user"), nil
	default:
		return "", "", fmt.Errorf("unknown request kind %q", kind)
	}
}

// FormatCustomID renders the wire correlation id for a request.
// The format is part of the batch wire contract:
// "node_{id}_{code}" for process details, "usecases_node_{id}_{code}" for
// use-case candidates.
func FormatCustomID(kind RequestKind, nodeID int64, code string) string {
	if kind == KindUsecaseCandidates {
		return fmt.Sprintf("usecases_node_%d_%s", nodeID, code)
	}
	return fmt.Sprintf("node_%d_%s", nodeID, code)
}

// ParseCustomID recovers the kind, node id, and code from a correlation id.
func ParseCustomID(customID string) (RequestKind, int64, string, error) {
	kind := KindProcessDetails
	rest := customID

	if strings.HasPrefix(rest, "usecases_") {
		kind = KindUsecaseCandidates
		rest = strings.TrimPrefix(rest, "usecases_")
	}
	if !strings.HasPrefix(rest, "node_") {
		return "", 0, "", fmt.Errorf("malformed custom id %q", customID)
	}
	rest = strings.TrimPrefix(rest, "node_")

	idStr, code, found := strings.Cut(rest, "_")
	if !found {
		return "", 0, "", fmt.Errorf("malformed custom id %q", customID)
	}

	nodeID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return "", 0, "", fmt.Errorf("malformed node id in custom id %q: %w", customID, err)
	}
	return kind, nodeID, code, nil
}
