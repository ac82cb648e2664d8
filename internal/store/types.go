package store

import (
	"time"

	"github.com/google/uuid"
)

// Document types supported for generated node documentation.
const (
	DocumentTypeProcessDetails  = "process_details"
	DocumentTypeUsecaseSpec     = "usecase_spec"
	DocumentTypeResearchSummary = "research_summary"
)

// GeneratedBy value recorded on every record produced by the batch pipeline.
// Distinguishes pipeline output from user-authored documents.
const GeneratedByBatchAPI = "batch_api"

// ProcessNode is one node of a process taxonomy tree. The dotted code marks
// position only; identity across model variants is carried by PCFID.
type ProcessNode struct {
	ID          int64   `json:"id"`
	ModelKey    string  `json:"model_key"`
	ParentID    *int64  `json:"parent_id,omitempty"`
	PCFID       *string `json:"pcf_id,omitempty"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Level       int     `json:"level"`
	IsLeaf      bool    `json:"is_leaf"`
}

// Desc returns the node description or an empty string.
func (n *ProcessNode) Desc() string {
	if n.Description == nil {
		return ""
	}
	return *n.Description
}

// DocumentMeta is the audit metadata attached to a generated document.
type DocumentMeta struct {
	GeneratedBy string    `json:"generated_by"`
	Model       string    `json:"model"`
	Temperature float32   `json:"temperature"`
	ModelKey    string    `json:"model_key"`
	BatchID     string    `json:"batch_id"`
	RequestID   string    `json:"request_id,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// NodeDocument is one generated document for a node. At most one document
// exists per (node, document_type); regeneration replaces content in place.
type NodeDocument struct {
	ID           uuid.UUID     `json:"id"`
	NodeID       int64         `json:"node_id"`
	DocumentType string        `json:"document_type"`
	Title        string        `json:"title"`
	Content      string        `json:"content"`
	Owner        string        `json:"owner"`
	Meta         *DocumentMeta `json:"meta,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// UsecaseMeta extends DocumentMeta with the structured fields returned for
// each use-case candidate.
type UsecaseMeta struct {
	DocumentMeta
	ComplexityDetails      string `json:"complexity_details,omitempty"`
	TechnologyRequirements string `json:"technology_requirements,omitempty"`
	SuccessMetrics         string `json:"success_metrics,omitempty"`
	ImplementationTimeline string `json:"implementation_timeline,omitempty"`
	Category               string `json:"category,omitempty"`
	EstimatedROI           string `json:"estimated_roi,omitempty"`
	RiskLevel              string `json:"risk_level,omitempty"`
}

// UsecaseCandidate is one AI use-case recommendation for a node.
// CandidateUID is deterministic: "{code}-UC{nn}".
type UsecaseCandidate struct {
	ID               uuid.UUID    `json:"id"`
	NodeID           int64        `json:"node_id"`
	CandidateUID     string       `json:"candidate_uid"`
	Title            string       `json:"title"`
	Description      string       `json:"description"`
	ImpactAssessment string       `json:"impact_assessment,omitempty"`
	ComplexityScore  int          `json:"complexity_score,omitempty"`
	Owner            string       `json:"owner"`
	Meta             *UsecaseMeta `json:"meta,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}
