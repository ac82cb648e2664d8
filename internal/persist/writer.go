// Package persist writes parsed batch results to the database with
// batch-level provenance metadata.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gruhno/caseforge/internal/results"
	"github.com/gruhno/caseforge/internal/store"
)

// Provenance carries the batch-level audit fields stamped onto every record
// written from one run.
type Provenance struct {
	Model       string
	Temperature float32
	ModelKey    string
	BatchID     string
}

// TargetStore is the subset of store operations the writer needs.
type TargetStore interface {
	UpsertDocument(ctx context.Context, doc *store.NodeDocument) (uuid.UUID, error)
	ReplaceUsecases(ctx context.Context, nodeID int64, candidates []store.UsecaseCandidate) (int, error)
}

// Writer persists parsed results. Each node is written independently so one
// failing write never blocks the rest of the batch.
type Writer struct {
	store TargetStore
	owner string
	now   func() time.Time
}

func NewWriter(s TargetStore, owner string) *Writer {
	return &Writer{store: s, owner: owner, now: func() time.Time { return time.Now().UTC() }}
}

// WriteDocuments upserts one process-details document per result. Returns the
// node ids written and a failure record for every node that could not be
// persisted.
func (w *Writer) WriteDocuments(ctx context.Context, docs []results.DocumentResult, prov Provenance) ([]int64, []results.FailureRecord) {
	var written []int64
	var failures []results.FailureRecord

	for _, doc := range docs {
		meta := w.documentMeta(prov)
		meta.RequestID = doc.RequestID

		_, err := w.store.UpsertDocument(ctx, &store.NodeDocument{
			NodeID:       doc.NodeID,
			DocumentType: store.DocumentTypeProcessDetails,
			Title:        fmt.Sprintf("Process Details: %s", doc.NodeCode),
			Content:      doc.Content,
			Owner:        w.owner,
			Meta:         &meta,
		})
		if err != nil {
			if store.IsUniqueViolation(err) {
				// A concurrent writer got there first. The document exists,
				// which is the state this write was trying to reach.
				written = append(written, doc.NodeID)
				continue
			}
			failures = append(failures, results.FailureRecord{
				NodeID: doc.NodeID,
				Reason: results.ReasonConstraintViolation,
				Detail: err.Error(),
			})
			continue
		}
		written = append(written, doc.NodeID)
	}

	return written, failures
}

// WriteUsecases replaces the candidate set for each node in the results. The
// replace is atomic per node; a failed node keeps its previous candidates.
// Returns the node ids written, the total candidates inserted, and failures.
func (w *Writer) WriteUsecases(ctx context.Context, res []results.UsecaseResult, prov Provenance) ([]int64, int, []results.FailureRecord) {
	var written []int64
	var total int
	var failures []results.FailureRecord

	for _, r := range res {
		candidates := make([]store.UsecaseCandidate, 0, len(r.Entries))
		for i, entry := range r.Entries {
			meta := store.UsecaseMeta{
				DocumentMeta:           w.documentMeta(prov),
				ComplexityDetails:      entry.ComplexityDetails,
				TechnologyRequirements: entry.TechnologyRequirements,
				SuccessMetrics:         entry.SuccessMetrics,
				ImplementationTimeline: entry.ImplementationTimeline,
				Category:               entry.Category,
				EstimatedROI:           entry.EstimatedROI,
				RiskLevel:              entry.RiskLevel,
			}
			meta.RequestID = r.RequestID

			candidates = append(candidates, store.UsecaseCandidate{
				NodeID:           r.NodeID,
				CandidateUID:     CandidateUID(r.NodeCode, i+1),
				Title:            entry.Title,
				Description:      entry.Description,
				ImpactAssessment: entry.ImpactAssessment,
				ComplexityScore:  entry.ComplexityScore,
				Owner:            w.owner,
				Meta:             &meta,
			})
		}

		inserted, err := w.store.ReplaceUsecases(ctx, r.NodeID, candidates)
		if err != nil {
			if store.IsUniqueViolation(err) {
				written = append(written, r.NodeID)
				continue
			}
			failures = append(failures, results.FailureRecord{
				NodeID: r.NodeID,
				Reason: results.ReasonConstraintViolation,
				Detail: err.Error(),
			})
			continue
		}
		written = append(written, r.NodeID)
		total += inserted
	}

	return written, total, failures
}

func (w *Writer) documentMeta(prov Provenance) store.DocumentMeta {
	return store.DocumentMeta{
		GeneratedBy: store.GeneratedByBatchAPI,
		Model:       prov.Model,
		Temperature: prov.Temperature,
		ModelKey:    prov.ModelKey,
		BatchID:     prov.BatchID,
		GeneratedAt: w.now(),
	}
}

// CandidateUID builds the deterministic per-node candidate identifier.
// Regenerating a node reuses the same uid sequence, which is why the write
// path replaces the whole set instead of appending.
func CandidateUID(nodeCode string, ordinal int) string {
	return fmt.Sprintf("%s-UC%02d", nodeCode, ordinal)
}
