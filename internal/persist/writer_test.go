package persist

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gruhno/caseforge/internal/results"
	"github.com/gruhno/caseforge/internal/store"
)

type fakeStore struct {
	docs         map[int64]*store.NodeDocument
	usecases     map[int64][]store.UsecaseCandidate
	docErrs      map[int64]error
	usecaseErrs  map[int64]error
	replaceCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:        make(map[int64]*store.NodeDocument),
		usecases:    make(map[int64][]store.UsecaseCandidate),
		docErrs:     make(map[int64]error),
		usecaseErrs: make(map[int64]error),
	}
}

func (f *fakeStore) UpsertDocument(_ context.Context, doc *store.NodeDocument) (uuid.UUID, error) {
	if err := f.docErrs[doc.NodeID]; err != nil {
		return uuid.Nil, err
	}
	f.docs[doc.NodeID] = doc
	return uuid.New(), nil
}

func (f *fakeStore) ReplaceUsecases(_ context.Context, nodeID int64, candidates []store.UsecaseCandidate) (int, error) {
	f.replaceCalls++
	if err := f.usecaseErrs[nodeID]; err != nil {
		return 0, err
	}
	f.usecases[nodeID] = candidates
	return len(candidates), nil
}

func testProvenance() Provenance {
	return Provenance{Model: "gpt-5", Temperature: 1.0, ModelKey: "apqc_pcf", BatchID: "batch_abc"}
}

func TestWriteDocuments(t *testing.T) {
	fs := newFakeStore()
	w := NewWriter(fs, "svc.caseforge")
	w.now = func() time.Time { return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC) }

	docs := []results.DocumentResult{
		{NodeID: 1, NodeCode: "1.1", RequestID: "req_1", Content: "# One"},
		{NodeID: 2, NodeCode: "1.2", RequestID: "req_2", Content: "# Two"},
	}

	written, failures := w.WriteDocuments(context.Background(), docs, testProvenance())

	assert.Empty(t, failures)
	assert.Equal(t, []int64{1, 2}, written)

	doc := fs.docs[1]
	require.NotNil(t, doc)
	assert.Equal(t, store.DocumentTypeProcessDetails, doc.DocumentType)
	assert.Equal(t, "# One", doc.Content)
	assert.Equal(t, "svc.caseforge", doc.Owner)
	require.NotNil(t, doc.Meta)
	assert.Equal(t, store.GeneratedByBatchAPI, doc.Meta.GeneratedBy)
	assert.Equal(t, "batch_abc", doc.Meta.BatchID)
	assert.Equal(t, "req_1", doc.Meta.RequestID)
	assert.Equal(t, "gpt-5", doc.Meta.Model)
	assert.False(t, doc.Meta.GeneratedAt.IsZero())
}

func TestWriteDocuments_FailureIsolation(t *testing.T) {
	fs := newFakeStore()
	fs.docErrs[2] = errors.New("connection reset")
	w := NewWriter(fs, "svc.caseforge")

	docs := []results.DocumentResult{
		{NodeID: 1, NodeCode: "1.1", Content: "a"},
		{NodeID: 2, NodeCode: "1.2", Content: "b"},
		{NodeID: 3, NodeCode: "1.3", Content: "c"},
	}

	written, failures := w.WriteDocuments(context.Background(), docs, testProvenance())

	assert.Equal(t, []int64{1, 3}, written)
	require.Len(t, failures, 1)
	assert.Equal(t, int64(2), failures[0].NodeID)
	assert.Equal(t, results.ReasonConstraintViolation, failures[0].Reason)
}

func TestWriteDocuments_UniqueViolationAlreadySatisfied(t *testing.T) {
	fs := newFakeStore()
	fs.docErrs[1] = fmt.Errorf("upsert: %w", &pgconn.PgError{Code: "23505"})
	w := NewWriter(fs, "svc.caseforge")

	written, failures := w.WriteDocuments(context.Background(),
		[]results.DocumentResult{{NodeID: 1, NodeCode: "1.1", Content: "a"}}, testProvenance())

	assert.Empty(t, failures)
	assert.Equal(t, []int64{1}, written)
}

func TestWriteUsecases(t *testing.T) {
	fs := newFakeStore()
	w := NewWriter(fs, "svc.caseforge")

	res := []results.UsecaseResult{
		{
			NodeID:    7,
			NodeCode:  "3.2.1",
			RequestID: "req_7",
			Entries: []results.UsecaseEntry{
				{Title: "First", Description: "d1", ComplexityLabel: "Low", ComplexityScore: 2, Category: "automation"},
				{Title: "Second", Description: "d2", ComplexityLabel: "High", ComplexityScore: 8, RiskLevel: "Medium"},
			},
		},
	}

	written, total, failures := w.WriteUsecases(context.Background(), res, testProvenance())

	assert.Empty(t, failures)
	assert.Equal(t, []int64{7}, written)
	assert.Equal(t, 2, total)

	candidates := fs.usecases[7]
	require.Len(t, candidates, 2)
	assert.Equal(t, "3.2.1-UC01", candidates[0].CandidateUID)
	assert.Equal(t, "3.2.1-UC02", candidates[1].CandidateUID)
	assert.Equal(t, 8, candidates[1].ComplexityScore)
	require.NotNil(t, candidates[0].Meta)
	assert.Equal(t, "automation", candidates[0].Meta.Category)
	assert.Equal(t, "req_7", candidates[0].Meta.RequestID)
	assert.Equal(t, store.GeneratedByBatchAPI, candidates[0].Meta.GeneratedBy)
}

func TestWriteUsecases_FailedNodeKeepsGoing(t *testing.T) {
	fs := newFakeStore()
	fs.usecaseErrs[1] = errors.New("deadlock detected")
	w := NewWriter(fs, "svc.caseforge")

	res := []results.UsecaseResult{
		{NodeID: 1, NodeCode: "1.1", Entries: []results.UsecaseEntry{{Title: "a", Description: "d"}}},
		{NodeID: 2, NodeCode: "1.2", Entries: []results.UsecaseEntry{{Title: "b", Description: "d"}}},
	}

	written, total, failures := w.WriteUsecases(context.Background(), res, testProvenance())

	assert.Equal(t, []int64{2}, written)
	assert.Equal(t, 1, total)
	require.Len(t, failures, 1)
	assert.Equal(t, int64(1), failures[0].NodeID)
	assert.Equal(t, 2, fs.replaceCalls)
}

func TestCandidateUID(t *testing.T) {
	assert.Equal(t, "1.2.3-UC01", CandidateUID("1.2.3", 1))
	assert.Equal(t, "1.2.3-UC12", CandidateUID("1.2.3", 12))
}
