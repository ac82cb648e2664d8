//go:build integration

package store

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
)

func getTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	s, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	// Clean up test data before each test
	_, _ = s.pool.Exec(ctx, `DELETE FROM node_usecase_candidates WHERE node_id IN
		(SELECT id FROM process_nodes WHERE model_key = 'test_model')`)
	_, _ = s.pool.Exec(ctx, `DELETE FROM node_documents WHERE node_id IN
		(SELECT id FROM process_nodes WHERE model_key = 'test_model')`)
	_, _ = s.pool.Exec(ctx, `DELETE FROM process_nodes WHERE model_key = 'test_model'`)

	return s
}

func createTestLeafNode(t *testing.T, s *Store, ctx context.Context) int64 {
	t.Helper()
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO process_nodes (model_key, code, name, description, level)
		 VALUES ('test_model', $1, 'Test Process', 'Test process description', 3)
		 RETURNING id`,
		"9.9."+uuid.New().String()[:8],
	).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create test node: %v", err)
	}
	return id
}

func cleanupTestNode(t *testing.T, s *Store, nodeID int64) {
	t.Helper()
	ctx := context.Background()
	_, _ = s.pool.Exec(ctx, "DELETE FROM node_usecase_candidates WHERE node_id = $1", nodeID)
	_, _ = s.pool.Exec(ctx, "DELETE FROM node_documents WHERE node_id = $1", nodeID)
	_, _ = s.pool.Exec(ctx, "DELETE FROM process_nodes WHERE id = $1", nodeID)
}

func TestIntegration_UpsertDocument_Regeneration(t *testing.T) {
	s := getTestStore(t)
	defer s.Close()
	ctx := context.Background()

	nodeID := createTestLeafNode(t, s, ctx)
	defer cleanupTestNode(t, s, nodeID)

	doc := &NodeDocument{
		NodeID:       nodeID,
		DocumentType: DocumentTypeProcessDetails,
		Title:        "Process Details: 9.9",
		Content:      "First run content",
		Owner:        "svc-caseforge",
		Meta: &DocumentMeta{
			GeneratedBy: GeneratedByBatchAPI,
			Model:       "gpt-5",
			ModelKey:    "test_model",
			BatchID:     "batch_first",
		},
	}

	firstID, err := s.UpsertDocument(ctx, doc)
	if err != nil {
		t.Fatalf("UpsertDocument failed: %v", err)
	}
	if firstID == uuid.Nil {
		t.Fatal("Document ID should not be nil")
	}

	t.Run("second run replaces in place", func(t *testing.T) {
		doc.Content = "Second run content"
		doc.Meta.BatchID = "batch_second"

		secondID, err := s.UpsertDocument(ctx, doc)
		if err != nil {
			t.Fatalf("UpsertDocument failed: %v", err)
		}
		if secondID != firstID {
			t.Errorf("Second upsert created a new row: %s != %s", secondID, firstID)
		}

		var count int
		err = s.pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM node_documents WHERE node_id = $1 AND document_type = $2`,
			nodeID, DocumentTypeProcessDetails,
		).Scan(&count)
		if err != nil {
			t.Fatalf("Count query failed: %v", err)
		}
		if count != 1 {
			t.Errorf("Document count = %d, want exactly 1 after regeneration", count)
		}

		got, err := s.GetDocument(ctx, nodeID, DocumentTypeProcessDetails)
		if err != nil {
			t.Fatalf("GetDocument failed: %v", err)
		}
		if got == nil {
			t.Fatal("Document not found")
		}
		if got.Content != "Second run content" {
			t.Errorf("Content = %q, want the second run's content", got.Content)
		}
		if got.Meta == nil || got.Meta.BatchID != "batch_second" {
			t.Error("Meta should carry the latest batch id")
		}
	})

	t.Run("missing-document query excludes documented node", func(t *testing.T) {
		bareID := createTestLeafNode(t, s, ctx)
		defer cleanupTestNode(t, s, bareID)

		missing, err := s.FindNodesMissingDocument(ctx, "test_model", DocumentTypeProcessDetails)
		if err != nil {
			t.Fatalf("FindNodesMissingDocument failed: %v", err)
		}

		foundBare := false
		for _, n := range missing {
			if n.ID == nodeID {
				t.Error("Documented node should not be reported missing")
			}
			if n.ID == bareID {
				foundBare = true
			}
		}
		if !foundBare {
			t.Error("Undocumented leaf node should be reported missing")
		}
	})
}
