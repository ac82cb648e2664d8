package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// GetDocument retrieves the document of a given type for a node.
// Returns nil if no such document exists.
func (s *Store) GetDocument(ctx context.Context, nodeID int64, documentType string) (*NodeDocument, error) {
	var d NodeDocument
	var metaJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, node_id, document_type, title, content, owner, meta, created_at, updated_at
		 FROM node_documents WHERE node_id = $1 AND document_type = $2`,
		nodeID, documentType,
	).Scan(&d.ID, &d.NodeID, &d.DocumentType, &d.Title, &d.Content, &d.Owner, &metaJSON,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get %s document for node %d: %w", documentType, nodeID, err)
	}

	if metaJSON != nil {
		_ = json.Unmarshal(metaJSON, &d.Meta)
	}
	return &d, nil
}

// ListDocuments retrieves all documents for a node.
func (s *Store) ListDocuments(ctx context.Context, nodeID int64) ([]NodeDocument, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, node_id, document_type, title, content, owner, meta, created_at, updated_at
		 FROM node_documents WHERE node_id = $1 ORDER BY document_type`,
		nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents for node %d: %w", nodeID, err)
	}
	defer rows.Close()

	var docs []NodeDocument
	for rows.Next() {
		var d NodeDocument
		var metaJSON []byte
		if err := rows.Scan(&d.ID, &d.NodeID, &d.DocumentType, &d.Title, &d.Content, &d.Owner,
			&metaJSON, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &d.Meta)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// UpsertDocument inserts a document or replaces the existing document of the
// same type for the node. At most one document per (node, type) ever exists.
func (s *Store) UpsertDocument(ctx context.Context, doc *NodeDocument) (uuid.UUID, error) {
	metaJSON, err := json.Marshal(doc.Meta)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal document meta: %w", err)
	}

	var id uuid.UUID
	err = s.pool.QueryRow(ctx,
		`INSERT INTO node_documents (node_id, document_type, title, content, owner, meta)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (node_id, document_type)
		 DO UPDATE SET title = $3, content = $4, owner = $5, meta = $6, updated_at = NOW()
		 RETURNING id`,
		doc.NodeID, doc.DocumentType, doc.Title, doc.Content, doc.Owner, metaJSON,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert %s document for node %d: %w",
			doc.DocumentType, doc.NodeID, err)
	}
	return id, nil
}

// NodesWithGeneratedDocument returns ids of nodes that have a batch-generated
// document of the given type.
func (s *Store) NodesWithGeneratedDocument(ctx context.Context, modelKey, documentType string) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT d.node_id FROM node_documents d
		 JOIN process_nodes n ON n.id = d.node_id
		 WHERE n.model_key = $1 AND d.document_type = $2
		   AND d.meta->>'generated_by' = $3
		 ORDER BY d.node_id`,
		modelKey, documentType, GeneratedByBatchAPI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes with generated %s: %w", documentType, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan node id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
