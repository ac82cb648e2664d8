package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const nodeColumns = `id, model_key, parent_id, pcf_id, code, name, description, level,
	NOT EXISTS (SELECT 1 FROM process_nodes c WHERE c.parent_id = process_nodes.id) AS is_leaf`

// GetNode retrieves a node by id. Returns nil if the node does not exist.
func (s *Store) GetNode(ctx context.Context, id int64) (*ProcessNode, error) {
	var n ProcessNode
	err := s.pool.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM process_nodes WHERE id = $1`,
		id,
	).Scan(&n.ID, &n.ModelKey, &n.ParentID, &n.PCFID, &n.Code, &n.Name, &n.Description, &n.Level, &n.IsLeaf)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get node %d: %w", id, err)
	}
	return &n, nil
}

// GetNodeByCode retrieves a node by its dotted code within one model variant.
func (s *Store) GetNodeByCode(ctx context.Context, modelKey, code string) (*ProcessNode, error) {
	var n ProcessNode
	err := s.pool.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM process_nodes WHERE model_key = $1 AND code = $2`,
		modelKey, code,
	).Scan(&n.ID, &n.ModelKey, &n.ParentID, &n.PCFID, &n.Code, &n.Name, &n.Description, &n.Level, &n.IsLeaf)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get node %s/%s: %w", modelKey, code, err)
	}
	return &n, nil
}

// GetAncestors returns the chain of ancestors for a node ordered root-first.
// The node itself is not included.
func (s *Store) GetAncestors(ctx context.Context, id int64) ([]ProcessNode, error) {
	rows, err := s.pool.Query(ctx,
		`WITH RECURSIVE ancestry AS (
			SELECT n.*, 0 AS depth FROM process_nodes n
			WHERE n.id = (SELECT parent_id FROM process_nodes WHERE id = $1)
			UNION ALL
			SELECT p.*, a.depth + 1 FROM process_nodes p
			JOIN ancestry a ON p.id = a.parent_id
		)
		SELECT id, model_key, parent_id, pcf_id, code, name, description, level,
		       false AS is_leaf
		FROM ancestry ORDER BY depth DESC`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get ancestors of node %d: %w", id, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// ListChildren returns the direct children of a node ordered by code.
func (s *Store) ListChildren(ctx context.Context, parentID int64) ([]ProcessNode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM process_nodes WHERE parent_id = $1 ORDER BY code`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of node %d: %w", parentID, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// ListLeafNodes returns every leaf node of a model variant ordered by code.
// Only leaf nodes receive generated documentation.
func (s *Store) ListLeafNodes(ctx context.Context, modelKey string) ([]ProcessNode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM process_nodes
		 WHERE model_key = $1
		   AND NOT EXISTS (SELECT 1 FROM process_nodes c WHERE c.parent_id = process_nodes.id)
		 ORDER BY code`,
		modelKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list leaf nodes for %s: %w", modelKey, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// ListNodesByIDs returns the nodes with the given ids ordered by code.
// Missing ids are silently dropped.
func (s *Store) ListNodesByIDs(ctx context.Context, ids []int64) ([]ProcessNode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM process_nodes WHERE id = ANY($1) ORDER BY code`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes by ids: %w", err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// FindNodesMissingDocument returns the leaf nodes of a model variant that
// have no document of the given type, regardless of who authored any that
// exist. This is the offline "what still needs generating" query.
func (s *Store) FindNodesMissingDocument(ctx context.Context, modelKey, documentType string) ([]ProcessNode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM process_nodes
		 WHERE model_key = $1
		   AND NOT EXISTS (SELECT 1 FROM process_nodes c WHERE c.parent_id = process_nodes.id)
		   AND NOT EXISTS (SELECT 1 FROM node_documents d
		                   WHERE d.node_id = process_nodes.id AND d.document_type = $2)
		 ORDER BY code`,
		modelKey, documentType,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find nodes missing %s: %w", documentType, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// FindCrossModelMatches returns nodes in other model variants that represent
// the same process. Matching requires the stable pcf_id plus identical name
// and description; the positional code is never consulted. A pcf_id hit whose
// name or description differs is not a match.
func (s *Store) FindCrossModelMatches(ctx context.Context, node *ProcessNode) ([]ProcessNode, error) {
	if node.PCFID == nil {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+nodeColumns+` FROM process_nodes
		 WHERE pcf_id = $1
		   AND model_key <> $2
		   AND name = $3
		   AND COALESCE(description, '') = $4
		 ORDER BY model_key`,
		*node.PCFID, node.ModelKey, node.Name, node.Desc(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find cross-model matches for node %d: %w", node.ID, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

func scanNodes(rows pgx.Rows) ([]ProcessNode, error) {
	var nodes []ProcessNode
	for rows.Next() {
		var n ProcessNode
		if err := rows.Scan(&n.ID, &n.ModelKey, &n.ParentID, &n.PCFID, &n.Code, &n.Name,
			&n.Description, &n.Level, &n.IsLeaf); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}
