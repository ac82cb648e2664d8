package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// ListUsecases retrieves the use-case candidates for a node ordered by uid.
func (s *Store) ListUsecases(ctx context.Context, nodeID int64) ([]UsecaseCandidate, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, node_id, candidate_uid, title, description, impact_assessment,
		        complexity_score, owner, meta, created_at
		 FROM node_usecase_candidates WHERE node_id = $1 ORDER BY candidate_uid`,
		nodeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list usecases for node %d: %w", nodeID, err)
	}
	defer rows.Close()

	var candidates []UsecaseCandidate
	for rows.Next() {
		var c UsecaseCandidate
		var metaJSON []byte
		if err := rows.Scan(&c.ID, &c.NodeID, &c.CandidateUID, &c.Title, &c.Description,
			&c.ImpactAssessment, &c.ComplexityScore, &c.Owner, &metaJSON, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan usecase: %w", err)
		}
		if metaJSON != nil {
			_ = json.Unmarshal(metaJSON, &c.Meta)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

// ReplaceUsecases atomically replaces the full candidate set for a node.
// Delete and insert run in one transaction so readers never observe an empty
// intermediate state, and stale candidate_uids cannot survive a regeneration.
func (s *Store) ReplaceUsecases(ctx context.Context, nodeID int64, candidates []UsecaseCandidate) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM node_usecase_candidates WHERE node_id = $1`, nodeID); err != nil {
		return 0, fmt.Errorf("failed to delete usecases for node %d: %w", nodeID, err)
	}

	inserted := 0
	for _, c := range candidates {
		metaJSON, err := json.Marshal(c.Meta)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal usecase meta: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO node_usecase_candidates
			   (node_id, candidate_uid, title, description, impact_assessment,
			    complexity_score, owner, meta)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			nodeID, c.CandidateUID, c.Title, c.Description, c.ImpactAssessment,
			c.ComplexityScore, c.Owner, metaJSON,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to insert usecase %s: %w", c.CandidateUID, err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit usecase replace for node %d: %w", nodeID, err)
	}
	return inserted, nil
}

// NodesWithGeneratedUsecases returns ids of nodes in a model variant that have
// at least one batch-generated use-case candidate.
func (s *Store) NodesWithGeneratedUsecases(ctx context.Context, modelKey string) ([]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT c.node_id FROM node_usecase_candidates c
		 JOIN process_nodes n ON n.id = c.node_id
		 WHERE n.model_key = $1 AND c.meta->>'generated_by' = $2
		 ORDER BY c.node_id`,
		modelKey, GeneratedByBatchAPI,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes with generated usecases: %w", err)
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
