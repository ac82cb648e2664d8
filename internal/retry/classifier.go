// Package retry identifies nodes that a batch run failed to produce output
// for and records them so a follow-up run can target exactly that set.
package retry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gruhno/caseforge/internal/packager"
	"github.com/gruhno/caseforge/internal/results"
	"github.com/gruhno/caseforge/internal/store"
)

// FailedNode is one node the pipeline targeted but did not persist output
// for, with the best-effort reason gathered during the run.
type FailedNode struct {
	NodeID int64                 `json:"node_id"`
	Code   string                `json:"code"`
	Name   string                `json:"name,omitempty"`
	Reason results.FailureReason `json:"reason"`
	Detail string                `json:"detail,omitempty"`
}

// FailedSet is the persisted record of one identification pass. The node list
// drives the next retry run; everything else is context for the operator.
type FailedSet struct {
	Kind         packager.RequestKind `json:"kind"`
	ModelKey     string               `json:"model_key"`
	IdentifiedAt time.Time            `json:"identified_at"`
	Nodes        []FailedNode         `json:"nodes"`
}

// Identify diffs the targeted node set against the nodes that ended up with
// persisted output. Every targeted node without output is failed; reasons come
// from the run's failure records where available and default to unknown, so a
// node that silently produced nothing is still caught.
func Identify(targets []store.ProcessNode, persisted []int64, failures []results.FailureRecord) []FailedNode {
	done := make(map[int64]bool, len(persisted))
	for _, id := range persisted {
		done[id] = true
	}

	// Keep the first recorded failure per node. Later records for the same
	// node are usually per-entry detail, not a better explanation.
	recorded := make(map[int64]results.FailureRecord, len(failures))
	for _, f := range failures {
		if _, ok := recorded[f.NodeID]; !ok {
			recorded[f.NodeID] = f
		}
	}

	var failed []FailedNode
	for _, node := range targets {
		if done[node.ID] {
			continue
		}
		fn := FailedNode{NodeID: node.ID, Code: node.Code, Name: node.Name, Reason: results.ReasonUnknown}
		if f, ok := recorded[node.ID]; ok {
			fn.Reason = f.Reason
			fn.Detail = f.Detail
		}
		failed = append(failed, fn)
	}
	return failed
}

// Source is the subset of store operations an offline identification pass
// reads.
type Source interface {
	ListLeafNodes(ctx context.Context, modelKey string) ([]store.ProcessNode, error)
	FindNodesMissingDocument(ctx context.Context, modelKey, documentType string) ([]store.ProcessNode, error)
	NodesWithGeneratedUsecases(ctx context.Context, modelKey string) ([]int64, error)
}

// IdentifyMissing diffs the leaf nodes of a model variant against the store
// with no run context, so every missing node carries reason unknown. For
// process details any existing document satisfies a node, whoever authored
// it; use-case candidates count only when batch-generated. Returns the set
// and the total number of targeted leaf nodes.
func IdentifyMissing(ctx context.Context, src Source, kind packager.RequestKind, modelKey string) (*FailedSet, int, error) {
	targets, err := src.ListLeafNodes(ctx, modelKey)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leaf nodes: %w", err)
	}

	var failed []FailedNode
	if kind == packager.KindUsecaseCandidates {
		persisted, err := src.NodesWithGeneratedUsecases(ctx, modelKey)
		if err != nil {
			return nil, 0, err
		}
		failed = Identify(targets, persisted, nil)
	} else {
		missing, err := src.FindNodesMissingDocument(ctx, modelKey, store.DocumentTypeProcessDetails)
		if err != nil {
			return nil, 0, err
		}
		failed = Identify(missing, nil, nil)
	}

	set := &FailedSet{
		Kind:         kind,
		ModelKey:     modelKey,
		IdentifiedAt: time.Now().UTC(),
		Nodes:        failed,
	}
	return set, len(targets), nil
}

// CountByReason buckets a failed set for the end-of-run summary.
func CountByReason(nodes []FailedNode) map[results.FailureReason]int {
	counts := make(map[results.FailureReason]int)
	for _, n := range nodes {
		counts[n.Reason]++
	}
	return counts
}

// FailedSetPath returns the per-kind location of the failed-node record.
func FailedSetPath(dir string, kind packager.RequestKind) string {
	return filepath.Join(dir, fmt.Sprintf("%s_failed_nodes.json", kind))
}

// SaveFailedSet writes the record, replacing any previous one for the kind.
func SaveFailedSet(path string, set *FailedSet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal failed set: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write failed set: %w", err)
	}
	return nil
}

// LoadFailedSet reads a previously saved record.
func LoadFailedSet(path string) (*FailedSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read failed set: %w", err)
	}
	var set FailedSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to decode failed set %s: %w", path, err)
	}
	return &set, nil
}

// NodeIDs extracts the retry target list.
func (s *FailedSet) NodeIDs() []int64 {
	ids := make([]int64, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		ids = append(ids, n.NodeID)
	}
	return ids
}
