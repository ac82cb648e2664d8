package server

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gruhno/caseforge/internal/batch"
	"github.com/gruhno/caseforge/internal/packager"
	"github.com/gruhno/caseforge/internal/retry"
	"github.com/gruhno/caseforge/internal/store"
)

// handleListNodes lists the leaf nodes of a model variant.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	modelKey := r.URL.Query().Get("model_key")
	if modelKey == "" {
		s.errorResponse(w, http.StatusBadRequest, "model_key is required")
		return
	}

	nodes, err := s.store.ListLeafNodes(r.Context(), modelKey)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"model_key": modelKey,
		"nodes":     nodes,
		"total":     len(nodes),
	})
}

// handleGetNodeByCode retrieves a node by dotted code within a model variant.
func (s *Server) handleGetNodeByCode(w http.ResponseWriter, r *http.Request) {
	modelKey := r.URL.Query().Get("model_key")
	code := r.URL.Query().Get("code")
	if modelKey == "" || code == "" {
		s.errorResponse(w, http.StatusBadRequest, "model_key and code are required")
		return
	}

	node, err := s.store.GetNodeByCode(r.Context(), modelKey, code)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	if node == nil {
		s.errorResponse(w, http.StatusNotFound, "Node not found")
		return
	}

	s.jsonResponse(w, http.StatusOK, node)
}

// handleGetNode retrieves a node by id.
func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, ok := s.nodeFromPath(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, node)
}

// handleListChildren lists the direct children of a node.
func (s *Server) handleListChildren(w http.ResponseWriter, r *http.Request) {
	node, ok := s.nodeFromPath(w, r)
	if !ok {
		return
	}

	children, err := s.store.ListChildren(r.Context(), node.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"node_id":  node.ID,
		"children": children,
		"total":    len(children),
	})
}

// handleListDocuments lists the generated documents of a node.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	node, ok := s.nodeFromPath(w, r)
	if !ok {
		return
	}

	docs, err := s.store.ListDocuments(r.Context(), node.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"node_id":   node.ID,
		"documents": docs,
		"total":     len(docs),
	})
}

// handleListUsecases lists the use-case candidates of a node.
func (s *Server) handleListUsecases(w http.ResponseWriter, r *http.Request) {
	node, ok := s.nodeFromPath(w, r)
	if !ok {
		return
	}

	usecases, err := s.store.ListUsecases(r.Context(), node.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"node_id":  node.ID,
		"usecases": usecases,
		"total":    len(usecases),
	})
}

// handleGetJob reports the persisted state of the last submitted batch job
// for a request kind.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "Unknown job kind")
		return
	}

	state, err := batch.LoadState(batch.StatePath(s.stateDir, kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.errorResponse(w, http.StatusNotFound, "No job recorded for this kind")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "Failed to read job state: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, state)
}

// handleGetFailedNodes reports the last identified failed-node set for a kind.
func (s *Server) handleGetFailedNodes(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindFromPath(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "Unknown job kind")
		return
	}

	set, err := retry.LoadFailedSet(retry.FailedSetPath(s.stateDir, kind))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.errorResponse(w, http.StatusNotFound, "No failed set recorded for this kind")
			return
		}
		s.errorResponse(w, http.StatusInternalServerError, "Failed to read failed set: "+err.Error())
		return
	}

	s.jsonResponse(w, http.StatusOK, set)
}

// nodeFromPath resolves the {id} path parameter to a node, writing the error
// response itself when resolution fails.
func (s *Server) nodeFromPath(w http.ResponseWriter, r *http.Request) (*store.ProcessNode, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid node ID")
		return nil, false
	}

	node, err := s.store.GetNode(r.Context(), id)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return nil, false
	}
	if node == nil {
		s.errorResponse(w, http.StatusNotFound, "Node not found")
		return nil, false
	}
	return node, true
}

func kindFromPath(r *http.Request) (packager.RequestKind, bool) {
	switch packager.RequestKind(r.PathValue("kind")) {
	case packager.KindProcessDetails:
		return packager.KindProcessDetails, true
	case packager.KindUsecaseCandidates:
		return packager.KindUsecaseCandidates, true
	}
	return "", false
}
