// Package server provides the read-only HTTP API for browsing process
// taxonomies, generated documents, and batch job status.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gruhno/caseforge/internal/store"
)

// Store is the subset of database operations the API serves.
type Store interface {
	GetNode(ctx context.Context, id int64) (*store.ProcessNode, error)
	GetNodeByCode(ctx context.Context, modelKey, code string) (*store.ProcessNode, error)
	ListChildren(ctx context.Context, parentID int64) ([]store.ProcessNode, error)
	ListLeafNodes(ctx context.Context, modelKey string) ([]store.ProcessNode, error)
	ListDocuments(ctx context.Context, nodeID int64) ([]store.NodeDocument, error)
	ListUsecases(ctx context.Context, nodeID int64) ([]store.UsecaseCandidate, error)
}

// Config holds server configuration.
type Config struct {
	Port     int
	StateDir string
}

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	store      Store
	stateDir   string
}

// New creates a server over an already connected store.
func New(cfg Config, st Store) *Server {
	s := &Server{store: st, stateDir: cfg.StateDir}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler builds the route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /nodes", s.handleListNodes)
	mux.HandleFunc("GET /nodes/by-code", s.handleGetNodeByCode)
	mux.HandleFunc("GET /nodes/{id}", s.handleGetNode)
	mux.HandleFunc("GET /nodes/{id}/children", s.handleListChildren)
	mux.HandleFunc("GET /nodes/{id}/documents", s.handleListDocuments)
	mux.HandleFunc("GET /nodes/{id}/usecases", s.handleListUsecases)

	mux.HandleFunc("GET /jobs/{kind}", s.handleGetJob)
	mux.HandleFunc("GET /jobs/{kind}/failed-nodes", s.handleGetFailedNodes)

	return s.withLogging(s.withCORS(mux))
}

// Start begins listening for requests and blocks until shutdown.
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	log.Println("Server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}
