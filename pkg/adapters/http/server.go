// Package http exposes a navigation session over HTTP for inspection and
// devtools: the materialized tree, path state, drops and a live stream of
// node changes.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/migration"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Navigator is the session surface served over HTTP.
type Navigator interface {
	Node(id string) (*domain.Node, bool)
	Connections(id string, rel domain.Relation) []*domain.Node
	Expand(ctx context.Context, id string, rel domain.Relation)
	Tree(id string) graph.TreeNode
	Paths(id string) [][]string
	Watch(fn func(domain.NodeChange)) (cancel func())

	Entries() []domain.PathStateEntry
	Toggle(ctx context.Context, path []string, key domain.StateKey) (bool, error)
	SetActive(ctx context.Context, ids []string)

	Drop(ctx context.Context, instr domain.Instruction) migration.Result
}

// Server serves a Navigator.
type Server struct {
	Navigator Navigator
	Streams   *StreamManager
	Version   string

	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the handler.
type Option func(*Server)

// WithLogger configures a logger for the handler.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves g on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = v
	}
}

// NewHandler creates a new HTTP handler for the navigator.
func NewHandler(nav Navigator, opts ...Option) http.Handler {
	s := &Server{
		Navigator: nav,
		Version:   "dev",
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams = NewStreamManager(s.logger)
	// One watcher per handler; Broadcast fans each change out to every connection.
	nav.Watch(func(change domain.NodeChange) {
		if data, err := json.Marshal(change); err == nil {
			s.Streams.Broadcast(string(data))
		}
	})

	r := chi.NewRouter()
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/tree", s.GetTree)
	r.Get("/nodes/{id}", s.GetNode)
	r.Get("/nodes/{id}/connections", s.GetConnections)
	r.Post("/nodes/{id}/expand", s.Expand)
	r.Get("/nodes/{id}/paths", s.GetPaths)
	r.Get("/state", s.GetState)
	r.Post("/state/toggle", s.Toggle)
	r.Put("/active", s.SetActive)
	r.Post("/drop", s.Drop)
	r.Get("/events", s.SubscribeEvents)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "arbor-http",
		"version": strings.TrimSpace(s.Version),
	})
}

// GetTree handles the GET /tree request. The root query parameter selects
// the subtree.
func (s *Server) GetTree(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("root")
	if id == "" {
		id = domain.RootID
	}
	if _, ok := s.Navigator.Node(id); !ok {
		s.notFound(w, id)
		return
	}
	s.writeJSON(w, http.StatusOK, s.Navigator.Tree(id))
}

// GetNode handles the GET /nodes/{id} request.
func (s *Server) GetNode(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	node, ok := s.Navigator.Node(id)
	if !ok {
		s.notFound(w, id)
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

// GetConnections handles the GET /nodes/{id}/connections request.
func (s *Server) GetConnections(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rel, err := relation(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.Navigator.Node(id); !ok {
		s.notFound(w, id)
		return
	}
	nodes := s.Navigator.Connections(id, rel)
	if nodes == nil {
		nodes = []*domain.Node{}
	}
	s.writeJSON(w, http.StatusOK, nodes)
}

// Expand handles the POST /nodes/{id}/expand request.
func (s *Server) Expand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rel, err := relation(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.Navigator.Node(id); !ok {
		s.notFound(w, id)
		return
	}
	s.Navigator.Expand(r.Context(), id, rel)
	w.WriteHeader(http.StatusAccepted)
}

// GetPaths handles the GET /nodes/{id}/paths request.
func (s *Server) GetPaths(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	paths := s.Navigator.Paths(id)
	if len(paths) == 0 {
		s.notFound(w, id)
		return
	}
	s.writeJSON(w, http.StatusOK, paths)
}

// GetState handles the GET /state request.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	entries := s.Navigator.Entries()
	if entries == nil {
		entries = []domain.PathStateEntry{}
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// ToggleRequest is the body of POST /state/toggle.
type ToggleRequest struct {
	Path []string        `json:"path"`
	Key  domain.StateKey `json:"key"`
}

// Toggle handles the POST /state/toggle request.
func (s *Server) Toggle(w http.ResponseWriter, r *http.Request) {
	var body ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.Path) == 0 {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Toggle: Invalid request body", "err", err)
		return
	}
	if body.Key == "" {
		body.Key = domain.StateOpen
	}
	value, err := s.Navigator.Toggle(r.Context(), body.Path, body.Key)
	if err != nil {
		http.Error(w, fmt.Sprintf("Toggle error: %v", err), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"path":  domain.PathKey(body.Path),
		"key":   body.Key,
		"value": value,
	})
}

// ActiveRequest is the body of PUT /active.
type ActiveRequest struct {
	IDs []string `json:"ids"`
}

// SetActive handles the PUT /active request.
func (s *Server) SetActive(w http.ResponseWriter, r *http.Request) {
	var body ActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("SetActive: Invalid request body", "err", err)
		return
	}
	s.Navigator.SetActive(r.Context(), body.IDs)
	w.WriteHeader(http.StatusNoContent)
}

// DropResponse is the outcome of POST /drop.
type DropResponse struct {
	Operation   domain.Operation `json:"operation"`
	Reason      string           `json:"reason,omitempty"`
	Destination string           `json:"destination,omitempty"`
	Index       int              `json:"index"`
	Order       []string         `json:"order,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// Drop handles the POST /drop request. Failed callbacks are reported in the
// body; the request itself succeeds.
func (s *Server) Drop(w http.ResponseWriter, r *http.Request) {
	var instr domain.Instruction
	if err := json.NewDecoder(r.Body).Decode(&instr); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("Drop: Invalid request body", "err", err)
		return
	}

	res := s.Navigator.Drop(r.Context(), instr)
	resp := DropResponse{
		Operation: res.Plan.Operation,
		Reason:    res.Plan.Reason,
		Index:     res.Plan.Index,
		Order:     res.Plan.Order,
	}
	if res.Plan.Destination != nil {
		resp.Destination = res.Plan.Destination.ID
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// SubscribeEvents handles the GET /events request (SSE). Every node change
// in the graph is streamed as a JSON data line.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// StreamManager fans messages out to active SSE connections.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan string]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe() (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 64)
	sm.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, ch)
			close(ch)
		})
	}
}

func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message")
		}
	}
}

// -- Helpers --

func relation(r *http.Request) (domain.Relation, error) {
	switch rel := domain.Relation(r.URL.Query().Get("relation")); rel {
	case "":
		return domain.Outbound, nil
	case domain.Outbound, domain.Inbound:
		return rel, nil
	default:
		return "", errors.New("relation must be outbound or inbound")
	}
}

func (s *Server) notFound(w http.ResponseWriter, id string) {
	http.Error(w, fmt.Sprintf("%q: %v", id, domain.ErrNodeNotFound), http.StatusNotFound)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
