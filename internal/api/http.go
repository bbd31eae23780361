package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"

	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-ID"

// Server wraps a kv.Storage and exposes HTTP endpoints for its operations.
// Raft is nil unless the backend is replicated.
type Server struct {
	Storage *kv.Storage
	Raft    *raft.Raft
	// HTTPPort is the port used when redirecting to the leader, e.g. ":8080".
	HTTPPort string
	Logger   hclog.Logger
}

// NewServer creates a new HTTP server with the given storage.
func NewServer(storage *kv.Storage, raftNode *raft.Raft, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Server{
		Storage:  storage,
		Raft:     raftNode,
		HTTPPort: ":8080",
		Logger:   logger,
	}
}

// RegisterRoutes registers all HTTP handlers on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/items/{key}", s.leaderOnly(s.handleGet))
	mux.HandleFunc("PUT /v1/items/{key}", s.leaderOnly(s.handleSet))
	mux.HandleFunc("DELETE /v1/items/{key}", s.leaderOnly(s.handleRemove))
	mux.HandleFunc("DELETE /v1/items", s.leaderOnly(s.handleClear))
	mux.HandleFunc("POST /v1/items/{key}/merge", s.leaderOnly(s.handleMerge))
	mux.HandleFunc("GET /v1/keys", s.leaderOnly(s.handleKeys))
	mux.HandleFunc("GET /v1/length", s.leaderOnly(s.handleLength))
	mux.HandleFunc("POST /v1/multi/get", s.leaderOnly(s.handleMultiGet))
	mux.HandleFunc("POST /v1/multi/set", s.leaderOnly(s.handleMultiSet))
	mux.HandleFunc("POST /v1/multi/merge", s.leaderOnly(s.handleMultiMerge))
	mux.HandleFunc("POST /v1/multi/remove", s.leaderOnly(s.handleMultiRemove))
}

// Handler returns every route wrapped in request logging.
func (s *Server) Handler(extra ...func(*http.ServeMux)) http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	for _, register := range extra {
		register(mux)
	}
	return s.withRequestID(mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.Logger.Debug("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// leaderOnly redirects to the leader when this node is a Raft follower.
func (s *Server) leaderOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Raft != nil && s.Raft.State() != raft.Leader {
			leader, _ := s.Raft.LeaderWithID()
			if leader == "" {
				http.Error(w, "Not leader and no leader known", http.StatusServiceUnavailable)
				return
			}
			host, _, err := net.SplitHostPort(string(leader))
			if err != nil {
				host = string(leader)
			}
			w.Header().Set("Location", "http://"+host+s.HTTPPort+r.URL.RequestURI())
			http.Error(w, "Not leader. Redirect to leader.", http.StatusTemporaryRedirect)
			return
		}
		h(w, r)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, kv.ErrInvalidKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		http.Error(w, "Request cancelled", http.StatusGatewayTimeout)
	default:
		s.Logger.Error("storage operation failed", "path", r.URL.Path, "error", err)
		http.Error(w, "Storage operation failed", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type valueRequest struct {
	Value *string `json:"value"`
}

type keysBody struct {
	Keys []string `json:"keys"`
}

type pairsRequest struct {
	Pairs [][]string `json:"pairs"`
}

func (p pairsRequest) toPairs() ([]kv.Pair, bool) {
	pairs := make([]kv.Pair, len(p.Pairs))
	for i, pair := range p.Pairs {
		if len(pair) != 2 {
			return nil, false
		}
		pairs[i] = kv.Pair{Key: pair[0], Value: pair[1]}
	}
	return pairs, true
}

type itemResponse struct {
	Value kv.Item `json:"value"`
}

type itemsResponse struct {
	Values []kv.Item `json:"values"`
}

// handleGet handles GET /v1/items/{key}.
// Returns the value as plain text or 404.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := s.Storage.GetItem(r.PathValue("key")).Await(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !item.Found {
		http.Error(w, "Key not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte(item.Value))
}

// handleSet handles PUT /v1/items/{key} with body {"value": "bar"}.
func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		http.Error(w, "Invalid JSON: expected {\"value\": string}", http.StatusBadRequest)
		return
	}

	if _, err := s.Storage.SetItem(r.PathValue("key"), *req.Value).Await(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRemove handles DELETE /v1/items/{key}.
func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Storage.RemoveItem(r.PathValue("key")).Await(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleClear handles DELETE /v1/items.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if _, err := s.Storage.Clear().Await(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMerge handles POST /v1/items/{key}/merge with body {"value": "<json>"}.
// A failed merge answers 200 with a null value.
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req valueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		http.Error(w, "Invalid JSON: expected {\"value\": string}", http.StatusBadRequest)
		return
	}

	item, err := s.Storage.MergeItem(r.PathValue("key"), *req.Value).Await(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, itemResponse{Value: item})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.Storage.GetAllKeys().Await(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, keysBody{Keys: keys})
}

func (s *Server) handleLength(w http.ResponseWriter, r *http.Request) {
	n, err := s.Storage.Length().Await(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]int{"length": n})
}

// handleMultiGet handles POST /v1/multi/get with body {"keys": [...]}.
func (s *Server) handleMultiGet(w http.ResponseWriter, r *http.Request) {
	var req keysBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	items, err := s.Storage.MultiGet(req.Keys).Await(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, itemsResponse{Values: items})
}

// handleMultiSet handles POST /v1/multi/set with body {"pairs": [["k","v"], ...]}.
func (s *Server) handleMultiSet(w http.ResponseWriter, r *http.Request) {
	pairs, ok := decodePairs(w, r)
	if !ok {
		return
	}

	if _, err := s.Storage.MultiSet(pairs).Await(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMultiMerge handles POST /v1/multi/merge with body {"pairs": [["k","v"], ...]}.
func (s *Server) handleMultiMerge(w http.ResponseWriter, r *http.Request) {
	pairs, ok := decodePairs(w, r)
	if !ok {
		return
	}

	items, err := s.Storage.MultiMerge(pairs).Await(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, itemsResponse{Values: items})
}

// handleMultiRemove handles POST /v1/multi/remove with body {"keys": [...]}.
func (s *Server) handleMultiRemove(w http.ResponseWriter, r *http.Request) {
	var req keysBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if _, err := s.Storage.MultiRemove(req.Keys).Await(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodePairs(w http.ResponseWriter, r *http.Request) ([]kv.Pair, bool) {
	var req pairsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return nil, false
	}
	pairs, ok := req.toPairs()
	if !ok {
		http.Error(w, "Each pair must be [key, value]", http.StatusBadRequest)
		return nil, false
	}
	return pairs, true
}
