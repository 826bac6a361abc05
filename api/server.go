package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wricardo/duelhall/game/rules"
	"github.com/wricardo/duelhall/game/service"
	"github.com/wricardo/duelhall/game/session"
)

// Server represents the REST API server
type Server struct {
	coord  service.Coordinator
	ws     http.Handler
	router *mux.Router
}

// NewServer creates a new API server. ws serves /ws upgrades and may be nil.
func NewServer(coord service.Coordinator, ws http.Handler) *Server {
	s := &Server{
		coord:  coord,
		ws:     ws,
		router: mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("", s.handleIndex).Methods("GET")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/stats", s.handleStats).Methods("GET")
	api.HandleFunc("/engines", s.handleEngines).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"engine": s.coord.EngineName(),
		"endpoints": []string{
			"GET /api/sessions",
			"GET /api/sessions/{id}",
			"GET /api/stats",
			"GET /api/engines",
			"GET /healthz",
			"GET /ws",
		},
	})
}

// Session Handlers

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	views, err := s.coord.ListSessions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	query := r.URL.Query()
	if status := query.Get("status"); status != "" {
		filtered := views[:0]
		for _, v := range views {
			if v.Status.String() == status {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}

	total := len(views)
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(views) {
			views = views[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(views),
		"total":    total,
		"sessions": views,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil || id == 0 {
		respondError(w, http.StatusBadRequest, "session id must be a positive integer")
		return
	}

	view, err := s.coord.Snapshot(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coord.Stats(r.Context()))
}

func (s *Server) handleEngines(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"active":  s.coord.EngineName(),
		"engines": rules.Names(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ws == nil {
		http.Error(w, "WebSocket transport not configured", http.StatusServiceUnavailable)
		return
	}
	s.ws.ServeHTTP(w, r)
}
