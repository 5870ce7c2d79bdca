// Package httpapi exposes the chat service over REST and websocket.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/recall/internal/chat"
	"github.com/ent0n29/recall/internal/config"
	"github.com/ent0n29/recall/internal/convlog"
	"github.com/ent0n29/recall/internal/memory"
	"github.com/ent0n29/recall/internal/observability"
	"github.com/ent0n29/recall/internal/session"
)

// TurnHandler is the slice of the orchestrator the transport needs.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error)
}

type Server struct {
	cfg        config.Config
	sessions   *session.Manager
	turns      TurnHandler
	memories   memory.Store
	transcript convlog.Log
	metrics    *observability.Metrics
	logger     *log.Logger
	upgrader   websocket.Upgrader
}

func New(
	cfg config.Config,
	sessions *session.Manager,
	turns TurnHandler,
	memories memory.Store,
	transcript convlog.Log,
	metrics *observability.Metrics,
	logger *log.Logger,
) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:        cfg,
		sessions:   sessions,
		turns:      turns,
		memories:   memories,
		transcript: transcript,
		metrics:    metrics,
		logger:     logger.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so another site cannot drive a user's chat if
				// the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(s.requireBearerToken)

		api.Post("/chat", s.handleChat)
		api.Get("/chat/ws", s.handleChatWS)
		api.Get("/sessions/{userID}", s.handleListSessions)
		api.Post("/sessions/{id}/end", s.handleEndSession)
		api.Get("/messages/{sessionID}", s.handleListMessages)
		api.Post("/memories/search", s.handleSearchMemories)
		api.Delete("/memories/{userID}", s.handleClearMemories)
		api.Get("/perf/latency", s.handlePerfLatency)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type chatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	FactCount int    `json:"fact_count"`
	Degraded  bool   `json:"degraded,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.turns.HandleTurn(r.Context(), chat.TurnRequest{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Text:      req.Message,
	})
	if err != nil {
		if chat.IsValidation(err) {
			respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "turn failed")
		return
	}

	s.trackTurn(req.SessionID, req.UserID, result)

	respondJSON(w, http.StatusOK, chatResponse{
		Response:  result.Reply,
		SessionID: result.SessionID,
		TurnID:    result.TurnID,
		FactCount: result.FactCount,
		Degraded:  result.Degraded,
	})
}

// trackTurn keeps the session manager and gauges in step with a handled turn.
func (s *Server) trackTurn(requestedSession, userID string, result chat.TurnResult) {
	known := requestedSession != ""
	s.sessions.Ensure(result.SessionID, userID)
	if !known {
		s.metrics.SessionEvents.WithLabelValues("created").Inc()
	}
	_ = s.sessions.RecordTurn(result.SessionID)
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	s.metrics.SessionEvents.WithLabelValues("ended").Inc()
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	sessions, err := s.transcript.Sessions(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if sessions == nil {
		sessions = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id":  userID,
		"sessions": sessions,
	})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	records, err := s.transcript.List(r.Context(), sessionID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	if records == nil {
		records = []convlog.Record{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   records,
	})
}

type memorySearchRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	Limit  int    `json:"limit,omitempty"`
}

func (s *Server) handleSearchMemories(w http.ResponseWriter, r *http.Request) {
	var req memorySearchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" || strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "query and user_id are required")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.RecallLimit
	}
	facts, err := s.memories.Search(r.Context(), req.Query, req.UserID, limit)
	if err != nil {
		respondError(w, http.StatusBadGateway, "memory_unavailable", err.Error())
		return
	}
	if facts == nil {
		facts = []memory.Fact{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"results": facts,
	})
}

func (s *Server) handleClearMemories(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	if err := s.memories.Clear(r.Context(), userID); err != nil {
		respondError(w, http.StatusBadGateway, "memory_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"status":  "cleared",
	})
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.SnapshotTurnStages())
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
