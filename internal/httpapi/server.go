package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/admin"
	"github.com/ent0n29/tensai/internal/chat"
	"github.com/ent0n29/tensai/internal/config"
	"github.com/ent0n29/tensai/internal/lead"
	"github.com/ent0n29/tensai/internal/observability"
	"github.com/ent0n29/tensai/internal/session"
)

type TurnHandler interface {
	HandleTurn(ctx context.Context, req chat.TurnRequest) (chat.TurnResponse, error)
}

type Admin interface {
	GetSession(ctx context.Context, id string) (session.Session, error)
	ListSessions(ctx context.Context, limit int) ([]session.Session, error)
	ListLeads(ctx context.Context) ([]lead.Entry, error)
	SearchConversations(ctx context.Context, query string, limit int) ([]admin.Conversation, error)
	PurgeSession(ctx context.Context, id string) (admin.PurgeResult, error)
}

type Option func(*Server)

// WithReadyCheck makes /readyz report 503 while check fails.
func WithReadyCheck(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = observability.OrNop(logger) }
}

type Server struct {
	cfg      config.Config
	turns    TurnHandler
	admin    Admin
	metrics  *observability.Metrics
	logger   *zap.Logger
	ready    func(context.Context) error
	upgrader websocket.Upgrader
}

func New(cfg config.Config, turns TurnHandler, adm Admin, metrics *observability.Metrics, opts ...Option) *Server {
	s := &Server{
		cfg:     cfg,
		turns:   turns,
		admin:   adm,
		metrics: metrics,
		logger:  zap.NewNop(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.originAllowed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/chat", s.handleChat)
	r.Get("/v1/chat/ws", s.handleChatWS)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Get("/v1/sessions", s.handleListSessions)
	r.Get("/v1/sessions/{id}", s.handleGetSession)
	r.Delete("/v1/sessions/{id}", s.handleDeleteSession)
	r.Get("/v1/conversations", s.handleSearchConversations)
	r.Get("/v1/leads", s.handleListLeads)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"conversation_scope": s.cfg.ConversationScope,
		"lead_store":         s.cfg.LeadStore,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// chatRequest is the POST /chat body.
type chatRequest struct {
	SessionID  string `json:"session_id"`
	UserQuery  string `json:"user_query"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	PainPoints string `json:"pain_points"`
}

func (r chatRequest) turn() chat.TurnRequest {
	return chat.TurnRequest{
		SessionID: r.SessionID,
		UserText:  r.UserQuery,
		Profile: session.Profile{
			Name:       r.Name,
			Phone:      r.Phone,
			Email:      r.Email,
			PainPoints: r.PainPoints,
		},
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserQuery) == "" {
		respondError(w, http.StatusBadRequest, "empty_query", chat.ErrEmptyQuery.Error())
		return
	}

	resp, err := s.turns.HandleTurn(r.Context(), req.turn())
	if err != nil {
		if errors.Is(err, chat.ErrEmptyQuery) {
			respondError(w, http.StatusBadRequest, "empty_query", err.Error())
			return
		}
		s.logger.Error("chat turn failed", zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "turn_failed", "could not process the message")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"generated_at": "",
			"window_size":  0,
			"stages":       []any{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotTurnStages())
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	list, err := s.admin.ListSessions(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	sess, err := s.admin.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session_not_found", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"valid":   sess.Valid(time.Now()),
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	res, err := s.admin.PurgeSession(r.Context(), id)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, res)
	case errors.Is(err, admin.ErrEmptySelector):
		respondError(w, http.StatusBadRequest, "invalid_session_id", err.Error())
	case errors.Is(err, session.ErrNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
	}
}

func (s *Server) handleSearchConversations(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	list, err := s.admin.SearchConversations(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"conversations": list})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	list, err := s.admin.ListLeads(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "storage_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"leads": list})
}

// cors answers preflight requests and echoes allowed origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(r) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed accepts requests without an Origin header and same-host
// browser origins unless AllowAnyOrigin is set.
func (s *Server) originAllowed(r *http.Request) bool {
	if s.cfg.AllowAnyOrigin {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
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
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return 0, false
	}
	return n, true
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
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
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
