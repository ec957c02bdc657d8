// Package chat implements the synchronous turn handler: resolve the session,
// record the user's message, ask the model, record the reply and fold any
// lead details back into the session profile.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/conversation"
	"github.com/ent0n29/tensai/internal/lead"
	"github.com/ent0n29/tensai/internal/memory"
	"github.com/ent0n29/tensai/internal/observability"
	"github.com/ent0n29/tensai/internal/policy"
	"github.com/ent0n29/tensai/internal/session"
)

var ErrEmptyQuery = errors.New("no user query provided")

// Scope modes for conversation segments.
const (
	ScopeSession = "session"
	ScopeGlobal  = "global"
)

type TurnRequest struct {
	SessionID string          `json:"session_id,omitempty"`
	UserText  string          `json:"user_query"`
	Profile   session.Profile `json:"profile"`
}

type TurnResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
}

type Sessions interface {
	ResolveOrCreate(ctx context.Context, id string, hints session.Profile) (string, error)
	UpdateProfile(ctx context.Context, id string, fields session.Profile) error
}

type Buffer interface {
	AppendActive(ctx context.Context, scope string, turn conversation.Turn) (conversation.Segment, error)
	Append(ctx context.Context, scope string, h *conversation.Handle, turn conversation.Turn) (conversation.Segment, error)
}

type Inferer interface {
	Infer(ctx context.Context, turns []conversation.Turn) (string, error)
}

type Extractor interface {
	Extract(ctx context.Context, turns []conversation.Turn) lead.Record
}

type Config struct {
	// Scope is ScopeSession (segments keyed by session id) or ScopeGlobal
	// (one rolling segment shared by every session).
	Scope string
	// ExtractOnTurn merges extracted lead fields into the session profile
	// during the turn. When false only the reconciler extracts.
	ExtractOnTurn bool
}

type Service struct {
	cfg       Config
	sessions  Sessions
	buffer    Buffer
	inferer   Inferer
	extractor Extractor
	turns     memory.Store
	logger    *zap.Logger
	metrics   *observability.Metrics
}

func NewService(
	cfg Config,
	sessions Sessions,
	buffer Buffer,
	inferer Inferer,
	extractor Extractor,
	turns memory.Store,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Service {
	if cfg.Scope == "" {
		cfg.Scope = ScopeSession
	}
	return &Service{
		cfg:       cfg,
		sessions:  sessions,
		buffer:    buffer,
		inferer:   inferer,
		extractor: extractor,
		turns:     turns,
		logger:    observability.OrNop(logger),
		metrics:   metrics,
	}
}

// HandleTurn runs one conversational turn. An inference failure is not an
// error: its user-facing text becomes the reply.
func (s *Service) HandleTurn(ctx context.Context, req TurnRequest) (TurnResponse, error) {
	text := strings.TrimSpace(req.UserText)
	if text == "" {
		s.metrics.ObserveTurn("rejected")
		return TurnResponse{}, ErrEmptyQuery
	}
	turnStart := time.Now()
	stage := func(name string, start time.Time) {
		s.metrics.ObserveTurnStage(name, time.Since(start))
	}

	start := time.Now()
	sessionID, err := s.sessions.ResolveOrCreate(ctx, req.SessionID, req.Profile)
	if err != nil {
		s.metrics.ObserveTurn("failed")
		return TurnResponse{}, fmt.Errorf("resolve session: %w", err)
	}
	stage("resolve_session", start)

	scope := s.scopeFor(sessionID)
	start = time.Now()
	seg, err := s.buffer.AppendActive(ctx, scope, conversation.Turn{Role: conversation.RoleUser, Content: text})
	if err != nil {
		s.metrics.ObserveTurn("failed")
		return TurnResponse{}, fmt.Errorf("append user turn: %w", err)
	}
	stage("append_user", start)

	start = time.Now()
	reply, inferErr := s.inferer.Infer(ctx, seg.Turns)
	stage("infer_reply", start)
	if inferErr != nil {
		s.metrics.ObserveTurnIndicator("inference_fallback_reply")
		s.logger.Warn("inference returned fallback reply",
			zap.String("session_id", sessionID),
			zap.String("segment", seg.ID),
			zap.Error(inferErr),
		)
	}

	start = time.Now()
	seg, err = s.buffer.Append(ctx, scope, seg.Handle(), conversation.Turn{Role: conversation.RoleAssistant, Content: reply})
	if err != nil {
		s.metrics.ObserveTurn("failed")
		return TurnResponse{}, fmt.Errorf("append reply: %w", err)
	}
	stage("append_reply", start)

	if s.cfg.ExtractOnTurn && s.extractor != nil {
		start = time.Now()
		rec := s.extractor.Extract(ctx, seg.Turns)
		if err := s.sessions.UpdateProfile(ctx, sessionID, session.Profile(rec)); err != nil {
			s.logger.Warn("merge extracted lead failed", zap.String("session_id", sessionID), zap.Error(err))
		}
		stage("extract_lead", start)
	}

	if s.turns != nil {
		if err := s.turns.SaveTurn(ctx, memory.TurnRecord{
			SessionID: sessionID,
			Question:  text,
			Answer:    reply,
		}); err != nil {
			s.logger.Warn("save turn log failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	stage("turn_total", turnStart)
	s.metrics.ObserveTurn("ok")
	if ce := s.logger.Check(zap.DebugLevel, "turn handled"); ce != nil {
		redacted, _ := policy.RedactPII(text)
		ce.Write(
			zap.String("session_id", sessionID),
			zap.String("segment", seg.ID),
			zap.String("query", redacted),
		)
	}
	return TurnResponse{Reply: reply, SessionID: sessionID}, nil
}

func (s *Service) scopeFor(sessionID string) string {
	if strings.EqualFold(s.cfg.Scope, ScopeGlobal) {
		return conversation.GlobalScope
	}
	return sessionID
}
