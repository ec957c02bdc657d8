// Package admin holds the operator-facing operations: listing and searching
// captured data, purging a person's records, and the scheduled purge of
// long-expired sessions.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/lead"
	"github.com/ent0n29/tensai/internal/memory"
	"github.com/ent0n29/tensai/internal/observability"
	"github.com/ent0n29/tensai/internal/session"
)

var ErrEmptySelector = errors.New("a session id or name is required")

// Conversation is a turn-log row joined with the profile of its session.
type Conversation struct {
	memory.TurnRecord
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
}

type PurgeResult struct {
	Sessions int   `json:"sessions"`
	Turns    int64 `json:"turns"`
}

type Service struct {
	sessions *session.Manager
	turns    memory.Store
	leads    lead.Store
	logger   *zap.Logger
}

func NewService(sessions *session.Manager, turns memory.Store, leads lead.Store, logger *zap.Logger) *Service {
	return &Service{
		sessions: sessions,
		turns:    turns,
		leads:    leads,
		logger:   observability.OrNop(logger),
	}
}

func (s *Service) GetSession(ctx context.Context, id string) (session.Session, error) {
	return s.sessions.Get(ctx, strings.TrimSpace(id))
}

func (s *Service) ListSessions(ctx context.Context, limit int) ([]session.Session, error) {
	return s.sessions.List(ctx, limit)
}

func (s *Service) ListLeads(ctx context.Context) ([]lead.Entry, error) {
	return s.leads.List(ctx)
}

// SearchConversations matches query against the session name and phone as
// well as the question and answer text. A blank query lists recent turns.
func (s *Service) SearchConversations(ctx context.Context, query string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	query = strings.TrimSpace(query)

	var records []memory.TurnRecord
	if query == "" {
		recent, err := s.turns.List(ctx, limit)
		if err != nil {
			return nil, err
		}
		records = recent
	} else {
		hits, err := s.turns.Search(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		records = hits
		people, err := s.sessions.Find(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		for _, p := range people {
			own, err := s.turns.ListBySession(ctx, p.ID, limit)
			if err != nil {
				return nil, err
			}
			records = append(records, own...)
		}
	}

	seen := make(map[string]bool, len(records))
	profiles := make(map[string]session.Profile)
	out := make([]Conversation, 0, len(records))
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		p, ok := profiles[r.SessionID]
		if !ok {
			if sess, err := s.sessions.Get(ctx, r.SessionID); err == nil {
				p = sess.Profile
			} else if !errors.Is(err, session.ErrNotFound) {
				return nil, err
			}
			profiles[r.SessionID] = p
		}
		out = append(out, Conversation{TurnRecord: r, Name: p.Name, Phone: p.Phone, Email: p.Email})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PurgeSession deletes a session and its turn log.
func (s *Service) PurgeSession(ctx context.Context, id string) (PurgeResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return PurgeResult{}, ErrEmptySelector
	}
	var res PurgeResult
	n, err := s.turns.DeleteBySession(ctx, id)
	if err != nil {
		return res, fmt.Errorf("delete turn log: %w", err)
	}
	res.Turns = n
	switch err := s.sessions.Delete(ctx, id); {
	case err == nil:
		res.Sessions = 1
	case errors.Is(err, session.ErrNotFound):
		if n == 0 {
			return res, session.ErrNotFound
		}
	default:
		return res, fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info("purged session", zap.String("session_id", id), zap.Int64("turns", res.Turns))
	return res, nil
}

// PurgeByName deletes every session whose profile name equals name, with
// their turn logs.
func (s *Service) PurgeByName(ctx context.Context, name string) (PurgeResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return PurgeResult{}, ErrEmptySelector
	}
	matches, err := s.sessions.FindByName(ctx, name)
	if err != nil {
		return PurgeResult{}, err
	}
	if len(matches) == 0 {
		return PurgeResult{}, session.ErrNotFound
	}
	var total PurgeResult
	for _, m := range matches {
		res, err := s.PurgeSession(ctx, m.ID)
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			return total, err
		}
		total.Sessions += res.Sessions
		total.Turns += res.Turns
	}
	return total, nil
}

// PurgeExpired removes sessions that expired more than retention ago.
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.sessions.PurgeExpired(ctx, retention)
}
