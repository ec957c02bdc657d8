package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ent0n29/tensai/internal/chat"
	"github.com/ent0n29/tensai/internal/protocol"
	"github.com/ent0n29/tensai/internal/session"
)

// handleChatWS serves the chat over a websocket. Turns on one connection are
// handled in arrival order; a turn without session_id reuses the session of
// the previous reply.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	// Unblocks ReadMessage once the writer or the request gives up.
	stopClose := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stopClose()

	inbound := make(chan protocol.ChatTurn, 32)
	outbound := make(chan any, 64)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		s.runTurns(ctx, sessionID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	enqueue := func(msg any) {
		select {
		case outbound <- msg:
		case <-ctx.Done():
		}
	}

	enqueue(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "connected"})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			enqueue(protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		switch m := parsed.(type) {
		case protocol.ClientPing:
			enqueue(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: sessionID, Code: "pong"})
		case protocol.ChatTurn:
			select {
			case <-ctx.Done():
				break readLoop
			case inbound <- m:
			}
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

func (s *Server) runTurns(ctx context.Context, sessionID string, inbound <-chan protocol.ChatTurn, outbound chan<- any) {
	for turn := range inbound {
		if ctx.Err() != nil {
			return
		}
		if strings.TrimSpace(turn.SessionID) == "" {
			turn.SessionID = sessionID
		}
		resp, err := s.turns.HandleTurn(ctx, chat.TurnRequest{
			SessionID: turn.SessionID,
			UserText:  turn.UserQuery,
			Profile: session.Profile{
				Name:       turn.Name,
				Phone:      turn.Phone,
				Email:      turn.Email,
				PainPoints: turn.PainPoints,
			},
		})
		var msg any
		if err != nil {
			code := "turn_failed"
			if errors.Is(err, chat.ErrEmptyQuery) {
				code = "empty_query"
			} else {
				s.logger.Error("websocket turn failed", zap.String("request_id", turn.RequestID), zap.Error(err))
			}
			msg = protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				RequestID: turn.RequestID,
				SessionID: turn.SessionID,
				Code:      code,
				Retryable: code == "turn_failed",
				Detail:    err.Error(),
			}
		} else {
			sessionID = resp.SessionID
			msg = protocol.ChatReply{
				Type:      protocol.TypeChatReply,
				RequestID: turn.RequestID,
				SessionID: resp.SessionID,
				Reply:     resp.Reply,
			}
		}
		select {
		case outbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatTurn:
		return m.Type, true
	case protocol.ClientPing:
		return m.Type, true
	case protocol.ChatReply:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
