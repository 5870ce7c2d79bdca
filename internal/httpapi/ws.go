package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/recall/internal/chat"
	"github.com/ent0n29/recall/internal/protocol"
)

// handleChatWS runs a streaming chat connection. Frames are parsed off the
// socket, each client_message becomes one turn, and all writes go through a
// single writer goroutine.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()
	defer s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
				}
			}
		}
	}()

	send := func(msg any) {
		select {
		case outbound <- msg:
		default:
			// Keep websocket writes single-threaded; drop if the outbound
			// queue is saturated.
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.WSMessages.WithLabelValues("dropped", string(t)).Inc()
			}
		}
	}

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.NewErrorEvent("", "invalid_client_message", err.Error(), false))
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.WSMessages.WithLabelValues("inbound", string(t)).Inc()
		}

		switch msg := parsed.(type) {
		case protocol.ClientMessage:
			result, err := s.turns.HandleTurn(ctx, chat.TurnRequest{
				UserID:    msg.UserID,
				SessionID: msg.SessionID,
				Text:      msg.Text,
			})
			if err != nil {
				send(protocol.NewErrorEvent(msg.SessionID, "invalid_request", err.Error(), false))
				continue
			}
			s.trackTurn(msg.SessionID, msg.UserID, result)
			send(protocol.NewAssistantMessage(result.SessionID, result.TurnID, result.Reply, result.FactCount, result.Degraded))

		case protocol.ClientControl:
			if msg.Action != "end" {
				send(protocol.NewErrorEvent(msg.SessionID, "unsupported_action", "unknown control action", false))
				continue
			}
			if _, err := s.sessions.End(msg.SessionID); err != nil {
				send(protocol.NewErrorEvent(msg.SessionID, "session_not_found", err.Error(), false))
				continue
			}
			s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
			s.metrics.SessionEvents.WithLabelValues("ended").Inc()
			send(protocol.SystemEvent{
				Type:      protocol.TypeSystemEvent,
				SessionID: msg.SessionID,
				Code:      "session_ended",
			})
		}
	}

	cancel()
	<-writerDone
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientMessage:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.AssistantMessage:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
