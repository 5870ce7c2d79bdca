package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ent0n29/recall/internal/chat"
	"github.com/ent0n29/recall/internal/config"
	"github.com/ent0n29/recall/internal/convlog"
	"github.com/ent0n29/recall/internal/memory"
	"github.com/ent0n29/recall/internal/observability"
	"github.com/ent0n29/recall/internal/session"
)

type stubTurner struct {
	result chat.TurnResult
	err    error
}

func (s *stubTurner) HandleTurn(ctx context.Context, req chat.TurnRequest) (chat.TurnResult, error) {
	if s.err != nil {
		return chat.TurnResult{}, s.err
	}
	res := s.result
	if res.SessionID == "" {
		res.SessionID = req.SessionID
	}
	return res, nil
}

func newTestServer(t *testing.T, cfg config.Config, turner TurnHandler) (*Server, *convlog.InMemoryLog, *memory.InMemoryStore) {
	t.Helper()
	if cfg.SessionInactivityTimeout == 0 {
		cfg.SessionInactivityTimeout = 2 * time.Minute
	}
	if cfg.RecallLimit == 0 {
		cfg.RecallLimit = 3
	}
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	metrics := observability.NewMetricsWith("test", prometheus.NewRegistry())
	store := memory.NewInMemoryStore()
	transcript := convlog.NewInMemoryLog()
	srv := New(cfg, sessions, turner, store, transcript, metrics, log.New(io.Discard))
	return srv, transcript, store
}

func TestChatEndpoint(t *testing.T) {
	turner := &stubTurner{result: chat.TurnResult{
		Reply:     "Try a vegetarian stir-fry.",
		SessionID: "s1",
		TurnID:    "t1",
		FactCount: 1,
	}}
	srv, _, _ := newTestServer(t, config.Config{}, turner)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{
		"user_id":    "u1",
		"session_id": "s1",
		"message":    "what should I cook tonight?",
	})
	res, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/chat error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var payload chatResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Response != "Try a vegetarian stir-fry." {
		t.Fatalf("response = %q", payload.Response)
	}
	if payload.SessionID != "s1" || payload.TurnID != "t1" || payload.FactCount != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestChatEndpointAttributesSessionToUser(t *testing.T) {
	turner := &stubTurner{result: chat.TurnResult{
		Reply:     "ok",
		SessionID: "s1",
		TurnID:    "t1",
	}}
	srv, _, _ := newTestServer(t, config.Config{}, turner)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(map[string]string{"user_id": "u1", "message": "hi"})
	res, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /api/chat error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	tracked := srv.sessions.ListByUser("u1")
	if len(tracked) != 1 {
		t.Fatalf("ListByUser(u1) = %d sessions, want 1", len(tracked))
	}
	if tracked[0].ID != "s1" || tracked[0].UserID != "u1" {
		t.Fatalf("tracked session = %+v, want s1 owned by u1", tracked[0])
	}
	if tracked[0].TurnCount != 1 {
		t.Fatalf("TurnCount = %d, want 1", tracked[0].TurnCount)
	}
}

func TestChatEndpointValidation(t *testing.T) {
	turner := &stubTurner{err: &chat.Fault{Kind: chat.FaultValidation, Op: "handle turn", Err: errors.New("message text is empty")}}
	srv, _, _ := newTestServer(t, config.Config{}, turner)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(`{"user_id":"u1","message":""}`))
	if err != nil {
		t.Fatalf("POST /api/chat error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestBearerTokenGuardsAPI(t *testing.T) {
	turner := &stubTurner{result: chat.TurnResult{Reply: "ok", SessionID: "s1", TurnID: "t1"}}
	srv, _, _ := newTestServer(t, config.Config{APIToken: "secret"}, turner)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Health stays open.
	healthRes, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	healthRes.Body.Close()
	if healthRes.StatusCode != http.StatusOK {
		t.Fatalf("/healthz status = %d, want %d", healthRes.StatusCode, http.StatusOK)
	}

	res, err := http.Post(ts.URL+"/api/chat", "application/json", strings.NewReader(`{"user_id":"u1","message":"hi"}`))
	if err != nil {
		t.Fatalf("POST /api/chat error = %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/chat", strings.NewReader(`{"user_id":"u1","message":"hi"}`))
	req.Header.Set("Authorization", "Bearer wrong")
	badRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST with wrong token error = %v", err)
	}
	badRes.Body.Close()
	if badRes.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong-token status = %d, want %d", badRes.StatusCode, http.StatusForbidden)
	}

	req, _ = http.NewRequest(http.MethodPost, ts.URL+"/api/chat", strings.NewReader(`{"user_id":"u1","message":"hi"}`))
	req.Header.Set("Authorization", "Bearer secret")
	goodRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST with token error = %v", err)
	}
	goodRes.Body.Close()
	if goodRes.StatusCode != http.StatusOK {
		t.Fatalf("authenticated status = %d, want %d", goodRes.StatusCode, http.StatusOK)
	}
}

func TestListMessagesAndSessions(t *testing.T) {
	turner := &stubTurner{result: chat.TurnResult{Reply: "ok", SessionID: "s1", TurnID: "t1"}}
	srv, transcript, _ := newTestServer(t, config.Config{}, turner)

	ctx := context.Background()
	for _, rec := range []convlog.Record{
		{SessionID: "s1", UserID: "u1", Role: convlog.RoleUser, Content: "hello"},
		{SessionID: "s1", UserID: "u1", Role: convlog.RoleAssistant, Content: "hi there"},
	} {
		if _, err := transcript.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	msgRes, err := http.Get(ts.URL + "/api/messages/s1")
	if err != nil {
		t.Fatalf("GET /api/messages/s1 error = %v", err)
	}
	defer msgRes.Body.Close()
	if msgRes.StatusCode != http.StatusOK {
		t.Fatalf("messages status = %d, want %d", msgRes.StatusCode, http.StatusOK)
	}
	var msgPayload struct {
		SessionID string           `json:"session_id"`
		Messages  []convlog.Record `json:"messages"`
	}
	if err := json.NewDecoder(msgRes.Body).Decode(&msgPayload); err != nil {
		t.Fatalf("decode messages: %v", err)
	}
	if len(msgPayload.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgPayload.Messages))
	}
	if msgPayload.Messages[0].Role != convlog.RoleUser {
		t.Fatalf("messages not chronological: %+v", msgPayload.Messages)
	}

	sessRes, err := http.Get(ts.URL + "/api/sessions/u1")
	if err != nil {
		t.Fatalf("GET /api/sessions/u1 error = %v", err)
	}
	defer sessRes.Body.Close()
	var sessPayload struct {
		UserID   string   `json:"user_id"`
		Sessions []string `json:"sessions"`
	}
	if err := json.NewDecoder(sessRes.Body).Decode(&sessPayload); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(sessPayload.Sessions) != 1 || sessPayload.Sessions[0] != "s1" {
		t.Fatalf("sessions = %+v, want [s1]", sessPayload.Sessions)
	}
}

func TestMemorySearchAndClear(t *testing.T) {
	turner := &stubTurner{result: chat.TurnResult{Reply: "ok", SessionID: "s1", TurnID: "t1"}}
	srv, _, store := newTestServer(t, config.Config{}, turner)

	ctx := context.Background()
	if err := store.Add(ctx, []memory.Message{
		{Role: "user", Content: "I love spicy ramen"},
	}, "u1"); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	searchBody := `{"query":"spicy ramen","user_id":"u1","limit":3}`
	res, err := http.Post(ts.URL+"/api/memories/search", "application/json", strings.NewReader(searchBody))
	if err != nil {
		t.Fatalf("POST /api/memories/search error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var searchPayload struct {
		Results []memory.Fact `json:"results"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchPayload); err != nil {
		t.Fatalf("decode search: %v", err)
	}
	if len(searchPayload.Results) == 0 {
		t.Fatal("search returned no results")
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/memories/u1", nil)
	delRes, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /api/memories/u1 error = %v", err)
	}
	delRes.Body.Close()
	if delRes.StatusCode != http.StatusOK {
		t.Fatalf("clear status = %d, want %d", delRes.StatusCode, http.StatusOK)
	}

	res2, err := http.Post(ts.URL+"/api/memories/search", "application/json", strings.NewReader(searchBody))
	if err != nil {
		t.Fatalf("second search error = %v", err)
	}
	defer res2.Body.Close()
	var afterClear struct {
		Results []memory.Fact `json:"results"`
	}
	if err := json.NewDecoder(res2.Body).Decode(&afterClear); err != nil {
		t.Fatalf("decode second search: %v", err)
	}
	if len(afterClear.Results) != 0 {
		t.Fatalf("results after clear = %d, want 0", len(afterClear.Results))
	}
}

func TestChatWebSocket(t *testing.T) {
	turner := &stubTurner{result: chat.TurnResult{
		Reply:     "hello from the assistant",
		SessionID: "s1",
		TurnID:    "t1",
	}}
	srv, _, _ := newTestServer(t, config.Config{AllowAnyOrigin: true}, turner)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	if res != nil {
		res.Body.Close()
	}
	defer conn.Close()

	frame := `{"type":"client_message","session_id":"s1","user_id":"u1","text":"hi"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
		TurnID    string `json:"turn_id"`
		Text      string `json:"text"`
	}
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if reply.Type != "assistant_message" {
		t.Fatalf("reply type = %q, want assistant_message", reply.Type)
	}
	if reply.Text != "hello from the assistant" || reply.SessionID != "s1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}

	bad := `{"type":"client_message","user_id":"u1","text":"   "}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(bad)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	var errEvent struct {
		Type string `json:"type"`
		Code string `json:"code"`
	}
	if err := conn.ReadJSON(&errEvent); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if errEvent.Type != "error_event" || errEvent.Code != "invalid_client_message" {
		t.Fatalf("unexpected error event: %+v", errEvent)
	}
}

func TestPerfLatencyEndpoint(t *testing.T) {
	turner := &stubTurner{result: chat.TurnResult{Reply: "ok", SessionID: "s1", TurnID: "t1"}}
	srv, _, _ := newTestServer(t, config.Config{}, turner)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/api/perf/latency")
	if err != nil {
		t.Fatalf("GET /api/perf/latency error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	var payload observability.TurnStageSnapshot
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if payload.WindowSize == 0 {
		t.Fatalf("WindowSize = 0, want the configured ring size")
	}
}
