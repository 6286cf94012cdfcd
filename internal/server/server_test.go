package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/audit"
	"github.com/xela07ax/pra-approval-relay/internal/bot"
	"github.com/xela07ax/pra-approval-relay/internal/domain"
	"github.com/xela07ax/pra-approval-relay/internal/fanout"
	"github.com/xela07ax/pra-approval-relay/internal/infra"
	"github.com/xela07ax/pra-approval-relay/internal/render"
)

type mockBroadcaster struct {
	broadcastFunc func(ctx context.Context, card domain.Card) (fanout.Report, error)
	calls         int
}

func (m *mockBroadcaster) Broadcast(ctx context.Context, card domain.Card) (fanout.Report, error) {
	m.calls++
	return m.broadcastFunc(ctx, card)
}

type mockActivityHandler struct {
	handleFunc func(ctx context.Context, activity bot.Activity) (*bot.InvokeResponse, error)
}

func (m *mockActivityHandler) HandleActivity(ctx context.Context, activity bot.Activity) (*bot.InvokeResponse, error) {
	return m.handleFunc(ctx, activity)
}

type mockRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *mockRecorder) Log(event audit.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *mockRecorder) byKind(kind audit.Kind) []audit.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Event
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type mockValidator struct {
	err error
}

func (m *mockValidator) VerifyToken(string) error { return m.err }

func newTestServer(t *testing.T, fan Broadcaster, activities ActivityHandler, trail *mockRecorder, sharedKey string, validator TokenValidator) *Server {
	t.Helper()
	cfg := &infra.Config{
		Webhook: infra.WebhookConfig{SharedKey: sharedKey},
	}
	if fan == nil {
		fan = &mockBroadcaster{broadcastFunc: func(context.Context, domain.Card) (fanout.Report, error) {
			return fanout.Report{}, nil
		}}
	}
	if activities == nil {
		activities = &mockActivityHandler{handleFunc: func(context.Context, bot.Activity) (*bot.InvokeResponse, error) {
			return nil, nil
		}}
	}
	return NewServer(cfg, zap.NewNop(), render.NewRenderer(), fan, activities, trail, infra.NewMetrics(nil), validator, nil)
}

func TestHandleWebhook_Success(t *testing.T) {
	fan := &mockBroadcaster{
		broadcastFunc: func(_ context.Context, card domain.Card) (fanout.Report, error) {
			if len(card.Body) == 0 {
				t.Error("expected rendered card body")
			}
			return fanout.Report{Outcomes: []fanout.Outcome{
				{ConversationID: "conv-1"},
				{ConversationID: "conv-2"},
			}}, nil
		},
	}
	trail := &mockRecorder{}
	s := newTestServer(t, fan, nil, trail, "", nil)

	body := `{"request_id":"REQ-1","ticket_id":"EPM000123","hostname":"srv-01"}`
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Body.String(); got != "Notifications sent successfully" {
		t.Errorf("unexpected response body: %q", got)
	}

	received := trail.byKind(audit.KindRequestReceived)
	if len(received) != 1 || received[0].RequestID != "REQ-1" || received[0].Status != "OK" {
		t.Errorf("unexpected REQUEST_RECEIVED events: %+v", received)
	}
	broadcast := trail.byKind(audit.KindBroadcast)
	if len(broadcast) != 1 || broadcast[0].Status != "OK" {
		t.Errorf("unexpected BROADCAST events: %+v", broadcast)
	}
}

func TestHandleWebhook_PartialDeliveryStillOK(t *testing.T) {
	fan := &mockBroadcaster{
		broadcastFunc: func(context.Context, domain.Card) (fanout.Report, error) {
			return fanout.Report{Outcomes: []fanout.Outcome{
				{ConversationID: "conv-1"},
				{ConversationID: "conv-2", Err: errors.New("dead conversation")},
			}}, nil
		},
	}
	trail := &mockRecorder{}
	s := newTestServer(t, fan, nil, trail, "", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{"request_id":"REQ-2"}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on partial delivery, got %d", rec.Code)
	}
	broadcast := trail.byKind(audit.KindBroadcast)
	if len(broadcast) != 1 || broadcast[0].Status != "PARTIAL" {
		t.Errorf("expected PARTIAL broadcast event, got %+v", broadcast)
	}
}

func TestHandleWebhook_NoTargets(t *testing.T) {
	fan := &mockBroadcaster{
		broadcastFunc: func(context.Context, domain.Card) (fanout.Report, error) {
			return fanout.Report{}, domain.ErrNoTargets
		},
	}
	trail := &mockRecorder{}
	s := newTestServer(t, fan, nil, trail, "", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{"request_id":"REQ-3"}`)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	broadcast := trail.byKind(audit.KindBroadcast)
	if len(broadcast) != 1 || broadcast[0].Status != "FAILED" {
		t.Errorf("expected FAILED broadcast event, got %+v", broadcast)
	}
}

func TestHandleWebhook_MalformedPayload(t *testing.T) {
	fan := &mockBroadcaster{broadcastFunc: func(context.Context, domain.Card) (fanout.Report, error) {
		return fanout.Report{}, nil
	}}
	trail := &mockRecorder{}
	s := newTestServer(t, fan, nil, trail, "", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if fan.calls != 0 {
		t.Error("broadcast must not run for malformed payload")
	}
}

func TestHandleWebhook_SharedKey(t *testing.T) {
	fan := &mockBroadcaster{broadcastFunc: func(context.Context, domain.Card) (fanout.Report, error) {
		return fanout.Report{Outcomes: []fanout.Outcome{{ConversationID: "conv-1"}}}, nil
	}}
	trail := &mockRecorder{}
	s := newTestServer(t, fan, nil, trail, "s3cret", nil)

	// Без ключа — отказ до бизнес-логики
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{"request_id":"REQ-4"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", rec.Code)
	}
	if fan.calls != 0 {
		t.Fatal("broadcast must not run without shared key")
	}

	// С ключом — пропуск
	req := httptest.NewRequest(http.MethodPost, "/api/webhook", strings.NewReader(`{"request_id":"REQ-4"}`))
	req.Header.Set("x-api-key", "s3cret")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d", rec.Code)
	}
}

func TestHandleMessages_InvokeResponseAndAudit(t *testing.T) {
	resp := &bot.InvokeResponse{
		Status: http.StatusOK,
		Body: bot.InvokeResponseBody{
			StatusCode: http.StatusOK,
			Type:       domain.CardContentType,
			Value:      render.ResultCard("PRA access request approved by Alex."),
		},
	}
	activities := &mockActivityHandler{
		handleFunc: func(_ context.Context, activity bot.Activity) (*bot.InvokeResponse, error) {
			if activity.Name != bot.InvokeAdaptiveCardAction {
				t.Errorf("unexpected invoke name: %s", activity.Name)
			}
			return resp, nil
		},
	}
	trail := &mockRecorder{}
	s := newTestServer(t, nil, activities, trail, "", nil)

	activity := bot.Activity{
		Type: bot.ActivityInvoke,
		Name: bot.InvokeAdaptiveCardAction,
		From: domain.ChannelAccount{ID: "user-1", Name: "Alex"},
		Value: &bot.InvokeValue{Action: bot.InvokeAction{Data: bot.ActionSubmitData{
			Decision:  domain.DecisionAllow,
			RequestID: "REQ-9",
			TicketID:  "EPM000042",
		}}},
	}
	raw, _ := json.Marshal(activity)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewReader(raw)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got bot.InvokeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("response is not an invoke response: %v", err)
	}
	if got.Status != http.StatusOK || got.Body.Type != domain.CardContentType {
		t.Errorf("unexpected invoke response: %+v", got)
	}

	decisions := trail.byKind(audit.KindDecision)
	if len(decisions) != 1 {
		t.Fatalf("expected 1 DECISION event, got %d", len(decisions))
	}
	d := decisions[0]
	if d.RequestID != "REQ-9" || d.Actor != "Alex" || d.Decision != domain.DecisionAllow || d.Status != "OK" {
		t.Errorf("unexpected DECISION event: %+v", d)
	}
}

func TestHandleMessages_ConversationUpdateAck(t *testing.T) {
	activities := &mockActivityHandler{
		handleFunc: func(context.Context, bot.Activity) (*bot.InvokeResponse, error) {
			return nil, nil
		},
	}
	trail := &mockRecorder{}
	s := newTestServer(t, nil, activities, trail, "", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/messages",
		strings.NewReader(`{"type":"conversationUpdate","conversation":{"id":"conv-1"}}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty ack body, got %q", rec.Body.String())
	}
	if len(trail.byKind(audit.KindDecision)) != 0 {
		t.Error("conversationUpdate must not produce DECISION events")
	}
}

func TestHandleMessages_AuthRejected(t *testing.T) {
	called := false
	activities := &mockActivityHandler{
		handleFunc: func(context.Context, bot.Activity) (*bot.InvokeResponse, error) {
			called = true
			return nil, nil
		},
	}
	trail := &mockRecorder{}
	s := newTestServer(t, nil, activities, trail, "", &mockValidator{err: fmt.Errorf("invalid token")})

	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"type":"message"}`))
	req.Header.Set("Authorization", "Bearer bogus")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("handler must not run for rejected token")
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil, &mockRecorder{}, "", nil)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
