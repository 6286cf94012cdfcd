package epm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
)

func TestGetTokenSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/oauth/connect/token" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("unexpected content type %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("unexpected grant_type %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_id") != "cid" || r.PostForm.Get("client_secret") != "secret" {
			t.Errorf("credentials not forwarded")
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
	}))
	defer srv.Close()

	p := NewTokenProvider(srv.URL, "cid", "secret", 5*time.Second, zap.NewNop())
	token, err := p.GetToken(context.Background())
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("unexpected token %q", token)
	}
}

func TestGetTokenNon2xxCarriesStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewTokenProvider(srv.URL, "cid", "bad", 5*time.Second, zap.NewNop())
	_, err := p.GetToken(context.Background())

	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Status != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", authErr.Status)
	}
	if authErr.Body != "invalid_client" {
		t.Errorf("expected upstream body, got %q", authErr.Body)
	}
}

func TestGetTokenMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"token_type": "Bearer"}`))
	}))
	defer srv.Close()

	p := NewTokenProvider(srv.URL, "cid", "secret", 5*time.Second, zap.NewNop())
	if _, err := p.GetToken(context.Background()); err == nil {
		t.Fatal("expected error for token response without access_token")
	}
}

type staticTokens struct {
	token string
	err   error
	calls int
}

func (s *staticTokens) GetToken(context.Context) (string, error) {
	s.calls++
	return s.token, s.err
}

func TestNotifyDecisionSendsAuthorizedPayload(t *testing.T) {
	var got DecisionPayload
	var gotAuth, gotCorrelation string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/management-api/v2/AuthorizationRequest/notification/" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotCorrelation = r.Header.Get("x-correlation-id")
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &staticTokens{token: "tok-123"}, 5*time.Second, zap.NewNop())
	payload := DecisionPayload{
		Status:                  domain.StatusCodeApproved,
		Decision:                "Approved",
		DecisionPerformedByUser: "alice",
		ItsmRequestID:           "R1",
		SystemID:                "R1",
		TicketID:                "EPM000042",
	}
	if err := c.NotifyDecision(context.Background(), "R1", payload); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if gotAuth != "Bearer tok-123" {
		t.Errorf("unexpected authorization header %q", gotAuth)
	}
	if gotCorrelation != "R1" {
		t.Errorf("correlation id not propagated, got %q", gotCorrelation)
	}
	if got.Status != domain.StatusCodeApproved || got.TicketID != "EPM000042" {
		t.Errorf("payload mangled: %+v", got)
	}
}

func TestNotifyDecisionTokenFailureSkipsAPICall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	tokenErr := &domain.AuthError{Status: http.StatusUnauthorized, Body: "invalid_client"}
	c := NewClient(srv.URL, &staticTokens{err: tokenErr}, 5*time.Second, zap.NewNop())

	err := c.NotifyDecision(context.Background(), "R1", DecisionPayload{})
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if called {
		t.Error("notification endpoint must not be called when token exchange fails")
	}
}

func TestNotifyDecisionNon2xxIsDownstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request body", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, &staticTokens{token: "tok"}, 5*time.Second, zap.NewNop())
	err := c.NotifyDecision(context.Background(), "R1", DecisionPayload{})

	var dsErr *domain.DownstreamError
	if !errors.As(err, &dsErr) {
		t.Fatalf("expected DownstreamError, got %v", err)
	}
	if dsErr.Status != http.StatusBadRequest || dsErr.Body != "bad request body" {
		t.Errorf("error must carry upstream status/body: %+v", dsErr)
	}
}
