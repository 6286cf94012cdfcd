package epm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
)

// TokenProvider получает короткоживущий bearer-токен у EPM через
// client-credentials обмен. Кэша и ретраев нет намеренно: трафик решений
// низкочастотный, каждый вызов — ground truth для одного downstream-вызова.
type TokenProvider struct {
	tokenURL     string
	clientID     string
	clientSecret string
	httpc        *http.Client
	logger       *zap.Logger
}

func NewTokenProvider(baseURL, clientID, clientSecret string, timeout time.Duration, logger *zap.Logger) *TokenProvider {
	return &TokenProvider{
		tokenURL:     strings.TrimRight(baseURL, "/") + "/oauth/connect/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		httpc:        &http.Client{Timeout: timeout},
		logger:       logger.Named("epm-token"),
	}
}

// GetToken выполняет один обмен client_credentials → access_token.
// Любой провал — *domain.AuthError со статусом и телом ответа.
func (p *TokenProvider) GetToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &domain.AuthError{Err: fmt.Errorf("build token request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return "", &domain.AuthError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("token endpoint rejected exchange",
			zap.Int("status", resp.StatusCode),
		)
		return "", &domain.AuthError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", &domain.AuthError{Err: fmt.Errorf("decode token response: %w", err)}
	}
	if parsed.AccessToken == "" {
		return "", &domain.AuthError{Status: resp.StatusCode, Body: "token response without access_token"}
	}
	return parsed.AccessToken, nil
}
