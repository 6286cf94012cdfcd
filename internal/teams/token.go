package teams

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenProvider получает сервисный токен Bot Framework для проактивной
// отправки. В отличие от EPM-обмена, токен коннектора кэшируется до
// истечения: рассылка в N бесед не должна делать N логинов.
type TokenProvider struct {
	tokenURL  string
	appID     string
	appSecret string
	scope     string
	httpc     *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenProvider(tokenURL, appID, appSecret, scope string, timeout time.Duration) *TokenProvider {
	return &TokenProvider{
		tokenURL:  tokenURL,
		appID:     appID,
		appSecret: appSecret,
		scope:     scope,
		httpc:     &http.Client{Timeout: timeout},
	}
}

// GetToken возвращает кэшированный токен или выполняет новый обмен.
func (p *TokenProvider) GetToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Запас в минуту, чтобы не отдать токен, который истечет в полёте
	if p.token != "" && time.Now().Add(time.Minute).Before(p.expiresAt) {
		return p.token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.appID)
	form.Set("client_secret", p.appSecret)
	form.Set("scope", p.scope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("teams: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("teams: token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("teams: token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("teams: decode token response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("teams: token response without access_token")
	}

	p.token = parsed.AccessToken
	p.expiresAt = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	return p.token, nil
}
