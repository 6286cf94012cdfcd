package epm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
)

// notificationPath — endpoint management API для передачи решения.
// Слэш на конце обязателен: вариант без него отдаёт 404.
const notificationPath = "/management-api/v2/AuthorizationRequest/notification/"

// DecisionPayload — тело уведомления о решении в схеме management API EPM.
type DecisionPayload struct {
	Status                  string `json:"status"` // "2000" | "2001"
	Decision                string `json:"decision"`
	DecisionPerformedByUser string `json:"decisionPerformedByUser"`
	Duration                string `json:"duration"`
	ItsmRequestID           string `json:"itsmRequestId"`
	DecisionTime            string `json:"decisionTime"` // "YYYY-MM-DD HH:MM:SS", UTC
	Message                 string `json:"message"`
	SystemID                string `json:"systemId"`
	TicketID                string `json:"ticketId"`
	TicketURL               string `json:"ticketUrl"`
}

// TokenSource — то, что клиенту нужно от Token Provider.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// Client шлёт уведомления о решениях в management API EPM.
type Client struct {
	baseURL string
	tokens  TokenSource
	httpc   *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, tokens TokenSource, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpc:   &http.Client{Timeout: timeout},
		logger:  logger.Named("epm-client"),
	}
}

// NotifyDecision получает свежий токен и отправляет решение в EPM.
// requestId уходит в заголовке x-correlation-id. Non-2xx — терминальный
// *domain.DownstreamError, повторов нет.
func (c *Client) NotifyDecision(ctx context.Context, requestID string, payload DecisionPayload) error {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("epm: failed to encode decision payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+notificationPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("epm: failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-correlation-id", requestID)

	c.logger.Debug("posting decision notification",
		zap.String("request_id", requestID),
		zap.String("status", payload.Status),
	)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("epm: notification call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &domain.DownstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return nil
}
