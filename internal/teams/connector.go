package teams

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
)

// TokenSource — то, что коннектору нужно от провайдера сервисного токена.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// outboundActivity — минимальная активность Bot Framework для проактивного
// сообщения: текст или вложенная карточка.
type outboundActivity struct {
	Type         string                  `json:"type"`
	ID           string                  `json:"id,omitempty"`
	From         domain.ChannelAccount   `json:"from"`
	Conversation domain.ConversationMeta `json:"conversation"`
	Text         string                  `json:"text,omitempty"`
	Attachments  []domain.Attachment     `json:"attachments,omitempty"`
}

// Connector повторно входит в сохранённую беседу через REST API коннектора
// Bot Framework и отправляет туда карточку.
type Connector struct {
	tokens TokenSource
	httpc  *http.Client
	logger *zap.Logger
}

func NewConnector(tokens TokenSource, timeout time.Duration, logger *zap.Logger) *Connector {
	return &Connector{
		tokens: tokens,
		httpc:  &http.Client{Timeout: timeout},
		logger: logger.Named("teams-connector"),
	}
}

// SendCard доставляет карточку в одну беседу. Адресация целиком берётся из
// сохранённого ConversationTarget: serviceUrl, conversation id и identity
// бота в этой беседе.
func (c *Connector) SendCard(ctx context.Context, target domain.ConversationTarget, card domain.Card) error {
	return c.send(ctx, target, outboundActivity{
		Type:         "message",
		ID:           uuid.New().String(),
		From:         target.Bot,
		Conversation: domain.ConversationMeta{ID: target.Conversation.ID},
		Attachments: []domain.Attachment{
			{ContentType: domain.CardContentType, Content: card},
		},
	})
}

// SendText отправляет простое текстовое сообщение (приветствие при
// установке бота).
func (c *Connector) SendText(ctx context.Context, target domain.ConversationTarget, text string) error {
	return c.send(ctx, target, outboundActivity{
		Type:         "message",
		ID:           uuid.New().String(),
		From:         target.Bot,
		Conversation: domain.ConversationMeta{ID: target.Conversation.ID},
		Text:         text,
	})
}

func (c *Connector) send(ctx context.Context, target domain.ConversationTarget, activity outboundActivity) error {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return fmt.Errorf("teams: failed to encode activity: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v3/conversations/%s/activities",
		strings.TrimRight(target.ServiceURL, "/"),
		url.PathEscape(target.Conversation.ID),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("teams: failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("teams: send to conversation %s failed: %w", target.Conversation.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("teams: connector returned %d for conversation %s: %s",
			resp.StatusCode, target.Conversation.ID, strings.TrimSpace(string(data)))
	}

	c.logger.Debug("card delivered",
		zap.String("conversation_id", target.Conversation.ID),
	)
	return nil
}
