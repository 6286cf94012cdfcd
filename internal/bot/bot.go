package bot

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
	"github.com/xela07ax/pra-approval-relay/internal/render"
)

// Приветствия при добавлении бота: вариант для канала и для личного чата.
const (
	greetingChannel  = "Hi! I'm the PRA approvals bot. I'll notify this channel of any approval requests."
	greetingPersonal = "Hi! I'm the PRA approvals bot. I'll notify you of any approval requests."
)

// TargetRecorder — best-effort регистрация беседы в справочнике.
type TargetRecorder interface {
	Record(ctx context.Context, target domain.ConversationTarget)
}

// DecisionRelay — проведение решения аппрувера до downstream-системы.
type DecisionRelay interface {
	Relay(ctx context.Context, d domain.Decision) error
}

// TextSender — отправка текстового ответа в беседу (приветствия).
type TextSender interface {
	SendText(ctx context.Context, target domain.ConversationTarget, text string) error
}

// Bot обрабатывает входящие активности Bot Framework: регистрирует беседы
// и превращает нажатия кнопок карточки в решения.
type Bot struct {
	directory TargetRecorder
	relay     DecisionRelay
	sender    TextSender
	logger    *zap.Logger
}

func New(directory TargetRecorder, relay DecisionRelay, sender TextSender, logger *zap.Logger) *Bot {
	return &Bot{
		directory: directory,
		relay:     relay,
		sender:    sender,
		logger:    logger.Named("bot"),
	}
}

// HandleActivity диспетчеризует одну входящую активность. Ненулевой
// InvokeResponse возвращается только для invoke-активностей; остальные
// просто подтверждаются. Неизвестные типы и чужие invoke — no-op.
func (b *Bot) HandleActivity(ctx context.Context, activity Activity) (*InvokeResponse, error) {
	switch activity.Type {
	case ActivityConversationUpdate:
		b.handleConversationUpdate(ctx, activity)
		return nil, nil

	case ActivityInstallationUpdate:
		if activity.Action == "add" {
			b.directory.Record(ctx, TargetFromActivity(activity))
			b.greet(ctx, activity, greetingPersonal)
		}
		return nil, nil

	case ActivityInvoke:
		if activity.Name != InvokeAdaptiveCardAction {
			// Транспорт доставляет и другие invoke — они не наши
			b.logger.Debug("ignoring unknown invoke", zap.String("name", activity.Name))
			return nil, nil
		}
		return b.handleCardAction(ctx, activity), nil

	default:
		return nil, nil
	}
}

// handleConversationUpdate регистрирует беседу и здоровается, если в неё
// добавили именно бота.
func (b *Bot) handleConversationUpdate(ctx context.Context, activity Activity) {
	b.directory.Record(ctx, TargetFromActivity(activity))

	for _, member := range activity.MembersAdded {
		if member.ID != activity.Recipient.ID {
			continue
		}
		greeting := greetingPersonal
		if activity.Conversation != nil && activity.Conversation.ConversationType == "channel" {
			greeting = greetingChannel
		}
		b.greet(ctx, activity, greeting)
		return
	}
}

func (b *Bot) greet(ctx context.Context, activity Activity, text string) {
	target := TargetFromActivity(activity)
	if target.Key() == "" {
		return
	}
	if err := b.sender.SendText(ctx, target, text); err != nil {
		// Приветствие — вежливость, а не контракт
		b.logger.Warn("failed to send greeting",
			zap.String("conversation_id", target.Key()),
			zap.Error(err),
		)
	}
}

// handleCardAction проводит решение аппрувера и собирает карточку-результат.
// И успех, и отказ терминальны: каждый клик — один полный прогон relay.
func (b *Bot) handleCardAction(ctx context.Context, activity Activity) *InvokeResponse {
	if activity.Value == nil {
		return errorResponse(fmt.Errorf("invoke without value payload"))
	}
	data := activity.Value.Action.Data

	actor := activity.From.Name
	if actor == "" {
		actor = domain.UnknownUser
	}

	decision := domain.Decision{
		Decision:    data.Decision,
		RequestID:   data.RequestID,
		TicketID:    data.TicketID,
		ResponseURL: data.ResponseURL,
		ActorName:   actor,
		Message:     data.Message,
		Duration:    data.Duration,
	}

	if err := b.relay.Relay(ctx, decision); err != nil {
		return errorResponse(err)
	}

	verdict := "denied"
	if decision.Allowed() {
		verdict = "approved"
	}
	return &InvokeResponse{
		Status: http.StatusOK,
		Body: InvokeResponseBody{
			StatusCode: http.StatusOK,
			Type:       domain.CardContentType,
			Value:      render.ResultCard(fmt.Sprintf("PRA access request %s by %s.", verdict, actor)),
		},
	}
}

func errorResponse(err error) *InvokeResponse {
	return &InvokeResponse{
		Status: http.StatusInternalServerError,
		Body: InvokeResponseBody{
			StatusCode: http.StatusInternalServerError,
			Type:       domain.CardContentType,
			Value:      render.ResultCard(fmt.Sprintf("Error: %s", err.Error())),
		},
	}
}
