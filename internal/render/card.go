package render

import (
	"github.com/xela07ax/pra-approval-relay/internal/domain"
)

// CardTitle — заголовок карточки уведомления.
const CardTitle = "PRA Access Approval Request"

// Renderer — чистое преобразование заявки в интерактивную карточку.
// Никакого I/O и обращения к часам: один вход — один и тот же выход.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render строит карточку с фиксированным набором фактов в неизменном
// порядке. Отсутствующее поле отображается заглушкой, а не пропадает:
// аппруверы должны видеть стабильную форму карточки. В data кнопок
// requestId/ticketId/responseUrl уходят как есть — это единственное место,
// где они сохраняются до момента решения.
func (r *Renderer) Render(req domain.ApprovalRequest) domain.Card {
	facts := []domain.Fact{
		{Title: "Request ID:", Value: orPlaceholder(req.RequestID)},
		{Title: "Ticket ID:", Value: orPlaceholder(req.TicketID)},
		{Title: "Hostname:", Value: orPlaceholder(req.Hostname)},
		{Title: "Access Type:", Value: orPlaceholder(req.JumpItemType)},
		{Title: "Requester:", Value: orPlaceholder(req.Username)},
		{Title: "Email:", Value: orPlaceholder(req.UserEmail)},
		{Title: "Jump Group:", Value: orPlaceholder(req.JumpItemGroup)},
	}

	return domain.Card{
		Type:    "AdaptiveCard",
		Version: "1.2",
		Schema:  domain.CardSchema,
		Body: []domain.CardElement{
			{Type: "TextBlock", Size: "Medium", Weight: "Bolder", Text: CardTitle},
			{Type: "FactSet", Facts: facts},
		},
		Actions: []domain.CardAction{
			{
				Type:  "Action.Submit",
				Title: "Approve",
				Style: "positive",
				Data: domain.ActionData{
					Decision:    domain.DecisionAllow,
					RequestID:   req.RequestID,
					TicketID:    req.TicketID,
					ResponseURL: req.ResponseURL,
				},
			},
			{
				Type:  "Action.Submit",
				Title: "Deny",
				Style: "destructive",
				Data: domain.ActionData{
					Decision:    domain.DecisionDeny,
					RequestID:   req.RequestID,
					TicketID:    req.TicketID,
					ResponseURL: req.ResponseURL,
				},
			},
		},
	}
}

// ResultCard строит финальную карточку-подтверждение для аппрувера.
func ResultCard(text string) domain.Card {
	return domain.Card{
		Type:    "AdaptiveCard",
		Version: "1.4",
		Body: []domain.CardElement{
			{Type: "TextBlock", Text: text, Wrap: true},
		},
	}
}

func orPlaceholder(v string) string {
	if v == "" {
		return domain.NotSpecified
	}
	return v
}
