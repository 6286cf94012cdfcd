package bot

import (
	"github.com/xela07ax/pra-approval-relay/internal/domain"
)

// Типы активностей Bot Framework, которые сервис различает.
const (
	ActivityMessage            = "message"
	ActivityConversationUpdate = "conversationUpdate"
	ActivityInstallationUpdate = "installationUpdate"
	ActivityInvoke             = "invoke"

	// InvokeAdaptiveCardAction — имя invoke-активности при нажатии
	// Action.Submit в карточке. Остальные invoke нам не принадлежат.
	InvokeAdaptiveCardAction = "adaptiveCard/action"
)

// Activity — подмножество схемы активности Bot Framework, достаточное для
// регистрации бесед и обработки нажатий кнопок.
type Activity struct {
	Type         string                   `json:"type"`
	ID           string                   `json:"id,omitempty"`
	Name         string                   `json:"name,omitempty"`   // имя invoke
	Action       string                   `json:"action,omitempty"` // installationUpdate: add | remove
	ChannelID    string                   `json:"channelId"`
	ServiceURL   string                   `json:"serviceUrl"`
	Conversation *domain.ConversationMeta `json:"conversation,omitempty"`
	From         domain.ChannelAccount    `json:"from"`
	Recipient    domain.ChannelAccount    `json:"recipient"`
	MembersAdded []domain.ChannelAccount  `json:"membersAdded,omitempty"`
	Value        *InvokeValue             `json:"value,omitempty"`
}

// InvokeValue — value invoke-активности adaptiveCard/action.
type InvokeValue struct {
	Action InvokeAction `json:"action"`
}

// InvokeAction несёт data кнопки, собранную рендером при отправке карточки.
type InvokeAction struct {
	Type string           `json:"type,omitempty"`
	Data ActionSubmitData `json:"data"`
}

// ActionSubmitData — расширенная форма domain.ActionData: транспорт может
// дослать к решению сообщение и селектор длительности.
type ActionSubmitData struct {
	Decision    string `json:"decision"`
	RequestID   string `json:"requestId"`
	TicketID    string `json:"ticketId,omitempty"`
	ResponseURL string `json:"responseUrl,omitempty"`
	Message     string `json:"message,omitempty"`
	Duration    string `json:"duration,omitempty"`
}

// InvokeResponse — ответ на invoke-активность в формате Bot Framework.
type InvokeResponse struct {
	Status int                `json:"status"`
	Body   InvokeResponseBody `json:"body"`
}

// InvokeResponseBody оборачивает карточку-результат для рендера в Teams.
type InvokeResponseBody struct {
	StatusCode int         `json:"statusCode"`
	Type       string      `json:"type"`
	Value      domain.Card `json:"value"`
}

// TargetFromActivity извлекает координаты беседы из входящей активности.
// Активность без conversation id даёт цель с пустым ключом — справочник
// такие молча пропускает.
func TargetFromActivity(a Activity) domain.ConversationTarget {
	target := domain.ConversationTarget{
		ChannelID:  a.ChannelID,
		ServiceURL: a.ServiceURL,
		Bot:        a.Recipient,
	}
	if a.Conversation != nil {
		target.Conversation = *a.Conversation
		target.TenantID = a.Conversation.TenantID
	}
	return target
}
