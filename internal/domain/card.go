package domain

// Adaptive Card: минимальное подмножество схемы, которое реально шлёт бот.
// Структурная модель вместо шаблонных строк — подстановка не может
// испортить значение со спецсимволами.

const (
	CardContentType = "application/vnd.microsoft.card.adaptive"
	CardSchema      = "http://adaptivecards.io/schemas/adaptive-card.json"
)

// Fact — одна строка FactSet («Requester: alice»).
type Fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// CardElement — элемент тела карточки (TextBlock или FactSet).
type CardElement struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
	Facts  []Fact `json:"facts,omitempty"`
}

// ActionData — полезная нагрузка кнопки. Единственное место, где requestId,
// ticketId и responseUrl доезжают до момента принятия решения.
type ActionData struct {
	Decision    string `json:"decision"`
	RequestID   string `json:"requestId"`
	TicketID    string `json:"ticketId,omitempty"`
	ResponseURL string `json:"responseUrl,omitempty"`
}

// CardAction — интерактивная кнопка Action.Submit.
type CardAction struct {
	Type  string     `json:"type"`
	Title string     `json:"title"`
	Style string     `json:"style,omitempty"`
	Data  ActionData `json:"data"`
}

// Card — документ уведомления, уходящий в каждую беседу.
type Card struct {
	Type    string        `json:"type"`
	Version string        `json:"version"`
	Schema  string        `json:"$schema,omitempty"`
	Body    []CardElement `json:"body"`
	Actions []CardAction  `json:"actions,omitempty"`
}

// Attachment оборачивает карточку для отправки активностью.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     Card   `json:"content"`
}
