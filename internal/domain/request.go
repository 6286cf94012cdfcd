package domain

// NotSpecified — фиксированная заглушка для отсутствующих полей заявки.
// Карточка всегда сохраняет стабильную форму: аппруверы видят все факты,
// даже если интеграция прислала неполные данные.
const NotSpecified = "Not specified"

// ApprovalRequest — каноническое представление входящей заявки на доступ.
// Не персистится: requestId — единственный ключ корреляции, он обязан
// пройти без изменений путь «заявка → карточка → решение».
type ApprovalRequest struct {
	RequestID     string // корреляционный ключ, присваивается вызывающей стороной
	TicketID      string
	Hostname      string
	JumpItemType  string
	Username      string
	UserEmail     string
	JumpItemGroup string
	ResponseURL   string // если задан — решение уходит POST-ом на этот URL
}

// FillDefaults подставляет заглушку во все незаполненные описательные поля.
// RequestID, TicketID и ResponseURL не трогаем: это идентификаторы, а не факты.
func (r *ApprovalRequest) FillDefaults() {
	for _, p := range []*string{&r.Hostname, &r.JumpItemType, &r.Username, &r.UserEmail, &r.JumpItemGroup} {
		if *p == "" {
			*p = NotSpecified
		}
	}
}
