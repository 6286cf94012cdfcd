package domain

// Значения поля decision в data интерактивных кнопок.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Коды статусов downstream-схемы EPM: 2000 — одобрено, 2001 — отклонено.
const (
	StatusCodeApproved = "2000"
	StatusCodeDenied   = "2001"
)

// UnknownUser — fallback, если транспорт не передал identity аппрувера.
const UnknownUser = "Unknown User"

// Decision — решение аппрувера, собранное из payload интерактивного действия.
// Несёт все идентификаторы исходной заявки, потому что серверного стора
// заявок нет и look-up делать не по чему.
type Decision struct {
	Decision    string // allow | deny
	RequestID   string
	TicketID    string
	ResponseURL string
	ActorName   string // display name аппрувера
	Message     string
	Duration    string // селектор длительности доступа ("Once" по умолчанию)
}

// Allowed сообщает, одобрен ли доступ.
func (d Decision) Allowed() bool {
	return d.Decision == DecisionAllow
}

// Verdict возвращает формулировку решения для downstream API.
func (d Decision) Verdict() string {
	if d.Allowed() {
		return "Approved"
	}
	return "Denied"
}

// StatusCode возвращает числовой код решения для downstream API.
func (d Decision) StatusCode() string {
	if d.Allowed() {
		return StatusCodeApproved
	}
	return StatusCodeDenied
}
