package audit

import "time"

// Kind — вид записи audit trail.
type Kind string

const (
	KindRequestReceived Kind = "REQUEST_RECEIVED" // webhook принят и нормализован
	KindBroadcast       Kind = "BROADCAST"        // итог рассылки по беседам
	KindDecision        Kind = "DECISION"         // решение аппрувера проведено
)

// Event — одна запись истории обработки. Это аудит происходящего, а не
// состояние заявки: корреляция решений по-прежнему живёт только в requestId.
type Event struct {
	ID        string    `json:"id"`       // UUID события
	TraceID   string    `json:"trace_id"` // сквозной ID HTTP-запроса
	Kind      Kind      `json:"kind"`
	RequestID string    `json:"request_id"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Actor     string    `json:"actor,omitempty"`    // кто принял решение
	Decision  string    `json:"decision,omitempty"` // allow | deny
	Status    string    `json:"status"`             // OK | FAILED | PARTIAL
	Detail    string    `json:"detail,omitempty"`   // текст ошибки или сводка доставки
	Timestamp time.Time `json:"timestamp"`
}
