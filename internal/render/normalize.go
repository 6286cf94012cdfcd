package render

/*
Файл normalize.go сводит зоопарк входных форматов webhook-а к одной
канонической структуре ApprovalRequest.

Интеграции исторически присылают заявку в трёх вариантах:
  - вложенные объекты (request_id, jump_item{...}, user{...});
  - плоские ключи с точкой ("jump_item.computer_name");
  - шаблонная карточка с полями вида "%%RequestId%%".

Каждый вариант — отдельная ветка tagged union со своей функцией
нормализации. Рендер работает только с каноническим видом: никакой
подстановки строк в сериализованный JSON.
*/

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
)

// Shape — распознанный формат входной заявки.
type Shape int

const (
	ShapeObject    Shape = iota // вложенные объекты и/или dotted-ключи
	ShapeTemplated              // плоская карта "%%Key%%" → значение
)

// Normalize разбирает сырой JSON заявки и приводит его к каноническому виду.
// Неполные данные — не ошибка: пустые поля закроет заглушками рендер.
func Normalize(raw []byte) (domain.ApprovalRequest, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return domain.ApprovalRequest{}, fmt.Errorf("render: malformed request payload: %w", err)
	}

	switch DetectShape(payload) {
	case ShapeTemplated:
		return fromTemplated(payload), nil
	default:
		return fromObject(payload), nil
	}
}

// DetectShape определяет ветку tagged union по форме верхнего уровня.
func DetectShape(payload map[string]interface{}) Shape {
	for key := range payload {
		if strings.HasPrefix(key, "%%") && strings.HasSuffix(key, "%%") {
			return ShapeTemplated
		}
	}
	return ShapeObject
}

// fromObject нормализует вложенную и dotted-форму. Для каждого поля:
// значение из вложенного объекта приоритетнее dotted-ключа — это
// фиксированное правило разрешения конфликтов.
func fromObject(payload map[string]interface{}) domain.ApprovalRequest {
	return domain.ApprovalRequest{
		RequestID:     firstString(payload, "request_id", "requestId"),
		TicketID:      firstString(payload, "ticket_id", "ticketId", "ticketNumber"),
		Hostname:      nestedOrDotted(payload, "jump_item", "computer_name"),
		JumpItemType:  nestedOrDotted(payload, "jump_item", "type"),
		Username:      nestedOrDotted(payload, "user", "username"),
		UserEmail:     nestedOrDotted(payload, "user", "email_address"),
		JumpItemGroup: nestedOrDotted(payload, "jump_item", "group"),
		ResponseURL:   firstString(payload, "response_url", "responseUrl"),
	}
}

// fromTemplated нормализует шаблонную карту: ключи "%%X%%" сопоставляются
// каноническим полям по нормализованному имени плейсхолдера.
func fromTemplated(payload map[string]interface{}) domain.ApprovalRequest {
	fields := make(map[string]string, len(payload))
	for key, value := range payload {
		name := strings.TrimSuffix(strings.TrimPrefix(key, "%%"), "%%")
		name = strings.ToLower(strings.ReplaceAll(name, "_", ""))
		fields[name] = asString(value)
	}

	pick := func(names ...string) string {
		for _, n := range names {
			if v := fields[n]; v != "" {
				return v
			}
		}
		return ""
	}

	return domain.ApprovalRequest{
		RequestID:     pick("requestid"),
		TicketID:      pick("ticketid", "ticketnumber"),
		Hostname:      pick("hostname", "computername"),
		JumpItemType:  pick("jumpitemtype", "accesstype", "type"),
		Username:      pick("username", "requester"),
		UserEmail:     pick("useremail", "emailaddress", "email"),
		JumpItemGroup: pick("jumpitemgroup", "jumpgroup", "group"),
		ResponseURL:   pick("responseurl"),
	}
}

// nestedOrDotted достает payload[obj][field], а при его отсутствии —
// плоский ключ "obj.field".
func nestedOrDotted(payload map[string]interface{}, obj, field string) string {
	if nested, ok := payload[obj].(map[string]interface{}); ok {
		if v := asString(nested[field]); v != "" {
			return v
		}
	}
	return asString(payload[obj+"."+field])
}

func firstString(payload map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v := asString(payload[k]); v != "" {
			return v
		}
	}
	return ""
}

// asString приводит значение JSON к строке; числа вида 42 не должны
// превращаться в "42.000000".
func asString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return ""
	}
}
