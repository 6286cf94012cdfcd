package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
	"github.com/xela07ax/pra-approval-relay/internal/epm"
	"github.com/xela07ax/pra-approval-relay/internal/infra"
)

// decisionTimeLayout — формат времени, которого требует схема EPM:
// UTC, без долей секунды, без разделителей T/Z.
const decisionTimeLayout = "2006-01-02 15:04:05"

// ticketPrefix срезает буквенный префикс и ведущие нули номера тикета:
// "EPM000123" → "123". Голый номер ("123") остается как есть.
var ticketPrefix = regexp.MustCompile(`^[A-Za-z]+0*`)

// DecisionNotifier — то, что relay нужно от клиента management API.
type DecisionNotifier interface {
	NotifyDecision(ctx context.Context, requestID string, payload epm.DecisionPayload) error
}

// Relay разруливает решение аппрувера в один из двух исходящих путей:
// прямой вызов management API EPM или POST на response_url вызывающей
// стороны. Состояние между кликами не хранится — каждый клик это один
// полный прогон: Received → Routing → Acknowledged.
type Relay struct {
	epm        DecisionNotifier
	epmBaseURL string
	httpc      *http.Client
	metrics    *infra.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

func New(notifier DecisionNotifier, epmBaseURL string, timeout time.Duration, metrics *infra.Metrics, logger *zap.Logger) *Relay {
	return &Relay{
		epm:        notifier,
		epmBaseURL: strings.TrimRight(epmBaseURL, "/"),
		httpc:      &http.Client{Timeout: timeout},
		metrics:    metrics,
		logger:     logger.Named("relay"),
		now:        time.Now,
	}
}

// Relay проводит одно решение до терминального состояния. Возвращённая
// ошибка терминальна: повторной отправки нет, аппрувер увидит её в
// карточке-результате.
func (r *Relay) Relay(ctx context.Context, d domain.Decision) error {
	path := "direct"
	if d.ResponseURL != "" {
		path = "callback"
	}

	start := r.now()
	err := r.route(ctx, d)
	r.metrics.RelayDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	r.metrics.DecisionTotal.WithLabelValues(d.Decision, path, status).Inc()

	if err != nil {
		r.logger.Error("decision relay failed",
			zap.String("request_id", d.RequestID),
			zap.String("path", path),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("decision relayed",
		zap.String("request_id", d.RequestID),
		zap.String("decision", d.Decision),
		zap.String("path", path),
		zap.String("actor", d.ActorName),
	)
	return nil
}

// route выбирает ровно один из двух путей по форме payload-а.
func (r *Relay) route(ctx context.Context, d domain.Decision) error {
	if d.ResponseURL != "" {
		return r.postCallback(ctx, d)
	}
	return r.notifyEPM(ctx, d)
}

// notifyEPM — прямой путь: свежий токен берет клиент EPM, мы собираем
// полный payload схемы management API.
func (r *Relay) notifyEPM(ctx context.Context, d domain.Decision) error {
	actor := d.ActorName
	if actor == "" {
		actor = domain.UnknownUser
	}
	duration := d.Duration
	if duration == "" {
		duration = "Once"
	}
	message := d.Message
	if message == "" {
		message = domain.NotSpecified
	}
	// Исторически часть карточек не доносила ticketId; requestId —
	// последний резерв, иначе схема API не пройдёт валидацию
	ticketID := d.TicketID
	if ticketID == "" {
		ticketID = d.RequestID
	}

	payload := epm.DecisionPayload{
		Status:                  d.StatusCode(),
		Decision:                d.Verdict(),
		DecisionPerformedByUser: actor,
		Duration:                duration,
		ItsmRequestID:           d.RequestID,
		DecisionTime:            r.now().UTC().Format(decisionTimeLayout),
		Message:                 message,
		SystemID:                d.RequestID,
		TicketID:                ticketID,
		TicketURL:               TicketURL(r.epmBaseURL, ticketID),
	}

	return r.epm.NotifyDecision(ctx, d.RequestID, payload)
}

// postCallback — обратный путь: минимальное тело на URL вызывающей стороны,
// без аутентификации.
func (r *Relay) postCallback(ctx context.Context, d domain.Decision) error {
	body, err := json.Marshal(map[string]string{
		"response_id": d.RequestID,
		"response":    d.Decision,
		"message":     d.Message,
	})
	if err != nil {
		return fmt.Errorf("relay: failed to encode callback body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.ResponseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("relay: failed to build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("relay: callback to %s failed: %w", d.ResponseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &domain.DownstreamError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	return nil
}

// TicketURL строит ссылку на тикет в консоли EPM из номера тикета.
func TicketURL(baseURL, ticketID string) string {
	numeric := ticketPrefix.ReplaceAllString(ticketID, "")
	return fmt.Sprintf("%s/jit-access-management/details/%s", baseURL, numeric)
}
