package fanout

import (
	"context"

	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
	"github.com/xela07ax/pra-approval-relay/internal/infra"
)

// TargetSource — то, что рассылке нужно от справочника бесед.
type TargetSource interface {
	ListAll(ctx context.Context) []domain.ConversationTarget
}

// CardSender — доставка карточки в одну беседу через чат-транспорт.
type CardSender interface {
	SendCard(ctx context.Context, target domain.ConversationTarget, card domain.Card) error
}

// Outcome — исход доставки в одну беседу.
type Outcome struct {
	ConversationID string
	Err            error
}

// Report — упорядоченный список исходов по всем целям. Явный отчёт вместо
// выброшенных исключений: частичные отказы видны вызывающему и тестам.
type Report struct {
	Outcomes []Outcome
}

// Delivered возвращает число успешных доставок.
func (r Report) Delivered() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed возвращает число отказов.
func (r Report) Failed() int {
	return len(r.Outcomes) - r.Delivered()
}

// Fanout рассылает одну карточку во все зарегистрированные беседы.
type Fanout struct {
	targets TargetSource
	sender  CardSender
	metrics *infra.Metrics
	logger  *zap.Logger
}

func New(targets TargetSource, sender CardSender, metrics *infra.Metrics, logger *zap.Logger) *Fanout {
	return &Fanout{
		targets: targets,
		sender:  sender,
		metrics: metrics,
		logger:  logger.Named("fanout"),
	}
}

// Broadcast доставляет карточку каждой цели независимо. Отказ одной беседы
// логируется и попадает в отчёт, но не прерывает доставку остальным.
// Пустой справочник — ErrNoTargets: рассылать некуда, запрос отклоняется.
func (f *Fanout) Broadcast(ctx context.Context, card domain.Card) (Report, error) {
	targets := f.targets.ListAll(ctx)
	if len(targets) == 0 {
		return Report{}, domain.ErrNoTargets
	}

	report := Report{Outcomes: make([]Outcome, 0, len(targets))}
	for _, target := range targets {
		err := f.sender.SendCard(ctx, target, card)
		report.Outcomes = append(report.Outcomes, Outcome{
			ConversationID: target.Conversation.ID,
			Err:            err,
		})

		if err != nil {
			f.metrics.DeliveryTotal.WithLabelValues("failed").Inc()
			f.logger.Error("delivery failed",
				zap.String("conversation_id", target.Conversation.ID),
				zap.Error(err),
			)
			continue
		}
		f.metrics.DeliveryTotal.WithLabelValues("delivered").Inc()
	}

	f.logger.Info("broadcast finished",
		zap.Int("targets", len(targets)),
		zap.Int("delivered", report.Delivered()),
		zap.Int("failed", report.Failed()),
	)
	return report, nil
}
