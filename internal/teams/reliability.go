package teams

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
)

// CardSender — контракт доставки карточки в одну беседу.
type CardSender interface {
	SendCard(ctx context.Context, target domain.ConversationTarget, card domain.Card) error
}

// ReliabilityWrapper оборачивает коннектор транспортной политикой:
// rate limiter, circuit breaker и ограниченные повторы на сетевые сбои.
// Это политика транспортного слоя; правила «без ретраев» для token provider
// и decision relay она не затрагивает.
type ReliabilityWrapper struct {
	next    CardSender
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewReliabilityWrapper(next CardSender) *ReliabilityWrapper {
	// Настройка предохранителя: частые отказы коннектора (упавший
	// serviceUrl, истёкшие права) не должны держать рассылку на таймаутах
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "teams-connector",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	// Лимит исходящих сообщений: Teams дросселирует ботов, шлём умеренно
	limiter := rate.NewLimiter(rate.Limit(10), 5)

	return &ReliabilityWrapper{
		next:    next,
		cb:      cb,
		limiter: limiter,
	}
}

func (w *ReliabilityWrapper) SendCard(ctx context.Context, target domain.ConversationTarget, card domain.Card) error {
	// 1. Rate Limiter
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker + ограниченные повторы внутри
	_, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
		)
		return nil, r.Do(func() error {
			return w.next.SendCard(ctx, target, card)
		})
	})
	return err
}
