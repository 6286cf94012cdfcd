package audit

/*
Файл trail.go реализует audit trail обработки заявок: сбор событий в
неблокирующий буфер и пакетную запись в хранилище.

Ключевые свойства:
- Non-blocking Logging: горячий путь (webhook, invoke) не ждёт БД —
  события уходят в буферизованный канал.
- Batching: события копятся и пишутся пачками по таймеру или при
  достижении лимита пачки.
- Drain Pattern: при остановке сервиса вход «запирается», воркер
  дочитывает канал и делает финальный flush — записи не теряются.
- Load Shedding: при переполненном буфере событие уходит в обычный лог,
  а не блокирует обработку.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/infra"
)

// StorageInterface определяет, куда физически сохраняются события.
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []Event) error
}

// Recorder — интерфейс для горячего пути.
type Recorder interface {
	Log(event Event)
}

type Trail struct {
	ch            chan Event
	repo          StorageInterface
	logger        *zap.Logger
	metrics       *infra.Metrics
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup

	// mu защищает переход closed: Log держит RLock на время отправки,
	// поэтому close(ch) не может пересечься с send-ом в канал
	mu     sync.RWMutex
	closed bool
}

func NewTrail(repo StorageInterface, cfg infra.AuditConfig, metrics *infra.Metrics, logger *zap.Logger) *Trail {
	return &Trail{
		ch:            make(chan Event, cfg.BufferSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit")),
		metrics:       metrics,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
	}
}

func (t *Trail) Start() {
	t.wg.Add(1)
	go t.worker()
}

// Stop «запирает» вход в канал и ждёт, пока воркер всё допишет.
// Повторный вызов — no-op.
func (t *Trail) Stop() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.logger.Info("stopping audit trail: closing channel and flushing buffer...")
	close(t.ch)
	t.wg.Wait()
	t.logger.Info("audit trail stopped gracefully")
}

func (t *Trail) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		t.logger.Warn("audit event dropped: trail is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case t.ch <- event:
		t.metrics.AuditBufferFill.Set(float64(len(t.ch)))
	default:
		// Буфер переполнен — сбрасываем нагрузку в обычный лог
		t.logger.Error("audit_buffer_overflow",
			zap.String("request_id", event.RequestID),
			zap.String("kind", string(event.Kind)),
		)
	}
}

func (t *Trail) worker() {
	defer t.wg.Done()

	batch := make([]Event, 0, t.batchSize)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст к моменту Stop уже закрыт
			if err := t.repo.WriteBatch(context.Background(), batch); err != nil {
				t.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case event, ok := <-t.ch:
			if !ok {
				// Канал закрыт в Stop(): дочитали остатки — финальный flush
				flush()
				t.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= t.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// NopStorage — заглушка, когда Postgres не сконфигурирован: события
// остаются только в логе воркера уровня debug.
type NopStorage struct {
	Logger *zap.Logger
}

func (s NopStorage) WriteBatch(_ context.Context, events []Event) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, e := range events {
		logger.Debug("audit event",
			zap.String("kind", string(e.Kind)),
			zap.String("request_id", e.RequestID),
			zap.String("status", e.Status),
		)
	}
	return nil
}
