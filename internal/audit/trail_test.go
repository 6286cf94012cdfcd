package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/infra"
)

// fakeStorage копит пачки в памяти для проверки поведения воркера.
type fakeStorage struct {
	mu      sync.Mutex
	batches [][]Event
}

func (f *fakeStorage) WriteBatch(_ context.Context, events []Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	batch := make([]Event, len(events))
	copy(batch, events)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStorage) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func (f *fakeStorage) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func newTestTrail(storage StorageInterface, bufferSize, batchSize int, flushInterval time.Duration) *Trail {
	cfg := infra.AuditConfig{
		BufferSize:    bufferSize,
		FlushInterval: flushInterval,
		BatchSize:     batchSize,
	}
	return NewTrail(storage, cfg, infra.NewMetrics(nil), zap.NewNop())
}

// waitFor опрашивает условие до дедлайна: воркер пишет асинхронно.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestTrailFlushesWhenBatchIsFull(t *testing.T) {
	storage := &fakeStorage{}
	// Интервал заведомо не успеет сработать — flush обязан пройти по размеру пачки
	trail := newTestTrail(storage, 10, 2, time.Hour)
	trail.Start()
	defer trail.Stop()

	trail.Log(Event{ID: "e1", Kind: KindRequestReceived, RequestID: "R1"})
	trail.Log(Event{ID: "e2", Kind: KindBroadcast, RequestID: "R1"})

	waitFor(t, func() bool { return storage.batchCount() == 1 }, "expected one batch flushed by size")

	storage.mu.Lock()
	defer storage.mu.Unlock()
	if len(storage.batches[0]) != 2 {
		t.Fatalf("expected batch of 2 events, got %d", len(storage.batches[0]))
	}
	if storage.batches[0][0].ID != "e1" || storage.batches[0][1].ID != "e2" {
		t.Errorf("batch lost event order: %+v", storage.batches[0])
	}
}

func TestTrailFlushesByInterval(t *testing.T) {
	storage := &fakeStorage{}
	// Пачка заведомо не наберется — flush обязан пройти по таймеру
	trail := newTestTrail(storage, 10, 100, 20*time.Millisecond)
	trail.Start()
	defer trail.Stop()

	trail.Log(Event{ID: "e1", Kind: KindDecision, RequestID: "R1"})

	waitFor(t, func() bool { return storage.total() == 1 }, "expected interval flush of a partial batch")
}

func TestTrailStopDrainsBuffer(t *testing.T) {
	storage := &fakeStorage{}
	trail := newTestTrail(storage, 10, 100, time.Hour)
	trail.Start()

	for _, id := range []string{"e1", "e2", "e3"} {
		trail.Log(Event{ID: id, Kind: KindRequestReceived, RequestID: "R1"})
	}

	// Ни размер, ни таймер не сработали — всё должно дописаться при остановке
	trail.Stop()

	if storage.total() != 3 {
		t.Fatalf("expected 3 events drained on stop, got %d", storage.total())
	}
}

func TestTrailShedsLoadWhenBufferIsFull(t *testing.T) {
	storage := &fakeStorage{}
	// Воркер не запущен: буфер на одно событие переполняется вторым
	trail := newTestTrail(storage, 1, 100, time.Hour)

	trail.Log(Event{ID: "kept", Kind: KindRequestReceived, RequestID: "R1"})
	trail.Log(Event{ID: "shed", Kind: KindRequestReceived, RequestID: "R2"}) // не должен блокировать

	trail.Start()
	trail.Stop()

	if storage.total() != 1 {
		t.Fatalf("expected only the buffered event to persist, got %d", storage.total())
	}
	if storage.batches[0][0].ID != "kept" {
		t.Errorf("wrong event survived overflow: %+v", storage.batches[0])
	}
}

func TestTrailLogAfterStopIsDropped(t *testing.T) {
	storage := &fakeStorage{}
	trail := newTestTrail(storage, 10, 100, time.Hour)
	trail.Start()
	trail.Stop()

	// Не должно ни паниковать, ни дописывать
	trail.Log(Event{ID: "late", Kind: KindDecision, RequestID: "R1"})

	if storage.total() != 0 {
		t.Fatalf("expected no events after stop, got %d", storage.total())
	}
}

func TestTrailStopIsIdempotent(t *testing.T) {
	trail := newTestTrail(&fakeStorage{}, 10, 100, time.Hour)
	trail.Start()
	trail.Stop()
	trail.Stop() // повторная остановка — no-op, без паники на закрытом канале
}

func TestNopStorageWithoutLogger(t *testing.T) {
	// Дефолтная конфигурация без Postgres: пустая заглушка обязана
	// переварить пачку, а не падать на nil-логгере
	err := NopStorage{}.WriteBatch(context.Background(), []Event{
		{ID: "e1", Kind: KindRequestReceived, RequestID: "R1", Status: "OK"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
