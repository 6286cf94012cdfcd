package directory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/pra-approval-relay/internal/domain"
	"github.com/xela07ax/pra-approval-relay/internal/infra"
)

// redisCommands — узкий срез команд go-redis, которые нужны справочнику.
// *redis.Client реализует его целиком; в тестах подставляется фейк.
type redisCommands interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// Directory — durable-справочник бесед, доступных для проактивных уведомлений.
// Хранение: Redis hash на партицию, field = conversationId. HSET даёт
// ленивое создание ключа и last-write-wins при конкурентных апсертах —
// отдельного provisioning и блокировок не требуется.
type Directory struct {
	rdb       redisCommands
	logger    *zap.Logger
	partition string
}

func New(rdb redisCommands, logger *zap.Logger) *Directory {
	return &Directory{
		rdb:       rdb,
		logger:    logger.Named("directory"),
		partition: domain.PartitionChannel,
	}
}

// Upsert регистрирует или перезаписывает беседу. Идемпотентен: повторная
// установка бота в ту же беседу обновляет запись, а не дублирует её.
func (d *Directory) Upsert(ctx context.Context, target domain.ConversationTarget) error {
	raw, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("directory: failed to marshal target: %w", err)
	}

	if err := d.rdb.HSet(ctx, infra.GetTargetsKey(d.partition), target.Key(), raw).Err(); err != nil {
		return fmt.Errorf("directory: failed to store target %s: %w", target.Key(), err)
	}
	return nil
}

// Record — best-effort регистрация беседы по входящему событию.
// Ошибки хранилища глотаются: пропущенная регистрация лишь отложит
// уведомления в эту беседу, ронять триггернувшее событие из-за неё нельзя.
func (d *Directory) Record(ctx context.Context, target domain.ConversationTarget) {
	if target.Key() == "" {
		d.logger.Debug("activity without conversation id, skipping registration")
		return
	}

	if err := d.Upsert(ctx, target); err != nil {
		d.logger.Error("failed to store conversation reference",
			zap.String("conversation_id", target.Key()),
			zap.Error(err),
		)
		return
	}
	d.logger.Info("stored conversation reference",
		zap.String("conversation_id", target.Key()),
		zap.String("type", target.Conversation.ConversationType),
	)
}

// ListAll возвращает полный набор целей партиции. Каждый вызов перечитывает
// хранилище. Ошибка чтения и битые записи деградируют до пустого/усечённого
// результата — вызывающий fanout сам решит, что целей нет.
func (d *Directory) ListAll(ctx context.Context) []domain.ConversationTarget {
	entries, err := d.rdb.HGetAll(ctx, infra.GetTargetsKey(d.partition)).Result()
	if err != nil {
		d.logger.Error("failed to list conversation targets", zap.Error(err))
		return nil
	}

	targets := make([]domain.ConversationTarget, 0, len(entries))
	for id, raw := range entries {
		var t domain.ConversationTarget
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			d.logger.Error("skipping corrupt conversation reference",
				zap.String("conversation_id", id),
				zap.Error(err),
			)
			continue
		}
		targets = append(targets, t)
	}
	return targets
}
