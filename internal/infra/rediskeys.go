package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "prarelay"
)

// Ключи справочника бесед. Hash на партицию: field = conversationId,
// value = сериализованный ConversationTarget. HSET сам по себе дает
// last-write-wins и создание ключа при первом обращении.
const (
	RedisKeyTargetsPrefix = RedisNamespace + ":targets:"
)

// GetTargetsKey возвращает ключ hash-а партиции справочника.
func GetTargetsKey(partition string) string {
	return fmt.Sprintf("%s%s", RedisKeyTargetsPrefix, partition)
}
