package domain

// PartitionChannel — единственная логическая партиция справочника бесед.
// Исторически все записи (и каналы, и личные чаты) живут в одной партиции.
const PartitionChannel = "channel"

// ChannelAccount описывает участника беседы в терминах Bot Framework
// (сам бот или пользователь).
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationMeta — описательные атрибуты беседы, нужны только для адресации.
type ConversationMeta struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"` // personal | groupChat | channel
	IsGroup          bool   `json:"isGroup,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
}

// ConversationTarget — одна беседа, в которую бот умеет проактивно писать.
// Ключ уникальности — Conversation.ID; повторная установка бота перезаписывает
// запись (last write wins), явного удаления нет.
type ConversationTarget struct {
	ChannelID    string           `json:"channelId"`  // транспортный канал (msteams)
	ServiceURL   string           `json:"serviceUrl"` // endpoint коннектора для re-entry
	Conversation ConversationMeta `json:"conversation"`
	Bot          ChannelAccount   `json:"bot"` // identity бота в этой беседе
	TenantID     string           `json:"tenantId,omitempty"`
}

// Key возвращает ключ записи в справочнике.
func (t ConversationTarget) Key() string {
	return t.Conversation.ID
}
