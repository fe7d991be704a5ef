package telegram

import (
	"time"

	"randomwiki/pkg/relay"
)

// UpdateType identifies the Telegram update semantic category.
type UpdateType string

const (
	// UpdateTypeMessage identifies new incoming messages.
	UpdateTypeMessage UpdateType = "message"
	// UpdateTypeCallback identifies inline keyboard button presses.
	UpdateTypeCallback UpdateType = "callback"
	// UpdateTypeInlineQuery identifies inline-mode queries.
	UpdateTypeInlineQuery UpdateType = "inline_query"
)

// Update is the Telegram adapter's internal DTO before neutral decoding.
type Update struct {
	ID          string
	Type        UpdateType
	OccurredAt  time.Time
	Chat        ChatRef
	Actor       ActorRef
	Message     *MessagePayload
	Callback    *CallbackPayload
	InlineQuery *InlineQueryPayload
	Metadata    map[string]string
}

// ChatRef identifies Telegram chat context.
type ChatRef struct {
	ID    string
	Title string
	Type  relay.ConversationType
}

// ActorRef identifies Telegram actor context.
type ActorRef struct {
	ID           string
	Username     string
	DisplayName  string
	IsBot        bool
	LanguageCode string
}

// MessagePayload represents a Telegram message projection.
type MessagePayload struct {
	ID        string
	ReplyToID string
	Text      string
	Entities  []relay.TextEntity
}

// CallbackPayload represents one bot callback query.
type CallbackPayload struct {
	QueryID   string
	MessageID string
	Data      string
}

// InlineQueryPayload represents one bot inline query.
type InlineQueryPayload struct {
	QueryID string
	Query   string
	Offset  string
}
