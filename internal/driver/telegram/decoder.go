package telegram

import (
	"context"
	"fmt"
	"time"

	"randomwiki/pkg/relay"
)

// Decoder converts Telegram update DTOs into neutral relay events.
type Decoder interface {
	// Decode maps one adapter update into a validated neutral event envelope.
	Decode(ctx context.Context, update Update) (*relay.Event, error)
}

// DefaultDecoder provides default Telegram-to-relay mappings.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts a Telegram update into a neutral event.
func (d DefaultDecoder) Decode(_ context.Context, update Update) (*relay.Event, error) {
	event := newBaseEvent(update)

	switch update.Type {
	case UpdateTypeMessage:
		if update.Message == nil {
			return nil, fmt.Errorf("decode message: missing message payload")
		}
		event.Kind = relay.EventKindMessageReceived
		event.Message = &relay.Message{
			ID:        update.Message.ID,
			ReplyToID: update.Message.ReplyToID,
			Text:      update.Message.Text,
			Entities:  update.Message.Entities,
		}
	case UpdateTypeCallback:
		if update.Callback == nil {
			return nil, fmt.Errorf("decode callback: missing callback payload")
		}
		event.Kind = relay.EventKindCallbackReceived
		event.Callback = &relay.Callback{
			QueryID:   update.Callback.QueryID,
			MessageID: update.Callback.MessageID,
			Data:      update.Callback.Data,
		}
	case UpdateTypeInlineQuery:
		if update.InlineQuery == nil {
			return nil, fmt.Errorf("decode inline query: missing inline query payload")
		}
		event.Kind = relay.EventKindInlineQueryReceived
		event.InlineQuery = &relay.InlineQuery{
			QueryID: update.InlineQuery.QueryID,
			Query:   update.InlineQuery.Query,
			Offset:  update.InlineQuery.Offset,
		}
	default:
		return nil, fmt.Errorf("decode update %s: unsupported type", update.Type)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s: %w", update.Type, err)
	}

	return event, nil
}

// newBaseEvent builds the shared envelope fields used by all update mappings.
func newBaseEvent(update Update) *relay.Event {
	occurredAt := update.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return &relay.Event{
		ID:         update.ID,
		OccurredAt: occurredAt,
		Platform:   relay.PlatformTelegram,
		Conversation: relay.Conversation{
			ID:    update.Chat.ID,
			Type:  update.Chat.Type,
			Title: update.Chat.Title,
		},
		Actor: relay.Actor{
			ID:           update.Actor.ID,
			Username:     update.Actor.Username,
			DisplayName:  update.Actor.DisplayName,
			IsBot:        update.Actor.IsBot,
			LanguageCode: update.Actor.LanguageCode,
		},
		Metadata: update.Metadata,
	}
}
