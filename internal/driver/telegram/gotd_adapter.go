package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

const defaultGotdUpdateBuffer = 1024

// GotdUpdateChannel is a gotd update handler and raw stream implementation.
type GotdUpdateChannel struct {
	updates chan any
}

// NewGotdUpdateChannel creates a stream bridge between gotd updates and adapter source.
func NewGotdUpdateChannel(buffer int) *GotdUpdateChannel {
	if buffer <= 0 {
		buffer = defaultGotdUpdateBuffer
	}

	return &GotdUpdateChannel{
		updates: make(chan any, buffer),
	}
}

// Updates returns the active stream channel.
func (s *GotdUpdateChannel) Updates(ctx context.Context) (<-chan any, error) {
	if ctx == nil {
		return nil, fmt.Errorf("gotd update channel: nil context")
	}
	if s.updates == nil {
		return nil, fmt.Errorf("gotd update channel: not initialized")
	}

	return s.updates, nil
}

// Handle flattens gotd update batches and forwards each unit to the active stream.
func (s *GotdUpdateChannel) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	batch, err := flattenGotdUpdates(updates)
	if err != nil {
		return fmt.Errorf("handle gotd updates: %w", err)
	}

	for _, item := range batch {
		select {
		case <-ctx.Done():
			return fmt.Errorf("handle gotd updates publish: %w", ctx.Err())
		case s.updates <- item:
		}
	}

	return nil
}

func flattenGotdUpdates(updates tg.UpdatesClass) ([]gotdUpdateEnvelope, error) {
	if updates == nil {
		return nil, fmt.Errorf("flatten gotd updates: nil updates")
	}

	switch typed := updates.(type) {
	case *tg.Updates:
		return flattenGotdBatch(typed.Updates, typed.Date, typed.Users, typed.Chats), nil
	case *tg.UpdatesCombined:
		return flattenGotdBatch(typed.Updates, typed.Date, typed.Users, typed.Chats), nil
	case *tg.UpdateShort:
		return flattenGotdBatch([]tg.UpdateClass{typed.Update}, typed.Date, nil, nil), nil
	case *tg.UpdateShortMessage:
		return []gotdUpdateEnvelope{shortMessageEnvelope(typed)}, nil
	case *tg.UpdateShortChatMessage:
		return []gotdUpdateEnvelope{shortChatMessageEnvelope(typed)}, nil
	case *tg.UpdatesTooLong, *tg.UpdateShortSentMessage:
		return nil, nil
	default:
		return nil, fmt.Errorf("flatten gotd updates %s: unsupported container", updates.TypeName())
	}
}

func flattenGotdBatch(
	updates []tg.UpdateClass,
	date int,
	users []tg.UserClass,
	chats []tg.ChatClass,
) []gotdUpdateEnvelope {
	occurredAt := intToTimeUTC(date)
	usersByID := indexGotdUsers(users)
	chatsByID := indexGotdChats(chats)

	batch := make([]gotdUpdateEnvelope, 0, len(updates))
	for _, update := range updates {
		if update == nil {
			continue
		}
		batch = append(batch, gotdUpdateEnvelope{
			update:      update,
			occurredAt:  occurredAt,
			usersByID:   usersByID,
			chatsByID:   chatsByID,
			updateClass: update.TypeName(),
		})
	}

	return batch
}

// shortMessageEnvelope expands the compact private message form.
func shortMessageEnvelope(update *tg.UpdateShortMessage) gotdUpdateEnvelope {
	message := &tg.Message{ID: update.ID, Out: update.Out, Date: update.Date, Message: update.Message}
	message.PeerID = &tg.PeerUser{UserID: update.UserID}
	message.SetFromID(&tg.PeerUser{UserID: update.UserID})
	if replyTo, ok := update.GetReplyTo(); ok {
		message.SetReplyTo(replyTo)
	}
	if entities, ok := update.GetEntities(); ok {
		message.SetEntities(entities)
	}

	return expandedShortEnvelope(update, message, update.Pts, update.PtsCount)
}

// shortChatMessageEnvelope expands the compact basic-group message form.
func shortChatMessageEnvelope(update *tg.UpdateShortChatMessage) gotdUpdateEnvelope {
	message := &tg.Message{ID: update.ID, Out: update.Out, Date: update.Date, Message: update.Message}
	message.PeerID = &tg.PeerChat{ChatID: update.ChatID}
	message.SetFromID(&tg.PeerUser{UserID: update.FromID})
	if replyTo, ok := update.GetReplyTo(); ok {
		message.SetReplyTo(replyTo)
	}
	if entities, ok := update.GetEntities(); ok {
		message.SetEntities(entities)
	}

	return expandedShortEnvelope(update, message, update.Pts, update.PtsCount)
}

// expandedShortEnvelope wraps an expanded short message as a new-message update
// while keeping the original container name for logging.
func expandedShortEnvelope(source tg.UpdatesClass, message *tg.Message, pts int, ptsCount int) gotdUpdateEnvelope {
	return gotdUpdateEnvelope{
		update:      &tg.UpdateNewMessage{Message: message, Pts: pts, PtsCount: ptsCount},
		occurredAt:  intToTimeUTC(message.Date),
		updateClass: source.TypeName(),
	}
}

func intToTimeUTC(value int) time.Time {
	if value <= 0 {
		return time.Time{}
	}

	return time.Unix(int64(value), 0).UTC()
}
