package telegram

import (
	"context"
	"fmt"
)

// UpdateHandler consumes decoded Telegram updates.
type UpdateHandler func(ctx context.Context, update Update) error

// UpdateSource streams Telegram updates into the adapter.
type UpdateSource interface {
	// Consume runs the update loop until context cancellation or fatal error.
	Consume(ctx context.Context, handler UpdateHandler) error
}

// ChannelSource replays updates pushed into a channel.
type ChannelSource struct {
	Updates <-chan Update
}

// Consume hands each update to handler until the channel closes, ctx ends, or
// handler fails.
func (s ChannelSource) Consume(ctx context.Context, handler UpdateHandler) error {
	if handler == nil {
		return fmt.Errorf("channel source: nil handler")
	}

	for {
		var (
			update Update
			open   bool
		)
		select {
		case <-ctx.Done():
			return nil
		case update, open = <-s.Updates:
		}
		if !open {
			return nil
		}
		if err := handler(ctx, update); err != nil {
			return fmt.Errorf("channel source handle update %s: %w", update.Type, err)
		}
	}
}
