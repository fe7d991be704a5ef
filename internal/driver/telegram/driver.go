package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"randomwiki/pkg/relay"
)

const defaultPublishTimeout = 2 * time.Second

// driverConfig contains runtime controls for publish timeout and error reporting.
type driverConfig struct {
	name           string
	publishTimeout time.Duration
	onAsyncError   func(context.Context, error)
	identity       *BotIdentity
}

// DriverOption mutates Telegram driver configuration.
type DriverOption func(*driverConfig)

// WithName configures the driver identity exposed to the kernel.
func WithName(name string) DriverOption {
	return func(cfg *driverConfig) {
		if name != "" {
			cfg.name = name
		}
	}
}

// WithPublishTimeout configures sink publish timeout per event.
func WithPublishTimeout(timeout time.Duration) DriverOption {
	return func(cfg *driverConfig) {
		if timeout > 0 {
			cfg.publishTimeout = timeout
		}
	}
}

// WithErrorHandler configures async callback errors.
func WithErrorHandler(handler func(context.Context, error)) DriverOption {
	return func(cfg *driverConfig) {
		if handler != nil {
			cfg.onAsyncError = handler
		}
	}
}

// WithBotIdentity lets the driver ignore commands addressed to other bots.
func WithBotIdentity(identity *BotIdentity) DriverOption {
	return func(cfg *driverConfig) {
		cfg.identity = identity
	}
}

// Driver adapts Telegram updates into neutral relay events.
type Driver struct {
	cfg     driverConfig
	source  UpdateSource
	decoder Decoder
}

// NewDriver creates a Telegram driver.
func NewDriver(source UpdateSource, decoder Decoder, options ...DriverOption) (*Driver, error) {
	if source == nil {
		return nil, fmt.Errorf("new telegram driver: nil source")
	}
	if decoder == nil {
		return nil, fmt.Errorf("new telegram driver: nil decoder")
	}

	cfg := driverConfig{
		name:           DriverType,
		publishTimeout: defaultPublishTimeout,
		onAsyncError:   func(context.Context, error) {},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &Driver{
		cfg:     cfg,
		source:  source,
		decoder: decoder,
	}, nil
}

// Name returns the stable driver identifier.
func (d *Driver) Name() string {
	return d.cfg.name
}

// Start consumes Telegram updates and publishes neutral events.
func (d *Driver) Start(ctx context.Context, sink relay.EventSink) error {
	if sink == nil {
		return fmt.Errorf("start telegram driver: nil sink")
	}

	handler := func(handlerCtx context.Context, update Update) error {
		return d.handleUpdate(handlerCtx, update, sink)
	}

	err := d.source.Consume(ctx, handler)
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return fmt.Errorf("start telegram driver: consume updates: %w", err)
}

// handleUpdate decodes and publishes one update. Decode and publish failures
// are reported and skipped; only cancellation of ctx stops the loop.
func (d *Driver) handleUpdate(ctx context.Context, update Update, sink relay.EventSink) error {
	if d.addressedToOtherBot(update) {
		return nil
	}

	event, err := d.decodeSafely(ctx, update)
	if err != nil {
		d.cfg.onAsyncError(ctx, fmt.Errorf("handle update %s: %w", update.Type, err))
		return nil
	}
	d.stampSource(event)

	publishCtx, cancel := context.WithTimeout(ctx, d.cfg.publishTimeout)
	defer cancel()

	err = sink.Publish(publishCtx, event)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("handle update %s publish: %w", update.Type, ctx.Err())
	default:
		d.cfg.onAsyncError(ctx, fmt.Errorf("handle update %s publish: %w", update.Type, err))
		return nil
	}
}

// stampSource fills the platform and driver identity the decoder left empty.
func (d *Driver) stampSource(event *relay.Event) {
	if event.Source.Platform == "" {
		event.Source.Platform = DriverPlatform
	}
	if event.Source.ID == "" {
		event.Source.ID = d.cfg.name
	}
	if event.Platform == "" {
		event.Platform = event.Source.Platform
	}
}

// addressedToOtherBot reports whether a group command names a different bot,
// as in "/start@other_bot".
func (d *Driver) addressedToOtherBot(update Update) bool {
	if update.Type != UpdateTypeMessage || update.Message == nil {
		return false
	}
	username := d.cfg.identity.Username()
	if username == "" {
		return false
	}

	candidate, matched, _ := relay.ParseCommandCandidate(update.Message.Text)
	if !matched || candidate.Mention == "" {
		return false
	}

	return !strings.EqualFold(candidate.Mention, username)
}

// decodeSafely protects decoder panics at the adapter boundary.
func (d *Driver) decodeSafely(ctx context.Context, update Update) (decoded *relay.Event, err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		err = fmt.Errorf("decode telegram update %s panic: %v", update.Type, recovered)
	}()

	decoded, err = d.decoder.Decode(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("decode telegram update %s: %w", update.Type, err)
	}
	if decoded == nil {
		return nil, fmt.Errorf("decode telegram update %s: nil event", update.Type)
	}

	return decoded, nil
}

// Shutdown releases resources not controlled by Start context.
func (d *Driver) Shutdown(_ context.Context) error {
	return nil
}
