package relay

import (
	"fmt"
	"time"
)

// EventKind identifies a neutral domain event type.
type EventKind string

const (
	// EventKindMessageReceived is emitted when a new text message is posted.
	EventKindMessageReceived EventKind = "message.received"
	// EventKindCommandReceived is derived by the kernel from a command or button alias message.
	EventKindCommandReceived EventKind = "command.received"
	// EventKindCallbackReceived is emitted when a user presses an inline keyboard button.
	EventKindCallbackReceived EventKind = "callback.received"
	// EventKindInlineQueryReceived is emitted when a user types an inline query addressed to the bot.
	EventKindInlineQueryReceived EventKind = "inline_query.received"
)

// Platform identifies an external chat platform source.
type Platform string

const (
	// PlatformTelegram is Telegram.
	PlatformTelegram Platform = "telegram"
)

// ConversationType identifies conversation scope.
type ConversationType string

const (
	// ConversationTypePrivate is a direct/private conversation.
	ConversationTypePrivate ConversationType = "private"
	// ConversationTypeGroup is a group conversation.
	ConversationTypeGroup ConversationType = "group"
	// ConversationTypeChannel is a channel-style conversation.
	ConversationTypeChannel ConversationType = "channel"
)

// Event is the neutral envelope that drivers publish and modules consume.
//
// Message, Command, Callback and InlineQuery are optional payload branches
// selected by Kind.
type Event struct {
	// ID is a stable identifier for this event instance.
	ID string
	// Kind selects which payload branch is expected.
	Kind EventKind
	// OccurredAt is the source-platform timestamp for the event.
	OccurredAt time.Time
	// Platform identifies the upstream platform that produced the event.
	Platform Platform
	// Source identifies which driver instance produced the event.
	Source EventSource
	// Conversation identifies where the event happened.
	Conversation Conversation
	// Actor identifies who initiated the event.
	Actor Actor
	// Message carries message content for message and command events.
	Message *Message
	// Command carries the bound invocation for command events.
	Command *CommandInvocation
	// Callback carries inline button press data.
	Callback *Callback
	// InlineQuery carries inline query text.
	InlineQuery *InlineQuery
	// Metadata stores optional driver-provided key/value context.
	Metadata map[string]string
}

// EventSource identifies one driver instance.
type EventSource struct {
	Platform Platform
	ID       string
}

// Conversation identifies a chat.
type Conversation struct {
	ID    string
	Type  ConversationType
	Title string
}

// Actor identifies the user behind an event.
type Actor struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
	// LanguageCode is the client-reported IETF language tag when known.
	LanguageCode string
}

// Message is a text message snapshot.
type Message struct {
	ID        string
	ReplyToID string
	Text      string
	Entities  []TextEntity
}

// Callback is one inline keyboard button press.
type Callback struct {
	// QueryID identifies the callback query that must be answered.
	QueryID string
	// MessageID identifies the message carrying the pressed button.
	MessageID string
	// Data is the button action payload.
	Data string
}

// InlineQuery is one inline-mode query typed by a user.
type InlineQuery struct {
	QueryID string
	Query   string
	Offset  string
}

// Validate checks envelope invariants and the payload branch required by Kind.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidEvent)
	}
	if e.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidEvent)
	}

	switch e.Kind {
	case EventKindMessageReceived:
		if e.Message == nil {
			return fmt.Errorf("%w: %s requires message payload", ErrInvalidEvent, e.Kind)
		}
	case EventKindCommandReceived:
		if e.Message == nil {
			return fmt.Errorf("%w: %s requires message payload", ErrInvalidEvent, e.Kind)
		}
		if err := e.Command.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
	case EventKindCallbackReceived:
		if e.Callback == nil || e.Callback.QueryID == "" {
			return fmt.Errorf("%w: %s requires callback query id", ErrInvalidEvent, e.Kind)
		}
	case EventKindInlineQueryReceived:
		if e.InlineQuery == nil || e.InlineQuery.QueryID == "" {
			return fmt.Errorf("%w: %s requires inline query id", ErrInvalidEvent, e.Kind)
		}
	default:
		return fmt.Errorf("%w: unsupported kind %q", ErrInvalidEvent, e.Kind)
	}

	return nil
}
