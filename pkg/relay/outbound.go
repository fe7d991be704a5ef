package relay

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Dispatcher sends neutral outbound operations to the chat platform.
//
// Implementations enforce platform-specific limits while preserving these
// protocol-level request semantics.
type Dispatcher interface {
	// SendMessage publishes a new text message to a conversation.
	SendMessage(ctx context.Context, request SendMessageRequest) (*OutboundMessage, error)
	// SendPhoto publishes a photo referenced by URL with an optional caption.
	SendPhoto(ctx context.Context, request SendPhotoRequest) (*OutboundMessage, error)
	// AnswerCallback acknowledges one inline button press.
	AnswerCallback(ctx context.Context, request AnswerCallbackRequest) error
	// AnswerInlineQuery replies to one inline query with a result list.
	AnswerInlineQuery(ctx context.Context, request AnswerInlineQueryRequest) error
}

// OutboundTarget identifies where an outbound message should be delivered.
type OutboundTarget struct {
	Conversation Conversation
}

// Validate checks target identity fields used for outbound routing.
func (t OutboundTarget) Validate() error {
	if t.Conversation.ID == "" {
		return fmt.Errorf("%w: missing conversation id", ErrInvalidOutboundRequest)
	}
	if t.Conversation.Type == "" {
		return fmt.Errorf("%w: missing conversation type", ErrInvalidOutboundRequest)
	}

	return nil
}

// OutboundTargetFromEvent derives a destination target from an inbound event.
func OutboundTargetFromEvent(event *Event) (OutboundTarget, error) {
	if event == nil {
		return OutboundTarget{}, fmt.Errorf("%w: nil event", ErrInvalidOutboundRequest)
	}
	target := OutboundTarget{Conversation: event.Conversation}
	if err := target.Validate(); err != nil {
		return OutboundTarget{}, fmt.Errorf("derive target from event %s: %w", event.Kind, err)
	}

	return target, nil
}

// OutboundMessage identifies a message successfully emitted by the dispatcher.
type OutboundMessage struct {
	// ID is the destination-platform message identifier.
	ID string
	// Target is the destination where this message was delivered.
	Target OutboundTarget
}

// SendMessageRequest describes a new outbound text message.
type SendMessageRequest struct {
	Target OutboundTarget
	// Text is the message body.
	Text string
	// Entities decorates Text with formatting ranges.
	Entities []TextEntity
	// ReplyToMessageID optionally links this message as a reply.
	ReplyToMessageID string
	// DisableLinkPreview disables link previews when supported by the platform.
	DisableLinkPreview bool
	// Keyboard optionally attaches a reply or inline keyboard.
	Keyboard *Keyboard
}

// Validate checks the request envelope before dispatch.
func (r SendMessageRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send message target: %w", err)
	}
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: missing message text", ErrInvalidOutboundRequest)
	}
	if err := ValidateTextEntities(r.Text, r.Entities); err != nil {
		return fmt.Errorf("%w: validate send message entities: %w", ErrInvalidOutboundRequest, err)
	}
	if r.Keyboard != nil {
		if err := r.Keyboard.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOutboundRequest, err)
		}
	}

	return nil
}

// SendPhotoRequest describes a photo message fetched by the platform from a URL.
type SendPhotoRequest struct {
	Target   OutboundTarget
	PhotoURL string
	Caption  string
	// Entities decorates Caption with formatting ranges.
	Entities []TextEntity
	Keyboard *Keyboard
}

// Validate checks the request envelope before dispatch.
func (r SendPhotoRequest) Validate() error {
	if err := r.Target.Validate(); err != nil {
		return fmt.Errorf("validate send photo target: %w", err)
	}
	if !strings.HasPrefix(r.PhotoURL, "https://") && !strings.HasPrefix(r.PhotoURL, "http://") {
		return fmt.Errorf("%w: photo url must be absolute http(s)", ErrInvalidOutboundRequest)
	}
	if err := ValidateTextEntities(r.Caption, r.Entities); err != nil {
		return fmt.Errorf("%w: validate send photo entities: %w", ErrInvalidOutboundRequest, err)
	}
	if r.Keyboard != nil {
		if err := r.Keyboard.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidOutboundRequest, err)
		}
	}

	return nil
}

// AnswerCallbackRequest acknowledges an inline button press.
type AnswerCallbackRequest struct {
	QueryID string
	// Text is an optional toast shown to the user.
	Text string
	// Alert shows Text as a modal alert instead of a toast.
	Alert bool
}

// Validate checks the request envelope before dispatch.
func (r AnswerCallbackRequest) Validate() error {
	if r.QueryID == "" {
		return fmt.Errorf("%w: missing callback query id", ErrInvalidOutboundRequest)
	}
	if r.Alert && r.Text == "" {
		return fmt.Errorf("%w: alert requires text", ErrInvalidOutboundRequest)
	}

	return nil
}

// InlineResult is one article-style inline query result.
type InlineResult struct {
	ID          string
	Title       string
	Description string
	URL         string
	// Text is the message sent when the user picks this result.
	Text     string
	Entities []TextEntity
}

// AnswerInlineQueryRequest replies to one inline query.
type AnswerInlineQueryRequest struct {
	QueryID string
	Results []InlineResult
	// CacheTime bounds how long the platform may cache the answer.
	CacheTime time.Duration
	// Personal prevents sharing cached answers across users.
	Personal bool
}

// Validate checks the request envelope before dispatch.
func (r AnswerInlineQueryRequest) Validate() error {
	if r.QueryID == "" {
		return fmt.Errorf("%w: missing inline query id", ErrInvalidOutboundRequest)
	}
	if r.CacheTime < 0 {
		return fmt.Errorf("%w: negative cache time", ErrInvalidOutboundRequest)
	}

	seen := make(map[string]struct{}, len(r.Results))
	for index, result := range r.Results {
		if result.ID == "" {
			return fmt.Errorf("%w: result[%d] missing id", ErrInvalidOutboundRequest, index)
		}
		if _, exists := seen[result.ID]; exists {
			return fmt.Errorf("%w: duplicate result id %q", ErrInvalidOutboundRequest, result.ID)
		}
		seen[result.ID] = struct{}{}
		if strings.TrimSpace(result.Title) == "" {
			return fmt.Errorf("%w: result[%d] missing title", ErrInvalidOutboundRequest, index)
		}
		if strings.TrimSpace(result.Text) == "" {
			return fmt.Errorf("%w: result[%d] missing text", ErrInvalidOutboundRequest, index)
		}
		if err := ValidateTextEntities(result.Text, result.Entities); err != nil {
			return fmt.Errorf("%w: result[%d] entities: %w", ErrInvalidOutboundRequest, index, err)
		}
	}

	return nil
}
