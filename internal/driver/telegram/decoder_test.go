package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"randomwiki/pkg/relay"
)

func TestDefaultDecoderDecode(t *testing.T) {
	t.Parallel()

	decoder := NewDefaultDecoder()
	occurredAt := time.Unix(1_700_000_000, 0).UTC()
	chat := ChatRef{ID: "100", Type: relay.ConversationTypePrivate}
	actor := ActorRef{ID: "42", Username: "ada", DisplayName: "Ada", LanguageCode: "fr"}

	tests := []struct {
		name   string
		update Update
		assert func(t *testing.T, event *relay.Event)
	}{
		{
			name: "message",
			update: Update{
				ID:         "tg:message:100:777",
				Type:       UpdateTypeMessage,
				OccurredAt: occurredAt,
				Chat:       chat,
				Actor:      actor,
				Message:    &MessagePayload{ID: "777", Text: "/search Go"},
			},
			assert: func(t *testing.T, event *relay.Event) {
				t.Helper()
				if event.Kind != relay.EventKindMessageReceived {
					t.Fatalf("kind = %s, want %s", event.Kind, relay.EventKindMessageReceived)
				}
				if event.Message.Text != "/search Go" {
					t.Fatalf("text = %q, want /search Go", event.Message.Text)
				}
				if event.Actor.LanguageCode != "fr" {
					t.Fatalf("language code = %q, want fr", event.Actor.LanguageCode)
				}
			},
		},
		{
			name: "callback",
			update: Update{
				ID:         "tg:callback:100:9",
				Type:       UpdateTypeCallback,
				OccurredAt: occurredAt,
				Chat:       chat,
				Actor:      actor,
				Callback:   &CallbackPayload{QueryID: "9", MessageID: "5", Data: "lang_fr"},
			},
			assert: func(t *testing.T, event *relay.Event) {
				t.Helper()
				if event.Kind != relay.EventKindCallbackReceived {
					t.Fatalf("kind = %s, want %s", event.Kind, relay.EventKindCallbackReceived)
				}
				if event.Callback.Data != "lang_fr" {
					t.Fatalf("data = %q, want lang_fr", event.Callback.Data)
				}
			},
		},
		{
			name: "inline query",
			update: Update{
				ID:          "tg:inline_query:42:3",
				Type:        UpdateTypeInlineQuery,
				Chat:        ChatRef{ID: "42", Type: relay.ConversationTypePrivate},
				Actor:       actor,
				InlineQuery: &InlineQueryPayload{QueryID: "3", Query: "einstein"},
			},
			assert: func(t *testing.T, event *relay.Event) {
				t.Helper()
				if event.Kind != relay.EventKindInlineQueryReceived {
					t.Fatalf("kind = %s, want %s", event.Kind, relay.EventKindInlineQueryReceived)
				}
				if event.InlineQuery.Query != "einstein" {
					t.Fatalf("query = %q, want einstein", event.InlineQuery.Query)
				}
				if event.OccurredAt.IsZero() {
					t.Fatal("expected occurred_at fallback")
				}
			},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			event, err := decoder.Decode(context.Background(), testCase.update)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if event.Platform != relay.PlatformTelegram {
				t.Fatalf("platform = %s, want %s", event.Platform, relay.PlatformTelegram)
			}
			testCase.assert(t, event)
		})
	}
}

func TestDefaultDecoderRejectsMalformedUpdates(t *testing.T) {
	t.Parallel()

	chat := ChatRef{ID: "100", Type: relay.ConversationTypePrivate}
	tests := []struct {
		name    string
		update  Update
		wantErr error
	}{
		{
			name:   "message without payload",
			update: Update{ID: "u1", Type: UpdateTypeMessage, Chat: chat},
		},
		{
			name:   "callback without payload",
			update: Update{ID: "u2", Type: UpdateTypeCallback, Chat: chat},
		},
		{
			name:   "unsupported type",
			update: Update{ID: "u3", Type: "edited_message", Chat: chat},
		},
		{
			name: "missing conversation",
			update: Update{
				ID:      "u4",
				Type:    UpdateTypeMessage,
				Message: &MessagePayload{ID: "1", Text: "hi"},
			},
			wantErr: relay.ErrInvalidEvent,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewDefaultDecoder().Decode(context.Background(), testCase.update)
			if err == nil {
				t.Fatal("expected decode error")
			}
			if testCase.wantErr != nil && !errors.Is(err, testCase.wantErr) {
				t.Fatalf("error = %v, want %v", err, testCase.wantErr)
			}
		})
	}
}
