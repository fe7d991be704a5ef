package relay

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func validTarget() OutboundTarget {
	return OutboundTarget{Conversation: Conversation{ID: "42", Type: ConversationTypePrivate}}
}

func TestTextBuilderTracksRuneOffsets(t *testing.T) {
	t.Parallel()

	var builder TextBuilder
	builder.Plain("📖 ").Bold("Café").Plain("\n").Italic("").Link("read", "https://example.org").Link("plain", " ")

	if got, want := builder.Text(), "📖 Café\nreadplain"; got != want {
		t.Fatalf("text = %q, want %q", got, want)
	}
	if builder.Len() != 16 {
		t.Fatalf("len = %d, want 16", builder.Len())
	}

	entities := builder.Entities()
	if len(entities) != 2 {
		t.Fatalf("entity count = %d, want 2 (empty italic and blank link dropped)", len(entities))
	}
	if entities[0].Offset != 2 || entities[0].Length != 4 {
		t.Fatalf("bold = %+v, want offset 2 length 4", entities[0])
	}
	if entities[1].Type != TextEntityTypeTextURL || entities[1].Offset != 7 || entities[1].Length != 4 {
		t.Fatalf("link = %+v, want text_url offset 7 length 4", entities[1])
	}
	if err := ValidateTextEntities(builder.Text(), entities); err != nil {
		t.Fatalf("entities invalid: %v", err)
	}

	entities[0].Offset = 99
	if builder.Entities()[0].Offset != 2 {
		t.Fatal("Entities() must return a copy")
	}
}

func TestValidateTextEntities(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		text     string
		entities []TextEntity
		wantErr  bool
	}{
		{name: "no entities", text: "", entities: nil},
		{name: "in range", text: "héllo", entities: []TextEntity{{Type: TextEntityTypeBold, Offset: 0, Length: 5}}},
		{name: "past end", text: "héllo", entities: []TextEntity{{Type: TextEntityTypeBold, Offset: 3, Length: 3}}, wantErr: true},
		{name: "zero length", text: "hello", entities: []TextEntity{{Type: TextEntityTypeCode, Offset: 0, Length: 0}}, wantErr: true},
		{name: "text url without url", text: "hello", entities: []TextEntity{{Type: TextEntityTypeTextURL, Offset: 0, Length: 5}}, wantErr: true},
		{name: "unknown type", text: "hello", entities: []TextEntity{{Type: "spoiler", Offset: 0, Length: 5}}, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateTextEntities(testCase.text, testCase.entities)
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestKeyboardValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		keyboard Keyboard
		wantErr  bool
	}{
		{name: "reply keyboard", keyboard: NewReplyKeyboard([]Button{{Label: "🎲 Random Article"}})},
		{name: "inline keyboard", keyboard: NewInlineKeyboard([]Button{{Label: "🇫🇷 French", Action: "lang_fr"}})},
		{name: "unknown kind", keyboard: Keyboard{Kind: "grid", Rows: [][]Button{{{Label: "x"}}}}, wantErr: true},
		{name: "no rows", keyboard: NewInlineKeyboard(), wantErr: true},
		{name: "empty row", keyboard: NewReplyKeyboard([]Button{}), wantErr: true},
		{name: "blank label", keyboard: NewReplyKeyboard([]Button{{Label: " "}}), wantErr: true},
		{name: "inline missing action", keyboard: NewInlineKeyboard([]Button{{Label: "x"}}), wantErr: true},
		{
			name:     "inline action too long",
			keyboard: NewInlineKeyboard([]Button{{Label: "x", Action: strings.Repeat("a", MaxActionBytes+1)}}),
			wantErr:  true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.keyboard.Validate()
			if testCase.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestKeyboardCloneIsDeep(t *testing.T) {
	t.Parallel()

	original := NewReplyKeyboard([]Button{{Label: "a"}, {Label: "b"}})
	cloned := original.Clone()
	cloned.Rows[0][0].Label = "changed"

	if original.Rows[0][0].Label != "a" {
		t.Fatalf("original label = %q, want a", original.Rows[0][0].Label)
	}
}

func TestSendRequestValidate(t *testing.T) {
	t.Parallel()

	badKeyboard := NewInlineKeyboard([]Button{{Label: "x"}})

	tests := []struct {
		name    string
		request interface{ Validate() error }
		wantErr bool
	}{
		{name: "message ok", request: SendMessageRequest{Target: validTarget(), Text: "hi"}},
		{name: "message missing target", request: SendMessageRequest{Text: "hi"}, wantErr: true},
		{name: "message blank text", request: SendMessageRequest{Target: validTarget(), Text: " "}, wantErr: true},
		{
			name:    "message bad entities",
			request: SendMessageRequest{Target: validTarget(), Text: "hi", Entities: []TextEntity{{Type: TextEntityTypeBold, Offset: 1, Length: 5}}},
			wantErr: true,
		},
		{name: "message bad keyboard", request: SendMessageRequest{Target: validTarget(), Text: "hi", Keyboard: &badKeyboard}, wantErr: true},
		{name: "photo ok", request: SendPhotoRequest{Target: validTarget(), PhotoURL: "https://upload.wikimedia.org/a.jpg"}},
		{name: "photo relative url", request: SendPhotoRequest{Target: validTarget(), PhotoURL: "//upload.wikimedia.org/a.jpg"}, wantErr: true},
		{name: "callback ok", request: AnswerCallbackRequest{QueryID: "q"}},
		{name: "callback missing id", request: AnswerCallbackRequest{}, wantErr: true},
		{name: "callback alert without text", request: AnswerCallbackRequest{QueryID: "q", Alert: true}, wantErr: true},
		{
			name: "inline ok",
			request: AnswerInlineQueryRequest{QueryID: "q", CacheTime: time.Minute, Results: []InlineResult{
				{ID: "0", Title: "Go", Text: "Go"},
				{ID: "1", Title: "Rust", Text: "Rust"},
			}},
		},
		{name: "inline empty results", request: AnswerInlineQueryRequest{QueryID: "q"}},
		{
			name: "inline duplicate id",
			request: AnswerInlineQueryRequest{QueryID: "q", Results: []InlineResult{
				{ID: "0", Title: "Go", Text: "Go"},
				{ID: "0", Title: "Rust", Text: "Rust"},
			}},
			wantErr: true,
		},
		{name: "inline negative cache", request: AnswerInlineQueryRequest{QueryID: "q", CacheTime: -time.Second}, wantErr: true},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := testCase.request.Validate()
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrInvalidOutboundRequest) {
					t.Fatalf("error = %v, want ErrInvalidOutboundRequest", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestOutboundTargetFromEvent(t *testing.T) {
	t.Parallel()

	if _, err := OutboundTargetFromEvent(nil); !errors.Is(err, ErrInvalidOutboundRequest) {
		t.Fatalf("nil event error = %v, want ErrInvalidOutboundRequest", err)
	}

	event := &Event{Kind: EventKindCommandReceived, Conversation: Conversation{ID: "7", Type: ConversationTypeGroup}}
	target, err := OutboundTargetFromEvent(event)
	if err != nil {
		t.Fatalf("OutboundTargetFromEvent failed: %v", err)
	}
	if target.Conversation.ID != "7" {
		t.Fatalf("conversation id = %q, want 7", target.Conversation.ID)
	}
}

func TestAsOutboundErrorPreservesUnwrap(t *testing.T) {
	t.Parallel()

	rootCause := errors.New("rpc failed")
	err := fmt.Errorf("outer wrapper: %w", &OutboundError{
		Operation:  OutboundOperationSendPhoto,
		Kind:       OutboundErrorKindTemporary,
		Platform:   PlatformTelegram,
		RetryAfter: 3 * time.Second,
		Code:       400,
		Type:       "WEBPAGE_MEDIA_EMPTY",
		Cause:      rootCause,
	})

	outboundErr, ok := AsOutboundError(err)
	if !ok {
		t.Fatal("AsOutboundError = false, want true")
	}
	if outboundErr.Operation != OutboundOperationSendPhoto {
		t.Fatalf("operation = %s, want %s", outboundErr.Operation, OutboundOperationSendPhoto)
	}
	if !errors.Is(err, rootCause) {
		t.Fatalf("errors.Is(err, rootCause) = false, want true (err=%v)", err)
	}
	want := "outbound error: operation=send_photo kind=temporary platform=telegram retry_after=3s code=400 type=WEBPAGE_MEDIA_EMPTY: rpc failed"
	if outboundErr.Error() != want {
		t.Fatalf("Error() = %q, want %q", outboundErr.Error(), want)
	}
}

func TestAsOutboundRateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		err          error
		wantDuration time.Duration
		wantOK       bool
	}{
		{name: "nil", err: nil},
		{name: "plain error", err: errors.New("plain")},
		{
			name: "permanent",
			err:  &OutboundError{Kind: OutboundErrorKindPermanent},
		},
		{
			name:         "rate limited with hint",
			err:          fmt.Errorf("wrapped: %w", &OutboundError{Kind: OutboundErrorKindRateLimited, RetryAfter: 5 * time.Second}),
			wantDuration: 5 * time.Second,
			wantOK:       true,
		},
		{
			name:   "rate limited without hint",
			err:    &OutboundError{Kind: OutboundErrorKindRateLimited},
			wantOK: true,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			duration, ok := AsOutboundRateLimit(testCase.err)
			if ok != testCase.wantOK || duration != testCase.wantDuration {
				t.Fatalf("AsOutboundRateLimit() = (%v, %v), want (%v, %v)", duration, ok, testCase.wantDuration, testCase.wantOK)
			}
		})
	}
}
