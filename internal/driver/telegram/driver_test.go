package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"randomwiki/pkg/relay"
)

func TestDriverStartPublishesDecodedUpdates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		username  string
		text      string
		wantCount int
	}{
		{name: "plain text", username: "random_wiki_bot", text: "hello", wantCount: 1},
		{name: "command without mention", username: "random_wiki_bot", text: "/today", wantCount: 1},
		{name: "command for this bot", username: "random_wiki_bot", text: "/today@Random_Wiki_Bot", wantCount: 1},
		{name: "command for another bot", username: "random_wiki_bot", text: "/today@other_bot", wantCount: 0},
		{name: "identity unknown", username: "", text: "/today@other_bot", wantCount: 1},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			updates := make(chan Update, 1)
			updates <- newTestMessageUpdate("1", testCase.text)
			close(updates)

			driver, err := NewDriver(
				ChannelSource{Updates: updates},
				NewDefaultDecoder(),
				WithName("tg-main"),
				WithBotIdentity(NewBotIdentity(testCase.username)),
			)
			if err != nil {
				t.Fatalf("new driver failed: %v", err)
			}

			sink := &recordingSink{}
			if err := driver.Start(context.Background(), sink); err != nil {
				t.Fatalf("start failed: %v", err)
			}

			events := sink.snapshot()
			if len(events) != testCase.wantCount {
				t.Fatalf("published = %d, want %d", len(events), testCase.wantCount)
			}
			if testCase.wantCount == 0 {
				return
			}
			if events[0].Source.ID != "tg-main" {
				t.Fatalf("source id = %q, want tg-main", events[0].Source.ID)
			}
			if events[0].Source.Platform != DriverPlatform {
				t.Fatalf("source platform = %s, want %s", events[0].Source.Platform, DriverPlatform)
			}
		})
	}
}

func TestDriverSkipsBadUpdatesAndKeepsRunning(t *testing.T) {
	t.Parallel()

	updates := make(chan Update, 3)
	updates <- Update{ID: "bad", Type: UpdateTypeMessage, Chat: ChatRef{ID: "1", Type: relay.ConversationTypePrivate}}
	updates <- newTestMessageUpdate("2", "first good")
	updates <- newTestMessageUpdate("3", "second good")
	close(updates)

	var mu sync.Mutex
	var reported []error
	driver, err := NewDriver(
		ChannelSource{Updates: updates},
		NewDefaultDecoder(),
		WithErrorHandler(func(_ context.Context, err error) {
			mu.Lock()
			defer mu.Unlock()
			reported = append(reported, err)
		}),
	)
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}

	sink := &recordingSink{failFirst: true}
	if err := driver.Start(context.Background(), sink); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if got := len(sink.snapshot()); got != 1 {
		t.Fatalf("published = %d, want 1", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(reported) != 2 {
		t.Fatalf("reported errors = %d, want 2 (decode and publish)", len(reported))
	}
}

func TestDriverDecodePanicIsReported(t *testing.T) {
	t.Parallel()

	updates := make(chan Update, 1)
	updates <- newTestMessageUpdate("1", "boom")
	close(updates)

	reported := make(chan error, 1)
	driver, err := NewDriver(
		ChannelSource{Updates: updates},
		panicDecoder{},
		WithErrorHandler(func(_ context.Context, err error) {
			reported <- err
		}),
	)
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}
	if err := driver.Start(context.Background(), &recordingSink{}); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case err := <-reported:
		if err == nil {
			t.Fatal("expected panic error")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for panic report")
	}
}

func TestDriverStartStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	driver, err := NewDriver(ChannelSource{Updates: make(chan Update)}, NewDefaultDecoder())
	if err != nil {
		t.Fatalf("new driver failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- driver.Start(ctx, &recordingSink{})
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("driver did not stop")
	}
}

func TestNewDriverValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewDriver(nil, NewDefaultDecoder()); err == nil {
		t.Fatal("expected nil source error")
	}
	if _, err := NewDriver(ChannelSource{}, nil); err == nil {
		t.Fatal("expected nil decoder error")
	}
}

func newTestMessageUpdate(id string, text string) Update {
	return Update{
		ID:         "tg:message:1:" + id,
		Type:       UpdateTypeMessage,
		OccurredAt: time.Unix(1_700_000_000, 0).UTC(),
		Chat:       ChatRef{ID: "1", Type: relay.ConversationTypePrivate},
		Actor:      ActorRef{ID: "1"},
		Message:    &MessagePayload{ID: id, Text: text},
	}
}

type recordingSink struct {
	mu        sync.Mutex
	events    []*relay.Event
	failFirst bool
}

func (s *recordingSink) Publish(_ context.Context, event *relay.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failFirst {
		s.failFirst = false
		return errors.New("bus full")
	}
	s.events = append(s.events, event)

	return nil
}

func (s *recordingSink) snapshot() []*relay.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*relay.Event(nil), s.events...)
}

type panicDecoder struct{}

func (panicDecoder) Decode(context.Context, Update) (*relay.Event, error) {
	panic("decoder exploded")
}
