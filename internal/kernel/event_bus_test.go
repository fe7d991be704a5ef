package kernel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"randomwiki/pkg/relay"
)

// TestEventBusPublishDeliversMatchingSubscriptions verifies filtered publish delivery.
func TestEventBusPublishDeliversMatchingSubscriptions(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	received := make(chan *relay.Event, 2)
	_, err := bus.Subscribe(context.Background(), relay.InterestSet{
		Kinds:        []relay.EventKind{relay.EventKindCommandReceived},
		CommandNames: []string{"search"},
	}, relay.SubscriptionSpec{
		Name: "match",
	}, func(_ context.Context, event *relay.Event) error {
		received <- event
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := bus.Publish(context.Background(), newTestCommandEvent("e0", "history")); err != nil {
		t.Fatalf("publish e0 failed: %v", err)
	}
	if err := bus.Publish(context.Background(), newTestCommandEvent("e1", "search")); err != nil {
		t.Fatalf("publish e1 failed: %v", err)
	}

	select {
	case event := <-received:
		if event.ID != "e1" {
			t.Fatalf("event id = %s, want e1", event.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBusCallbackPrefixFilter(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	received := make(chan string, 3)
	_, err := bus.Subscribe(context.Background(), relay.InterestSet{
		Kinds:            []relay.EventKind{relay.EventKindCallbackReceived},
		CallbackPrefixes: []string{"lang_"},
	}, relay.SubscriptionSpec{Name: "callbacks"}, func(_ context.Context, event *relay.Event) error {
		received <- event.Callback.Data
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for _, data := range []string{"random", "lang_fr"} {
		if err := bus.Publish(context.Background(), newTestCallbackEvent("cb-"+data, data)); err != nil {
			t.Fatalf("publish %s failed: %v", data, err)
		}
	}

	select {
	case data := <-received:
		if data != "lang_fr" {
			t.Fatalf("callback data = %q, want lang_fr", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

// TestEventBusBackpressurePolicies verifies queue behavior under each backpressure policy.
func TestEventBusBackpressurePolicies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		policy      relay.BackpressurePolicy
		wantEvents  []string
		wantDropped int
	}{
		{
			name:        "drop newest keeps queued oldest",
			policy:      relay.BackpressureDropNewest,
			wantEvents:  []string{"e1", "e2"},
			wantDropped: 1,
		},
		{
			name:       "drop oldest keeps latest",
			policy:     relay.BackpressureDropOldest,
			wantEvents: []string{"e1", "e3"},
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			observer := &recordingDeliveryObserver{}
			bus := NewEventBus(WithBusDefaults(1, 1, time.Second), WithBusObserver(observer))
			t.Cleanup(func() {
				_ = bus.Close(context.Background())
			})

			release := make(chan struct{})
			blocked := make(chan struct{}, 1)
			processed := make([]string, 0, 3)
			var first sync.Once
			var mu sync.Mutex

			_, err := bus.Subscribe(context.Background(), relay.InterestSet{
				Kinds: []relay.EventKind{relay.EventKindMessageReceived},
			}, relay.SubscriptionSpec{
				Name:         "policy",
				Workers:      1,
				Buffer:       1,
				Backpressure: testCase.policy,
			}, func(_ context.Context, event *relay.Event) error {
				first.Do(func() {
					blocked <- struct{}{}
					<-release
				})
				mu.Lock()
				processed = append(processed, event.ID)
				mu.Unlock()
				return nil
			})
			if err != nil {
				t.Fatalf("subscribe failed: %v", err)
			}

			if err := bus.Publish(context.Background(), newTestMessageEvent("e1", "hello")); err != nil {
				t.Fatalf("publish e1 failed: %v", err)
			}
			select {
			case <-blocked:
			case <-time.After(time.Second):
				t.Fatal("handler did not block as expected")
			}
			if err := bus.Publish(context.Background(), newTestMessageEvent("e2", "hello")); err != nil {
				t.Fatalf("publish e2 failed: %v", err)
			}
			if err := bus.Publish(context.Background(), newTestMessageEvent("e3", "hello")); err != nil {
				t.Fatalf("publish e3 failed: %v", err)
			}

			close(release)
			eventually(t, 2*time.Second, func() bool {
				mu.Lock()
				defer mu.Unlock()
				return len(processed) == 2
			})

			mu.Lock()
			gotEvents := append([]string(nil), processed...)
			mu.Unlock()
			if gotEvents[0] != testCase.wantEvents[0] || gotEvents[1] != testCase.wantEvents[1] {
				t.Fatalf("processed = %v, want %v", gotEvents, testCase.wantEvents)
			}
			if dropped := observer.droppedCount(); dropped != testCase.wantDropped {
				t.Fatalf("dropped = %d, want %d", dropped, testCase.wantDropped)
			}
		})
	}
}

func TestEventBusRecoversHandlerPanic(t *testing.T) {
	t.Parallel()

	errs := make(chan error, 1)
	bus := NewEventBus(WithBusErrorHandler(func(_ context.Context, _ string, err error) {
		errs <- err
	}))
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	_, err := bus.Subscribe(context.Background(), relay.InterestSet{}, relay.SubscriptionSpec{Name: "panics"},
		func(context.Context, *relay.Event) error {
			panic("boom")
		},
	)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	if err := bus.Publish(context.Background(), newTestMessageEvent("e1", "hello")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case err := <-errs:
		if !errors.Is(err, ErrPanicRecovered) {
			t.Fatalf("error = %v, want %v", err, ErrPanicRecovered)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for panic report")
	}
}

// TestEventBusCloseRejectsNewPublish verifies publish rejection after bus closure.
func TestEventBusCloseRejectsNewPublish(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	if err := bus.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	err := bus.Publish(context.Background(), newTestMessageEvent("e1", "hello"))
	if err == nil {
		t.Fatal("expected publish on closed bus to fail")
	}
}

// TestEventBusPublishInvalidEventReturnsError verifies publish validation.
func TestEventBusPublishInvalidEventReturnsError(t *testing.T) {
	t.Parallel()

	bus := newTestBus()
	t.Cleanup(func() {
		_ = bus.Close(context.Background())
	})

	if err := bus.Publish(context.Background(), nil); !errors.Is(err, relay.ErrInvalidEvent) {
		t.Fatalf("nil publish error = %v, want %v", err, relay.ErrInvalidEvent)
	}

	event := newTestMessageEvent("e1", "hello")
	event.Message = nil
	if err := bus.Publish(context.Background(), event); !errors.Is(err, relay.ErrInvalidEvent) {
		t.Fatalf("invalid publish error = %v, want %v", err, relay.ErrInvalidEvent)
	}
}

func newTestBus() *EventBus {
	return NewEventBus(WithBusDefaults(8, 1, time.Second))
}

func newTestMessageEvent(id string, text string) *relay.Event {
	return &relay.Event{
		ID:         id,
		Kind:       relay.EventKindMessageReceived,
		OccurredAt: time.Unix(10, 0).UTC(),
		Platform:   relay.PlatformTelegram,
		Conversation: relay.Conversation{
			ID:   "chat-1",
			Type: relay.ConversationTypePrivate,
		},
		Actor:   relay.Actor{ID: "user-1"},
		Message: &relay.Message{ID: "msg-" + id, Text: text},
	}
}

func newTestCommandEvent(id string, name string) *relay.Event {
	event := newTestMessageEvent(id, "/"+name)
	event.Kind = relay.EventKindCommandReceived
	event.Command = &relay.CommandInvocation{
		Name:            name,
		SourceEventID:   id,
		SourceEventKind: relay.EventKindMessageReceived,
	}

	return event
}

func newTestCallbackEvent(id string, data string) *relay.Event {
	event := newTestMessageEvent(id, "")
	event.Kind = relay.EventKindCallbackReceived
	event.Message = nil
	event.Callback = &relay.Callback{QueryID: "q-" + id, Data: data}

	return event
}

func eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	t.Fatal("condition not met before timeout")
}

type recordingDeliveryObserver struct {
	mu      sync.Mutex
	dropped int
	handled int
}

func (o *recordingDeliveryObserver) EventDropped(string, relay.EventKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.dropped++
}

func (o *recordingDeliveryObserver) EventHandled(string, relay.EventKind, time.Duration, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handled++
}

func (o *recordingDeliveryObserver) droppedCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.dropped
}
