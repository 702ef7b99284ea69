package eventbus

import (
	"sync"
	"testing"
	"time"

	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

func TestSubscribePublish(t *testing.T) {
	b := New(nil)
	var got sdktypes.Event
	var mu sync.Mutex
	b.Subscribe(sdktypes.EventVoice, func(e sdktypes.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = e
	})

	b.Publish(sdktypes.Event{Category: sdktypes.EventVoice, Name: "stage_changed"})

	mu.Lock()
	defer mu.Unlock()
	if got.Name != "stage_changed" {
		t.Fatalf("handler did not receive event, got %+v", got)
	}
}

func TestPublishNoSubscribersDropsSilently(t *testing.T) {
	b := New(nil)
	b.Publish(sdktypes.Event{Category: sdktypes.EventLifecycle, Name: "ready"})
}

func TestPublishOnNilBusIsNoop(t *testing.T) {
	var b *Bus
	b.Publish(sdktypes.Event{Category: sdktypes.EventLifecycle})
	if b.SubscriberCount(sdktypes.EventLifecycle) != 0 {
		t.Fatal("expected 0 subscribers on nil bus")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(nil)
	token := b.Subscribe(sdktypes.EventAnalytics, func(sdktypes.Event) {})
	if b.SubscriberCount(sdktypes.EventAnalytics) != 1 {
		t.Fatalf("want 1 subscriber, got %d", b.SubscriberCount(sdktypes.EventAnalytics))
	}
	b.Unsubscribe(token)
	b.Unsubscribe(token)
	if b.SubscriberCount(sdktypes.EventAnalytics) != 0 {
		t.Fatalf("want 0 subscribers after unsubscribe, got %d", b.SubscriberCount(sdktypes.EventAnalytics))
	}
}

func TestPanickingSubscriberDoesNotPoisonBus(t *testing.T) {
	b := New(nil)
	b.Subscribe(sdktypes.EventGeneration, func(sdktypes.Event) {
		panic("boom")
	})
	var called bool
	b.Subscribe(sdktypes.EventGeneration, func(sdktypes.Event) {
		called = true
	})

	b.Publish(sdktypes.Event{Category: sdktypes.EventGeneration, Name: "token"})

	if !called {
		t.Fatal("second subscriber should still run after the first panicked")
	}
}

func TestSubscribeAsyncDropsOnFullBuffer(t *testing.T) {
	b := New(nil)
	ch, token := b.SubscribeAsync(sdktypes.EventVoice, 1)
	defer b.Unsubscribe(token)

	b.Publish(sdktypes.Event{Category: sdktypes.EventVoice, Name: "one"})
	b.Publish(sdktypes.Event{Category: sdktypes.EventVoice, Name: "two"})

	select {
	case e := <-ch:
		if e.Name != "one" {
			t.Fatalf("expected first event to survive, got %q", e.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("expected buffered event, got none")
	}

	select {
	case e := <-ch:
		t.Fatalf("expected buffer to have dropped the second event, got %+v", e)
	default:
	}
}

func TestUnsubscribeClosesAsyncChannel(t *testing.T) {
	b := New(nil)
	ch, token := b.SubscribeAsync(sdktypes.EventVoice, 1)
	b.Unsubscribe(token)

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after Unsubscribe")
	}
}

func TestCategoriesAreIndependent(t *testing.T) {
	b := New(nil)
	var voiceCalls, genCalls int
	b.Subscribe(sdktypes.EventVoice, func(sdktypes.Event) { voiceCalls++ })
	b.Subscribe(sdktypes.EventGeneration, func(sdktypes.Event) { genCalls++ })

	b.Publish(sdktypes.Event{Category: sdktypes.EventVoice, Name: "x"})

	if voiceCalls != 1 || genCalls != 0 {
		t.Fatalf("want voice=1 gen=0, got voice=%d gen=%d", voiceCalls, genCalls)
	}
}
