// Package eventbus implements the typed publish/subscribe bus that glues
// the runtime's components together: lifecycle transitions, generation
// tokens, voice pipeline stage changes, and analytics events all flow
// through here.
//
// Grounded on the map-of-channels broadcast bus used elsewhere in the
// corpus for operational event fan-out (nil-safe Publish, buffered
// per-subscriber delivery, drop-on-full rather than block), generalized
// here to typed categories, in-process synchronous handlers, and a
// cancellation-token Unsubscribe.
package eventbus

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

// Handler processes one delivered event. A Handler must not block for long;
// slow handlers should request an async channel via SubscribeAsync instead.
type Handler func(sdktypes.Event)

// Token is returned by Subscribe/SubscribeAsync and is the sole handle for
// Unsubscribe. Zero value is not a valid token.
type Token uint64

type subscriber struct {
	token    Token
	category sdktypes.EventCategory
	handler  Handler
	async    chan sdktypes.Event
}

// Bus is a typed, thread-safe publish/subscribe dispatcher. The zero value
// is not ready for use; call New.
//
// Publish ordering: events from the same publisher goroutine are delivered
// to every subscriber of a category in the order they were published,
// because each Publish finishes delivering to its snapshot before it
// returns. The subscriber list is copied under a read lock and dispatch
// runs outside it, so publishers do not serialize against each other and
// events from different publisher goroutines have no defined relative
// order. A slow subscriber cannot block a publisher beyond copying the
// snapshot and, for synchronous handlers, invoking them inline.
type Bus struct {
	mu     sync.RWMutex
	byCat  map[sdktypes.EventCategory][]*subscriber
	nextID atomic.Uint64
	logger *slog.Logger
}

// New creates a ready-to-use Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		byCat:  make(map[sdktypes.EventCategory][]*subscriber),
		logger: logger,
	}
}

// Publish fans event out to every subscriber of event.Category. Non-blocking
// for async subscribers (full buffers drop the event for that subscriber
// only); synchronous handlers run inline on the publisher's goroutine and
// are isolated with a recover so a panicking subscriber cannot poison the
// bus or crash the publisher.
//
// Publish is a no-op on a nil *Bus so callers never need guard checks.
func (b *Bus) Publish(event sdktypes.Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	subs := b.byCat[event.Category]
	snapshot := make([]*subscriber, len(subs))
	copy(snapshot, subs)
	b.mu.RUnlock()

	for _, sub := range snapshot {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscriber, event sdktypes.Event) {
	if sub.async != nil {
		select {
		case sub.async <- event:
		default:
			b.logger.Warn("eventbus: dropping event for slow subscriber",
				"category", event.Category, "name", event.Name)
		}
		return
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("eventbus: subscriber handler panicked",
				"category", event.Category, "name", event.Name, "panic", r)
		}
	}()
	sub.handler(event)
}

// Subscribe registers handler to run synchronously, inline on the
// publisher's goroutine, for every event published under category. It
// returns a cancellation Token; the subscription stays active until
// Unsubscribe is called with it.
func (b *Bus) Subscribe(category sdktypes.EventCategory, handler Handler) Token {
	sub := &subscriber{
		token:    Token(b.nextID.Add(1)),
		category: category,
		handler:  handler,
	}
	b.add(sub)
	return sub.token
}

// SubscribeAsync registers an async delivery channel of the given buffer
// size instead of an inline handler. The caller owns draining the channel
// and must eventually call Unsubscribe, which closes it.
func (b *Bus) SubscribeAsync(category sdktypes.EventCategory, bufSize int) (<-chan sdktypes.Event, Token) {
	ch := make(chan sdktypes.Event, bufSize)
	sub := &subscriber{
		token:    Token(b.nextID.Add(1)),
		category: category,
		async:    ch,
	}
	b.add(sub)
	return ch, sub.token
}

func (b *Bus) add(sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing := b.byCat[sub.category]
	next := make([]*subscriber, len(existing), len(existing)+1)
	copy(next, existing)
	b.byCat[sub.category] = append(next, sub)
}

// Unsubscribe removes the subscription identified by token. Idempotent:
// calling it again, or with an unknown token, is a no-op.
func (b *Bus) Unsubscribe(token Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for cat, subs := range b.byCat {
		for i, sub := range subs {
			if sub.token != token {
				continue
			}
			next := make([]*subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.byCat[cat] = next
			if sub.async != nil {
				close(sub.async)
			}
			return
		}
	}
}

// SubscriberCount returns the number of active subscriptions for category,
// for tests and diagnostics.
func (b *Bus) SubscriberCount(category sdktypes.EventCategory) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.byCat[category])
}
