package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"clipforge/internal/logging"
)

// Sink receives events for one subscription. Deliver must not block; Done is
// closed when the subscriber goes away.
type Sink interface {
	Deliver(Event)
	Done() <-chan struct{}
}

// Relay observes every published event, subscribed or not.
type Relay interface {
	Relay(Event)
}

type subscription struct {
	stop chan struct{}
}

// Broadcaster is a publish/subscribe registry keyed by session id.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[string]map[Sink]*subscription
	relays []Relay
	logger *slog.Logger
	now    func() time.Time
}

// New constructs an empty Broadcaster.
func New(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[string]map[Sink]*subscription),
		logger: logging.NewComponentLogger(logger, "broadcast"),
		now:    time.Now,
	}
}

// AddRelay registers a consumer of every published event.
func (b *Broadcaster) AddRelay(relay Relay) {
	if b == nil || relay == nil {
		return
	}
	b.mu.Lock()
	b.relays = append(b.relays, relay)
	b.mu.Unlock()
}

// Subscribe attaches sink to the entity. Subscribing the same sink twice is a
// no-op. The subscription ends when Unsubscribe is called or sink.Done closes.
func (b *Broadcaster) Subscribe(entityID string, sink Sink) {
	if b == nil || sink == nil || entityID == "" {
		return
	}
	b.mu.Lock()
	set, ok := b.subs[entityID]
	if !ok {
		set = make(map[Sink]*subscription)
		b.subs[entityID] = set
	}
	if _, exists := set[sink]; exists {
		b.mu.Unlock()
		return
	}
	sub := &subscription{stop: make(chan struct{})}
	set[sink] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber attached", logging.String(logging.FieldSessionID, entityID))
	go b.watch(entityID, sink, sub)
}

func (b *Broadcaster) watch(entityID string, sink Sink, sub *subscription) {
	done := sink.Done()
	if done == nil {
		return
	}
	select {
	case <-done:
		b.Unsubscribe(entityID, sink)
	case <-sub.stop:
	}
}

// Unsubscribe detaches sink. The entity entry is dropped once empty.
func (b *Broadcaster) Unsubscribe(entityID string, sink Sink) {
	if b == nil || sink == nil {
		return
	}
	b.mu.Lock()
	b.removeLocked(entityID, sink)
	b.mu.Unlock()
}

func (b *Broadcaster) removeLocked(entityID string, sink Sink) {
	set, ok := b.subs[entityID]
	if !ok {
		return
	}
	sub, ok := set[sink]
	if !ok {
		return
	}
	close(sub.stop)
	delete(set, sink)
	if len(set) == 0 {
		delete(b.subs, entityID)
	}
}

// Publish delivers evt to every live subscriber of entityID and to all relays.
// Delivery happens outside the registry lock.
func (b *Broadcaster) Publish(entityID string, evt Event) {
	if b == nil {
		return
	}
	if evt.SessionID == "" {
		evt.SessionID = entityID
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = b.now().UTC()
	}

	b.mu.Lock()
	set := b.subs[entityID]
	targets := make([]Sink, 0, len(set))
	for sink := range set {
		if closed(sink.Done()) {
			b.removeLocked(entityID, sink)
			continue
		}
		targets = append(targets, sink)
	}
	relays := append([]Relay(nil), b.relays...)
	b.mu.Unlock()

	for _, sink := range targets {
		sink.Deliver(evt)
	}
	for _, relay := range relays {
		relay.Relay(evt)
	}
}

// SubscriberCount returns the number of live sinks for entityID.
func (b *Broadcaster) SubscriberCount(entityID string) int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[entityID])
}

// Entities returns the number of ids with at least one subscriber.
func (b *Broadcaster) Entities() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func closed(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
