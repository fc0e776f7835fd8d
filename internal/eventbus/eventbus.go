// Package eventbus implements the in-process typed publish/subscribe bus
// (C4) that connects the Matching Engine to the Snapshot/Delta Publisher,
// the Durability Writer, and any other consumer of trading events.
//
// Publish is non-blocking. Delivery to a single subscriber preserves
// publish order for events of the same symbol. A slow subscriber cannot
// block a fast one: each subscriber has its own bounded queue, and an
// overflowing queue marks the subscriber lagged rather than silently
// dropping its events.
package eventbus

import (
	"sync"
	"sync/atomic"
)

// Kind enumerates the event types the bus carries.
type Kind int

const (
	KindOrderAccepted Kind = iota
	KindOrderRejected
	KindOrderCanceled
	KindOrderFilled
	KindTradeExecuted
	KindOrderBookChanged
)

func (k Kind) String() string {
	switch k {
	case KindOrderAccepted:
		return "OrderAccepted"
	case KindOrderRejected:
		return "OrderRejected"
	case KindOrderCanceled:
		return "OrderCanceled"
	case KindOrderFilled:
		return "OrderFilled"
	case KindTradeExecuted:
		return "TradeExecuted"
	case KindOrderBookChanged:
		return "OrderBookChanged"
	default:
		return "Unknown"
	}
}

// Event is the envelope every publication carries. Seq is monotonic per
// symbol across all event kinds, so a consumer tracking (symbol, seq) can
// detect gaps.
type Event struct {
	Kind    Kind
	Symbol  string
	Seq     uint64
	Payload interface{}
}

// DefaultQueueSize is the default bound on a subscriber's queue, matching
// the venue's default realtime push queue size.
const DefaultQueueSize = 1024

// Subscription is a handle returned by Subscribe. Events arrives on C;
// Lagged reports whether the subscriber has overflowed since the last
// ClearLagged.
type Subscription struct {
	C      <-chan Event
	id     uint64
	bus    *Bus
	ch     chan Event
	lagged int32
}

// Lagged reports whether this subscription has overflowed since the last
// call to ClearLagged. A lagged subscriber must treat its next received
// event as a discontinuity and request a fresh snapshot.
func (s *Subscription) Lagged() bool {
	return atomic.LoadInt32(&s.lagged) != 0
}

// ClearLagged resets the lagged flag, typically once the subscriber has
// resynced via a fresh snapshot.
func (s *Subscription) ClearLagged() {
	atomic.StoreInt32(&s.lagged, 0)
}

// Unsubscribe removes the subscription from the bus. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.id)
}

// Bus is the process-wide event bus. One Bus instance is shared across
// all symbols; per-symbol sequence counters are tracked internally, all
// guarded by one mutex, so sequence assignment for different symbols
// serializes on that lock.
type Bus struct {
	mu          sync.RWMutex
	subs        map[uint64]*Subscription
	nextSubID   uint64
	queueSize   int
	seqMu       sync.Mutex
	symbolSeq   map[string]uint64
}

// New creates an event bus with the given per-subscriber queue size. A
// queueSize of 0 uses DefaultQueueSize.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{
		subs:      make(map[uint64]*Subscription),
		queueSize: queueSize,
		symbolSeq: make(map[string]uint64),
	}
}

// NextSeq returns the next per-symbol sequence number. Called by the
// matching engine immediately before emitting an event for that symbol.
func (b *Bus) NextSeq(symbol string) uint64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	b.symbolSeq[symbol]++
	return b.symbolSeq[symbol]
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	ch := make(chan Event, b.queueSize)
	sub := &Subscription{
		C:   ch,
		id:  b.nextSubID,
		bus: b,
		ch:  ch,
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

// Publish fans an event out to every current subscriber without blocking.
// A subscriber whose queue is full is marked lagged and the event is
// dropped for that subscriber only (never silently: Lagged() becomes
// observable on its next poll).
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			atomic.StoreInt32(&sub.lagged, 1)
		}
	}
}

// SubscriberCount returns the number of active subscriptions, for health
// reporting.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
