package snapshot

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rishav/order-matching-engine/internal/eventbus"
	"github.com/rishav/order-matching-engine/internal/matching"
	"github.com/rishav/order-matching-engine/internal/orderbook"
)

// EngineBridge subscribes to the matching engine's event bus and turns
// OrderBookChanged events into throttled, classified book-depth pushes.
// It never reads the matching engine's internal state outside of the
// order books returned by the books lookup it was handed at
// construction, and never mutates them.
type EngineBridge struct {
	bus       *eventbus.Bus
	publisher *Publisher
	books     func(symbol string) *orderbook.OrderBook
	depth     int

	sub *eventbus.Subscription

	mu   sync.Mutex
	last map[string]BookView // last full view actually pushed, per symbol
}

// NewEngineBridge wires a Publisher to an engine's event bus. books looks
// up the live order book for a symbol (typically engine.GetOrderBook).
func NewEngineBridge(bus *eventbus.Bus, publisher *Publisher, books func(symbol string) *orderbook.OrderBook, depth int) *EngineBridge {
	return &EngineBridge{
		bus:       bus,
		publisher: publisher,
		books:     books,
		depth:     depth,
		sub:       bus.Subscribe(),
		last:      make(map[string]BookView),
	}
}

// Run drains the bridge's subscription until the bus closes it or Stop is
// called. Intended to run in its own goroutine.
func (b *EngineBridge) Run() {
	for ev := range b.sub.C {
		if ev.Kind != eventbus.KindOrderBookChanged {
			continue
		}
		payload, ok := ev.Payload.(matching.OrderBookChangedPayload)
		if !ok {
			continue
		}
		book := b.books(payload.Symbol)
		if book == nil {
			continue
		}
		view := BuildBookView(book, b.depth)
		fp := view.Fingerprint()

		// Decide ahead of Push whether this will land as a snapshot or a
		// delta, so a delta carries only changed levels rather than a
		// full re-send of the top-N book.
		var out interface{} = view
		if !b.publisher.NextIsSnapshot(payload.Symbol, KindOrderBook) {
			b.mu.Lock()
			prev, ok := b.last[payload.Symbol]
			b.mu.Unlock()
			if ok {
				out = diffBookView(prev, view)
			}
		}

		if b.publisher.Push(payload.Symbol, KindOrderBook, fp, false, out) {
			b.mu.Lock()
			b.last[payload.Symbol] = view
			b.mu.Unlock()
		}
	}
}

// Stop unsubscribes the bridge from the event bus.
func (b *EngineBridge) Stop() {
	b.sub.Unsubscribe()
}

// diffBookView returns a view containing only the levels that changed
// between prev and curr. New or repriced levels carry curr's qty; levels
// present in prev but absent from curr carry qty=0, denoting deletion.
func diffBookView(prev, curr BookView) BookView {
	return BookView{
		Symbol: curr.Symbol,
		Bids:   diffLevels(prev.Bids, curr.Bids),
		Asks:   diffLevels(prev.Asks, curr.Asks),
	}
}

func diffLevels(prev, curr []BookLevel) []BookLevel {
	prevByPrice := make(map[string]BookLevel, len(prev))
	for _, l := range prev {
		prevByPrice[l.Price.String()] = l
	}

	var out []BookLevel
	seen := make(map[string]bool, len(curr))
	for _, l := range curr {
		key := l.Price.String()
		seen[key] = true
		if old, ok := prevByPrice[key]; !ok || !old.Qty.Equal(l.Qty) {
			out = append(out, l)
		}
	}
	for _, l := range prev {
		if !seen[l.Price.String()] {
			out = append(out, BookLevel{Price: l.Price, Qty: decimal.Zero})
		}
	}
	return out
}
