// Package snapshot implements the Snapshot/Delta Publisher: it watches
// order book, ticker and candle state for change, decides whether each
// push should carry a full snapshot or an incremental delta, and throttles
// how often each symbol/kind pair is allowed to push at all.
//
// Design, grounded on the teacher's marketdata.Publisher channel-fanout:
// one registered Output channel per subscriber, non-blocking send, slow
// subscribers simply miss updates rather than stall the publisher. What's
// new here is the throttle/dedup layer in front of that fanout.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rishav/order-matching-engine/internal/orderbook"
)

// Kind identifies what a push carries.
type Kind string

const (
	KindOrderBook Kind = "orderbook"
	KindTicker    Kind = "ticker"
	KindCandle    Kind = "candle"
)

// Throttle holds the minimum push interval per kind, and the maximum gap
// tolerated before a push is forced back to a full snapshot.
type Throttle struct {
	OrderBook        time.Duration
	Ticker           time.Duration
	Candle           time.Duration
	SnapshotInterval time.Duration
}

// DefaultThrottle returns the spec's literal defaults.
func DefaultThrottle() Throttle {
	return Throttle{
		OrderBook:        250 * time.Millisecond,
		Ticker:           1000 * time.Millisecond,
		Candle:           1500 * time.Millisecond,
		SnapshotInterval: 3 * time.Second,
	}
}

func (t Throttle) intervalFor(kind Kind) time.Duration {
	switch kind {
	case KindOrderBook:
		return t.OrderBook
	case KindTicker:
		return t.Ticker
	case KindCandle:
		return t.Candle
	default:
		return 0
	}
}

// Update is one classified push ready to fan out to subscribers. Interval
// is set only for KindCandle pushes, distinguishing e.g. a 1m candle from
// a 5m candle for the same symbol.
type Update struct {
	Symbol     string
	Interval   string
	Kind       Kind
	IsSnapshot bool
	Payload    interface{}
}

type pushState struct {
	lastPush    time.Time
	fingerprint string
}

// Publisher classifies and throttles pushes, then fans them out to
// registered subscriber channels.
type Publisher struct {
	throttle Throttle

	mu    sync.Mutex
	state map[string]*pushState

	subMu sync.RWMutex
	subs  map[uint64]chan Update
	nextID uint64
	queueSize int
}

// NewPublisher creates a publisher with the given throttle windows and
// per-subscriber queue size.
func NewPublisher(throttle Throttle, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Publisher{
		throttle:  throttle,
		state:     make(map[string]*pushState),
		subs:      make(map[uint64]chan Update),
		queueSize: queueSize,
	}
}

// Subscribe registers a new subscriber and returns its receive channel and
// an unsubscribe function.
func (p *Publisher) Subscribe() (<-chan Update, func()) {
	p.subMu.Lock()
	defer p.subMu.Unlock()

	id := p.nextID
	p.nextID++
	ch := make(chan Update, p.queueSize)
	p.subs[id] = ch

	unsub := func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		if _, ok := p.subs[id]; ok {
			delete(p.subs, id)
			close(ch)
		}
	}
	return ch, unsub
}

// Push submits a candidate update for symbol/kind with the given
// fingerprint (a cheap content hash the caller computes over the payload)
// and payload. forceSnapshot requests a full snapshot regardless of the
// coalescing window (e.g. on first subscribe, or after a relay
// reconnect). Push returns false if the update was dropped (identical
// fingerprint, or inside the throttle window).
func (p *Publisher) Push(symbol string, kind Kind, fingerprint string, forceSnapshot bool, payload interface{}) bool {
	return p.push(symbol, "", kind, fingerprint, forceSnapshot, payload)
}

// PushCandle is Push specialized for candles, which are published
// separately per interval (a 1m candle and a 5m candle for the same
// symbol must not share a throttle/dedup state or a downstream topic).
func (p *Publisher) PushCandle(symbol, interval string, fingerprint string, forceSnapshot bool, payload interface{}) bool {
	return p.push(symbol, interval, KindCandle, fingerprint, forceSnapshot, payload)
}

func (p *Publisher) push(symbol, interval string, kind Kind, fingerprint string, forceSnapshot bool, payload interface{}) bool {
	key := symbol + "|" + interval + "|" + string(kind)
	now := time.Now()

	p.mu.Lock()
	st, exists := p.state[key]
	if !exists {
		st = &pushState{}
		p.state[key] = st
	}

	if exists && !forceSnapshot {
		if st.fingerprint == fingerprint {
			p.mu.Unlock()
			return false
		}
		if now.Sub(st.lastPush) < p.throttle.intervalFor(kind) {
			p.mu.Unlock()
			return false
		}
	}

	isSnapshot := forceSnapshot || !exists || now.Sub(st.lastPush) > p.throttle.SnapshotInterval
	st.lastPush = now
	st.fingerprint = fingerprint
	p.mu.Unlock()

	p.fanOut(Update{Symbol: symbol, Interval: interval, Kind: kind, IsSnapshot: isSnapshot, Payload: payload})
	return true
}

// NextIsSnapshot reports whether the next Push for symbol/kind (assuming
// it is not deduped by an identical fingerprint) would be classified as a
// full snapshot rather than a delta, without mutating any state. Used by
// callers that need to decide, ahead of building a payload, whether to
// send a full view or a diff against their own last-known state.
func (p *Publisher) NextIsSnapshot(symbol string, kind Kind) bool {
	key := symbol + "|" + "|" + string(kind)
	p.mu.Lock()
	defer p.mu.Unlock()
	st, exists := p.state[key]
	if !exists {
		return true
	}
	return time.Now().Sub(st.lastPush) > p.throttle.SnapshotInterval
}

func (p *Publisher) fanOut(update Update) {
	p.subMu.RLock()
	defer p.subMu.RUnlock()
	for _, ch := range p.subs {
		select {
		case ch <- update:
		default:
			// Slow subscriber: drop. The next push for this key carries
			// its own fingerprint, so the subscriber resyncs on the next
			// snapshot rather than replaying a queue of stale deltas.
		}
	}
}

// BookLevel is one price level in a depth view.
type BookLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// BookView is a depth-limited view of both sides of a book, suitable for
// hashing into a fingerprint or serializing to a realtime subscriber.
type BookView struct {
	Symbol string
	Bids   []BookLevel
	Asks   []BookLevel
}

// BuildBookView extracts the top depth levels from each side of book.
func BuildBookView(book *orderbook.OrderBook, depth int) BookView {
	view := BookView{Symbol: book.Symbol()}
	for _, level := range book.GetBidDepth(depth) {
		view.Bids = append(view.Bids, BookLevel{Price: level.Price, Qty: level.TotalQty})
	}
	for _, level := range book.GetAskDepth(depth) {
		view.Asks = append(view.Asks, BookLevel{Price: level.Price, Qty: level.TotalQty})
	}
	return view
}

// Fingerprint computes a stable content hash of a book view, used to
// detect no-op pushes (e.g. an OrderBookChanged event fired for a price
// level outside the published depth).
func (v BookView) Fingerprint() string {
	h := sha256.New()
	for _, l := range v.Bids {
		fmt.Fprintf(h, "b:%s:%s;", l.Price.String(), l.Qty.String())
	}
	for _, l := range v.Asks {
		fmt.Fprintf(h, "a:%s:%s;", l.Price.String(), l.Qty.String())
	}
	return hex.EncodeToString(h.Sum(nil))
}
