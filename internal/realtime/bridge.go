package realtime

import (
	"github.com/rishav/order-matching-engine/internal/eventbus"
	"github.com/rishav/order-matching-engine/internal/matching"
	"github.com/rishav/order-matching-engine/internal/snapshot"
)

// SnapshotBridge drains a snapshot.Publisher and republishes its updates
// to the hub as OrderBookData (full) / OrderBookUpdate (delta) pushes on
// the "orderbook:<symbol>" topic, price updates on "price:<symbol>", and
// per-interval candle updates on "kline:<symbol>:<interval>".
type SnapshotBridge struct {
	hub *Hub
	sub <-chan snapshot.Update
}

// NewSnapshotBridge subscribes to publisher and wires it to hub.
func NewSnapshotBridge(hub *Hub, publisher *snapshot.Publisher) (*SnapshotBridge, func()) {
	ch, unsub := publisher.Subscribe()
	return &SnapshotBridge{hub: hub, sub: ch}, unsub
}

// Run drains updates until the subscription channel closes. Intended to
// run in its own goroutine.
func (b *SnapshotBridge) Run() {
	for update := range b.sub {
		topic, event := b.routeFor(update)
		b.hub.Publish(topic, Push{
			Event: event,
			Topic: topic,
			Data:  update.Payload,
		})
	}
}

func (b *SnapshotBridge) routeFor(update snapshot.Update) (topic, event string) {
	switch update.Kind {
	case snapshot.KindTicker:
		return "price:" + update.Symbol, EventPriceUpdate
	case snapshot.KindCandle:
		return "kline:" + update.Symbol + ":" + update.Interval, EventKLineUpdate
	default:
		if update.IsSnapshot {
			return "orderbook:" + update.Symbol, EventOrderBookData
		}
		return "orderbook:" + update.Symbol, EventOrderBookUpdate
	}
}

// TradeBridge drains the matching engine's event bus for TradeExecuted
// events and republishes them as TradeUpdate pushes on the
// "trades:<symbol>" topic.
type TradeBridge struct {
	hub *Hub
	sub *eventbus.Subscription
}

// NewTradeBridge subscribes to bus and wires it to hub.
func NewTradeBridge(hub *Hub, bus *eventbus.Bus) *TradeBridge {
	return &TradeBridge{hub: hub, sub: bus.Subscribe()}
}

// Run drains trade events until the bus closes the subscription or Stop
// is called.
func (b *TradeBridge) Run() {
	for ev := range b.sub.C {
		if ev.Kind != eventbus.KindTradeExecuted {
			continue
		}
		payload, ok := ev.Payload.(matching.TradeExecutedPayload)
		if !ok {
			continue
		}
		b.hub.Publish("trades:"+payload.Trade.Symbol, Push{
			Event: EventTradeUpdate,
			Topic: "trades:" + payload.Trade.Symbol,
			Data:  payload.Trade,
		})
	}
}

// Stop unsubscribes the bridge from the event bus.
func (b *TradeBridge) Stop() {
	b.sub.Unsubscribe()
}
