package durability

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/rishav/order-matching-engine/internal/eventbus"
	"github.com/rishav/order-matching-engine/internal/matching"
)

// Writer drains the event bus and batches writes to a Store, off the hot
// path. Modeled on the teacher's EventBatcher: a single goroutine batches
// by size or time, whichever comes first, then flushes. Unlike the
// teacher's batcher it never talks to the matching engine directly; it
// only ever reads from its own event bus subscription.
type Writer struct {
	store     *Store
	sub       *eventbus.Subscription
	logger    *zap.Logger
	batchSize int
	interval  time.Duration

	failures uint64 // consecutive write failures, for the health signal

	shutdownCh   chan struct{}
	shutdownDone chan struct{}
}

// Config configures the durability writer's batching behavior.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns the teacher-derived defaults: batch up to 1000
// events or flush every 10ms, whichever comes first.
func DefaultConfig() Config {
	return Config{BatchSize: 1000, FlushInterval: 10 * time.Millisecond}
}

// NewWriter creates a durability writer subscribed to bus, persisting
// into store.
func NewWriter(store *Store, bus *eventbus.Bus, cfg Config, logger *zap.Logger) *Writer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 10 * time.Millisecond
	}
	return &Writer{
		store:        store,
		sub:          bus.Subscribe(),
		logger:       logger,
		batchSize:    cfg.BatchSize,
		interval:     cfg.FlushInterval,
		shutdownCh:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}
}

// Start begins the batching loop in its own goroutine.
func (w *Writer) Start() {
	go w.loop()
}

func (w *Writer) loop() {
	defer close(w.shutdownDone)

	batch := make([]eventbus.Event, 0, w.batchSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-w.sub.C:
			if !ok {
				if len(batch) > 0 {
					w.flush(batch)
				}
				return
			}
			batch = append(batch, ev)
			if len(batch) >= w.batchSize {
				w.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if w.sub.Lagged() {
				w.logger.Warn("durability writer lagging behind event bus, dropped events since last check")
				w.sub.ClearLagged()
			}
			if len(batch) > 0 {
				w.flush(batch)
				batch = batch[:0]
			}

		case <-w.shutdownCh:
			if len(batch) > 0 {
				w.flush(batch)
			}
			return
		}
	}
}

func (w *Writer) flush(batch []eventbus.Event) {
	for _, ev := range batch {
		var err error
		switch ev.Kind {
		case eventbus.KindOrderAccepted:
			if p, ok := ev.Payload.(matching.OrderLifecyclePayload); ok {
				err = w.store.PutOrderAccepted(&OrderAcceptedRecord{
					SequenceNum: ev.Seq,
					Timestamp:   now(),
					OrderID:     p.Order.ID,
					Symbol:      p.Order.Symbol,
					UserID:      p.Order.UserID,
					Side:        p.Order.Side.String(),
					Type:        p.Order.Type.String(),
					Price:       p.Order.Price,
					Qty:         p.Order.Qty,
				})
			}
		case eventbus.KindOrderCanceled:
			if p, ok := ev.Payload.(matching.OrderLifecyclePayload); ok {
				err = w.store.PutOrderCanceled(&OrderCanceledRecord{
					SequenceNum:  ev.Seq,
					Timestamp:    now(),
					OrderID:      p.Order.ID,
					Symbol:       p.Order.Symbol,
					UserID:       p.Order.UserID,
					RemainingQty: p.Order.RemainingQty(),
					Reason:       string(p.Reason),
				})
			}
		case eventbus.KindOrderFilled:
			if p, ok := ev.Payload.(matching.OrderLifecyclePayload); ok {
				err = w.store.PutOrderFilled(&OrderFilledRecord{
					SequenceNum: ev.Seq,
					Timestamp:   now(),
					OrderID:     p.Order.ID,
					Symbol:      p.Order.Symbol,
					UserID:      p.Order.UserID,
					FilledQty:   p.Order.FilledQty,
				})
			}
		case eventbus.KindTradeExecuted:
			if p, ok := ev.Payload.(matching.TradeExecutedPayload); ok {
				err = w.store.PutTrade(&TradeExecutedRecord{
					SequenceNum: ev.Seq,
					Timestamp:   now(),
					TradeID:     p.Trade.ID,
					Symbol:      p.Trade.Symbol,
					Price:       p.Trade.Price,
					Qty:         p.Trade.Qty,
					BuyOrderID:  p.Trade.BuyOrderID,
					SellOrderID: p.Trade.SellOrderID,
					BuyerID:     p.Trade.BuyerID,
					SellerID:    p.Trade.SellerID,
				})
			}
		default:
			continue
		}

		if err != nil {
			n := atomic.AddUint64(&w.failures, 1)
			w.logger.Error("durability write failed", zap.Error(err), zap.Uint64("consecutive_failures", n))
		} else {
			atomic.StoreUint64(&w.failures, 0)
		}
	}
}

// Healthy reports whether the writer has had fewer than five consecutive
// failed writes. The matching engine continues regardless of this signal; it
// exists purely for operator alerting.
func (w *Writer) Healthy() bool {
	const degradedThreshold = 5
	return atomic.LoadUint64(&w.failures) < degradedThreshold
}

// Shutdown stops the batching loop after flushing any pending batch.
func (w *Writer) Shutdown() {
	close(w.shutdownCh)
	<-w.shutdownDone
	w.sub.Unsubscribe()
}
