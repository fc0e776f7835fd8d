package disruptor

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/rishav/order-matching-engine/internal/matching"
)

// EventProcessor processes orders from one symbol's ring buffer in a
// single thread. There is one EventProcessor per symbol: that, combined
// with the ring buffer's single-consumer discipline, is what gives each
// symbol its exclusive writer.
//
// Design:
// - Single goroutine for deterministic, sequential processing
// - Reads from the ring buffer using spin-wait
// - Calls the matching engine directly (single-threaded, no locks needed)
// - Durable persistence and market-data fanout happen independently, via
//   subscribers on the event bus the engine publishes to — this processor
//   does not batch or write events itself.
type EventProcessor struct {
	rb      *RingBuffer
	engine  *matching.Engine
	symbol  string
	logger  *zap.Logger
	running atomic.Bool

	shutdownCh   chan struct{}
	shutdownDone chan struct{}
}

// NewEventProcessor creates a new event processor for one symbol's ring
// buffer.
func NewEventProcessor(symbol string, rb *RingBuffer, engine *matching.Engine, logger *zap.Logger) *EventProcessor {
	return &EventProcessor{
		rb:           rb,
		engine:       engine,
		symbol:       symbol,
		logger:       logger,
		shutdownCh:   make(chan struct{}),
		shutdownDone: make(chan struct{}),
	}
}

// Start begins processing events from the ring buffer.
func (p *EventProcessor) Start() {
	p.running.Store(true)
	go p.processLoop()
}

// processLoop is the main event processing loop (single goroutine).
//
// This loop maintains determinism by processing orders sequentially in
// sequence number order. It never uses locks, relying on the
// single-threaded nature for correctness.
func (p *EventProcessor) processLoop() {
	defer close(p.shutdownDone)

	nextSequence := uint64(1) // Start at 1 (0 is initial state)

	for p.running.Load() {
		index := nextSequence & p.rb.indexMask
		slot := &p.rb.slots[index]

		for {
			available := atomic.LoadUint64(&slot.SequenceNum)
			if available == nextSequence {
				break
			}

			select {
			case <-p.shutdownCh:
				return
			default:
				runtime.Gosched()
			}
		}

		p.processRequest(slot)

		atomic.StoreUint64(&p.rb.gatingSequence, nextSequence)
		nextSequence++
	}
}

// processRequest processes a single request from the ring buffer.
func (p *EventProcessor) processRequest(slot *RingBufferSlot) {
	req := slot.Request
	responseCh := slot.ResponseCh

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("event processor panic recovered", zap.Any("panic", r), zap.String("symbol", p.symbol))
			select {
			case responseCh <- &OrderResponse{
				Success: false,
				Error:   fmt.Errorf("internal error: %v", r),
			}:
			default:
			}
		}
	}()

	switch req.Type {
	case RequestTypeNewOrder:
		p.processNewOrder(req, responseCh)
	case RequestTypeCancelOrder:
		p.processCancelOrder(req, responseCh)
	default:
		select {
		case responseCh <- &OrderResponse{
			Success: false,
			Error:   fmt.Errorf("unknown request type: %d", req.Type),
		}:
		default:
		}
	}
}

// processNewOrder processes a new order submission.
func (p *EventProcessor) processNewOrder(req *OrderRequest, responseCh chan *OrderResponse) {
	order := req.Order

	result := p.engine.PlaceOrder(order)

	select {
	case responseCh <- &OrderResponse{
		Success: result.Accepted,
		Result:  result,
		Order:   order,
	}:
	default:
		p.logger.Warn("dropped order response, handler not listening", zap.Uint64("order_id", order.ID))
	}
}

// processCancelOrder processes an order cancellation.
func (p *EventProcessor) processCancelOrder(req *OrderRequest, responseCh chan *OrderResponse) {
	order, err := p.engine.CancelOrder(req.Symbol, req.UserID, req.OrderID)

	select {
	case responseCh <- &OrderResponse{
		Success: err == nil,
		Order:   order,
		Error:   err,
	}:
	default:
		p.logger.Warn("dropped cancel response, handler not listening", zap.Uint64("order_id", req.OrderID))
	}
}

// Shutdown gracefully shuts down the event processor.
func (p *EventProcessor) Shutdown() {
	p.logger.Info("shutting down event processor", zap.String("symbol", p.symbol))
	p.running.Store(false)
	close(p.shutdownCh)
	<-p.shutdownDone
}
