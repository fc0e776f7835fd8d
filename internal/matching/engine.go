// Package matching implements the order matching engine (C3).
//
// The matching engine is the heart of the exchange. It processes incoming
// orders and matches them against resting orders in the order book using
// price-time priority (FIFO at each price level).
//
// Architecture: Single-Threaded Core (LMAX Disruptor Pattern)
//
// Why single-threaded?
// 1. Determinism: Same input sequence always produces same output
// 2. No locks on the book: Eliminates contention in the hot path
// 3. Replay: Can rebuild state by replaying the event log
// 4. Simplicity: No race conditions to debug in the match loop
//
// Each symbol has exactly one Engine method call in flight at a time; the
// disruptor package's per-symbol ring buffer and event processor are what
// enforce that single-writer property, not this package. The Engine
// itself is safe to use from multiple goroutines only if the caller
// serializes access per symbol.
package matching

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/rishav/order-matching-engine/internal/eventbus"
	"github.com/rishav/order-matching-engine/internal/ledger"
	"github.com/rishav/order-matching-engine/internal/orderbook"
	"github.com/rishav/order-matching-engine/internal/orders"
)

// OrderBookChangedPayload accompanies eventbus.KindOrderBookChanged.
type OrderBookChangedPayload struct {
	Symbol string
}

// TradeExecutedPayload accompanies eventbus.KindTradeExecuted.
type TradeExecutedPayload struct {
	Trade orders.Trade
}

// OrderLifecyclePayload accompanies KindOrderAccepted, KindOrderRejected,
// KindOrderCanceled, and KindOrderFilled.
type OrderLifecyclePayload struct {
	Order  orders.Order
	Reason orders.RejectReason
	Detail string
}

// Engine is the order matching engine. It owns, per symbol, an order
// book and a halted flag, plus one monotonic order id counter and one
// monotonic trade id counter shared by all symbols; it owns no balances
// directly, mutating them only through the Ledger.
type Engine struct {
	ledger *ledger.Ledger
	bus    *eventbus.Bus

	mu         sync.RWMutex
	orderBooks map[string]*orderbook.OrderBook
	pairs      map[string]orders.TradingPair
	halted     map[string]string // symbol -> reason, present only when halted

	orderID uint64 // process-wide monotonic order id counter
	tradeID uint64 // process-wide monotonic trade id counter
}

// NewEngine creates a new matching engine backed by the given ledger and
// event bus.
func NewEngine(l *ledger.Ledger, bus *eventbus.Bus) *Engine {
	return &Engine{
		ledger:     l,
		bus:        bus,
		orderBooks: make(map[string]*orderbook.OrderBook),
		pairs:      make(map[string]orders.TradingPair),
		halted:     make(map[string]string),
	}
}

// SeedOrderID sets the starting point for the order id counter, used to
// resume after a restart from the durability store's last-seen id.
func (e *Engine) SeedOrderID(last uint64) {
	atomic.StoreUint64(&e.orderID, last)
}

// AddSymbol registers a tradable pair and creates its order book.
func (e *Engine) AddSymbol(pair orders.TradingPair) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.orderBooks[pair.Symbol]; !exists {
		e.orderBooks[pair.Symbol] = orderbook.NewOrderBook(pair.Symbol)
	}
	e.pairs[pair.Symbol] = pair
}

// GetOrderBook returns the order book for a symbol, or nil if unknown.
func (e *Engine) GetOrderBook(symbol string) *orderbook.OrderBook {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.orderBooks[symbol]
}

// Symbols returns all tradable symbols.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.orderBooks))
	for s := range e.orderBooks {
		out = append(out, s)
	}
	return out
}

// IsHalted reports whether a symbol has been trapped into a halted state
// by an invariant violation.
func (e *Engine) IsHalted(symbol string) (reason string, halted bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	reason, halted = e.halted[symbol]
	return reason, halted
}

func (e *Engine) halt(symbol, reason string) {
	e.mu.Lock()
	e.halted[symbol] = reason
	e.mu.Unlock()
}

func (e *Engine) nextOrderID() uint64 {
	return atomic.AddUint64(&e.orderID, 1)
}

func (e *Engine) nextTradeID() uint64 {
	return atomic.AddUint64(&e.tradeID, 1)
}

func (e *Engine) publish(kind eventbus.Kind, symbol string, payload interface{}) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{
		Kind:    kind,
		Symbol:  symbol,
		Seq:     e.bus.NextSeq(symbol),
		Payload: payload,
	})
}

func reject(order *orders.Order, reason orders.RejectReason, detail string) *orders.ExecutionResult {
	order.Status = orders.OrderStatusRejected
	return &orders.ExecutionResult{
		Order:        order,
		Accepted:     false,
		RejectReason: reason,
		RejectDetail: detail,
		RestingQty:   decimal.Zero,
	}
}

// PlaceOrder is the matching engine's public contract: placeOrder(order)
// → AcceptedOrder | Rejection.
//
// Validation (precision, size bounds, active symbol) runs first; failures
// return a Rejection with no state change. On success it runs the freeze
// phase against the Ledger, inserts the order, and runs the price-time
// match loop, emitting one OrderBookChanged per call (coalesced across
// the inner loop) and one OrderAccepted/OrderCanceled. Every rejection
// publishes one OrderRejected.
func (e *Engine) PlaceOrder(order *orders.Order) (res *orders.ExecutionResult) {
	defer func() {
		if res != nil && !res.Accepted {
			e.publish(eventbus.KindOrderRejected, order.Symbol, OrderLifecyclePayload{Order: *order, Reason: res.RejectReason, Detail: res.RejectDetail})
		}
	}()

	e.mu.RLock()
	book := e.orderBooks[order.Symbol]
	pair, knownPair := e.pairs[order.Symbol]
	haltReason, halted := e.halted[order.Symbol]
	e.mu.RUnlock()

	if halted {
		return reject(order, orders.RejectSymbolHalted, haltReason)
	}
	if book == nil || !knownPair || !pair.Active {
		return reject(order, orders.RejectValidation, fmt.Sprintf("unknown or inactive symbol: %s", order.Symbol))
	}
	if order.Qty.LessThanOrEqual(decimal.Zero) {
		return reject(order, orders.RejectValidation, "quantity must be positive")
	}
	if pair.MinQty.IsPositive() && order.Qty.LessThan(pair.MinQty) {
		return reject(order, orders.RejectValidation, "quantity below minimum")
	}
	if pair.MaxQty.IsPositive() && order.Qty.GreaterThan(pair.MaxQty) {
		return reject(order, orders.RejectValidation, "quantity above maximum")
	}
	if order.Type == orders.OrderTypeLimit && order.Price.LessThanOrEqual(decimal.Zero) {
		return reject(order, orders.RejectValidation, "limit order must have a positive price")
	}
	if !pair.RoundQty(order.Qty).Equal(order.Qty) {
		return reject(order, orders.RejectValidation, "quantity not a multiple of the symbol's quantity tick")
	}
	if order.Type == orders.OrderTypeLimit && !pair.RoundPrice(order.Price).Equal(order.Price) {
		return reject(order, orders.RejectValidation, "price not a multiple of the symbol's price tick")
	}

	// Freeze phase.
	freezeCurrency, freezeAmount, err := e.freezeBasis(order, pair, book)
	if err != nil {
		return reject(order, orders.RejectNoLiquidity, err.Error())
	}
	if err := e.ledger.Freeze(order.UserID, freezeCurrency, freezeAmount); err != nil {
		return reject(order, orders.RejectInsufficientFunds, err.Error())
	}

	// Insert phase.
	if order.ID == 0 {
		order.ID = e.nextOrderID()
	}
	order.SequenceNum = e.bus.NextSeq(order.Symbol)
	if order.Timestamp == 0 {
		order.Timestamp = orders.Now()
	}
	order.Status = orders.OrderStatusActive

	result := &orders.ExecutionResult{Order: order, Accepted: true, RestingQty: decimal.Zero}

	// FOK pre-check: if it cannot fill entirely, unfreeze and reject before
	// touching the book.
	if order.Type == orders.OrderTypeFOK && !e.canFillEntirely(order, book, pair) {
		e.ledger.Unfreeze(order.UserID, freezeCurrency, freezeAmount)
		return reject(order, orders.RejectNoLiquidity, "fill-or-kill could not be satisfied")
	}

	trades, haltedNow := e.matchLoop(order, book, pair)
	result.Trades = trades
	if haltedNow {
		return result
	}

	// A priced buy froze qty*Price but each trade paid the resting price;
	// release the difference so exactly RemainingQty*Price stays frozen.
	if order.Side == orders.SideBuy && order.Type != orders.OrderTypeMarket {
		improvement := decimal.Zero
		for _, t := range trades {
			improvement = improvement.Add(t.Qty.Mul(order.Price.Sub(t.Price)))
		}
		if improvement.IsPositive() {
			e.ledger.Unfreeze(order.UserID, freezeCurrency, improvement)
		}
	}

	if order.IsFilled() {
		order.Status = orders.OrderStatusFilled
	} else if order.FilledQty.IsPositive() {
		order.Status = orders.OrderStatusPartiallyFilled
	}

	remaining := order.RemainingQty()
	if remaining.IsPositive() {
		switch order.Type {
		case orders.OrderTypeLimit:
			if err := book.AddOrder(order); err != nil {
				e.halt(order.Symbol, err.Error())
				return result
			}
			result.RestingQty = remaining
			if order.Status == orders.OrderStatusPending {
				order.Status = orders.OrderStatusActive
			}
		case orders.OrderTypeMarket, orders.OrderTypeIOC, orders.OrderTypeFOK:
			// Unfreeze the residual. The frozen amount for a partially
			// matched order is proportional to what is still unfilled.
			e.unfreezeResidual(order, pair, freezeCurrency, freezeAmount)
			order.Status = orders.OrderStatusCanceled
			result.RejectReason = orders.RejectNoLiquidity
		}
	}

	e.publish(eventbus.KindOrderBookChanged, order.Symbol, OrderBookChangedPayload{Symbol: order.Symbol})
	if order.Status == orders.OrderStatusCanceled {
		e.publish(eventbus.KindOrderCanceled, order.Symbol, OrderLifecyclePayload{Order: *order, Reason: result.RejectReason})
	} else {
		e.publish(eventbus.KindOrderAccepted, order.Symbol, OrderLifecyclePayload{Order: *order})
	}

	return result
}

// unfreezeResidual releases the portion of a frozen amount that
// corresponds to the order's unfilled remainder. For Buy orders the
// frozen currency is quote valued at the order's reference price; for
// Sell orders it is base valued 1:1 with quantity, so the residual is
// exactly proportional to RemainingQty/Qty.
func (e *Engine) unfreezeResidual(order *orders.Order, pair orders.TradingPair, currency string, totalFrozen decimal.Decimal) {
	if order.Qty.IsZero() {
		return
	}
	remaining := order.RemainingQty()
	residual := totalFrozen.Mul(remaining).Div(order.Qty)
	e.ledger.Unfreeze(order.UserID, currency, residual)
}

// freezeBasis computes the (currency, amount) pair to freeze for an
// order, per §4.3: (quote, qty*price) for a priced Buy (Limit, IOC, FOK),
// (quote, qty*bestAsk) for Market Buy after a liquidity check, and
// (base, qty) for every Sell.
func (e *Engine) freezeBasis(order *orders.Order, pair orders.TradingPair, book *orderbook.OrderBook) (currency string, amount decimal.Decimal, err error) {
	switch order.Side {
	case orders.SideBuy:
		if order.Type != orders.OrderTypeMarket {
			return pair.Quote, order.Qty.Mul(order.Price), nil
		}
		bestAsk := book.GetBestAsk()
		if bestAsk == nil {
			return "", decimal.Zero, fmt.Errorf("no liquidity to price a market buy")
		}
		return pair.Quote, order.Qty.Mul(bestAsk.Price), nil
	default: // SideSell
		return pair.Base, order.Qty, nil
	}
}

// canFillEntirely checks whether a FOK order could be completely matched
// given the book's current depth, without mutating any state.
func (e *Engine) canFillEntirely(order *orders.Order, book *orderbook.OrderBook, pair orders.TradingPair) bool {
	remaining := order.Qty
	var levels []*orderbook.PriceLevel
	if order.Side == orders.SideBuy {
		levels = book.GetAskDepth(0)
	} else {
		levels = book.GetBidDepth(0)
	}

	for _, level := range levels {
		if order.Type != orders.OrderTypeMarket {
			if order.Side == orders.SideBuy && level.Price.GreaterThan(order.Price) {
				break
			}
			if order.Side == orders.SideSell && level.Price.LessThan(order.Price) {
				break
			}
		}
		if level.TotalQty.GreaterThanOrEqual(remaining) {
			return true
		}
		remaining = remaining.Sub(level.TotalQty)
	}
	return remaining.LessThanOrEqual(decimal.Zero)
}

// matchLoop runs the price-time priority match loop described in §4.3.
// It returns every trade produced and whether the symbol was halted
// during matching (in which case the caller must stop touching state).
func (e *Engine) matchLoop(order *orders.Order, book *orderbook.OrderBook, pair orders.TradingPair) ([]orders.Trade, bool) {
	var trades []orders.Trade

	var getBestOpposing func() *orderbook.PriceLevel
	if order.Side == orders.SideBuy {
		getBestOpposing = book.GetBestAsk
	} else {
		getBestOpposing = book.GetBestBid
	}

	for order.RemainingQty().IsPositive() {
		level := getBestOpposing()
		if level == nil {
			break
		}

		if order.Type != orders.OrderTypeMarket {
			if order.Side == orders.SideBuy && level.Price.GreaterThan(order.Price) {
				break
			}
			if order.Side == orders.SideSell && level.Price.LessThan(order.Price) {
				break
			}
		}

		node := level.Head()
		if node == nil {
			break
		}
		maker := node.Order

		// Self-trade prevention: cancel the resting maker and continue.
		if maker.UserID == order.UserID {
			e.cancelResting(maker, pair, book)
			continue
		}

		matchQty := decimal.Min(order.RemainingQty(), maker.RemainingQty())
		tradePrice := level.Price // resting-price rule

		var buyerID, sellerID string
		var buyOrderID, sellOrderID uint64
		if order.Side == orders.SideBuy {
			buyerID, sellerID = order.UserID, maker.UserID
			buyOrderID, sellOrderID = order.ID, maker.ID
		} else {
			buyerID, sellerID = maker.UserID, order.UserID
			buyOrderID, sellOrderID = maker.ID, order.ID
		}

		if err := e.ledger.Settle(buyerID, sellerID, pair.Base, pair.Quote, matchQty, tradePrice); err != nil {
			// Should be impossible if freezes were correct; this is an
			// invariant breach. Halt the symbol rather than leave the
			// book inconsistent with the ledger.
			e.halt(order.Symbol, fmt.Sprintf("settle failed: %v", err))
			return trades, true
		}

		trade := orders.Trade{
			ID:          e.nextTradeID(),
			SequenceNum: e.bus.NextSeq(order.Symbol),
			Symbol:      order.Symbol,
			Price:       tradePrice,
			Qty:         matchQty,
			BuyOrderID:  buyOrderID,
			SellOrderID: sellOrderID,
			BuyerID:     buyerID,
			SellerID:    sellerID,
			TakerSide:   order.Side,
			ExecutedAt:  orders.Now(),
		}
		trades = append(trades, trade)
		e.publish(eventbus.KindTradeExecuted, order.Symbol, TradeExecutedPayload{Trade: trade})

		order.FilledQty = order.FilledQty.Add(matchQty)
		maker.FilledQty = maker.FilledQty.Add(matchQty)

		if maker.IsFilled() {
			maker.Status = orders.OrderStatusFilled
			// Remove subtracts RemainingQty, which is now zero, so take the
			// last match off the level's total here.
			level.UpdateQuantity(matchQty.Neg())
			book.CancelOrder(maker.ID)
			e.publish(eventbus.KindOrderFilled, order.Symbol, OrderLifecyclePayload{Order: *maker})
		} else {
			maker.Status = orders.OrderStatusPartiallyFilled
			level.UpdateQuantity(matchQty.Neg())
		}

		if order.RemainingQty().LessThanOrEqual(decimal.Zero) {
			break
		}
	}

	return trades, false
}

// cancelResting cancels a resting maker order as part of self-trade
// prevention, unfreezing its remaining frozen amount.
func (e *Engine) cancelResting(maker *orders.Order, pair orders.TradingPair, book *orderbook.OrderBook) {
	book.CancelOrder(maker.ID)
	maker.Status = orders.OrderStatusCanceled

	var currency string
	var amount decimal.Decimal
	if maker.Side == orders.SideBuy {
		currency = pair.Quote
		amount = maker.RemainingQty().Mul(maker.Price)
	} else {
		currency = pair.Base
		amount = maker.RemainingQty()
	}
	e.ledger.Unfreeze(maker.UserID, currency, amount)
	e.publish(eventbus.KindOrderCanceled, maker.Symbol, OrderLifecyclePayload{
		Order:  *maker,
		Reason: orders.RejectValidation,
		Detail: "self-trade prevention: maker canceled",
	})
}

// CancelOrder cancels an existing order: locates it in the book; if not
// present or owned by a different user, NotFound; if terminal,
// AlreadyTerminal; else removes it, unfreezes the remainder, and emits
// OrderCanceled and OrderBookChanged.
func (e *Engine) CancelOrder(symbol, userID string, orderID uint64) (*orders.Order, error) {
	e.mu.RLock()
	book := e.orderBooks[symbol]
	pair := e.pairs[symbol]
	e.mu.RUnlock()

	if book == nil {
		return nil, fmt.Errorf("%w: unknown symbol %s", orders.ErrNotFound, symbol)
	}

	existing := book.GetOrder(orderID)
	if existing == nil {
		return nil, fmt.Errorf("%w: order %d", orders.ErrNotFound, orderID)
	}
	if existing.UserID != userID {
		return nil, fmt.Errorf("%w: order %d", orders.ErrNotFound, orderID)
	}
	if existing.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: order %d", orders.ErrAlreadyTerminal, orderID)
	}

	order := book.CancelOrder(orderID)
	if order == nil {
		return nil, fmt.Errorf("%w: order %d", orders.ErrAlreadyTerminal, orderID)
	}
	order.Status = orders.OrderStatusCanceled

	var currency string
	var amount decimal.Decimal
	if order.Side == orders.SideBuy {
		currency = pair.Quote
		amount = order.RemainingQty().Mul(order.Price)
	} else {
		currency = pair.Base
		amount = order.RemainingQty()
	}
	e.ledger.Unfreeze(order.UserID, currency, amount)

	e.publish(eventbus.KindOrderCanceled, symbol, OrderLifecyclePayload{Order: *order})
	e.publish(eventbus.KindOrderBookChanged, symbol, OrderBookChangedPayload{Symbol: symbol})

	return order, nil
}

// GetOrder retrieves an order by symbol and ID.
func (e *Engine) GetOrder(symbol string, orderID uint64) *orders.Order {
	e.mu.RLock()
	book := e.orderBooks[symbol]
	e.mu.RUnlock()
	if book == nil {
		return nil
	}
	return book.GetOrder(orderID)
}
