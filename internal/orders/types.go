// Package orders defines the core order, trade, and trading-pair types
// shared across the matching engine, order book, ledger, and the rest of
// the venue.
//
// Key Design Decisions:
//
// 1. Exact Arithmetic: Prices and quantities are shopspring/decimal values,
//    not floats or hardcoded fixed-point cents. Tick size (the smallest
//    representable price increment) and lot size are per-symbol runtime
//    parameters carried on TradingPair, not a global assumption baked into
//    the type.
//
// 2. Sequence Numbers: Every order receives a per-symbol, monotonically
//    increasing sequence number assigned when it enters the matching
//    engine. This enables deterministic replay, fair-ordering proofs, and
//    gap detection.
//
// 3. Time Representation: Timestamps use nanoseconds since Unix epoch
//    (int64) for high precision without carrying a time.Time through the
//    hot path.
package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the side of an order (buy or sell).
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType represents the type of order and its execution semantics.
type OrderType int

const (
	// OrderTypeLimit rests in the book until filled or canceled. Only
	// executes at the specified price or better.
	OrderTypeLimit OrderType = iota

	// OrderTypeMarket executes immediately at the best available price.
	// No price protection - will fill at whatever price is available.
	OrderTypeMarket

	// OrderTypeIOC (Immediate-or-Cancel) executes immediately for whatever
	// quantity is available, then cancels any remaining quantity. Not
	// named by the venue's core order types but carried over from the
	// source system as a variant of Limit with an implicit cancel.
	OrderTypeIOC

	// OrderTypeFOK (Fill-or-Kill) must be filled entirely or not at all.
	// If the full quantity cannot be matched immediately, the entire
	// order is rejected. No partial fills allowed.
	OrderTypeFOK
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeIOC:
		return "IOC"
	case OrderTypeFOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus represents the current state of an order.
type OrderStatus int

const (
	// OrderStatusPending - order has been accepted but not yet processed
	// by the matching engine.
	OrderStatusPending OrderStatus = iota

	// OrderStatusActive - order is resting on the book, unfilled.
	OrderStatusActive

	// OrderStatusPartiallyFilled - order has been partially executed and
	// the remainder is still resting.
	OrderStatusPartiallyFilled

	// OrderStatusFilled - order has been completely filled.
	OrderStatusFilled

	// OrderStatusCanceled - order was canceled, by the user or by the
	// engine (self-trade prevention, Market/IOC residual). Halting a
	// symbol does not cancel its orders.
	OrderStatusCanceled

	// OrderStatusRejected - order was rejected before entering the book
	// (validation or risk check failure).
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "PENDING"
	case OrderStatusActive:
		return "ACTIVE"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCanceled:
		return "CANCELED"
	case OrderStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the order can no longer be matched or
// canceled.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFilled || s == OrderStatusCanceled || s == OrderStatusRejected
}

// TradingPair describes a tradable symbol and the precision rules that
// apply to it: the smallest price increment (PriceTick), the smallest
// quantity increment (QtyTick), and the admissible order size range.
type TradingPair struct {
	Symbol    string
	Base      string
	Quote     string
	PriceTick decimal.Decimal
	QtyTick   decimal.Decimal
	MinQty    decimal.Decimal
	MaxQty    decimal.Decimal
	Active    bool
}

// RoundPrice rounds price to the nearest multiple of PriceTick (halves
// away from zero).
func (p TradingPair) RoundPrice(price decimal.Decimal) decimal.Decimal {
	return roundToTick(price, p.PriceTick)
}

// RoundQty rounds qty to the nearest multiple of QtyTick (halves away
// from zero).
func (p TradingPair) RoundQty(qty decimal.Decimal) decimal.Decimal {
	return roundToTick(qty, p.QtyTick)
}

func roundToTick(value, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return value
	}
	return value.DivRound(tick, 0).Mul(tick)
}

// Order represents a single order in the matching engine.
type Order struct {
	// ID is the unique identifier for this order, assigned by the engine.
	ID uint64

	// SequenceNum is the per-symbol sequence number assigned when the
	// order enters the matching engine. Used for deterministic replay.
	SequenceNum uint64

	// Price is ignored for market orders.
	Price decimal.Decimal

	// Qty is the total quantity requested.
	Qty decimal.Decimal

	// FilledQty is the quantity that has been executed so far.
	FilledQty decimal.Decimal

	// Timestamp is the time the order was received, in nanoseconds since
	// epoch.
	Timestamp int64

	// Symbol is the trading pair symbol (e.g. "BTC-USD").
	Symbol string

	// UserID identifies the account that placed this order.
	UserID string

	// ClientOrderID is an optional client-provided identifier.
	ClientOrderID string

	Side   Side
	Type   OrderType
	Status OrderStatus
}

// RemainingQty returns the unfilled quantity of the order.
func (o *Order) RemainingQty() decimal.Decimal {
	return o.Qty.Sub(o.FilledQty)
}

// IsFilled returns true if the order has been completely filled.
func (o *Order) IsFilled() bool {
	return o.FilledQty.GreaterThanOrEqual(o.Qty)
}

// IsActive returns true if the order can still be matched against.
func (o *Order) IsActive() bool {
	return o.Status == OrderStatusActive || o.Status == OrderStatusPartiallyFilled || o.Status == OrderStatusPending
}

// String returns a human-readable representation of the order.
func (o *Order) String() string {
	return fmt.Sprintf("Order{ID:%d, %s %s %s@%s, Filled:%s, Status:%s}",
		o.ID, o.Side, o.Symbol, o.Qty, o.Price, o.FilledQty, o.Status)
}

// RejectReason is a closed set of reasons an order can be rejected
// before it enters the book.
type RejectReason string

const (
	RejectNone              RejectReason = ""
	RejectValidation        RejectReason = "VALIDATION"
	RejectInsufficientFunds RejectReason = "INSUFFICIENT_FUNDS"
	RejectNoLiquidity       RejectReason = "NO_LIQUIDITY"
	RejectSymbolHalted      RejectReason = "SYMBOL_HALTED"
)

// Trade represents a single execution between a resting (maker) order
// and an incoming (taker) order. It merges what some matching engines
// split into a maker-side "Fill" and a reporting-side "Trade" into one
// entity, since the venue's data model defines a single Trade record.
type Trade struct {
	// ID is the unique identifier for this execution.
	ID uint64

	// SequenceNum is the per-symbol sequence number of this trade.
	SequenceNum uint64

	Symbol string

	// Price is always the maker's resting price (price improvement for
	// the taker).
	Price decimal.Decimal
	Qty   decimal.Decimal

	BuyOrderID  uint64
	SellOrderID uint64
	BuyerID     string
	SellerID    string

	// TakerSide indicates whether the taker was buying or selling.
	TakerSide Side

	ExecutedAt int64
}

// String returns a human-readable representation of the trade.
func (t *Trade) String() string {
	return fmt.Sprintf("Trade{ID:%d, %s %s@%s, Buy:%d, Sell:%d}",
		t.ID, t.Symbol, t.Qty, t.Price, t.BuyOrderID, t.SellOrderID)
}

// ExecutionResult contains the outcome of processing an order through
// the matching engine.
type ExecutionResult struct {
	// Order is the processed order with updated status and filled
	// quantity.
	Order *Order

	// Trades contains every execution that occurred while processing
	// this order.
	Trades []Trade

	// Accepted is false when the order was rejected (validation, funds,
	// liquidity, halted symbol, or a FOK that could not fill) and true
	// otherwise, including Market/IOC orders whose residual was canceled.
	Accepted bool

	RejectReason RejectReason
	RejectDetail string

	// RestingQty is the quantity that was left resting on the book
	// after matching (zero for market/IOC/FOK orders and fully filled
	// limit orders).
	RestingQty decimal.Decimal
}

// Now returns the current time in nanoseconds since epoch.
func Now() int64 {
	return time.Now().UnixNano()
}
