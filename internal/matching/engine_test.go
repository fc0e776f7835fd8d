package matching

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rishav/order-matching-engine/internal/eventbus"
	"github.com/rishav/order-matching-engine/internal/ledger"
	"github.com/rishav/order-matching-engine/internal/orders"
)

func newTestEngine(t *testing.T) (*Engine, *ledger.Ledger) {
	t.Helper()
	l := ledger.New()
	bus := eventbus.New(64)
	e := NewEngine(l, bus)
	e.AddSymbol(orders.TradingPair{
		Symbol:    "BTC-USD",
		Base:      "BTC",
		Quote:     "USD",
		PriceTick: decimal.NewFromFloat(0.01),
		QtyTick:   decimal.NewFromFloat(0.0001),
		MinQty:    decimal.NewFromFloat(0.0001),
		MaxQty:    decimal.NewFromInt(1000),
		Active:    true,
	})
	return e, l
}

func fund(l *ledger.Ledger, userID, currency string, amount int64) {
	l.Credit(userID, currency, decimal.NewFromInt(amount))
}

func limitOrder(userID string, side orders.Side, price, qty string) *orders.Order {
	return &orders.Order{
		Symbol: "BTC-USD",
		UserID: userID,
		Side:   side,
		Type:   orders.OrderTypeLimit,
		Price:  decimal.RequireFromString(price),
		Qty:    decimal.RequireFromString(qty),
	}
}

// TestSingleCross: a resting limit sell crossed entirely by an incoming
// limit buy at the maker's price.
func TestSingleCross(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, "maker", "BTC", 10)
	fund(l, "taker", "USD", 1_000_000)

	maker := limitOrder("maker", orders.SideSell, "65000", "1")
	res := e.PlaceOrder(maker)
	if !res.Accepted || res.RestingQty.IsZero() {
		t.Fatalf("expected maker to rest, got %+v", res)
	}

	taker := limitOrder("taker", orders.SideBuy, "65000", "1")
	res = e.PlaceOrder(taker)
	if !res.Accepted {
		t.Fatalf("expected taker accepted, got %+v", res)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("expected exactly 1 trade, got %d", len(res.Trades))
	}
	if !res.Trades[0].Price.Equal(decimal.RequireFromString("65000")) {
		t.Errorf("trade must execute at maker's resting price, got %s", res.Trades[0].Price)
	}
	if taker.Status != orders.OrderStatusFilled {
		t.Errorf("expected taker filled, got %s", taker.Status)
	}
	if e.GetOrderBook("BTC-USD").GetBestAsk() != nil {
		t.Error("maker should be fully consumed and removed from the book")
	}
}

// TestPartialFillRests: an incoming order larger than the available
// opposing liquidity partially fills then rests the remainder.
func TestPartialFillRests(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, "maker", "BTC", 10)
	fund(l, "taker", "USD", 1_000_000)

	maker := limitOrder("maker", orders.SideSell, "65000", "1")
	e.PlaceOrder(maker)

	taker := limitOrder("taker", orders.SideBuy, "65000", "3")
	res := e.PlaceOrder(taker)

	if len(res.Trades) != 1 || !res.Trades[0].Qty.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected one 1-BTC trade, got %+v", res.Trades)
	}
	if taker.Status != orders.OrderStatusPartiallyFilled {
		t.Errorf("expected taker partially filled, got %s", taker.Status)
	}
	if !res.RestingQty.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected 2 BTC resting, got %s", res.RestingQty)
	}

	book := e.GetOrderBook("BTC-USD")
	if book.GetBestBid() == nil || !book.GetBestBid().TotalQty.Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected 2 BTC resting on the bid side")
	}
}

// TestSelfTradePreventionCancelsMaker: an incoming order that would cross
// against its own user's resting order cancels the maker instead of
// trading with itself.
func TestSelfTradePreventionCancelsMaker(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, "trader1", "BTC", 10)
	fund(l, "trader1", "USD", 1_000_000)

	maker := limitOrder("trader1", orders.SideSell, "65000", "1")
	e.PlaceOrder(maker)

	taker := limitOrder("trader1", orders.SideBuy, "65000", "1")
	res := e.PlaceOrder(taker)

	if len(res.Trades) != 0 {
		t.Fatalf("expected no trades from a self-trade, got %d", len(res.Trades))
	}
	if maker.Status != orders.OrderStatusCanceled {
		t.Errorf("expected resting maker canceled, got %s", maker.Status)
	}
	if taker.Status != orders.OrderStatusActive {
		t.Errorf("expected taker to rest after self-trade prevention, got %s", taker.Status)
	}

	bal := l.BalanceOf("trader1", "BTC")
	if !bal.Available.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected maker's frozen BTC unfrozen back to 10 available, got %s", bal.Available)
	}
}

// TestMarketOrderNoLiquidity: a market order against an empty book is
// rejected with no state change.
func TestMarketOrderNoLiquidity(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, "taker", "USD", 1_000_000)

	order := &orders.Order{
		Symbol: "BTC-USD",
		UserID: "taker",
		Side:   orders.SideBuy,
		Type:   orders.OrderTypeMarket,
		Qty:    decimal.NewFromInt(1),
	}
	res := e.PlaceOrder(order)

	if res.Accepted {
		t.Fatalf("expected market order with no liquidity to be rejected, got %+v", res)
	}
	if res.RejectReason != orders.RejectNoLiquidity {
		t.Errorf("expected RejectNoLiquidity, got %s", res.RejectReason)
	}

	bal := l.BalanceOf("taker", "USD")
	if !bal.Available.Equal(decimal.NewFromInt(1_000_000)) {
		t.Errorf("rejected order must not freeze any funds, got available %s", bal.Available)
	}
}

// TestFOKRejectedWhenCannotFillEntirely verifies the FOK pre-check leaves
// the book and ledger untouched when the order cannot be filled in full.
func TestFOKRejectedWhenCannotFillEntirely(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, "maker", "BTC", 10)
	fund(l, "taker", "USD", 1_000_000)

	maker := limitOrder("maker", orders.SideSell, "65000", "1")
	e.PlaceOrder(maker)

	fok := &orders.Order{
		Symbol: "BTC-USD",
		UserID: "taker",
		Side:   orders.SideBuy,
		Type:   orders.OrderTypeFOK,
		Price:  decimal.RequireFromString("65000"),
		Qty:    decimal.NewFromInt(5),
	}
	res := e.PlaceOrder(fok)

	if res.Accepted {
		t.Fatalf("expected FOK to be rejected when only partial liquidity exists, got %+v", res)
	}
	bal := l.BalanceOf("taker", "USD")
	if !bal.Available.Equal(decimal.NewFromInt(1_000_000)) {
		t.Errorf("FOK rejection must unfreeze the full amount, got available %s", bal.Available)
	}
}

// TestCancelOrderUnfreezesRemainder verifies CancelOrder releases the
// frozen amount proportional to what remains unfilled.
func TestCancelOrderUnfreezesRemainder(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, "trader1", "USD", 1_000_000)

	order := limitOrder("trader1", orders.SideBuy, "65000", "1")
	e.PlaceOrder(order)

	canceled, err := e.CancelOrder("BTC-USD", "trader1", order.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if canceled.Status != orders.OrderStatusCanceled {
		t.Errorf("expected canceled status, got %s", canceled.Status)
	}

	bal := l.BalanceOf("trader1", "USD")
	if !bal.Available.Equal(decimal.NewFromInt(1_000_000)) {
		t.Errorf("expected full unfreeze on cancel, got available %s", bal.Available)
	}
	if !bal.Frozen.IsZero() {
		t.Errorf("expected zero frozen after cancel, got %s", bal.Frozen)
	}
}

// TestCancelOrderWrongUserNotFound verifies ownership is enforced.
func TestCancelOrderWrongUserNotFound(t *testing.T) {
	e, l := newTestEngine(t)
	fund(l, "trader1", "USD", 1_000_000)

	order := limitOrder("trader1", orders.SideBuy, "65000", "1")
	e.PlaceOrder(order)

	_, err := e.CancelOrder("BTC-USD", "trader2", order.ID)
	if err == nil {
		t.Fatal("expected not-found error canceling another user's order")
	}
}
