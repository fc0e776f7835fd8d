package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rishav/order-matching-engine/internal/orders"
)

func newOrder(id uint64, side orders.Side, price, qty string) *orders.Order {
	return &orders.Order{
		ID:     id,
		Symbol: "BTC-USD",
		Side:   side,
		Price:  decimal.RequireFromString(price),
		Qty:    decimal.RequireFromString(qty),
	}
}

func TestBestBidAskTracksInsertOrder(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	ob.AddOrder(newOrder(1, orders.SideBuy, "100", "1"))
	ob.AddOrder(newOrder(2, orders.SideBuy, "102", "1"))
	ob.AddOrder(newOrder(3, orders.SideBuy, "101", "1"))

	if !ob.GetBestBid().Price.Equal(decimal.NewFromInt(102)) {
		t.Errorf("expected best bid 102, got %s", ob.GetBestBid().Price)
	}

	ob.AddOrder(newOrder(4, orders.SideSell, "110", "1"))
	ob.AddOrder(newOrder(5, orders.SideSell, "108", "1"))

	if !ob.GetBestAsk().Price.Equal(decimal.NewFromInt(108)) {
		t.Errorf("expected best ask 108, got %s", ob.GetBestAsk().Price)
	}
}

func TestFIFOWithinPriceLevel(t *testing.T) {
	ob := NewOrderBook("BTC-USD")

	ob.AddOrder(newOrder(1, orders.SideBuy, "100", "1"))
	ob.AddOrder(newOrder(2, orders.SideBuy, "100", "1"))
	ob.AddOrder(newOrder(3, orders.SideBuy, "100", "1"))

	level := ob.GetBestBid()
	head := level.Head()
	if head.Order.ID != 1 {
		t.Errorf("expected order 1 first in FIFO queue, got %d", head.Order.ID)
	}
	if head.Next().Order.ID != 2 {
		t.Errorf("expected order 2 second in FIFO queue, got %d", head.Next().Order.ID)
	}
}

func TestCancelOrderRemovesEmptyLevel(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	ob.AddOrder(newOrder(1, orders.SideBuy, "100", "1"))

	canceled := ob.CancelOrder(1)
	if canceled == nil || canceled.ID != 1 {
		t.Fatal("expected order 1 to be returned on cancel")
	}
	if ob.GetBestBid() != nil {
		t.Error("expected bid side empty after canceling its only order")
	}
	if ob.GetOrder(1) != nil {
		t.Error("expected canceled order no longer retrievable")
	}
}

func TestCancelUnknownOrderReturnsNil(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	if ob.CancelOrder(999) != nil {
		t.Error("expected nil when canceling an order that was never added")
	}
}

func TestGetBidDepthRespectsLevelLimit(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	for i, price := range []string{"100", "99", "98", "97"} {
		ob.AddOrder(newOrder(uint64(i+1), orders.SideBuy, price, "1"))
	}

	depth := ob.GetBidDepth(2)
	if len(depth) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(depth))
	}
	if !depth[0].Price.Equal(decimal.NewFromInt(100)) || !depth[1].Price.Equal(decimal.NewFromInt(99)) {
		t.Errorf("expected top 2 bid levels in descending order, got %s, %s", depth[0].Price, depth[1].Price)
	}
}

func TestMidPriceAndSpread(t *testing.T) {
	ob := NewOrderBook("BTC-USD")
	if !ob.GetSpread().IsZero() || !ob.GetMidPrice().IsZero() {
		t.Error("expected zero spread/mid on an empty book")
	}

	ob.AddOrder(newOrder(1, orders.SideBuy, "100", "1"))
	ob.AddOrder(newOrder(2, orders.SideSell, "102", "1"))

	if !ob.GetSpread().Equal(decimal.NewFromInt(2)) {
		t.Errorf("expected spread 2, got %s", ob.GetSpread())
	}
	if !ob.GetMidPrice().Equal(decimal.NewFromInt(101)) {
		t.Errorf("expected mid price 101, got %s", ob.GetMidPrice())
	}
}
