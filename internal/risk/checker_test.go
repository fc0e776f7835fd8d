package risk

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rishav/order-matching-engine/internal/orders"
)

func testOrder(side orders.Side, price, qty string) *orders.Order {
	return &orders.Order{
		Symbol: "BTC-USD",
		UserID: "trader1",
		Side:   side,
		Type:   orders.OrderTypeLimit,
		Price:  decimal.RequireFromString(price),
		Qty:    decimal.RequireFromString(qty),
	}
}

func TestCheckRejectsOversizedOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxOrderSize = decimal.NewFromInt(10)
	c := NewChecker(cfg)

	res := c.Check(testOrder(orders.SideBuy, "65000", "11"))
	if res.Passed {
		t.Fatal("expected order size check to fail")
	}
}

func TestCheckRejectsOutsidePriceBand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PriceBandPercent = decimal.NewFromFloat(0.05)
	c := NewChecker(cfg)
	c.SetReferencePrice("BTC-USD", decimal.NewFromInt(65000))

	res := c.Check(testOrder(orders.SideBuy, "80000", "1"))
	if res.Passed {
		t.Fatal("expected price band check to fail for a price far from reference")
	}
}

func TestCheckAllowsWithinPriceBandBeforeAnyReference(t *testing.T) {
	c := NewChecker(DefaultConfig())
	res := c.Check(testOrder(orders.SideBuy, "1000000", "1"))
	if !res.Passed {
		t.Errorf("expected price band check to pass with no reference price yet, got %s", res.Reason)
	}
}

func TestCheckRejectsPositionLimitBreach(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSize = decimal.NewFromInt(5)
	c := NewChecker(cfg)
	c.UpdatePosition("trader1", "BTC-USD", orders.SideBuy, decimal.NewFromInt(4))

	res := c.Check(testOrder(orders.SideBuy, "65000", "2"))
	if res.Passed {
		t.Fatal("expected position limit check to fail")
	}
}

func TestCheckRejectsDailyVolumeBreach(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDailyVolume = decimal.NewFromInt(100000)
	c := NewChecker(cfg)
	c.UpdateDailyVolume("trader1", decimal.NewFromInt(90000))

	res := c.Check(testOrder(orders.SideBuy, "65000", "1"))
	if res.Passed {
		t.Fatal("expected daily volume check to fail")
	}
}

func TestCheckPassesWithinAllLimits(t *testing.T) {
	c := NewChecker(DefaultConfig())
	res := c.Check(testOrder(orders.SideBuy, "65000", "1"))
	if !res.Passed {
		t.Errorf("expected check to pass, got %s", res.Reason)
	}
}
