package config

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rishav/order-matching-engine/internal/orders"
	"github.com/rishav/order-matching-engine/internal/risk"
)

// TradingPair converts this symbol's string-encoded tick/lot sizes into an
// orders.TradingPair.
func (s SymbolConfig) TradingPair() (orders.TradingPair, error) {
	priceTick, err := decimal.NewFromString(s.PriceTick)
	if err != nil {
		return orders.TradingPair{}, fmt.Errorf("config: symbol %s: price_tick: %w", s.Symbol, err)
	}
	qtyTick, err := decimal.NewFromString(s.QtyTick)
	if err != nil {
		return orders.TradingPair{}, fmt.Errorf("config: symbol %s: qty_tick: %w", s.Symbol, err)
	}
	minQty, err := decimal.NewFromString(s.MinQty)
	if err != nil {
		return orders.TradingPair{}, fmt.Errorf("config: symbol %s: min_qty: %w", s.Symbol, err)
	}
	maxQty, err := decimal.NewFromString(s.MaxQty)
	if err != nil {
		return orders.TradingPair{}, fmt.Errorf("config: symbol %s: max_qty: %w", s.Symbol, err)
	}
	return orders.TradingPair{
		Symbol:    s.Symbol,
		Base:      s.Base,
		Quote:     s.Quote,
		PriceTick: priceTick,
		QtyTick:   qtyTick,
		MinQty:    minQty,
		MaxQty:    maxQty,
		Active:    true,
	}, nil
}

// RiskConfig converts the string-encoded risk limits into risk.Config.
func (r RiskConfig) RiskConfig() (risk.Config, error) {
	maxOrderSize, err := decimal.NewFromString(r.MaxOrderSize)
	if err != nil {
		return risk.Config{}, fmt.Errorf("config: risk.max_order_size: %w", err)
	}
	maxOrderValue, err := decimal.NewFromString(r.MaxOrderValue)
	if err != nil {
		return risk.Config{}, fmt.Errorf("config: risk.max_order_value: %w", err)
	}
	maxPositionSize, err := decimal.NewFromString(r.MaxPositionSize)
	if err != nil {
		return risk.Config{}, fmt.Errorf("config: risk.max_position_size: %w", err)
	}
	maxDailyVolume, err := decimal.NewFromString(r.MaxDailyVolume)
	if err != nil {
		return risk.Config{}, fmt.Errorf("config: risk.max_daily_volume: %w", err)
	}
	priceBandPercent, err := decimal.NewFromString(r.PriceBandPercent)
	if err != nil {
		return risk.Config{}, fmt.Errorf("config: risk.price_band_percent: %w", err)
	}
	return risk.Config{
		MaxOrderSize:     maxOrderSize,
		MaxOrderValue:    maxOrderValue,
		MaxPositionSize:  maxPositionSize,
		MaxDailyVolume:   maxDailyVolume,
		PriceBandPercent: priceBandPercent,
		SymbolLimits:     make(map[string]decimal.Decimal),
	}, nil
}
