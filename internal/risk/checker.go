// Package risk implements pre-trade risk checks.
//
// Pre-trade risk checks are critical for:
// 1. Protecting the exchange from bad actors
// 2. Protecting traders from their own mistakes (fat finger errors)
// 3. Ensuring orderly markets
//
// Checks are performed BEFORE the order reaches the matching engine. They
// run ahead of the engine's own validation/freeze phase and never mutate
// order book or ledger state, so they can run concurrently with matching
// on other symbols.
//
// Common Risk Controls:
// - Order size limits (max quantity per order)
// - Order value limits (max quote value per order)
// - Price bands (reject orders too far from market)
// - Position limits (max net quantity held per symbol)
// - Daily volume limits (max quote value traded per day)
package risk

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/rishav/order-matching-engine/internal/orders"
)

// CheckResult contains the result of a risk check.
type CheckResult struct {
	Passed    bool
	Reason    string
	ChecksRun []string
}

// Config configures the risk checker. Zero-valued limits are treated as
// "no limit" for that control.
type Config struct {
	MaxOrderSize     decimal.Decimal
	MaxOrderValue    decimal.Decimal
	MaxPositionSize  decimal.Decimal
	MaxDailyVolume   decimal.Decimal
	PriceBandPercent decimal.Decimal // 0.10 = 10%
	SymbolLimits     map[string]decimal.Decimal
}

// DefaultConfig returns a reasonable default configuration.
func DefaultConfig() Config {
	return Config{
		MaxOrderSize:     decimal.NewFromInt(100000),
		MaxOrderValue:    decimal.NewFromInt(10000000),
		MaxPositionSize:  decimal.NewFromInt(1000000),
		MaxDailyVolume:   decimal.NewFromInt(100000000),
		PriceBandPercent: decimal.NewFromFloat(0.10),
		SymbolLimits:     make(map[string]decimal.Decimal),
	}
}

// Checker performs pre-trade risk checks.
type Checker struct {
	config          Config
	positions       map[string]map[string]decimal.Decimal // user -> symbol -> position
	dailyVolume     map[string]decimal.Decimal             // user -> daily quote volume
	referencePrices map[string]decimal.Decimal             // symbol -> last known price
	mu              sync.RWMutex
}

// NewChecker creates a new risk checker.
func NewChecker(config Config) *Checker {
	return &Checker{
		config:          config,
		positions:       make(map[string]map[string]decimal.Decimal),
		dailyVolume:     make(map[string]decimal.Decimal),
		referencePrices: make(map[string]decimal.Decimal),
	}
}

// Check performs all risk checks on an order. Returns immediately on the
// first failure.
func (c *Checker) Check(order *orders.Order) CheckResult {
	result := CheckResult{Passed: true, ChecksRun: make([]string, 0)}

	result.ChecksRun = append(result.ChecksRun, "order_size")
	if c.config.MaxOrderSize.IsPositive() && order.Qty.GreaterThan(c.config.MaxOrderSize) {
		return CheckResult{
			Passed:    false,
			Reason:    fmt.Sprintf("order size %s exceeds max %s", order.Qty, c.config.MaxOrderSize),
			ChecksRun: result.ChecksRun,
		}
	}

	if order.Price.IsPositive() {
		result.ChecksRun = append(result.ChecksRun, "order_value")
		orderValue := order.Price.Mul(order.Qty)
		if c.config.MaxOrderValue.IsPositive() && orderValue.GreaterThan(c.config.MaxOrderValue) {
			return CheckResult{
				Passed:    false,
				Reason:    fmt.Sprintf("order value %s exceeds max %s", orderValue, c.config.MaxOrderValue),
				ChecksRun: result.ChecksRun,
			}
		}
	}

	if order.Type == orders.OrderTypeLimit && order.Price.IsPositive() {
		result.ChecksRun = append(result.ChecksRun, "price_band")
		if !c.checkPriceBand(order) {
			refPrice := c.GetReferencePrice(order.Symbol)
			return CheckResult{
				Passed: false,
				Reason: fmt.Sprintf("price %s outside band (ref: %s, band: %s%%)",
					order.Price, refPrice, c.config.PriceBandPercent.Mul(decimal.NewFromInt(100))),
				ChecksRun: result.ChecksRun,
			}
		}
	}

	result.ChecksRun = append(result.ChecksRun, "position_limit")
	if !c.checkPositionLimit(order) {
		currentPos := c.GetPosition(order.UserID, order.Symbol)
		return CheckResult{
			Passed:    false,
			Reason:    fmt.Sprintf("would exceed position limit (current: %s, order: %s)", currentPos, order.Qty),
			ChecksRun: result.ChecksRun,
		}
	}

	if order.Price.IsPositive() {
		result.ChecksRun = append(result.ChecksRun, "daily_volume")
		orderValue := order.Price.Mul(order.Qty)
		if !c.checkDailyVolume(order.UserID, orderValue) {
			currentVol := c.GetDailyVolume(order.UserID)
			return CheckResult{
				Passed:    false,
				Reason:    fmt.Sprintf("would exceed daily volume limit (current: %s, order: %s, max: %s)", currentVol, orderValue, c.config.MaxDailyVolume),
				ChecksRun: result.ChecksRun,
			}
		}
	}

	return result
}

// checkPriceBand verifies the order price is within acceptable range of
// the last known reference price for the symbol.
func (c *Checker) checkPriceBand(order *orders.Order) bool {
	c.mu.RLock()
	refPrice, exists := c.referencePrices[order.Symbol]
	c.mu.RUnlock()

	if !exists || refPrice.IsZero() || !c.config.PriceBandPercent.IsPositive() {
		return true
	}

	band := refPrice.Mul(c.config.PriceBandPercent)
	low := refPrice.Sub(band)
	high := refPrice.Add(band)
	return order.Price.GreaterThanOrEqual(low) && order.Price.LessThanOrEqual(high)
}

// checkPositionLimit verifies the order won't push the user's net
// position in this symbol beyond the configured limit.
func (c *Checker) checkPositionLimit(order *orders.Order) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	current := decimal.Zero
	if acct, exists := c.positions[order.UserID]; exists {
		current = acct[order.Symbol]
	}

	var projected decimal.Decimal
	if order.Side == orders.SideBuy {
		projected = current.Add(order.Qty)
	} else {
		projected = current.Sub(order.Qty)
	}

	limit := c.config.MaxPositionSize
	if symLimit, exists := c.config.SymbolLimits[order.Symbol]; exists {
		limit = symLimit
	}
	if !limit.IsPositive() {
		return true
	}

	return projected.Abs().LessThanOrEqual(limit)
}

// checkDailyVolume verifies the order won't exceed the user's daily
// traded quote volume.
func (c *Checker) checkDailyVolume(userID string, orderValue decimal.Decimal) bool {
	c.mu.RLock()
	current := c.dailyVolume[userID]
	c.mu.RUnlock()

	if !c.config.MaxDailyVolume.IsPositive() {
		return true
	}
	return current.Add(orderValue).LessThanOrEqual(c.config.MaxDailyVolume)
}

// UpdatePosition updates the position for a user after a fill.
func (c *Checker) UpdatePosition(userID, symbol string, side orders.Side, qty decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.positions[userID] == nil {
		c.positions[userID] = make(map[string]decimal.Decimal)
	}
	if side == orders.SideBuy {
		c.positions[userID][symbol] = c.positions[userID][symbol].Add(qty)
	} else {
		c.positions[userID][symbol] = c.positions[userID][symbol].Sub(qty)
	}
}

// UpdateDailyVolume updates the daily traded quote volume for a user.
func (c *Checker) UpdateDailyVolume(userID string, value decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyVolume[userID] = c.dailyVolume[userID].Add(value)
}

// SetReferencePrice sets the reference price used by the price-band
// check. The checker never sets it itself; until it is set for a symbol,
// every price passes that symbol's band check.
func (c *Checker) SetReferencePrice(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.referencePrices[symbol] = price
}

// GetReferencePrice returns the current reference price for a symbol.
func (c *Checker) GetReferencePrice(symbol string) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.referencePrices[symbol]
}

// GetPosition returns the current position for a user and symbol.
func (c *Checker) GetPosition(userID, symbol string) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if acct, exists := c.positions[userID]; exists {
		return acct[symbol]
	}
	return decimal.Zero
}

// GetDailyVolume returns the current daily traded quote volume for a user.
func (c *Checker) GetDailyVolume(userID string) decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dailyVolume[userID]
}

// ResetDailyVolume resets daily volume counters. The checker does not
// call it on any schedule of its own.
func (c *Checker) ResetDailyVolume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dailyVolume = make(map[string]decimal.Decimal)
}
