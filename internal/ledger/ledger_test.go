package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCreditAndFreeze(t *testing.T) {
	l := New()
	l.Credit("alice", "USD", decimal.NewFromInt(1000))

	if err := l.Freeze("alice", "USD", decimal.NewFromInt(600)); err != nil {
		t.Fatalf("freeze failed: %v", err)
	}

	bal := l.BalanceOf("alice", "USD")
	if !bal.Available.Equal(decimal.NewFromInt(400)) {
		t.Errorf("expected available 400, got %s", bal.Available)
	}
	if !bal.Frozen.Equal(decimal.NewFromInt(600)) {
		t.Errorf("expected frozen 600, got %s", bal.Frozen)
	}
}

func TestFreezeInsufficientFunds(t *testing.T) {
	l := New()
	l.Credit("alice", "USD", decimal.NewFromInt(100))

	err := l.Freeze("alice", "USD", decimal.NewFromInt(200))
	if err == nil {
		t.Fatal("expected insufficient funds error")
	}

	bal := l.BalanceOf("alice", "USD")
	if !bal.Available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("freeze failure must leave balance unchanged, got available %s", bal.Available)
	}
}

func TestUnfreezeClampsToFrozen(t *testing.T) {
	l := New()
	l.Credit("alice", "USD", decimal.NewFromInt(100))
	l.Freeze("alice", "USD", decimal.NewFromInt(50))

	l.Unfreeze("alice", "USD", decimal.NewFromInt(1000))

	bal := l.BalanceOf("alice", "USD")
	if !bal.Frozen.IsZero() {
		t.Errorf("expected frozen 0, got %s", bal.Frozen)
	}
	if !bal.Available.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected available 100, got %s", bal.Available)
	}
}

func TestSettleMovesAllFourLegs(t *testing.T) {
	l := New()
	l.Credit("buyer", "USD", decimal.NewFromInt(100000))
	l.Credit("seller", "BTC", decimal.NewFromInt(10))

	if err := l.Freeze("buyer", "USD", decimal.NewFromInt(65000)); err != nil {
		t.Fatalf("freeze buyer quote: %v", err)
	}
	if err := l.Freeze("seller", "BTC", decimal.NewFromInt(1)); err != nil {
		t.Fatalf("freeze seller base: %v", err)
	}

	qty := decimal.NewFromInt(1)
	price := decimal.NewFromInt(65000)
	if err := l.Settle("buyer", "seller", "BTC", "USD", qty, price); err != nil {
		t.Fatalf("settle: %v", err)
	}

	buyerBTC := l.BalanceOf("buyer", "BTC")
	if !buyerBTC.Available.Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected buyer to receive 1 BTC, got %s", buyerBTC.Available)
	}
	buyerUSD := l.BalanceOf("buyer", "USD")
	if !buyerUSD.Frozen.IsZero() {
		t.Errorf("expected buyer frozen USD drained to 0, got %s", buyerUSD.Frozen)
	}

	sellerUSD := l.BalanceOf("seller", "USD")
	if !sellerUSD.Available.Equal(decimal.NewFromInt(65000)) {
		t.Errorf("expected seller to receive 65000 USD, got %s", sellerUSD.Available)
	}
	sellerBTC := l.BalanceOf("seller", "BTC")
	if !sellerBTC.Frozen.IsZero() {
		t.Errorf("expected seller frozen BTC drained to 0, got %s", sellerBTC.Frozen)
	}
}

func TestSettleInsufficientFrozenLeavesStateUnchanged(t *testing.T) {
	l := New()
	l.Credit("buyer", "USD", decimal.NewFromInt(100))
	l.Freeze("buyer", "USD", decimal.NewFromInt(50))
	l.Credit("seller", "BTC", decimal.NewFromInt(10))
	l.Freeze("seller", "BTC", decimal.NewFromInt(1))

	err := l.Settle("buyer", "seller", "BTC", "USD", decimal.NewFromInt(1), decimal.NewFromInt(65000))
	if err == nil {
		t.Fatal("expected settle to fail: buyer has insufficient frozen quote")
	}

	buyerUSD := l.BalanceOf("buyer", "USD")
	if !buyerUSD.Frozen.Equal(decimal.NewFromInt(50)) {
		t.Errorf("failed settle must not touch balances, got frozen %s", buyerUSD.Frozen)
	}
}
