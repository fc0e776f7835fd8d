// Package ledger implements the asset ledger: per-(user, currency)
// balances with freeze/unfreeze/settle operations under strong per-account
// consistency.
//
// The ledger is the only state shared across symbols. Its operations are
// isolated per account (never behind one global lock, which would
// serialize every symbol's matching engine against every other), and a
// trade spanning two users locks both accounts in a canonical order to
// avoid deadlock.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned by Freeze when the account's available
// balance cannot cover the requested amount.
var ErrInsufficientFunds = errors.New("ledger: insufficient funds")

// Balance holds the available and frozen amounts for one (user, currency)
// pair.
type Balance struct {
	UserID    string
	Currency  string
	Available decimal.Decimal
	Frozen    decimal.Decimal
}

// Total returns Available + Frozen.
func (b Balance) Total() decimal.Decimal {
	return b.Available.Add(b.Frozen)
}

// account is the internal mutable representation; one per (user,
// currency), each guarded by its own mutex so that unrelated accounts
// never contend.
type account struct {
	mu        sync.Mutex
	userID    string
	currency  string
	available decimal.Decimal
	frozen    decimal.Decimal
}

func (a *account) snapshot() Balance {
	return Balance{
		UserID:    a.userID,
		Currency:  a.currency,
		Available: a.available,
		Frozen:    a.frozen,
	}
}

// Ledger is the asset ledger (C1). It tracks balances for every
// (user, currency) pair the venue has ever touched.
type Ledger struct {
	mapMu    sync.RWMutex
	accounts map[string]*account
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		accounts: make(map[string]*account),
	}
}

func key(userID, currency string) string {
	return userID + "\x00" + currency
}

// getOrCreate returns the account for (userID, currency), creating it
// with a zero balance if it does not yet exist. Creation is guarded by
// the map's own lock; once created, an account is never removed, so the
// returned pointer remains valid for the life of the ledger.
func (l *Ledger) getOrCreate(userID, currency string) *account {
	k := key(userID, currency)

	l.mapMu.RLock()
	a, ok := l.accounts[k]
	l.mapMu.RUnlock()
	if ok {
		return a
	}

	l.mapMu.Lock()
	defer l.mapMu.Unlock()
	if a, ok := l.accounts[k]; ok {
		return a
	}
	a = &account{
		userID:    userID,
		currency:  currency,
		available: decimal.Zero,
		frozen:    decimal.Zero,
	}
	l.accounts[k] = a
	return a
}

// Credit adds amount to a user's available balance (deposits, test
// fixtures). It does not fail.
func (l *Ledger) Credit(userID, currency string, amount decimal.Decimal) {
	a := l.getOrCreate(userID, currency)
	a.mu.Lock()
	a.available = a.available.Add(amount)
	a.mu.Unlock()
}

// Freeze moves amount from available to frozen for (userID, currency).
// Fails with ErrInsufficientFunds if available < amount, leaving the
// account unchanged.
func (l *Ledger) Freeze(userID, currency string, amount decimal.Decimal) error {
	a := l.getOrCreate(userID, currency)
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.available.LessThan(amount) {
		return fmt.Errorf("%w: user=%s currency=%s available=%s requested=%s",
			ErrInsufficientFunds, userID, currency, a.available, amount)
	}
	a.available = a.available.Sub(amount)
	a.frozen = a.frozen.Add(amount)
	return nil
}

// Unfreeze reverses a freeze, typically on cancel or residual-unfreeze
// after a market order. The amount is clamped at the account's current
// frozen balance: an unfreeze larger than what is frozen indicates a bug
// in the caller (the ledger does not let it go negative).
func (l *Ledger) Unfreeze(userID, currency string, amount decimal.Decimal) {
	a := l.getOrCreate(userID, currency)
	a.mu.Lock()
	defer a.mu.Unlock()

	if amount.GreaterThan(a.frozen) {
		amount = a.frozen
	}
	a.frozen = a.frozen.Sub(amount)
	a.available = a.available.Add(amount)
}

// lockPair identifies the two accounts Settle must touch for one leg of
// a trade, used to derive the canonical acquisition order.
type lockPair struct {
	userID   string
	currency string
}

// Settle performs the atomic four-leg settlement of one trade: the buyer's
// frozen quote is debited and their available base credited; the seller's
// frozen base is debited and their available quote credited. All four
// legs commit together or (on insufficient frozen balance, which would
// indicate a bug upstream) none do.
func (l *Ledger) Settle(buyerID, sellerID, base, quote string, qty, price decimal.Decimal) error {
	quoteAmount := qty.Mul(price)

	pairs := []lockPair{
		{buyerID, quote},
		{buyerID, base},
		{sellerID, base},
		{sellerID, quote},
	}
	accounts := make([]*account, len(pairs))
	for i, p := range pairs {
		accounts[i] = l.getOrCreate(p.userID, p.currency)
	}

	// Lock in canonical order (ascending user id, then currency) to avoid
	// deadlock against a concurrent settle touching the same accounts in
	// the opposite role (e.g. the same pair trading again with sides
	// reversed).
	order := make([]int, len(accounts))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		ai, aj := accounts[order[i]], accounts[order[j]]
		if ai == aj {
			return false
		}
		if ai.userID != aj.userID {
			return ai.userID < aj.userID
		}
		return ai.currency < aj.currency
	})

	locked := make(map[*account]bool, len(accounts))
	for _, idx := range order {
		a := accounts[idx]
		if locked[a] {
			continue // same account referenced twice (e.g. buyer==seller)
		}
		a.mu.Lock()
		locked[a] = true
	}
	defer func() {
		for a := range locked {
			a.mu.Unlock()
		}
	}()

	buyerQuote := accounts[0]
	buyerBase := accounts[1]
	sellerBase := accounts[2]
	sellerQuote := accounts[3]

	if buyerQuote.frozen.LessThan(quoteAmount) {
		return fmt.Errorf("ledger: settle: buyer %s has insufficient frozen %s (have %s, need %s)",
			buyerID, quote, buyerQuote.frozen, quoteAmount)
	}
	if sellerBase.frozen.LessThan(qty) {
		return fmt.Errorf("ledger: settle: seller %s has insufficient frozen %s (have %s, need %s)",
			sellerID, base, sellerBase.frozen, qty)
	}

	buyerQuote.frozen = buyerQuote.frozen.Sub(quoteAmount)
	buyerBase.available = buyerBase.available.Add(qty)
	sellerBase.frozen = sellerBase.frozen.Sub(qty)
	sellerQuote.available = sellerQuote.available.Add(quoteAmount)

	return nil
}

// Snapshot returns every balance currently held for userID, read-only.
func (l *Ledger) Snapshot(userID string) []Balance {
	l.mapMu.RLock()
	defer l.mapMu.RUnlock()

	var out []Balance
	for _, a := range l.accounts {
		if a.userID != userID {
			continue
		}
		a.mu.Lock()
		out = append(out, a.snapshot())
		a.mu.Unlock()
	}
	return out
}

// BalanceOf returns a single (userID, currency) balance, zero-valued if
// the pair has never been touched.
func (l *Ledger) BalanceOf(userID, currency string) Balance {
	a := l.getOrCreate(userID, currency)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot()
}
