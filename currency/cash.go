package currency

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// Cash tracks a single currency's balance within an account. Amount may be
// negative to express borrowing (spec.md §3). ConversionRate converts Amount
// into the account currency; ConversionLink optionally names the symbol the
// rate is sourced from (e.g. a "BTCUSDT" quote feed), mirroring the
// teacher's pattern of an account holding carrying its own pricing link
// rather than a global lookup table.
type Cash struct {
	Code           Code
	Amount         decimal.Decimal
	ConversionRate decimal.Decimal
	ConversionLink string
}

// ValueInAccountCurrency converts Amount using ConversionRate.
func (c Cash) ValueInAccountCurrency() decimal.Decimal {
	return c.Amount.Mul(c.ConversionRate)
}

// Borrowed returns max(0, -Amount): the outstanding liability in this
// currency, used by the borrowing-margin calculations in spec.md §4.6.
func (c Cash) Borrowed() decimal.Decimal {
	if c.Amount.IsNegative() {
		return c.Amount.Neg()
	}
	return decimal.Zero
}

// CashBook maps currency code to Cash, with one distinguished account
// currency used as the unit for totals (spec.md §3).
type CashBook struct {
	mu              sync.RWMutex
	entries         map[string]Cash
	accountCurrency Code
}

// NewCashBook constructs an empty book for the given account currency.
func NewCashBook(accountCurrency Code) *CashBook {
	return &CashBook{
		entries:         make(map[string]Cash),
		accountCurrency: accountCurrency,
	}
}

// AccountCurrency returns the book's distinguished unit currency.
func (b *CashBook) AccountCurrency() Code {
	return b.accountCurrency
}

// Set inserts or replaces the Cash entry for its currency.
func (b *CashBook) Set(c Cash) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[c.Code.Upper().String()] = c
}

// Get returns the Cash entry for code, and whether it was present.
func (b *CashBook) Get(code Code) (Cash, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.entries[code.Upper().String()]
	return c, ok
}

// Add increments the Amount of the entry for code, creating it at a 1:1
// conversion rate if absent.
func (b *CashBook) Add(code Code, amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := code.Upper().String()
	c, ok := b.entries[key]
	if !ok {
		c = Cash{Code: code, ConversionRate: decimal.NewFromInt(1)}
	}
	c.Amount = c.Amount.Add(amount)
	b.entries[key] = c
}

// All returns a snapshot copy of every entry, safe to range over without
// holding the book's lock.
func (b *CashBook) All() []Cash {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Cash, 0, len(b.entries))
	for _, c := range b.entries {
		out = append(out, c)
	}
	return out
}

// Clone returns a deep, independent copy of the book.
func (b *CashBook) Clone() *CashBook {
	b.mu.RLock()
	defer b.mu.RUnlock()
	clone := &CashBook{
		entries:         make(map[string]Cash, len(b.entries)),
		accountCurrency: b.accountCurrency,
	}
	for k, v := range b.entries {
		clone.entries[k] = v
	}
	return clone
}

// TotalInAccountCurrency sums every entry's ValueInAccountCurrency.
func (b *CashBook) TotalInAccountCurrency() decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := decimal.Zero
	for _, c := range b.entries {
		total = total.Add(c.ValueInAccountCurrency())
	}
	return total
}

// String satisfies fmt.Stringer for debugging/logging.
func (b *CashBook) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return fmt.Sprintf("CashBook{currency=%s, entries=%d}", b.accountCurrency, len(b.entries))
}
