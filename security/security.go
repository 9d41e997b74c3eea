// Package security holds the read-only, externally-updated instrument
// bundle the core observes (spec.md §3 "Security") and the registry
// interface collaborators (PairManager.AddPair, the portfolio router) use
// to validate and scope symbols.
package security

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/currency"
	"github.com/thrasher-corp/gridarb/symbol"
)

// Properties holds exchange-imposed trading constraints for a symbol.
type Properties struct {
	LotSize            decimal.Decimal
	ContractMultiplier decimal.Decimal
}

// Security is a read-only bundle of the live market state and static
// properties of one symbol. It is externally updated (by market-data
// ingestion, out of this core's scope per spec.md §1) and observed by the
// core through Snapshot.
type Security struct {
	mu             sync.RWMutex
	symbol         symbol.Symbol
	bid, ask, last decimal.Decimal
	properties     Properties
	baseCurrency   currency.Code
	quoteCurrency  currency.Code
}

// New constructs a Security for the given symbol.
func New(sym symbol.Symbol, base, quote currency.Code, props Properties) *Security {
	return &Security{symbol: sym, properties: props, baseCurrency: base, quoteCurrency: quote}
}

// Snapshot is an immutable, consistent read of a Security's live fields.
type Snapshot struct {
	Symbol        symbol.Symbol
	Bid, Ask, Last decimal.Decimal
	Properties    Properties
	BaseCurrency  currency.Code
	QuoteCurrency currency.Code
}

// Snapshot returns a consistent copy of the Security's current state.
func (s *Security) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Symbol:        s.symbol,
		Bid:           s.bid,
		Ask:           s.ask,
		Last:          s.last,
		Properties:    s.properties,
		BaseCurrency:  s.baseCurrency,
		QuoteCurrency: s.quoteCurrency,
	}
}

// UpdateQuote atomically refreshes bid/ask/last, as market-data ingestion
// would on every tick.
func (s *Security) UpdateQuote(bid, ask, last decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bid, s.ask, s.last = bid, ask, last
}

// Symbol returns the security's identity.
func (s *Security) Symbol() symbol.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbol
}

// Registry resolves a Symbol to its Security, letting collaborators (grid
// pair creation, order routing) validate that a symbol is known before
// acting on it.
type Registry interface {
	Get(sym symbol.Symbol) (*Security, bool)
}

// MapRegistry is a simple in-memory Registry, suitable as the collaborating
// registry in tests and as a sub-account's symbol-scoped view
// (spec.md §4.7: "each sub-account holds only the securities routed to it").
type MapRegistry struct {
	mu      sync.RWMutex
	entries map[string]*Security
}

// NewMapRegistry constructs an empty registry.
func NewMapRegistry() *MapRegistry {
	return &MapRegistry{entries: make(map[string]*Security)}
}

// Register adds or replaces the Security for its symbol.
func (r *MapRegistry) Register(sec *Security) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[sec.Symbol().String()] = sec
}

// Get implements Registry.
func (r *MapRegistry) Get(sym symbol.Symbol) (*Security, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sec, ok := r.entries[sym.String()]
	return sec, ok
}

// All returns every registered Security.
func (r *MapRegistry) All() []*Security {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Security, 0, len(r.entries))
	for _, s := range r.entries {
		out = append(out, s)
	}
	return out
}
