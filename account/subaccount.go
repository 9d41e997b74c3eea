package account

import (
	"sync"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/currency"
	"github.com/thrasher-corp/gridarb/margin"
	"github.com/thrasher-corp/gridarb/order"
	"github.com/thrasher-corp/gridarb/security"
	"github.com/thrasher-corp/gridarb/symbol"
)

// position is one held quantity line recorded against a symbol, paired with
// the security snapshot used to price it.
type position struct {
	security security.Snapshot
	quantity decimal.Decimal
}

// SubAccount wraps a cash-book, a security registry scoped to the symbols
// routed to it, and a recorded-position book, satisfying margin.Portfolio so
// an Engine can evaluate its buying power in isolation (spec.md §4.7 "A
// SubAccount wraps a cash-book, a security registry scoped to routed
// symbols, a transaction manager, and a buying-power evaluator").
//
// ID is a process-local instance identifier minted at construction, used
// only for log correlation across a host's multiple sub-accounts sharing a
// name (e.g. after a restart); it carries no meaning to the margin/routing
// logic itself.
type SubAccount struct {
	Name string
	ID   uuid.UUID

	mu        sync.RWMutex
	cash      *currency.CashBook
	registry  *security.MapRegistry
	positions map[string]*position
}

// NewSubAccount constructs a named SubAccount with an empty cash-book in
// accountCurrency and an empty, symbol-scoped security registry.
func NewSubAccount(name string, accountCurrency currency.Code) *SubAccount {
	id, err := uuid.NewV4()
	if err != nil {
		id = uuid.Nil
	}
	return &SubAccount{
		Name:      name,
		ID:        id,
		cash:      currency.NewCashBook(accountCurrency),
		registry:  security.NewMapRegistry(),
		positions: make(map[string]*position),
	}
}

// Cash implements margin.Portfolio.
func (s *SubAccount) Cash() *currency.CashBook {
	return s.cash
}

// Holdings implements margin.Portfolio: only the symbols this sub-account
// has actually recorded a position in, regardless of how many symbols were
// routed to it overall.
func (s *SubAccount) Holdings() []margin.Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]margin.Holding, 0, len(s.positions))
	for _, p := range s.positions {
		if p.quantity.IsZero() {
			continue
		}
		out = append(out, margin.Holding{Security: p.security, Quantity: p.quantity})
	}
	return out
}

// Securities returns every security for which at least one fill has been
// routed to this sub-account (spec.md §4.7: "each sub-account holds only
// the securities routed to it").
func (s *SubAccount) Securities() []*security.Security {
	return s.registry.All()
}

// ensureSecurity registers sec in the sub-account's scoped registry when a
// fill is routed to its symbol.
func (s *SubAccount) ensureSecurity(sec *security.Security) {
	s.registry.Register(sec)
}

// applyFill records evt against the sub-account's position and cash books:
// the signed quantity accumulates into the held position, and the notional
// plus fee settle against the security's quote currency.
func (s *SubAccount) applyFill(evt order.Event, sec security.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := evt.Symbol.String()
	p, ok := s.positions[key]
	if !ok {
		p = &position{security: sec, quantity: decimal.Zero}
		s.positions[key] = p
	}
	p.security = sec
	signedQty := evt.SignedFillQuantity()
	p.quantity = p.quantity.Add(signedQty)

	notional := signedQty.Mul(evt.FillPrice)
	settlement := notional.Neg().Sub(evt.Fee)
	s.cash.Add(sec.QuoteCurrency, settlement)
}

// quantityOf returns the sub-account's recorded signed quantity in sym, or
// zero if none has ever been recorded.
func (s *SubAccount) quantityOf(sym symbol.Symbol) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.positions[sym.String()]; ok {
		return p.quantity
	}
	return decimal.Zero
}
