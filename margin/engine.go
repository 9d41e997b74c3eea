package margin

import (
	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/currency"
	"github.com/thrasher-corp/gridarb/order"
	"github.com/thrasher-corp/gridarb/security"
	"github.com/thrasher-corp/gridarb/symbol"
)

// Holding is one position line the engine reads from a Portfolio: a signed
// quantity in a given security, priced via the security's own snapshot.
type Holding struct {
	Security security.Snapshot
	Quantity decimal.Decimal
}

// Value returns the position's signed mark value in account currency.
func (h Holding) Value() decimal.Decimal {
	return h.Quantity.Mul(h.Security.Last)
}

// IsFutures reports whether the holding is a leveraged derivative position
// (spec.md §4.6 distinguishes futures holdings from spot crypto collateral).
func (h Holding) IsFutures() bool {
	switch h.Security.Symbol.Type {
	case symbol.CryptoFuture, symbol.Future:
		return true
	default:
		return false
	}
}

// IsSpotCrypto reports whether the holding is unleveraged spot collateral.
func (h Holding) IsSpotCrypto() bool {
	return h.Security.Symbol.Type == symbol.Crypto
}

// Portfolio is the read-only collaborator the engine evaluates (spec.md
// §4.6 "GetBuyingPower(portfolio, ...)"). Engine never mutates it
// ("Idempotence: pure function of the snapshot passed in").
type Portfolio interface {
	Cash() *currency.CashBook
	Holdings() []Holding
}

// Engine computes buying power and margin quantities under spec.md §4.6's
// unified cross-margin model.
type Engine struct {
	cfg Config
}

// NewEngine validates cfg and returns an Engine, or an error if cfg is
// invalid.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// TotalMarginBalance implements spec.md §4.6's eponymous formula: cash book
// entries (discounted when long, undiscounted when borrowed) plus
// discounted spot-crypto collateral value.
func (e *Engine) TotalMarginBalance(p Portfolio) decimal.Decimal {
	total := decimal.Zero
	for _, c := range p.Cash().All() {
		value := c.ValueInAccountCurrency()
		if c.Amount.IsPositive() {
			value = value.Mul(e.cfg.discount(c.Code))
		}
		total = total.Add(value)
	}
	for _, h := range p.Holdings() {
		if !h.IsSpotCrypto() {
			continue
		}
		total = total.Add(h.Quantity.Abs().Mul(h.Security.Last).Mul(e.cfg.discount(h.Security.BaseCurrency)))
	}
	return total
}

// FuturesInitialMargin sums |qty|*price/leverage across every futures
// holding.
func (e *Engine) FuturesInitialMargin(p Portfolio) decimal.Decimal {
	total := decimal.Zero
	for _, h := range p.Holdings() {
		if !h.IsFutures() {
			continue
		}
		total = total.Add(e.futuresInitialMarginFor(h))
	}
	return total
}

func (e *Engine) futuresInitialMarginFor(h Holding) decimal.Decimal {
	return h.Quantity.Abs().Mul(h.Security.Last).Div(e.cfg.Leverage)
}

// BorrowingInitialMargin sums borrowed_amount(currency)*borrowing_margin_rate(currency)
// across every cash entry carrying a negative (borrowed) balance.
func (e *Engine) BorrowingInitialMargin(p Portfolio) decimal.Decimal {
	total := decimal.Zero
	for _, c := range p.Cash().All() {
		borrowed := c.Borrowed()
		if borrowed.IsZero() {
			continue
		}
		total = total.Add(borrowed.Mul(e.cfg.borrowingMarginRate(c.Code)))
	}
	return total
}

// TotalInitialMargin is FuturesInitialMargin + BorrowingInitialMargin.
func (e *Engine) TotalInitialMargin(p Portfolio) decimal.Decimal {
	return e.FuturesInitialMargin(p).Add(e.BorrowingInitialMargin(p))
}

// FuturesMaintenanceMargin sums |position_value|*tiered_rate(|position_value|)
// across every futures holding.
func (e *Engine) FuturesMaintenanceMargin(p Portfolio) decimal.Decimal {
	total := decimal.Zero
	for _, h := range p.Holdings() {
		if !h.IsFutures() {
			continue
		}
		total = total.Add(e.futuresMaintenanceMarginFor(h))
	}
	return total
}

func (e *Engine) futuresMaintenanceMarginFor(h Holding) decimal.Decimal {
	value := h.Value().Abs()
	return value.Mul(tieredRate(e.cfg.TierMaintenanceRates, value))
}

// BorrowingMaintenanceMargin sums, per borrowing currency, the cumulative
// tax-bracket computation when a tier schedule is configured for that
// currency, or a flat borrowed*rate otherwise.
func (e *Engine) BorrowingMaintenanceMargin(p Portfolio) decimal.Decimal {
	total := decimal.Zero
	for _, c := range p.Cash().All() {
		borrowed := c.Borrowed()
		if borrowed.IsZero() {
			continue
		}
		if tiers, ok := e.cfg.BorrowingTierRates[c.Code.Upper().String()]; ok {
			total = total.Add(cumulativeTaxBracket(tiers, borrowed))
		} else {
			total = total.Add(borrowed.Mul(e.cfg.borrowingMarginRate(c.Code)))
		}
	}
	return total
}

// TotalMaintenanceMargin is the sum of futures and borrowing maintenance
// margin.
func (e *Engine) TotalMaintenanceMargin(p Portfolio) decimal.Decimal {
	return e.FuturesMaintenanceMargin(p).Add(e.BorrowingMaintenanceMargin(p))
}

// AccountRiskRatio is (TotalMarginBalance/TotalMaintenanceMargin)*100. When
// maintenance margin is not positive it returns 1,000,000,000,000, a
// sentinel for an unbounded ratio (decimal has no infinity).
func (e *Engine) AccountRiskRatio(p Portfolio) decimal.Decimal {
	maintenance := e.TotalMaintenanceMargin(p)
	if !maintenance.IsPositive() {
		return decimal.NewFromInt(1_000_000_000_000)
	}
	return e.TotalMarginBalance(p).Div(maintenance).Mul(decimal.NewFromInt(100))
}

// Leverage returns 1 for non-leveraged security types (Base, Internal) per
// spec.md §4.8, and the configured leverage otherwise.
func (e *Engine) Leverage(t symbol.Type) decimal.Decimal {
	if !t.IsLeveraged() {
		return decimal.NewFromInt(1)
	}
	return e.cfg.Leverage
}

// holdingFor returns the portfolio's existing holding in sym, or a
// zero-quantity holding if none exists.
func holdingFor(p Portfolio, sec security.Snapshot) Holding {
	for _, h := range p.Holdings() {
		if h.Security.Symbol.Equal(sec.Symbol) {
			return h
		}
	}
	return Holding{Security: sec}
}

// GetBuyingPower implements spec.md §4.6's four-step algorithm: available
// margin after initial-margin reservation, credited back for any existing
// opposite-direction position this order would close, less the configured
// free-buying-power reserve, scaled by leverage.
func (e *Engine) GetBuyingPower(p Portfolio, sec security.Snapshot, direction order.Direction) decimal.Decimal {
	available := e.TotalMarginBalance(p).Sub(e.TotalInitialMargin(p))

	existing := holdingFor(p, sec)
	reverses := (direction == order.Sell && existing.Quantity.IsPositive()) ||
		(direction == order.Buy && existing.Quantity.IsNegative())
	if reverses {
		available = available.
			Add(e.futuresMaintenanceMarginFor(existing)).
			Add(e.futuresInitialMarginFor(existing))
	}

	available = available.Sub(e.TotalMarginBalance(p).Mul(e.cfg.RequiredFreeBuyingPowerPercent))

	buyingPower := available.Mul(e.Leverage(sec.Symbol.Type))
	if buyingPower.IsNegative() {
		return decimal.Zero
	}
	return buyingPower
}
