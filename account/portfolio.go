package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/common"
	"github.com/thrasher-corp/gridarb/currency"
	"github.com/thrasher-corp/gridarb/margin"
	"github.com/thrasher-corp/gridarb/order"
	"github.com/thrasher-corp/gridarb/security"
	"github.com/thrasher-corp/gridarb/symbol"
)

// TimeKeeper is the injectable clock AggregatingPortfolio requires at
// construction (spec.md §4.7: "non-null time-keeper"), letting tests and
// future backtesting hosts supply a synthetic clock.
type TimeKeeper interface {
	Now() time.Time
}

// systemClock is the TimeKeeper used when a host has no synthetic clock to
// inject.
type systemClock struct{}

// Now implements TimeKeeper.
func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a TimeKeeper backed by time.Now.
func SystemClock() TimeKeeper { return systemClock{} }

// ErrEmptyAccountConfig is returned by NewAggregatingPortfolio when called
// with no account configuration (spec.md §4.7: "empty config ⇒ argument
// error").
var ErrEmptyAccountConfig = errors.New("account config must not be empty")

// AccountConfig describes one sub-account to create at
// NewAggregatingPortfolio construction time.
type AccountConfig struct {
	Name            string
	AccountCurrency currency.Code
}

// OrderRequest is the minimal shape HasSufficientBuyingPowerForOrder
// evaluates: an intended symbol/direction/quantity at a reference price,
// prior to any fill.
type OrderRequest struct {
	Symbol    security.Snapshot
	Direction order.Direction
	Quantity  decimal.Decimal
}

// AggregatingPortfolio fans buying-power checks and fills out to per-symbol
// routed sub-accounts, presenting a single consolidated view to the host
// (spec.md §4.7 "Aggregating Portfolio").
type AggregatingPortfolio struct {
	router    Router
	clock     TimeKeeper
	marginCfg margin.Config
	marginEng *margin.Engine
	registry  security.Registry
	accounts  map[string]*SubAccount
	mainCash  *currency.CashBook

	lastSyncTime time.Time
}

// LastSyncTime returns the clock time of the most recent SyncConversionsToMain
// call, or the zero time if it has never run.
func (p *AggregatingPortfolio) LastSyncTime() time.Time {
	return p.lastSyncTime
}

// NewAggregatingPortfolio validates its arguments and builds one SubAccount
// per entry in configs. registry resolves the full Security for any symbol
// a fill names, so the owning sub-account can be told about it the first
// time a fill is routed to it; buying-power checks do not register
// securities.
func NewAggregatingPortfolio(configs []AccountConfig, router Router, clock TimeKeeper, marginCfg margin.Config, registry security.Registry, mainCurrency currency.Code) (*AggregatingPortfolio, error) {
	if len(configs) == 0 {
		return nil, ErrEmptyAccountConfig
	}
	if router == nil {
		return nil, fmt.Errorf("router: %w", common.ErrNilPointer)
	}
	if clock == nil {
		return nil, fmt.Errorf("clock: %w", common.ErrNilPointer)
	}

	marginEng, err := margin.NewEngine(marginCfg)
	if err != nil {
		return nil, err
	}

	accounts := make(map[string]*SubAccount, len(configs))
	for _, cfg := range configs {
		accounts[cfg.Name] = NewSubAccount(cfg.Name, cfg.AccountCurrency)
	}

	return &AggregatingPortfolio{
		router:    router,
		clock:     clock,
		marginCfg: marginCfg,
		marginEng: marginEng,
		registry:  registry,
		accounts:  accounts,
		mainCash:  currency.NewCashBook(mainCurrency),
	}, nil
}

// Account returns the named sub-account, and whether it exists.
func (p *AggregatingPortfolio) Account(name string) (*SubAccount, bool) {
	acct, ok := p.accounts[name]
	return acct, ok
}

// MainCash returns the portfolio's unrouted main cash-book.
func (p *AggregatingPortfolio) MainCash() *currency.CashBook {
	return p.mainCash
}

// HasSufficientBuyingPowerForOrder implements spec.md §4.7: route each
// order to its sub-account and delegate to the margin engine. A nil or
// empty order list is trivially sufficient; an order whose route names an
// account that was never configured is insufficient with a reason
// containing "not found".
func (p *AggregatingPortfolio) HasSufficientBuyingPowerForOrder(orders []OrderRequest) (bool, string) {
	if len(orders) == 0 {
		return true, ""
	}
	for _, req := range orders {
		accountName := p.router.Route(req.Symbol.Symbol)
		acct, ok := p.accounts[accountName]
		if !ok {
			return false, fmt.Sprintf("account %q not found", accountName)
		}
		buyingPower := p.marginEng.GetBuyingPower(acct, req.Symbol, req.Direction)
		notional := req.Quantity.Abs().Mul(req.Symbol.Last)
		if buyingPower.LessThan(notional) {
			return false, fmt.Sprintf("account %q: insufficient buying power (have %s, need %s)", accountName, buyingPower, notional)
		}
	}
	return true, ""
}

// ProcessFills implements spec.md §4.7: each fill routes to exactly one
// sub-account, whose cash and holdings alone are updated (testable property
// 7, "router isolation"). Fills routed to an unconfigured account are
// dropped; a host wanting to surface that should route defensively.
func (p *AggregatingPortfolio) ProcessFills(events []order.Event) {
	for _, evt := range events {
		accountName := p.router.Route(evt.Symbol)
		acct, ok := p.accounts[accountName]
		if !ok {
			continue
		}
		sec := security.Snapshot{Symbol: evt.Symbol}
		if p.registry != nil {
			if full, ok := p.registry.Get(evt.Symbol); ok {
				acct.ensureSecurity(full)
				sec = full.Snapshot()
			}
		}
		acct.applyFill(evt, sec)
	}
}

// SyncConversionsToMain aggregates every sub-account's cash entries into the
// main cash-book, summing amounts per currency and copying each
// sub-account's conversion link; USD-pegged currencies get an identity 1:1
// conversion to USD regardless of what the sub-account recorded (spec.md
// §4.7).
func (p *AggregatingPortfolio) SyncConversionsToMain() {
	totals := make(map[string]decimal.Decimal)
	latest := make(map[string]currency.Cash)

	for _, acct := range p.accounts {
		for _, c := range acct.Cash().All() {
			key := c.Code.Upper().String()
			totals[key] = totals[key].Add(c.Amount)
			latest[key] = c
		}
	}

	for key, total := range totals {
		c := latest[key]
		c.Amount = total
		if currency.IsUSDPegged(c.Code) {
			c.ConversionRate = decimal.NewFromInt(1)
			c.ConversionLink = currency.USD.String()
		}
		p.mainCash.Set(c)
	}
	p.lastSyncTime = p.clock.Now()
}

// RoutingCashBook overlays a main cash-book with the sub-accounts' books:
// a currency lookup first consults the main book, then falls back to the
// cash-book of whichever sub-account holds a crypto security based in that
// currency (spec.md §4.7).
type RoutingCashBook struct {
	main     *currency.CashBook
	accounts map[string]*SubAccount
}

// NewRoutingCashBook builds a RoutingCashBook over a main book and the
// portfolio's current sub-accounts.
func NewRoutingCashBook(main *currency.CashBook, accounts map[string]*SubAccount) *RoutingCashBook {
	return &RoutingCashBook{main: main, accounts: accounts}
}

// Get resolves code against the main book first, then against the
// cash-book of any sub-account holding a crypto security whose base
// currency is code.
func (r *RoutingCashBook) Get(code currency.Code) (currency.Cash, bool) {
	if c, ok := r.main.Get(code); ok {
		return c, ok
	}
	for _, acct := range r.accounts {
		for _, sec := range acct.Securities() {
			snap := sec.Snapshot()
			if !baseCurrencyMatches(snap, code) {
				continue
			}
			if c, ok := acct.Cash().Get(code); ok {
				return c, true
			}
		}
	}
	return currency.Cash{}, false
}

func baseCurrencyMatches(snap security.Snapshot, code currency.Code) bool {
	return snap.Symbol.Type == symbol.Crypto && snap.BaseCurrency.Equal(code)
}
