// Package account implements the multi-account portfolio and routing layer
// of spec.md §4.7: a Router maps an order's symbol to an owning sub-account,
// an AggregatingPortfolio fans buying-power checks and fills out to the
// routed sub-account, and a RoutingCashBook/SyncConversionsToMain give the
// host a consolidated view of currency balances scattered across
// sub-accounts.
//
// Grounded on the teacher's exchange wrapper registry pattern (a
// name-to-implementation map with a default fallback, case-insensitive
// lookup) generalized from "exchange name" to "account name"/"market".
package account

import (
	"strings"

	"github.com/thrasher-corp/gridarb/symbol"
)

// Router resolves the owning account name for an order's symbol (spec.md
// §4.7 "Route(order) -> account_name").
type Router interface {
	Route(sym symbol.Symbol) string
}

// SymbolBasedRouter routes by exact symbol identity, falling back to a
// configured default account for anything not explicitly listed.
type SymbolBasedRouter struct {
	bySymbol       map[string]string
	defaultAccount string
}

// NewSymbolBasedRouter builds a SymbolBasedRouter from a symbol->account
// mapping.
func NewSymbolBasedRouter(mapping map[symbol.Symbol]string, defaultAccount string) *SymbolBasedRouter {
	bySymbol := make(map[string]string, len(mapping))
	for sym, account := range mapping {
		bySymbol[sym.String()] = account
	}
	return &SymbolBasedRouter{bySymbol: bySymbol, defaultAccount: defaultAccount}
}

// Route implements Router.
func (r *SymbolBasedRouter) Route(sym symbol.Symbol) string {
	if account, ok := r.bySymbol[sym.String()]; ok {
		return account
	}
	return r.defaultAccount
}

// SecurityTypeRouter routes by the symbol's security type, falling back to a
// configured default account.
type SecurityTypeRouter struct {
	byType         map[symbol.Type]string
	defaultAccount string
}

// NewSecurityTypeRouter builds a SecurityTypeRouter from a type->account
// mapping.
func NewSecurityTypeRouter(mapping map[symbol.Type]string, defaultAccount string) *SecurityTypeRouter {
	byType := make(map[symbol.Type]string, len(mapping))
	for t, account := range mapping {
		byType[t] = account
	}
	return &SecurityTypeRouter{byType: byType, defaultAccount: defaultAccount}
}

// Route implements Router.
func (r *SecurityTypeRouter) Route(sym symbol.Symbol) string {
	if account, ok := r.byType[sym.Type]; ok {
		return account
	}
	return r.defaultAccount
}

// normalizeMarket is the case-insensitive key RoutedBrokerageModel uses
// when matching against a symbol's market (spec.md
// §4.7: "case-insensitive lookup").
func normalizeMarket(m symbol.Market) string {
	return strings.ToUpper(string(m))
}
