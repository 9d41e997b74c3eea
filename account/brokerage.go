package account

import (
	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/order"
	"github.com/thrasher-corp/gridarb/symbol"
)

// BrokerageModel is the per-venue policy surface spec.md §4.7 names:
// "leverage, fee, fill, slippage, settlement, shortable provider, order
// validation." Fee/fill/slippage pricing models are out of scope as
// implementations (spec.md §1); this interface is only the delegation seam
// RoutedBrokerageModel dispatches through.
type BrokerageModel interface {
	Leverage(sym symbol.Symbol) decimal.Decimal
	Fee(fill order.Record) decimal.Decimal
	Slippage(sym symbol.Symbol) decimal.Decimal
	Shortable(sym symbol.Symbol) bool
	ValidateOrder(evt order.Event) error
}

// DefaultBrokerageModel is the minimal, sane default RoutedBrokerageModel
// falls back to: 1x leverage, zero fee, zero slippage, shortable, and no
// validation rejections. It is a stand-in, not a real brokerage's policy.
type DefaultBrokerageModel struct{}

// Leverage always returns 1.
func (DefaultBrokerageModel) Leverage(symbol.Symbol) decimal.Decimal { return decimal.NewFromInt(1) }

// Fee always returns zero.
func (DefaultBrokerageModel) Fee(order.Record) decimal.Decimal { return decimal.Zero }

// Slippage always returns zero.
func (DefaultBrokerageModel) Slippage(symbol.Symbol) decimal.Decimal { return decimal.Zero }

// Shortable always returns true.
func (DefaultBrokerageModel) Shortable(symbol.Symbol) bool { return true }

// ValidateOrder never rejects.
func (DefaultBrokerageModel) ValidateOrder(order.Event) error { return nil }

// RoutedBrokerageModel delegates per-security policy to the BrokerageModel
// whose key matches the security's market, case-insensitively, falling back
// to a configured default (spec.md §4.7).
type RoutedBrokerageModel struct {
	byMarket map[string]BrokerageModel
	fallback BrokerageModel
}

// NewRoutedBrokerageModel builds a RoutedBrokerageModel from a market-keyed
// mapping and a fallback model used for any market not listed.
func NewRoutedBrokerageModel(byMarket map[symbol.Market]BrokerageModel, fallback BrokerageModel) *RoutedBrokerageModel {
	if fallback == nil {
		fallback = DefaultBrokerageModel{}
	}
	normalized := make(map[string]BrokerageModel, len(byMarket))
	for market, model := range byMarket {
		normalized[normalizeMarket(market)] = model
	}
	return &RoutedBrokerageModel{byMarket: normalized, fallback: fallback}
}

func (m *RoutedBrokerageModel) modelFor(sym symbol.Symbol) BrokerageModel {
	if model, ok := m.byMarket[normalizeMarket(sym.Market)]; ok {
		return model
	}
	return m.fallback
}

// Leverage implements BrokerageModel by delegating to the matched model.
func (m *RoutedBrokerageModel) Leverage(sym symbol.Symbol) decimal.Decimal {
	return m.modelFor(sym).Leverage(sym)
}

// Fee implements BrokerageModel by delegating to the matched model.
func (m *RoutedBrokerageModel) Fee(fill order.Record) decimal.Decimal {
	return m.modelFor(fill.Symbol).Fee(fill)
}

// Slippage implements BrokerageModel by delegating to the matched model.
func (m *RoutedBrokerageModel) Slippage(sym symbol.Symbol) decimal.Decimal {
	return m.modelFor(sym).Slippage(sym)
}

// Shortable implements BrokerageModel by delegating to the matched model.
func (m *RoutedBrokerageModel) Shortable(sym symbol.Symbol) bool {
	return m.modelFor(sym).Shortable(sym)
}

// ValidateOrder implements BrokerageModel by delegating to the matched
// model.
func (m *RoutedBrokerageModel) ValidateOrder(evt order.Event) error {
	return m.modelFor(evt.Symbol).ValidateOrder(evt)
}
