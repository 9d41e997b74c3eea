package reconciliation

import (
	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/symbol"
)

// Portfolio is the ledger-side collaborator CompareBaseline reads from
// (spec.md §4.5 "LP(s)"): whatever owns the real, broker-confirmed position
// per symbol. The core never mutates it.
type Portfolio interface {
	// LedgerPosition returns LP(s): the broker-confirmed signed position for
	// sym, independent of anything the grid core has recorded.
	LedgerPosition(sym symbol.Symbol) decimal.Decimal
	// Symbols enumerates every symbol the portfolio currently holds or
	// tracks, the universe CompareBaseline sweeps.
	Symbols() []symbol.Symbol
}

// diff computes D(s) = LP(s) - GP(s) for every symbol the baseline or the
// portfolio currently mentions (spec.md §4.5 step 1-2: "Baseline ∪ D").
func diff(baseline map[string]decimal.Decimal, portfolio Portfolio, gridAggregate func(symbol.Symbol) decimal.Decimal) map[string]decimal.Decimal {
	bySymbolString := make(map[string]symbol.Symbol)
	for _, s := range portfolio.Symbols() {
		bySymbolString[s.String()] = s
	}

	out := make(map[string]decimal.Decimal, len(bySymbolString))
	for key, s := range bySymbolString {
		out[key] = portfolio.LedgerPosition(s).Sub(gridAggregate(s))
	}
	return out
}

// discrepancies reports every symbol key where baseline and current differ,
// treating an absent entry in either map as zero (spec.md §4.5 step 2:
// "Baseline is a sparse map; symbols with zero difference are omitted").
func discrepancies(baseline, current map[string]decimal.Decimal) []string {
	seen := make(map[string]struct{}, len(baseline)+len(current))
	for k := range baseline {
		seen[k] = struct{}{}
	}
	for k := range current {
		seen[k] = struct{}{}
	}

	var out []string
	for k := range seen {
		b := baseline[k]
		c := current[k]
		if !b.Equal(c) {
			out = append(out, k)
		}
	}
	return out
}
