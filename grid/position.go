package grid

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/order"
	"github.com/thrasher-corp/gridarb/symbol"
)

// Position is a two-leg position opened at one grid rung (spec.md §3
// "GridPosition"). It is owned by a TradingPair and keyed by its
// LevelPair.Entry.NaturalKey (its Tag).
//
// The teacher's cyclic pair<->position back-pointer (used to answer
// "am I invested") is deliberately not reproduced — per spec.md §9's
// redesign note, a position is self-contained: Invested is derived purely
// from its own leg quantities, and the owning manager (not the position)
// decides whether to evict it.
type Position struct {
	Leg1Symbol    symbol.Symbol
	Leg2Symbol    symbol.Symbol
	LevelPair     LevelPair
	Leg1Quantity  decimal.Decimal
	Leg2Quantity  decimal.Decimal
	Leg1AvgCost   decimal.Decimal
	Leg2AvgCost   decimal.Decimal
	FirstFillTime time.Time
}

// Tag is the position's natural key within its owning pair.
func (p *Position) Tag() string {
	return p.LevelPair.Entry.NaturalKey()
}

// NewPosition constructs a zero-leg position for the given level pair.
func NewPosition(leg1, leg2 symbol.Symbol, levelPair LevelPair) *Position {
	return &Position{
		Leg1Symbol: leg1,
		Leg2Symbol: leg2,
		LevelPair:  levelPair,
	}
}

// Invested reports whether either leg carries a non-zero quantity
// (spec.md §3 invariant: "leg{1,2}-quantity == 0 ⇔ position is not invested").
func (p *Position) Invested() bool {
	return !p.Leg1Quantity.IsZero() || !p.Leg2Quantity.IsZero()
}

// ProcessFill applies a host order event to whichever leg matches its
// symbol, updating the signed quantity and the weighted-average cost for
// that leg (spec.md §4.3 "GridPosition.ProcessFill"). Fills for a symbol
// that matches neither leg are ignored.
func (p *Position) ProcessFill(evt order.Event) {
	signedQty := evt.SignedFillQuantity()
	switch {
	case evt.Symbol.Equal(p.Leg1Symbol):
		p.Leg1Quantity, p.Leg1AvgCost = applyFill(p.Leg1Quantity, p.Leg1AvgCost, signedQty, evt.FillPrice)
	case evt.Symbol.Equal(p.Leg2Symbol):
		p.Leg2Quantity, p.Leg2AvgCost = applyFill(p.Leg2Quantity, p.Leg2AvgCost, signedQty, evt.FillPrice)
	default:
		return
	}
	if p.FirstFillTime.IsZero() || evt.Time.Before(p.FirstFillTime) {
		p.FirstFillTime = evt.Time
	}
}

// applyFill folds one signed fill into an existing signed quantity/average
// cost pair. A fill that extends the existing position (same sign, or
// opening from flat) grows the weighted-average cost; a fill that reduces
// or reverses it realizes against the existing average and, on reversal,
// re-bases the average cost to the fill price for the new, opposite side.
func applyFill(qty, avgCost, fillQty, fillPrice decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	newQty := qty.Add(fillQty)

	sameDirection := qty.IsZero() || fillQty.IsZero() || qty.Sign() == fillQty.Sign()
	switch {
	case sameDirection:
		if newQty.IsZero() {
			return newQty, decimal.Zero
		}
		weighted := qty.Abs().Mul(avgCost).Add(fillQty.Abs().Mul(fillPrice))
		return newQty, weighted.Div(newQty.Abs())
	case newQty.Sign() == qty.Sign() || newQty.IsZero():
		// Fill reduces the position without reversing it: average cost is
		// unchanged, only quantity shrinks.
		if newQty.IsZero() {
			return newQty, decimal.Zero
		}
		return newQty, avgCost
	default:
		// Reversal: the position flips sign, so the surviving quantity is
		// a fresh position opened at the fill price.
		return newQty, fillPrice
	}
}
