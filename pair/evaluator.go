// Package pair implements the spread evaluator and the TradingPair
// aggregate that owns a symbol pair's grid levels and grid positions
// (spec.md §4.1, §4.3).
package pair

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/grid"
)

// epsilon is the minimum positive quote the evaluator will accept, per
// spec.md §4.1.
var epsilon = decimal.New(1, -10)

// State is the market state the evaluator derives each tick (spec.md §3).
type State uint8

const (
	Unknown State = iota
	Crossed
	LimitOpportunity
	NoOpportunity
)

var stateStrings = map[State]string{
	Unknown:          "UNKNOWN",
	Crossed:          "CROSSED",
	LimitOpportunity: "LIMIT_OPPORTUNITY",
	NoOpportunity:    "NO_OPPORTUNITY",
}

// String implements fmt.Stringer.
func (s State) String() string {
	if v, ok := stateStrings[s]; ok {
		return v
	}
	return "UNKNOWN"
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Result is the atomic output of one evaluator pass (spec.md §4.1
// "Outputs").
type Result struct {
	HasValidPrices      bool
	ShortSpread         decimal.Decimal
	LongSpread          decimal.Decimal
	TheoreticalSpread   decimal.Decimal
	MarketState         State
	Direction           grid.Direction
	ExecutableSpread    decimal.Decimal
	HasExecutableSpread bool
}

// Evaluate derives the pair's market state, arbitrage direction and spread
// metrics from the four current leg quotes. It is a pure function: no
// state outside its return value is touched (spec.md §4.1 "Determinism").
func Evaluate(leg1Bid, leg1Ask, leg2Bid, leg2Ask decimal.Decimal) Result {
	if !validQuote(leg1Bid) || !validQuote(leg1Ask) || !validQuote(leg2Bid) || !validQuote(leg2Ask) ||
		leg1Bid.GreaterThan(leg1Ask) || leg2Bid.GreaterThan(leg2Ask) {
		return Result{HasValidPrices: false, MarketState: Unknown}
	}

	shortSpread := leg1Bid.Sub(leg2Ask).Div(leg1Bid)
	longSpread := leg1Ask.Sub(leg2Bid).Div(leg1Ask)
	theoretical := argmaxByAbs(shortSpread, longSpread)

	result := Result{
		HasValidPrices:    true,
		ShortSpread:       shortSpread,
		LongSpread:        longSpread,
		TheoreticalSpread: theoretical,
	}

	switch {
	case leg1Bid.GreaterThan(leg2Ask):
		result.MarketState = Crossed
		result.Direction = grid.ShortSpread
		result.ExecutableSpread = shortSpread
		result.HasExecutableSpread = true
	case leg2Bid.GreaterThan(leg1Ask):
		result.MarketState = Crossed
		result.Direction = grid.LongSpread
		result.ExecutableSpread = longSpread
		result.HasExecutableSpread = true
	case leg1Ask.GreaterThan(leg2Ask) && leg2Ask.GreaterThan(leg1Bid) && leg1Bid.GreaterThan(leg2Bid):
		// Pattern A
		result.MarketState = LimitOpportunity
		result.Direction = grid.ShortSpread
		a := leg1Ask.Sub(leg2Ask).Div(leg1Ask)
		b := leg1Bid.Sub(leg2Bid).Div(leg1Bid)
		result.ExecutableSpread = maxDecimal(a, b)
		result.HasExecutableSpread = true
	case leg2Ask.GreaterThan(leg1Ask) && leg1Ask.GreaterThan(leg2Bid) && leg2Bid.GreaterThan(leg1Bid):
		// Pattern B
		result.MarketState = LimitOpportunity
		result.Direction = grid.LongSpread
		a := leg1Ask.Sub(leg2Bid).Div(leg1Ask)
		b := leg1Bid.Sub(leg2Ask).Div(leg1Bid)
		result.ExecutableSpread = minDecimal(a, b)
		result.HasExecutableSpread = true
	default:
		result.MarketState = NoOpportunity
	}

	return result
}

func validQuote(d decimal.Decimal) bool {
	return d.GreaterThan(epsilon)
}

func argmaxByAbs(a, b decimal.Decimal) decimal.Decimal {
	if a.Abs().GreaterThanOrEqual(b.Abs()) {
		return a
	}
	return b
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThanOrEqual(b) {
		return a
	}
	return b
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThanOrEqual(b) {
		return a
	}
	return b
}
