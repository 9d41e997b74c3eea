package grid

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/symbol"
)

// tagFieldCount is the exact number of pipe-delimited fields a valid tag
// carries (spec.md §4.2, §6: "exactly six |-delimited fields").
const tagFieldCount = 6

// EncodeTag renders a grid identity as the opaque ASCII order tag described
// in spec.md §4.2:
//
//	"<leg1-sid>|<leg2-sid>|<entry_spread:F4>|<exit_spread:F4>|<direction>|<position_size:F4>"
//
// leg1/leg2 are encoded via symbol.Symbol.String(), which itself contains no
// pipe characters, so the six top-level fields never collide with a leg's
// internal separator.
func EncodeTag(leg1, leg2 symbol.Symbol, lp LevelPair) string {
	fields := []string{
		leg1.String(),
		leg2.String(),
		formatF4(lp.Entry.SpreadPercentage),
		formatF4(lp.Exit.SpreadPercentage),
		lp.Entry.Direction.String(),
		formatF4(lp.Entry.PositionSizePercent),
	}
	return strings.Join(fields, "|")
}

// DecodeTag is the inverse of EncodeTag. It returns ok=false — never an
// error — on any malformed input (empty string, wrong field count,
// unparsable symbol, or non-numeric decimal fields), matching spec.md
// §4.2's "decoding fails (returns nothing)" contract: a failed decode means
// "this is not a grid order", not an exceptional condition, so callers
// (PairManager.ProcessGridOrderEvent) silently ignore it per spec.md §4.8.
func DecodeTag(tag string) (leg1, leg2 symbol.Symbol, lp LevelPair, ok bool) {
	if tag == "" {
		return symbol.Symbol{}, symbol.Symbol{}, LevelPair{}, false
	}
	fields := strings.Split(tag, "|")
	if len(fields) != tagFieldCount {
		return symbol.Symbol{}, symbol.Symbol{}, LevelPair{}, false
	}

	leg1, err := symbol.Parse(fields[0])
	if err != nil {
		return symbol.Symbol{}, symbol.Symbol{}, LevelPair{}, false
	}
	leg2, err = symbol.Parse(fields[1])
	if err != nil {
		return symbol.Symbol{}, symbol.Symbol{}, LevelPair{}, false
	}

	entrySpread, err := decimal.NewFromString(fields[2])
	if err != nil {
		return symbol.Symbol{}, symbol.Symbol{}, LevelPair{}, false
	}
	exitSpread, err := decimal.NewFromString(fields[3])
	if err != nil {
		return symbol.Symbol{}, symbol.Symbol{}, LevelPair{}, false
	}

	direction, err := StringToDirection(fields[4])
	if err != nil {
		return symbol.Symbol{}, symbol.Symbol{}, LevelPair{}, false
	}

	positionSize, err := decimal.NewFromString(fields[5])
	if err != nil {
		return symbol.Symbol{}, symbol.Symbol{}, LevelPair{}, false
	}

	lp = LevelPair{
		Entry: Level{
			SpreadPercentage:    entrySpread,
			Direction:           direction,
			Type:                Entry,
			PositionSizePercent: positionSize,
		},
		Exit: Level{
			SpreadPercentage:    exitSpread,
			Direction:           direction,
			Type:                Exit,
			PositionSizePercent: positionSize,
		},
	}
	return leg1, leg2, lp, true
}
