// Package grid implements the per-pair grid-level, grid-position and tag
// codec machinery described in spec.md §3-4.3: the sub-state of a single
// trading pair at a single grid rung.
//
// Grounded on the teacher's small-enum idiom (exchanges/collateral.Mode,
// currency.Role): a uint8 with String()/JSON (un)marshalling and a
// StringToX parser returning a sentinel error on failure.
package grid

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is the arbitrage direction a grid level opens or closes.
type Direction uint8

const (
	UnknownDirection Direction = iota
	LongSpread
	ShortSpread
)

const (
	longSpreadStr  = "LONG_SPREAD"
	shortSpreadStr = "SHORT_SPREAD"
)

// ErrInvalidDirection is returned when a string cannot be parsed into a
// Direction.
var ErrInvalidDirection = errors.New("invalid grid direction")

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case LongSpread:
		return longSpreadStr
	case ShortSpread:
		return shortSpreadStr
	default:
		return "UNKNOWN"
	}
}

// StringToDirection parses a Direction from its canonical string form.
func StringToDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case longSpreadStr:
		return LongSpread, nil
	case shortSpreadStr:
		return ShortSpread, nil
	default:
		return UnknownDirection, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// MarshalJSON implements json.Marshaler.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Direction) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := StringToDirection(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// LevelType distinguishes whether a GridLevel opens (Entry) or closes (Exit)
// a position.
type LevelType uint8

const (
	UnknownLevelType LevelType = iota
	Entry
	Exit
)

const (
	entryStr = "ENTRY"
	exitStr  = "EXIT"
)

// ErrInvalidLevelType is returned when a string cannot be parsed into a
// LevelType.
var ErrInvalidLevelType = errors.New("invalid grid level type")

// String implements fmt.Stringer.
func (l LevelType) String() string {
	switch l {
	case Entry:
		return entryStr
	case Exit:
		return exitStr
	default:
		return "UNKNOWN"
	}
}

// StringToLevelType parses a LevelType from its canonical string form.
func StringToLevelType(s string) (LevelType, error) {
	switch strings.ToUpper(s) {
	case entryStr:
		return Entry, nil
	case exitStr:
		return Exit, nil
	default:
		return UnknownLevelType, fmt.Errorf("%w: %q", ErrInvalidLevelType, s)
	}
}

// MarshalJSON implements json.Marshaler.
func (l LevelType) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *LevelType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := StringToLevelType(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Level is one rung of a grid: a spread threshold paired with a direction,
// a type (entry/exit) and the fraction of the configured position size it
// represents (spec.md §3 "GridLevel").
type Level struct {
	SpreadPercentage    decimal.Decimal
	Direction           Direction
	Type                LevelType
	PositionSizePercent decimal.Decimal
}

// NaturalKey renders the level's natural key, "{spread:F4}|{direction}|{type}",
// matching spec.md §3 exactly — this is also the value used as a
// GridPosition's Tag (via LevelPair.Entry.NaturalKey).
func (l Level) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s", formatF4(l.SpreadPercentage), l.Direction, l.Type)
}

// LevelPair bundles the entry and exit rungs of one grid level. Invariant:
// Entry.Type == Entry, Exit.Type == Exit, and Entry.Direction is the
// direction the position opens (spec.md §3 "GridLevelPair").
type LevelPair struct {
	Entry Level
	Exit  Level
}

// ErrInvalidLevelPair is returned by Validate when the entry/exit type
// invariant is violated.
var ErrInvalidLevelPair = errors.New("invalid grid level pair")

// Validate checks the LevelPair invariant described in spec.md §3.
func (p LevelPair) Validate() error {
	if p.Entry.Type != Entry {
		return fmt.Errorf("%w: entry level has type %s", ErrInvalidLevelPair, p.Entry.Type)
	}
	if p.Exit.Type != Exit {
		return fmt.Errorf("%w: exit level has type %s", ErrInvalidLevelPair, p.Exit.Type)
	}
	return nil
}

// formatF4 renders a decimal with exactly four fractional digits, in an
// invariant (locale-free) form — the "F4" semantics spec.md §4.2 and §9
// require to keep tags byte-stable across hosts.
func formatF4(d decimal.Decimal) string {
	return d.StringFixed(4)
}
