// Package order defines the event and execution-history shapes the grid
// arbitrage core consumes: host-emitted OrderEvents and
// broker-history-sourced ExecutionRecords. Grounded in the teacher's
// exchanges/futures package (order.Detail, order.Side, order.ErrSideIsInvalid
// surface referenced directly by exchanges/futures/futures_test.go) and its
// enum/JSON idiom (exchanges/collateral's Mode, currency's Role).
package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/symbol"
)

// Status is the lifecycle state of a host order, per spec.md §3.
type Status uint8

const (
	None Status = iota
	New
	Submitted
	PartiallyFilled
	Filled
	Canceled
	Invalid
	UpdateSubmitted
)

var statusStrings = map[Status]string{
	None:            "NONE",
	New:             "NEW",
	Submitted:       "SUBMITTED",
	PartiallyFilled: "PARTIALLY_FILLED",
	Filled:          "FILLED",
	Canceled:        "CANCELED",
	Invalid:         "INVALID",
	UpdateSubmitted: "UPDATE_SUBMITTED",
}

// ErrInvalidStatus is returned when a string cannot be parsed into a Status.
var ErrInvalidStatus = errors.New("invalid order status")

// String implements fmt.Stringer.
func (s Status) String() string {
	if v, ok := statusStrings[s]; ok {
		return v
	}
	return "UNKNOWN"
}

// IsTerminal reports whether the status ends the order's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case Filled, Canceled, Invalid:
		return true
	default:
		return false
	}
}

// IsActionable reports whether the status can mutate a grid position
// (spec.md §4.4 step 5: only PartiallyFilled/Filled/Canceled/Invalid act).
func (s Status) IsActionable() bool {
	switch s {
	case PartiallyFilled, Filled, Canceled, Invalid:
		return true
	default:
		return false
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	for k, v := range statusStrings {
		if v == strings.ToUpper(str) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, str)
}

// Direction is the side of an order or execution.
type Direction int8

const (
	Sell Direction = -1
	Flat Direction = 0
	Buy  Direction = 1
)

// ErrSideIsInvalid mirrors the teacher's order.ErrSideIsInvalid. No function
// in this module returns it; SignOf reports a zero quantity as Flat.
var ErrSideIsInvalid = errors.New("order side is invalid")

// String implements fmt.Stringer.
func (d Direction) String() string {
	switch d {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "FLAT"
	}
}

// SignOf returns Buy for a positive quantity, Sell for negative, Flat for
// zero — the canonical way to derive a Direction from a signed fill
// quantity (spec.md §4.5 step 5: "direction=sign(quantity)").
func SignOf(qty decimal.Decimal) Direction {
	switch {
	case qty.IsPositive():
		return Buy
	case qty.IsNegative():
		return Sell
	default:
		return Flat
	}
}

// Ticket carries the grid-identity tag attached to an order, when present.
// A zero-value Ticket (Tag == "") means the order is not grid-managed.
type Ticket struct {
	Tag string
}

// HasTag reports whether a grid tag is attached.
func (t Ticket) HasTag() bool {
	return t.Tag != ""
}

// Event is the host-emitted notification the core's ProcessGridOrderEvent
// entry point consumes (spec.md §3 "OrderEvent").
type Event struct {
	OrderID      string
	ExecutionID  string
	Symbol       symbol.Symbol
	Time         time.Time
	Status       Status
	Direction    Direction
	FillPrice    decimal.Decimal
	FillQuantity decimal.Decimal
	Fee          decimal.Decimal
	Ticket       Ticket
}

// SignedFillQuantity returns FillQuantity signed by Direction (positive for
// Buy, negative for Sell), the convention GridPosition.ProcessFill expects.
func (e Event) SignedFillQuantity() decimal.Decimal {
	if e.Direction == Sell {
		return e.FillQuantity.Abs().Neg()
	}
	return e.FillQuantity.Abs()
}

// Record is a broker-confirmed execution retrieved from the execution
// history provider (spec.md §3 "ExecutionRecord").
type Record struct {
	ExecutionID    string
	Symbol         symbol.Symbol
	SignedQuantity decimal.Decimal
	Price          decimal.Decimal
	Time           time.Time
	Tag            string
	Fee            decimal.Decimal
	FeeCurrency    string
}

// Snapshot is the dedup cache entry recorded per processed execution
// (spec.md §3 "ExecutionSnapshot").
type Snapshot struct {
	ExecutionID string
	Time        time.Time
	Market      symbol.Market
}
