package pairmanager

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/currency"
	"github.com/thrasher-corp/gridarb/grid"
	"github.com/thrasher-corp/gridarb/order"
	"github.com/thrasher-corp/gridarb/security"
	"github.com/thrasher-corp/gridarb/symbol"
)

func newTestManager(t *testing.T) (*Manager, symbol.Symbol, symbol.Symbol, grid.LevelPair) {
	t.Helper()
	reg := security.NewMapRegistry()
	leg1 := symbol.New("BTCUSDT", symbol.Crypto, "bybit")
	leg2 := symbol.New("BTCUSDT", symbol.CryptoFuture, "bybit")
	reg.Register(security.New(leg1, currency.BTC, currency.USDT, security.Properties{}))
	reg.Register(security.New(leg2, currency.BTC, currency.USDT, security.Properties{}))

	m := New(reg)
	lp := grid.LevelPair{
		Entry: grid.Level{Type: grid.Entry, Direction: grid.ShortSpread, SpreadPercentage: decimal.NewFromFloat(0.01), PositionSizePercent: decimal.NewFromFloat(0.5)},
		Exit:  grid.Level{Type: grid.Exit, Direction: grid.ShortSpread, SpreadPercentage: decimal.NewFromFloat(0.002), PositionSizePercent: decimal.NewFromFloat(0.5)},
	}
	_, err := m.AddPair(leg1, leg2, "basis", []grid.LevelPair{lp})
	if err != nil {
		t.Fatal(err)
	}
	return m, leg1, leg2, lp
}

func TestAddPairIdempotent(t *testing.T) {
	t.Parallel()
	m, leg1, leg2, lp := newTestManager(t)
	p1, err := m.AddPair(leg1, leg2, "basis", []grid.LevelPair{lp})
	if err != nil {
		t.Fatal(err)
	}
	p2, err := m.AddPair(leg1, leg2, "basis", []grid.LevelPair{lp})
	if err != nil {
		t.Fatal(err)
	}
	if p1 != p2 {
		t.Fatal("expected AddPair to be idempotent")
	}
}

func TestAddPairUnknownSymbol(t *testing.T) {
	t.Parallel()
	reg := security.NewMapRegistry()
	m := New(reg)
	leg1 := symbol.New("BTCUSDT", symbol.Crypto, "bybit")
	leg2 := symbol.New("BTCUSDT", symbol.CryptoFuture, "bybit")
	_, err := m.AddPair(leg1, leg2, "basis", nil)
	if err == nil {
		t.Fatal("expected error for unregistered symbol")
	}
}

func TestProcessGridOrderEventAppliesFill(t *testing.T) {
	t.Parallel()
	m, leg1, leg2, lp := newTestManager(t)
	tag := grid.EncodeTag(leg1, leg2, lp)

	evt := order.Event{
		OrderID:     "1",
		ExecutionID: "ex-1",
		Symbol:      leg1,
		Time:        time.Now(),
		Status:      order.PartiallyFilled,
		Direction:   order.Sell,
		FillPrice:   decimal.NewFromInt(100),
		FillQuantity: decimal.NewFromInt(1),
		Ticket:      order.Ticket{Tag: tag},
	}

	outcome := m.ProcessGridOrderEvent(evt)
	if outcome != Applied {
		t.Fatalf("expected Applied received %v", outcome)
	}

	tp, ok := m.GetPair(leg1, leg2)
	if !ok {
		t.Fatal("expected pair to be managed")
	}
	pos, ok := tp.GetPosition(lp.Entry.NaturalKey())
	if !ok {
		t.Fatal("expected position to exist")
	}
	if !pos.Leg1Quantity.Equal(decimal.NewFromInt(-1)) {
		t.Errorf("expected -1 received %v", pos.Leg1Quantity)
	}
}

func TestProcessGridOrderEventExactlyOnce(t *testing.T) {
	t.Parallel()
	m, leg1, leg2, lp := newTestManager(t)
	tag := grid.EncodeTag(leg1, leg2, lp)
	evt := order.Event{
		ExecutionID: "dup-1",
		Symbol:      leg1,
		Time:        time.Now(),
		Status:      order.Filled,
		Direction:   order.Sell,
		FillPrice:   decimal.NewFromInt(100),
		FillQuantity: decimal.NewFromInt(1),
		Ticket:      order.Ticket{Tag: tag},
	}
	first := m.ProcessGridOrderEvent(evt)
	second := m.ProcessGridOrderEvent(evt)
	if first != Applied {
		t.Fatalf("expected first application to be Applied, received %v", first)
	}
	if second != DuplicateExecution {
		t.Fatalf("expected second application to be DuplicateExecution, received %v", second)
	}
}

func TestProcessGridOrderEventRemovesFlatPositionOnFilled(t *testing.T) {
	t.Parallel()
	m, leg1, leg2, lp := newTestManager(t)
	tag := grid.EncodeTag(leg1, leg2, lp)

	open := order.Event{
		ExecutionID: "open", Symbol: leg1, Time: time.Now(), Status: order.Filled,
		Direction: order.Sell, FillPrice: decimal.NewFromInt(100), FillQuantity: decimal.NewFromInt(1),
		Ticket: order.Ticket{Tag: tag},
	}
	m.ProcessGridOrderEvent(open)

	closeEvt := order.Event{
		ExecutionID: "close", Symbol: leg1, Time: time.Now(), Status: order.Filled,
		Direction: order.Buy, FillPrice: decimal.NewFromInt(90), FillQuantity: decimal.NewFromInt(1),
		Ticket: order.Ticket{Tag: tag},
	}
	m.ProcessGridOrderEvent(closeEvt)

	tp, _ := m.GetPair(leg1, leg2)
	if _, ok := tp.GetPosition(lp.Entry.NaturalKey()); ok {
		t.Fatal("expected flat position to be removed after Filled")
	}
}

func TestProcessGridOrderEventDecodeFailure(t *testing.T) {
	t.Parallel()
	m, leg1, _, _ := newTestManager(t)
	evt := order.Event{Symbol: leg1, Time: time.Now(), Status: order.Filled, Ticket: order.Ticket{Tag: "not-a-valid-tag"}}
	if outcome := m.ProcessGridOrderEvent(evt); outcome != DecodeFailed {
		t.Fatalf("expected DecodeFailed received %v", outcome)
	}
}

func TestProcessGridOrderEventNonActionable(t *testing.T) {
	t.Parallel()
	m, leg1, leg2, lp := newTestManager(t)
	tag := grid.EncodeTag(leg1, leg2, lp)
	evt := order.Event{Symbol: leg1, Time: time.Now(), Status: order.New, Ticket: order.Ticket{Tag: tag}}
	if outcome := m.ProcessGridOrderEvent(evt); outcome != NonActionable {
		t.Fatalf("expected NonActionable received %v", outcome)
	}
}

func TestLastFillTimeMonotonic(t *testing.T) {
	t.Parallel()
	m, leg1, leg2, lp := newTestManager(t)
	tag := grid.EncodeTag(leg1, leg2, lp)

	t1 := time.Now()
	t2 := t1.Add(-time.Hour)

	m.ProcessGridOrderEvent(order.Event{ExecutionID: "a", Symbol: leg1, Time: t1, Status: order.PartiallyFilled, FillQuantity: decimal.NewFromInt(1), Ticket: order.Ticket{Tag: tag}})
	m.ProcessGridOrderEvent(order.Event{ExecutionID: "b", Symbol: leg1, Time: t2, Status: order.PartiallyFilled, FillQuantity: decimal.NewFromInt(1), Ticket: order.Ticket{Tag: tag}})

	got, ok := m.LastFillTime(leg1.Market)
	if !ok {
		t.Fatal("expected last fill time recorded")
	}
	if !got.Equal(t1) {
		t.Errorf("expected last fill time to stay at the later t1, received %v", got)
	}
}

func TestGridAggregate(t *testing.T) {
	t.Parallel()
	m, leg1, leg2, lp := newTestManager(t)
	tag := grid.EncodeTag(leg1, leg2, lp)
	m.ProcessGridOrderEvent(order.Event{
		ExecutionID: "a", Symbol: leg1, Time: time.Now(), Status: order.PartiallyFilled,
		Direction: order.Buy, FillQuantity: decimal.NewFromInt(3), FillPrice: decimal.NewFromInt(10),
		Ticket: order.Ticket{Tag: tag},
	})
	got := m.GridAggregate(leg1)
	if !got.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected 3 received %v", got)
	}
}
