package pair

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/currency"
	"github.com/thrasher-corp/gridarb/grid"
	"github.com/thrasher-corp/gridarb/security"
	"github.com/thrasher-corp/gridarb/symbol"
)

func newTestPair(t *testing.T) *TradingPair {
	t.Helper()
	leg1Sym := symbol.New("BTCUSDT", symbol.Crypto, "bybit")
	leg2Sym := symbol.New("BTCUSDT", symbol.CryptoFuture, "bybit")
	leg1Sec := security.New(leg1Sym, currency.BTC, currency.USDT, security.Properties{})
	leg2Sec := security.New(leg2Sym, currency.BTC, currency.USDT, security.Properties{})
	lp := grid.LevelPair{
		Entry: grid.Level{Type: grid.Entry, Direction: grid.ShortSpread, SpreadPercentage: d("0.01")},
		Exit:  grid.Level{Type: grid.Exit, Direction: grid.ShortSpread, SpreadPercentage: d("0.002")},
	}
	return New(leg1Sym, leg2Sym, "basis", leg1Sec, leg2Sec, []grid.LevelPair{lp})
}

func TestTradingPairUpdate(t *testing.T) {
	t.Parallel()
	p := newTestPair(t)
	p.leg1Security.UpdateQuote(d("101"), d("102"), d("101"))
	p.leg2Security.UpdateQuote(d("99"), d("100"), d("99"))

	now := time.Now()
	result := p.Update(now)
	if result.MarketState != Crossed {
		t.Fatalf("expected Crossed received %v", result.MarketState)
	}

	snap, lastUpdate := p.Snapshot()
	if snap.MarketState != Crossed {
		t.Errorf("expected snapshot to reflect Crossed, received %v", snap.MarketState)
	}
	if !lastUpdate.Equal(now) {
		t.Error("expected last update time to be recorded")
	}
	if len(p.SpreadHistory()) != 1 {
		t.Errorf("expected 1 spread sample recorded, received %d", len(p.SpreadHistory()))
	}
}

func TestGetOrCreatePositionIdempotent(t *testing.T) {
	t.Parallel()
	p := newTestPair(t)
	lp := p.GridLevels()[0]

	pos1 := p.GetOrCreatePosition(lp, time.Now())
	pos2 := p.GetOrCreatePosition(lp, time.Now())
	if pos1 != pos2 {
		t.Fatal("expected GetOrCreatePosition to be idempotent per key")
	}
	if len(p.Positions()) != 1 {
		t.Errorf("expected 1 position received %d", len(p.Positions()))
	}
}

func TestRemovePosition(t *testing.T) {
	t.Parallel()
	p := newTestPair(t)
	lp := p.GridLevels()[0]
	pos := p.GetOrCreatePosition(lp, time.Now())
	p.RemovePosition(pos.Tag())
	if len(p.Positions()) != 0 {
		t.Errorf("expected position removed, received %d remaining", len(p.Positions()))
	}
}

func TestAggregateQuantity(t *testing.T) {
	t.Parallel()
	p := newTestPair(t)
	lp := p.GridLevels()[0]
	pos := p.GetOrCreatePosition(lp, time.Now())
	pos.Leg1Quantity = decimal.NewFromInt(5)

	got := p.AggregateQuantity(p.Leg1Symbol)
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected 5 received %v", got)
	}
}
