package security

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/currency"
	"github.com/thrasher-corp/gridarb/symbol"
)

func TestSecuritySnapshot(t *testing.T) {
	t.Parallel()
	sym := symbol.New("BTCUSDT", symbol.Crypto, "bybit")
	sec := New(sym, currency.BTC, currency.USDT, Properties{LotSize: decimal.NewFromFloat(0.001)})
	sec.UpdateQuote(decimal.NewFromInt(100), decimal.NewFromInt(101), decimal.NewFromInt(100))

	snap := sec.Snapshot()
	if !snap.Bid.Equal(decimal.NewFromInt(100)) || !snap.Ask.Equal(decimal.NewFromInt(101)) {
		t.Errorf("unexpected snapshot quotes: %+v", snap)
	}
	if !snap.Symbol.Equal(sym) {
		t.Error("expected snapshot symbol to match")
	}
}

func TestMapRegistry(t *testing.T) {
	t.Parallel()
	reg := NewMapRegistry()
	sym := symbol.New("BTCUSDT", symbol.Crypto, "bybit")
	sec := New(sym, currency.BTC, currency.USDT, Properties{})
	reg.Register(sec)

	got, ok := reg.Get(sym)
	if !ok || got != sec {
		t.Fatal("expected registered security to be retrievable")
	}

	_, ok = reg.Get(symbol.New("ETHUSDT", symbol.Crypto, "bybit"))
	if ok {
		t.Fatal("expected unknown symbol to not be found")
	}

	if len(reg.All()) != 1 {
		t.Errorf("expected 1 registered security received %d", len(reg.All()))
	}
}
