package symbol

import (
	"errors"
	"testing"
	"time"
)

func TestTypeString(t *testing.T) {
	t.Parallel()
	if Crypto.String() != cryptoTypeStr {
		t.Errorf("expected %s received %s", cryptoTypeStr, Crypto)
	}
	if Type(137).String() != unknownTypeStr {
		t.Errorf("expected %s received %s", unknownTypeStr, Type(137))
	}
}

func TestStringToType(t *testing.T) {
	t.Parallel()
	got, err := StringToType("crypto")
	if err != nil {
		t.Fatal(err)
	}
	if got != Crypto {
		t.Errorf("expected %v received %v", Crypto, got)
	}

	_, err = StringToType("nonsense")
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("expected %v received %v", ErrInvalidType, err)
	}
}

func TestIsLeveraged(t *testing.T) {
	t.Parallel()
	if Base.IsLeveraged() {
		t.Error("expected Base to be unleveraged")
	}
	if Internal.IsLeveraged() {
		t.Error("expected Internal to be unleveraged")
	}
	if !CryptoFuture.IsLeveraged() {
		t.Error("expected CryptoFuture to be leveraged")
	}
}

func TestMarketEqual(t *testing.T) {
	t.Parallel()
	if !Market("Bybit").Equal(Market("BYBIT")) {
		t.Error("expected case-insensitive equality")
	}
	if Market("Bybit").Equal(Market("Binance")) {
		t.Error("expected inequality")
	}
}

func TestSymbolStringRoundTrip(t *testing.T) {
	t.Parallel()
	s := New("BTCUSDT", Crypto, "bybit")
	parsed, err := Parse(s.String())
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(s) {
		t.Errorf("expected %+v received %+v", s, parsed)
	}

	exp := time.Date(2024, 12, 27, 0, 0, 0, 0, time.UTC)
	withExp := NewWithExpiration("BTC", Future, "bybit", exp)
	parsed, err = Parse(withExp.String())
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(withExp) {
		t.Errorf("expected %+v received %+v", withExp, parsed)
	}
}

func TestSymbolParseInvalid(t *testing.T) {
	t.Parallel()
	cases := []string{
		"",
		"BTC:CRYPTO",
		"BTC:NOTATYPE:bybit:-",
		":CRYPTO:bybit:-",
		"BTC:CRYPTO:bybit:notanumber",
	}
	for _, c := range cases {
		if _, err := Parse(c); !errors.Is(err, ErrInvalidSymbolString) {
			t.Errorf("case %q: expected ErrInvalidSymbolString, received %v", c, err)
		}
	}
}

func TestSymbolEmpty(t *testing.T) {
	t.Parallel()
	var s Symbol
	if !s.IsEmpty() {
		t.Error("expected zero value to be empty")
	}
	if New("BTC", Crypto, "bybit").IsEmpty() {
		t.Error("expected non-zero value to not be empty")
	}
}
