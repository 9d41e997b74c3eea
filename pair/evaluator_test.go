package pair

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/grid"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestEvaluateInvalidPrices(t *testing.T) {
	t.Parallel()
	// leg1 bid > ask is invalid.
	r := Evaluate(d("102"), d("101"), d("99"), d("100"))
	if r.HasValidPrices {
		t.Fatal("expected invalid prices")
	}
	if r.MarketState != Unknown {
		t.Errorf("expected Unknown state received %v", r.MarketState)
	}

	r = Evaluate(d("0"), d("101"), d("99"), d("100"))
	if r.HasValidPrices {
		t.Fatal("expected invalid prices for non-positive quote")
	}
}

// TestEvaluateCrossedShortSpread reproduces spec.md §8 scenario S6.
func TestEvaluateCrossedShortSpread(t *testing.T) {
	t.Parallel()
	r := Evaluate(d("101"), d("102"), d("99"), d("100"))
	if !r.HasValidPrices {
		t.Fatal("expected valid prices")
	}
	if r.MarketState != Crossed {
		t.Fatalf("expected Crossed received %v", r.MarketState)
	}
	if r.Direction != grid.ShortSpread {
		t.Fatalf("expected ShortSpread received %v", r.Direction)
	}
	expectedShort := d("1").Div(d("101"))
	if !r.ShortSpread.Equal(expectedShort) {
		t.Errorf("expected short spread %v received %v", expectedShort, r.ShortSpread)
	}
	if !r.ExecutableSpread.Equal(r.ShortSpread) {
		t.Errorf("expected executable spread to equal short spread, received %v", r.ExecutableSpread)
	}
}

func TestEvaluateCrossedLongSpread(t *testing.T) {
	t.Parallel()
	// leg2 bid > leg1 ask => Crossed, LongSpread.
	r := Evaluate(d("90"), d("91"), d("95"), d("96"))
	if r.MarketState != Crossed {
		t.Fatalf("expected Crossed received %v", r.MarketState)
	}
	if r.Direction != grid.LongSpread {
		t.Fatalf("expected LongSpread received %v", r.Direction)
	}
	if !r.ExecutableSpread.Equal(r.LongSpread) {
		t.Errorf("expected executable spread to equal long spread, received %v", r.ExecutableSpread)
	}
}

func TestEvaluateLimitOpportunityPatternA(t *testing.T) {
	t.Parallel()
	// leg1_ask > leg2_ask > leg1_bid > leg2_bid
	r := Evaluate(d("100"), d("104"), d("98"), d("102"))
	if r.MarketState != LimitOpportunity {
		t.Fatalf("expected LimitOpportunity received %v", r.MarketState)
	}
	if r.Direction != grid.ShortSpread {
		t.Fatalf("expected ShortSpread received %v", r.Direction)
	}
	a := d("104").Sub(d("102")).Div(d("104"))
	b := d("100").Sub(d("98")).Div(d("100"))
	expected := maxDecimal(a, b)
	if !r.ExecutableSpread.Equal(expected) {
		t.Errorf("expected %v received %v", expected, r.ExecutableSpread)
	}
}

func TestEvaluateLimitOpportunityPatternB(t *testing.T) {
	t.Parallel()
	// leg2_ask > leg1_ask > leg2_bid > leg1_bid
	r := Evaluate(d("98"), d("102"), d("100"), d("104"))
	if r.MarketState != LimitOpportunity {
		t.Fatalf("expected LimitOpportunity received %v", r.MarketState)
	}
	if r.Direction != grid.LongSpread {
		t.Fatalf("expected LongSpread received %v", r.Direction)
	}
	a := d("102").Sub(d("100")).Div(d("102"))
	b := d("98").Sub(d("104")).Div(d("98"))
	expected := minDecimal(a, b)
	if !r.ExecutableSpread.Equal(expected) {
		t.Errorf("expected %v received %v", expected, r.ExecutableSpread)
	}
}

func TestEvaluateNoOpportunity(t *testing.T) {
	t.Parallel()
	r := Evaluate(d("100"), d("102"), d("100.5"), d("101.5"))
	if r.MarketState != NoOpportunity {
		t.Fatalf("expected NoOpportunity received %v", r.MarketState)
	}
	if r.HasExecutableSpread {
		t.Error("expected no executable spread")
	}
}

func TestArgmaxByAbsKeepsSign(t *testing.T) {
	t.Parallel()
	got := argmaxByAbs(d("-5"), d("3"))
	if !got.Equal(d("-5")) {
		t.Errorf("expected -5 received %v", got)
	}
}
