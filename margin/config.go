// Package margin implements the unified cross-margin engine of spec.md
// §4.6: buying power and maintenance-margin computation for a futures
// account backed by discounted spot collateral.
//
// Grounded on the teacher's exchanges/collateral package (a Mode enum plus
// per-currency configuration consulted by margin calculations) and
// exchanges/futures (PNL/margin data shapes, tiered-rate pattern).
package margin

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/currency"
)

// ErrInvalidConfig is returned by Config.Validate for any configuration
// defect spec.md §4.6 names: an empty tier list, a non-positive threshold,
// or a rate outside [0,1].
var ErrInvalidConfig = errors.New("invalid margin configuration")

// Tier is one rung of a (threshold, rate) schedule: thresholds must be
// strictly positive; the tier helpers sort a schedule by threshold, so the
// order of the slice does not matter. The highest tier conventionally
// carries an unbounded (very large) threshold to act as "the rest".
type Tier struct {
	Threshold decimal.Decimal
	Rate      decimal.Decimal
}

// Config is the unified margin engine's full parameter set (spec.md §4.6
// "Configuration").
type Config struct {
	Leverage                      decimal.Decimal
	DefaultMaintenanceRate        decimal.Decimal
	CurrencyDiscounts             map[string]decimal.Decimal
	DefaultCurrencyDiscount       decimal.Decimal
	TierMaintenanceRates          []Tier
	BorrowingMarginRates          map[string]decimal.Decimal
	DefaultBorrowingMarginRate    decimal.Decimal
	BorrowingTierRates            map[string][]Tier
	RequiredFreeBuyingPowerPercent decimal.Decimal
}

// DefaultConfig returns spec.md §4.6's documented defaults.
func DefaultConfig() Config {
	return Config{
		Leverage:                decimal.NewFromInt(5),
		DefaultMaintenanceRate:  decimal.NewFromFloat(0.02),
		DefaultCurrencyDiscount: decimal.NewFromFloat(0.85),
		CurrencyDiscounts: map[string]decimal.Decimal{
			currency.USDT.Upper().String(): decimal.NewFromFloat(1.00),
			currency.USDC.Upper().String(): decimal.NewFromFloat(1.00),
			currency.BTC.Upper().String():  decimal.NewFromFloat(0.95),
			currency.ETH.Upper().String():  decimal.NewFromFloat(0.95),
			currency.BNB.Upper().String():  decimal.NewFromFloat(0.90),
			currency.SOL.Upper().String():  decimal.NewFromFloat(0.90),
			currency.DOGE.Upper().String(): decimal.NewFromFloat(0.85),
			currency.ADA.Upper().String():  decimal.NewFromFloat(0.85),
			currency.DOT.Upper().String():  decimal.NewFromFloat(0.85),
			currency.MATIC.Upper().String(): decimal.NewFromFloat(0.80),
		},
		TierMaintenanceRates: []Tier{
			{Threshold: decimal.NewFromInt(50_000), Rate: decimal.NewFromFloat(0.005)},
			{Threshold: decimal.NewFromInt(500_000), Rate: decimal.NewFromFloat(0.02)},
			{Threshold: unboundedThreshold(), Rate: decimal.NewFromFloat(0.05)},
		},
		DefaultBorrowingMarginRate: decimal.NewFromFloat(0.30),
		BorrowingMarginRates: map[string]decimal.Decimal{
			currency.USDT.Upper().String(): decimal.NewFromFloat(0.25),
			currency.BTC.Upper().String():  decimal.NewFromFloat(0.30),
			currency.ETH.Upper().String():  decimal.NewFromFloat(0.30),
		},
		BorrowingTierRates: map[string][]Tier{
			currency.USDT.Upper().String(): defaultUSDTBorrowingTiers(),
		},
		// spec.md §4.6 names this field but gives it no documented default;
		// zero (no reserve) matches the arithmetic of scenarios S1/S2 in
		// spec.md §8, where the reservation term evaluates to zero.
		RequiredFreeBuyingPowerPercent: decimal.Zero,
	}
}

// unboundedThreshold stands in for "infinity" as the final tier's threshold:
// large enough that no realistic position value exceeds it.
func unboundedThreshold() decimal.Decimal {
	return decimal.NewFromInt(1_000_000_000_000)
}

// defaultUSDTBorrowingTiers is a synthesized eight-tier cumulative
// tax-bracket schedule in the shape spec.md §4.6 names ("eight-tier USDT
// schedule") without specifying exact figures; modeled on the cumulative
// cross-margin tier schedules common among centralized exchanges.
func defaultUSDTBorrowingTiers() []Tier {
	return []Tier{
		{Threshold: decimal.NewFromInt(20_000), Rate: decimal.NewFromFloat(0.02)},
		{Threshold: decimal.NewFromInt(70_000), Rate: decimal.NewFromFloat(0.025)},
		{Threshold: decimal.NewFromInt(170_000), Rate: decimal.NewFromFloat(0.03)},
		{Threshold: decimal.NewFromInt(370_000), Rate: decimal.NewFromFloat(0.04)},
		{Threshold: decimal.NewFromInt(770_000), Rate: decimal.NewFromFloat(0.05)},
		{Threshold: decimal.NewFromInt(1_770_000), Rate: decimal.NewFromFloat(0.065)},
		{Threshold: decimal.NewFromInt(3_770_000), Rate: decimal.NewFromFloat(0.08)},
		{Threshold: unboundedThreshold(), Rate: decimal.NewFromFloat(0.10)},
	}
}

// Validate enforces spec.md §4.6's configuration-error rules: empty tier
// list, non-positive threshold, or rate outside [0,1] is a configuration
// error surfaced at construction.
func (c Config) Validate() error {
	if err := validateTiers(c.TierMaintenanceRates); err != nil {
		return fmt.Errorf("tier_maintenance_rates: %w", err)
	}
	for code, tiers := range c.BorrowingTierRates {
		if err := validateTiers(tiers); err != nil {
			return fmt.Errorf("borrowing_tier_rates[%s]: %w", code, err)
		}
	}
	for code, rate := range c.CurrencyDiscounts {
		if err := validateRate(rate); err != nil {
			return fmt.Errorf("currency_discounts[%s]: %w", code, err)
		}
	}
	for code, rate := range c.BorrowingMarginRates {
		if err := validateRate(rate); err != nil {
			return fmt.Errorf("borrowing_margin_rates[%s]: %w", code, err)
		}
	}
	if err := validateRate(c.DefaultMaintenanceRate); err != nil {
		return fmt.Errorf("default_maintenance_rate: %w", err)
	}
	if err := validateRate(c.DefaultCurrencyDiscount); err != nil {
		return fmt.Errorf("default_currency_discount: %w", err)
	}
	if err := validateRate(c.DefaultBorrowingMarginRate); err != nil {
		return fmt.Errorf("default_borrowing_margin_rate: %w", err)
	}
	if !c.Leverage.IsPositive() {
		return fmt.Errorf("%w: leverage must be positive, got %s", ErrInvalidConfig, c.Leverage)
	}
	return nil
}

func validateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("%w: tier list must not be empty", ErrInvalidConfig)
	}
	for _, t := range tiers {
		if !t.Threshold.IsPositive() {
			return fmt.Errorf("%w: threshold must be strictly positive, got %s", ErrInvalidConfig, t.Threshold)
		}
		if err := validateRate(t.Rate); err != nil {
			return err
		}
	}
	return nil
}

func validateRate(r decimal.Decimal) error {
	if r.IsNegative() || r.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: rate must be in [0,1], got %s", ErrInvalidConfig, r)
	}
	return nil
}

// discount returns the configured collateral discount for code, falling
// back to DefaultCurrencyDiscount for any currency not explicitly listed
// (spec.md §4.8: "Unknown currency in discount map ⇒ use default 0.85").
func (c Config) discount(code currency.Code) decimal.Decimal {
	if rate, ok := c.CurrencyDiscounts[code.Upper().String()]; ok {
		return rate
	}
	return c.DefaultCurrencyDiscount
}

// borrowingMarginRate returns the flat borrowing-margin rate for code,
// falling back to DefaultBorrowingMarginRate (spec.md §4.8: "Borrow amount
// for unmetered currency ⇒ fall back to borrowing_margin_rates[currency] or
// 0.30").
func (c Config) borrowingMarginRate(code currency.Code) decimal.Decimal {
	if rate, ok := c.BorrowingMarginRates[code.Upper().String()]; ok {
		return rate
	}
	return c.DefaultBorrowingMarginRate
}

// tieredRate selects the rate of the tier with the smallest threshold that
// strictly exceeds value (spec.md §4.6: "tier selected by the smallest
// threshold exceeding abs(position_value_USD)"). Tiers need not be
// pre-sorted by the caller.
func tieredRate(tiers []Tier, value decimal.Decimal) decimal.Decimal {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Threshold.LessThan(sorted[j].Threshold)
	})
	for _, t := range sorted {
		if value.LessThan(t.Threshold) {
			return t.Rate
		}
	}
	return sorted[len(sorted)-1].Rate
}

// cumulativeTaxBracket computes Σ (min(value, thr_i) - thr_{i-1}) * rate_i
// across rising thresholds, the progressive-bracket computation spec.md
// §4.6 specifies for borrowing maintenance margin when a tier schedule
// exists.
func cumulativeTaxBracket(tiers []Tier, value decimal.Decimal) decimal.Decimal {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Threshold.LessThan(sorted[j].Threshold)
	})

	total := decimal.Zero
	prev := decimal.Zero
	for _, t := range sorted {
		if value.LessThanOrEqual(prev) {
			break
		}
		upper := t.Threshold
		bracket := decimal.Min(value, upper).Sub(prev)
		if bracket.IsPositive() {
			total = total.Add(bracket.Mul(t.Rate))
		}
		prev = upper
	}
	return total
}
