package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fees is the government fee schedule plus the price-book tuning profile.
// It is passed into calculators at construction so tests can pin it.
type Fees struct {
	GeneralCap         decimal.Decimal
	ConcessionalCap    decimal.Decimal
	DispensingFee      decimal.Decimal
	ContainerFee       decimal.Decimal
	ExtraDispensingFee decimal.Decimal
	PharmaceuticalFee  decimal.Decimal

	// Price-book only.
	FlatFileFDPAdjustment decimal.Decimal
	FlatFileBrandMarkup   decimal.Decimal
}

// DefaultFees returns the current retail schedule in AUD.
func DefaultFees() Fees {
	return Fees{
		GeneralCap:            decimal.RequireFromString("31.60"),
		ConcessionalCap:       decimal.RequireFromString("7.70"),
		DispensingFee:         decimal.RequireFromString("7.82"),
		ContainerFee:          decimal.RequireFromString("1.26"),
		ExtraDispensingFee:    decimal.RequireFromString("3.40"),
		PharmaceuticalFee:     decimal.RequireFromString("1.33"),
		FlatFileFDPAdjustment: decimal.RequireFromString("5.00"),
		FlatFileBrandMarkup:   decimal.RequireFromString("4.20"),
	}
}

// Validate rejects negative fees and non-positive caps.
func (f Fees) Validate() error {
	caps := map[string]decimal.Decimal{
		"general cap":      f.GeneralCap,
		"concessional cap": f.ConcessionalCap,
	}
	for name, v := range caps {
		if !v.IsPositive() {
			return fmt.Errorf("%s must be positive, got %s", name, v)
		}
	}
	fees := map[string]decimal.Decimal{
		"dispensing fee":            f.DispensingFee,
		"container fee":             f.ContainerFee,
		"extra dispensing fee":      f.ExtraDispensingFee,
		"pharmaceutical fee":        f.PharmaceuticalFee,
		"price-book FDP adjustment": f.FlatFileFDPAdjustment,
		"price-book brand markup":   f.FlatFileBrandMarkup,
	}
	for name, v := range fees {
		if v.IsNegative() {
			return fmt.Errorf("%s must not be negative, got %s", name, v)
		}
	}
	return nil
}

// fullFees is every fee added on top of a DPMQ that carries no fees yet.
func (f Fees) fullFees() decimal.Decimal {
	return f.DispensingFee.Add(f.ContainerFee).Add(f.ExtraDispensingFee).Add(f.PharmaceuticalFee)
}

// loadedFees is what is still added to a DPMQ that already embeds the
// dispensing and container fees.
func (f Fees) loadedFees() decimal.Decimal {
	return f.ExtraDispensingFee.Add(f.PharmaceuticalFee)
}

type markupBand struct {
	upTo decimal.Decimal
	rate decimal.Decimal // applied when flat is zero
	flat decimal.Decimal
}

var markupBands = []markupBand{
	{upTo: decimal.RequireFromString("30.00"), rate: decimal.RequireFromString("0.15")},
	{upTo: decimal.RequireFromString("45.00"), flat: decimal.RequireFromString("4.50")},
	{upTo: decimal.RequireFromString("450.00"), rate: decimal.RequireFromString("0.10")},
	{upTo: decimal.RequireFromString("1000.00"), flat: decimal.RequireFromString("45.00")},
	{upTo: decimal.RequireFromString("2000.00"), rate: decimal.RequireFromString("0.045")},
}

var markupCeiling = decimal.RequireFromString("90.00")

// MarkupTier is the wholesale markup for a pre-markup price. Band limits are
// inclusive.
func MarkupTier(amount decimal.Decimal) decimal.Decimal {
	for _, b := range markupBands {
		if amount.LessThanOrEqual(b.upTo) {
			if b.flat.IsZero() {
				return amount.Mul(b.rate)
			}
			return b.flat
		}
	}
	return markupCeiling
}

// Round2 rounds a monetary amount to cents, halves away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Cap limits price to limit and rounds to cents. The result never exceeds
// limit, even for a limit with sub-cent precision.
func Cap(price, limit decimal.Decimal) decimal.Decimal {
	capped := Round2(decimal.Min(price, limit))
	if capped.GreaterThan(limit) {
		return limit.RoundFloor(2)
	}
	return capped
}
