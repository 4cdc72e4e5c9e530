package pricing

import (
	"github.com/shopspring/decimal"
)

// DangerousDrugScheduleCode is the fee-schedule code that has historically
// been treated as a schedule 8 (dangerous drug) marker. The classification
// itself travels separately as DangerousDrug; both trigger the loaded-fee
// formula.
const DangerousDrugScheduleCode = "8"

// Claim describes how the dispense is subsidised.
type Claim struct {
	AuthorityMedicare  bool
	ConcessionEligible bool
}

// Quote is the price tuple for one dispense.
type Quote struct {
	Schedule     string          `json:"schedule,omitempty"`
	DPMQ         decimal.Decimal `json:"DPMQ"`
	FDP          decimal.Decimal `json:"FDP"`
	General      decimal.Decimal `json:"General"`
	Concessional decimal.Decimal `json:"Concessional"`
	Brand        decimal.Decimal `json:"Brand"`
}

// FlatFileQuote is a Quote priced from the price book, with the inputs it
// was priced from.
type FlatFileQuote struct {
	GTIN      string          `json:"GTIN"`
	Quantity  int             `json:"quantity"`
	BasePrice decimal.Decimal `json:"BasePrice"`
	Quote
}

// ScheduleInputs is everything the schedule-sourced formula needs once the
// upstream data has been fetched.
type ScheduleInputs struct {
	ScheduleCode    string
	DangerousDrug   bool
	DeterminedPrice decimal.Decimal
	Quantity        int
	// RuleDPMQ is the S90-CP Commonwealth price, when the item has one. It
	// already embeds the dispensing and container fees.
	RuleDPMQ     *decimal.Decimal
	BrandPremium decimal.Decimal
	Claim
}

// applyCaps returns the general and concessional costs for an FDP.
func applyCaps(fdp decimal.Decimal, claim Claim, fees Fees) (general, concessional decimal.Decimal) {
	general = fdp
	concessional = decimal.Zero
	if claim.AuthorityMedicare {
		general = Cap(fdp, fees.GeneralCap)
		if claim.ConcessionEligible {
			concessional = Cap(fdp, fees.ConcessionalCap)
		}
	}
	return general, concessional
}

// ScheduleFormula prices an item from schedule data.
func ScheduleFormula(in ScheduleInputs, fees Fees) Quote {
	dpmq := in.DeterminedPrice.Mul(decimal.NewFromInt(int64(in.Quantity)))
	loaded := in.DangerousDrug || in.ScheduleCode == DangerousDrugScheduleCode
	if in.RuleDPMQ != nil {
		dpmq = *in.RuleDPMQ
		loaded = true
	}

	var fdp decimal.Decimal
	if loaded {
		fdp = dpmq.Add(fees.loadedFees())
	} else {
		fdp = dpmq.Add(MarkupTier(dpmq)).Add(fees.fullFees())
	}
	fdp = Round2(fdp)

	general, concessional := applyCaps(fdp, in.Claim, fees)

	brandBase := fdp
	if in.AuthorityMedicare {
		brandBase = general
	}

	return Quote{
		Schedule:     in.ScheduleCode,
		DPMQ:         dpmq,
		FDP:          fdp,
		General:      general,
		Concessional: concessional,
		Brand:        Round2(brandBase.Add(in.BrandPremium)),
	}
}

// FlatFileFormula prices a price-book row. It always applies the full fee
// stack plus the price-book FDP adjustment, and its brand cost is a flat
// markup over DPMQ rather than a premium over the capped price.
func FlatFileFormula(rec FlatFileRecord, quantity int, claim Claim, fees Fees) FlatFileQuote {
	dpmq := rec.BasePrice.Mul(decimal.NewFromInt(int64(quantity)))
	fdp := Round2(dpmq.
		Add(MarkupTier(dpmq)).
		Add(fees.fullFees()).
		Add(fees.FlatFileFDPAdjustment))

	general, concessional := applyCaps(fdp, claim, fees)

	return FlatFileQuote{
		GTIN:      rec.CatalogueID,
		Quantity:  quantity,
		BasePrice: rec.BasePrice,
		Quote: Quote{
			DPMQ:         dpmq,
			FDP:          fdp,
			General:      general,
			Concessional: concessional,
			Brand:        Round2(dpmq.Add(fees.FlatFileBrandMarkup)),
		},
	}
}
