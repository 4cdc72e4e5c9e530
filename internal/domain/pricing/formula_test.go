package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func TestScheduleFormula(t *testing.T) {
	tests := []struct {
		name                                   string
		in                                     ScheduleInputs
		dpmq, fdp, general, concessional, brand string
	}{
		{
			name:         "full fee stack",
			in:           ScheduleInputs{ScheduleCode: "4019", DeterminedPrice: dec("10.00"), Quantity: 1},
			dpmq:         "10.00",
			fdp:          "25.31",
			general:      "25.31",
			concessional: "0",
			brand:        "25.31",
		},
		{
			name: "authority and concession under the general cap",
			in: ScheduleInputs{ScheduleCode: "4019", DeterminedPrice: dec("10.00"), Quantity: 1,
				Claim: Claim{AuthorityMedicare: true, ConcessionEligible: true}},
			dpmq:         "10.00",
			fdp:          "25.31",
			general:      "25.31",
			concessional: "7.70",
			brand:        "25.31",
		},
		{
			name: "rule override uses loaded fees and caps",
			in: ScheduleInputs{ScheduleCode: "4019", DeterminedPrice: dec("3.00"), Quantity: 10,
				RuleDPMQ: decPtr("50"), BrandPremium: dec("0.85"),
				Claim: Claim{AuthorityMedicare: true, ConcessionEligible: true}},
			dpmq:         "50",
			fdp:          "54.73",
			general:      "31.60",
			concessional: "7.70",
			brand:        "32.45",
		},
		{
			name: "rule override without authority",
			in: ScheduleInputs{ScheduleCode: "4019", DeterminedPrice: dec("3.00"), Quantity: 10,
				RuleDPMQ: decPtr("50"), BrandPremium: dec("0.85")},
			dpmq:         "50",
			fdp:          "54.73",
			general:      "54.73",
			concessional: "0",
			brand:        "55.58",
		},
		{
			name:         "schedule code 8",
			in:           ScheduleInputs{ScheduleCode: "8", DeterminedPrice: dec("20.00"), Quantity: 2},
			dpmq:         "40.00",
			fdp:          "44.73",
			general:      "44.73",
			concessional: "0",
			brand:        "44.73",
		},
		{
			name:         "dangerous drug flag",
			in:           ScheduleInputs{ScheduleCode: "4019", DangerousDrug: true, DeterminedPrice: dec("20.00"), Quantity: 2},
			dpmq:         "40.00",
			fdp:          "44.73",
			general:      "44.73",
			concessional: "0",
			brand:        "44.73",
		},
		{
			name:         "flat markup band",
			in:           ScheduleInputs{ScheduleCode: "4019", DeterminedPrice: dec("500.00"), Quantity: 1},
			dpmq:         "500.00",
			fdp:          "558.81",
			general:      "558.81",
			concessional: "0",
			brand:        "558.81",
		},
		{
			name: "concession without authority is zero",
			in: ScheduleInputs{ScheduleCode: "4019", DeterminedPrice: dec("10.00"), Quantity: 1,
				Claim: Claim{ConcessionEligible: true}},
			dpmq:         "10.00",
			fdp:          "25.31",
			general:      "25.31",
			concessional: "0",
			brand:        "25.31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := ScheduleFormula(tt.in, DefaultFees())
			assertDecimal(t, "DPMQ", q.DPMQ, tt.dpmq)
			assertDecimal(t, "FDP", q.FDP, tt.fdp)
			assertDecimal(t, "General", q.General, tt.general)
			assertDecimal(t, "Concessional", q.Concessional, tt.concessional)
			assertDecimal(t, "Brand", q.Brand, tt.brand)
			if q.Schedule != tt.in.ScheduleCode {
				t.Errorf("expected schedule %s, got %s", tt.in.ScheduleCode, q.Schedule)
			}
			if q.FDP.LessThan(q.DPMQ) {
				t.Errorf("FDP %s below DPMQ %s", q.FDP, q.DPMQ)
			}
			if q.General.GreaterThan(q.FDP) {
				t.Errorf("General %s above FDP %s", q.General, q.FDP)
			}
		})
	}
}

func TestScheduleFormula_ScalesWithQuantity(t *testing.T) {
	for qty := 1; qty <= 5; qty++ {
		q := ScheduleFormula(ScheduleInputs{DeterminedPrice: dec("2.35"), Quantity: qty}, DefaultFees())
		want := dec("2.35").Mul(decimal.NewFromInt(int64(qty)))
		if !q.DPMQ.Equal(want) {
			t.Errorf("qty %d: expected DPMQ %s, got %s", qty, want, q.DPMQ)
		}
	}
}

func TestFlatFileFormula(t *testing.T) {
	rec := FlatFileRecord{CatalogueID: "09300000000001", BasePrice: dec("10")}

	q := FlatFileFormula(rec, 2, Claim{AuthorityMedicare: true, ConcessionEligible: true}, DefaultFees())
	if q.GTIN != "09300000000001" || q.Quantity != 2 {
		t.Errorf("unexpected identity %s x%d", q.GTIN, q.Quantity)
	}
	assertDecimal(t, "BasePrice", q.BasePrice, "10")
	assertDecimal(t, "DPMQ", q.DPMQ, "20")
	assertDecimal(t, "FDP", q.FDP, "41.81")
	assertDecimal(t, "General", q.General, "31.60")
	assertDecimal(t, "Concessional", q.Concessional, "7.70")
	assertDecimal(t, "Brand", q.Brand, "24.20")
	if q.Schedule != "" {
		t.Errorf("price-book quotes carry no schedule, got %q", q.Schedule)
	}

	plain := FlatFileFormula(rec, 2, Claim{}, DefaultFees())
	assertDecimal(t, "General", plain.General, "41.81")
	assertDecimal(t, "Concessional", plain.Concessional, "0")
	assertDecimal(t, "Brand", plain.Brand, "24.20")
}

func TestFlatFileFormula_CustomProfile(t *testing.T) {
	fees := DefaultFees()
	fees.FlatFileFDPAdjustment = decimal.Zero
	fees.FlatFileBrandMarkup = dec("1.00")

	q := FlatFileFormula(FlatFileRecord{CatalogueID: "X", BasePrice: dec("10")}, 1, Claim{}, fees)
	// 10 + 1.50 markup + 13.81 fees
	assertDecimal(t, "FDP", q.FDP, "25.31")
	assertDecimal(t, "Brand", q.Brand, "11.00")
}
