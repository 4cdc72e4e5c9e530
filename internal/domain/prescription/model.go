package prescription

import (
	"path"
	"strings"

	"github.com/televita/rxprice/internal/platform/fhir"
	"github.com/televita/rxprice/pkg/fhirmodels"
)

// DangerousDrugSchedule is the poisons schedule number of a controlled drug.
const DangerousDrugSchedule = "8"

// Summary is a flattened eRx prescription: who it is for, what was
// prescribed and how many supplies remain.
type Summary struct {
	ID         string `json:"id"`
	Status     string `json:"status,omitempty"`
	Intent     string `json:"intent,omitempty"`
	AuthoredOn string `json:"authored_on,omitempty"`

	MedicareNo  string `json:"medicare_no"`
	IRN         string `json:"irn"`
	IHI         string `json:"ihi"`
	RACF        string `json:"racf"`
	PensionCard string `json:"pension_card"`
	SeniorsCard string `json:"seniors_card"`
	// Eligibility follows from holding the matching card.
	PensionerEligible bool     `json:"pensioner_elig"`
	SeniorsEligible   bool     `json:"seniors_elig"`
	Name              string   `json:"name"`
	DOB               string   `json:"dob"`
	Allergies         []string `json:"allergies"`
	PrescriberNotes   string   `json:"prescriber_notes"`

	AIPDrugName          string `json:"aip_drug_name"`
	BrandName            string `json:"brand_name"`
	GenericName          string `json:"generic_name"`
	ItemGenericIntention string `json:"item_generic_intension"`
	ScheduleNumber       string `json:"schedule_number"`
	PrivatePrescription  string `json:"private_prescription"`

	RepeatsAllowed   *int `json:"repeats_allowed"`
	RepeatsDispensed *int `json:"repeats_dispensed"`
	RepeatsRemaining *int `json:"repeats_remaining"`

	SNOMED        string   `json:"snomed"`
	GTIN          string   `json:"gtin"`
	MedText       string   `json:"med_text"`
	PBSCode       string   `json:"pbs_code"`
	PrescribedQty *float64 `json:"prescribed_qty"`
	MaxQtyAuth    *float64 `json:"max_qty_auth"`
	PackageQty    *float64 `json:"package_qty"`
	MedStrength   string   `json:"med_strength,omitempty"`
	MedForm       string   `json:"med_form,omitempty"`
}

// IsDangerousDrug reports whether the item is a schedule 8 drug, which is
// priced with the loaded-fee formula.
func (s *Summary) IsDangerousDrug() bool {
	return s.ScheduleNumber == DangerousDrugSchedule
}

// ConcessionEligible reports whether the patient holds a concession card.
func (s *Summary) ConcessionEligible() bool {
	return s.PensionerEligible || s.SeniorsEligible
}

func orNA(v string, ok bool) string {
	if !ok || v == "" {
		return fhirmodels.NotAvailable
	}
	return v
}

// Summarize flattens a MedicationRequest and its contained Patient and
// Medication.
func Summarize(mr *fhir.MedicationRequest) (*Summary, error) {
	var patient fhir.Patient
	if _, err := mr.Contained("Patient", &patient); err != nil {
		return nil, err
	}
	var med fhir.Medication
	if _, err := mr.Contained("Medication", &med); err != nil {
		return nil, err
	}

	ids := make(map[string]string, len(patient.Identifier))
	for _, id := range patient.Identifier {
		ids[id.System] = id.Value
	}
	lookupID := func(system string) string {
		v, ok := ids[system]
		return orNA(v, ok)
	}

	exts := make(map[string]string, len(mr.Extension))
	for _, ext := range mr.Extension {
		if v, ok := ext.Value(); ok {
			exts[path.Base(ext.URL)] = v
		}
	}
	lookupExt := func(name string) string {
		v, ok := exts[name]
		return orNA(v, ok)
	}

	s := &Summary{
		ID:                   mr.ID,
		Status:               mr.Status,
		Intent:               mr.Intent,
		AuthoredOn:           mr.AuthoredOn,
		MedicareNo:           lookupID(fhirmodels.SystemMedicareNumber),
		IRN:                  lookupID(fhirmodels.SystemAuthorityScriptNo),
		IHI:                  lookupID(fhirmodels.SystemIHI),
		RACF:                 lookupID(fhirmodels.SystemRACF),
		PensionCard:          lookupID(fhirmodels.SystemPensionerCard),
		SeniorsCard:          lookupID(fhirmodels.SystemSeniorsHealthCard),
		Name:                 patientName(patient),
		DOB:                  orNA(patient.BirthDate, true),
		Allergies:            []string{},
		PrescriberNotes:      prescriberNotes(mr.Note),
		AIPDrugName:          lookupExt(fhirmodels.ExtAIPDrugName),
		BrandName:            lookupExt(fhirmodels.ExtBrandName),
		GenericName:          lookupExt(fhirmodels.ExtGenericName),
		ItemGenericIntention: lookupExt(fhirmodels.ExtItemGenericIntention),
		ScheduleNumber:       lookupExt(fhirmodels.ExtScheduleNumber),
		PrivatePrescription:  lookupExt(fhirmodels.ExtPrivatePrescription),
		MedText:              orNA(med.Code.Text, true),
		PBSCode:              fhirmodels.NotAvailable,
		MedForm:              med.Form.Text,
	}
	s.PensionerEligible = s.PensionCard != fhirmodels.NotAvailable
	s.SeniorsEligible = s.SeniorsCard != fhirmodels.NotAvailable

	s.SNOMED = orNA(med.Code.CodeFor(fhirmodels.SystemSNOMED))
	s.GTIN = orNA(med.Code.CodeFor(fhirmodels.SystemGTIN))
	for _, c := range med.Code.Coding {
		if fhirmodels.IsPBSCode(c.Code) {
			s.PBSCode = c.Code
			break
		}
	}
	if len(med.Extension) > 0 {
		s.MedStrength = med.Extension[0].ValueString
	}

	dr := mr.DispenseRequest
	s.RepeatsAllowed = dr.NumberOfRepeatsAllowed
	s.RepeatsDispensed = dr.RepeatsDispensed
	if dr.NumberOfRepeatsAllowed != nil && dr.RepeatsDispensed != nil {
		remaining := *dr.NumberOfRepeatsAllowed - *dr.RepeatsDispensed
		s.RepeatsRemaining = &remaining
	}
	if dr.Quantity != nil {
		s.PrescribedQty = dr.Quantity.Value
		s.MaxQtyAuth = dr.Quantity.Value
	}
	if dr.ExpectedSupplyDuration != nil {
		s.PackageQty = dr.ExpectedSupplyDuration.Value
	}
	return s, nil
}

func patientName(p fhir.Patient) string {
	if len(p.Name) == 0 {
		return fhirmodels.NotAvailable
	}
	n := p.Name[0]
	if n.Text != "" {
		return n.Text
	}
	full := strings.TrimSpace(strings.Join(append(append([]string{}, n.Given...), n.Family), " "))
	return orNA(full, true)
}

func prescriberNotes(notes []fhir.Annotation) string {
	texts := make([]string, 0, len(notes))
	for _, n := range notes {
		texts = append(texts, n.Text)
	}
	return strings.Join(texts, "; ")
}
