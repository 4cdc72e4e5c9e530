package fhirmodels

import "regexp"

// Identifier systems used by Australian eRx MedicationRequest resources.
const (
	SystemSCID              = "http://fhir.erx.com.au/NamingSystem/identifiers#scid"
	SystemAuthorityScriptNo = "http://fhir.erx.com.au/NamingSystem/identifiers#authority-script-number"
	SystemMedicareNumber    = "http://ns.electronichealth.net.au/id/medicare-number"
	SystemIHI               = "http://ns.electronichealth.net.au/id/hi/ihi/1.0"
	SystemRACF              = "http://ns.electronichealth.net.au/id/racf-id"
	SystemPensionerCard     = "http://ns.electronichealth.net.au/id/pensioner-concession-card"
	SystemSeniorsHealthCard = "http://ns.electronichealth.net.au/id/commonwealth-seniors-health-card"
)

// Medication coding systems.
const (
	SystemSNOMED = "http://snomed.info/sct"
	SystemGTIN   = "http://www.gs1.org/gtin"
)

// MedicationRequest extension names, matched on the last path segment of
// the extension URL.
const (
	ExtAIPDrugName          = "aip-complient-drug-name"
	ExtBrandName            = "medication-brand-name"
	ExtGenericName          = "medication-generic-name"
	ExtItemGenericIntention = "item-generic-intension"
	ExtScheduleNumber       = "schedule-number"
	ExtPrivatePrescription  = "private-prescription"
)

// NotAvailable fills summary fields the source did not provide.
const NotAvailable = "N/A"

var pbsCodePattern = regexp.MustCompile(`^[0-9]{1,5}[A-Z]$`)

// IsPBSCode reports whether code has the shape of a PBS item code.
func IsPBSCode(code string) bool {
	return pbsCodePattern.MatchString(code)
}

// SCIDIdentifier is the token-search value for a script ID.
func SCIDIdentifier(scid string) string {
	return SystemSCID + "|" + scid
}
