package fhir

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Resource is the envelope every FHIR resource shares.
type Resource struct {
	ResourceType string `json:"resourceType"`
	ID           string `json:"id,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// CodeFor returns the code of the first coding in system.
func (cc CodeableConcept) CodeFor(system string) (string, bool) {
	for _, c := range cc.Coding {
		if c.System == system {
			return c.Code, true
		}
	}
	return "", false
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

type HumanName struct {
	Text   string   `json:"text,omitempty"`
	Family string   `json:"family,omitempty"`
	Given  []string `json:"given,omitempty"`
}

type Quantity struct {
	Value *float64 `json:"value,omitempty"`
	Unit  string   `json:"unit,omitempty"`
}

type Annotation struct {
	Text string `json:"text,omitempty"`
}

// Extension carries the value kinds the eRx profiles use.
type Extension struct {
	URL          string `json:"url"`
	ValueString  string `json:"valueString,omitempty"`
	ValueCode    string `json:"valueCode,omitempty"`
	ValueBoolean *bool  `json:"valueBoolean,omitempty"`
	ValueInteger *int   `json:"valueInteger,omitempty"`
}

// Value renders whichever value field is set.
func (e Extension) Value() (string, bool) {
	switch {
	case e.ValueString != "":
		return e.ValueString, true
	case e.ValueCode != "":
		return e.ValueCode, true
	case e.ValueBoolean != nil:
		return strconv.FormatBool(*e.ValueBoolean), true
	case e.ValueInteger != nil:
		return strconv.Itoa(*e.ValueInteger), true
	}
	return "", false
}

type Patient struct {
	Resource
	Identifier []Identifier `json:"identifier,omitempty"`
	Name       []HumanName  `json:"name,omitempty"`
	BirthDate  string       `json:"birthDate,omitempty"`
}

type Medication struct {
	Resource
	Code      CodeableConcept `json:"code"`
	Form      CodeableConcept `json:"form"`
	Extension []Extension     `json:"extension,omitempty"`
}

type DispenseRequest struct {
	NumberOfRepeatsAllowed *int      `json:"numberOfRepeatsAllowed,omitempty"`
	RepeatsDispensed       *int      `json:"repeatsDispensed,omitempty"`
	Quantity               *Quantity `json:"quantity,omitempty"`
	ExpectedSupplyDuration *Quantity `json:"expectedSupplyDuration,omitempty"`
}

// MedicationRequest keeps contained resources raw; use Contained to pick
// one out by type.
type MedicationRequest struct {
	Resource
	Status          string            `json:"status,omitempty"`
	Intent          string            `json:"intent,omitempty"`
	AuthoredOn      string            `json:"authoredOn,omitempty"`
	ContainedRaw    []json.RawMessage `json:"contained,omitempty"`
	Extension       []Extension       `json:"extension,omitempty"`
	Note            []Annotation      `json:"note,omitempty"`
	DispenseRequest DispenseRequest   `json:"dispenseRequest"`
}

// Contained decodes the first contained resource of resourceType into v.
// It reports false when there is none.
func (m *MedicationRequest) Contained(resourceType string, v any) (bool, error) {
	for _, raw := range m.ContainedRaw {
		var head Resource
		if err := json.Unmarshal(raw, &head); err != nil {
			return false, fmt.Errorf("decoding contained resource: %w", err)
		}
		if head.ResourceType != resourceType {
			continue
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return false, fmt.Errorf("decoding contained %s: %w", resourceType, err)
		}
		return true, nil
	}
	return false, nil
}
