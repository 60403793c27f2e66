package fhir

import (
	"encoding/json"
	"strings"
)

type HumanName struct {
	Given  []string `json:"given,omitempty"`
	Family string   `json:"family,omitempty"`
}

type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value,omitempty"`
}

// Patient is the subset of the FHIR Patient resource the ward screens use.
// Some upstreams send name as a plain string; it is kept in Display.
type Patient struct {
	ID         string       `json:"id"`
	Gender     string       `json:"gender,omitempty"`
	BirthDate  string       `json:"birthDate,omitempty"`
	Name       []HumanName  `json:"name,omitempty"`
	Identifier []Identifier `json:"identifier,omitempty"`
	Display    string       `json:"-"`
}

func (p *Patient) UnmarshalJSON(data []byte) error {
	type plain Patient
	var raw struct {
		plain
		Name json.RawMessage `json:"name"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = Patient(raw.plain)
	p.Name = nil
	if len(raw.Name) == 0 || string(raw.Name) == "null" {
		return nil
	}
	var names []HumanName
	if err := json.Unmarshal(raw.Name, &names); err == nil {
		p.Name = names
		return nil
	}
	var display string
	if err := json.Unmarshal(raw.Name, &display); err == nil {
		p.Display = display
	}
	return nil
}

// FullName renders "given family", falling back to Display and then "—".
func (p Patient) FullName() string {
	if len(p.Name) > 0 {
		full := strings.TrimSpace(strings.Join(p.Name[0].Given, " ") + " " + p.Name[0].Family)
		if full != "" {
			return full
		}
	}
	if strings.TrimSpace(p.Display) != "" {
		return p.Display
	}
	return "—"
}

// DisplayID is the resource id, or the first identifier value.
func (p Patient) DisplayID() string {
	if p.ID != "" {
		return p.ID
	}
	if len(p.Identifier) > 0 {
		return p.Identifier[0].Value
	}
	return ""
}

// Document is the structured commit payload.
type Document struct {
	PatientID    string `json:"patientId"`
	Content      string `json:"content"`
	CategoryCode string `json:"categoryCode"`
}
