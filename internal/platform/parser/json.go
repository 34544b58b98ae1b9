package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// jsonDocument mirrors the nested export shape: top-level patient id,
// a demographics block, lab panels keyed by test name, and encounters
// carrying vitals keyed by vital name.
type jsonDocument struct {
	PatientID    string            `json:"patientId"`
	Demographics *jsonDemographics `json:"demographics"`
	LabResults   []jsonLabResult   `json:"labResults"`
	Encounters   []jsonEncounter   `json:"encounters"`
}

type jsonDemographics struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Gender      string `json:"gender"`
	DateOfBirth string `json:"dateOfBirth"`
}

type jsonLabResult struct {
	Results orderedMembers `json:"results"`
}

type jsonEncounter struct {
	Vitals orderedMembers `json:"vitals"`
}

// member is a single name/value pair from a JSON object.
type member struct {
	Name  string
	Value string
}

// orderedMembers decodes a JSON object into its members in document
// order. A plain map loses the order the source file wrote them in,
// and observation order must follow the source.
type orderedMembers []member

func (o *orderedMembers) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", keyTok)
		}
		valTok, err := dec.Token()
		if err != nil {
			return err
		}
		var value string
		switch v := valTok.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = strconv.FormatBool(v)
		case nil:
			value = ""
		default:
			return fmt.Errorf("unexpected nested value for %q", key)
		}
		*o = append(*o, member{Name: key, Value: value})
	}

	_, err = dec.Token()
	return err
}

// JSONParser reads nested JSON exports. Field mappings are not needed
// for this format; the property names are fixed by the export shape.
type JSONParser struct{}

// Parse implements Parser.
func (p *JSONParser) Parse(ctx context.Context, filePath string, _ []FieldMapping, jobID string) (*Patient, []*Observation, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open json file: %w", err)
	}

	var doc jsonDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("parse json file: %w", err)
	}

	patient := &Patient{ID: "patient-" + jobID}
	if doc.PatientID != "" {
		patient.ID = prefixPatientID(doc.PatientID)
	}
	if d := doc.Demographics; d != nil {
		patient.GivenName = d.FirstName
		patient.FamilyName = d.LastName
		patient.Gender = d.Gender
		if t, ok := parseDate(d.DateOfBirth); ok {
			patient.BirthDate = &t
		}
	}

	var observations []*Observation
	for _, lab := range doc.LabResults {
		for _, m := range lab.Results {
			observations = append(observations, valueObservation(patient.ID, m.Name, m.Value))
		}
	}
	for _, enc := range doc.Encounters {
		for _, m := range enc.Vitals {
			observations = append(observations, valueObservation(patient.ID, m.Name, m.Value))
		}
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	return patient, observations, nil
}

// valueObservation builds an observation from a name/value pair. Values
// shaped like "<number> <unit>" are split into a quantity and unit;
// anything else stays a string value.
func valueObservation(patientID, name, value string) *Observation {
	obs := newObservation(patientID)
	obs.Code = name
	obs.Display = name
	obs.ValueString = value
	now := time.Now().UTC()
	obs.EffectiveDateTime = &now

	parts := strings.Fields(value)
	if len(parts) == 0 {
		return obs
	}
	if q, err := strconv.ParseFloat(parts[0], 64); err == nil {
		obs.ValueQuantity = &q
		obs.ValueString = ""
		if len(parts) > 1 {
			obs.ValueUnit = strings.Join(parts[1:], " ")
		}
	}
	return obs
}
