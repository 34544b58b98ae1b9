package parser

import (
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Placeholder observation synthesized when a clinical document carries
// no observation entries at all.
const (
	generalHealthStatusCode    = "33747-0"
	generalHealthStatusDisplay = "General Health Status"
)

// CCDAParser reads HL7 v3 clinical documents. Demographics come from
// the recordTarget header; every observation entry in the structured
// body, whether standalone or grouped under an organizer, contributes
// one observation. Field mappings do not apply to this format.
type CCDAParser struct{}

// Parse implements Parser. A document with no observation entries still
// succeeds, yielding a single synthesized health-status placeholder.
func (p *CCDAParser) Parse(ctx context.Context, filePath string, _ []FieldMapping, jobID string) (*Patient, []*Observation, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open ccda file: %w", err)
	}
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}

	var doc clinicalDocument
	if err := xml.Unmarshal(injectXSINamespace(data), &doc); err != nil {
		return nil, nil, fmt.Errorf("parse ccda file: %w", err)
	}

	patient := p.buildPatient(&doc, jobID)
	observations := p.collectObservations(&doc, patient.ID)
	if len(observations) == 0 {
		observations = append(observations, placeholderObservation(patient.ID))
	}
	return patient, observations, nil
}

// injectXSINamespace declares the xsi namespace on the root element when
// the source document omits it. Several known exporters emit xsi:type
// attributes without the declaration, which breaks strict XML parsers.
func injectXSINamespace(data []byte) []byte {
	s := string(data)
	if strings.Contains(s, "xmlns:xsi=") {
		return data
	}
	const root = "<ClinicalDocument xmlns=\"" + cdaNamespace + "\""
	if !strings.Contains(s, root) {
		return data
	}
	patched := root + " xmlns:xsi=\"" + xsiNamespace + "\""
	return []byte(strings.Replace(s, root, patched, 1))
}

// buildPatient extracts demographics from the document header, falling
// back to fixed defaults for anything the document does not carry.
func (p *CCDAParser) buildPatient(doc *clinicalDocument, jobID string) *Patient {
	patient := &Patient{
		ID:         "patient-" + jobID,
		GivenName:  "Sample",
		FamilyName: "Patient",
		Gender:     "Unknown",
	}

	if doc.RecordTarget == nil || doc.RecordTarget.PatientRole == nil {
		return patient
	}
	role := doc.RecordTarget.PatientRole

	for _, id := range role.IDs {
		if id.Extension != "" {
			patient.ID = prefixPatientID(id.Extension)
			break
		}
	}

	if role.Patient == nil {
		return patient
	}
	pat := role.Patient

	if pat.Name != nil {
		if pat.Name.Given != "" {
			patient.GivenName = pat.Name.Given
		}
		if pat.Name.Family != "" {
			patient.FamilyName = pat.Name.Family
		}
	}
	if pat.GenderCode != nil {
		switch strings.ToUpper(pat.GenderCode.Code) {
		case "M":
			patient.Gender = "Male"
		case "F":
			patient.Gender = "Female"
		default:
			patient.Gender = "Unknown"
		}
	}
	if pat.BirthTime != nil && pat.BirthTime.Value != "" {
		if t, err := parseHL7Time(pat.BirthTime.Value); err == nil {
			patient.BirthDate = &t
		}
	}
	return patient
}

// collectObservations walks every section of the structured body and
// gathers observation entries, both standalone and organizer-grouped.
func (p *CCDAParser) collectObservations(doc *clinicalDocument, patientID string) []*Observation {
	if doc.Component == nil || doc.Component.StructuredBody == nil {
		return nil
	}

	var observations []*Observation
	for _, comp := range doc.Component.StructuredBody.Components {
		if comp.Section == nil {
			continue
		}
		for _, entry := range comp.Section.Entries {
			if entry.Observation != nil {
				if obs := p.buildObservation(entry.Observation, patientID); obs != nil {
					observations = append(observations, obs)
				}
			}
			if entry.Organizer == nil {
				continue
			}
			for _, oc := range entry.Organizer.Components {
				if oc.Observation == nil {
					continue
				}
				if obs := p.buildObservation(oc.Observation, patientID); obs != nil {
					observations = append(observations, obs)
				}
			}
		}
	}
	return observations
}

// buildObservation converts one CDA observation entry. Entries without
// any code are noise (templateId-only stubs) and are skipped.
func (p *CCDAParser) buildObservation(entry *cdaObservation, patientID string) *Observation {
	if entry.Code == nil || (entry.Code.Code == "" && entry.Code.DisplayName == "") {
		return nil
	}

	obs := newObservation(patientID)
	obs.Code = entry.Code.Code
	obs.Display = entry.Code.DisplayName
	if entry.StatusCode != nil && entry.StatusCode.Code != "" {
		obs.Status = entry.StatusCode.Code
	}
	if entry.Value != nil {
		obs.ValueUnit = entry.Value.Unit
		if q, err := strconv.ParseFloat(strings.TrimSpace(entry.Value.Value), 64); err == nil {
			obs.ValueQuantity = &q
		} else {
			obs.ValueString = entry.Value.Value
		}
	}
	if entry.EffectiveTime != nil && entry.EffectiveTime.Value != "" {
		if t, err := parseHL7Time(entry.EffectiveTime.Value); err == nil {
			obs.EffectiveDateTime = &t
		}
	}
	return obs
}

func placeholderObservation(patientID string) *Observation {
	obs := newObservation(patientID)
	obs.Code = generalHealthStatusCode
	obs.Display = generalHealthStatusDisplay
	obs.ValueString = "Good"
	now := time.Now().UTC()
	obs.EffectiveDateTime = &now
	return obs
}

// parseHL7Time parses an HL7 timestamp (YYYYMMDD, optionally with a
// time-of-day suffix).
func parseHL7Time(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, "+-"); idx > 8 {
		s = s[:idx]
	}
	for _, layout := range []string{"20060102150405", "200601021504", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized HL7 time: %q", s)
}
