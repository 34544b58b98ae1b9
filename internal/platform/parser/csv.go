package parser

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CSVParser reads flat delimited files. Patient demographics come from
// the first data row; every data row contributes one observation.
type CSVParser struct{}

// Parse implements Parser. A header-only or empty file yields a patient
// with fallback identity and no observations, not an error.
func (p *CSVParser) Parse(ctx context.Context, filePath string, mappings []FieldMapping, jobID string) (*Patient, []*Observation, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv file: %w", err)
	}

	patient := &Patient{ID: "patient-" + jobID}
	if len(rows) <= 1 {
		return patient, nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		record := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				record[h] = strings.TrimSpace(row[i])
			}
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return patient, nil, nil
	}

	p.fillPatient(patient, records[0], mappings, jobID)

	observations := make([]*Observation, 0, len(records))
	for _, record := range records {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		if obs := p.buildObservation(record, mappings, patient.ID); obs != nil {
			observations = append(observations, obs)
		}
	}
	return patient, observations, nil
}

func (p *CSVParser) fillPatient(patient *Patient, record map[string]string, mappings []FieldMapping, jobID string) {
	if v, ok := recordValue(record, mappings, PathPatientIdentifier); ok {
		patient.ID = prefixPatientID(v)
	}
	if v, ok := recordValue(record, mappings, PathPatientGivenName); ok {
		patient.GivenName = v
	}
	if v, ok := recordValue(record, mappings, PathPatientFamilyName); ok {
		patient.FamilyName = v
	}
	if v, ok := recordValue(record, mappings, PathPatientGender); ok {
		patient.Gender = v
	}
	if v, ok := recordValue(record, mappings, PathPatientBirthDate); ok {
		if t, ok := parseDate(v); ok {
			patient.BirthDate = &t
		}
	}
	if v, ok := recordValue(record, mappings, PathPatientPhone); ok {
		patient.Phone = v
	}
	if v, ok := recordValue(record, mappings, PathPatientEmail); ok {
		patient.Email = v
	}
}

// buildObservation converts one data row into an observation. Rows with
// neither a code nor a display value carry no measurement and are
// skipped silently.
func (p *CSVParser) buildObservation(record map[string]string, mappings []FieldMapping, patientID string) *Observation {
	code, hasCode := recordValue(record, mappings, PathObservationCode)
	display, hasDisplay := recordValue(record, mappings, PathObservationDisplay)
	if !hasCode && !hasDisplay {
		return nil
	}

	obs := newObservation(patientID)
	obs.Code = code
	obs.Display = display
	if v, ok := recordValue(record, mappings, PathObservationValue); ok {
		if q, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			obs.ValueQuantity = &q
		} else {
			obs.ValueString = v
		}
	}
	if v, ok := recordValue(record, mappings, PathObservationUnit); ok {
		obs.ValueUnit = v
	}
	if v, ok := recordValue(record, mappings, PathObservationEffective); ok {
		if t, ok := parseDate(v); ok {
			obs.EffectiveDateTime = &t
		}
	}
	return obs
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
