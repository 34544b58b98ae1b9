// Package assemble builds FHIR resources from the canonical patient and
// observation model and groups them into a collection bundle. Coding of
// observation tests and units goes through the terminology resolver.
package assemble

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fhirconv/fhirconv/internal/platform/fhir"
	"github.com/fhirconv/fhirconv/internal/platform/parser"
	"github.com/fhirconv/fhirconv/internal/platform/terminology"
	"github.com/fhirconv/fhirconv/pkg/fhirmodels"
)

// Assembler converts canonical records into FHIR resources. Safe for
// concurrent use across conversion workers.
type Assembler struct {
	resolver *terminology.Resolver
	logger   zerolog.Logger
}

func NewAssembler(resolver *terminology.Resolver, logger zerolog.Logger) *Assembler {
	return &Assembler{
		resolver: resolver,
		logger:   logger.With().Str("component", "assembler").Logger(),
	}
}

// ConvertPatient builds a FHIR Patient. The `patient-` id prefix is
// applied at most once regardless of what the parser produced, and a
// hospital MRN identifier is derived from the unprefixed id.
func (a *Assembler) ConvertPatient(p *parser.Patient) *fhir.Patient {
	id := p.ID
	if !strings.HasPrefix(id, "patient-") {
		id = "patient-" + id
	}

	patient := &fhir.Patient{
		ResourceType: "Patient",
		ID:           id,
		Identifier: []fhir.Identifier{
			{System: fhirmodels.SystemHospitalMRN, Value: strings.TrimPrefix(id, "patient-")},
		},
		Gender: normalizeGender(p.Gender),
	}

	if p.GivenName != "" || p.FamilyName != "" {
		name := fhir.HumanName{Family: p.FamilyName}
		if p.GivenName != "" {
			name.Given = []string{p.GivenName}
		}
		patient.Name = []fhir.HumanName{name}
	}
	if p.BirthDate != nil {
		patient.BirthDate = fhir.FormatDate(*p.BirthDate)
	}
	if p.Phone != "" {
		patient.Telecom = append(patient.Telecom, fhir.ContactPoint{
			System: "phone", Use: "home", Value: p.Phone,
		})
	}
	if p.Email != "" {
		patient.Telecom = append(patient.Telecom, fhir.ContactPoint{
			System: "email", Use: "home", Value: p.Email,
		})
	}
	return patient
}

// ConvertObservation builds a FHIR Observation. The subject reference
// carries the same at-most-once `patient-` prefix rule as the patient
// id, so the bundle stays internally consistent whatever the source
// file contained.
func (a *Assembler) ConvertObservation(ctx context.Context, o *parser.Observation) *fhir.Observation {
	subjectID := o.PatientID
	if !strings.HasPrefix(subjectID, "patient-") {
		subjectID = "patient-" + subjectID
	}

	name := o.Display
	if name == "" {
		name = o.Code
	}
	codeRes := a.resolver.ResolveObservationCode(ctx, name)

	obs := &fhir.Observation{
		ResourceType: "Observation",
		ID:           o.ID,
		Status:       normalizeObservationStatus(o.Status),
		Code: &fhir.CodeableConcept{
			Coding: []fhir.Coding{codeRes.Coding},
			Text:   name,
		},
		Subject: &fhir.Reference{Reference: fhir.FormatReference("Patient", subjectID)},
	}

	switch {
	case o.ValueQuantity != nil:
		unitRes := a.resolver.ResolveUnitCode(o.ValueUnit)
		obs.ValueQuantity = &fhir.Quantity{
			Value:  *o.ValueQuantity,
			Unit:   unitRes.Coding.Display,
			System: fhirmodels.SystemUCUM,
			Code:   unitRes.Coding.Code,
		}
	case o.ValueString != "":
		obs.ValueString = o.ValueString
	}

	if o.EffectiveDateTime != nil {
		obs.EffectiveDateTime = fhir.FormatDateTime(*o.EffectiveDateTime)
	}

	a.logger.Debug().Str("observation_id", o.ID).Str("code", codeRes.Coding.Code).
		Stringer("tier", codeRes.Tier).Msg("observation converted")
	return obs
}

// CreateBundle wraps one patient and its observations into a collection
// bundle. Observations referencing a different patient are kept, since
// the bundle is still structurally valid, but logged for the operator.
func (a *Assembler) CreateBundle(jobID string, patient *fhir.Patient, observations []*fhir.Observation) (*fhir.Bundle, error) {
	want := fhir.FormatReference("Patient", patient.ID)
	for _, obs := range observations {
		if obs.Subject == nil || obs.Subject.Reference != want {
			a.logger.Warn().Str("observation_id", obs.ID).Str("patient_id", patient.ID).
				Msg("observation does not reference the bundle patient")
		}
	}

	bundle, err := fhir.NewCollectionBundle(jobID, patient, observations)
	if err != nil {
		return nil, err
	}
	a.logger.Info().Str("job_id", jobID).Int("observations", len(observations)).
		Msg("bundle assembled")
	return bundle, nil
}

func normalizeGender(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "male", "m":
		return fhirmodels.GenderMale
	case "female", "f":
		return fhirmodels.GenderFemale
	case "other", "o":
		return fhirmodels.GenderOther
	default:
		return fhirmodels.GenderUnknown
	}
}

func normalizeObservationStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "final", "completed":
		return fhirmodels.ObsStatusFinal
	case "preliminary":
		return fhirmodels.ObsStatusPreliminary
	case "cancelled":
		return fhirmodels.ObsStatusCancelled
	default:
		return fhirmodels.ObsStatusFinal
	}
}
