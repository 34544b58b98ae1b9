package parser

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the canonical demographic record extracted from a source
// file. The ID carries the `patient-` prefix convention already applied.
type Patient struct {
	ID         string
	GivenName  string
	FamilyName string
	Gender     string
	BirthDate  *time.Time
	Phone      string
	Email      string
}

// Observation is a single clinical measurement extracted from a source
// file, before any terminology resolution. Exactly one of ValueQuantity
// or ValueString is set when a value was present.
type Observation struct {
	ID                string
	PatientID         string
	Code              string
	Display           string
	ValueQuantity     *float64
	ValueUnit         string
	ValueString       string
	EffectiveDateTime *time.Time
	Status            string
}

// newObservation allocates an observation with a fresh id and the
// default final status.
func newObservation(patientID string) *Observation {
	return &Observation{
		ID:        uuid.New().String(),
		PatientID: patientID,
		Status:    "final",
	}
}
