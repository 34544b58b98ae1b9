package fhir

import (
	"encoding/json"
	"time"

	"github.com/fhirconv/fhirconv/pkg/fhirmodels"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
}

// NewCollectionBundle creates a collection Bundle holding one Patient
// followed by its Observations in their original order. The bundle id is
// derived from the conversion job id.
func NewCollectionBundle(jobID string, patient *Patient, observations []*Observation) (*Bundle, error) {
	now := time.Now().UTC()
	bundle := &Bundle{
		ResourceType: "Bundle",
		ID:           "bundle-" + jobID,
		Type:         fhirmodels.BundleTypeCollection,
		Timestamp:    &now,
		Entry:        make([]BundleEntry, 0, len(observations)+1),
	}

	raw, err := json.Marshal(patient)
	if err != nil {
		return nil, err
	}
	bundle.Entry = append(bundle.Entry, BundleEntry{
		FullURL:  FormatReference("Patient", patient.ID),
		Resource: raw,
	})

	for _, obs := range observations {
		raw, err := json.Marshal(obs)
		if err != nil {
			return nil, err
		}
		bundle.Entry = append(bundle.Entry, BundleEntry{
			FullURL:  FormatReference("Observation", obs.ID),
			Resource: raw,
		})
	}

	return bundle, nil
}
