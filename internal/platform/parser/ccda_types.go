package parser

import "encoding/xml"

// XML shapes for the subset of a CDA R2 clinical document this service
// reads: the patient header and any observation entries in the body.

const (
	cdaNamespace = "urn:hl7-org:v3"
	xsiNamespace = "http://www.w3.org/2001/XMLSchema-instance"
)

type clinicalDocument struct {
	XMLName      xml.Name         `xml:"urn:hl7-org:v3 ClinicalDocument"`
	RecordTarget *cdaRecordTarget `xml:"recordTarget"`
	Component    *cdaComponent    `xml:"component"`
}

type cdaRecordTarget struct {
	PatientRole *cdaPatientRole `xml:"patientRole"`
}

type cdaPatientRole struct {
	IDs     []cdaInstanceID `xml:"id"`
	Patient *cdaPatient     `xml:"patient"`
}

type cdaInstanceID struct {
	Root      string `xml:"root,attr"`
	Extension string `xml:"extension,attr"`
}

type cdaPatient struct {
	Name       *cdaName      `xml:"name"`
	GenderCode *cdaCode      `xml:"administrativeGenderCode"`
	BirthTime  *cdaTimeValue `xml:"birthTime"`
}

type cdaName struct {
	Given  string `xml:"given"`
	Family string `xml:"family"`
}

type cdaCode struct {
	Code        string `xml:"code,attr"`
	DisplayName string `xml:"displayName,attr"`
}

type cdaTimeValue struct {
	Value string `xml:"value,attr"`
}

type cdaComponent struct {
	StructuredBody *cdaStructuredBody `xml:"structuredBody"`
}

type cdaStructuredBody struct {
	Components []cdaSectionComponent `xml:"component"`
}

type cdaSectionComponent struct {
	Section *cdaSection `xml:"section"`
}

type cdaSection struct {
	Entries []cdaEntry `xml:"entry"`
}

type cdaEntry struct {
	Observation *cdaObservation `xml:"observation"`
	Organizer   *cdaOrganizer   `xml:"organizer"`
}

type cdaOrganizer struct {
	Components []cdaOrganizerComponent `xml:"component"`
}

type cdaOrganizerComponent struct {
	Observation *cdaObservation `xml:"observation"`
}

type cdaObservation struct {
	Code          *cdaCode      `xml:"code"`
	StatusCode    *cdaCode      `xml:"statusCode"`
	EffectiveTime *cdaTimeValue `xml:"effectiveTime"`
	Value         *cdaValue     `xml:"value"`
}

type cdaValue struct {
	Value string `xml:"value,attr"`
	Unit  string `xml:"unit,attr"`
}
