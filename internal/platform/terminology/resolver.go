// Package terminology normalizes free-text clinical test names and units
// to coded concepts: LOINC for observation codes and UCUM for units. The
// resolver is dictionary-first with an optional bounded remote lookup and
// never fails; unmapped vocabulary degrades to a generic coding instead
// of blocking the conversion pipeline.
package terminology

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fhirconv/fhirconv/internal/platform/fhir"
	"github.com/fhirconv/fhirconv/pkg/fhirmodels"
)

type concept struct {
	Code    string
	Display string
}

// Tier identifies which layer of the resolver produced a coding.
type Tier int

const (
	TierRemote Tier = iota
	TierDictionary
	TierFallback
	TierAbsent
)

func (t Tier) String() string {
	switch t {
	case TierRemote:
		return "remote"
	case TierDictionary:
		return "dictionary"
	case TierFallback:
		return "fallback"
	case TierAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Resolution is the result of a terminology resolution. The Coding is
// always usable; Tier and Remote expose how it was obtained.
type Resolution struct {
	Coding fhir.Coding
	Tier   Tier
	Remote RemoteStatus
}

// Resolver maps free-text test names and units to coded concepts. It is
// safe for concurrent use: the dictionaries are read-only and the remote
// client holds no mutable state.
type Resolver struct {
	client *Client // nil disables the remote tier
	logger zerolog.Logger
}

// NewResolver creates a Resolver. client may be nil, in which case only
// the local dictionaries are consulted.
func NewResolver(client *Client, logger zerolog.Logger) *Resolver {
	return &Resolver{
		client: client,
		logger: logger.With().Str("component", "terminology").Logger(),
	}
}

// ResolveObservationCode maps a free-text test name to a LOINC coding.
// Resolution order: remote terminology server (when configured), curated
// dictionary, generic survey fallback. It never fails.
func (r *Resolver) ResolveObservationCode(ctx context.Context, testName string) Resolution {
	trimmed := strings.TrimSpace(testName)
	if trimmed == "" {
		r.logger.Warn().Msg("empty test name, emitting data-absent-reason")
		return Resolution{
			Coding: fhir.Coding{
				System:  fhirmodels.SystemDataAbsentReason,
				Code:    "unknown",
				Display: "Unknown",
			},
			Tier:   TierAbsent,
			Remote: RemoteSkipped,
		}
	}

	remote := RemoteSkipped
	if r.client != nil {
		result := r.client.LookupByDisplay(ctx, trimmed)
		remote = result.Status
		if result.Status == RemoteMatched {
			r.logger.Debug().Str("test_name", trimmed).Str("code", result.Code).
				Msg("LOINC code resolved remotely")
			return Resolution{
				Coding: fhir.Coding{
					System:  fhirmodels.SystemLOINC,
					Code:    result.Code,
					Display: result.Display,
				},
				Tier:   TierRemote,
				Remote: remote,
			}
		}
		r.logger.Debug().Str("test_name", trimmed).Stringer("status", result.Status).
			Msg("remote lookup missed, falling back to dictionary")
	}

	if c, ok := loincMappings[strings.ToLower(trimmed)]; ok {
		return Resolution{
			Coding: fhir.Coding{
				System:  fhirmodels.SystemLOINC,
				Code:    c.Code,
				Display: c.Display,
			},
			Tier:   TierDictionary,
			Remote: remote,
		}
	}

	r.logger.Warn().Str("test_name", trimmed).Msg("no LOINC mapping, using text fallback")
	return Resolution{
		Coding: fhir.Coding{
			System:  fhirmodels.SystemObsCategory,
			Code:    "survey",
			Display: trimmed,
		},
		Tier:   TierFallback,
		Remote: remote,
	}
}

// ResolveUnitCode maps a free-text unit to a UCUM coding. There is no
// remote tier for units; unresolved units pass through verbatim as both
// code and display.
func (r *Resolver) ResolveUnitCode(unit string) Resolution {
	trimmed := strings.TrimSpace(unit)
	if trimmed == "" {
		return Resolution{
			Coding: fhir.Coding{System: fhirmodels.SystemUCUM, Code: "1", Display: "1"},
			Tier:   TierAbsent,
			Remote: RemoteSkipped,
		}
	}

	if c, ok := ucumMappings[strings.ToLower(trimmed)]; ok {
		return Resolution{
			Coding: fhir.Coding{System: fhirmodels.SystemUCUM, Code: c.Code, Display: c.Display},
			Tier:   TierDictionary,
			Remote: RemoteSkipped,
		}
	}

	r.logger.Warn().Str("unit", trimmed).Msg("no UCUM mapping, passing unit through")
	return Resolution{
		Coding: fhir.Coding{System: fhirmodels.SystemUCUM, Code: trimmed, Display: trimmed},
		Tier:   TierFallback,
		Remote: RemoteSkipped,
	}
}

// HasObservationMapping reports whether a test name resolves from the
// local dictionary without a remote call.
func (r *Resolver) HasObservationMapping(testName string) bool {
	_, ok := loincMappings[strings.ToLower(strings.TrimSpace(testName))]
	return ok
}

// HasUnitMapping reports whether a unit resolves from the local dictionary.
func (r *Resolver) HasUnitMapping(unit string) bool {
	_, ok := ucumMappings[strings.ToLower(strings.TrimSpace(unit))]
	return ok
}
