// Package datarequest implements cross-organization patient data
// requests. A request moves through an approval workflow and, once a
// linked conversion finishes, through data-ready and completed states.
package datarequest

import (
	"time"

	"github.com/google/uuid"
)

// Status is the closed set of data request states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusDataReady Status = "data_ready"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDataReady, StatusCompleted, StatusExpired:
		return true
	default:
		return false
	}
}

// DefaultRequestTTL is how long a request stays actionable after
// creation.
const DefaultRequestTTL = 7 * 24 * time.Hour

// DataRequest maps to the data_request table.
type DataRequest struct {
	ID                uuid.UUID  `db:"id" json:"requestId"`
	GlobalPatientID   uuid.UUID  `db:"global_patient_id" json:"globalPatientId"`
	RequestingUserID  uuid.UUID  `db:"requesting_user_id" json:"requestingUserId"`
	RequestingOrgID   uuid.UUID  `db:"requesting_org_id" json:"requestingOrganizationId"`
	SourceOrgID       uuid.UUID  `db:"source_org_id" json:"sourceOrganizationId"`
	Status            Status     `db:"status" json:"status"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	ApprovedAt        *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	ApprovedByUserID  *uuid.UUID `db:"approved_by_user_id" json:"approvedByUserId,omitempty"`
	ExpiresAt         time.Time  `db:"expires_at" json:"expiresAt"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// Expired reports whether the request's action window has passed.
func (r *DataRequest) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}
