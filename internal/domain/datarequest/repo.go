package datarequest

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, r *DataRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*DataRequest, error)
	Update(ctx context.Context, r *DataRequest) error
	// UpdateStatusIf moves a request from one status to another in a
	// single guarded write. It reports whether the transition applied.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)
	ListByOrganization(ctx context.Context, orgID uuid.UUID, requesting bool) ([]*DataRequest, error)
	ListPending(ctx context.Context, sourceOrgID uuid.UUID) ([]*DataRequest, error)
	ExistsOpen(ctx context.Context, patientID, requestingOrgID, sourceOrgID uuid.UUID) (bool, error)
}
