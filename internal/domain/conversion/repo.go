package conversion

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, j *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)
	// GetProcessingByFile finds a live job for the given upload, used to
	// block duplicate conversions of the same file.
	GetProcessingByFile(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (*Job, error)
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*Job, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Job, error)
	Update(ctx context.Context, j *Job) error
	// FinishIfProcessing applies the worker's final write only when the
	// job is still processing, so a concurrent user reset wins over a
	// slow worker. It reports whether the write applied.
	FinishIfProcessing(ctx context.Context, j *Job) (bool, error)
}
