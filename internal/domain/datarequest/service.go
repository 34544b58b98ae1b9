package datarequest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	requests Repository
	logger   zerolog.Logger
}

func NewService(requests Repository, logger zerolog.Logger) *Service {
	return &Service{
		requests: requests,
		logger:   logger.With().Str("component", "datarequest").Logger(),
	}
}

// CreateRequest opens a new data request against another organization.
func (s *Service) CreateRequest(ctx context.Context, r *DataRequest) error {
	if r.RequestingOrgID == r.SourceOrgID {
		return fmt.Errorf("cannot request data from your own organization")
	}

	open, err := s.requests.ExistsOpen(ctx, r.GlobalPatientID, r.RequestingOrgID, r.SourceOrgID)
	if err != nil {
		return err
	}
	if open {
		return fmt.Errorf("an open request for this patient already exists")
	}

	r.Status = StatusPending
	if r.ExpiresAt.IsZero() {
		r.ExpiresAt = time.Now().UTC().Add(DefaultRequestTTL)
	}
	if err := s.requests.Create(ctx, r); err != nil {
		return err
	}
	s.logger.Info().Str("request_id", r.ID.String()).Str("patient_id", r.GlobalPatientID.String()).
		Msg("data request created")
	return nil
}

func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (*DataRequest, error) {
	return s.requests.GetByID(ctx, id)
}

func (s *Service) ListByOrganization(ctx context.Context, orgID uuid.UUID, requesting bool) ([]*DataRequest, error) {
	return s.requests.ListByOrganization(ctx, orgID, requesting)
}

func (s *Service) ListPending(ctx context.Context, sourceOrgID uuid.UUID) ([]*DataRequest, error) {
	return s.requests.ListPending(ctx, sourceOrgID)
}

// Review approves or rejects a pending request. Only pending,
// unexpired requests can be reviewed.
func (s *Service) Review(ctx context.Context, id uuid.UUID, approve bool, notes string, reviewerID uuid.UUID) (*DataRequest, error) {
	r, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, fmt.Errorf("request is %s, only pending requests can be reviewed", r.Status)
	}
	if r.Expired(time.Now().UTC()) {
		return nil, fmt.Errorf("request has expired")
	}

	now := time.Now().UTC()
	if approve {
		r.Status = StatusApproved
	} else {
		r.Status = StatusRejected
	}
	r.ApprovedAt = &now
	r.ApprovedByUserID = &reviewerID
	if notes != "" {
		r.Notes = &notes
	}
	if err := s.requests.Update(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Info().Str("request_id", id.String()).Str("status", string(r.Status)).
		Msg("data request reviewed")
	return r, nil
}

// MarkDataReady advances an approved request once its linked conversion
// completes. Requests in any other state are left untouched.
func (s *Service) MarkDataReady(ctx context.Context, id uuid.UUID) error {
	applied, err := s.requests.UpdateStatusIf(ctx, id, StatusApproved, StatusDataReady)
	if err != nil {
		return err
	}
	if applied {
		s.logger.Info().Str("request_id", id.String()).Msg("data request marked data-ready")
	}
	return nil
}

// MarkCompleted closes a data-ready request when its bundle is
// downloaded. Requests in any other state are left untouched.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	applied, err := s.requests.UpdateStatusIf(ctx, id, StatusDataReady, StatusCompleted)
	if err != nil {
		return err
	}
	if applied {
		s.logger.Info().Str("request_id", id.String()).Msg("data request completed")
	}
	return nil
}
