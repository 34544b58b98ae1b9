package datarequest

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fhirconv/fhirconv/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &requestRepoPG{pool: pool}
}

func (r *requestRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const requestCols = `id, global_patient_id, requesting_user_id, requesting_org_id,
	source_org_id, status, notes, approved_at, approved_by_user_id,
	expires_at, created_at, updated_at`

func (r *requestRepoPG) scanRequest(row pgx.Row) (*DataRequest, error) {
	var dr DataRequest
	err := row.Scan(&dr.ID, &dr.GlobalPatientID, &dr.RequestingUserID, &dr.RequestingOrgID,
		&dr.SourceOrgID, &dr.Status, &dr.Notes, &dr.ApprovedAt, &dr.ApprovedByUserID,
		&dr.ExpiresAt, &dr.CreatedAt, &dr.UpdatedAt)
	return &dr, err
}

func (r *requestRepoPG) Create(ctx context.Context, req *DataRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO data_request (id, global_patient_id, requesting_user_id,
			requesting_org_id, source_org_id, status, notes, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		req.ID, req.GlobalPatientID, req.RequestingUserID,
		req.RequestingOrgID, req.SourceOrgID, req.Status, req.Notes, req.ExpiresAt)
	return err
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*DataRequest, error) {
	return r.scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM data_request WHERE id = $1`, id))
}

func (r *requestRepoPG) Update(ctx context.Context, req *DataRequest) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE data_request SET status=$2, notes=$3, approved_at=$4,
			approved_by_user_id=$5, updated_at=NOW()
		WHERE id = $1`,
		req.ID, req.Status, req.Notes, req.ApprovedAt, req.ApprovedByUserID)
	return err
}

func (r *requestRepoPG) UpdateStatusIf(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE data_request SET status=$3, updated_at=NOW()
		WHERE id = $1 AND status = $2`,
		id, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *requestRepoPG) ListByOrganization(ctx context.Context, orgID uuid.UUID, requesting bool) ([]*DataRequest, error) {
	col := "source_org_id"
	if requesting {
		col = "requesting_org_id"
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+requestCols+` FROM data_request WHERE `+col+` = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *requestRepoPG) ListPending(ctx context.Context, sourceOrgID uuid.UUID) ([]*DataRequest, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+requestCols+` FROM data_request
		 WHERE source_org_id = $1 AND status = $2 AND expires_at > NOW()
		 ORDER BY created_at DESC`, sourceOrgID, StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.collect(rows)
}

func (r *requestRepoPG) ExistsOpen(ctx context.Context, patientID, requestingOrgID, sourceOrgID uuid.UUID) (bool, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM data_request
		WHERE global_patient_id = $1 AND requesting_org_id = $2 AND source_org_id = $3
		  AND status IN ($4, $5)`,
		patientID, requestingOrgID, sourceOrgID, StatusPending, StatusApproved).Scan(&count)
	return count > 0, err
}

func (r *requestRepoPG) collect(rows pgx.Rows) ([]*DataRequest, error) {
	var items []*DataRequest
	for rows.Next() {
		dr, err := r.scanRequest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, dr)
	}
	return items, rows.Err()
}
