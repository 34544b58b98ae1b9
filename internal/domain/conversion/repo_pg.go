package conversion

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

type jobRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &jobRepoPG{pool: pool}
}

func (r *jobRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const jobCols = `id, user_id, request_id, input_format, status, error_message,
	patients_count, observations_count, completed_at,
	original_file_name, file_size_bytes, processing_time_ms,
	created_at, updated_at`

func (r *jobRepoPG) scanJob(row pgx.Row) (*Job, error) {
	var j Job
	err := row.Scan(&j.ID, &j.UserID, &j.RequestID, &j.InputFormat, &j.Status, &j.ErrorMessage,
		&j.PatientsCount, &j.ObservationsCount, &j.CompletedAt,
		&j.OriginalFileName, &j.FileSizeBytes, &j.ProcessingTimeMs,
		&j.CreatedAt, &j.UpdatedAt)
	return &j, err
}

func (r *jobRepoPG) Create(ctx context.Context, j *Job) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO conversion_job (id, user_id, request_id, input_format, status,
			original_file_name, file_size_bytes)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		j.ID, j.UserID, j.RequestID, j.InputFormat, j.Status,
		j.OriginalFileName, j.FileSizeBytes)
	return err
}

func (r *jobRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Job, error) {
	return r.scanJob(r.conn(ctx).QueryRow(ctx,
		`SELECT `+jobCols+` FROM conversion_job WHERE id = $1`, id))
}

func (r *jobRepoPG) GetProcessingByFile(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (*Job, error) {
	return r.scanJob(r.conn(ctx).QueryRow(ctx, `
		SELECT `+jobCols+` FROM conversion_job
		WHERE user_id = $1 AND status = $2 AND original_file_name LIKE $3 || '%'
		LIMIT 1`,
		userID, StatusProcessing, fileID.String()))
}

func (r *jobRepoPG) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*Job, error) {
	return r.scanJob(r.conn(ctx).QueryRow(ctx, `
		SELECT `+jobCols+` FROM conversion_job
		WHERE request_id = $1
		ORDER BY created_at DESC LIMIT 1`, requestID))
}

func (r *jobRepoPG) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Job, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+jobCols+` FROM conversion_job
		WHERE user_id = $1
		   OR request_id IN (SELECT id FROM data_request WHERE requesting_user_id = $1)
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Job
	for rows.Next() {
		j, err := r.scanJob(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, j)
	}
	return items, rows.Err()
}

func (r *jobRepoPG) Update(ctx context.Context, j *Job) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE conversion_job SET status=$2, error_message=$3, patients_count=$4,
			observations_count=$5, completed_at=$6, processing_time_ms=$7, updated_at=NOW()
		WHERE id = $1`,
		j.ID, j.Status, j.ErrorMessage, j.PatientsCount,
		j.ObservationsCount, j.CompletedAt, j.ProcessingTimeMs)
	return err
}

func (r *jobRepoPG) FinishIfProcessing(ctx context.Context, j *Job) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE conversion_job SET status=$2, error_message=$3, patients_count=$4,
			observations_count=$5, completed_at=$6, processing_time_ms=$7, updated_at=NOW()
		WHERE id = $1 AND status = $8`,
		j.ID, j.Status, j.ErrorMessage, j.PatientsCount,
		j.ObservationsCount, j.CompletedAt, j.ProcessingTimeMs, StatusProcessing)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
