package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docsieve/internal/domain"
	"docsieve/internal/port"
)

type batchJobRepo struct {
	db *sqlx.DB
}

// NewBatchJobRepo creates a new PostgreSQL-backed BatchJobRepository.
func NewBatchJobRepo(db *sqlx.DB) port.BatchJobRepository {
	return &batchJobRepo{db: db}
}

// batchJobRow carries the JSONB columns that need explicit decoding.
type batchJobRow struct {
	domain.BatchJob
	RequestMetadataRaw []byte `db:"request_metadata"`
	KeyOrderRaw        []byte `db:"key_order"`
}

func (r *batchJobRow) toDomain() (*domain.BatchJob, error) {
	job := r.BatchJob
	if len(r.RequestMetadataRaw) > 0 {
		if err := json.Unmarshal(r.RequestMetadataRaw, &job.RequestMetadata); err != nil {
			return nil, fmt.Errorf("decoding request metadata for %s: %w", job.ID, err)
		}
	}
	if len(r.KeyOrderRaw) > 0 {
		if err := json.Unmarshal(r.KeyOrderRaw, &job.KeyOrder); err != nil {
			return nil, fmt.Errorf("decoding key order for %s: %w", job.ID, err)
		}
	}
	return &job, nil
}

func (r *batchJobRepo) Create(ctx context.Context, job *domain.BatchJob) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	metaJSON, err := json.Marshal(job.RequestMetadata)
	if err != nil {
		return fmt.Errorf("batchJobRepo.Create: encoding request metadata: %w", err)
	}
	var keyOrderJSON []byte
	if job.KeyOrder != nil {
		keyOrderJSON, err = json.Marshal(job.KeyOrder)
		if err != nil {
			return fmt.Errorf("batchJobRepo.Create: encoding key order: %w", err)
		}
	}

	query := `INSERT INTO batch_jobs (
		id, provider_job_name, domain, model, status,
		total_requests, completed_requests, failed_requests,
		request_metadata, key_order, source_job_id,
		error_text, completed_at, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8,
		$9, $10, $11,
		$12, $13, $14, $15
	)`

	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.ProviderJobName, job.Domain, job.Model, job.Status,
		job.TotalRequests, job.CompletedRequests, job.FailedRequests,
		metaJSON, keyOrderJSON, job.SourceJobID,
		job.ErrorText, job.CompletedAt, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("batchJobRepo.Create: %w", err)
	}
	return nil
}

func (r *batchJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BatchJob, error) {
	var row batchJobRow
	err := r.db.GetContext(ctx, &row, "SELECT * FROM batch_jobs WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBatchJobNotFound
		}
		return nil, fmt.Errorf("batchJobRepo.GetByID: %w", err)
	}
	return row.toDomain()
}

func (r *batchJobRepo) GetByProviderName(ctx context.Context, providerJobName string) (*domain.BatchJob, error) {
	var row batchJobRow
	err := r.db.GetContext(ctx, &row,
		"SELECT * FROM batch_jobs WHERE provider_job_name = $1", providerJobName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBatchJobNotFound
		}
		return nil, fmt.Errorf("batchJobRepo.GetByProviderName: %w", err)
	}
	return row.toDomain()
}

func (r *batchJobRepo) GetBySourceJobID(ctx context.Context, sourceJobID uuid.UUID) ([]domain.BatchJob, error) {
	var rows []batchJobRow
	err := r.db.SelectContext(ctx, &rows,
		"SELECT * FROM batch_jobs WHERE source_job_id = $1 ORDER BY created_at", sourceJobID)
	if err != nil {
		return nil, fmt.Errorf("batchJobRepo.GetBySourceJobID: %w", err)
	}
	jobs := make([]domain.BatchJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("batchJobRepo.GetBySourceJobID: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

func (r *batchJobRepo) UpdateStatus(ctx context.Context, job *domain.BatchJob) error {
	job.UpdatedAt = time.Now().UTC()

	query := `UPDATE batch_jobs SET
		status = $2, completed_requests = $3, failed_requests = $4,
		error_text = $5, completed_at = $6, updated_at = $7
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		job.ID, job.Status, job.CompletedRequests, job.FailedRequests,
		job.ErrorText, job.CompletedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("batchJobRepo.UpdateStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrBatchJobNotFound
	}
	return nil
}

func (r *batchJobRepo) ListPending(ctx context.Context, batchDomain *domain.BatchDomain) ([]domain.BatchJob, error) {
	query := "SELECT * FROM batch_jobs WHERE status = $1"
	args := []interface{}{domain.BatchJobStatusPending}
	if batchDomain != nil {
		query += " AND domain = $2"
		args = append(args, *batchDomain)
	}
	query += " ORDER BY created_at"

	var rows []batchJobRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("batchJobRepo.ListPending: %w", err)
	}
	jobs := make([]domain.BatchJob, 0, len(rows))
	for i := range rows {
		job, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("batchJobRepo.ListPending: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}
