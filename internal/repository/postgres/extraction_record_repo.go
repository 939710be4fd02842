package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docsieve/internal/domain"
	"docsieve/internal/port"
)

type extractionRecordRepo struct {
	db *sqlx.DB
}

// NewExtractionRecordRepo creates a new PostgreSQL-backed
// ExtractionRecordRepository.
func NewExtractionRecordRepo(db *sqlx.DB) port.ExtractionRecordRepository {
	return &extractionRecordRepo{db: db}
}

func (r *extractionRecordRepo) Create(ctx context.Context, rec *domain.ExtractionRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	query := `INSERT INTO extraction_records (
		id, filename, document_type, source_key, method, model,
		data, status, error_text, attempts, batch_job_id, batch_key,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10, $11, $12,
		$13, $14
	)`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Filename, rec.DocumentType, rec.SourceKey, rec.Method, rec.Model,
		rec.Data, rec.Status, rec.ErrorText, rec.Attempts, rec.BatchJobID, rec.BatchKey,
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("extractionRecordRepo.Create: %w", err)
	}
	return nil
}

func (r *extractionRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExtractionRecord, error) {
	var rec domain.ExtractionRecord
	err := r.db.GetContext(ctx, &rec, "SELECT * FROM extraction_records WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("extractionRecordRepo.GetByID: %w", err)
	}
	return &rec, nil
}

// Update rewrites the mutable outcome columns. Attempts is excluded and
// only changes through IncrementAttempts.
func (r *extractionRecordRepo) Update(ctx context.Context, rec *domain.ExtractionRecord) error {
	rec.UpdatedAt = time.Now().UTC()

	query := `UPDATE extraction_records SET
		method = $2, model = $3, data = $4, status = $5,
		error_text = $6, batch_job_id = $7, updated_at = $8
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Method, rec.Model, rec.Data, rec.Status,
		rec.ErrorText, rec.BatchJobID, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("extractionRecordRepo.Update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *extractionRecordRepo) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE extraction_records SET attempts = attempts + 1, updated_at = $2 WHERE id = $1",
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("extractionRecordRepo.IncrementAttempts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *extractionRecordRepo) ListByBatchJob(ctx context.Context, batchJobID uuid.UUID) ([]domain.ExtractionRecord, error) {
	var recs []domain.ExtractionRecord
	err := r.db.SelectContext(ctx, &recs,
		"SELECT * FROM extraction_records WHERE batch_job_id = $1 ORDER BY created_at", batchJobID)
	if err != nil {
		return nil, fmt.Errorf("extractionRecordRepo.ListByBatchJob: %w", err)
	}
	return recs, nil
}

func (r *extractionRecordRepo) ListByStatus(ctx context.Context, status domain.RecordStatus, offset, limit int) ([]domain.ExtractionRecord, int, error) {
	var total int
	err := r.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM extraction_records WHERE status = $1", status)
	if err != nil {
		return nil, 0, fmt.Errorf("extractionRecordRepo.ListByStatus count: %w", err)
	}

	var recs []domain.ExtractionRecord
	err = r.db.SelectContext(ctx, &recs,
		`SELECT * FROM extraction_records WHERE status = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		status, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("extractionRecordRepo.ListByStatus: %w", err)
	}
	return recs, total, nil
}
