package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"videoscribe/internal/models"
)

// SQLiteJobRepo keeps the job ledger in a local file for single-node use.
type SQLiteJobRepo struct {
	db *sql.DB
}

func NewSQLiteJobRepo(db *sql.DB) *SQLiteJobRepo {
	return &SQLiteJobRepo{db: db}
}

func (r *SQLiteJobRepo) Create(ctx context.Context, j *models.Job) error {
	prepareNewJob(j)
	j.CreatedAt = time.Now().UTC().Truncate(time.Second)

	optionsBytes, err := json.Marshal(j.Options)
	if err != nil {
		return fmt.Errorf("failed to encode job options: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO jobs (id, subject, reference, options_json, status, retry_count, max_retries, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.Subject, j.Reference, string(optionsBytes), j.Status, j.RetryCount, j.MaxRetries,
		j.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (r *SQLiteJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j := &models.Job{}
	var (
		idStr, createdAt                        string
		optionsJSON, resultsJSON, failuresJSON string
		errorMessage, completedAt               sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, subject, reference, options_json, status, retry_count, max_retries,
		results_json, failures_json, error_message, created_at, completed_at
		FROM jobs WHERE id = ?`, id.String(),
	).Scan(
		&idStr, &j.Subject, &j.Reference, &optionsJSON, &j.Status, &j.RetryCount, &j.MaxRetries,
		&resultsJSON, &failuresJSON, &errorMessage, &createdAt, &completedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	if j.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", idStr, err)
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		j.CreatedAt = ts
	}
	if completedAt.Valid {
		if ts, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
			j.CompletedAt = &ts
		}
	}
	if errorMessage.Valid {
		msg := errorMessage.String
		j.ErrorMessage = &msg
	}
	if err := decodeJobJSON(j, []byte(optionsJSON), []byte(resultsJSON), []byte(failuresJSON)); err != nil {
		return nil, err
	}
	return j, nil
}

func (r *SQLiteJobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if isTerminal(status) {
		_, err := r.db.ExecContext(ctx, "UPDATE jobs SET status = ?, completed_at = ? WHERE id = ?",
			status, time.Now().UTC().Format(time.RFC3339), id.String())
		return err
	}
	_, err := r.db.ExecContext(ctx, "UPDATE jobs SET status = ? WHERE id = ?", status, id.String())
	return err
}

func (r *SQLiteJobRepo) UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	_, err := r.db.ExecContext(ctx, "UPDATE jobs SET error_message = ?, retry_count = ? WHERE id = ?",
		errMsg, retryCount, id.String())
	return err
}

func (r *SQLiteJobRepo) SaveOutcome(ctx context.Context, id uuid.UUID, results []models.ProcessResult, failures []string) error {
	resultsBytes, failuresBytes, err := encodeOutcome(results, failures)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, "UPDATE jobs SET results_json = ?, failures_json = ? WHERE id = ?",
		string(resultsBytes), string(failuresBytes), id.String())
	return err
}
