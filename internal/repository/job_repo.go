package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"videoscribe/internal/database"
	"videoscribe/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

const defaultMaxRetries = 3

// JobStore is the ledger of batch jobs submitted through the API.
type JobStore interface {
	Create(ctx context.Context, j *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error
	SaveOutcome(ctx context.Context, id uuid.UUID, results []models.ProcessResult, failures []string) error
}

// Open picks the store for databaseURL: Postgres for postgres:// URLs, a
// SQLite file otherwise. The returned func releases the connection.
func Open(databaseURL string) (JobStore, func(), error) {
	if database.IsPostgresURL(databaseURL) {
		pool, err := database.NewPostgresPool(databaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.RunMigrations(pool, database.Migrations()); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return NewJobRepo(pool), pool.Close, nil
	}

	db, err := database.OpenSQLite(databaseURL)
	if err != nil {
		return nil, nil, err
	}
	return NewSQLiteJobRepo(db), func() { db.Close() }, nil
}

func prepareNewJob(j *models.Job) {
	j.ID = uuid.New()
	j.Status = models.JobPending
	j.RetryCount = 0
	if j.MaxRetries <= 0 {
		j.MaxRetries = defaultMaxRetries
	}
	if j.Results == nil {
		j.Results = []models.ProcessResult{}
	}
	if j.Failures == nil {
		j.Failures = []string{}
	}
}

func isTerminal(status string) bool {
	return status == models.JobCompleted || status == models.JobFailed
}

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	prepareNewJob(j)

	optionsBytes, err := json.Marshal(j.Options)
	if err != nil {
		return fmt.Errorf("failed to encode job options: %w", err)
	}

	query := `INSERT INTO jobs (id, subject, reference, options_json, status, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		j.ID, j.Subject, j.Reference, optionsBytes, j.Status, j.RetryCount, j.MaxRetries,
	).Scan(&j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j := &models.Job{}
	var optionsBytes, resultsBytes, failuresBytes []byte
	query := `SELECT id, subject, reference, options_json, status, retry_count, max_retries,
		results_json, failures_json, error_message, created_at, completed_at
		FROM jobs WHERE id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&j.ID, &j.Subject, &j.Reference, &optionsBytes, &j.Status, &j.RetryCount, &j.MaxRetries,
		&resultsBytes, &failuresBytes, &j.ErrorMessage, &j.CreatedAt, &j.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := decodeJobJSON(j, optionsBytes, resultsBytes, failuresBytes); err != nil {
		return nil, err
	}
	return j, nil
}

func (r *JobRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if isTerminal(status) {
		_, err := r.pool.Exec(ctx, "UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3", status, time.Now().UTC(), id)
		return err
	}
	_, err := r.pool.Exec(ctx, "UPDATE jobs SET status = $1 WHERE id = $2", status, id)
	return err
}

func (r *JobRepo) UpdateError(ctx context.Context, id uuid.UUID, errMsg string, retryCount int) error {
	_, err := r.pool.Exec(ctx,
		"UPDATE jobs SET error_message = $1, retry_count = $2 WHERE id = $3",
		errMsg, retryCount, id,
	)
	return err
}

func (r *JobRepo) SaveOutcome(ctx context.Context, id uuid.UUID, results []models.ProcessResult, failures []string) error {
	resultsBytes, failuresBytes, err := encodeOutcome(results, failures)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		"UPDATE jobs SET results_json = $1, failures_json = $2 WHERE id = $3",
		resultsBytes, failuresBytes, id,
	)
	return err
}

func encodeOutcome(results []models.ProcessResult, failures []string) ([]byte, []byte, error) {
	if results == nil {
		results = []models.ProcessResult{}
	}
	if failures == nil {
		failures = []string{}
	}
	resultsBytes, err := json.Marshal(results)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode results: %w", err)
	}
	failuresBytes, err := json.Marshal(failures)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode failures: %w", err)
	}
	return resultsBytes, failuresBytes, nil
}

func decodeJobJSON(j *models.Job, optionsBytes, resultsBytes, failuresBytes []byte) error {
	if len(optionsBytes) > 0 {
		if err := json.Unmarshal(optionsBytes, &j.Options); err != nil {
			return fmt.Errorf("failed to decode job options: %w", err)
		}
	}
	if len(resultsBytes) > 0 {
		if err := json.Unmarshal(resultsBytes, &j.Results); err != nil {
			return fmt.Errorf("failed to decode job results: %w", err)
		}
	}
	if len(failuresBytes) > 0 {
		if err := json.Unmarshal(failuresBytes, &j.Failures); err != nil {
			return fmt.Errorf("failed to decode job failures: %w", err)
		}
	}
	return nil
}
