package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoscribe/internal/database"
	"videoscribe/internal/models"
)

func newSQLiteStore(t *testing.T) JobStore {
	t.Helper()
	store, closeFn, err := Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(closeFn)
	return store
}

func TestSQLiteJobLifecycle(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	job := &models.Job{
		Subject:   "alice",
		Reference: "https://space.bilibili.com/1/favlist?fid=5",
		Options:   models.JobOptions{Language: "zh", Limit: 10, MaxWorkers: 3},
	}
	require.NoError(t, store.Create(ctx, job))
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, defaultMaxRetries, job.MaxRetries)

	got, err := store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.Subject, got.Subject)
	assert.Equal(t, job.Reference, got.Reference)
	assert.Equal(t, job.Options, got.Options)
	assert.Empty(t, got.Results)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.ErrorMessage)

	require.NoError(t, store.UpdateStatus(ctx, job.ID, models.JobProcessing))
	require.NoError(t, store.UpdateError(ctx, job.ID, "network error", 1))
	results := []models.ProcessResult{{
		Metadata:     models.VideoMetadata{Platform: models.PlatformBilibili, VideoID: "BV1a", Source: models.SourceOfficialSubtitle},
		MarkdownPath: "/out/bilibili/up/BV1a_title.md",
	}}
	require.NoError(t, store.SaveOutcome(ctx, job.ID, results, []string{"BV1b -> not found"}))
	require.NoError(t, store.UpdateStatus(ctx, job.ID, models.JobCompleted))

	got, err = store.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "network error", *got.ErrorMessage)
	require.NotNil(t, got.CompletedAt)
	require.Len(t, got.Results, 1)
	assert.Equal(t, "BV1a", got.Results[0].Metadata.VideoID)
	assert.Equal(t, []string{"BV1b -> not found"}, got.Failures)
}

func TestSQLiteGetMissingJob(t *testing.T) {
	store := newSQLiteStore(t)
	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestIsPostgresURL(t *testing.T) {
	assert.True(t, database.IsPostgresURL("postgres://u:p@localhost/db"))
	assert.True(t, database.IsPostgresURL("postgresql://localhost/db"))
	assert.False(t, database.IsPostgresURL("videoscribe.db"))
	assert.False(t, database.IsPostgresURL("sqlite:///var/lib/jobs.db"))
}
