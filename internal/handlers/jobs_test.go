package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoscribe/internal/middleware"
	"videoscribe/internal/models"
	"videoscribe/internal/repository"
)

type fakeQueue struct {
	jobs []*models.Job
	err  error
}

func (q *fakeQueue) Enqueue(ctx context.Context, job *models.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func newJobRouter(t *testing.T, queue *fakeQueue) (http.Handler, repository.JobStore) {
	t.Helper()
	store, closeFn, err := repository.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	t.Cleanup(closeFn)

	h := NewJobHandler(store, queue)
	r := chi.NewRouter()
	r.Post("/jobs", h.Create)
	r.Get("/jobs/{id}", h.Get)
	return r, store
}

func asSubject(req *http.Request, subject string) *http.Request {
	return req.WithContext(middleware.WithSubject(req.Context(), subject))
}

func postJob(t *testing.T, router http.Handler, subject string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	jsonBody, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewReader(jsonBody))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asSubject(req, subject))
	return rr
}

func TestCreateJob(t *testing.T) {
	queue := &fakeQueue{}
	router, store := newJobRouter(t, queue)

	rr := postJob(t, router, "alice", models.CreateJobRequest{
		Reference: "  https://space.bilibili.com/1/favlist?fid=5  ",
		Options:   models.JobOptions{Language: "en", Limit: 3},
	})
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var job models.Job
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&job))
	assert.Equal(t, "alice", job.Subject)
	assert.Equal(t, "https://space.bilibili.com/1/favlist?fid=5", job.Reference)
	assert.Equal(t, models.JobPending, job.Status)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, job.ID, queue.jobs[0].ID)

	stored, err := store.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Options.Limit)
}

func TestCreateJobValidation(t *testing.T) {
	tests := []struct {
		name  string
		req   models.CreateJobRequest
		field string
	}{
		{"missing reference", models.CreateJobRequest{}, "reference"},
		{"unknown site", models.CreateJobRequest{Reference: "https://vimeo.com/123"}, "reference"},
		{"bad language", models.CreateJobRequest{Reference: "BV1xx411c7mD", Options: models.JobOptions{Language: "fr"}}, "options.language"},
		{"negative limit", models.CreateJobRequest{Reference: "BV1xx411c7mD", Options: models.JobOptions{Limit: -1}}, "options.limit"},
		{"too many workers", models.CreateJobRequest{Reference: "BV1xx411c7mD", Options: models.JobOptions{MaxWorkers: 9}}, "options.max_workers"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			queue := &fakeQueue{}
			router, _ := newJobRouter(t, queue)

			rr := postJob(t, router, "alice", tc.req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
			assert.Contains(t, resp.Error.Fields, tc.field)
			assert.Empty(t, queue.jobs)
		})
	}
}

func TestCreateJobMalformedBody(t *testing.T) {
	router, _ := newJobRouter(t, &fakeQueue{})
	req := httptest.NewRequest(http.MethodPost, "/jobs", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asSubject(req, "alice"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateJobQueueFailure(t *testing.T) {
	router, _ := newJobRouter(t, &fakeQueue{err: errors.New("redis down")})
	rr := postJob(t, router, "alice", models.CreateJobRequest{Reference: "https://youtu.be/dQw4w9WgXcQ"})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGetJob(t *testing.T) {
	router, store := newJobRouter(t, &fakeQueue{})
	job := &models.Job{Subject: "alice", Reference: "BV1xx411c7mD"}
	require.NoError(t, store.Create(context.Background(), job))

	get := func(subject, id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/jobs/"+id, nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, asSubject(req, subject))
		return rr
	}

	rr := get("alice", job.ID.String())
	require.Equal(t, http.StatusOK, rr.Code)
	var got models.Job
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, job.ID, got.ID)

	assert.Equal(t, http.StatusNotFound, get("bob", job.ID.String()).Code)
	assert.Equal(t, http.StatusNotFound, get("alice", uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, get("alice", "not-a-uuid").Code)
}

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
