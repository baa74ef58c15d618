package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"videoscribe/internal/batch"
	"videoscribe/internal/identifier"
	"videoscribe/internal/middleware"
	"videoscribe/internal/models"
	"videoscribe/internal/repository"
	"videoscribe/internal/transcript"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, job *models.Job) error
}

type JobHandler struct {
	jobs  repository.JobStore
	queue Enqueuer
}

func NewJobHandler(jobs repository.JobStore, queue Enqueuer) *JobHandler {
	return &JobHandler{jobs: jobs, queue: queue}
}

// Create records a resolve-and-batch job for the caller and queues it.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if fields := validateJobRequest(&req); len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	job := &models.Job{
		Subject:   middleware.GetSubject(r.Context()),
		Reference: req.Reference,
		Options:   req.Options,
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		slog.Error("failed to create job", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create job", r))
		return
	}

	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		slog.Error("failed to enqueue job", slog.String("job", job.ID.String()), slog.Any("error", err))
		h.jobs.UpdateError(r.Context(), job.ID, err.Error(), 0)
		h.jobs.UpdateStatus(r.Context(), job.ID, models.JobFailed)
		writeJSON(w, http.StatusServiceUnavailable, errorResp("QUEUE_UNAVAILABLE", "Failed to queue job", r))
		return
	}

	writeJSON(w, http.StatusAccepted, job)
}

func validateJobRequest(req *models.CreateJobRequest) map[string]string {
	fields := map[string]string{}

	req.Reference = strings.TrimSpace(req.Reference)
	if req.Reference == "" {
		fields["reference"] = "Reference is required"
	} else if _, ok := identifier.DetectPlatform(req.Reference); !ok {
		fields["reference"] = "Unrecognised bilibili or YouTube reference"
	}

	switch strings.ToLower(strings.TrimSpace(req.Options.Language)) {
	case "", transcript.ModeAuto, transcript.ModeChinese, transcript.ModeEnglish:
	default:
		fields["options.language"] = "Must be auto, zh or en"
	}
	if req.Options.Limit < 0 {
		fields["options.limit"] = "Must not be negative"
	}
	if req.Options.MaxWorkers < 0 || req.Options.MaxWorkers > batch.MaxWorkers {
		fields["options.max_workers"] = "Must be between 1 and " + strconv.Itoa(batch.MaxWorkers)
	}
	return fields
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
		return
	}
	if err != nil {
		slog.Error("failed to load job", slog.String("job", id.String()), slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load job", r))
		return
	}

	// Other subjects' jobs are indistinguishable from missing ones.
	if job.Subject != middleware.GetSubject(r.Context()) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Job not found", r))
		return
	}

	writeJSON(w, http.StatusOK, job)
}
