package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobPending    = "pending"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Job is one queued resolve-and-batch run submitted through the HTTP API.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Subject      string          `json:"subject"`
	Reference    string          `json:"reference"`
	Options      JobOptions      `json:"options"`
	Status       string          `json:"status"`
	RetryCount   int             `json:"retry_count"`
	MaxRetries   int             `json:"max_retries"`
	Results      []ProcessResult `json:"results"`
	Failures     []string        `json:"failures"`
	ErrorMessage *string         `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at"`
}

type JobOptions struct {
	Language          string `json:"language,omitempty"`
	Limit             int    `json:"limit,omitempty"`
	MaxWorkers        int    `json:"max_workers,omitempty"`
	NoConcurrent      bool   `json:"no_concurrent,omitempty"`
	IncludeCollection bool   `json:"include_collection,omitempty"`
}

type CreateJobRequest struct {
	Reference string     `json:"reference"`
	Options   JobOptions `json:"options"`
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ProgressEvent struct {
	JobID   uuid.UUID `json:"job_id"`
	Message string    `json:"message"`
}

type CompletedEvent struct {
	JobID     uuid.UUID `json:"job_id"`
	Successes int       `json:"successes"`
	Failures  int       `json:"failures"`
}

type ErrorEvent struct {
	JobID        uuid.UUID `json:"job_id"`
	ErrorCode    string    `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}

// UpdatesChannel is the pub/sub channel carrying job events for subject.
func UpdatesChannel(subject string) string {
	return "job_updates:" + subject
}
