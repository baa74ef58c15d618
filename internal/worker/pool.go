package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"videoscribe/internal/batch"
	"videoscribe/internal/models"
	"videoscribe/internal/pipeline"
	"videoscribe/internal/repository"
)

const lockTTL = 2 * time.Hour

type Runner interface {
	ResolveAndBatch(ctx context.Context, raw string, opts pipeline.Options) (batch.Result, error)
	ProcessSingle(ctx context.Context, raw string, opts pipeline.Options) ([]models.ProcessResult, error)
}

type Broker interface {
	Enqueue(ctx context.Context, job *models.Job) error
	Publish(ctx context.Context, subject string, msg models.WSMessage) error
}

// Pool runs queued transcription jobs. Each job is one ResolveAndBatch call
// whose progress lines are published to the job's subject.
type Pool struct {
	redis       *redis.Client
	broker      Broker
	jobs        repository.JobStore
	runner      Runner
	defaults    pipeline.Options
	workerCount int
	stopChan    chan struct{}
	retryDelay  func(attempt int) time.Duration
}

func NewPool(
	redisClient *redis.Client,
	broker Broker,
	jobs repository.JobStore,
	runner Runner,
	defaults pipeline.Options,
	workerCount int,
) *Pool {
	return &Pool{
		redis:       redisClient,
		broker:      broker,
		jobs:        jobs,
		runner:      runner,
		defaults:    defaults,
		workerCount: max(1, workerCount),
		stopChan:    make(chan struct{}),
		retryDelay: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(i)
	}
	slog.Info("worker pool started", slog.Int("workers", p.workerCount))
}

func (p *Pool) Stop() {
	close(p.stopChan)
}

func (p *Pool) worker(id int) {
	for {
		select {
		case <-p.stopChan:
			slog.Info("worker shutting down", slog.Int("worker", id))
			return
		default:
		}

		ctx := context.Background()

		result, err := p.redis.BLPop(ctx, 30*time.Second, QueueName).Result()
		if err != nil || len(result) < 2 {
			continue
		}

		var job models.Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			slog.Error("failed to parse job", slog.Int("worker", id), slog.Any("error", err))
			continue
		}

		lockKey := fmt.Sprintf("job_lock:%s", job.ID.String())
		locked, err := p.redis.SetNX(ctx, lockKey, "1", lockTTL).Result()
		if err != nil || !locked {
			continue
		}

		slog.Info("processing job", slog.Int("worker", id), slog.String("job", job.ID.String()), slog.String("reference", job.Reference))
		p.process(ctx, &job)

		p.redis.Del(ctx, lockKey)
	}
}

func (p *Pool) process(ctx context.Context, job *models.Job) {
	if err := p.jobs.UpdateStatus(ctx, job.ID, models.JobProcessing); err != nil {
		slog.Warn("failed to mark job processing", slog.String("job", job.ID.String()), slog.Any("error", err))
	}
	p.publish(ctx, job, "status_update", models.ProgressEvent{JobID: job.ID, Message: "resolving " + job.Reference})

	opts := p.optionsFor(job)
	opts.Progress = func(line string) {
		p.publish(ctx, job, "progress", models.ProgressEvent{JobID: job.ID, Message: line})
	}

	var (
		res batch.Result
		err error
	)
	if job.Options.IncludeCollection {
		res.Successes, err = p.runner.ProcessSingle(ctx, job.Reference, opts)
	} else {
		res, err = p.runner.ResolveAndBatch(ctx, job.Reference, opts)
	}

	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	p.handleSuccess(ctx, job, res)
}

func (p *Pool) optionsFor(job *models.Job) pipeline.Options {
	opts := p.defaults
	if job.Options.Language != "" {
		opts.LanguageMode = job.Options.Language
	}
	if job.Options.Limit > 0 {
		opts.Limit = job.Options.Limit
	}
	if job.Options.MaxWorkers > 0 {
		opts.Workers = job.Options.MaxWorkers
	}
	if job.Options.NoConcurrent {
		opts.Concurrent = false
	}
	opts.IncludeCollection = job.Options.IncludeCollection
	return opts
}

func (p *Pool) handleSuccess(ctx context.Context, job *models.Job, res batch.Result) {
	if err := p.jobs.SaveOutcome(ctx, job.ID, res.Successes, res.Failures); err != nil {
		slog.Error("failed to save job outcome", slog.String("job", job.ID.String()), slog.Any("error", err))
	}
	p.jobs.UpdateStatus(ctx, job.ID, models.JobCompleted)

	p.publish(ctx, job, "completed", models.CompletedEvent{
		JobID:     job.ID,
		Successes: len(res.Successes),
		Failures:  len(res.Failures),
	})

	slog.Info("job completed",
		slog.String("job", job.ID.String()),
		slog.Int("successes", len(res.Successes)),
		slog.Int("failures", len(res.Failures)))
}

// handleFailure re-queues jobs that failed on the network and gives up on
// everything else.
func (p *Pool) handleFailure(ctx context.Context, job *models.Job, err error) {
	job.RetryCount++
	errMsg := err.Error()
	maxRetries := job.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	if errors.Is(err, models.ErrNetwork) && job.RetryCount < maxRetries {
		slog.Warn("job failed, retrying", slog.String("job", job.ID.String()), slog.Int("attempt", job.RetryCount), slog.String("error", errMsg))
		p.jobs.UpdateStatus(ctx, job.ID, models.JobPending)
		p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)

		retry := *job
		time.AfterFunc(p.retryDelay(job.RetryCount), func() {
			if err := p.broker.Enqueue(context.Background(), &retry); err != nil {
				slog.Error("failed to re-queue job", slog.String("job", retry.ID.String()), slog.Any("error", err))
			}
		})
		return
	}

	slog.Error("job failed permanently", slog.String("job", job.ID.String()), slog.String("error", errMsg))
	p.jobs.UpdateError(ctx, job.ID, errMsg, job.RetryCount)
	p.jobs.UpdateStatus(ctx, job.ID, models.JobFailed)

	p.publish(ctx, job, "error", models.ErrorEvent{
		JobID:        job.ID,
		ErrorCode:    strings.ToUpper(models.ErrorKind(err)),
		ErrorMessage: errMsg,
	})
}

func (p *Pool) publish(ctx context.Context, job *models.Job, kind string, payload interface{}) {
	if err := p.broker.Publish(ctx, job.Subject, models.WSMessage{Type: kind, Payload: payload}); err != nil {
		slog.Debug("failed to publish job update", slog.String("job", job.ID.String()), slog.Any("error", err))
	}
}
