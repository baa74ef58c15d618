package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"videoscribe/internal/models"
)

const QueueName = "queue:transcribe"

// Queue pushes jobs for the pool and fans job events out over pub/sub.
type Queue struct {
	redis *redis.Client
}

func NewQueue(redisClient *redis.Client) *Queue {
	return &Queue{redis: redisClient}
}

func (q *Queue) Enqueue(ctx context.Context, job *models.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	return q.redis.LPush(ctx, QueueName, data).Err()
}

func (q *Queue) Publish(ctx context.Context, subject string, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.redis.Publish(ctx, models.UpdatesChannel(subject), data).Err()
}
