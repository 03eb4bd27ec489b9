package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueSessionArchive is the Redis list key for session archive jobs.
	QueueSessionArchive = "telehealth:jobs:archive"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "telehealth:jobs:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// DequeueWait bounds each blocking pop so callers can observe cancellation.
	DequeueWait = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeSessionArchive JobType = "session_archive"
)

// SessionArchivePayload is the payload for session archive jobs.
type SessionArchivePayload struct {
	SessionID string `json:"session_id"`
	RoomID    string `json:"room_id"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis lists.
type Queue struct {
	client redis.Cmdable
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client redis.Cmdable, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// NewJob wraps payload in a fresh envelope.
func NewJob(typ JobType, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      typ,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EnqueueSessionArchive enqueues an archive job for a completed session.
func (q *Queue) EnqueueSessionArchive(ctx context.Context, sessionID, roomID string) error {
	job, err := NewJob(JobTypeSessionArchive, SessionArchivePayload{SessionID: sessionID, RoomID: roomID})
	if err != nil {
		return err
	}
	if err := q.push(ctx, QueueSessionArchive, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued session archive job", zap.String("job_id", job.ID), zap.String("session_id", sessionID))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// Dequeue blocks until a job is available or DequeueWait passes. A nil job with a nil error
// means nothing was usable: the wait timed out or the popped entry was discarded.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := q.client.BLPop(ctx, DequeueWait, QueueSessionArchive).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	job, err := DecodeJob([]byte(result[1]))
	if err != nil {
		q.logger.Warn("invalid job payload", zap.String("raw", result[1]), zap.Error(err))
		return nil, nil
	}
	return job, nil
}

// DecodeJob parses a raw queue entry.
func DecodeJob(raw []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, err
	}
	if job.Type == "" {
		return nil, errors.New("job type missing")
	}
	return &job, nil
}

// Retry re-enqueues a job with incremented attempt. Once attempts reach MaxRetries the job is
// pushed to the DLQ instead.
func (q *Queue) Retry(ctx context.Context, job *Job) error {
	job.Attempt++
	if ExhaustedRetries(job) {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return nil
	}
	if err := q.push(ctx, QueueSessionArchive, job); err != nil {
		return err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return nil
}

// ExhaustedRetries reports whether job has used all of its attempts.
func ExhaustedRetries(job *Job) bool {
	return job.Attempt >= MaxRetries
}
