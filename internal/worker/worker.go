package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/medibridge/telehealth/internal/models"
	"github.com/medibridge/telehealth/pkg/queue"
)

// SessionSource loads recording sessions.
type SessionSource interface {
	Get(ctx context.Context, id string) (*models.RecordingSession, error)
}

// ArchiveUploader stores a session snapshot.
type ArchiveUploader interface {
	UploadSessionArchive(ctx context.Context, roomID, sessionID string, body []byte) (string, error)
}

// JobQueue is the part of the job queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// ArchiveProcessor processes session archive jobs: load the session, upload its JSON snapshot to S3.
type ArchiveProcessor struct {
	sessions SessionSource
	uploader ArchiveUploader
	queue    JobQueue
	backoff  time.Duration
	logger   *zap.Logger
}

// NewArchiveProcessor creates a session archive processor.
func NewArchiveProcessor(sessions SessionSource, uploader ArchiveUploader, q JobQueue, logger *zap.Logger) *ArchiveProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveProcessor{sessions: sessions, uploader: uploader, queue: q, backoff: queue.RetryBackoff, logger: logger}
}

// Process executes one archive job.
func (p *ArchiveProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SessionArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	s, err := p.sessions.Get(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", payload.SessionID, err)
	}
	if s.Active() {
		p.logger.Info("session still active, skipping archive", zap.String("session_id", s.ID))
		return nil
	}
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key, err := p.uploader.UploadSessionArchive(ctx, s.RoomID, s.ID, body)
	if err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	p.logger.Info("session archived", zap.String("session_id", s.ID), zap.String("room_id", s.RoomID), zap.String("s3_key", key))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ArchiveProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("archive worker stopping")
			return
		}

		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			sleep(ctx, p.backoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			sleep(ctx, p.backoff)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
