package sessions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medibridge/telehealth/internal/models"
)

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)

const defaultFinalizeTimeout = 10 * time.Second

// Archiver schedules a completed session for archiving.
type Archiver interface {
	EnqueueSessionArchive(ctx context.Context, sessionID, roomID string) error
}

// Tracker owns the recording session lifecycle: created with a room, completed when the
// room closes.
type Tracker struct {
	store           Store
	archiver        Archiver // optional
	now             func() time.Time
	finalizeTimeout time.Duration
	logger          *zap.Logger

	pending sync.WaitGroup
}

// NewTracker creates a tracker over store.
func NewTracker(store Store, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		store:           store,
		now:             func() time.Time { return time.Now().UTC() },
		finalizeTimeout: defaultFinalizeTimeout,
		logger:          logger,
	}
}

// SetArchiver sets the optional archive scheduler.
func (t *Tracker) SetArchiver(a Archiver) { t.archiver = a }

// SetFinalizeTimeout bounds each FinalizeAsync call.
func (t *Tracker) SetFinalizeTimeout(d time.Duration) {
	if d > 0 {
		t.finalizeTimeout = d
	}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// Create starts an active session for a room.
func (t *Tracker) Create(ctx context.Context, roomID, doctorID, patientID string) (*models.RecordingSession, error) {
	now := t.now()
	s := &models.RecordingSession{
		ID:        uuid.New().String(),
		RoomID:    roomID,
		DoctorID:  doctorID,
		PatientID: patientID,
		Status:    models.RecordingSessionStatusActive,
		StartTime: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create recording session: %w", err)
	}
	t.logger.Info("recording session started", zap.String("session_id", s.ID), zap.String("room_id", roomID))
	return s, nil
}

// Get returns a session by id.
func (t *Tracker) Get(ctx context.Context, id string) (*models.RecordingSession, error) {
	return t.store.GetByID(ctx, id)
}

// Finalize completes the active session of a room. A room without an active session is a
// no-op and returns nil, nil.
func (t *Tracker) Finalize(ctx context.Context, roomID string) (*models.RecordingSession, error) {
	s, err := t.store.GetActiveByRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("find active session: %w", err)
	}
	if s == nil {
		t.logger.Debug("no active recording session", zap.String("room_id", roomID))
		return nil, nil
	}
	return t.Complete(ctx, s)
}

// Complete ends s at the current time. Sessions completed concurrently are left untouched.
func (t *Tracker) Complete(ctx context.Context, s *models.RecordingSession) (*models.RecordingSession, error) {
	end := t.now()
	duration := int64(end.Sub(s.StartTime) / time.Second)
	if duration < 0 {
		duration = 0
	}
	ok, err := t.store.Complete(ctx, s.ID, end, duration)
	if err != nil {
		return nil, fmt.Errorf("complete session %s: %w", s.ID, err)
	}
	if !ok {
		t.logger.Debug("recording session already completed", zap.String("session_id", s.ID))
		return nil, nil
	}
	s.Status = models.RecordingSessionStatusCompleted
	s.EndTime = &end
	s.DurationSeconds = duration
	s.UpdatedAt = end
	t.logger.Info("recording session completed",
		zap.String("session_id", s.ID), zap.String("room_id", s.RoomID), zap.Int64("duration_seconds", duration))
	t.archive(ctx, s)
	return s, nil
}

// FinalizeAsync runs Finalize in the background with a bounded timeout. Failures are logged.
func (t *Tracker) FinalizeAsync(roomID string) {
	t.pending.Add(1)
	go func() {
		defer t.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.finalizeTimeout)
		defer cancel()
		if _, err := t.Finalize(ctx, roomID); err != nil {
			t.logger.Error("finalize recording session failed", zap.String("room_id", roomID), zap.Error(err))
		}
	}()
}

// Wait blocks until every FinalizeAsync call has returned.
func (t *Tracker) Wait() { t.pending.Wait() }

// Update merges transcript and notes into a session in any status.
func (t *Tracker) Update(ctx context.Context, id string, patch models.RecordingSessionPatch) (*models.RecordingSession, error) {
	s, err := t.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	t.logger.Info("recording session updated", zap.String("session_id", id),
		zap.Bool("transcript", patch.Transcript != nil), zap.Bool("notes", patch.Notes != nil))
	if !s.Active() {
		t.archive(ctx, s)
	}
	return s, nil
}

// ListStale returns active sessions started before cutoff.
func (t *Tracker) ListStale(ctx context.Context, cutoff time.Time) ([]*models.RecordingSession, error) {
	return t.store.ListActiveStartedBefore(ctx, cutoff)
}

func (t *Tracker) archive(ctx context.Context, s *models.RecordingSession) {
	if t.archiver == nil {
		return
	}
	if err := t.archiver.EnqueueSessionArchive(ctx, s.ID, s.RoomID); err != nil {
		t.logger.Warn("enqueue session archive failed", zap.String("session_id", s.ID), zap.Error(err))
	}
}
