package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/medibridge/telehealth/internal/models"
)

// ErrNotFound is returned when a recording session id does not exist.
var ErrNotFound = errors.New("recording session not found")

// Store persists recording sessions.
type Store interface {
	// Create inserts s as given; the caller assigns id and timestamps.
	Create(ctx context.Context, s *models.RecordingSession) error
	GetByID(ctx context.Context, id string) (*models.RecordingSession, error)
	// GetActiveByRoom returns the newest active session for a room, or nil, nil.
	GetActiveByRoom(ctx context.Context, roomID string) (*models.RecordingSession, error)
	// Complete moves an active session to completed. It reports false when the session
	// was already completed or does not exist.
	Complete(ctx context.Context, id string, end time.Time, durationSeconds int64) (bool, error)
	Update(ctx context.Context, id string, patch models.RecordingSessionPatch) (*models.RecordingSession, error)
	ListActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]*models.RecordingSession, error)
}
