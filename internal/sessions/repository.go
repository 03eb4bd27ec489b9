package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibridge/telehealth/internal/models"
)

const sessionColumns = `id, room_id, doctor_id, patient_id, status, start_time, end_time, duration_seconds, transcript, notes, created_at, updated_at`

// Repository handles recording_sessions persistence in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a recording sessions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new session row.
func (r *Repository) Create(ctx context.Context, s *models.RecordingSession) error {
	const q = `INSERT INTO recording_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.pool.Exec(ctx, q, s.ID, s.RoomID, s.DoctorID, s.PatientID, s.Status, s.StartTime, s.EndTime,
		s.DurationSeconds, s.Transcript, s.Notes, s.CreatedAt, s.UpdatedAt)
	return err
}

// GetByID returns a session by id or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.RecordingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM recording_sessions WHERE id = $1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// GetActiveByRoom returns the newest active session for a room.
func (r *Repository) GetActiveByRoom(ctx context.Context, roomID string) (*models.RecordingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM recording_sessions
		WHERE room_id = $1 AND status = 'active' ORDER BY start_time DESC LIMIT 1`
	s, err := scanSession(r.pool.QueryRow(ctx, q, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Complete sets end_time, duration and status. Only active rows are touched.
func (r *Repository) Complete(ctx context.Context, id string, end time.Time, durationSeconds int64) (bool, error) {
	const q = `UPDATE recording_sessions
		SET status = 'completed', end_time = $2, duration_seconds = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`
	tag, err := r.pool.Exec(ctx, q, id, end, durationSeconds)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Update merges transcript and notes; nil fields keep their stored value.
func (r *Repository) Update(ctx context.Context, id string, patch models.RecordingSessionPatch) (*models.RecordingSession, error) {
	const q = `UPDATE recording_sessions
		SET transcript = COALESCE($2, transcript), notes = COALESCE($3, notes), updated_at = NOW()
		WHERE id = $1
		RETURNING ` + sessionColumns
	s, err := scanSession(r.pool.QueryRow(ctx, q, id, patch.Transcript, patch.Notes))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListActiveStartedBefore returns active sessions started before cutoff, oldest first.
func (r *Repository) ListActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]*models.RecordingSession, error) {
	const q = `SELECT ` + sessionColumns + ` FROM recording_sessions
		WHERE status = 'active' AND start_time < $1 ORDER BY start_time`
	rows, err := r.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.RecordingSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

func scanSession(row pgx.Row) (*models.RecordingSession, error) {
	var s models.RecordingSession
	err := row.Scan(&s.ID, &s.RoomID, &s.DoctorID, &s.PatientID, &s.Status, &s.StartTime, &s.EndTime,
		&s.DurationSeconds, &s.Transcript, &s.Notes, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
