// Package sqlite stores recording sessions in a local SQLite file for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/medibridge/telehealth/internal/models"
	"github.com/medibridge/telehealth/internal/sessions"
)

const schema = `CREATE TABLE IF NOT EXISTS recording_sessions (
	id               TEXT PRIMARY KEY,
	room_id          TEXT NOT NULL,
	doctor_id        TEXT NOT NULL,
	patient_id       TEXT NOT NULL,
	status           TEXT NOT NULL,
	start_time       INTEGER NOT NULL,
	end_time         INTEGER,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	transcript       TEXT,
	notes            TEXT,
	created_at       INTEGER NOT NULL,
	updated_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recording_sessions_room_status ON recording_sessions (room_id, status);`

const columns = `id, room_id, doctor_id, patient_id, status, start_time, end_time, duration_seconds, transcript, notes, created_at, updated_at`

var _ sessions.Store = (*Store)(nil)

// Store implements sessions.Store on SQLite. Timestamps are kept as unix nanoseconds.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Create(ctx context.Context, rs *models.RecordingSession) error {
	const q = `INSERT INTO recording_sessions (` + columns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, rs.ID, rs.RoomID, rs.DoctorID, rs.PatientID, rs.Status,
		rs.StartTime.UnixNano(), nullTime(rs.EndTime), rs.DurationSeconds, nullString(rs.Transcript), nullString(rs.Notes),
		rs.CreatedAt.UnixNano(), rs.UpdatedAt.UnixNano())
	return err
}

func (s *Store) GetByID(ctx context.Context, id string) (*models.RecordingSession, error) {
	rs, err := scan(s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM recording_sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sessions.ErrNotFound
	}
	return rs, err
}

func (s *Store) GetActiveByRoom(ctx context.Context, roomID string) (*models.RecordingSession, error) {
	const q = `SELECT ` + columns + ` FROM recording_sessions
		WHERE room_id = ? AND status = 'active' ORDER BY start_time DESC LIMIT 1`
	rs, err := scan(s.db.QueryRowContext(ctx, q, roomID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rs, nil
}

func (s *Store) Complete(ctx context.Context, id string, end time.Time, durationSeconds int64) (bool, error) {
	const q = `UPDATE recording_sessions
		SET status = 'completed', end_time = ?, duration_seconds = ?, updated_at = ?
		WHERE id = ? AND status = 'active'`
	res, err := s.db.ExecContext(ctx, q, end.UnixNano(), durationSeconds, end.UnixNano(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) Update(ctx context.Context, id string, patch models.RecordingSessionPatch) (*models.RecordingSession, error) {
	const q = `UPDATE recording_sessions
		SET transcript = COALESCE(?, transcript), notes = COALESCE(?, notes), updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, q, nullString(patch.Transcript), nullString(patch.Notes), time.Now().UnixNano(), id)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, sessions.ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *Store) ListActiveStartedBefore(ctx context.Context, cutoff time.Time) ([]*models.RecordingSession, error) {
	const q = `SELECT ` + columns + ` FROM recording_sessions
		WHERE status = 'active' AND start_time < ? ORDER BY start_time`
	rows, err := s.db.QueryContext(ctx, q, cutoff.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.RecordingSession
	for rows.Next() {
		rs, err := scan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rs)
	}
	return list, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(row scanner) (*models.RecordingSession, error) {
	var (
		rs                      models.RecordingSession
		start, created, updated int64
		end                     sql.NullInt64
		transcript, notes       sql.NullString
	)
	err := row.Scan(&rs.ID, &rs.RoomID, &rs.DoctorID, &rs.PatientID, &rs.Status, &start, &end,
		&rs.DurationSeconds, &transcript, &notes, &created, &updated)
	if err != nil {
		return nil, err
	}
	rs.StartTime = time.Unix(0, start).UTC()
	rs.CreatedAt = time.Unix(0, created).UTC()
	rs.UpdatedAt = time.Unix(0, updated).UTC()
	if end.Valid {
		t := time.Unix(0, end.Int64).UTC()
		rs.EndTime = &t
	}
	if transcript.Valid {
		rs.Transcript = &transcript.String
	}
	if notes.Valid {
		rs.Notes = &notes.String
	}
	return &rs, nil
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
