package attendance

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibridge/telehealth/internal/models"
)

// Summary aggregates presence for one room.
type Summary struct {
	TotalPresentSeconds  int64 `json:"totalPresentSeconds"`
	DistinctParticipants int   `json:"distinctParticipants"`
}

// Repository handles participant_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a participant log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// LogJoin inserts a row when a participant is admitted to a room.
func (r *Repository) LogJoin(ctx context.Context, roomID, participantID, displayName, role string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO participant_logs (room_id, participant_id, display_name, role, joined_at) VALUES ($1, $2, $3, $4, NOW())`,
		roomID, participantID, displayName, role)
	return err
}

// LogLeave closes the most recent open row for this participant in this room.
func (r *Repository) LogLeave(ctx context.Context, roomID, participantID string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE participant_logs p SET left_at = NOW(), present_seconds = GREATEST(0, EXTRACT(EPOCH FROM (NOW() - p.joined_at))::BIGINT)
		 FROM (SELECT id FROM participant_logs WHERE room_id = $1 AND participant_id = $2 AND left_at IS NULL ORDER BY joined_at DESC LIMIT 1) AS sub
		 WHERE p.id = sub.id`,
		roomID, participantID)
	return err
}

// ListByRoom returns the presence rows of a room, newest first.
func (r *Repository) ListByRoom(ctx context.Context, roomID string) ([]models.ParticipantLog, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, room_id, participant_id, display_name, role, joined_at, left_at, present_seconds
		 FROM participant_logs WHERE room_id = $1 ORDER BY joined_at DESC`,
		roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.ParticipantLog{}
	for rows.Next() {
		var row models.ParticipantLog
		if err := rows.Scan(&row.ID, &row.RoomID, &row.ParticipantID, &row.DisplayName, &row.Role, &row.JoinedAt, &row.LeftAt, &row.PresentSeconds); err != nil {
			return nil, err
		}
		list = append(list, row)
	}
	return list, rows.Err()
}

// Summarize returns total closed presence time and distinct participant count for a room.
func (r *Repository) Summarize(ctx context.Context, roomID string) (*Summary, error) {
	const q = `SELECT COALESCE(SUM(present_seconds), 0), COUNT(DISTINCT participant_id) FROM participant_logs WHERE room_id = $1 AND left_at IS NOT NULL`
	var s Summary
	if err := r.pool.QueryRow(ctx, q, roomID).Scan(&s.TotalPresentSeconds, &s.DistinctParticipants); err != nil {
		return nil, err
	}
	return &s, nil
}
