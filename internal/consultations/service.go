// Package consultations exposes the REST surface around live consultation rooms.
package consultations

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/medibridge/telehealth/internal/models"
	"github.com/medibridge/telehealth/internal/signaling"
)

// SessionStarter creates the recording session of a new room.
type SessionStarter interface {
	Create(ctx context.Context, roomID, doctorID, patientID string) (*models.RecordingSession, error)
}

// CreatedRoom is the result of CreateRoom. RecordingSessionID is nil when the session
// could not be stored.
type CreatedRoom struct {
	RoomID             string  `json:"roomId"`
	RecordingSessionID *string `json:"recordingSessionId"`
}

// RoomCreatedHandler is called after a room is opened in the registry.
type RoomCreatedHandler func(roomID string)

// Service creates rooms and reads registry snapshots.
type Service struct {
	rooms     signaling.RoomStore
	sessions  SessionStarter
	onCreated RoomCreatedHandler
	now       func() time.Time
	logger    *zap.Logger
}

// NewService creates a consultation service.
func NewService(rooms signaling.RoomStore, sessions SessionStarter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{rooms: rooms, sessions: sessions, now: time.Now, logger: logger}
}

// SetRoomCreatedHandler registers fn to run after every room creation.
func (s *Service) SetRoomCreatedHandler(fn RoomCreatedHandler) {
	s.onCreated = fn
}

// CreateRoom stores a recording session for a new room id and then opens the room. A session
// store failure is logged and the room is still opened.
func (s *Service) CreateRoom(ctx context.Context, patientID, doctorID string) CreatedRoom {
	roomID := signaling.NewRoomID(s.now())
	out := CreatedRoom{RoomID: roomID}

	rs, err := s.sessions.Create(ctx, roomID, doctorID, patientID)
	if err != nil {
		s.logger.Error("recording session not stored", zap.String("room_id", roomID), zap.Error(err))
	} else {
		out.RecordingSessionID = &rs.ID
	}

	s.rooms.CreateRoom(roomID)
	if s.onCreated != nil {
		s.onCreated(roomID)
	}
	s.logger.Info("room created", zap.String("room_id", roomID), zap.String("doctor_id", doctorID), zap.String("patient_id", patientID))
	return out
}

// Snapshot returns the redacted view of every live room.
func (s *Service) Snapshot() []signaling.RoomInfo {
	return s.rooms.ListRooms()
}

// Room returns the redacted view of one live room.
func (s *Service) Room(roomID string) (signaling.RoomInfo, bool) {
	room, ok := s.rooms.GetRoom(roomID)
	if !ok {
		return signaling.RoomInfo{}, false
	}
	return signaling.RoomInfo{ID: room.ID, Participants: room.Infos()}, true
}
