package models

import "time"

// Participant roles. Used for audit labeling only; the relay treats both the same.
const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// RoleFor maps the wire-level isDoctor flag to a role label.
func RoleFor(isDoctor bool) string {
	if isDoctor {
		return RoleDoctor
	}
	return RolePatient
}

// ParticipantLog tracks one participant's presence in a consultation room.
type ParticipantLog struct {
	ID             int64      `json:"id"`
	RoomID         string     `json:"roomId"`
	ParticipantID  string     `json:"participantId"`
	DisplayName    string     `json:"displayName"`
	Role           string     `json:"role"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LeftAt         *time.Time `json:"leftAt,omitempty"`
	PresentSeconds int64      `json:"presentSeconds"`
}
