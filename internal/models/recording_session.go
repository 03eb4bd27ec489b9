package models

import "time"

// RecordingSessionStatus represents the session lifecycle. Transitions only go active -> completed.
const (
	RecordingSessionStatusActive    = "active"
	RecordingSessionStatusCompleted = "completed"
)

// RecordingSession is the durable record of one consultation room's lifetime.
type RecordingSession struct {
	ID              string     `json:"id"`
	RoomID          string     `json:"roomId"`
	DoctorID        string     `json:"doctorId"`
	PatientID       string     `json:"patientId"`
	Status          string     `json:"status"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	DurationSeconds int64      `json:"durationSeconds"`
	Transcript      *string    `json:"transcript,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Active reports whether the session has not been finalized yet.
func (s *RecordingSession) Active() bool {
	return s.Status == RecordingSessionStatusActive
}

// RecordingSessionPatch is a partial update; nil fields are left untouched.
type RecordingSessionPatch struct {
	Transcript *string `json:"transcript"`
	Notes      *string `json:"notes"`
}

// Empty reports whether the patch changes nothing.
func (p RecordingSessionPatch) Empty() bool {
	return p.Transcript == nil && p.Notes == nil
}

// Apply merges the patch into s.
func (p RecordingSessionPatch) Apply(s *RecordingSession) {
	if p.Transcript != nil {
		v := *p.Transcript
		s.Transcript = &v
	}
	if p.Notes != nil {
		v := *p.Notes
		s.Notes = &v
	}
}
