package sessions

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/medibridge/telehealth/internal/models"
)

// MemoryStore keeps sessions in process memory. Used for development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.RecordingSession
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.RecordingSession)}
}

func (m *MemoryStore) Create(_ context.Context, s *models.RecordingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = clone(s)
	return nil
}

func (m *MemoryStore) GetByID(_ context.Context, id string) (*models.RecordingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

func (m *MemoryStore) GetActiveByRoom(_ context.Context, roomID string) (*models.RecordingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *models.RecordingSession
	for _, s := range m.sessions {
		if s.RoomID != roomID || !s.Active() {
			continue
		}
		if found == nil || s.StartTime.After(found.StartTime) {
			found = s
		}
	}
	if found == nil {
		return nil, nil
	}
	return clone(found), nil
}

func (m *MemoryStore) Complete(_ context.Context, id string, end time.Time, durationSeconds int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || !s.Active() {
		return false, nil
	}
	s.Status = models.RecordingSessionStatusCompleted
	s.EndTime = &end
	s.DurationSeconds = durationSeconds
	s.UpdatedAt = end
	return true, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, patch models.RecordingSessionPatch) (*models.RecordingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(s)
	s.UpdatedAt = time.Now().UTC()
	return clone(s), nil
}

func (m *MemoryStore) ListActiveStartedBefore(_ context.Context, cutoff time.Time) ([]*models.RecordingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.RecordingSession
	for _, s := range m.sessions {
		if s.Active() && s.StartTime.Before(cutoff) {
			out = append(out, clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func clone(s *models.RecordingSession) *models.RecordingSession {
	c := *s
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	if s.Transcript != nil {
		v := *s.Transcript
		c.Transcript = &v
	}
	if s.Notes != nil {
		v := *s.Notes
		c.Notes = &v
	}
	return &c
}
