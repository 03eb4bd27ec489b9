package signaling

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/medibridge/telehealth/internal/models"
)

// ErrRoomNotFound is returned when adding a participant to a room that does not exist.
var ErrRoomNotFound = errors.New("room not found")

// Participant is one identity inside a room. The room holds it for lookup only; the
// connection belongs to the gateway.
type Participant struct {
	ID       string
	Name     string
	IsDoctor bool
	JoinedAt time.Time
	conn     Conn
}

// NewParticipant binds an identity to a connection.
func NewParticipant(id, name string, isDoctor bool, conn Conn) *Participant {
	return &Participant{ID: id, Name: name, IsDoctor: isDoctor, JoinedAt: time.Now(), conn: conn}
}

// Info returns the public view used in relay payloads.
func (p *Participant) Info() ParticipantInfo {
	return ParticipantInfo{ID: p.ID, Name: p.Name, IsDoctor: p.IsDoctor}
}

// Role returns the audit label for this participant.
func (p *Participant) Role() string { return models.RoleFor(p.IsDoctor) }

// Send pushes one frame to this participant's connection.
func (p *Participant) Send(frame []byte) bool {
	if p.conn == nil {
		return false
	}
	return p.conn.Send(frame)
}

func (p *Participant) connID() string {
	if p.conn == nil {
		return ""
	}
	return p.conn.ID()
}

// Room is a snapshot of one live room.
type Room struct {
	ID           string
	CreatedAt    time.Time
	Participants []*Participant
}

// Find returns the most recently joined participant with the given id.
func (r *Room) Find(participantID string) (*Participant, bool) {
	for i := len(r.Participants) - 1; i >= 0; i-- {
		if r.Participants[i].ID == participantID {
			return r.Participants[i], true
		}
	}
	return nil, false
}

// Infos lists the public view of every participant in join order.
func (r *Room) Infos() []ParticipantInfo {
	out := make([]ParticipantInfo, 0, len(r.Participants))
	for _, p := range r.Participants {
		out = append(out, p.Info())
	}
	return out
}

// RoomInfo is the redacted view returned by ListRooms.
type RoomInfo struct {
	ID           string            `json:"id"`
	Participants []ParticipantInfo `json:"participants"`
}

// RoomStore is the room id -> participants registry. The relay only talks to this
// interface so a shared implementation can replace the in-process one.
type RoomStore interface {
	// CreateRoom inserts an empty room; an existing id is left as is.
	CreateRoom(roomID string)
	// GetRoom returns a snapshot of the room.
	GetRoom(roomID string) (*Room, bool)
	// AddParticipant appends p, or replaces the entry already bound to the same connection.
	AddParticipant(roomID string, p *Participant) error
	// RemoveParticipant removes entries with participantID (only the one on connID when it is
	// non-empty) and deletes the room if that emptied it.
	RemoveParticipant(roomID, participantID, connID string) (roomDeleted bool)
	// ListRooms returns every live room without connection handles.
	ListRooms() []RoomInfo
}

// MemoryRoomStore is the process-local RoomStore.
type MemoryRoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewMemoryRoomStore creates an empty registry.
func NewMemoryRoomStore() *MemoryRoomStore {
	return &MemoryRoomStore{rooms: make(map[string]*Room)}
}

func (s *MemoryRoomStore) CreateRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; ok {
		return
	}
	s.rooms[roomID] = &Room{ID: roomID, CreatedAt: time.Now()}
}

func (s *MemoryRoomStore) GetRoom(roomID string) (*Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, false
	}
	snap := &Room{ID: room.ID, CreatedAt: room.CreatedAt, Participants: make([]*Participant, len(room.Participants))}
	copy(snap.Participants, room.Participants)
	return snap, true
}

func (s *MemoryRoomStore) AddParticipant(roomID string, p *Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if cid := p.connID(); cid != "" {
		for i, existing := range room.Participants {
			if existing.connID() == cid {
				room.Participants[i] = p
				return nil
			}
		}
	}
	room.Participants = append(room.Participants, p)
	return nil
}

func (s *MemoryRoomStore) RemoveParticipant(roomID, participantID, connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return false
	}
	kept := room.Participants[:0]
	removed := false
	for _, p := range room.Participants {
		if p.ID == participantID && (connID == "" || p.connID() == connID) {
			removed = true
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(room.Participants); i++ {
		room.Participants[i] = nil
	}
	room.Participants = kept
	if removed && len(kept) == 0 {
		delete(s.rooms, roomID)
		return true
	}
	return false
}

func (s *MemoryRoomStore) ListRooms() []RoomInfo {
	s.mu.RLock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	out := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, RoomInfo{ID: r.ID, Participants: r.Infos()})
	}
	s.mu.RUnlock()
	return out
}
