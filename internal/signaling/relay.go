package signaling

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// JoinHandler is called after a participant is admitted to a room.
type JoinHandler func(roomID string, p *Participant)

// LeaveHandler is called after a participant is removed from a room.
type LeaveHandler func(roomID, participantID string)

// RoomClosedHandler is called once when a room empties and is deleted.
type RoomClosedHandler func(roomID string)

// Relay applies the per-message relay rules. Its methods are not safe for concurrent use;
// the Hub serialises every call.
type Relay struct {
	rooms  RoomStore
	logger *zap.Logger

	onJoin       JoinHandler
	onLeave      LeaveHandler
	onRoomClosed RoomClosedHandler
}

// NewRelay creates a relay over the given registry.
func NewRelay(rooms RoomStore, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{rooms: rooms, logger: logger}
}

// SetParticipantHandlers sets the join/leave callbacks (presence mirror, attendance log).
// Handlers run on the hub goroutine and must not block.
func (r *Relay) SetParticipantHandlers(onJoin JoinHandler, onLeave LeaveHandler) {
	r.onJoin = onJoin
	r.onLeave = onLeave
}

// SetRoomClosedHandler sets the callback for room teardown (recording session finalize).
// The handler runs on the hub goroutine and must not block.
func (r *Relay) SetRoomClosedHandler(fn RoomClosedHandler) {
	r.onRoomClosed = fn
}

// Dispatch handles one decoded message from peer.
func (r *Relay) Dispatch(peer *Peer, msg Inbound) {
	switch m := msg.(type) {
	case Join:
		r.join(peer, m)
	case Signal:
		r.signal(peer, m)
	case Chat:
		r.chat(peer, m)
	default:
		r.logger.Warn("dropping unhandled message", zap.String("conn_id", peer.ID()), zap.String("type", msg.MessageType()))
	}
}

// Leave runs the disconnect sequence for peer. It is a no-op for peers that never joined.
func (r *Relay) Leave(peer *Peer) {
	if !peer.Joined() {
		return
	}
	roomID, participantID := peer.RoomID(), peer.ParticipantID()
	peer.unbind()
	r.removeAndAnnounce(roomID, participantID, peer.ID())
}

func (r *Relay) join(peer *Peer, m Join) {
	if _, ok := r.rooms.GetRoom(m.RoomID); !ok {
		r.logger.Info("join rejected: room not found", zap.String("room_id", m.RoomID), zap.String("participant_id", m.UserID))
		r.reply(peer, newErrorReply(errTextRoomNotFound))
		return
	}

	p := NewParticipant(m.UserID, m.Name, m.IsDoctor, peer.Conn)
	if err := r.rooms.AddParticipant(m.RoomID, p); err != nil {
		r.logger.Info("join rejected", zap.String("room_id", m.RoomID), zap.Error(err))
		r.reply(peer, newErrorReply(errTextRoomNotFound))
		return
	}

	prevRoom, prevID := peer.RoomID(), peer.ParticipantID()
	peer.bind(m.RoomID, m.UserID)

	// A repeated join on one connection rebinds it. In the same room the entry was
	// replaced in place; elsewhere the old membership is torn down.
	switch {
	case prevRoom == "" && prevID == "":
	case prevRoom != m.RoomID:
		r.removeAndAnnounce(prevRoom, prevID, peer.ID())
	case prevID != m.UserID:
		r.broadcast(m.RoomID, newUserLeft(prevID), peer.ID())
		if r.onLeave != nil {
			r.onLeave(m.RoomID, prevID)
		}
	}

	room, ok := r.rooms.GetRoom(m.RoomID)
	if !ok {
		return
	}
	r.logger.Info("participant joined",
		zap.String("room_id", m.RoomID),
		zap.String("participant_id", m.UserID),
		zap.String("role", p.Role()),
		zap.String("conn_id", peer.ID()),
		zap.Int("participants", len(room.Participants)),
	)

	r.broadcast(m.RoomID, newUserJoined(p.Info()), peer.ID())
	r.reply(peer, newRoomUsers(room.Infos()))

	if r.onJoin != nil {
		r.onJoin(m.RoomID, p)
	}
}

func (r *Relay) signal(peer *Peer, m Signal) {
	room, ok := r.resolveRoom(peer, m.RoomID)
	if !ok {
		return
	}
	target, ok := room.Find(m.Target)
	if !ok {
		r.logger.Debug("signal target not in room, dropping",
			zap.String("type", m.Type), zap.String("room_id", room.ID), zap.String("target", m.Target))
		return
	}
	frame, err := m.Stamped(room.ID)
	if err != nil {
		r.logger.Error("encode signal", zap.String("type", m.Type), zap.Error(err))
		return
	}
	if !target.Send(frame) {
		r.logger.Warn("signal not queued", zap.String("type", m.Type), zap.String("room_id", room.ID), zap.String("target", m.Target))
		return
	}
	r.logger.Debug("signal relayed",
		zap.String("type", m.Type), zap.String("room_id", room.ID), zap.String("sender", m.Sender), zap.String("target", m.Target))
}

func (r *Relay) chat(peer *Peer, m Chat) {
	room, ok := r.resolveRoom(peer, m.RoomID)
	if !ok {
		return
	}
	frame, err := m.Stamped(room.ID)
	if err != nil {
		r.logger.Error("encode chat message", zap.Error(err))
		return
	}
	r.sendAll(room, frame, peer.ID())
}

// resolveRoom picks the message's roomId, else the connection's bound room, and replies
// with an error when neither resolves.
func (r *Relay) resolveRoom(peer *Peer, roomID string) (*Room, bool) {
	if roomID == "" {
		roomID = peer.RoomID()
	}
	if roomID == "" {
		r.reply(peer, newErrorReply(errTextNoRoomID))
		return nil, false
	}
	room, ok := r.rooms.GetRoom(roomID)
	if !ok {
		r.reply(peer, newErrorReply(fmt.Sprintf("Room not found with ID: %s", roomID)))
		return nil, false
	}
	return room, true
}

func (r *Relay) removeAndAnnounce(roomID, participantID, connID string) {
	deleted := r.rooms.RemoveParticipant(roomID, participantID, connID)
	r.logger.Info("participant left",
		zap.String("room_id", roomID), zap.String("participant_id", participantID), zap.String("conn_id", connID))
	if !deleted {
		r.broadcast(roomID, newUserLeft(participantID), connID)
	}
	if r.onLeave != nil {
		r.onLeave(roomID, participantID)
	}
	if deleted {
		r.logger.Info("room closed", zap.String("room_id", roomID))
		if r.onRoomClosed != nil {
			r.onRoomClosed(roomID)
		}
	}
}

func (r *Relay) broadcast(roomID string, msg interface{}, excludeConnID string) {
	room, ok := r.rooms.GetRoom(roomID)
	if !ok {
		return
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("encode broadcast", zap.Error(err))
		return
	}
	r.sendAll(room, frame, excludeConnID)
}

func (r *Relay) sendAll(room *Room, frame []byte, excludeConnID string) {
	for _, p := range room.Participants {
		if excludeConnID != "" && p.connID() == excludeConnID {
			continue
		}
		if !p.Send(frame) {
			r.logger.Warn("frame not queued", zap.String("room_id", room.ID), zap.String("participant_id", p.ID))
		}
	}
}

func (r *Relay) reply(peer *Peer, msg interface{}) {
	frame, err := json.Marshal(msg)
	if err != nil {
		r.logger.Error("encode reply", zap.Error(err))
		return
	}
	if !peer.Send(frame) {
		r.logger.Warn("reply not queued", zap.String("conn_id", peer.ID()))
	}
}
