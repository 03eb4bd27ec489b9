// Package presence mirrors live room membership into Redis so other processes (the worker,
// operators) can see which consultation rooms are open.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix    = "telehealth:"
	roomsKey     = keyPrefix + "rooms"
	eventBuffer  = 1024
	writeTimeout = 3 * time.Second
	// DefaultTTL expires participant hashes of rooms whose owning process died.
	DefaultTTL = 24 * time.Hour
)

// ParticipantsKey returns the hash key holding participant connection counts for a room.
func ParticipantsKey(roomID string) string {
	return fmt.Sprintf("%sroom:%s:participants", keyPrefix, roomID)
}

type eventKind int

const (
	eventOpened eventKind = iota
	eventJoined
	eventLeft
	eventClosed
)

type event struct {
	kind          eventKind
	roomID        string
	participantID string
}

// Mirror applies membership changes to Redis on its own goroutine, in the order they were
// reported. Reporting never blocks; events are dropped and logged when the buffer is full.
type Mirror struct {
	client redis.Cmdable
	ttl    time.Duration
	events chan event
	logger *zap.Logger
}

// NewMirror creates a presence mirror. Call Run to start writing.
func NewMirror(client redis.Cmdable, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{client: client, ttl: DefaultTTL, events: make(chan event, eventBuffer), logger: logger}
}

// Opened reports a room created in the registry. The room counts as live before anyone joins.
func (m *Mirror) Opened(roomID string) {
	m.push(event{kind: eventOpened, roomID: roomID})
}

// Joined reports a participant admitted to a room.
func (m *Mirror) Joined(roomID, participantID string) {
	m.push(event{kind: eventJoined, roomID: roomID, participantID: participantID})
}

// Left reports a participant removed from a room.
func (m *Mirror) Left(roomID, participantID string) {
	m.push(event{kind: eventLeft, roomID: roomID, participantID: participantID})
}

// Closed reports a room deleted from the registry.
func (m *Mirror) Closed(roomID string) {
	m.push(event{kind: eventClosed, roomID: roomID})
}

func (m *Mirror) push(ev event) {
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("presence buffer full, dropping event", zap.String("room_id", ev.roomID), zap.Int("kind", int(ev.kind)))
	}
}

// Run applies events until ctx is cancelled.
func (m *Mirror) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			if err := m.apply(wctx, ev); err != nil {
				m.logger.Warn("presence update failed", zap.String("room_id", ev.roomID), zap.String("participant_id", ev.participantID), zap.Error(err))
			}
			cancel()
		}
	}
}

func (m *Mirror) apply(ctx context.Context, ev event) error {
	key := ParticipantsKey(ev.roomID)
	switch ev.kind {
	case eventOpened:
		return m.client.SAdd(ctx, roomsKey, ev.roomID).Err()
	case eventJoined:
		pipe := m.client.TxPipeline()
		pipe.SAdd(ctx, roomsKey, ev.roomID)
		pipe.HIncrBy(ctx, key, ev.participantID, 1)
		pipe.Expire(ctx, key, m.ttl)
		_, err := pipe.Exec(ctx)
		return err
	case eventLeft:
		n, err := m.client.HIncrBy(ctx, key, ev.participantID, -1).Result()
		if err != nil {
			return err
		}
		if n <= 0 {
			return m.client.HDel(ctx, key, ev.participantID).Err()
		}
		return nil
	case eventClosed:
		pipe := m.client.TxPipeline()
		pipe.SRem(ctx, roomsKey, ev.roomID)
		pipe.Del(ctx, key)
		_, err := pipe.Exec(ctx)
		return err
	}
	return nil
}

// Reset removes every mirrored room. Rooms do not survive a restart, so the server calls this
// before accepting connections.
func (m *Mirror) Reset(ctx context.Context) error {
	rooms, err := m.client.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	keys := []string{roomsKey}
	for _, id := range rooms {
		keys = append(keys, ParticipantsKey(id))
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("delete presence keys: %w", err)
	}
	if len(rooms) > 0 {
		m.logger.Info("cleared stale presence", zap.Int("rooms", len(rooms)))
	}
	return nil
}

// RoomLive reports whether a room is currently open on some server.
func (m *Mirror) RoomLive(ctx context.Context, roomID string) (bool, error) {
	return m.client.SIsMember(ctx, roomsKey, roomID).Result()
}
