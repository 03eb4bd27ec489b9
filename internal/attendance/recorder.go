package attendance

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	recorderBuffer = 512
	writeTimeout   = 5 * time.Second
)

// Log is the write side of the attendance store.
type Log interface {
	LogJoin(ctx context.Context, roomID, participantID, displayName, role string) error
	LogLeave(ctx context.Context, roomID, participantID string) error
}

type entry struct {
	join          bool
	roomID        string
	participantID string
	displayName   string
	role          string
}

// Recorder writes join/leave rows off the caller's goroutine. Entries are written in the
// order they were recorded; when the buffer is full new entries are dropped and logged.
type Recorder struct {
	log     Log
	entries chan entry
	logger  *zap.Logger
}

// NewRecorder creates a recorder over log. Call Run to start writing.
func NewRecorder(log Log, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{log: log, entries: make(chan entry, recorderBuffer), logger: logger}
}

// Joined records that a participant was admitted.
func (r *Recorder) Joined(roomID, participantID, displayName, role string) {
	r.push(entry{join: true, roomID: roomID, participantID: participantID, displayName: displayName, role: role})
}

// Left records that a participant was removed.
func (r *Recorder) Left(roomID, participantID string) {
	r.push(entry{roomID: roomID, participantID: participantID})
}

func (r *Recorder) push(e entry) {
	select {
	case r.entries <- e:
	default:
		r.logger.Warn("attendance buffer full, dropping entry",
			zap.String("room_id", e.roomID), zap.String("participant_id", e.participantID), zap.Bool("join", e.join))
	}
}

// Run writes entries until ctx is cancelled, then drains what is already queued.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case e := <-r.entries:
			r.write(e)
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case e := <-r.entries:
			r.write(e)
		default:
			return
		}
	}
}

func (r *Recorder) write(e entry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	var err error
	if e.join {
		err = r.log.LogJoin(ctx, e.roomID, e.participantID, e.displayName, e.role)
	} else {
		err = r.log.LogLeave(ctx, e.roomID, e.participantID)
	}
	if err != nil {
		r.logger.Error("attendance write failed",
			zap.String("room_id", e.roomID), zap.String("participant_id", e.participantID), zap.Bool("join", e.join), zap.Error(err))
	}
}
