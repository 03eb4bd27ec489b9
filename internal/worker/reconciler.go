package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/medibridge/telehealth/internal/models"
)

// StaleSessions lists and completes sessions left active.
type StaleSessions interface {
	ListStale(ctx context.Context, cutoff time.Time) ([]*models.RecordingSession, error)
	Complete(ctx context.Context, s *models.RecordingSession) (*models.RecordingSession, error)
}

// LiveRooms reports whether a room is still open on a server.
type LiveRooms interface {
	RoomLive(ctx context.Context, roomID string) (bool, error)
}

// Reconciler completes sessions whose room vanished without a finalize, e.g. after a
// server restart.
type Reconciler struct {
	sessions   StaleSessions
	rooms      LiveRooms
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewReconciler creates a reconciler. rooms may be nil, in which case every stale session is completed.
func NewReconciler(sessions StaleSessions, rooms LiveRooms, interval, staleAfter time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		sessions:   sessions,
		rooms:      rooms,
		interval:   interval,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// Run reconciles immediately and then every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.Warn("reconcile failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopping")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce completes every stale session whose room is not live and returns how many it completed.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	stale, err := r.sessions.ListStale(ctx, r.now().Add(-r.staleAfter))
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, s := range stale {
		if r.rooms != nil {
			live, err := r.rooms.RoomLive(ctx, s.RoomID)
			if err != nil {
				r.logger.Warn("presence lookup failed, skipping", zap.String("room_id", s.RoomID), zap.Error(err))
				continue
			}
			if live {
				continue
			}
		}
		done, err := r.sessions.Complete(ctx, s)
		if err != nil {
			r.logger.Error("complete stale session failed", zap.String("session_id", s.ID), zap.Error(err))
			continue
		}
		if done != nil {
			completed++
			r.logger.Info("stale session completed", zap.String("session_id", s.ID), zap.String("room_id", s.RoomID))
		}
	}
	return completed, nil
}
