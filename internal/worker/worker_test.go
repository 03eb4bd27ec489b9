package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/medibridge/telehealth/internal/consultations"
	"github.com/medibridge/telehealth/internal/models"
	"github.com/medibridge/telehealth/internal/sessions"
	"github.com/medibridge/telehealth/internal/signaling"
	"github.com/medibridge/telehealth/pkg/queue"
)

type fakeUploader struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *fakeUploader) UploadSessionArchive(_ context.Context, roomID, sessionID string, body []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	key := roomID + "/" + sessionID
	f.objects[key] = body
	return key, nil
}

type fakeQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
}

func (q *fakeQueue) Dequeue(ctx context.Context) (*queue.Job, error) {
	q.mu.Lock()
	if len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		return job, nil
	}
	q.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (q *fakeQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempt++
	q.retried = append(q.retried, job)
	return nil
}

func (q *fakeQueue) retriedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.retried)
}

func completedSession(t *testing.T, tr *sessions.Tracker) *models.RecordingSession {
	t.Helper()
	ctx := context.Background()
	s, err := tr.Create(ctx, "room_1", "D1", "P1")
	require.NoError(t, err)
	_, err = tr.Finalize(ctx, "room_1")
	require.NoError(t, err)
	return s
}

func archiveJob(t *testing.T, sessionID string) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeSessionArchive, queue.SessionArchivePayload{SessionID: sessionID, RoomID: "room_1"})
	require.NoError(t, err)
	return job
}

func TestProcessUploadsSnapshot(t *testing.T) {
	tr := sessions.NewTracker(sessions.NewMemoryStore(), zaptest.NewLogger(t))
	s := completedSession(t, tr)
	up := &fakeUploader{}
	p := NewArchiveProcessor(tr, up, &fakeQueue{}, zaptest.NewLogger(t))

	require.NoError(t, p.Process(context.Background(), archiveJob(t, s.ID)))

	body, ok := up.objects["room_1/"+s.ID]
	require.True(t, ok)
	var got models.RecordingSession
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, models.RecordingSessionStatusCompleted, got.Status)
}

func TestProcessSkipsActiveSession(t *testing.T) {
	tr := sessions.NewTracker(sessions.NewMemoryStore(), zaptest.NewLogger(t))
	s, err := tr.Create(context.Background(), "room_1", "D1", "P1")
	require.NoError(t, err)
	up := &fakeUploader{}
	p := NewArchiveProcessor(tr, up, &fakeQueue{}, zaptest.NewLogger(t))

	require.NoError(t, p.Process(context.Background(), archiveJob(t, s.ID)))
	assert.Empty(t, up.objects)
}

func TestProcessErrors(t *testing.T) {
	tr := sessions.NewTracker(sessions.NewMemoryStore(), zaptest.NewLogger(t))
	p := NewArchiveProcessor(tr, &fakeUploader{}, &fakeQueue{}, zaptest.NewLogger(t))
	ctx := context.Background()

	err := p.Process(ctx, &queue.Job{Type: "email"})
	assert.Error(t, err)

	err = p.Process(ctx, archiveJob(t, "missing"))
	assert.ErrorIs(t, err, sessions.ErrNotFound)
}

func TestRunRetriesFailedJobs(t *testing.T) {
	tr := sessions.NewTracker(sessions.NewMemoryStore(), zaptest.NewLogger(t))
	s := completedSession(t, tr)
	q := &fakeQueue{jobs: []*queue.Job{archiveJob(t, s.ID)}}
	p := NewArchiveProcessor(tr, &fakeUploader{err: errors.New("s3 unavailable")}, q, zaptest.NewLogger(t))
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return q.retriedCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, q.retried[0].Attempt)
}

type fakeLiveRooms map[string]bool

func (f fakeLiveRooms) RoomLive(_ context.Context, roomID string) (bool, error) {
	return f[roomID], nil
}

func TestReconcilerCompletesOnlyDeadRooms(t *testing.T) {
	store := sessions.NewMemoryStore()
	tr := sessions.NewTracker(store, zaptest.NewLogger(t))
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	now := start
	tr.SetClock(func() time.Time { return now })
	ctx := context.Background()

	dead, _ := tr.Create(ctx, "room_dead", "D1", "P1")
	live, _ := tr.Create(ctx, "room_live", "D2", "P2")
	now = start.Add(11 * time.Hour)
	fresh, _ := tr.Create(ctx, "room_fresh", "D3", "P3")
	now = start.Add(13 * time.Hour)

	r := NewReconciler(tr, fakeLiveRooms{"room_live": true}, time.Minute, 12*time.Hour, zaptest.NewLogger(t))
	r.now = func() time.Time { return now }

	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := tr.Get(ctx, dead.ID)
	assert.False(t, got.Active())
	assert.EqualValues(t, 13*3600, got.DurationSeconds)
	got, _ = tr.Get(ctx, live.ID)
	assert.True(t, got.Active())
	got, _ = tr.Get(ctx, fresh.ID)
	assert.True(t, got.Active())

	n, err = r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type nopConn struct{ id string }

func (c nopConn) ID() string           { return c.id }
func (nopConn) Send(frame []byte) bool { return true }

func TestReconcilerKeepsCreatedRoomWithoutJoins(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	tr := sessions.NewTracker(sessions.NewMemoryStore(), logger)
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	now := start
	tr.SetClock(func() time.Time { return now })

	// live set maintained the way cmd/server feeds the presence mirror
	live := fakeLiveRooms{}
	rooms := signaling.NewMemoryRoomStore()
	svc := consultations.NewService(rooms, tr, logger)
	svc.SetRoomCreatedHandler(func(roomID string) { live[roomID] = true })
	relay := signaling.NewRelay(rooms, logger)
	relay.SetParticipantHandlers(
		func(roomID string, _ *signaling.Participant) { live[roomID] = true },
		func(string, string) {},
	)
	relay.SetRoomClosedHandler(func(roomID string) {
		delete(live, roomID)
		tr.FinalizeAsync(roomID)
	})

	created := svc.CreateRoom(ctx, "P1", "D1")
	require.NotNil(t, created.RecordingSessionID)

	now = start.Add(13 * time.Hour)
	r := NewReconciler(tr, live, time.Minute, 12*time.Hour, logger)
	r.now = func() time.Time { return now }
	n, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := tr.Get(ctx, *created.RecordingSessionID)
	require.NoError(t, err)
	assert.True(t, got.Active())

	peer := signaling.NewPeer(nopConn{id: "c1"})
	relay.Dispatch(peer, signaling.Join{RoomID: created.RoomID, UserID: "D1", Name: "Doc", IsDoctor: true})
	relay.Leave(peer)
	tr.Wait()

	_, open := rooms.GetRoom(created.RoomID)
	assert.False(t, open)
	got, err = tr.Get(ctx, *created.RecordingSessionID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingSessionStatusCompleted, got.Status)
	assert.EqualValues(t, 13*3600, got.DurationSeconds)
}
