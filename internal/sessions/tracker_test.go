package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/medibridge/telehealth/internal/models"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingArchiver struct {
	mu   sync.Mutex
	jobs []string
	err  error
}

func (a *recordingArchiver) EnqueueSessionArchive(_ context.Context, sessionID, roomID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.jobs = append(a.jobs, roomID+"/"+sessionID)
	return a.err
}

func newTestTracker(t *testing.T) (*Tracker, *MemoryStore, *fakeClock) {
	store := NewMemoryStore()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	tr := NewTracker(store, zaptest.NewLogger(t))
	tr.SetClock(clock.Now)
	return tr, store, clock
}

func strPtr(s string) *string { return &s }

func TestCreateStartsActiveSession(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()

	s, err := tr.Create(ctx, "room_1", "D1", "P1")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, models.RecordingSessionStatusActive, s.Status)
	assert.Equal(t, clock.now, s.StartTime)
	assert.Nil(t, s.EndTime)

	got, err := tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "D1", got.DoctorID)
	assert.Equal(t, "P1", got.PatientID)
}

func TestFinalizeFloorsDuration(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()
	s, err := tr.Create(ctx, "room_1", "D1", "P1")
	require.NoError(t, err)

	clock.Advance(125*time.Second + 900*time.Millisecond)
	done, err := tr.Finalize(ctx, "room_1")
	require.NoError(t, err)
	require.NotNil(t, done)

	got, err := tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordingSessionStatusCompleted, got.Status)
	assert.EqualValues(t, 125, got.DurationSeconds)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, clock.now, *got.EndTime)
}

func TestFinalizeWithoutSessionIsNoop(t *testing.T) {
	tr, store, _ := newTestTracker(t)
	s, err := tr.Finalize(context.Background(), "room_none")
	assert.NoError(t, err)
	assert.Nil(t, s)
	assert.Empty(t, store.sessions)
}

func TestFinalizeTwiceDoesNotMutate(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()
	s, _ := tr.Create(ctx, "room_1", "D1", "P1")

	clock.Advance(time.Minute)
	_, err := tr.Finalize(ctx, "room_1")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	again, err := tr.Finalize(ctx, "room_1")
	require.NoError(t, err)
	assert.Nil(t, again)

	// completing a stale copy is also a no-op
	again, err = tr.Complete(ctx, s)
	require.NoError(t, err)
	assert.Nil(t, again)

	got, _ := tr.Get(ctx, s.ID)
	assert.EqualValues(t, 60, got.DurationSeconds)
}

func TestFinalizeAsyncCompletesInBackground(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	archiver := &recordingArchiver{}
	tr.SetArchiver(archiver)
	ctx := context.Background()
	s, _ := tr.Create(ctx, "room_1", "D1", "P1")
	clock.Advance(30 * time.Second)

	tr.FinalizeAsync("room_1")
	tr.Wait()

	got, err := tr.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, got.Active())
	assert.Equal(t, []string{"room_1/" + s.ID}, archiver.jobs)
}

func TestArchiveFailureDoesNotFailFinalize(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	tr.SetArchiver(&recordingArchiver{err: errors.New("redis down")})
	ctx := context.Background()
	_, _ = tr.Create(ctx, "room_1", "D1", "P1")

	s, err := tr.Finalize(ctx, "room_1")
	require.NoError(t, err)
	assert.False(t, s.Active())
}

func TestUpdateMergesFields(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	archiver := &recordingArchiver{}
	tr.SetArchiver(archiver)
	ctx := context.Background()
	s, _ := tr.Create(ctx, "room_1", "D1", "P1")

	got, err := tr.Update(ctx, s.ID, models.RecordingSessionPatch{Transcript: strPtr("hello")})
	require.NoError(t, err)
	assert.Equal(t, "hello", *got.Transcript)
	assert.Nil(t, got.Notes)
	assert.Empty(t, archiver.jobs, "active sessions are not archived")

	_, err = tr.Finalize(ctx, "room_1")
	require.NoError(t, err)

	got, err = tr.Update(ctx, s.ID, models.RecordingSessionPatch{Notes: strPtr("follow up in 2 weeks")})
	require.NoError(t, err)
	assert.Equal(t, "hello", *got.Transcript)
	assert.Equal(t, "follow up in 2 weeks", *got.Notes)
	assert.Len(t, archiver.jobs, 2, "completion and the later update both archive")
}

func TestUpdateUnknownSession(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	_, err := tr.Update(context.Background(), "missing", models.RecordingSessionPatch{Notes: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListStale(t *testing.T) {
	tr, _, clock := newTestTracker(t)
	ctx := context.Background()
	old, _ := tr.Create(ctx, "room_old", "D1", "P1")
	clock.Advance(13 * time.Hour)
	_, _ = tr.Create(ctx, "room_new", "D2", "P2")

	stale, err := tr.ListStale(ctx, clock.now.Add(-12*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, old.ID, stale[0].ID)
}
