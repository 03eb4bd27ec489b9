package signaling

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return true
}

// messages decodes every frame received so far.
func (f *fakeConn) messages(t *testing.T) []map[string]interface{} {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.frames))
	for _, frame := range f.frames {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(frame, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) ofType(t *testing.T, typ string) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, m := range f.messages(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

type hookRecorder struct {
	joined []string
	left   []string
	closed []string
}

func (h *hookRecorder) attach(r *Relay) {
	r.SetParticipantHandlers(
		func(roomID string, p *Participant) { h.joined = append(h.joined, roomID+"/"+p.ID) },
		func(roomID, participantID string) { h.left = append(h.left, roomID+"/"+participantID) },
	)
	r.SetRoomClosedHandler(func(roomID string) { h.closed = append(h.closed, roomID) })
}

func mustDecode(t *testing.T, frame string) Inbound {
	t.Helper()
	msg, err := Decode([]byte(frame))
	require.NoError(t, err)
	return msg
}
