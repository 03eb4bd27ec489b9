package sessions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubSigner struct{}

func (stubSigner) PresignSessionArchive(_ context.Context, roomID, sessionID string) (string, time.Duration, error) {
	return "https://archive.example/" + roomID + "/" + sessionID + ".json", 15 * time.Minute, nil
}

func newTestRouter(t *testing.T, tr *Tracker, signer ArchiveSigner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(tr, signer, zaptest.NewLogger(t))
	r := gin.New()
	r.GET("/recording-sessions/:id", h.Get)
	r.PATCH("/recording-sessions/:id", h.Update)
	r.GET("/recording-sessions/:id/archive-url", h.ArchiveURL)
	return r
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHandlerGet(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	s, err := tr.Create(context.Background(), "room_1", "D1", "P1")
	require.NoError(t, err)
	r := newTestRouter(t, tr, nil)

	w, env := do(t, r, http.MethodGet, "/recording-sessions/"+s.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "room_1", got["roomId"])
	assert.Equal(t, "active", got["status"])

	w, env = do(t, r, http.MethodGet, "/recording-sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, env.Success)
}

func TestHandlerUpdate(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	s, _ := tr.Create(context.Background(), "room_1", "D1", "P1")
	r := newTestRouter(t, tr, nil)

	w, env := do(t, r, http.MethodPatch, "/recording-sessions/"+s.ID, `{"notes":"stable"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "stable", got["notes"])

	w, env = do(t, r, http.MethodPatch, "/recording-sessions/"+s.ID, `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	got = nil
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "stable", got["notes"], "empty patch leaves the session unchanged")

	w, _ = do(t, r, http.MethodPatch, "/recording-sessions/missing", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodPatch, "/recording-sessions/"+s.ID, `{"notes":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPatch, "/recording-sessions/missing", `{"notes":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlerArchiveURL(t *testing.T) {
	tr, _, _ := newTestTracker(t)
	ctx := context.Background()
	s, _ := tr.Create(ctx, "room_1", "D1", "P1")

	w, _ := do(t, newTestRouter(t, tr, nil), http.MethodGet, "/recording-sessions/"+s.ID+"/archive-url", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	r := newTestRouter(t, tr, stubSigner{})
	w, _ = do(t, r, http.MethodGet, "/recording-sessions/"+s.ID+"/archive-url", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	_, err := tr.Finalize(ctx, "room_1")
	require.NoError(t, err)
	w, env := do(t, r, http.MethodGet, "/recording-sessions/"+s.ID+"/archive-url", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got struct {
		URL       string `json:"url"`
		ExpiresIn int    `json:"expiresIn"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "https://archive.example/room_1/"+s.ID+".json", got.URL)
	assert.Equal(t, 900, got.ExpiresIn)
}
