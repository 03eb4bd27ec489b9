package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/medibridge/telehealth/internal/models"
	"github.com/medibridge/telehealth/pkg/response"
)

// ArchiveSigner issues download URLs for archived sessions.
type ArchiveSigner interface {
	PresignSessionArchive(ctx context.Context, roomID, sessionID string) (url string, expires time.Duration, err error)
}

// Handler handles recording session HTTP endpoints.
type Handler struct {
	tracker *Tracker
	signer  ArchiveSigner // optional
	logger  *zap.Logger
}

// NewHandler creates a recording sessions handler. signer may be nil.
func NewHandler(tracker *Tracker, signer ArchiveSigner, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{tracker: tracker, signer: signer, logger: logger}
}

// Get handles GET /recording-sessions/:id.
func (h *Handler) Get(c *gin.Context) {
	s, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, s)
}

// Update handles PATCH /recording-sessions/:id with {transcript?, notes?}.
func (h *Handler) Update(c *gin.Context) {
	var patch models.RecordingSessionPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, "invalid body")
		return
	}
	if patch.Empty() {
		if s, ok := h.load(c); ok {
			response.OK(c, s)
		}
		return
	}
	id := c.Param("id")
	s, err := h.tracker.Update(c.Request.Context(), id, patch)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording session not found")
			return
		}
		h.logger.Error("update recording session failed", zap.Error(err), zap.String("session_id", id))
		response.Internal(c, "failed to update recording session")
		return
	}
	response.OK(c, s)
}

// ArchiveURL handles GET /recording-sessions/:id/archive-url. Only completed sessions are archived.
func (h *Handler) ArchiveURL(c *gin.Context) {
	if h.signer == nil {
		response.ServiceUnavailable(c, "session archive not configured")
		return
	}
	s, ok := h.load(c)
	if !ok {
		return
	}
	if s.Active() {
		response.Conflict(c, "recording session still active")
		return
	}
	url, expires, err := h.signer.PresignSessionArchive(c.Request.Context(), s.RoomID, s.ID)
	if err != nil {
		h.logger.Error("presign session archive failed", zap.Error(err), zap.String("session_id", s.ID))
		response.Internal(c, "failed to generate archive URL")
		return
	}
	response.OK(c, gin.H{"url": url, "expiresIn": int(expires.Seconds())})
}

func (h *Handler) load(c *gin.Context) (*models.RecordingSession, bool) {
	id := c.Param("id")
	s, err := h.tracker.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "recording session not found")
			return nil, false
		}
		h.logger.Error("get recording session failed", zap.Error(err), zap.String("session_id", id))
		response.Internal(c, "failed to load recording session")
		return nil, false
	}
	return s, true
}
