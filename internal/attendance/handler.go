package attendance

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/medibridge/telehealth/internal/models"
	"github.com/medibridge/telehealth/pkg/response"
)

// Reader is the read side of the attendance store.
type Reader interface {
	ListByRoom(ctx context.Context, roomID string) ([]models.ParticipantLog, error)
	Summarize(ctx context.Context, roomID string) (*Summary, error)
}

// Handler handles GET /rooms/:id/attendance.
type Handler struct {
	repo   Reader
	logger *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(repo Reader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// GetAttendance lists join/leave rows for a room, including rooms that have already closed.
func (h *Handler) GetAttendance(c *gin.Context) {
	roomID := c.Param("id")
	list, err := h.repo.ListByRoom(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("list attendance failed", zap.Error(err), zap.String("room_id", roomID))
		response.Internal(c, "failed to list attendance")
		return
	}
	summary, err := h.repo.Summarize(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("summarize attendance failed", zap.Error(err), zap.String("room_id", roomID))
		response.Internal(c, "failed to list attendance")
		return
	}
	response.OK(c, gin.H{"attendees": list, "summary": summary})
}
