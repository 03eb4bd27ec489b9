package consultations

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/medibridge/telehealth/pkg/response"
)

type createRoomRequest struct {
	PatientID string `json:"patientId"`
	DoctorID  string `json:"doctorId"`
}

// Handler handles room and ICE configuration endpoints.
type Handler struct {
	svc    *Service
	ice    ICEConfig
	logger *zap.Logger
}

// NewHandler creates a consultations handler.
func NewHandler(svc *Service, ice ICEConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, ice: ice, logger: logger}
}

// CreateRoom handles POST /rooms.
func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid body")
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.DoctorID = strings.TrimSpace(req.DoctorID)
	if req.PatientID == "" || req.DoctorID == "" {
		response.BadRequest(c, "patientId and doctorId are required")
		return
	}
	response.Created(c, h.svc.CreateRoom(c.Request.Context(), req.PatientID, req.DoctorID))
}

// ListRooms handles GET /rooms.
func (h *Handler) ListRooms(c *gin.Context) {
	response.OK(c, h.svc.Snapshot())
}

// GetRoom handles GET /rooms/:id.
func (h *Handler) GetRoom(c *gin.Context) {
	room, ok := h.svc.Room(c.Param("id"))
	if !ok {
		response.NotFound(c, "room not found")
		return
	}
	response.OK(c, room)
}

// ICEServers handles GET /ice-servers.
func (h *Handler) ICEServers(c *gin.Context) {
	response.OK(c, gin.H{"iceServers": h.ice.ICEServers()})
}
