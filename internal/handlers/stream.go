package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/teamboard/teamboard-api/internal/authz"
	apierrors "github.com/teamboard/teamboard-api/internal/errors"
	"github.com/teamboard/teamboard-api/internal/middleware"
	"github.com/teamboard/teamboard-api/internal/realtime"
	"go.uber.org/zap"
)

// heartbeatInterval keeps intermediaries from closing an idle SSE stream.
const heartbeatInterval = 15 * time.Second

// StreamHandler serves the server-sent-events push channel and the room
// membership endpoints that go with it.
type StreamHandler struct {
	hub    *realtime.Hub
	authz  *authz.Service
	logger *zap.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *realtime.Hub, authzService *authz.Service, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		hub:    hub,
		authz:  authzService,
		logger: logger,
	}
}

// Stream opens an SSE connection for the caller. The first event carries the
// session id; the client uses it to join and leave project rooms. The session
// is torn down when the client disconnects.
func (h *StreamHandler) Stream(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return
	}

	session := h.hub.Register(userID)
	if session == nil {
		apierrors.RespondWithError(c, http.StatusServiceUnavailable,
			apierrors.NewAPIError(apierrors.ErrCodeServiceUnavailable, "Server is shutting down"))
		return
	}
	defer h.hub.Unregister(session)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{"session_id": session.ID})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-session.Events():
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), json.RawMessage(ev.Data))
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().Unix())
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// JoinRoom subscribes one of the caller's sessions to a project room. Only
// project members may join; joining twice is a no-op.
func (h *StreamHandler) JoinRoom(c *gin.Context) {
	session, projectID, ok := h.resolveRoomRequest(c)
	if !ok {
		return
	}

	h.hub.JoinProject(session, projectID)
	c.JSON(http.StatusOK, gin.H{"message": "Joined project room"})
}

// LeaveRoom unsubscribes one of the caller's sessions from a project room.
// Leaving a room the session is not in is a no-op.
func (h *StreamHandler) LeaveRoom(c *gin.Context) {
	session, projectID, ok := h.resolveRoomRequest(c)
	if !ok {
		return
	}

	h.hub.LeaveProject(session, projectID)
	c.JSON(http.StatusOK, gin.H{"message": "Left project room"})
}

// resolveRoomRequest parses the join/leave payload and checks that the
// session belongs to the caller and that the caller is a project member.
func (h *StreamHandler) resolveRoomRequest(c *gin.Context) (*realtime.Session, uint64, bool) {
	type RoomRequest struct {
		ProjectID uint64 `json:"project_id" binding:"required"`
	}

	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "")
		return nil, 0, false
	}

	var req RoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return nil, 0, false
	}

	session, ok := h.hub.Get(c.Param("session_id"))
	if !ok {
		apierrors.NotFound(c, "Stream session not found")
		return nil, 0, false
	}
	if session.UserID != userID {
		apierrors.Forbidden(c, "Stream session belongs to another user")
		return nil, 0, false
	}

	if _, err := h.authz.ResolveRole(c.Request.Context(), req.ProjectID, userID); err != nil {
		if errors.Is(err, authz.ErrNotAMember) {
			apierrors.Forbidden(c, "You are not a member of this project")
			return nil, 0, false
		}
		apierrors.InternalError(c, "Failed to verify project membership")
		return nil, 0, false
	}

	return session, req.ProjectID, true
}
