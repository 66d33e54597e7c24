package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lessonreel/lessonreel-backend/internal/http/response"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/services"
)

type SessionHandler struct {
	log        *logger.Logger
	sessionSvc services.SessionService
}

func NewSessionHandler(log *logger.Logger, sessionSvc services.SessionService) *SessionHandler {
	return &SessionHandler{
		log:        log.With("handler", "SessionHandler"),
		sessionSvc: sessionSvc,
	}
}

// POST /api/videos/:id/sessions
func (h *SessionHandler) StartSession(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	session, err := h.sessionSvc.Start(c.Request.Context(), videoID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"session": session})
}

// PATCH /api/sessions/:id/progress
func (h *SessionHandler) UpdateProgress(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	var req struct {
		Position       float64 `json:"position"`
		WatchTimeDelta *int    `json:"watch_time_delta,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	session, err := h.sessionSvc.UpdateProgress(c.Request.Context(), sessionID, req.Position, req.WatchTimeDelta)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"session": session})
}

// POST /api/sessions/:id/milestones/:milestoneId/reached
func (h *SessionHandler) MarkMilestoneReached(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	milestoneID, err := uuid.Parse(c.Param("milestoneId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone id"})
		return
	}
	var req struct {
		TimestampSeconds float64 `json:"timestamp_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	if err := h.sessionSvc.MarkMilestoneReached(c.Request.Context(), sessionID, milestoneID, req.TimestampSeconds); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "recorded"})
}

// POST /api/sessions/:id/answers
func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	var req struct {
		QuestionID  uuid.UUID       `json:"question_id"`
		MilestoneID uuid.UUID       `json:"milestone_id"`
		Answer      json.RawMessage `json:"answer"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.QuestionID == uuid.Nil || req.MilestoneID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	result, err := h.sessionSvc.SubmitAnswer(c.Request.Context(), sessionID, req.QuestionID, req.MilestoneID, req.Answer)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"result": result})
}

// POST /api/sessions/:id/complete
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	var req struct {
		FinalPosition  float64 `json:"final_position"`
		TotalWatchTime int     `json:"total_watch_time"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	session, err := h.sessionSvc.Complete(c.Request.Context(), sessionID, req.FinalPosition, req.TotalWatchTime)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"session": session})
}

// GET /api/sessions/:id/state
func (h *SessionHandler) GetSessionState(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}

	state, err := h.sessionSvc.GetSessionState(c.Request.Context(), sessionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"state": state})
}

// GET /api/videos/:id/state
func (h *SessionHandler) GetVideoState(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}

	state, err := h.sessionSvc.GetVideoState(c.Request.Context(), videoID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"state": state})
}
