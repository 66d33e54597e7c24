package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lessonreel/lessonreel-backend/internal/http/response"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/services"
)

type VideoHandler struct {
	log      *logger.Logger
	videoSvc services.VideoService
}

func NewVideoHandler(log *logger.Logger, videoSvc services.VideoService) *VideoHandler {
	return &VideoHandler{
		log:      log.With("handler", "VideoHandler"),
		videoSvc: videoSvc,
	}
}

// POST /api/lessons/:id/videos
func (h *VideoHandler) CreateVideo(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lesson id"})
		return
	}
	var req struct {
		Title     string `json:"title"`
		SourceRef string `json:"source_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	video, err := h.videoSvc.CreateVideo(c.Request.Context(), lessonID, req.Title, req.SourceRef)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"video": video})
}

// GET /api/lessons/:id/videos
func (h *VideoHandler) ListVideos(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lesson id"})
		return
	}

	videos, err := h.videoSvc.ListVideos(c.Request.Context(), lessonID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"videos": videos})
}

// POST /api/videos/:id/milestones
func (h *VideoHandler) CreateMilestone(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}
	var req services.MilestoneInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	milestone, err := h.videoSvc.CreateMilestone(c.Request.Context(), videoID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"milestone": milestone})
}

// DELETE /api/videos/:id/milestones/:milestoneId
func (h *VideoHandler) DeleteMilestone(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}
	milestoneID, err := uuid.Parse(c.Param("milestoneId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone id"})
		return
	}

	if err := h.videoSvc.DeleteMilestone(c.Request.Context(), videoID, milestoneID); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"message": "deleted"})
}

// POST /api/videos/:id/milestones/:milestoneId/questions
func (h *VideoHandler) AddQuestions(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}
	milestoneID, err := uuid.Parse(c.Param("milestoneId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone id"})
		return
	}
	var req struct {
		Questions []services.QuestionInput `json:"questions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	questions, err := h.videoSvc.AddQuestions(c.Request.Context(), videoID, milestoneID, req.Questions)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"questions": questions})
}

// POST /api/videos/:id/milestones/:milestoneId/questions/generate
func (h *VideoHandler) GenerateQuestions(c *gin.Context) {
	videoID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid video id"})
		return
	}
	milestoneID, err := uuid.Parse(c.Param("milestoneId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid milestone id"})
		return
	}
	var req struct {
		Count int `json:"count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}

	questions, err := h.videoSvc.GenerateQuestions(c.Request.Context(), videoID, milestoneID, req.Count)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"questions": questions})
}
