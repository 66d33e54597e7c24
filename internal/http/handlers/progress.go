package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lessonreel/lessonreel-backend/internal/http/response"
	"github.com/lessonreel/lessonreel-backend/internal/platform/ctxutil"
	"github.com/lessonreel/lessonreel-backend/internal/services"
)

type ProgressHandler struct {
	progressSvc services.ProgressService
}

func NewProgressHandler(progressSvc services.ProgressService) *ProgressHandler {
	return &ProgressHandler{progressSvc: progressSvc}
}

// GET /api/lessons/:id/progress
func (h *ProgressHandler) GetLessonProgress(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lesson id"})
		return
	}
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.StudentID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	progress, grade, err := h.progressSvc.GetForStudent(c.Request.Context(), rd.StudentID, lessonID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"progress": progress, "grade": grade})
}

// POST /api/lessons/:id/progress/recompute
func (h *ProgressHandler) RecomputeLessonProgress(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid lesson id"})
		return
	}
	rd := ctxutil.GetRequestData(c.Request.Context())
	if rd == nil || rd.StudentID == uuid.Nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	progress, grade, err := h.progressSvc.Recompute(c.Request.Context(), rd.StudentID, lessonID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"progress": progress, "grade": grade})
}
