package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/lessonreel/lessonreel-backend/internal/http/handlers"
	httpMW "github.com/lessonreel/lessonreel-backend/internal/http/middleware"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	AuthMiddleware *httpMW.AuthMiddleware

	HealthHandler   *httpH.HealthHandler
	SessionHandler  *httpH.SessionHandler
	VideoHandler    *httpH.VideoHandler
	ProgressHandler *httpH.ProgressHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(cfg.ServiceName))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	protected := api.Group("/")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			protected.GET("/sse/stream", cfg.RealtimeHandler.SSEStream)
			protected.POST("/sse/subscribe", cfg.RealtimeHandler.SSESubscribe)
			protected.POST("/sse/unsubscribe", cfg.RealtimeHandler.SSEUnsubscribe)
		}

		// Sessions
		if cfg.SessionHandler != nil {
			protected.POST("/videos/:id/sessions", cfg.SessionHandler.StartSession)
			protected.GET("/videos/:id/state", cfg.SessionHandler.GetVideoState)
			protected.PATCH("/sessions/:id/progress", cfg.SessionHandler.UpdateProgress)
			protected.POST("/sessions/:id/milestones/:milestoneId/reached", cfg.SessionHandler.MarkMilestoneReached)
			protected.POST("/sessions/:id/answers", cfg.SessionHandler.SubmitAnswer)
			protected.POST("/sessions/:id/complete", cfg.SessionHandler.CompleteSession)
			protected.GET("/sessions/:id/state", cfg.SessionHandler.GetSessionState)
		}

		// Authoring
		if cfg.VideoHandler != nil {
			protected.POST("/lessons/:id/videos", cfg.VideoHandler.CreateVideo)
			protected.GET("/lessons/:id/videos", cfg.VideoHandler.ListVideos)
			protected.POST("/videos/:id/milestones", cfg.VideoHandler.CreateMilestone)
			protected.DELETE("/videos/:id/milestones/:milestoneId", cfg.VideoHandler.DeleteMilestone)
			protected.POST("/videos/:id/milestones/:milestoneId/questions", cfg.VideoHandler.AddQuestions)
			protected.POST("/videos/:id/milestones/:milestoneId/questions/generate", cfg.VideoHandler.GenerateQuestions)
		}

		// Progress
		if cfg.ProgressHandler != nil {
			protected.GET("/lessons/:id/progress", cfg.ProgressHandler.GetLessonProgress)
			protected.POST("/lessons/:id/progress/recompute", cfg.ProgressHandler.RecomputeLessonProgress)
		}
	}

	return r
}
