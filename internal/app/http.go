package app

import (
	"github.com/gin-gonic/gin"

	lrhttp "github.com/lessonreel/lessonreel-backend/internal/http"
	httpH "github.com/lessonreel/lessonreel-backend/internal/http/handlers"
	httpMW "github.com/lessonreel/lessonreel-backend/internal/http/middleware"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/realtime"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health   *httpH.HealthHandler
	Session  *httpH.SessionHandler
	Video    *httpH.VideoHandler
	Progress *httpH.ProgressHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, serviceset Services, hub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(),
		Session:  httpH.NewSessionHandler(log, serviceset.Session),
		Video:    httpH.NewVideoHandler(log, serviceset.Video),
		Progress: httpH.NewProgressHandler(serviceset.Progress),
		Realtime: httpH.NewRealtimeHandler(log, hub),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),
	}
}

func wireRouter(log *logger.Logger, cfg Config, handlerset Handlers, mw Middleware) *gin.Engine {
	return lrhttp.NewRouter(lrhttp.RouterConfig{
		Log:             log,
		ServiceName:     cfg.ServiceName,
		AuthMiddleware:  mw.Auth,
		HealthHandler:   handlerset.Health,
		SessionHandler:  handlerset.Session,
		VideoHandler:    handlerset.Video,
		ProgressHandler: handlerset.Progress,
		RealtimeHandler: handlerset.Realtime,
	})
}
