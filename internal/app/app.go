package app

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/db"
	"github.com/lessonreel/lessonreel-backend/internal/observability"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/realtime"
	"github.com/lessonreel/lessonreel-backend/internal/statecache"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Repos    Repos
	Services Services
	Cache    *statecache.Cache
	SSEHub   *realtime.SSEHub

	otelShutdown     func(context.Context) error
	cancel           context.CancelFunc
	unsubscribeCache func()
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg := LoadConfig(log)

	otelShutdown := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	ssehub := realtime.NewSSEHub(log)
	reposet := wireRepos(theDB, log)

	cache, err := wireStateCache(theDB, log, cfg, reposet)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init state cache: %w", err)
	}

	unsubscribeCache := wireCacheEvents(cache, ssehub)

	serviceset := wireServices(theDB, log, cfg, reposet, cache, ssehub)
	handlerset := wireHandlers(log, serviceset, ssehub)
	mw := wireMiddleware(log, cfg)
	router := wireRouter(log, cfg, handlerset, mw)

	return &App{
		Log:              log,
		DB:               theDB,
		Router:           router,
		Cfg:              cfg,
		Repos:            reposet,
		Services:         serviceset,
		Cache:            cache,
		SSEHub:           ssehub,
		otelShutdown:     otelShutdown,
		unsubscribeCache: unsubscribeCache,
	}, nil
}

// Start launches the background pieces: the cross-instance invalidation
// forwarder when a redis bus is configured.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if err := a.Cache.StartBusForwarder(ctx); err != nil {
		a.Log.Warn("state cache bus forwarder not started", "error", err)
	}
}

func (a *App) Run(addr string) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Router.Run(addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.unsubscribeCache != nil {
		a.unsubscribeCache()
		a.unsubscribeCache = nil
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(context.Background()); err != nil {
			a.Log.Warn("otel shutdown error", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
