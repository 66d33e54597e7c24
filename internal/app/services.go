package app

import (
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/realtime"
	"github.com/lessonreel/lessonreel-backend/internal/services"
	"github.com/lessonreel/lessonreel-backend/internal/statecache"
)

type Services struct {
	Progress services.ProgressService
	Session  services.SessionService
	Video    services.VideoService
}

func wireStateCache(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos) (*statecache.Cache, error) {
	loader := services.NewStateLoader(db, log, reposet.Video, reposet.Milestone, reposet.Question, reposet.Session, reposet.Attempt)

	var bus statecache.Bus
	if cfg.RedisAddr != "" {
		var err error
		bus, err = statecache.NewRedisBus(log, cfg.RedisAddr, "lessonreel.statecache.invalidation")
		if err != nil {
			return nil, err
		}
	}
	return statecache.New(log, loader, cfg.CacheTTL, bus), nil
}

// wireCacheEvents feeds every cache load and mutation into the SSE hub so
// stream consumers see state changes regardless of which operation caused
// them. Returns the unsubscribe func for shutdown.
func wireCacheEvents(cache *statecache.Cache, hub *realtime.SSEHub) func() {
	return cache.SubscribeAll(func(ev statecache.Event) {
		switch ev.Kind {
		case statecache.KindVideo:
			hub.Broadcast(realtime.SSEMessage{
				Channel: realtime.VideoChannel(ev.ID),
				Event:   realtime.SSEEventVideoStateChanged,
				Data:    ev.State,
			})
		case statecache.KindSession:
			hub.Broadcast(realtime.SSEMessage{
				Channel: realtime.SessionChannel(ev.ID),
				Event:   realtime.SSEEventSessionStateChanged,
				Data:    ev.State,
			})
		}
	})
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, cache *statecache.Cache, hub *realtime.SSEHub) Services {
	log.Info("Wiring services...")

	var prober services.MediaProber
	if cfg.MediaProbeURL != "" {
		prober = services.NewHTTPMediaProber(log, cfg.MediaProbeURL)
	}
	var generator services.QuestionGenerator
	if cfg.QuestionGenURL != "" {
		generator = services.NewHTTPQuestionGenerator(log, cfg.QuestionGenURL, cfg.QuestionGenAPIKey)
	}

	progressSvc := services.NewProgressService(db, log, reposet.Video, reposet.Milestone, reposet.Question, reposet.Session, reposet.Attempt, reposet.Progress, reposet.Grade)
	sessionSvc := services.NewSessionService(db, log, cache, hub, reposet.Video, reposet.Milestone, reposet.Question, reposet.Session, reposet.Attempt, progressSvc)
	videoSvc := services.NewVideoService(db, log, cache, prober, generator, reposet.Lesson, reposet.Video, reposet.Milestone, reposet.Question)

	return Services{
		Progress: progressSvc,
		Session:  sessionSvc,
		Video:    videoSvc,
	}
}
