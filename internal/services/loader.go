package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/apierr"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/repos"
	"github.com/lessonreel/lessonreel-backend/internal/statecache"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

// stateLoader backs statecache misses with repository reads.
type stateLoader struct {
	db            *gorm.DB
	log           *logger.Logger
	videoRepo     repos.VideoRepo
	milestoneRepo repos.MilestoneRepo
	questionRepo  repos.QuestionRepo
	sessionRepo   repos.SessionRepo
	attemptRepo   repos.AttemptRepo
}

func NewStateLoader(
	db *gorm.DB,
	log *logger.Logger,
	videoRepo repos.VideoRepo,
	milestoneRepo repos.MilestoneRepo,
	questionRepo repos.QuestionRepo,
	sessionRepo repos.SessionRepo,
	attemptRepo repos.AttemptRepo,
) statecache.Loader {
	return &stateLoader{
		db:            db,
		log:           log.With("service", "StateLoader"),
		videoRepo:     videoRepo,
		milestoneRepo: milestoneRepo,
		questionRepo:  questionRepo,
		sessionRepo:   sessionRepo,
		attemptRepo:   attemptRepo,
	}
}

func (l *stateLoader) LoadVideoState(ctx context.Context, videoID uuid.UUID) (*statecache.VideoState, error) {
	var (
		video      *types.Video
		milestones []*types.Milestone
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := l.videoRepo.GetByID(gctx, nil, videoID)
		if err != nil {
			return fmt.Errorf("loading video: %w", err)
		}
		video = v
		return nil
	})
	g.Go(func() error {
		ms, err := l.milestoneRepo.GetByVideoID(gctx, nil, videoID)
		if err != nil {
			return fmt.Errorf("loading milestones: %w", err)
		}
		milestones = ms
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, apierr.Internal(err)
	}
	if video == nil {
		return nil, apierr.NotFound("video")
	}

	milestoneIDs := make([]uuid.UUID, 0, len(milestones))
	for _, m := range milestones {
		milestoneIDs = append(milestoneIDs, m.ID)
	}
	questions, err := l.questionRepo.GetByMilestoneIDs(ctx, nil, milestoneIDs)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("loading questions: %w", err))
	}

	byMilestone := make(map[uuid.UUID][]*types.Question, len(milestones))
	for _, q := range questions {
		byMilestone[q.MilestoneID] = append(byMilestone[q.MilestoneID], q)
	}

	st := &statecache.VideoState{
		Video:      video,
		Milestones: milestones,
		Questions:  byMilestone,
	}
	st.RebuildDerived()
	return st, nil
}

func (l *stateLoader) LoadSessionState(ctx context.Context, sessionID uuid.UUID) (*statecache.SessionState, error) {
	session, err := l.sessionRepo.GetByID(ctx, nil, sessionID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("loading session: %w", err))
	}
	if session == nil {
		return nil, apierr.NotFound("session")
	}
	attempts, err := l.attemptRepo.GetBySessionIDs(ctx, nil, []uuid.UUID{sessionID})
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("loading attempts: %w", err))
	}
	return &statecache.SessionState{Session: session, Answers: attempts}, nil
}
