package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/grading"
	"github.com/lessonreel/lessonreel-backend/internal/platform/apierr"
	"github.com/lessonreel/lessonreel-backend/internal/platform/ctxutil"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/realtime"
	"github.com/lessonreel/lessonreel-backend/internal/repos"
	"github.com/lessonreel/lessonreel-backend/internal/statecache"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

// AnswerResult is returned to the submitting client together with the retry
// budget so the UI can disable resubmission when it runs out.
type AnswerResult struct {
	IsCorrect         bool    `json:"is_correct"`
	Score             float64 `json:"score"`
	Explanation       *string `json:"explanation,omitempty"`
	AttemptNumber     int     `json:"attempt_number"`
	AttemptsRemaining int     `json:"attempts_remaining"`
}

// SessionService owns the playback session lifecycle and everything hanging
// off it: milestone reaches, answer grading with retry limits, and the
// progress recompute that follows each event. Caller identity comes from
// ctxutil.RequestData; sessions are only mutable by their owning student.
type SessionService interface {
	Start(ctx context.Context, videoID uuid.UUID) (*types.VideoSession, error)
	UpdateProgress(ctx context.Context, sessionID uuid.UUID, position float64, watchTimeDelta *int) (*types.VideoSession, error)
	MarkMilestoneReached(ctx context.Context, sessionID, milestoneID uuid.UUID, timestampSeconds float64) error
	SubmitAnswer(ctx context.Context, sessionID, questionID, milestoneID uuid.UUID, answer json.RawMessage) (*AnswerResult, error)
	Complete(ctx context.Context, sessionID uuid.UUID, finalPosition float64, totalWatchTime int) (*types.VideoSession, error)
	GetSessionState(ctx context.Context, sessionID uuid.UUID) (*statecache.SessionState, error)
	GetVideoState(ctx context.Context, videoID uuid.UUID) (*statecache.VideoState, error)
}

type sessionService struct {
	db            *gorm.DB
	log           *logger.Logger
	cache         *statecache.Cache
	hub           *realtime.SSEHub
	videoRepo     repos.VideoRepo
	milestoneRepo repos.MilestoneRepo
	questionRepo  repos.QuestionRepo
	sessionRepo   repos.SessionRepo
	attemptRepo   repos.AttemptRepo
	progress      ProgressService
}

func NewSessionService(
	db *gorm.DB,
	log *logger.Logger,
	cache *statecache.Cache,
	hub *realtime.SSEHub,
	videoRepo repos.VideoRepo,
	milestoneRepo repos.MilestoneRepo,
	questionRepo repos.QuestionRepo,
	sessionRepo repos.SessionRepo,
	attemptRepo repos.AttemptRepo,
	progress ProgressService,
) SessionService {
	return &sessionService{
		db:            db,
		log:           log.With("service", "SessionService"),
		cache:         cache,
		hub:           hub,
		videoRepo:     videoRepo,
		milestoneRepo: milestoneRepo,
		questionRepo:  questionRepo,
		sessionRepo:   sessionRepo,
		attemptRepo:   attemptRepo,
		progress:      progress,
	}
}

func (ss *sessionService) caller(ctx context.Context) (*ctxutil.RequestData, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.StudentID == uuid.Nil {
		return nil, apierr.AccessDenied("session")
	}
	return rd, nil
}

// Start finds or lazily creates the one session per (student, video). An
// existing session resumes: status back to ACTIVE, lastSeenAt bumped.
func (ss *sessionService) Start(ctx context.Context, videoID uuid.UUID) (*types.VideoSession, error) {
	rd, err := ss.caller(ctx)
	if err != nil {
		return nil, err
	}

	var session *types.VideoSession
	err = ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		video, err := ss.videoRepo.GetByID(ctx, tx, videoID)
		if err != nil {
			return apierr.Internal(fmt.Errorf("fetching video: %w", err))
		}
		if video == nil {
			return apierr.NotFound("video")
		}

		existing, err := ss.sessionRepo.GetByStudentAndVideo(ctx, tx, rd.StudentID, videoID)
		if err != nil {
			return apierr.Internal(fmt.Errorf("fetching session: %w", err))
		}
		if existing != nil {
			now := time.Now()
			if err := ss.sessionRepo.UpdateFields(ctx, tx, existing.ID, map[string]any{
				"status":       types.SessionActive,
				"last_seen_at": now,
			}); err != nil {
				return apierr.Internal(fmt.Errorf("resuming session: %w", err))
			}
			existing.Status = types.SessionActive
			existing.LastSeenAt = now
			session = existing
			return nil
		}

		created, err := ss.sessionRepo.Create(ctx, tx, []*types.VideoSession{{
			StudentID: rd.StudentID,
			VideoID:   videoID,
			Status:    types.SessionActive,
		}})
		if err != nil {
			return apierr.Internal(fmt.Errorf("creating session: %w", err))
		}
		session = created[0]
		return nil
	})
	if err != nil {
		return nil, apiError(err)
	}

	// Warming the cache also notifies subscribers with the current state.
	if _, err := ss.cache.GetSession(ctx, session.ID, true); err != nil {
		ss.log.Warn("session cache warm failed", "sessionID", session.ID, "error", err)
	}
	return session, nil
}

func (ss *sessionService) UpdateProgress(ctx context.Context, sessionID uuid.UUID, position float64, watchTimeDelta *int) (*types.VideoSession, error) {
	rd, err := ss.caller(ctx)
	if err != nil {
		return nil, err
	}
	if position < 0 {
		return nil, apierr.Validationf("position must be non-negative, got %v", position)
	}

	var session *types.VideoSession
	mutErr := ss.cache.MutateSession(ctx, sessionID,
		func(staged *statecache.SessionState) error {
			now := time.Now()
			staged.Session.CurrentPosition = position
			staged.Session.LastSeenAt = now
			if watchTimeDelta != nil && *watchTimeDelta > 0 {
				staged.Session.WatchTimeSeconds += *watchTimeDelta
			}
			cp := *staged.Session
			session = &cp
			return nil
		},
		func(ctx context.Context) error {
			return ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				row, err := ss.ownedSessionForUpdate(ctx, tx, rd, sessionID)
				if err != nil {
					return err
				}
				if row.Status == types.SessionCompleted {
					return apierr.Conflict(errors.New("session already completed"), nil)
				}
				updates := map[string]any{
					"current_position": position,
					"last_seen_at":     time.Now(),
				}
				if watchTimeDelta != nil && *watchTimeDelta > 0 {
					updates["watch_time_seconds"] = row.WatchTimeSeconds + *watchTimeDelta
				}
				if err := ss.sessionRepo.UpdateFields(ctx, tx, sessionID, updates); err != nil {
					return apierr.Internal(fmt.Errorf("updating session: %w", err))
				}
				return nil
			})
		},
	)
	if mutErr != nil {
		return nil, apiError(mutErr)
	}
	return session, nil
}

// MarkMilestoneReached records a reach event idempotently. Reaching a
// milestone that is already in the completed set is a no-op; out-of-order
// reaches are valid since client retries can deliver them in any order.
func (ss *sessionService) MarkMilestoneReached(ctx context.Context, sessionID, milestoneID uuid.UUID, timestampSeconds float64) error {
	rd, err := ss.caller(ctx)
	if err != nil {
		return err
	}

	var (
		changed bool
		videoID uuid.UUID
	)
	mutErr := ss.cache.MutateSession(ctx, sessionID,
		func(staged *statecache.SessionState) error {
			if staged.Session.AddCompletedMilestone(milestoneID) {
				mid := milestoneID
				staged.Session.LastMilestoneID = &mid
				staged.Session.CurrentPosition = timestampSeconds
				staged.Session.LastSeenAt = time.Now()
			}
			return nil
		},
		func(ctx context.Context) error {
			return ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				row, err := ss.ownedSessionForUpdate(ctx, tx, rd, sessionID)
				if err != nil {
					return err
				}
				if row.Status == types.SessionCompleted {
					return apierr.Conflict(errors.New("session already completed"), nil)
				}
				videoID = row.VideoID

				milestone, err := ss.milestoneRepo.GetByID(ctx, tx, milestoneID)
				if err != nil {
					return apierr.Internal(fmt.Errorf("fetching milestone: %w", err))
				}
				if milestone == nil || milestone.VideoID != row.VideoID {
					return apierr.NotFound("milestone")
				}

				changed = row.AddCompletedMilestone(milestoneID)
				if !changed {
					return nil
				}
				mid := milestoneID
				row.LastMilestoneID = &mid
				row.CurrentPosition = timestampSeconds
				row.LastSeenAt = time.Now()
				if err := ss.sessionRepo.Save(ctx, tx, row); err != nil {
					return apierr.Internal(fmt.Errorf("saving session: %w", err))
				}
				return nil
			})
		},
	)
	if mutErr != nil {
		return apiError(mutErr)
	}

	if changed {
		ss.recomputeForVideo(ctx, rd.StudentID, videoID)
		ss.broadcastSession(sessionID, realtime.SSEEventMilestoneReached)
	}
	return nil
}

// SubmitAnswer grades one submission. The retry check and the attempt upsert
// run in one transaction behind a row lock so two concurrent submissions for
// the same (student, question) cannot both slip under the limit.
func (ss *sessionService) SubmitAnswer(ctx context.Context, sessionID, questionID, milestoneID uuid.UUID, answer json.RawMessage) (*AnswerResult, error) {
	rd, err := ss.caller(ctx)
	if err != nil {
		return nil, err
	}

	var (
		result  *AnswerResult
		row     *types.Attempt
		videoID uuid.UUID
	)
	txErr := ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := ss.ownedSessionForUpdate(ctx, tx, rd, sessionID)
		if err != nil {
			return err
		}
		if sess.Status == types.SessionCompleted {
			return apierr.Conflict(errors.New("session already completed"), nil)
		}
		videoID = sess.VideoID

		milestone, err := ss.milestoneRepo.GetByID(ctx, tx, milestoneID)
		if err != nil {
			return apierr.Internal(fmt.Errorf("fetching milestone: %w", err))
		}
		if milestone == nil || milestone.VideoID != sess.VideoID {
			return apierr.NotFound("milestone")
		}

		question, err := ss.questionRepo.GetByID(ctx, tx, questionID)
		if err != nil {
			return apierr.Internal(fmt.Errorf("fetching question: %w", err))
		}
		if question == nil || question.MilestoneID != milestoneID {
			return apierr.NotFound("question")
		}

		retryLimit := milestone.RetryLimit
		if retryLimit <= 0 {
			retryLimit = types.DefaultRetryLimit
		}

		prior, err := ss.attemptRepo.GetForUpdate(ctx, tx, rd.StudentID, questionID)
		if err != nil {
			return apierr.Internal(fmt.Errorf("locking attempt: %w", err))
		}
		attemptNumber := 1
		if prior != nil {
			if prior.AttemptNumber >= retryLimit {
				return apierr.RetryLimitExceeded(prior.AttemptNumber, retryLimit)
			}
			attemptNumber = prior.AttemptNumber + 1
		}

		qd, err := grading.ParseQuestionData(grading.QuestionType(question.Type), question.QuestionData)
		if err != nil {
			return apierr.Validation(fmt.Errorf("question data: %w", err))
		}
		graded, err := grading.Evaluate(qd, question.PassThreshold, answer)
		if err != nil {
			if errors.Is(err, grading.ErrMalformedAnswer) {
				return apierr.Validation(err)
			}
			return apierr.Internal(fmt.Errorf("evaluating answer: %w", err))
		}

		status := types.AttemptIncorrect
		if graded.IsCorrect {
			status = types.AttemptCorrect
		}
		row = &types.Attempt{
			SessionID:     sessionID,
			StudentID:     rd.StudentID,
			QuestionID:    questionID,
			MilestoneID:   milestoneID,
			AttemptNumber: attemptNumber,
			AnswerPayload: datatypes.JSON(answer),
			IsCorrect:     graded.IsCorrect,
			Score:         graded.Score,
			Status:        status,
			SubmittedAt:   time.Now(),
		}
		if err := ss.attemptRepo.Upsert(ctx, tx, row); err != nil {
			return apierr.Internal(fmt.Errorf("recording attempt: %w", err))
		}

		result = &AnswerResult{
			IsCorrect:         graded.IsCorrect,
			Score:             graded.Score,
			Explanation:       question.Explanation,
			AttemptNumber:     attemptNumber,
			AttemptsRemaining: retryLimit - attemptNumber,
		}
		return nil
	})
	if txErr != nil {
		return nil, apiError(txErr)
	}

	ss.patchCachedAttempt(ctx, sessionID, row)

	ss.recomputeForVideo(ctx, rd.StudentID, videoID)
	ss.broadcastSession(sessionID, realtime.SSEEventAnswerGraded)
	return result, nil
}

// Complete marks the session COMPLETED and triggers the lesson recompute.
// Completing an already-completed session is a no-op returning current state.
func (ss *sessionService) Complete(ctx context.Context, sessionID uuid.UUID, finalPosition float64, totalWatchTime int) (*types.VideoSession, error) {
	rd, err := ss.caller(ctx)
	if err != nil {
		return nil, err
	}

	var (
		session     *types.VideoSession
		alreadyDone bool
		videoID     uuid.UUID
	)
	mutErr := ss.cache.MutateSession(ctx, sessionID,
		func(staged *statecache.SessionState) error {
			if staged.Session.Status == types.SessionCompleted {
				return nil
			}
			now := time.Now()
			staged.Session.Status = types.SessionCompleted
			staged.Session.CurrentPosition = finalPosition
			staged.Session.WatchTimeSeconds = totalWatchTime
			staged.Session.CompletedAt = &now
			staged.Session.LastSeenAt = now
			return nil
		},
		func(ctx context.Context) error {
			return ss.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
				row, err := ss.ownedSessionForUpdate(ctx, tx, rd, sessionID)
				if err != nil {
					return err
				}
				videoID = row.VideoID
				if row.Status == types.SessionCompleted {
					alreadyDone = true
					session = row
					return nil
				}
				now := time.Now()
				row.Status = types.SessionCompleted
				row.CurrentPosition = finalPosition
				row.WatchTimeSeconds = totalWatchTime
				row.CompletedAt = &now
				row.LastSeenAt = now
				if err := ss.sessionRepo.Save(ctx, tx, row); err != nil {
					return apierr.Internal(fmt.Errorf("completing session: %w", err))
				}
				session = row
				return nil
			})
		},
	)
	if mutErr != nil {
		return nil, apiError(mutErr)
	}

	if alreadyDone {
		// The cached copy may carry a speculative completedAt; reload the
		// authoritative row.
		if _, err := ss.cache.GetSession(ctx, sessionID, true); err != nil {
			ss.log.Warn("session cache refresh failed", "sessionID", sessionID, "error", err)
		}
		return session, nil
	}

	ss.recomputeForVideo(ctx, rd.StudentID, videoID)
	return session, nil
}

func (ss *sessionService) GetSessionState(ctx context.Context, sessionID uuid.UUID) (*statecache.SessionState, error) {
	rd, err := ss.caller(ctx)
	if err != nil {
		return nil, err
	}
	st, err := ss.cache.GetSession(ctx, sessionID, false)
	if err != nil {
		return nil, apiError(err)
	}
	if st.Session.StudentID != rd.StudentID && rd.Role != types.RoleTeacher {
		return nil, apierr.AccessDenied("session")
	}
	return st, nil
}

func (ss *sessionService) GetVideoState(ctx context.Context, videoID uuid.UUID) (*statecache.VideoState, error) {
	if _, err := ss.caller(ctx); err != nil {
		return nil, err
	}
	st, err := ss.cache.GetVideo(ctx, videoID, false)
	if err != nil {
		return nil, apiError(err)
	}
	return st, nil
}

// ownedSessionForUpdate locks the session row and checks it belongs to the
// caller. Teachers may read but not mutate, so ownership is strict here.
func (ss *sessionService) ownedSessionForUpdate(ctx context.Context, tx *gorm.DB, rd *ctxutil.RequestData, sessionID uuid.UUID) (*types.VideoSession, error) {
	row, err := ss.sessionRepo.GetByIDForUpdate(ctx, tx, sessionID)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("locking session: %w", err))
	}
	if row == nil {
		return nil, apierr.NotFound("session")
	}
	if row.StudentID != rd.StudentID {
		return nil, apierr.AccessDenied("session")
	}
	return row, nil
}

// patchCachedAttempt splices the persisted attempt into the cached answer
// set, replacing any prior row for the same question. The row is already on
// disk, so persist is a no-op; a failure here only delays visibility until
// the TTL refresh.
func (ss *sessionService) patchCachedAttempt(ctx context.Context, sessionID uuid.UUID, row *types.Attempt) {
	if row == nil {
		return
	}
	err := ss.cache.MutateSession(ctx, sessionID,
		func(staged *statecache.SessionState) error {
			kept := staged.Answers[:0]
			for _, a := range staged.Answers {
				if a.QuestionID == row.QuestionID && a.StudentID == row.StudentID {
					continue
				}
				kept = append(kept, a)
			}
			cp := *row
			staged.Answers = append(kept, &cp)
			return nil
		},
		func(ctx context.Context) error { return nil },
	)
	if err != nil {
		ss.log.Warn("patching cached attempt failed", "sessionID", sessionID, "error", err)
	}
}

// recomputeForVideo resolves the video's lesson and refreshes the rollup.
// Failures are logged, not surfaced: the triggering mutation has already
// committed and recompute is safe to rerun on the next event.
func (ss *sessionService) recomputeForVideo(ctx context.Context, studentID, videoID uuid.UUID) {
	st, err := ss.cache.GetVideo(ctx, videoID, false)
	if err != nil {
		ss.log.Warn("recompute skipped; video state unavailable", "videoID", videoID, "error", err)
		return
	}
	if _, _, err := ss.progress.Recompute(ctx, studentID, st.Video.LessonID); err != nil {
		ss.log.Warn("progress recompute failed", "studentID", studentID, "lessonID", st.Video.LessonID, "error", err)
		return
	}
	ss.broadcastSessionless(realtime.VideoChannel(videoID), realtime.SSEEventProgressUpdated)
}

func (ss *sessionService) broadcastSession(sessionID uuid.UUID, event realtime.SSEEvent) {
	if ss.hub == nil {
		return
	}
	ss.hub.Broadcast(realtime.SSEMessage{Channel: realtime.SessionChannel(sessionID), Event: event})
}

func (ss *sessionService) broadcastSessionless(channel string, event realtime.SSEEvent) {
	if ss.hub == nil {
		return
	}
	ss.hub.Broadcast(realtime.SSEMessage{Channel: channel, Event: event})
}

// apiError normalizes anything leaving the service into the typed taxonomy.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	if ae := apierr.AsError(err); ae != nil {
		return ae
	}
	return apierr.Internal(err)
}
