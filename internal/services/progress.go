package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/apierr"
	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/repos"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

// ProgressService recomputes the lesson rollup from sessions and attempts.
// Recompute is idempotent; callers may invoke it redundantly after any
// milestone, attempt, or completion event.
type ProgressService interface {
	Recompute(ctx context.Context, studentID, lessonID uuid.UUID) (*types.Progress, *types.Grade, error)
	GetForStudent(ctx context.Context, studentID, lessonID uuid.UUID) (*types.Progress, *types.Grade, error)
}

type progressService struct {
	db            *gorm.DB
	log           *logger.Logger
	videoRepo     repos.VideoRepo
	milestoneRepo repos.MilestoneRepo
	questionRepo  repos.QuestionRepo
	sessionRepo   repos.SessionRepo
	attemptRepo   repos.AttemptRepo
	progressRepo  repos.ProgressRepo
	gradeRepo     repos.GradeRepo
}

func NewProgressService(
	db *gorm.DB,
	log *logger.Logger,
	videoRepo repos.VideoRepo,
	milestoneRepo repos.MilestoneRepo,
	questionRepo repos.QuestionRepo,
	sessionRepo repos.SessionRepo,
	attemptRepo repos.AttemptRepo,
	progressRepo repos.ProgressRepo,
	gradeRepo repos.GradeRepo,
) ProgressService {
	return &progressService{
		db:            db,
		log:           log.With("service", "ProgressService"),
		videoRepo:     videoRepo,
		milestoneRepo: milestoneRepo,
		questionRepo:  questionRepo,
		sessionRepo:   sessionRepo,
		attemptRepo:   attemptRepo,
		progressRepo:  progressRepo,
		gradeRepo:     gradeRepo,
	}
}

// Recompute loads every row the lesson rollup depends on, runs the pure
// computation, and upserts Progress and Grade in one transaction so a reader
// never observes one updated and the other stale.
func (ps *progressService) Recompute(ctx context.Context, studentID, lessonID uuid.UUID) (*types.Progress, *types.Grade, error) {
	var (
		progress *types.Progress
		grade    *types.Grade
	)
	err := ps.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		in, err := ps.loadInput(ctx, tx, studentID, lessonID)
		if err != nil {
			return err
		}
		totals, gradeTotals := ComputeProgress(*in)

		progress = &types.Progress{
			StudentID:             studentID,
			LessonID:              lessonID,
			TotalMilestones:       totals.TotalMilestones,
			CompletedMilestones:   totals.CompletedMilestones,
			AverageScore:          totals.AverageScore,
			TotalTimeSpentSeconds: totals.TotalTimeSpentSeconds,
			IsCompleted:           totals.IsCompleted,
		}
		if err := ps.progressRepo.Upsert(ctx, tx, progress); err != nil {
			return fmt.Errorf("upserting progress: %w", err)
		}

		breakdown, err := json.Marshal(gradeTotals.Breakdown)
		if err != nil {
			return fmt.Errorf("encoding grade breakdown: %w", err)
		}
		grade = &types.Grade{
			StudentID:       studentID,
			ProgressID:      progress.ID,
			TotalPoints:     gradeTotals.TotalPoints,
			EarnedPoints:    gradeTotals.EarnedPoints,
			PercentageScore: gradeTotals.PercentageScore,
			Breakdown:       datatypes.JSON(breakdown),
		}
		if err := ps.gradeRepo.Upsert(ctx, tx, grade); err != nil {
			return fmt.Errorf("upserting grade: %w", err)
		}
		return nil
	})
	if err != nil {
		ps.log.Warn("Recompute transaction error", "studentID", studentID, "lessonID", lessonID, "error", err)
		return nil, nil, apierr.Internal(err)
	}
	return progress, grade, nil
}

func (ps *progressService) GetForStudent(ctx context.Context, studentID, lessonID uuid.UUID) (*types.Progress, *types.Grade, error) {
	progress, err := ps.progressRepo.GetByStudentAndLesson(ctx, nil, studentID, lessonID)
	if err != nil {
		return nil, nil, apierr.Internal(fmt.Errorf("fetching progress: %w", err))
	}
	if progress == nil {
		return nil, nil, apierr.NotFound("progress")
	}
	grade, err := ps.gradeRepo.GetByProgressID(ctx, nil, progress.ID)
	if err != nil {
		return nil, nil, apierr.Internal(fmt.Errorf("fetching grade: %w", err))
	}
	return progress, grade, nil
}

func (ps *progressService) loadInput(ctx context.Context, tx *gorm.DB, studentID, lessonID uuid.UUID) (*ProgressInput, error) {
	videos, err := ps.videoRepo.GetByLessonIDs(ctx, tx, []uuid.UUID{lessonID})
	if err != nil {
		return nil, fmt.Errorf("loading videos: %w", err)
	}
	videoIDs := make([]uuid.UUID, 0, len(videos))
	for _, v := range videos {
		videoIDs = append(videoIDs, v.ID)
	}

	milestones, err := ps.milestoneRepo.GetByVideoIDs(ctx, tx, videoIDs)
	if err != nil {
		return nil, fmt.Errorf("loading milestones: %w", err)
	}
	milestoneIDs := make([]uuid.UUID, 0, len(milestones))
	for _, m := range milestones {
		milestoneIDs = append(milestoneIDs, m.ID)
	}

	questions, err := ps.questionRepo.GetByMilestoneIDs(ctx, tx, milestoneIDs)
	if err != nil {
		return nil, fmt.Errorf("loading questions: %w", err)
	}
	questionIDs := make([]uuid.UUID, 0, len(questions))
	for _, q := range questions {
		questionIDs = append(questionIDs, q.ID)
	}

	sessions, err := ps.sessionRepo.GetByStudentAndVideoIDs(ctx, tx, studentID, videoIDs)
	if err != nil {
		return nil, fmt.Errorf("loading sessions: %w", err)
	}
	attempts, err := ps.attemptRepo.GetByStudentAndQuestionIDs(ctx, tx, studentID, questionIDs)
	if err != nil {
		return nil, fmt.Errorf("loading attempts: %w", err)
	}

	return &ProgressInput{
		Videos:     videos,
		Milestones: milestones,
		Questions:  questions,
		Sessions:   sessions,
		Attempts:   attempts,
	}, nil
}
