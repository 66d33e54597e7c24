package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type ProgressRepo interface {
	GetByStudentAndLesson(ctx context.Context, tx *gorm.DB, studentID, lessonID uuid.UUID) (*types.Progress, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.Progress) error
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return &progressRepo{db: db, log: baseLog.With("repo", "ProgressRepo")}
}

func (r *progressRepo) GetByStudentAndLesson(ctx context.Context, tx *gorm.DB, studentID, lessonID uuid.UUID) (*types.Progress, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if studentID == uuid.Nil || lessonID == uuid.Nil {
		return nil, nil
	}

	var row types.Progress
	err := transaction.WithContext(ctx).
		Where("student_id = ? AND lesson_id = ?", studentID, lessonID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert by unique student_id + lesson_id.
func (r *progressRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.Progress) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("student_id = ? AND lesson_id = ?", row.StudentID, row.LessonID).
		Assign(map[string]any{
			"total_milestones":         row.TotalMilestones,
			"completed_milestones":     row.CompletedMilestones,
			"average_score":            row.AverageScore,
			"total_time_spent_seconds": row.TotalTimeSpentSeconds,
			"is_completed":             row.IsCompleted,
		}).
		FirstOrCreate(row).Error
}
