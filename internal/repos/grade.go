package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type GradeRepo interface {
	GetByProgressID(ctx context.Context, tx *gorm.DB, progressID uuid.UUID) (*types.Grade, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.Grade) error
}

type gradeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGradeRepo(db *gorm.DB, baseLog *logger.Logger) GradeRepo {
	return &gradeRepo{db: db, log: baseLog.With("repo", "GradeRepo")}
}

func (r *gradeRepo) GetByProgressID(ctx context.Context, tx *gorm.DB, progressID uuid.UUID) (*types.Grade, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if progressID == uuid.Nil {
		return nil, nil
	}

	var row types.Grade
	err := transaction.WithContext(ctx).
		Where("progress_id = ?", progressID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert by unique progress_id. The aggregator calls this in the same
// transaction as the Progress upsert so the pair never diverges.
func (r *gradeRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.Grade) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("progress_id = ?", row.ProgressID).
		Assign(map[string]any{
			"student_id":       row.StudentID,
			"total_points":     row.TotalPoints,
			"earned_points":    row.EarnedPoints,
			"percentage_score": row.PercentageScore,
			"breakdown":        row.Breakdown,
		}).
		FirstOrCreate(row).Error
}
