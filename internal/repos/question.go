package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type QuestionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Question) ([]*types.Question, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Question, error)
	GetByMilestoneIDs(ctx context.Context, tx *gorm.DB, milestoneIDs []uuid.UUID) ([]*types.Question, error)
	SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
	SoftDeleteByMilestoneIDs(ctx context.Context, tx *gorm.DB, milestoneIDs []uuid.UUID) error
}

type questionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewQuestionRepo(db *gorm.DB, baseLog *logger.Logger) QuestionRepo {
	return &questionRepo{db: db, log: baseLog.With("repo", "QuestionRepo")}
}

func (r *questionRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Question) ([]*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.Question{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *questionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var row types.Question
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *questionRepo) GetByMilestoneIDs(ctx context.Context, tx *gorm.DB, milestoneIDs []uuid.UUID) ([]*types.Question, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Question
	if len(milestoneIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("milestone_id IN ?", milestoneIDs).
		Order("milestone_id, created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *questionRepo) SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(ids) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.Question{}).Error
}

func (r *questionRepo) SoftDeleteByMilestoneIDs(ctx context.Context, tx *gorm.DB, milestoneIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(milestoneIDs) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("milestone_id IN ?", milestoneIDs).
		Delete(&types.Question{}).Error
}
