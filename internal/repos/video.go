package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type VideoRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Video) ([]*types.Video, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Video, error)
	GetByLessonIDs(ctx context.Context, tx *gorm.DB, lessonIDs []uuid.UUID) ([]*types.Video, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error
	SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type videoRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVideoRepo(db *gorm.DB, baseLog *logger.Logger) VideoRepo {
	return &videoRepo{db: db, log: baseLog.With("repo", "VideoRepo")}
}

func (r *videoRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Video) ([]*types.Video, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.Video{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *videoRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Video, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var row types.Video
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *videoRepo) GetByLessonIDs(ctx context.Context, tx *gorm.DB, lessonIDs []uuid.UUID) ([]*types.Video, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Video
	if len(lessonIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("lesson_id IN ?", lessonIDs).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *videoRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Model(&types.Video{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *videoRepo) SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(ids) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.Video{}).Error
}
