package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type MilestoneRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Milestone) ([]*types.Milestone, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Milestone, error)
	GetByVideoID(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) ([]*types.Milestone, error)
	GetByVideoIDs(ctx context.Context, tx *gorm.DB, videoIDs []uuid.UUID) ([]*types.Milestone, error)
	ExistsAtTimestamp(ctx context.Context, tx *gorm.DB, videoID uuid.UUID, timestampSeconds float64) (bool, error)
	SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type milestoneRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMilestoneRepo(db *gorm.DB, baseLog *logger.Logger) MilestoneRepo {
	return &milestoneRepo{db: db, log: baseLog.With("repo", "MilestoneRepo")}
}

func (r *milestoneRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Milestone) ([]*types.Milestone, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.Milestone{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *milestoneRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Milestone, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var row types.Milestone
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByVideoID returns milestones sorted by timestamp ascending, the order
// clients present them in.
func (r *milestoneRepo) GetByVideoID(ctx context.Context, tx *gorm.DB, videoID uuid.UUID) ([]*types.Milestone, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Milestone
	if videoID == uuid.Nil {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("timestamp_seconds ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *milestoneRepo) GetByVideoIDs(ctx context.Context, tx *gorm.DB, videoIDs []uuid.UUID) ([]*types.Milestone, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Milestone
	if len(videoIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("video_id IN ?", videoIDs).
		Order("video_id, timestamp_seconds ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *milestoneRepo) ExistsAtTimestamp(ctx context.Context, tx *gorm.DB, videoID uuid.UUID, timestampSeconds float64) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Milestone{}).
		Where("video_id = ? AND timestamp_seconds = ?", videoID, timestampSeconds).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *milestoneRepo) SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(ids) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.Milestone{}).Error
}
