package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type LessonRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Lesson) ([]*types.Lesson, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Lesson, error)
}

type lessonRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLessonRepo(db *gorm.DB, baseLog *logger.Logger) LessonRepo {
	return &lessonRepo{db: db, log: baseLog.With("repo", "LessonRepo")}
}

func (r *lessonRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Lesson) ([]*types.Lesson, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.Lesson{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *lessonRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Lesson, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var row types.Lesson
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
