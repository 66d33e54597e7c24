package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type StudentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.Student) ([]*types.Student, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Student, error)
	GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.Student, error)
}

type studentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudentRepo(db *gorm.DB, baseLog *logger.Logger) StudentRepo {
	return &studentRepo{db: db, log: baseLog.With("repo", "StudentRepo")}
}

func (r *studentRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.Student) ([]*types.Student, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.Student{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *studentRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Student, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var row types.Student
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *studentRepo) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*types.Student, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if email == "" {
		return nil, nil
	}

	var row types.Student
	err := transaction.WithContext(ctx).Where("email = ?", email).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
