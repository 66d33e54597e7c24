package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type SessionRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.VideoSession) ([]*types.VideoSession, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.VideoSession, error)
	GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.VideoSession, error)
	GetByStudentAndVideo(ctx context.Context, tx *gorm.DB, studentID, videoID uuid.UUID) (*types.VideoSession, error)
	GetByStudentAndVideoIDs(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, videoIDs []uuid.UUID) ([]*types.VideoSession, error)
	Save(ctx context.Context, tx *gorm.DB, row *types.VideoSession) error
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, baseLog *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: baseLog.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.VideoSession) ([]*types.VideoSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(rows) == 0 {
		return []*types.VideoSession{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *sessionRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.VideoSession, error) {
	return r.getByID(ctx, tx, id, false)
}

// GetByIDForUpdate locks the session row so milestone-set and status writes
// within the surrounding transaction serialize.
func (r *sessionRepo) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.VideoSession, error) {
	return r.getByID(ctx, tx, id, true)
}

func (r *sessionRepo) getByID(ctx context.Context, tx *gorm.DB, id uuid.UUID, forUpdate bool) (*types.VideoSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	q := transaction.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var row types.VideoSession
	err := q.Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *sessionRepo) GetByStudentAndVideo(ctx context.Context, tx *gorm.DB, studentID, videoID uuid.UUID) (*types.VideoSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if studentID == uuid.Nil || videoID == uuid.Nil {
		return nil, nil
	}

	var row types.VideoSession
	err := transaction.WithContext(ctx).
		Where("student_id = ? AND video_id = ?", studentID, videoID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *sessionRepo) GetByStudentAndVideoIDs(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, videoIDs []uuid.UUID) ([]*types.VideoSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.VideoSession
	if studentID == uuid.Nil || len(videoIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("student_id = ? AND video_id IN ?", studentID, videoIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *sessionRepo) Save(ctx context.Context, tx *gorm.DB, row *types.VideoSession) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	return transaction.WithContext(ctx).Save(row).Error
}

func (r *sessionRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}

	return transaction.WithContext(ctx).
		Model(&types.VideoSession{}).
		Where("id = ?", id).
		Updates(updates).Error
}
