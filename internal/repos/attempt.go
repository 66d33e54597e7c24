package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lessonreel/lessonreel-backend/internal/platform/logger"
	"github.com/lessonreel/lessonreel-backend/internal/types"
)

type AttemptRepo interface {
	// GetForUpdate locks the (student, question) row. Callers must hold an
	// open transaction: the lock is what serializes concurrent submissions
	// around the retry-limit check.
	GetForUpdate(ctx context.Context, tx *gorm.DB, studentID, questionID uuid.UUID) (*types.Attempt, error)
	Upsert(ctx context.Context, tx *gorm.DB, row *types.Attempt) error
	GetByStudentAndQuestion(ctx context.Context, tx *gorm.DB, studentID, questionID uuid.UUID) (*types.Attempt, error)
	GetBySessionIDs(ctx context.Context, tx *gorm.DB, sessionIDs []uuid.UUID) ([]*types.Attempt, error)
	GetByStudentAndQuestionIDs(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, questionIDs []uuid.UUID) ([]*types.Attempt, error)
}

type attemptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAttemptRepo(db *gorm.DB, baseLog *logger.Logger) AttemptRepo {
	return &attemptRepo{db: db, log: baseLog.With("repo", "AttemptRepo")}
}

func (r *attemptRepo) GetForUpdate(ctx context.Context, tx *gorm.DB, studentID, questionID uuid.UUID) (*types.Attempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if studentID == uuid.Nil || questionID == uuid.Nil {
		return nil, nil
	}

	var row types.Attempt
	err := transaction.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("student_id = ? AND question_id = ?", studentID, questionID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert writes the latest attempt for (student_id, question_id). The caller
// sets AttemptNumber; resubmission replaces the stored row rather than adding
// history.
func (r *attemptRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.Attempt) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if row == nil {
		return nil
	}

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "student_id"}, {Name: "question_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"session_id", "milestone_id", "attempt_number", "answer_payload",
				"is_correct", "score", "status", "submitted_at", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *attemptRepo) GetByStudentAndQuestion(ctx context.Context, tx *gorm.DB, studentID, questionID uuid.UUID) (*types.Attempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if studentID == uuid.Nil || questionID == uuid.Nil {
		return nil, nil
	}

	var row types.Attempt
	err := transaction.WithContext(ctx).
		Where("student_id = ? AND question_id = ?", studentID, questionID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *attemptRepo) GetBySessionIDs(ctx context.Context, tx *gorm.DB, sessionIDs []uuid.UUID) ([]*types.Attempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Attempt
	if len(sessionIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("session_id IN ?", sessionIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *attemptRepo) GetByStudentAndQuestionIDs(ctx context.Context, tx *gorm.DB, studentID uuid.UUID, questionIDs []uuid.UUID) ([]*types.Attempt, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Attempt
	if studentID == uuid.Nil || len(questionIDs) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("student_id = ? AND question_id IN ?", studentID, questionIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
