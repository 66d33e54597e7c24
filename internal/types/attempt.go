package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AttemptCorrect   = "CORRECT"
	AttemptIncorrect = "INCORRECT"
)

// Attempt is upserted per (student_id, question_id) with an incremented
// AttemptNumber on resubmission. The row is read FOR UPDATE before the retry
// limit check so concurrent submissions serialize.
type Attempt struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	SessionID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"session_id"`
	Session       *VideoSession  `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	StudentID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_student_question,unique" json:"student_id"`
	QuestionID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_student_question,unique" json:"question_id"`
	Question      *Question      `gorm:"constraint:OnDelete:CASCADE;foreignKey:QuestionID;references:ID" json:"question,omitempty"`
	MilestoneID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"milestone_id"`
	AttemptNumber int            `gorm:"column:attempt_number;not null;default:1" json:"attempt_number"`
	AnswerPayload datatypes.JSON `gorm:"type:jsonb;column:answer_payload" json:"answer_payload"`
	IsCorrect     bool           `gorm:"column:is_correct;not null" json:"is_correct"`
	Score         float64        `gorm:"not null;default:0" json:"score"`
	Status        string         `gorm:"not null" json:"status"`
	SubmittedAt   time.Time      `gorm:"column:submitted_at;not null;default:now()" json:"submitted_at"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Attempt) TableName() string { return "attempt" }
