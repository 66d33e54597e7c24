package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QuestionData holds the type-specific variant as jsonb. It is validated
// against the tagged union in internal/grading once, on create/ingest, so
// readers can trust its shape.
type Question struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MilestoneID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"milestone_id"`
	Milestone     *Milestone     `gorm:"constraint:OnDelete:CASCADE;foreignKey:MilestoneID;references:ID" json:"milestone,omitempty"`
	Type          string         `gorm:"not null" json:"type"`
	PromptMD      string         `gorm:"column:prompt_md;type:text" json:"prompt_md"`
	QuestionData  datatypes.JSON `gorm:"type:jsonb;column:question_data;not null" json:"question_data"`
	Explanation   *string        `gorm:"type:text" json:"explanation,omitempty"`
	Points        int            `gorm:"not null;default:1" json:"points"`
	PassThreshold float64        `gorm:"column:pass_threshold;not null;default:0.7" json:"pass_threshold"`
	Source        string         `gorm:"not null;default:'manual'" json:"source"`
	CreatedAt     time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Question) TableName() string { return "question" }
