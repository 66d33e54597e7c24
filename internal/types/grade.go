package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Grade is derived from Progress plus the attempt set; one row per Progress.
// Breakdown holds per-milestone and per-question-type aggregates as jsonb.
type Grade struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	StudentID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"student_id"`
	ProgressID      uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"progress_id"`
	Progress        *Progress      `gorm:"constraint:OnDelete:CASCADE;foreignKey:ProgressID;references:ID" json:"progress,omitempty"`
	TotalPoints     int            `gorm:"column:total_points;not null;default:0" json:"total_points"`
	EarnedPoints    float64        `gorm:"column:earned_points;not null;default:0" json:"earned_points"`
	PercentageScore float64        `gorm:"column:percentage_score;not null;default:0" json:"percentage_score"`
	Breakdown       datatypes.JSON `gorm:"type:jsonb" json:"breakdown"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Grade) TableName() string { return "grade" }
